package qlast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
)

func TestDecodeBareExpressionIsImplicitSelect(t *testing.T) {
	stmt, err := DecodeStatement([]byte(`User.name`))
	require.NoError(t, err)

	sel, ok := stmt.(*SelectQuery)
	require.True(t, ok)
	assert.True(t, sel.Implicit)
	path, ok := sel.Result.(*Path)
	require.True(t, ok)
	assert.Equal(t, "User.name", path.String())
}

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		src   string
		check func(t *testing.T, e Expr)
	}{
		{"42", func(t *testing.T, e Expr) {
			assert.Equal(t, "42", e.(*IntegerConstant).Value)
		}},
		{"1.5", func(t *testing.T, e Expr) {
			assert.Equal(t, "1.5", e.(*FloatConstant).Value)
		}},
		{"true", func(t *testing.T, e Expr) {
			assert.True(t, e.(*BooleanConstant).Value)
		}},
		{"null", func(t *testing.T, e Expr) {
			assert.Empty(t, e.(*Set).Elements)
		}},
		{"{str: hello}", func(t *testing.T, e Expr) {
			assert.Equal(t, "hello", e.(*StringConstant).Value)
		}},
		{"{int: '7'}", func(t *testing.T, e Expr) {
			assert.Equal(t, "7", e.(*IntegerConstant).Value)
		}},
		{"[1, 2]", func(t *testing.T, e Expr) {
			assert.Len(t, e.(*Set).Elements, 2)
		}},
		{"{array: []}", func(t *testing.T, e Expr) {
			assert.Empty(t, e.(*Array).Elements)
		}},
		{"{tuple: [1, {str: a}]}", func(t *testing.T, e Expr) {
			assert.Len(t, e.(*Tuple).Elements, 2)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseExpr(tt.src)
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestDecodeNamedTupleKeepsOrder(t *testing.T) {
	e, err := ParseExpr(`{namedtuple: {z: 1, a: 2, m: 3}}`)
	require.NoError(t, err)

	nt := e.(*NamedTuple)
	var names []string
	for _, el := range nt.Elements {
		names = append(names, el.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
}

func TestDecodeCast(t *testing.T) {
	e, err := ParseExpr(`{cast: {type: "array<int64>", expr: {set: []}, card: required}}`)
	require.NoError(t, err)

	tc := e.(*TypeCast)
	assert.Equal(t, "array<int64>", tc.Type.String())
	assert.Equal(t, qltypes.CardModRequired, tc.Cardinality)
	assert.Empty(t, tc.Expr.(*Set).Elements)
}

func TestDecodeCallWithKwargs(t *testing.T) {
	e, err := ParseExpr(`{call: {func: json_get, args: [.data, {str: a}], kwargs: {default: null}}}`)
	require.NoError(t, err)

	fc := e.(*FunctionCall)
	assert.Equal(t, "json_get", fc.Func)
	assert.Len(t, fc.Args, 2)
	require.Len(t, fc.Kwargs, 1)
	assert.Equal(t, "default", fc.Kwargs[0].Name)
}

func TestDecodeOperatorsAreUppercased(t *testing.T) {
	e, err := ParseExpr(`{binop: {op: "not in", left: 1, right: [1, 2]}}`)
	require.NoError(t, err)
	assert.Equal(t, "NOT IN", e.(*BinOp).Op)

	e, err = ParseExpr(`{unop: {op: exists, operand: User}}`)
	require.NoError(t, err)
	assert.Equal(t, "EXISTS", e.(*UnaryOp).Op)
}

func TestDecodeSelectWithShape(t *testing.T) {
	src := `
select:
  with:
    alice: {str: Alice}
  result:
    shape:
      expr: User
      elements:
        - name
        - name: friends
          elements: [name, "@since"]
        - name: n_friends
          expr: {call: {func: count, args: [.friends]}}
          card: single
  filter: {binop: {op: "=", left: .name, right: alice}}
  order:
    - {expr: .name, desc: true}
  limit: 10
`
	stmt, err := DecodeStatement([]byte(src))
	require.NoError(t, err)

	sel := stmt.(*SelectQuery)
	assert.False(t, sel.Implicit)
	require.Len(t, sel.Aliases, 1)
	assert.Equal(t, "alice", sel.Aliases[0].Name)

	shape := sel.Result.(*Shape)
	require.Len(t, shape.Elements, 3)
	assert.Equal(t, "name", shape.Elements[0].Name)
	friends := shape.Elements[1]
	require.Len(t, friends.Elements, 2)
	assert.True(t, friends.Elements[1].LinkProp)
	assert.Equal(t, "since", friends.Elements[1].Name)
	assert.Equal(t, qltypes.SchemaOne, shape.Elements[2].Cardinality)
	assert.NotNil(t, shape.Elements[2].Compexpr)

	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Descending)
	assert.Equal(t, "10", sel.Limit.(*IntegerConstant).Value)
	assert.Equal(t, 2, sel.Loc.Line)
}

func TestDecodeForInsertUnlessConflict(t *testing.T) {
	src := `
for:
  var: x
  in: {set: [{str: a}, {str: b}]}
  union:
    insert:
      type: default::User
      shape:
        - {name: name, expr: x}
      unless_conflict:
        on: .name
`
	stmt, err := DecodeStatement([]byte(src))
	require.NoError(t, err)

	fq := stmt.(*ForQuery)
	assert.Equal(t, "x", fq.IteratorAlias)
	ins := fq.Result.(*InsertQuery)
	assert.Equal(t, "default", ins.Subject.Module)
	assert.Equal(t, "User", ins.Subject.Name)
	require.NotNil(t, ins.UnlessConflict)
	assert.Equal(t, ".name", ins.UnlessConflict.On.(*Path).String())
	assert.Nil(t, ins.UnlessConflict.Else)
}

func TestDecodeUpdateAndDelete(t *testing.T) {
	stmt, err := DecodeStatement([]byte(`{update: {subject: User, filter: {binop: {op: "=", left: .name, right: {str: a}}}, set: [{name: name, expr: {str: b}}]}}`))
	require.NoError(t, err)
	upd := stmt.(*UpdateQuery)
	assert.Len(t, upd.Shape, 1)
	assert.NotNil(t, upd.Where)

	stmt, err = DecodeStatement([]byte(`{delete: {subject: User}}`))
	require.NoError(t, err)
	assert.IsType(t, &DeleteQuery{}, stmt)
}

func TestDecodeStatementsMultiDocument(t *testing.T) {
	src := "User\n---\n{delete: {subject: User}}\n"
	stmts, err := (&Decoder{File: "q.yaml"}).Statements(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "q.yaml", stmts[1].Pos().File)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
		hint string
	}{
		{`{selct: {result: User}}`, `unknown expression kind "selct"`, "did you mean 'select'?"},
		{`{select: {result: User, filtr: .x}}`, `unknown field "filtr"`, "did you mean 'filter'?"},
		{`{a: 1, b: 2}`, "exactly one key", ""},
		{`{binop: {op: "=", left: 1}}`, `missing required field "right"`, ""},
		{`{cast: {type: int64, expr: 1, card: maybe}}`, "invalid cast cardinality", ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := DecodeStatement([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			var de *diag.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.hint, de.Hint)
		})
	}
}
