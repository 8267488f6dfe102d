package explain

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/compiler"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/testutil"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func stdType(s *schema.Schema, name string) schema.Type {
	return s.MustType(schema.StdName(name))
}

func constant(s *schema.Schema, typ, value string) *ir.Set {
	t := stdType(s, typ)
	return &ir.Set{Type: t, Expr: &ir.Constant{Kind: ir.StringConst, Value: value, Type: t}}
}

func TestPlanSelectGolden(t *testing.T) {
	s := testutil.Schema()
	user := s.MustType(testutil.Name("User"))
	str := stdType(s, "str")

	users := &ir.Set{PathID: pathid.FromType(user), Type: user, Expr: &ir.TypeRoot{Type: user}}
	name := &ir.Set{Type: str, Expr: &ir.PathStep{
		Source:    users,
		Ptr:       &pathid.PtrRef{Name: "name"},
		Direction: qltypes.Outbound,
	}}
	friends := &ir.Set{Type: user, Expr: &ir.PathStep{
		Source:    users,
		Ptr:       &pathid.PtrRef{Name: "friends"},
		Direction: qltypes.Outbound,
	}}
	count := &ir.Set{Type: stdType(s, "int64"), Expr: &ir.FunctionCall{
		Func: schema.StdName("count"),
		Args: []ir.CallArg{{Set: friends, Param: "items", Typemod: qltypes.SetOfType}},
	}}
	users.Shape = []*ir.ShapeElement{
		{Name: "id", Cardinality: qltypes.One, Implicit: true},
		{Name: "name", Set: name, Cardinality: qltypes.One},
		{Name: "friend_count", Set: count, Cardinality: qltypes.One, Computed: true},
	}
	eq := &ir.Set{Type: stdType(s, "bool"), Expr: &ir.OperatorCall{
		Op:   schema.StdName("="),
		Args: []ir.CallArg{{Set: name}, {Set: constant(s, "str", "alice")}},
	}}

	stmt := &ir.Statement{
		Expr: &ir.Set{Type: user, Expr: &ir.SelectStmt{
			Result:  users,
			Where:   eq,
			OrderBy: []ir.SortExpr{{Expr: name, Desc: true}},
			Limit:   constant(s, "int64", "10"),
		}},
		Cardinality: qltypes.Many,
		SchemaRefs:  []schema.Name{testutil.Name("User")},
	}

	plan, err := Explain(stmt)
	require.NoError(t, err)
	require.Len(t, plan.Params, 2)
	assert.Equal(t, Param{Type: "std::str", Value: "alice"}, plan.Params[0])

	golden(t).Assert(t, "select", []byte(plan.Text()))
}

func TestPlanInsertGolden(t *testing.T) {
	s := testutil.Schema()
	user := s.MustType(testutil.Name("User"))
	named := testutil.Name("Named")
	constraint := schema.ConstraintName(named, "name", schema.StdName("exclusive"))

	subject := &ir.Set{Type: user, Expr: &ir.TypeRoot{Type: user}}
	subject.Shape = []*ir.ShapeElement{
		{Name: "name", Set: constant(s, "str", "bob"), Op: ir.ShapeAssign, Cardinality: qltypes.One},
	}
	stmt := &ir.Statement{
		Expr: &ir.Set{Type: user, Expr: &ir.InsertStmt{
			Subject: subject,
			OnConflict: &ir.OnConflictClause{
				Constraint: constraint,
				Subject:    named,
				SelectIR:   &ir.Set{Type: user, Expr: &ir.TypeRoot{Type: user}},
				ElseIR:     &ir.Set{Type: user, Expr: &ir.EmptySet{}},
			},
			ConflictChecks: []*ir.OnConflictClause{
				{Constraint: constraint, Subject: named, AlwaysCheck: true},
			},
		}},
		Cardinality: qltypes.One,
		SchemaRefs:  []schema.Name{named, testutil.Name("User")},
	}

	plan, err := Explain(stmt)
	require.NoError(t, err)
	golden(t).Assert(t, "insert", []byte(plan.Text()))
}

func TestPlanJSONGolden(t *testing.T) {
	s := testutil.Schema()
	stmt := &ir.Statement{
		Expr: &ir.Set{Type: stdType(s, "int64"), Expr: &ir.TypeCast{
			Expr: constant(s, "str", "42"),
			From: stdType(s, "str"),
			To:   stdType(s, "int64"),
		}},
		Cardinality: qltypes.One,
		Fingerprint: "abc",
	}
	plan, err := Explain(stmt)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, plan, FormatJSON))
	golden(t).Assert(t, "cast_json", buf.Bytes())
}

func TestPlanRejectsNilStatement(t *testing.T) {
	_, err := Explain(nil)
	assert.Error(t, err)
	_, err = Explain(&ir.Statement{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	assert.ErrorContains(t, err, "unknown plan format")
}

func compile(t *testing.T, src string) *ir.Statement {
	t.Helper()
	q, err := qlast.DecodeStatement([]byte(src))
	require.NoError(t, err)
	stmt, err := compiler.Compile(testutil.Schema(), q,
		compiler.WithLogger(slog.New(slog.DiscardHandler)),
		compiler.WithIDGenerator(ir.NewFixedGenerator("explain")))
	require.NoError(t, err)
	return stmt
}

func TestPlanCompiledStatements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "filter",
			src:  `{select: {result: User, filter: {binop: {op: "=", left: .name, right: {str: alice}}}}}`,
			want: []string{"select", "scan default::User", "filter: op =", "project name -> std::str"},
		},
		{
			name: "cast",
			src:  `{cast: {type: int64, expr: Post.data}}`,
			want: []string{"cast std::json -> std::int64 via json_to_int64", "project data -> std::json"},
		},
		{
			name: "required cast",
			src:  `{cast: {type: int64, expr: Post.data, card: required}}`,
			want: []string{"cast std::json -> std::int64 via json_to_int64 required assert exists"},
		},
		{
			name: "required cast of a literal",
			src:  `{cast: {type: int64, expr: {int: 1}, card: required}}`,
			want: []string{"cast std::int64 -> std::int64 inheritance required"},
		},
		{
			name: "insert with conflict checks",
			src: `
insert:
  with:
    u:
      insert:
        type: User
        shape: [{name: name, expr: {str: a}}]
  type: Org
  shape: [{name: name, expr: {str: b}}]
`,
			want: []string{"insert default::Org", "conflict check default::Named on default::Named.name@std::exclusive always"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Explain(compile(t, tt.src))
			require.NoError(t, err)
			text := plan.Text()
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}

			again, err := Explain(compile(t, tt.src))
			require.NoError(t, err)
			assert.Equal(t, text, again.Text())
		})
	}
}

func TestWriteText(t *testing.T) {
	stmt := compile(t, `User`)
	plan, err := Explain(stmt)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, plan, FormatText))
	assert.True(t, strings.HasPrefix(buf.String(), "result: default::User MANY\n"))
}
