package compiler

import (
	"fmt"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/testutil"
)

func compileWith(t *testing.T, s *schema.Schema, src string, opts ...Option) (*ir.Statement, error) {
	t.Helper()
	stmt, err := qlast.DecodeStatement([]byte(src))
	require.NoError(t, err)
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return Compile(s, stmt, opts...)
}

func mustCompile(t *testing.T, src string, opts ...Option) *ir.Statement {
	t.Helper()
	stmt, err := compileWith(t, testutil.Schema(), src, opts...)
	require.NoError(t, err)
	return stmt
}

func compileErr(t *testing.T, src string, opts ...Option) *diag.Error {
	t.Helper()
	_, err := compileWith(t, testutil.Schema(), src, opts...)
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	return de
}

// selectResult unwraps the implicit SELECT around a bare expression.
func selectResult(t *testing.T, stmt *ir.Statement) *ir.Set {
	t.Helper()
	sel, ok := stmt.Expr.Expr.(*ir.SelectStmt)
	require.True(t, ok, "expected a select, got %T", stmt.Expr.Expr)
	return sel.Result
}

func insertStmt(t *testing.T, stmt *ir.Statement) *ir.InsertStmt {
	t.Helper()
	ins, ok := stmt.Expr.Expr.(*ir.InsertStmt)
	require.True(t, ok, "expected an insert, got %T", stmt.Expr.Expr)
	return ins
}

func typeCasts(root *ir.Set) []*ir.TypeCast {
	var out []*ir.TypeCast
	ir.Walk(root, func(s *ir.Set) bool {
		if tc, ok := s.Expr.(*ir.TypeCast); ok {
			out = append(out, tc)
		}
		return true
	})
	return out
}

// scannedTypes lists the type of every SELECT reachable from root.
func scannedTypes(root *ir.Set) []string {
	var out []string
	ir.Walk(root, func(s *ir.Set) bool {
		if _, ok := s.Expr.(*ir.SelectStmt); ok {
			out = append(out, s.Type.DisplayName())
		}
		return true
	})
	slices.Sort(out)
	return out
}

// withUserComputed adds a computed str pointer to User.
func withUserComputed(name, expr string, card qltypes.SchemaCardinality) *schema.Schema {
	s := testutil.Schema()
	return s.WithPointer(&schema.Pointer{
		ShortName:   name,
		Source:      testutil.Name("User"),
		Target:      s.MustType(schema.StdName("str")),
		Cardinality: card,
		Computed:    true,
		Expr:        qlast.MustParseExpr(expr),
		Owned:       true,
	})
}

// codedSchema extends the fixture with types inheriting exclusive
// constraints from two owners:
//
//	abstract type Coded { required single property code -> str { constraint exclusive } }
//	type Badge extending Named, Coded
//	type Medal extending Named, Coded
func codedSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := testutil.Schema()
	named, coded := testutil.Name("Named"), testutil.Name("Coded")
	exclusive := schema.StdName("exclusive")

	s = s.WithType(&schema.ObjectType{Name: coded, Bases: []schema.Name{schema.StdName("Object")}, Abstract: true})
	s = s.WithPointer(&schema.Pointer{ShortName: "code", Source: coded, Target: s.MustType(schema.StdName("str")),
		Cardinality: qltypes.SchemaOne, Required: true, Owned: true})
	s = s.WithConstraint(&schema.Constraint{
		Name:           schema.ConstraintName(coded, "code", exclusive),
		Base:           exclusive,
		Subject:        coded,
		SubjectPointer: "code",
		Owned:          true,
	})
	for _, name := range []string{"Badge", "Medal"} {
		s = s.WithType(&schema.ObjectType{Name: testutil.Name(name), Bases: []schema.Name{named, coded}})
	}
	out, err := s.MaterializeInheritance()
	require.NoError(t, err)
	return out
}

func TestCompileUnknownPointerSuggestsName(t *testing.T) {
	de := compileErr(t, `User.emal.foo`)
	assert.Equal(t, diag.KindReference, de.Kind)
	assert.Equal(t, diag.ErrCodeUnknownPointer, de.Code)
	assert.Contains(t, de.Message, "has no link or property 'emal'")
	assert.Equal(t, "did you mean 'email'?", de.Hint)
}

func TestCompileUnknownTypeSuggestsName(t *testing.T) {
	de := compileErr(t, `Usr.name`)
	assert.Equal(t, diag.ErrCodeUnknownName, de.Code)
	assert.Equal(t, "did you mean 'User'?", de.Hint)
}

func TestCompileEmptyArrayCastKeepsType(t *testing.T) {
	stmt := mustCompile(t, `{cast: {type: "array<int64>", expr: {set: []}}}`)

	res := selectResult(t, stmt)
	assert.True(t, ir.IsEmpty(res))
	want := &schema.ArrayType{Element: stmt.Schema.MustType(schema.StdName("int64"))}
	assert.True(t, schema.Same(want, res.Type), "got %s", res.Type.DisplayName())
	assert.True(t, schema.Same(want, stmt.ResultType()))
}

func TestCompileJSONToInt64Cast(t *testing.T) {
	const src = `{cast: {type: int64, expr: Post.data}}`
	s := testutil.Schema()
	json := s.MustType(schema.StdName("json"))
	i64 := s.MustType(schema.StdName("int64"))
	str := s.MustType(schema.StdName("str"))

	t.Run("direct", func(t *testing.T) {
		stmt, err := compileWith(t, s, src)
		require.NoError(t, err)

		tc, ok := selectResult(t, stmt).Expr.(*ir.TypeCast)
		require.True(t, ok)
		require.NotNil(t, tc.Cast)
		assert.True(t, schema.Same(json, tc.From))
		assert.True(t, schema.Same(i64, tc.To))
		assert.Equal(t, "json_to_int64", tc.Cast.Function)
	})

	t.Run("through str", func(t *testing.T) {
		stmt, err := compileWith(t, s.WithoutCast(json, i64), src)
		require.NoError(t, err)

		outer, ok := selectResult(t, stmt).Expr.(*ir.TypeCast)
		require.True(t, ok)
		assert.True(t, schema.Same(str, outer.From))
		assert.True(t, schema.Same(i64, outer.To))

		inner, ok := outer.Expr.Expr.(*ir.TypeCast)
		require.True(t, ok)
		assert.True(t, schema.Same(json, inner.From))
		assert.True(t, schema.Same(str, inner.To))
	})
}

func TestCompileCastRoundTripKeepsType(t *testing.T) {
	paths := map[string]string{"str": "Post.title", "int64": "User.age", "json": "Post.data"}
	pairs := [][2]string{{"str", "int64"}, {"int64", "json"}, {"str", "json"}, {"json", "str"}}
	for _, p := range pairs {
		from, to := p[0], p[1]
		t.Run(from+"->"+to, func(t *testing.T) {
			src := `{cast: {type: ` + from + `, expr: {cast: {type: ` + to + `, expr: ` + paths[from] + `}}}}`
			stmt := mustCompile(t, src)
			want := stmt.Schema.MustType(schema.StdName(from))
			assert.True(t, schema.Same(want, stmt.ResultType()), "got %s", stmt.ResultType().DisplayName())
		})
	}
}

func TestCompileJSONToArrayCastsElements(t *testing.T) {
	s := testutil.Schema()
	json := s.MustType(schema.StdName("json"))
	i64 := s.MustType(schema.StdName("int64"))
	str := s.MustType(schema.StdName("str"))

	t.Run("tuple elements", func(t *testing.T) {
		stmt, err := compileWith(t, s, `{cast: {type: "array<tuple<a: int64>>", expr: Post.data}}`)
		require.NoError(t, err)
		want := &schema.ArrayType{Element: schema.NewNamedTuple(schema.TupleElement{Name: "a", Type: i64})}
		assert.True(t, schema.Same(want, stmt.ResultType()), "got %s", stmt.ResultType().DisplayName())

		var required int
		for _, tc := range typeCasts(stmt.Expr) {
			if schema.Same(i64, tc.To) && tc.Required() {
				required++
			}
		}
		assert.Positive(t, required, "tuple fields are cast as required values")
	})

	t.Run("elements through str", func(t *testing.T) {
		stmt, err := compileWith(t, s.WithoutCast(json, i64), `{cast: {type: "array<int64>", expr: Post.data}}`)
		require.NoError(t, err)
		assert.True(t, schema.Same(&schema.ArrayType{Element: i64}, stmt.ResultType()))

		var steps []string
		for _, tc := range typeCasts(stmt.Expr) {
			steps = append(steps, tc.From.DisplayName()+" -> "+tc.To.DisplayName())
		}
		assert.Contains(t, steps, json.DisplayName()+" -> "+str.DisplayName())
		assert.Contains(t, steps, str.DisplayName()+" -> "+i64.DisplayName())
	})

	t.Run("native element cast", func(t *testing.T) {
		stmt := mustCompile(t, `{cast: {type: "array<int64>", expr: Post.tags}}`)
		tc, ok := selectResult(t, stmt).Expr.(*ir.TypeCast)
		require.True(t, ok, "got %T", selectResult(t, stmt).Expr)
		assert.True(t, schema.Same(&schema.ArrayType{Element: i64}, tc.To))
	})
}

func TestCompileRequiredCastModifier(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		stmt := mustCompile(t, `{cast: {type: int64, expr: Post.data, card: required}}`)
		tc, ok := selectResult(t, stmt).Expr.(*ir.TypeCast)
		require.True(t, ok)
		assert.True(t, tc.Required())
		assert.True(t, tc.SourceCardinality.CanBeZero(), "got %s", tc.SourceCardinality)
		assert.True(t, tc.AssertsExistence())
	})

	t.Run("non-empty input", func(t *testing.T) {
		stmt := mustCompile(t, `{cast: {type: int64, expr: {int: 1}, card: required}}`)
		tc, ok := selectResult(t, stmt).Expr.(*ir.TypeCast)
		require.True(t, ok, "got %T", selectResult(t, stmt).Expr)
		assert.Equal(t, qltypes.One, tc.SourceCardinality)
		assert.False(t, tc.AssertsExistence())
	})

	t.Run("json to range", func(t *testing.T) {
		stmt := mustCompile(t, `{cast: {type: "range<int64>", expr: Post.data, card: required}}`)
		tc, ok := selectResult(t, stmt).Expr.(*ir.TypeCast)
		require.True(t, ok, "got %T", selectResult(t, stmt).Expr)
		assert.True(t, tc.Required())
		assert.Equal(t, "range<std::int64>", tc.To.DisplayName())
	})

	t.Run("json to range without modifier", func(t *testing.T) {
		stmt := mustCompile(t, `{cast: {type: "range<int64>", expr: Post.data}}`)
		for _, tc := range typeCasts(selectResult(t, stmt)) {
			if _, ok := tc.To.(*schema.RangeType); ok {
				assert.False(t, tc.Required())
			}
		}
	})
}

func TestCompileTupleArityMismatchIsFalse(t *testing.T) {
	tests := map[string]string{
		"=":  "false",
		"!=": "true",
	}
	for op, want := range tests {
		t.Run(op, func(t *testing.T) {
			stmt := mustCompile(t, `{binop: {op: "`+op+`", left: {tuple: [1, 2]}, right: {tuple: [1, 2, 3]}}}`)

			c, ok := selectResult(t, stmt).Expr.(*ir.Constant)
			require.True(t, ok)
			assert.Equal(t, ir.BooleanConst, c.Kind)
			assert.Equal(t, want, c.Value)
		})
	}
}

func TestCompileComputedPointerCardinality(t *testing.T) {
	stmt := mustCompile(t, `User.friend_names`)

	key := schema.PointerKey(testutil.Name("User"), "friend_names")
	assert.Equal(t, qltypes.Many, stmt.PointerCardinality[key])

	p, ok := stmt.Schema.PointerByKey(key)
	require.True(t, ok)
	assert.Equal(t, qltypes.SchemaMany, p.Cardinality)
	assert.Equal(t, qltypes.Many, stmt.Cardinality)
}

func TestCompileDeclaredComputedPointerIsChecked(t *testing.T) {
	t.Run("single over many", func(t *testing.T) {
		_, err := compileWith(t, withUserComputed("one_friend_name", ".friends.name", qltypes.SchemaOne), `User.one_friend_name`)
		require.Error(t, err)
		var de *diag.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, diag.ErrCodeCardinalityMismatch, de.Code)
		assert.Contains(t, de.Message, "property 'one_friend_name' explicitly declared as 'single'")
	})

	t.Run("single over single", func(t *testing.T) {
		stmt, err := compileWith(t, withUserComputed("best_name", ".best_friend.name", qltypes.SchemaOne), `User.best_name`)
		require.NoError(t, err)
		key := schema.PointerKey(testutil.Name("User"), "best_name")
		assert.Equal(t, qltypes.AtMostOne, stmt.PointerCardinality[key])
	})

	t.Run("multi over single", func(t *testing.T) {
		stmt, err := compileWith(t, withUserComputed("names", ".name", qltypes.SchemaMany), `User.names`)
		require.NoError(t, err)
		key := schema.PointerKey(testutil.Name("User"), "names")
		assert.True(t, stmt.PointerCardinality[key].IsMulti())
	})
}

func TestCompileShapeComputedDeclaredSingle(t *testing.T) {
	de := compileErr(t, `
shape:
  expr: User
  elements:
    - {name: names, expr: .friends.name, card: single}
`)
	assert.Equal(t, diag.ErrCodeCardinalityMismatch, de.Code)
	assert.Contains(t, de.Message, "explicitly declared as 'single'")
}

func TestCompileShapeDerivesView(t *testing.T) {
	stmt := mustCompile(t, `
shape:
  expr: User
  elements:
    - name
    - {name: n_friends, expr: {call: {func: count, args: [.friends]}}}
`)

	res := selectResult(t, stmt)
	view, ok := res.Type.(*schema.ObjectType)
	require.True(t, ok)
	assert.True(t, view.View)
	assert.Contains(t, stmt.Views, view.Name)
	require.Len(t, res.Shape, 2)
	assert.Equal(t, "name", res.Shape[0].Name)
	assert.Equal(t, qltypes.One, res.Shape[0].Cardinality)
	assert.Equal(t, "n_friends", res.Shape[1].Name)
	assert.True(t, res.Shape[1].Computed)
	assert.Equal(t, qltypes.One, res.Shape[1].Cardinality)

	assert.Contains(t, stmt.SchemaRefs, testutil.Name("User"))
	assert.NotContains(t, stmt.SchemaRefs, view.Name)
}

func TestCompileShapeSeesSettledComputedPointer(t *testing.T) {
	stmt := mustCompile(t, `
shape:
  expr: User
  elements:
    - friend_names
    - {name: best_friend, elements: [friend_names]}
`)

	res := selectResult(t, stmt)
	require.Len(t, res.Shape, 2)
	assert.Equal(t, qltypes.Many, res.Shape[0].Cardinality)

	nested := res.Shape[1].Set.Shape
	require.Len(t, nested, 1)
	assert.Equal(t, "friend_names", nested[0].Name)
	assert.Equal(t, qltypes.Many, nested[0].Cardinality)

	key := schema.PointerKey(testutil.Name("User"), "friend_names")
	assert.Equal(t, qltypes.Many, stmt.PointerCardinality[key])
}

func TestCompileImplicitIDInShapes(t *testing.T) {
	stmt := mustCompile(t, `{shape: {expr: User, elements: [name]}}`, WithImplicitIDInShapes(true))

	res := selectResult(t, stmt)
	require.Len(t, res.Shape, 2)
	assert.Equal(t, "id", res.Shape[0].Name)
	assert.True(t, res.Shape[0].Implicit)
}

func TestCompileSiblingInsertsShareAncestorCheck(t *testing.T) {
	stmt := mustCompile(t, `
insert:
  with:
    u:
      insert:
        type: User
        shape: [{name: name, expr: {str: a}}]
  type: Org
  shape: [{name: name, expr: {str: a}}]
`)

	ins := insertStmt(t, stmt)
	require.Len(t, ins.ConflictChecks, 1)
	check := ins.ConflictChecks[0]
	assert.Equal(t, testutil.Name("Named"), check.Subject)
	assert.Equal(t, schema.ConstraintName(testutil.Name("Named"), "name", schema.StdName("exclusive")), check.Constraint)
	assert.True(t, check.AlwaysCheck)
	assert.False(t, ir.IsEmpty(check.SelectIR))
}

func TestCompileConflictSelectPerOwningAncestor(t *testing.T) {
	s := codedSchema(t)

	stmt, err := compileWith(t, s, `
insert:
  type: Badge
  shape: [{name: name, expr: {str: a}}, {name: code, expr: {str: b}}]
  unless_conflict: true
`)
	require.NoError(t, err)
	oc := insertStmt(t, stmt).OnConflict
	require.NotNil(t, oc)
	assert.True(t, oc.AlwaysCheck)
	if diff := cmp.Diff([]string{"default::Coded", "default::Named"}, scannedTypes(oc.SelectIR)); diff != "" {
		t.Errorf("conflict fragments mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileInheritanceChecksPerAncestor(t *testing.T) {
	s := codedSchema(t)

	stmt, err := compileWith(t, s, `
insert:
  with:
    m:
      insert:
        type: Medal
        shape: [{name: name, expr: {str: a}}, {name: code, expr: {str: b}}]
  type: Badge
  shape: [{name: name, expr: {str: c}}, {name: code, expr: {str: d}}]
`)
	require.NoError(t, err)

	var got []string
	for _, check := range insertStmt(t, stmt).ConflictChecks {
		got = append(got, fmt.Sprintf("%s %s", check.Subject, check.Constraint))
		assert.True(t, check.AlwaysCheck)
	}
	slices.Sort(got)
	exclusive := schema.StdName("exclusive")
	want := []string{
		fmt.Sprintf("%s %s", testutil.Name("Coded"), schema.ConstraintName(testutil.Name("Coded"), "code", exclusive)),
		fmt.Sprintf("%s %s", testutil.Name("Named"), schema.ConstraintName(testutil.Name("Named"), "name", exclusive)),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("inheritance checks mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileSingleInsertHasNoInheritanceChecks(t *testing.T) {
	stmt := mustCompile(t, `
insert:
  type: User
  shape: [{name: name, expr: {str: a}}]
`)
	ins := insertStmt(t, stmt)
	assert.Empty(t, ins.ConflictChecks)
	assert.Nil(t, ins.OnConflict)
	assert.Equal(t, qltypes.One, stmt.Cardinality)
}

func TestCompileForIteratorInDML(t *testing.T) {
	const src = `
for:
  var: x
  in: [{str: a}]
  union:
    insert:
      type: User
      shape: [{name: name, expr: x}]
`
	t.Run("allowed", func(t *testing.T) {
		stmt := mustCompile(t, src)
		_, ok := stmt.Expr.Expr.(*ir.ForStmt)
		assert.True(t, ok)
	})

	t.Run("without allow-list", func(t *testing.T) {
		de := compileErr(t, src, withoutIteratorAllowlist())
		assert.Equal(t, diag.ErrCodeCorrelatedSet, de.Code)
		assert.Contains(t, de.Message, "cannot reference correlated set")
	})
}

func TestCompileInsertErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
		msg  string
	}{
		{
			name: "missing required",
			src:  `{insert: {type: Post, shape: [{name: title, expr: {str: x}}]}}`,
			code: diag.ErrCodeQuery,
			msg:  "missing value for required",
		},
		{
			name: "abstract",
			src:  `{insert: {type: Named, shape: [{name: name, expr: {str: x}}]}}`,
			code: diag.ErrCodeQuery,
			msg:  "cannot insert into abstract object type",
		},
		{
			name: "unknown type",
			src:  `{insert: {type: Usr}}`,
			code: diag.ErrCodeUnknownName,
			msg:  "object type 'Usr' does not exist",
		},
		{
			name: "computed pointer",
			src:  `{insert: {type: User, shape: [{name: name, expr: {str: x}}, {name: friend_names, expr: {str: y}}]}}`,
			code: diag.ErrCodeQuery,
			msg:  "modification of computed",
		},
		{
			name: "wrong type",
			src:  `{insert: {type: User, shape: [{name: name, expr: {str: x}}, {name: age, expr: {str: y}}]}}`,
			code: diag.ErrCodeTypeMismatch,
			msg:  "invalid target for",
		},
		{
			name: "else without on",
			src:  `{insert: {type: User, shape: [{name: name, expr: {str: x}}], unless_conflict: {else: User}}}`,
			code: diag.ErrCodeInvalidConflict,
			msg:  "without ON cannot have an ELSE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := compileErr(t, tt.src)
			assert.Equal(t, tt.code, de.Code)
			assert.Contains(t, de.Message, tt.msg)
		})
	}
}

func TestCompileUnlessConflictOnInheritedConstraintElse(t *testing.T) {
	de := compileErr(t, `
insert:
  type: User
  shape: [{name: name, expr: {str: a}}]
  unless_conflict:
    on: .name
    else: User
`)
	assert.Equal(t, diag.KindUnsupported, de.Kind)
	assert.Equal(t, diag.ErrCodeUnsupported, de.Code)
	assert.Contains(t, de.Details, "reason")
}

func TestCompileUnlessConflictOnObjectConstraint(t *testing.T) {
	stmt := mustCompile(t, `
insert:
  type: Person
  shape:
    - {name: first, expr: {str: Ada}}
    - {name: last, expr: {str: Lovelace}}
  unless_conflict:
    on: {tuple: [.first, .last]}
    else: Person
`)

	oc := insertStmt(t, stmt).OnConflict
	require.NotNil(t, oc)
	assert.Equal(t, testutil.Name("Person"), oc.Subject)
	assert.Equal(t,
		schema.ObjectConstraintName(testutil.Name("Person"), schema.StdName("exclusive"), []string{"first", "last"}),
		oc.Constraint)
	assert.NotNil(t, oc.ElseIR)
	assert.False(t, ir.IsEmpty(oc.SelectIR))
}

func TestCompileUnlessConflictNeedsSingleConstraint(t *testing.T) {
	de := compileErr(t, `
insert:
  type: User
  shape: [{name: name, expr: {str: a}}]
  unless_conflict: {on: .email}
`)
	assert.Equal(t, diag.ErrCodeInvalidConflict, de.Code)
	assert.Contains(t, de.Message, "single exclusive constraint")
}

func TestCompileFingerprintIsStable(t *testing.T) {
	const src = `
select:
  result: {shape: {expr: User, elements: [name, email]}}
  filter: {binop: {op: "=", left: .name, right: {str: Alice}}}
`
	a := mustCompile(t, src, WithIDGenerator(ir.NewFixedGenerator("a")))
	b := mustCompile(t, src, WithIDGenerator(ir.NewFixedGenerator("b")))

	assert.NotEmpty(t, a.Fingerprint)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "b", b.ID)
}

func TestCompileFilterMustBeBool(t *testing.T) {
	de := compileErr(t, `{select: {result: User, filter: .name}}`)
	assert.Equal(t, diag.KindType, de.Kind)
	assert.Equal(t, diag.ErrCodeTypeMismatch, de.Code)
}
