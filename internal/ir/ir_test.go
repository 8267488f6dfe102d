package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/testutil"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"string", Str("hello"), `"hello"`},
		{"int", Int(-100), "-100"},
		{"bool", Bool(true), "true"},
		{"empty list", List{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"sorted keys", Object{"zebra": Int(1), "alpha": Int(2)}, `{"alpha":2,"zebra":1}`},
		{"nested", Object{"z": Object{"b": Int(1), "a": Int(2)}, "a": List{Str("x")}}, `{"a":["x"],"z":{"a":2,"b":1}}`},
		{"no html escaping", Str("a < b && c > d"), `"a < b && c > d"`},
		{"control characters", Str("a\nb\t\"c\"\\"), `"a\nb\t\"c\"\\"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	obj := Object{"\uE000": Int(1), "\U00010000": Int(2)}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(Object{decomposed: Str(decomposed)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":\"\u00e9\"}", string(got))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	got, err := MarshalCanonical(Str("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	got, err = MarshalCanonical(Str(`literal \u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"literal \\u2028"`, string(got), "an escaped backslash is kept")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(Null{})
	assert.ErrorIs(t, err, ErrNotCanonical)

	_, err = MarshalCanonical(Object{"a": List{Null{}}})
	assert.ErrorIs(t, err, ErrNotCanonical)
}

func TestMarshalValueAllowsNull(t *testing.T) {
	got, err := MarshalValue(Object{"b": Null{}, "a": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":null}`, string(got))
}

func TestObjSkipsNilFields(t *testing.T) {
	obj := Obj(F("a", Int(1)), F("b", nil))
	assert.Equal(t, []string{"a"}, obj.SortedKeys())
}

// userName builds the IR for User.name by hand.
func userName(t *testing.T) *Statement {
	t.Helper()
	s := testutil.Schema()
	user := testutil.ObjectType(s, "User")
	str := s.MustType(schema.StdName("str"))
	ptr, ok := s.Pointer(testutil.Name("User"), "name")
	require.True(t, ok)

	root := &Set{PathID: pathid.FromType(user), Type: user, Expr: &TypeRoot{Type: user}}
	ref := &pathid.PtrRef{Name: "name", Key: ptr.Key(), Source: user, Target: str, Cardinality: qltypes.SchemaOne}
	name := &Set{
		PathID: root.PathID.MustExtend(ref, qltypes.Outbound, str),
		Type:   str,
		Expr:   &PathStep{Source: root, Ptr: ref, Direction: qltypes.Outbound},
	}
	sel := &Set{
		PathID: name.PathID,
		Type:   str,
		Expr:   &SelectStmt{Result: name, Implicit: true},
	}
	return &Statement{
		Expr:        sel,
		Cardinality: qltypes.Many,
		SchemaRefs:  []schema.Name{testutil.Name("User")},
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a, err := Fingerprint(userName(t))
	require.NoError(t, err)
	b, err := Fingerprint(userName(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other := userName(t)
	other.Cardinality = qltypes.One
	c, err := Fingerprint(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEncodeReferencesSharedSets(t *testing.T) {
	stmt := userName(t)
	enc, err := Encode(stmt)
	require.NoError(t, err)

	expr := enc["expr"].(Object)
	assert.Equal(t, Int(1), expr["id"])
	sel := expr["expr"].(Object)
	assert.Equal(t, Str("select"), sel["kind"])
	result := sel["result"].(Object)
	step := result["expr"].(Object)
	assert.Equal(t, Str("name"), step["ptr"])
	_, hasWhere := sel["where"]
	assert.False(t, hasWhere, "absent clauses are omitted")

	// The same set appearing twice is encoded once.
	step0 := stmt.Expr.Expr.(*SelectStmt).Result
	stmt.Expr.Expr.(*SelectStmt).Where = step0
	enc, err = Encode(stmt)
	require.NoError(t, err)
	where := enc["expr"].(Object)["expr"].(Object)["where"].(Object)
	assert.Equal(t, Object{"ref": Int(2)}, where)
}

func TestQueryKey(t *testing.T) {
	a, err := QueryKey("select User", "7", Obj(F("module", Str("default"))))
	require.NoError(t, err)
	b, err := QueryKey("select User", "8", Obj(F("module", Str("default"))))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, hashWithDomain(DomainQuery, []byte("x")), hashWithDomain(DomainStatement, []byte("x")))
}

func TestWalkVisitsSharedSetsOnce(t *testing.T) {
	stmt := userName(t)
	sel := stmt.Expr.Expr.(*SelectStmt)
	sel.Where = sel.Result

	var visited []string
	Walk(stmt.Expr, func(s *Set) bool {
		visited = append(visited, s.PathID.Pformat())
		return true
	})
	assert.Equal(t, []string{"User.name", "User.name", "User"}, visited)

	var top []string
	Walk(stmt.Expr, func(s *Set) bool {
		top = append(top, s.PathID.Pformat())
		return false
	})
	assert.Len(t, top, 1)
}

func TestIsEmpty(t *testing.T) {
	empty := &Set{Expr: &EmptySet{}}
	assert.True(t, IsEmpty(empty))
	assert.True(t, IsEmpty(&Set{Expr: &TypeCast{Expr: empty}}))
	assert.False(t, IsEmpty(&Set{Expr: &Constant{Kind: IntegerConst, Value: "1"}}))
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
}
