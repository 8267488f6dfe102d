package polyres

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/testutil"
)

func typ(s *schema.Schema, name string) schema.Type {
	return s.MustType(schema.StdName(name))
}

func args(types ...schema.Type) []Arg[string] {
	out := make([]Arg[string], len(types))
	for i, t := range types {
		out[i] = Arg[string]{Value: t.DisplayName(), Type: t}
	}
	return out
}

func fns(s *schema.Schema, name string) []schema.Callable {
	return Candidates(s.Functions(schema.StdName(name)))
}

func TestFindCallableExactMatch(t *testing.T) {
	s := testutil.Schema()
	str := typ(s, "str")

	got, err := FindCallable(s, fns(s, "len"), args(str), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	call := got[0]
	assert.Equal(t, "char_length", call.Func.(*schema.Function).Impl)
	assert.Equal(t, 0, call.TotalDistance())
	assert.True(t, schema.Same(typ(s, "int64"), call.ReturnType))
	assert.Equal(t, positional(0), call.Args[0].Arg)
	assert.Equal(t, "std::str", call.Args[0].Value)
	assert.Equal(t, -1, call.VariadicArgID)
}

func TestFindCallableNoCandidate(t *testing.T) {
	s := testutil.Schema()
	got, err := FindCallable(s, fns(s, "len"), args(typ(s, "bool")), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = FindCallable(s, fns(s, "len"), args(typ(s, "str"), typ(s, "str")), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, got, "too many positional arguments")
}

func TestFindCallablePrefersShortestCast(t *testing.T) {
	s := testutil.Schema()
	plus := Candidates(s.Operators(schema.StdName("+"), qltypes.Infix))

	got, err := FindCallable(s, plus, args(typ(s, "int16"), typ(s, "int64")), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, schema.Same(typ(s, "int64"), got[0].ReturnType))
	assert.Equal(t, 2, got[0].TotalDistance())
}

func TestFindCallableIsOrderIndependent(t *testing.T) {
	s := testutil.Schema()
	plus := Candidates(s.Operators(schema.StdName("+"), qltypes.Infix))
	in := args(typ(s, "int32"), typ(s, "int16"))

	want, err := FindCallable(s, plus, in, nil, Options{})
	require.NoError(t, err)
	require.Len(t, want, 1)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := append([]schema.Callable(nil), plus...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := FindCallable(s, shuffled, in, nil, Options{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Same(t, want[0].Func, got[0].Func)
	}
}

func TestFindCallableAmbiguous(t *testing.T) {
	s := testutil.Schema()
	i64, f64 := typ(s, "int64"), typ(s, "float64")
	name := testutil.Name("pick")
	s = s.WithFunction(&schema.Function{Name: name, Return: i64,
		Parameters: []schema.Parameter{{Name: "a", Type: i64}, {Name: "b", Type: f64}}})
	s = s.WithFunction(&schema.Function{Name: name, Return: i64,
		Parameters: []schema.Parameter{{Name: "a", Type: f64}, {Name: "b", Type: i64}}})

	got, err := FindCallable(s, Candidates(s.Functions(name)), args(i64, i64), nil, Options{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindCallableAbstractCandidates(t *testing.T) {
	s := testutil.Schema()
	str := typ(s, "str")
	name := testutil.Name("describe")
	s = s.WithFunction(&schema.Function{Name: name, Return: str, Abstract: true,
		Parameters: []schema.Parameter{{Name: "v", Type: schema.AnyType}}})

	got, err := FindCallable(s, Candidates(s.Functions(name)), args(str), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, got, "abstract candidates are skipped outside abstract definitions")

	got, err = FindCallable(s, Candidates(s.Functions(name)), args(str), nil, Options{InAbstractDefinition: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, schema.MaxTypeDistance, got[0].TotalDistance())
}

func TestPolymorphicResolution(t *testing.T) {
	s := testutil.Schema()
	i64, i16 := typ(s, "int64"), typ(s, "int16")

	got, err := FindCallable(s, fns(s, "contains"), args(&schema.ArrayType{Element: i64}, i16), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	call := got[0]
	assert.Equal(t, "array_position", call.Func.(*schema.Function).Impl)
	assert.Equal(t, "array<std::int64>", call.Args[0].ParamType.DisplayName())
	assert.True(t, schema.Same(i64, call.Args[1].ParamType), "later bindings widen to the common castable type")
	assert.True(t, schema.Same(typ(s, "bool"), call.ReturnType))
}

func TestPolymorphicReturnType(t *testing.T) {
	s := testutil.Schema()
	str := typ(s, "str")

	got, err := FindCallable(s, fns(s, "array_agg"), args(str), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "array<std::str>", got[0].ReturnType.DisplayName())
}

func TestPolymorphicConflict(t *testing.T) {
	s := testutil.Schema()
	got, err := FindCallable(s, fns(s, "contains"),
		args(&schema.ArrayType{Element: typ(s, "int64")}, typ(s, "str")), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNamedOnlyDefaults(t *testing.T) {
	s := testutil.Schema()
	arr := &schema.ArrayType{Element: typ(s, "str")}
	i64 := typ(s, "int64")

	got, err := FindCallable(s, fns(s, "array_get"), args(arr, i64), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	call := got[0]
	assert.Equal(t, []string{"default"}, call.NullArgs)
	require.Len(t, call.Args, 3)
	def := call.Args[0]
	assert.True(t, def.IsDefault, "named-only parameters bind first")
	assert.True(t, def.Arg.IsNone())
	assert.True(t, schema.Same(typ(s, "str"), def.ParamType), "an empty anytype default takes the resolved base")
	assert.True(t, schema.Same(typ(s, "str"), call.ReturnType))

	got, err = FindCallable(s, fns(s, "array_get"), args(arr, i64),
		map[string]Arg[string]{"default": {Value: "x", Type: typ(s, "str")}}, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].NullArgs)
	assert.Equal(t, keyword("default"), got[0].Args[0].Arg)

	got, err = FindCallable(s, fns(s, "array_get"), args(arr, i64),
		map[string]Arg[string]{"fallback": {Type: typ(s, "str")}}, Options{})
	require.NoError(t, err)
	assert.Empty(t, got, "unknown keyword arguments reject the candidate")
}

func TestUnresolvedAnytypeDefault(t *testing.T) {
	s := testutil.Schema()
	name := testutil.Name("first_or")
	s = s.WithFunction(&schema.Function{Name: name, Return: typ(s, "str"), Parameters: []schema.Parameter{
		{Name: "s", Type: typ(s, "str")},
		{Name: "fallback", Type: schema.AnyType, Kind: qltypes.NamedOnlyParam, Default: &qlast.Set{}},
	}})

	_, err := FindCallable(s, Candidates(s.Functions(name)), args(typ(s, "str")), nil, Options{})
	require.Error(t, err)
	assert.True(t, diag.IsQuery(err))
	assert.Contains(t, err.Error(), `could not resolve "anytype" type for the $fallback parameter`)
}

func TestVariadic(t *testing.T) {
	s := testutil.Schema()
	json, str := typ(s, "json"), typ(s, "str")

	got, err := FindCallable(s, fns(s, "json_get"), args(json, str, str), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	call := got[0]
	assert.Equal(t, 1, call.VariadicArgID)
	assert.Equal(t, 2, call.VariadicArgCount)
	require.Len(t, call.Args, 4)
	assert.True(t, call.Args[0].IsDefault)
	assert.True(t, schema.Same(str, call.Args[2].ParamType))
	assert.Equal(t, positional(2), call.Args[3].Arg)

	got, err = FindCallable(s, fns(s, "json_get"), args(json), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].VariadicArgID)
	assert.Equal(t, 0, got[0].VariadicArgCount)
}

func TestInlinedDefaultsBitmask(t *testing.T) {
	s := testutil.Schema()
	i64 := typ(s, "int64")

	got, err := FindCallable(s, fns(s, "range"), args(i64, i64), nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	call := got[0]
	require.NotEmpty(t, call.Args)
	assert.True(t, call.Args[0].IsBitmask())
	assert.True(t, schema.Same(typ(s, "bytes"), call.Args[0].ParamType))
	// inc_lower, inc_upper and empty are omitted.
	assert.Equal(t, []byte{0b111}, call.DefaultsMask)
	assert.Equal(t, []string{"inc_lower", "inc_upper", "empty"}, call.NullArgs)
	assert.Equal(t, "range<std::int64>", call.ReturnType.DisplayName())
}

func TestNoParameterFunction(t *testing.T) {
	s := testutil.Schema()
	got, err := FindCallable[string](s, fns(s, "random"), nil, nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Args)

	got, err = FindCallable(s, fns(s, "random"), args(typ(s, "int64")), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindCallableTypemods(t *testing.T) {
	s := testutil.Schema()

	mods, err := FindCallableTypemods(s, fns(s, "count"), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, qltypes.SetOfType, mods[positional(0)])

	coalesce := Candidates(s.Operators(schema.StdName("??"), qltypes.Infix))
	mods, err = FindCallableTypemods(s, coalesce, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, qltypes.OptionalType, mods[positional(0)])
	assert.Equal(t, qltypes.SetOfType, mods[positional(1)])

	mods, err = FindCallableTypemods(s, fns(s, "array_get"), 2, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, qltypes.SingletonType, mods[positional(0)])
	assert.Equal(t, qltypes.OptionalType, mods[keyword("default")])

	mods, err = FindCallableTypemods(s, fns(s, "len"), 3, nil)
	require.NoError(t, err)
	assert.Len(t, mods, 3, "unmatched calls fall back to singleton placeholders")
}

func TestFindCallableTypemodsConflict(t *testing.T) {
	s := testutil.Schema()
	name := testutil.Name("odd")
	str := typ(s, "str")
	s = s.WithFunction(&schema.Function{Name: name, Return: str,
		Parameters: []schema.Parameter{{Name: "a", Type: str}}})
	s = s.WithFunction(&schema.Function{Name: name, Return: str,
		Parameters: []schema.Parameter{{Name: "a", Type: typ(s, "int64"), Typemod: qltypes.SetOfType}}})

	_, err := FindCallableTypemods(s, Candidates(s.Functions(name)), 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument could be SET OF or not")
}

func TestArgKeyString(t *testing.T) {
	assert.Equal(t, "$0", positional(0).String())
	assert.Equal(t, "$default", keyword("default").String())
	assert.Equal(t, "<none>", NoArg.String())
}
