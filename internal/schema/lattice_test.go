package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func std(t *testing.T, name string) Type {
	t.Helper()
	typ, ok := Std().Type(StdName(name))
	require.True(t, ok, "std::%s", name)
	return typ
}

func TestIsSubclass(t *testing.T) {
	s := Std()
	i64, anyint, anyreal, str := std(t, "int64"), std(t, "anyint"), std(t, "anyreal"), std(t, "str")

	assert.True(t, s.IsSubclass(i64, i64))
	assert.True(t, s.IsSubclass(i64, anyint))
	assert.True(t, s.IsSubclass(i64, anyreal))
	assert.True(t, s.IsSubclass(i64, AnyType))
	assert.False(t, s.IsSubclass(anyint, i64))
	assert.False(t, s.IsSubclass(str, anyreal))

	assert.True(t, s.IsSubclass(&ArrayType{Element: i64}, &ArrayType{Element: anyint}))
	assert.False(t, s.IsSubclass(&ArrayType{Element: str}, &ArrayType{Element: anyint}))
	assert.True(t, s.IsSubclass(NewTuple(i64, str), AnyTuple))
	assert.False(t, s.IsSubclass(NewTuple(i64), NewTuple(i64, str)))
}

func TestImplicitCastDistance(t *testing.T) {
	s := Std()
	tests := []struct {
		from, to string
		want     int
	}{
		{"int16", "int16", 0},
		{"int16", "int32", 1},
		{"int16", "int64", 2},
		{"int16", "float64", 2},
		{"int64", "decimal", 2},
		{"int64", "int32", -1},
		{"str", "int64", -1},
		{"json", "str", -1},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ImplicitCastDistance(std(t, tt.from), std(t, tt.to)))
		})
	}

	arr16, arr64 := &ArrayType{Element: std(t, "int16")}, &ArrayType{Element: std(t, "int64")}
	assert.Equal(t, 2, s.ImplicitCastDistance(arr16, arr64))
	assert.Equal(t, -1, s.ImplicitCastDistance(arr64, arr16))

	rng := &RangeType{Element: std(t, "int32")}
	mr := &MultirangeType{Element: std(t, "int64")}
	assert.Equal(t, 2, s.ImplicitCastDistance(rng, mr))
}

func TestFindCommonImplicitlyCastableType(t *testing.T) {
	s := Std()
	tests := []struct {
		a, b string
		want string
	}{
		{"int32", "int64", "std::int64"},
		{"int64", "int32", "std::int64"},
		{"int64", "float32", "std::float64"},
		{"int16", "decimal", "std::decimal"},
		{"str", "str", "std::str"},
	}
	for _, tt := range tests {
		t.Run(tt.a+"+"+tt.b, func(t *testing.T) {
			got := s.FindCommonImplicitlyCastableType(std(t, tt.a), std(t, tt.b))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.DisplayName())
		})
	}

	assert.Nil(t, s.FindCommonImplicitlyCastableType(std(t, "str"), std(t, "int64")))

	got := s.FindCommonImplicitlyCastableType(&ArrayType{Element: std(t, "int16")}, &ArrayType{Element: std(t, "int32")})
	require.NotNil(t, got)
	assert.Equal(t, "array<std::int32>", got.DisplayName())
}

func TestPolymorphicMatching(t *testing.T) {
	s := Std()
	i64, str := std(t, "int64"), std(t, "str")
	anyArr := &ArrayType{Element: AnyType}

	assert.True(t, IsPolymorphic(anyArr))
	assert.True(t, IsPolymorphic(std(t, "anyreal")))
	assert.False(t, IsPolymorphic(&ArrayType{Element: i64}))

	assert.True(t, s.TestPolymorphic(&ArrayType{Element: i64}, anyArr))
	assert.False(t, s.TestPolymorphic(i64, anyArr))
	assert.True(t, s.TestPolymorphic(i64, std(t, "anyint")))
	assert.False(t, s.TestPolymorphic(str, std(t, "anyint")))
	assert.True(t, s.TestPolymorphic(NewTuple(i64, str), AnyTuple))

	assert.Equal(t, "std::int64", s.ResolvePolymorphic(anyArr, &ArrayType{Element: i64}).DisplayName())
	assert.Nil(t, s.ResolvePolymorphic(anyArr, NewTuple(i64)))
	assert.Equal(t, "array<std::str>", s.ToNonPolymorphic(anyArr, str).DisplayName())
	assert.Equal(t, "tuple<std::int64, std::str>", s.ToNonPolymorphic(NewTuple(i64, AnyType), str).DisplayName())
}

func TestCommonParentTypeDistance(t *testing.T) {
	s := Std()
	i64 := std(t, "int64")

	assert.Equal(t, 0, s.CommonParentTypeDistance(i64, i64))
	assert.Equal(t, 1, s.CommonParentTypeDistance(i64, std(t, "anyint")))
	assert.Equal(t, MaxTypeDistance, s.CommonParentTypeDistance(i64, AnyType))
	assert.Equal(t, -1, s.CommonParentTypeDistance(i64, &ArrayType{Element: i64}))
}

func TestNearestCommonAncestors(t *testing.T) {
	s := fixture(t)
	user, _ := s.ObjectType(NewName("default", "User"))
	org, _ := s.ObjectType(NewName("default", "Org"))
	named, _ := s.ObjectType(NewName("default", "Named"))

	nca := s.NearestCommonAncestors([]Type{user, org})
	require.Len(t, nca, 1)
	assert.True(t, Same(named, nca[0]))

	assert.True(t, Same(user, s.NearestCommonAncestor([]Type{user, user})))

	var names []string
	for _, d := range s.Descendants(named) {
		names = append(names, d.DisplayName())
	}
	assert.Equal(t, []string{"default::Org", "default::User"}, names)
}

func TestBaseForCastUsesAnyenumForEnums(t *testing.T) {
	s := Std().WithType(&ScalarType{
		Name:       NewName("default", "Color"),
		Bases:      []Name{StdName("anyenum")},
		EnumValues: []string{"Red", "Green"},
	})
	color, _ := s.Type(NewName("default", "Color"))

	assert.Equal(t, "std::anyenum", s.BaseForCast(color).DisplayName())
	assert.Equal(t, "std::str", s.BaseForCast(std(t, "str")).DisplayName())
}
