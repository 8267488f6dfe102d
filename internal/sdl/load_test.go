package sdl

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/testutil"
)

// pointerView is the comparable part of a pointer.
type pointerView struct {
	Key         string
	Target      string
	Cardinality qltypes.SchemaCardinality
	Required    bool
	Computed    bool
	Owned       bool
	Bases       []string
	Constraints []string
	LinkProps   []string
}

func viewPointers(s *schema.Schema, obj *schema.ObjectType) []pointerView {
	var out []pointerView
	add := func(p *schema.Pointer) {
		v := pointerView{
			Key:         p.Key(),
			Target:      p.Target.DisplayName(),
			Cardinality: p.Cardinality,
			Required:    p.Required,
			Computed:    p.Computed,
			Owned:       p.Owned,
			Bases:       p.Bases,
			LinkProps:   p.LinkProps,
		}
		for _, c := range p.Constraints {
			v.Constraints = append(v.Constraints, c.String())
		}
		out = append(out, v)
	}
	for _, p := range s.Pointers(obj) {
		add(p)
		for _, lp := range p.LinkProps {
			if prop, ok := s.LinkProperty(p, lp); ok {
				add(prop)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func constraintNames(s *schema.Schema, subject schema.Name) []string {
	var out []string
	for _, c := range s.ConstraintsOf(subject) {
		out = append(out, c.Name.String())
	}
	return out
}

func TestLoadDirMatchesFixture(t *testing.T) {
	res, err := LoadDir(filepath.Join("testdata", "schema"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)
	assert.Equal(t, schema.DefaultModule, res.Module)

	want := testutil.Schema()
	assert.Equal(t, want.TypeNamesInModule(schema.DefaultModule), res.Schema.TypeNamesInModule(schema.DefaultModule))

	for _, name := range []string{"Named", "User", "Admin", "Org", "Post", "Person"} {
		t.Run(name, func(t *testing.T) {
			wantObj := testutil.ObjectType(want, name)
			gotObj := testutil.ObjectType(res.Schema, name)
			assert.Equal(t, wantObj.Abstract, gotObj.Abstract)
			assert.Equal(t, wantObj.Bases, gotObj.Bases)
			assert.ElementsMatch(t, wantObj.Pointers, gotObj.Pointers)

			if diff := cmp.Diff(viewPointers(want, wantObj), viewPointers(res.Schema, gotObj)); diff != "" {
				t.Errorf("pointers mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(constraintNames(want, wantObj.Name), constraintNames(res.Schema, gotObj.Name)); diff != "" {
				t.Errorf("constraints mismatch (-want +got):\n%s", diff)
			}
		})
	}

	color, ok := res.Schema.ScalarType(testutil.Name("Color"))
	require.True(t, ok)
	assert.Equal(t, []string{"Red", "Green", "Blue"}, color.EnumValues)
	assert.Equal(t, []schema.Name{schema.StdName("anyenum")}, color.Bases)
}

func TestLoadFixtureFile(t *testing.T) {
	res, err := Load(filepath.Join("testdata", "schema", "fixture.cue"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)

	p, ok := res.Schema.Pointer(testutil.Name("User"), "friend_names")
	require.True(t, ok)
	assert.True(t, p.Computed)
	assert.NotNil(t, p.Expr)
	assert.Zero(t, p.Cardinality)
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(filepath.Join("testdata", "missing"))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)

	_, err = LoadDir(t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoFiles, ErrorCode(err))
}

func TestLoadStringWithoutSchema(t *testing.T) {
	_, err := LoadString(`other: 1`, "x.cue")
	require.Error(t, err)
	assert.Equal(t, ErrCodeBuildFailed, ErrorCode(err))
}

func TestBuildValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		code    string
		message string
	}{
		{
			name: "inheritance cycle",
			src: `schema: types: {
				A: extending: ["B"]
				B: extending: ["A"]
			}`,
			code:    ErrCodeInheritanceCycle,
			message: "inheritance cycle: A -> B -> A",
		},
		{
			name:    "self extension",
			src:     `schema: types: A: extending: ["A"]`,
			code:    ErrCodeInheritanceCycle,
			message: "inheritance cycle: A -> A",
		},
		{
			name:    "unknown base",
			src:     `schema: types: A: extending: ["Missing"]`,
			code:    ErrCodeUnknownType,
			message: "extends unknown object type std::Missing",
		},
		{
			name:    "unknown link target",
			src:     `schema: types: A: links: owner: target: "Nope"`,
			code:    ErrCodeUnknownType,
			message: "Nope",
		},
		{
			name: "property targeting object",
			src: `schema: types: {
				A: properties: b: type: "B"
				B: {}
			}`,
			code:    ErrCodeInvalidPointer,
			message: "declare it under links",
		},
		{
			name:    "link targeting scalar",
			src:     `schema: types: A: links: b: target: "str"`,
			code:    ErrCodeInvalidPointer,
			message: "must target an object type",
		},
		{
			name:    "bad computed expression",
			src:     `schema: types: A: properties: b: {type: "str", expr: "{select: "}`,
			code:    ErrCodeInvalidExpr,
			message: "invalid expression",
		},
		{
			name:    "constraint on unknown pointer",
			src:     `schema: types: A: constraints: [{exclusive: ["nope"]}]`,
			code:    ErrCodeInvalidConstraint,
			message: "unknown pointer nope",
		},
		{
			name:    "std module",
			src:     `schema: module: "std"`,
			code:    ErrCodeInvalidType,
			message: "module must be",
		},
		{
			name:    "scalar without base",
			src:     `schema: scalars: Slug: {}`,
			code:    ErrCodeInvalidType,
			message: "must extend a scalar",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadString(tt.src, "schema.cue")
			require.Error(t, err)
			errs := Errors(err)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, ErrorCode(errs[0]))
			assert.Contains(t, errs[0].Error(), tt.message)
		})
	}
}

func TestBuildReportsEveryError(t *testing.T) {
	_, err := LoadString(`schema: types: A: links: {
		b: target: "Missing1"
		c: target: "Missing2"
	}`, "schema.cue")
	require.Error(t, err)
	errs := Errors(err)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, ErrCodeUnknownType, ErrorCode(e))
	}
}

func TestBuildCallablesAndCasts(t *testing.T) {
	res, err := LoadString(`schema: {
		module: "app"
		scalars: {
			Color: enum: ["Red", "Blue"]
			Slug: extending: ["str"]
		}
		casts: [{from: "str", to: "Color", implicit: true}]
		functions: slugify: [{
			params: [{name: "s", type: "str"}, {name: "sep", type: "str", kind: "named", default: "{str: '-'}"}]
			return: "Slug"
			volatility: "immutable"
		}]
		operators: [{
			name: "++"
			params: [{name: "l", type: "Color"}, {name: "r", type: "Color"}]
			return: "array<Color>"
		}]
	}`, "schema.cue")
	require.NoError(t, err)
	assert.Equal(t, "app", res.Module)
	s := res.Schema

	str := s.MustType(schema.StdName("str"))
	color := s.MustType(schema.NewName("app", "Color"))
	cast, ok := s.FindCast(str, color)
	require.True(t, ok)
	assert.True(t, cast.Implicit)
	assert.True(t, cast.Assignment)

	slug, ok := s.ScalarType(schema.NewName("app", "Slug"))
	require.True(t, ok)
	assert.Equal(t, []schema.Name{schema.StdName("str")}, slug.Bases)

	fns := s.Functions(schema.NewName("app", "slugify"))
	require.Len(t, fns, 1)
	fn := fns[0]
	require.Len(t, fn.Parameters, 2)
	assert.Equal(t, qltypes.NamedOnlyParam, fn.Parameters[1].Kind)
	assert.True(t, fn.Parameters[1].HasDefault())
	assert.Equal(t, "app::Slug", fn.Return.DisplayName())

	ops := s.Operators(schema.StdName("++"), qltypes.Infix)
	var found bool
	for _, op := range ops {
		if op.Return.DisplayName() == "array<app::Color>" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildRejectsBadCallables(t *testing.T) {
	_, err := LoadString(`schema: {
		functions: f: [{params: [{name: "a", type: "str", kind: "variadic"}, {name: "b", type: "str"}], return: "str"}]
		operators: [{name: "!", kind: "prefix", params: [], return: "bool"}]
	}`, "schema.cue")
	require.Error(t, err)
	errs := Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "variadic parameter a must be last")
	assert.Contains(t, errs[1].Error(), "takes 1 operands")
}

func TestDigestTracksSources(t *testing.T) {
	a, err := LoadString(`schema: types: A: {}`, "a.cue")
	require.NoError(t, err)
	b, err := LoadString(`schema: types: A: {}`, "b.cue")
	require.NoError(t, err)
	c, err := LoadString(`schema: types: B: {}`, "a.cue")
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, c.Digest)

	d1, err := LoadDir(filepath.Join("testdata", "schema"))
	require.NoError(t, err)
	d2, err := LoadDir(filepath.Join("testdata", "schema"))
	require.NoError(t, err)
	assert.Len(t, d1.Digest, 64)
	assert.Equal(t, d1.Digest, d2.Digest)
}
