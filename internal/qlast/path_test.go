package qlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
)

func TestParsePathForwardSteps(t *testing.T) {
	p, err := ParsePath("User.friends.name", diag.Span{})
	require.NoError(t, err)

	require.Len(t, p.Steps, 3)
	assert.False(t, p.Partial)
	root, ok := p.Steps[0].(*ObjectRef)
	require.True(t, ok)
	assert.Equal(t, "User", root.Name)
	assert.Empty(t, root.Module)

	friends := p.Steps[1].(*Ptr)
	assert.Equal(t, "friends", friends.Name)
	assert.Equal(t, qltypes.Outbound, friends.Direction)
	assert.False(t, friends.LinkProp)
}

func TestParsePathVariants(t *testing.T) {
	tests := []struct {
		src   string
		check func(t *testing.T, p *Path)
	}{
		{".name", func(t *testing.T, p *Path) {
			assert.True(t, p.Partial)
			require.Len(t, p.Steps, 1)
			assert.Equal(t, "name", p.Steps[0].(*Ptr).Name)
		}},
		{"Post.<author", func(t *testing.T, p *Path) {
			assert.Equal(t, qltypes.Inbound, p.Steps[1].(*Ptr).Direction)
		}},
		{"User.friends@since", func(t *testing.T, p *Path) {
			lp := p.Steps[2].(*Ptr)
			assert.True(t, lp.LinkProp)
			assert.Equal(t, "since", lp.Name)
		}},
		{"User.friends[is Admin]", func(t *testing.T, p *Path) {
			ti := p.Steps[2].(*TypeIntersection)
			assert.Equal(t, "Admin", ti.Type.Name)
		}},
		{"default::User.name", func(t *testing.T, p *Path) {
			ref := p.Steps[0].(*ObjectRef)
			assert.Equal(t, "default", ref.Module)
			assert.Equal(t, "User", ref.Name)
			assert.Equal(t, "default::User", ref.QualifiedName())
		}},
		{"__subject__.name", func(t *testing.T, p *Path) {
			assert.Equal(t, "__subject__", p.Steps[0].(*Anchor).Name)
		}},
		{"Straße.größe", func(t *testing.T, p *Path) {
			assert.Equal(t, "Straße", p.Steps[0].(*ObjectRef).Name)
			assert.Equal(t, "größe", p.Steps[1].(*Ptr).Name)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := ParsePath(tt.src, diag.Span{})
			require.NoError(t, err)
			tt.check(t, p)
			assert.Equal(t, tt.src, p.String())
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, src := range []string{"", "User.", "User..name", "User.friends[Admin]", "User.friends[is Admin", "User!"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParsePath(src, diag.Span{})
			require.Error(t, err)
			assert.True(t, diag.IsQuery(err))
			assert.Contains(t, err.Error(), "invalid path")
		})
	}
}

func TestParsePathSpans(t *testing.T) {
	p, err := ParsePath("User.name", diag.Span{Line: 3, Column: 5})
	require.NoError(t, err)

	assert.Equal(t, 3, p.Steps[0].Pos().Line)
	assert.Equal(t, 5, p.Steps[0].Pos().Column)
	assert.Equal(t, 9, p.Steps[1].Pos().Column)
}

func TestParseTypeName(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"int64", "int64"},
		{"std::str", "std::str"},
		{"array<int64>", "array<int64>"},
		{"array< std::int64 >", "array<std::int64>"},
		{"tuple<str, int64>", "tuple<str, int64>"},
		{"tuple<name: str, n: array<int64>>", "tuple<name: str, n: array<int64>>"},
		{"range<datetime>", "range<datetime>"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tn, err := ParseTypeName(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tn.String())
		})
	}
}

func TestParseTypeNameNamedElements(t *testing.T) {
	tn, err := ParseTypeName("tuple<a: str, b: int64>")
	require.NoError(t, err)

	assert.True(t, tn.IsCollection())
	require.Len(t, tn.Subtypes, 2)
	assert.Equal(t, "a", tn.Subtypes[0].ElementName)
	assert.Equal(t, "str", tn.Subtypes[0].Name)
	assert.Equal(t, "b", tn.Subtypes[1].ElementName)
}

func TestParseTypeNameErrors(t *testing.T) {
	for _, src := range []string{"", "array<int64", "array<int64>>", "tuple<,>"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseTypeName(src)
			assert.Error(t, err)
		})
	}
}
