package testutil

import (
	"sync"

	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

var (
	fixtureOnce   sync.Once
	fixtureSchema *schema.Schema
)

// Schema returns the fixture schema shared by the package tests. The same
// schema ships as CUE in internal/sdl/testdata/schema/fixture.cue.
//
//	abstract type Named extending std::Object {
//	    required single property name -> str { constraint exclusive }
//	}
//	type User extending Named {
//	    single property email -> str
//	    single property age -> int64
//	    multi link friends -> User { property since -> datetime }
//	    single link best_friend -> User
//	    property friend_names := .friends.name
//	}
//	type Admin extending User { single property level -> int64 }
//	type Org extending Named { multi link members -> User }
//	type Post { required title: str; required author -> User; tags: array<str>; data: json }
//	type Person { first: str; last: str; constraint exclusive on (.first, .last) }
//	scalar type Color extending enum<Red, Green, Blue>
func Schema() *schema.Schema {
	fixtureOnce.Do(func() {
		fixtureSchema = buildSchema()
	})
	return fixtureSchema
}

// Name is shorthand for a name in the default module.
func Name(name string) schema.Name {
	return schema.NewName(schema.DefaultModule, name)
}

// ObjectType looks up a fixture object type and panics if it is missing.
func ObjectType(s *schema.Schema, name string) *schema.ObjectType {
	t, ok := s.ObjectType(Name(name))
	if !ok {
		panic("testutil: no object type " + name)
	}
	return t
}

func buildSchema() *schema.Schema {
	s := schema.Std()
	str := s.MustType(schema.StdName("str"))
	i64 := s.MustType(schema.StdName("int64"))
	object := schema.StdName("Object")
	exclusive := schema.StdName("exclusive")

	named, user, admin, org, post, person := Name("Named"), Name("User"), Name("Admin"), Name("Org"), Name("Post"), Name("Person")

	s = s.WithType(&schema.ObjectType{Name: named, Bases: []schema.Name{object}, Abstract: true})
	s = s.WithType(&schema.ObjectType{Name: user, Bases: []schema.Name{named}})
	s = s.WithType(&schema.ObjectType{Name: admin, Bases: []schema.Name{user}})
	s = s.WithType(&schema.ObjectType{Name: org, Bases: []schema.Name{named}})
	s = s.WithType(&schema.ObjectType{Name: post, Bases: []schema.Name{object}})
	s = s.WithType(&schema.ObjectType{Name: person, Bases: []schema.Name{object}})
	s = s.WithType(&schema.ScalarType{
		Name:       Name("Color"),
		Bases:      []schema.Name{schema.StdName("anyenum")},
		EnumValues: []string{"Red", "Green", "Blue"},
	})
	userType := s.MustType(user)

	prop := func(src schema.Name, short string, t schema.Type, card qltypes.SchemaCardinality, required bool) {
		s = s.WithPointer(&schema.Pointer{ShortName: short, Source: src, Target: t,
			Cardinality: card, Required: required, Owned: true})
	}

	prop(named, "name", str, qltypes.SchemaOne, true)
	s = s.WithConstraint(&schema.Constraint{
		Name:           schema.ConstraintName(named, "name", exclusive),
		Base:           exclusive,
		Subject:        named,
		SubjectPointer: "name",
		Owned:          true,
	})

	prop(user, "email", str, qltypes.SchemaOne, false)
	prop(user, "age", i64, qltypes.SchemaOne, false)
	prop(user, "friends", userType, qltypes.SchemaMany, false)
	s = s.WithPointer(&schema.Pointer{
		ShortName:   "since",
		Source:      user,
		Link:        schema.PointerKey(user, "friends"),
		Target:      s.MustType(schema.StdName("datetime")),
		Cardinality: qltypes.SchemaOne,
		Owned:       true,
	})
	prop(user, "best_friend", userType, qltypes.SchemaOne, false)
	s = s.WithPointer(&schema.Pointer{
		ShortName: "friend_names",
		Source:    user,
		Target:    str,
		Computed:  true,
		Expr:      qlast.MustParseExpr(".friends.name"),
		Owned:     true,
	})

	prop(admin, "level", i64, qltypes.SchemaOne, false)
	prop(org, "members", userType, qltypes.SchemaMany, false)

	prop(post, "title", str, qltypes.SchemaOne, true)
	prop(post, "author", userType, qltypes.SchemaOne, true)
	prop(post, "tags", &schema.ArrayType{Element: str}, qltypes.SchemaOne, false)
	prop(post, "data", s.MustType(schema.StdName("json")), qltypes.SchemaOne, false)

	prop(person, "first", str, qltypes.SchemaOne, false)
	prop(person, "last", str, qltypes.SchemaOne, false)
	s = s.WithConstraint(&schema.Constraint{
		Name:            schema.ObjectConstraintName(person, exclusive, []string{"first", "last"}),
		Base:            exclusive,
		Subject:         person,
		SubjectPointers: []string{"first", "last"},
		Owned:           true,
	})

	out, err := s.MaterializeInheritance()
	if err != nil {
		panic("testutil: building fixture schema: " + err.Error())
	}
	return out
}
