package schema

import (
	"sync"

	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
)

var (
	stdOnce   sync.Once
	stdSchema *Schema
)

// Std returns the standard library schema: builtin scalars, std::Object,
// casts, functions, operators and std::exclusive. The value is shared;
// callers layer their own types on top with the With* methods.
func Std() *Schema {
	stdOnce.Do(func() {
		s, err := buildStd().MaterializeInheritance()
		if err != nil {
			panic("schema: building std: " + err.Error())
		}
		stdSchema = s
	})
	return stdSchema
}

type stdBuilder struct {
	s *Schema
}

func (b *stdBuilder) scalar(name string, abstract bool, bases ...string) *ScalarType {
	names := make([]Name, len(bases))
	for i, base := range bases {
		names[i] = StdName(base)
	}
	t := &ScalarType{Name: StdName(name), Bases: names, Abstract: abstract}
	b.s = b.s.WithType(t)
	return t
}

func (b *stdBuilder) t(name string) Type {
	return b.s.MustType(StdName(name))
}

func (b *stdBuilder) cast(from, to Type, implicit, assignment bool, fn string) {
	b.s = b.s.WithCast(&Cast{From: from, To: to, Implicit: implicit, Assignment: assignment, Function: fn})
}

func (b *stdBuilder) fn(f *Function) {
	b.s = b.s.WithFunction(f)
}

func (b *stdBuilder) op(name string, kind qltypes.OperatorKind, ret Type, retMod qltypes.TypeModifier, params ...Parameter) {
	b.s = b.s.WithOperator(&Operator{
		Name:       StdName(name),
		Kind:       kind,
		Parameters: params,
		Return:     ret,
		ReturnMod:  retMod,
		Impl:       name,
	})
}

func param(name string, t Type) Parameter {
	return Parameter{Name: name, Type: t}
}

func optParam(name string, t Type) Parameter {
	return Parameter{Name: name, Type: t, Typemod: qltypes.OptionalType}
}

func setParam(name string, t Type) Parameter {
	return Parameter{Name: name, Type: t, Typemod: qltypes.SetOfType}
}

func emptyDefault() qlast.Expr {
	return &qlast.Set{}
}

func boolDefault(v bool) qlast.Expr {
	return &qlast.BooleanConstant{Value: v}
}

var numericTypes = []string{"int16", "int32", "int64", "bigint", "float32", "float64", "decimal"}

func buildStd() *Schema {
	b := &stdBuilder{s: New()}

	b.s = b.s.WithType(AnyType).WithType(AnyTuple)

	b.scalar("anyscalar", true)
	b.scalar("anyreal", true, "anyscalar")
	b.scalar("anyint", true, "anyreal")
	b.scalar("anyfloat", true, "anyreal")
	b.scalar("anypoint", true, "anyscalar")
	b.scalar("anydiscrete", true, "anypoint")
	b.scalar("anycontiguous", true, "anypoint")
	b.scalar("anyenum", true, "anyscalar")

	for _, n := range []string{"int16", "int32", "int64"} {
		b.scalar(n, false, "anyint", "anydiscrete")
	}
	b.scalar("bigint", false, "anyint")
	b.scalar("float32", false, "anyfloat", "anycontiguous")
	b.scalar("float64", false, "anyfloat", "anycontiguous")
	b.scalar("decimal", false, "anyreal", "anycontiguous")
	for _, n := range []string{"str", "bool", "uuid", "json", "bytes", "duration"} {
		b.scalar(n, false, "anyscalar")
	}
	b.scalar("datetime", false, "anycontiguous")

	baseObject := &ObjectType{Name: StdName("BaseObject"), Abstract: true}
	object := &ObjectType{Name: StdName("Object"), Abstract: true, Bases: []Name{baseObject.Name}}
	b.s = b.s.WithType(baseObject).WithType(object)
	b.s = b.s.WithPointer(&Pointer{
		ShortName:   "id",
		Source:      baseObject.Name,
		Target:      b.t("uuid"),
		Cardinality: qltypes.SchemaOne,
		Required:    true,
		Readonly:    true,
		Owned:       true,
	})
	b.s = b.s.WithConstraint(&Constraint{Name: StdName("exclusive"), Base: StdName("exclusive"), Abstract: true})
	b.s = b.s.WithConstraint(&Constraint{
		Name:           ConstraintName(baseObject.Name, "id", StdName("exclusive")),
		Base:           StdName("exclusive"),
		Subject:        baseObject.Name,
		SubjectPointer: "id",
		Owned:          true,
		Delegated:      true,
	})

	// Implicit cast ladder.
	for _, c := range [][2]string{
		{"int16", "int32"}, {"int32", "int64"}, {"int64", "bigint"}, {"bigint", "decimal"},
		{"int16", "float32"}, {"int32", "float64"}, {"int64", "float64"}, {"float32", "float64"},
	} {
		b.cast(b.t(c[0]), b.t(c[1]), true, true, "")
	}
	for _, c := range [][2]string{{"int64", "int32"}, {"int64", "int16"}, {"int32", "int16"}, {"float64", "float32"}} {
		b.cast(b.t(c[0]), b.t(c[1]), false, true, "")
	}
	for _, c := range [][2]string{{"float64", "int64"}, {"decimal", "float64"}, {"bigint", "int64"}, {"float32", "int32"}} {
		b.cast(b.t(c[0]), b.t(c[1]), false, false, "")
	}

	str, json := b.t("str"), b.t("json")
	for _, n := range append(numericTypes, "bool", "uuid", "datetime", "duration") {
		b.cast(str, b.t(n), false, false, "")
		b.cast(b.t(n), str, false, false, "")
		b.cast(json, b.t(n), false, false, "json_to_"+n)
		b.cast(b.t(n), json, false, false, "to_jsonb")
	}
	b.cast(json, str, false, false, "json_to_str")
	b.cast(str, json, false, false, "to_jsonb")
	b.cast(b.t("anyenum"), str, false, false, "")
	b.cast(str, b.t("anyenum"), false, false, "")
	b.cast(json, &ArrayType{Element: json}, false, false, "json_to_array")
	b.cast(&ArrayType{Element: AnyType}, json, false, false, "to_jsonb")
	b.cast(AnyTuple, json, false, false, "to_jsonb")
	b.cast(b.t("uuid"), b.t("bytes"), false, false, "")

	buildStdFunctions(b)
	buildStdOperators(b)
	return b.s
}

func buildStdFunctions(b *stdBuilder) {
	str, json, i64, boolean := b.t("str"), b.t("json"), b.t("int64"), b.t("bool")
	anypoint, anydiscrete := b.t("anypoint"), b.t("anydiscrete")
	arr := &ArrayType{Element: AnyType}

	b.fn(&Function{Name: StdName("count"), Parameters: []Parameter{setParam("s", AnyType)}, Return: i64, Impl: "count"})
	for _, n := range []string{"int64", "bigint", "float64", "decimal"} {
		b.fn(&Function{Name: StdName("sum"), Parameters: []Parameter{setParam("s", b.t(n))}, Return: b.t(n), Impl: "sum"})
	}
	for _, n := range []string{"min", "max"} {
		b.fn(&Function{Name: StdName(n), Parameters: []Parameter{setParam("vals", AnyType)},
			Return: AnyType, ReturnMod: qltypes.OptionalType, Impl: n})
	}
	b.fn(&Function{Name: StdName("any"), Parameters: []Parameter{setParam("vals", boolean)}, Return: boolean, Impl: "bool_or"})
	b.fn(&Function{Name: StdName("all"), Parameters: []Parameter{setParam("vals", boolean)}, Return: boolean, Impl: "bool_and"})
	b.fn(&Function{Name: StdName("len"), Parameters: []Parameter{param("str", str)}, Return: i64, Impl: "char_length"})
	b.fn(&Function{Name: StdName("len"), Parameters: []Parameter{param("bytes", b.t("bytes"))}, Return: i64, Impl: "length"})
	b.fn(&Function{Name: StdName("len"), Parameters: []Parameter{param("array", arr)}, Return: i64, Impl: "cardinality"})
	b.fn(&Function{Name: StdName("contains"), Parameters: []Parameter{param("haystack", str), param("needle", str)}, Return: boolean, Impl: "strpos"})
	b.fn(&Function{Name: StdName("contains"), Parameters: []Parameter{param("haystack", arr), param("needle", AnyType)}, Return: boolean, Impl: "array_position"})
	b.fn(&Function{Name: StdName("str_lower"), Parameters: []Parameter{param("s", str)}, Return: str, Impl: "lower"})

	b.fn(&Function{Name: StdName("array_agg"), Parameters: []Parameter{setParam("s", AnyType)}, Return: arr, Impl: "array_agg"})
	b.fn(&Function{Name: StdName("array_unpack"), Parameters: []Parameter{param("array", arr)},
		Return: AnyType, ReturnMod: qltypes.SetOfType, Impl: "unnest"})
	b.fn(&Function{Name: StdName("array_get"), Parameters: []Parameter{
		param("array", arr),
		param("idx", i64),
		{Name: "default", Type: AnyType, Typemod: qltypes.OptionalType, Kind: qltypes.NamedOnlyParam, Default: emptyDefault()},
	}, Return: AnyType, ReturnMod: qltypes.OptionalType, Impl: "array_get"})

	b.fn(&Function{Name: StdName("json_get"), Parameters: []Parameter{
		param("json", json),
		{Name: "path", Type: &ArrayType{Element: str}, Kind: qltypes.VariadicParam},
		{Name: "default", Type: json, Typemod: qltypes.OptionalType, Kind: qltypes.NamedOnlyParam, Default: emptyDefault()},
	}, Return: json, ReturnMod: qltypes.OptionalType, Impl: "jsonb_extract_path"})
	b.fn(&Function{Name: StdName("json_typeof"), Parameters: []Parameter{param("json", json)}, Return: str, Impl: "jsonb_typeof"})
	b.fn(&Function{Name: StdName("json_array_unpack"), Parameters: []Parameter{param("array", json)},
		Return: json, ReturnMod: qltypes.SetOfType, Impl: "jsonb_array_elements"})
	b.fn(&Function{Name: StdName("to_json"), Parameters: []Parameter{param("str", str)}, Return: json, Impl: "jsonb_in"})
	for _, n := range []string{"int64", "float64", "datetime"} {
		b.fn(&Function{Name: StdName("to_str"), Parameters: []Parameter{
			param("val", b.t(n)),
			{Name: "fmt", Type: str, Typemod: qltypes.OptionalType, Default: emptyDefault()},
		}, Return: str, Impl: "to_char"})
	}

	message := Parameter{Name: "message", Type: str, Typemod: qltypes.OptionalType, Kind: qltypes.NamedOnlyParam, Default: emptyDefault()}
	b.fn(&Function{Name: StdName("assert_exists"), Parameters: []Parameter{setParam("input", AnyType), message},
		Return: AnyType, ReturnMod: qltypes.SetOfType, Impl: "assert_exists"})
	b.fn(&Function{Name: StdName("assert_single"), Parameters: []Parameter{setParam("input", AnyType), message},
		Return: AnyType, ReturnMod: qltypes.OptionalType, Impl: "assert_single"})
	b.fn(&Function{Name: StdName("assert_distinct"), Parameters: []Parameter{setParam("input", AnyType), message},
		Return: AnyType, ReturnMod: qltypes.SetOfType, Impl: "assert_distinct"})
	b.fn(&Function{Name: StdName("enumerate"), Parameters: []Parameter{setParam("vals", AnyType)},
		Return: NewTuple(i64, AnyType), ReturnMod: qltypes.SetOfType, Impl: "enumerate"})

	b.fn(&Function{Name: StdName("range"), Parameters: []Parameter{
		{Name: "lower", Type: anypoint, Typemod: qltypes.OptionalType, Default: emptyDefault()},
		{Name: "upper", Type: anypoint, Typemod: qltypes.OptionalType, Default: emptyDefault()},
		{Name: "inc_lower", Type: boolean, Kind: qltypes.NamedOnlyParam, Default: boolDefault(true)},
		{Name: "inc_upper", Type: boolean, Kind: qltypes.NamedOnlyParam, Default: boolDefault(false)},
		{Name: "empty", Type: boolean, Kind: qltypes.NamedOnlyParam, Default: boolDefault(false)},
	}, Return: &RangeType{Element: anypoint}, InlinedDefaults: true, Impl: "range"})
	for _, n := range []string{"range_get_lower", "range_get_upper"} {
		b.fn(&Function{Name: StdName(n), Parameters: []Parameter{param("r", &RangeType{Element: anypoint})},
			Return: anypoint, ReturnMod: qltypes.OptionalType, Impl: n})
	}
	for _, n := range []string{"range_is_empty", "range_is_inclusive_lower", "range_is_inclusive_upper"} {
		b.fn(&Function{Name: StdName(n), Parameters: []Parameter{param("r", &RangeType{Element: anypoint})},
			Return: boolean, Impl: n})
	}
	b.fn(&Function{Name: StdName("range_unpack"), Parameters: []Parameter{param("val", &RangeType{Element: anydiscrete})},
		Return: anydiscrete, ReturnMod: qltypes.SetOfType, Impl: "range_unpack"})

	b.fn(&Function{Name: StdName("datetime_current"), Return: b.t("datetime"), Volatility: qltypes.Volatile, Impl: "clock_timestamp"})
	b.fn(&Function{Name: StdName("random"), Return: b.t("float64"), Volatility: qltypes.Volatile, Impl: "random"})
}

func buildStdOperators(b *stdBuilder) {
	boolean, str := b.t("bool"), b.t("str")
	single, setOf := qltypes.SingletonType, qltypes.SetOfType
	infix, prefix := qltypes.Infix, qltypes.Prefix

	for _, n := range []string{"=", "!=", "<", ">", "<=", ">="} {
		b.op(n, infix, boolean, single, param("l", AnyType), param("r", AnyType))
	}
	for _, n := range []string{"?=", "?!="} {
		b.op(n, infix, boolean, single, optParam("l", AnyType), optParam("r", AnyType))
	}
	for _, n := range numericTypes {
		t := b.t(n)
		for _, op := range []string{"+", "-", "*"} {
			b.op(op, infix, t, single, param("l", t), param("r", t))
		}
		b.op("-", prefix, t, single, param("v", t))
	}
	for _, n := range []string{"int64", "float64", "decimal"} {
		ret := b.t(n)
		if n == "int64" {
			ret = b.t("float64")
		}
		b.op("/", infix, ret, single, param("l", b.t(n)), param("r", b.t(n)))
	}
	i64 := b.t("int64")
	b.op("//", infix, i64, single, param("l", i64), param("r", i64))
	b.op("%", infix, i64, single, param("l", i64), param("r", i64))

	dt, dur := b.t("datetime"), b.t("duration")
	b.op("+", infix, dt, single, param("l", dt), param("r", dur))
	b.op("+", infix, dur, single, param("l", dur), param("r", dur))
	b.op("-", infix, dt, single, param("l", dt), param("r", dur))
	b.op("-", infix, dur, single, param("l", dt), param("r", dt))

	b.op("++", infix, str, single, param("l", str), param("r", str))
	b.op("++", infix, b.t("bytes"), single, param("l", b.t("bytes")), param("r", b.t("bytes")))
	b.op("++", infix, b.t("json"), single, param("l", b.t("json")), param("r", b.t("json")))
	arr := &ArrayType{Element: AnyType}
	b.op("++", infix, arr, single, param("l", arr), param("r", arr))
	b.op("LIKE", infix, boolean, single, param("str", str), param("pattern", str))

	b.op("AND", infix, boolean, single, param("a", boolean), param("b", boolean))
	b.op("OR", infix, boolean, single, param("a", boolean), param("b", boolean))
	b.op("NOT", prefix, boolean, single, param("v", boolean))

	b.op("??", infix, AnyType, setOf, optParam("l", AnyType), setParam("r", AnyType))
	b.op("IN", infix, boolean, single, param("e", AnyType), setParam("s", AnyType))
	b.op("NOT IN", infix, boolean, single, param("e", AnyType), setParam("s", AnyType))
	for _, n := range []string{"UNION", "EXCEPT", "INTERSECT"} {
		b.op(n, infix, AnyType, setOf, setParam("l", AnyType), setParam("r", AnyType))
	}
	b.op("EXISTS", prefix, boolean, single, setParam("s", AnyType))
	b.op("DISTINCT", prefix, AnyType, setOf, setParam("s", AnyType))
}
