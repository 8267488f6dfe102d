package ir

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pathql/internal/schema"
)

// Encode turns a statement into a Value tree. The encoding is stable:
// equal statements encode identically, so the canonical form of the
// encoding is what Fingerprint hashes. A set reachable from several
// parents is encoded once and referenced by number afterwards.
func Encode(stmt *Statement) (Object, error) {
	e := &encoder{seen: make(map[*Set]int)}
	expr, err := e.set(stmt.Expr)
	if err != nil {
		return nil, err
	}
	refs := make([]string, len(stmt.SchemaRefs))
	for i, r := range stmt.SchemaRefs {
		refs[i] = r.String()
	}
	obj := Obj(
		F("expr", expr),
		F("cardinality", Str(stmt.Cardinality.String())),
		F("schema_refs", StrList(refs...)),
	)
	if stmt.Scope != nil {
		obj["scope"] = Str(stmt.Scope.Pformat())
	}
	if len(stmt.PointerCardinality) > 0 {
		pc := make(Object, len(stmt.PointerCardinality))
		for k, c := range stmt.PointerCardinality {
			pc[k] = Str(c.String())
		}
		obj["pointer_cardinality"] = pc
	}
	return obj, nil
}

type encoder struct {
	seen map[*Set]int
}

func typeName(t schema.Type) Value {
	if t == nil {
		return Str("")
	}
	return Str(t.DisplayName())
}

func (e *encoder) set(s *Set) (Value, error) {
	if s == nil {
		return nil, nil
	}
	if n, ok := e.seen[s]; ok {
		return Obj(F("ref", Int(n))), nil
	}
	n := len(e.seen) + 1
	e.seen[s] = n

	obj := Obj(F("id", Int(n)), F("type", typeName(s.Type)))
	if s.PathID != nil {
		obj["path"] = Str(s.PathID.String())
	}
	if s.Anchor != "" {
		obj["anchor"] = Str(s.Anchor)
	}
	if s.Optional {
		obj["optional"] = Bool(true)
	}
	if s.Expr != nil {
		ev, err := e.expr(s.Expr)
		if err != nil {
			return nil, err
		}
		obj["expr"] = ev
	}
	if len(s.Shape) > 0 {
		shape := make(List, 0, len(s.Shape))
		for _, el := range s.Shape {
			sv, err := e.set(el.Set)
			if err != nil {
				return nil, fmt.Errorf("shape element %s: %w", el.Name, err)
			}
			shape = append(shape, Obj(
				F("name", Str(el.Name)),
				F("op", Str(el.Op.String())),
				F("cardinality", Str(el.Cardinality.String())),
				F("computed", Bool(el.Computed)),
				F("set", sv),
			))
		}
		obj["shape"] = shape
	}
	return obj, nil
}

func (e *encoder) sets(ss []*Set) (List, error) {
	out := make(List, 0, len(ss))
	for _, s := range ss {
		v, err := e.set(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *encoder) args(args []CallArg) (List, error) {
	out := make(List, 0, len(args))
	for _, a := range args {
		v, err := e.set(a.Set)
		if err != nil {
			return nil, err
		}
		out = append(out, Obj(
			F("param", Str(a.Param)),
			F("typemod", Str(a.Typemod.String())),
			F("default", Bool(a.IsDefault)),
			F("set", v),
		))
	}
	return out, nil
}

func (e *encoder) conflict(c *OnConflictClause) (Value, error) {
	if c == nil {
		return nil, nil
	}
	sel, err := e.set(c.SelectIR)
	if err != nil {
		return nil, err
	}
	els, err := e.set(c.ElseIR)
	if err != nil {
		return nil, err
	}
	return Obj(
		F("constraint", Str(c.Constraint.String())),
		F("subject", Str(c.Subject.String())),
		F("always_check", Bool(c.AlwaysCheck)),
		F("select", sel),
		F("else", els),
	), nil
}

func (e *encoder) conflicts(cs []*OnConflictClause) (List, error) {
	out := make(List, 0, len(cs))
	for _, c := range cs {
		v, err := e.conflict(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *encoder) expr(x Expr) (Value, error) {
	kind := func(k string, fields ...Field) Object {
		return Obj(append([]Field{F("kind", Str(k))}, fields...)...)
	}
	// Errors from the nested encoders are collected into err so the
	// cases below stay flat.
	var err error
	must := func(v Value, e error) Value {
		if err == nil {
			err = e
		}
		return v
	}
	mustList := func(v List, e error) Value {
		if err == nil {
			err = e
		}
		return v
	}

	var out Value
	switch x := x.(type) {
	case *TypeRoot:
		out = kind("root", F("type", typeName(x.Type)))
	case *PathStep:
		out = kind("step",
			F("source", must(e.set(x.Source))),
			F("ptr", Str(x.Ptr.Name)),
			F("direction", Str(string(x.Direction))),
			F("computed", Bool(x.Computed)),
			F("body", must(e.set(x.Body))))
	case *TypeIntersection:
		out = kind("intersection", F("source", must(e.set(x.Source))), F("type", typeName(x.Type)))
	case *Constant:
		out = kind("const", F("const_kind", Str(x.Kind.String())), F("value", Str(x.Value)))
	case *EmptySet:
		out = kind("empty")
	case *Tuple:
		els := make(List, 0, len(x.Elements))
		for _, el := range x.Elements {
			els = append(els, Obj(F("name", Str(el.Name)), F("val", must(e.set(el.Val)))))
		}
		out = kind("tuple", F("named", Bool(x.Named)), F("elements", els))
	case *Array:
		out = kind("array", F("elements", mustList(e.sets(x.Elements))))
	case *TupleIndirection:
		out = kind("tuple_indirection", F("source", must(e.set(x.Source))), F("name", Str(x.Name)))
	case *FunctionCall:
		fields := []Field{
			F("func", Str(x.Func.String())),
			F("impl", Str(x.Impl)),
			F("args", mustList(e.args(x.Args))),
			F("return", typeName(x.ReturnType)),
			F("typemod", Str(x.Typemod.String())),
		}
		if len(x.NullArgs) > 0 {
			null := slices.Clone(x.NullArgs)
			slices.Sort(null)
			fields = append(fields, F("null_args", StrList(null...)))
		}
		if len(x.DefaultsMask) > 0 {
			fields = append(fields, F("defaults_mask", Str(hex.EncodeToString(x.DefaultsMask))))
		}
		if x.VariadicArgID >= 0 {
			fields = append(fields, F("variadic", List{Int(x.VariadicArgID), Int(x.VariadicArgCount)}))
		}
		out = kind("function", fields...)
	case *OperatorCall:
		out = kind("operator",
			F("op", Str(x.Op.String())),
			F("impl", Str(x.Impl)),
			F("args", mustList(e.args(x.Args))),
			F("return", typeName(x.ReturnType)),
			F("typemod", Str(x.Typemod.String())))
	case *TypeCast:
		fields := []Field{
			F("expr", must(e.set(x.Expr))),
			F("from", typeName(x.From)),
			F("to", typeName(x.To)),
			F("inheritance", Bool(x.InheritanceCast)),
			F("cardinality", Str(x.Cardinality.String())),
		}
		if x.Required() {
			fields = append(fields, F("assert_exists", Bool(x.AssertsExistence())))
		}
		if x.Cast != nil && x.Cast.Function != "" {
			fields = append(fields, F("function", Str(x.Cast.Function)))
		}
		if x.ErrorMessageContext != "" {
			fields = append(fields, F("context", Str(strings.TrimSpace(x.ErrorMessageContext))))
		}
		out = kind("cast", fields...)
	case *IfElse:
		out = kind("if",
			F("cond", must(e.set(x.Cond))),
			F("then", must(e.set(x.Then))),
			F("else", must(e.set(x.Else))))
	case *SelectStmt:
		order := make(List, 0, len(x.OrderBy))
		for _, o := range x.OrderBy {
			order = append(order, Obj(F("expr", must(e.set(o.Expr))), F("desc", Bool(o.Desc))))
		}
		out = kind("select",
			F("bindings", mustList(e.sets(x.Bindings))),
			F("result", must(e.set(x.Result))),
			F("where", must(e.set(x.Where))),
			F("order_by", order),
			F("offset", must(e.set(x.Offset))),
			F("limit", must(e.set(x.Limit))),
			F("implicit", Bool(x.Implicit)))
	case *ForStmt:
		out = kind("for",
			F("iterator", must(e.set(x.Iterator))),
			F("result", must(e.set(x.Result))),
			F("optional", Bool(x.Optional)))
	case *InsertStmt:
		out = kind("insert",
			F("subject", must(e.set(x.Subject))),
			F("on_conflict", must(e.conflict(x.OnConflict))),
			F("conflict_checks", mustList(e.conflicts(x.ConflictChecks))))
	case *UpdateStmt:
		out = kind("update",
			F("subject", must(e.set(x.Subject))),
			F("where", must(e.set(x.Where))),
			F("conflict_checks", mustList(e.conflicts(x.ConflictChecks))))
	case *DeleteStmt:
		out = kind("delete",
			F("subject", must(e.set(x.Subject))),
			F("where", must(e.set(x.Where))))
	default:
		return nil, fmt.Errorf("encode: unexpected expression %T", x)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
