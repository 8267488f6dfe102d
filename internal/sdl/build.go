package sdl

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

type scalarDecl struct {
	Abstract  bool     `json:"abstract"`
	Extending []string `json:"extending"`
	Enum      []string `json:"enum"`
}

type typeDecl struct {
	Abstract  bool     `json:"abstract"`
	Extending []string `json:"extending"`
}

type pointerDecl struct {
	Type     string `json:"type"`
	Target   string `json:"target"`
	Required bool   `json:"required"`
	Readonly bool   `json:"readonly"`
	Multi    *bool  `json:"multi"`
	// Exclusive adds a std::exclusive constraint on the pointer.
	Exclusive bool   `json:"exclusive"`
	Expr      string `json:"expr"`
}

type constraintDecl struct {
	Exclusive []string `json:"exclusive"`
	Except    string   `json:"except"`
}

type castDecl struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Implicit   bool   `json:"implicit"`
	Assignment bool   `json:"assignment"`
	Function   string `json:"function"`
}

type paramDecl struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Typemod string `json:"typemod"`
	Kind    string `json:"kind"`
	Default string `json:"default"`
}

type callableDecl struct {
	Name                 string      `json:"name"`
	Kind                 string      `json:"kind"`
	Params               []paramDecl `json:"params"`
	Return               string      `json:"return"`
	ReturnMod            string      `json:"return_mod"`
	Volatility           string      `json:"volatility"`
	PreservesOptionality bool        `json:"preserves_optionality"`
	Impl                 string      `json:"impl"`
}

type field struct {
	label string
	v     cue.Value
}

type builder struct {
	s      *schema.Schema
	module string
	errs   []error

	scalars map[string]bool
	objects map[string]bool
}

// Build turns the value of a schema struct into a schema layered over
// the standard library. It returns the schema and the module its types
// were declared in. All validation errors are reported, joined.
func Build(v cue.Value) (*schema.Schema, string, error) {
	b := &builder{
		s:       schema.Std(),
		module:  schema.DefaultModule,
		scalars: make(map[string]bool),
		objects: make(map[string]bool),
	}
	if mv := v.LookupPath(cue.ParsePath("module")); mv.Exists() {
		m, err := mv.String()
		if err != nil || m == "" || m == schema.StdModule {
			b.fail(ErrCodeInvalidType, mv, "module must be a non-empty string other than %q", schema.StdModule)
			return nil, "", errors.Join(b.errs...)
		}
		b.module = m
	}

	scalars := b.fields(v, "scalars")
	types := b.fields(v, "types")
	for _, f := range scalars {
		b.scalars[f.label] = true
	}
	for _, f := range types {
		if b.scalars[f.label] {
			b.fail(ErrCodeInvalidType, f.v, "%s is declared both as a scalar and an object type", f.label)
			continue
		}
		b.objects[f.label] = true
	}

	scalarDecls := b.decodeScalars(scalars)
	typeDecls := b.decodeTypes(types)
	if len(b.errs) > 0 {
		return nil, "", errors.Join(b.errs...)
	}

	if !b.checkCycles(scalars, scalarDecls, types, typeDecls) {
		return nil, "", errors.Join(b.errs...)
	}

	b.addScalars(scalars, scalarDecls)
	b.addObjectTypes(types, typeDecls)
	if len(b.errs) > 0 {
		return nil, "", errors.Join(b.errs...)
	}

	for _, f := range types {
		b.addPointers(f)
	}
	for _, f := range types {
		b.addObjectConstraints(f)
	}
	b.addCasts(v.LookupPath(cue.ParsePath("casts")))
	b.addFunctions(b.fields(v, "functions"))
	b.addOperators(v.LookupPath(cue.ParsePath("operators")))
	if len(b.errs) > 0 {
		return nil, "", errors.Join(b.errs...)
	}

	out, err := b.s.MaterializeInheritance()
	if err != nil {
		return nil, "", &ValidationError{Code: ErrCodeInvalidPointer, Message: err.Error(), Pos: v.Pos()}
	}
	return out, b.module, nil
}

func (b *builder) fail(code string, v cue.Value, format string, args ...any) {
	b.errs = append(b.errs, &ValidationError{
		Code:    code,
		Path:    v.Path().String(),
		Message: fmt.Sprintf(format, args...),
		Pos:     v.Pos(),
	})
}

// fields lists the fields of the struct at name in declaration order.
func (b *builder) fields(v cue.Value, name string) []field {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		b.fail(ErrCodeInvalidType, sv, "%s must be a struct: %v", name, err)
		return nil
	}
	var out []field
	for iter.Next() {
		out = append(out, field{label: iter.Label(), v: iter.Value()})
	}
	return out
}

func (b *builder) list(v cue.Value) []cue.Value {
	if !v.Exists() {
		return nil
	}
	iter, err := v.List()
	if err != nil {
		b.fail(ErrCodeInvalidType, v, "expected a list: %v", err)
		return nil
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out
}

func (b *builder) decode(v cue.Value, into any) bool {
	if err := v.Decode(into); err != nil {
		b.fail(ErrCodeInvalidType, v, "%v", err)
		return false
	}
	return true
}

func (b *builder) decodeScalars(fs []field) []scalarDecl {
	out := make([]scalarDecl, len(fs))
	for i, f := range fs {
		b.decode(f.v, &out[i])
		if len(out[i].Enum) > 0 && len(out[i].Extending) > 0 {
			b.fail(ErrCodeInvalidType, f.v, "enum scalar %s cannot also extend %s", f.label, strings.Join(out[i].Extending, ", "))
		}
	}
	return out
}

func (b *builder) decodeTypes(fs []field) []typeDecl {
	out := make([]typeDecl, len(fs))
	for i, f := range fs {
		b.decode(f.v, &out[i])
	}
	return out
}

// checkCycles reports inheritance cycles among the declared types.
func (b *builder) checkCycles(scalars []field, sd []scalarDecl, types []field, td []typeDecl) bool {
	graph := make(map[string][]string)
	at := make(map[string]cue.Value)
	for i, f := range scalars {
		graph[f.label] = b.localBases(sd[i].Extending, b.scalars)
		at[f.label] = f.v
	}
	for i, f := range types {
		graph[f.label] = b.localBases(td[i].Extending, b.objects)
		at[f.label] = f.v
	}
	cycles := InheritanceCycles(graph)
	for _, c := range cycles {
		b.fail(ErrCodeInheritanceCycle, at[c[0]], "inheritance cycle: %s", strings.Join(c, " -> "))
	}
	return len(cycles) == 0
}

// localBases keeps the bases that name a type declared in this schema.
func (b *builder) localBases(bases []string, declared map[string]bool) []string {
	var out []string
	for _, base := range bases {
		n := schema.ParseName(base)
		if n.IsQualified() && n.Module != b.module {
			continue
		}
		if declared[n.Name] {
			out = append(out, n.Name)
		}
	}
	return out
}

// baseName resolves a base reference. Declared names bind to the schema
// module, other unqualified names to std.
func (b *builder) baseName(ref string, declared map[string]bool) schema.Name {
	n := schema.ParseName(ref)
	if n.IsQualified() {
		return n
	}
	if declared[n.Name] {
		return schema.NewName(b.module, n.Name)
	}
	return schema.StdName(n.Name)
}

func (b *builder) addScalars(fs []field, decls []scalarDecl) {
	for i, f := range fs {
		d := decls[i]
		st := &schema.ScalarType{
			Name:       schema.NewName(b.module, f.label),
			Abstract:   d.Abstract,
			EnumValues: d.Enum,
		}
		switch {
		case len(d.Enum) > 0:
			st.Bases = []schema.Name{schema.StdName("anyenum")}
		case len(d.Extending) == 0:
			b.fail(ErrCodeInvalidType, f.v, "scalar %s must extend a scalar or declare enum values", f.label)
			continue
		default:
			for _, ref := range d.Extending {
				st.Bases = append(st.Bases, b.baseName(ref, b.scalars))
			}
		}
		b.s = b.s.WithType(st)
	}
	for i, f := range fs {
		for _, ref := range decls[i].Extending {
			n := b.baseName(ref, b.scalars)
			if _, ok := b.s.ScalarType(n); !ok {
				b.fail(ErrCodeUnknownType, f.v, "scalar %s extends unknown scalar type %s", f.label, n)
			}
		}
	}
}

func (b *builder) addObjectTypes(fs []field, decls []typeDecl) {
	for i, f := range fs {
		d := decls[i]
		ot := &schema.ObjectType{Name: schema.NewName(b.module, f.label), Abstract: d.Abstract}
		for _, ref := range d.Extending {
			ot.Bases = append(ot.Bases, b.baseName(ref, b.objects))
		}
		if len(ot.Bases) == 0 {
			ot.Bases = []schema.Name{schema.StdName("Object")}
		}
		b.s = b.s.WithType(ot)
	}
	for i, f := range fs {
		for _, ref := range decls[i].Extending {
			n := b.baseName(ref, b.objects)
			if _, ok := b.s.ObjectType(n); !ok {
				b.fail(ErrCodeUnknownType, f.v, "type %s extends unknown object type %s", f.label, n)
			}
		}
	}
}

func (b *builder) resolveType(v cue.Value, ref string) (schema.Type, bool) {
	tn, err := qlast.ParseTypeName(ref)
	if err != nil {
		b.fail(ErrCodeInvalidType, v, "invalid type %q: %v", ref, err)
		return nil, false
	}
	t, err := b.s.ResolveTypeName(tn, b.module)
	if err != nil {
		b.fail(ErrCodeUnknownType, v, "%v", err)
		return nil, false
	}
	return t, true
}

func (b *builder) parseExpr(v cue.Value, src string) (qlast.Expr, bool) {
	e, err := qlast.ParseExpr(src)
	if err != nil {
		b.fail(ErrCodeInvalidExpr, v, "invalid expression %q: %v", src, err)
		return nil, false
	}
	return e, true
}

func (b *builder) addPointers(tf field) {
	source := schema.NewName(b.module, tf.label)
	for _, f := range b.fields(tf.v, "properties") {
		b.addPointer(source, "", f, false)
	}
	for _, f := range b.fields(tf.v, "links") {
		p := b.addPointer(source, "", f, true)
		if p == nil {
			continue
		}
		for _, lp := range b.fields(f.v, "properties") {
			b.addPointer(source, p.Key(), lp, false)
		}
	}
}

// addPointer declares one property or link. link is the owning link key
// for link properties.
func (b *builder) addPointer(source schema.Name, link string, f field, isLink bool) *schema.Pointer {
	var d pointerDecl
	if !b.decode(f.v, &d) {
		return nil
	}
	ref := d.Type
	if isLink {
		ref = d.Target
		if d.Type != "" {
			b.fail(ErrCodeInvalidPointer, f.v, "link %s declares type; use target", f.label)
			return nil
		}
	}
	if ref == "" {
		b.fail(ErrCodeInvalidPointer, f.v, "%s has no target type", f.label)
		return nil
	}
	target, ok := b.resolveType(f.v, ref)
	if !ok {
		return nil
	}
	switch {
	case isLink && !schema.IsObject(target):
		b.fail(ErrCodeInvalidPointer, f.v, "link %s must target an object type, not %s", f.label, target.DisplayName())
		return nil
	case !isLink && schema.IsObject(target):
		b.fail(ErrCodeInvalidPointer, f.v, "property %s cannot target object type %s; declare it under links", f.label, target.DisplayName())
		return nil
	case link != "" && d.Multi != nil && *d.Multi:
		b.fail(ErrCodeInvalidPointer, f.v, "link property %s cannot be multi", f.label)
		return nil
	}

	p := &schema.Pointer{
		ShortName: f.label,
		Source:    source,
		Link:      link,
		Target:    target,
		Required:  d.Required,
		Readonly:  d.Readonly,
		Owned:     true,
	}
	if d.Multi != nil && *d.Multi {
		p.Cardinality = qltypes.SchemaMany
	} else if d.Multi != nil || d.Expr == "" {
		p.Cardinality = qltypes.SchemaOne
	}
	if d.Expr != "" {
		e, ok := b.parseExpr(f.v, d.Expr)
		if !ok {
			return nil
		}
		p.Computed = true
		p.Expr = e
	}
	b.s = b.s.WithPointer(p)

	if d.Exclusive {
		if link != "" || p.Computed {
			b.fail(ErrCodeInvalidConstraint, f.v, "exclusive is only supported on stored pointers of object types")
			return p
		}
		exclusive := schema.StdName("exclusive")
		b.s = b.s.WithConstraint(&schema.Constraint{
			Name:           schema.ConstraintName(source, f.label, exclusive),
			Base:           exclusive,
			Subject:        source,
			SubjectPointer: f.label,
			Owned:          true,
		})
	}
	return p
}

func (b *builder) addObjectConstraints(tf field) {
	subject := schema.NewName(b.module, tf.label)
	exclusive := schema.StdName("exclusive")
	for _, cv := range b.list(tf.v.LookupPath(cue.ParsePath("constraints"))) {
		var d constraintDecl
		if !b.decode(cv, &d) {
			continue
		}
		if len(d.Exclusive) == 0 {
			b.fail(ErrCodeInvalidConstraint, cv, "constraint on %s lists no pointers", tf.label)
			continue
		}
		valid := true
		for _, short := range d.Exclusive {
			if _, ok := b.s.Pointer(subject, short); !ok {
				b.fail(ErrCodeInvalidConstraint, cv, "constraint on %s references unknown pointer %s", tf.label, short)
				valid = false
			}
		}
		if !valid {
			continue
		}
		c := &schema.Constraint{
			Name:            schema.ObjectConstraintName(subject, exclusive, d.Exclusive),
			Base:            exclusive,
			Subject:         subject,
			SubjectPointers: d.Exclusive,
			Owned:           true,
		}
		if d.Except != "" {
			e, ok := b.parseExpr(cv, d.Except)
			if !ok {
				continue
			}
			c.Except = e
		}
		b.s = b.s.WithConstraint(c)
	}
}

func (b *builder) addCasts(v cue.Value) {
	for _, cv := range b.list(v) {
		var d castDecl
		if !b.decode(cv, &d) {
			continue
		}
		from, ok1 := b.resolveType(cv, d.From)
		to, ok2 := b.resolveType(cv, d.To)
		if !ok1 || !ok2 {
			continue
		}
		if schema.Same(from, to) {
			b.fail(ErrCodeInvalidCast, cv, "cast from %s to itself", from.DisplayName())
			continue
		}
		if schema.IsObject(from) || schema.IsObject(to) {
			b.fail(ErrCodeInvalidCast, cv, "casts between object types are not declarable")
			continue
		}
		b.s = b.s.WithCast(&schema.Cast{
			From:       from,
			To:         to,
			Implicit:   d.Implicit,
			Assignment: d.Assignment || d.Implicit,
			Function:   d.Function,
		})
	}
}

// addFunctions registers each overload listed under a function name.
func (b *builder) addFunctions(fs []field) {
	for _, f := range fs {
		name := schema.ParseName(f.label)
		if !name.IsQualified() {
			name = schema.NewName(b.module, f.label)
		}
		for _, ov := range b.list(f.v) {
			var d callableDecl
			if !b.decode(ov, &d) {
				continue
			}
			params, ret, mod, ok := b.signature(ov, d)
			if !ok {
				continue
			}
			vol, err := parseVolatility(d.Volatility)
			if err != nil {
				b.fail(ErrCodeInvalidCallable, ov, "%v", err)
				continue
			}
			b.s = b.s.WithFunction(&schema.Function{
				Name:                 name,
				Parameters:           params,
				Return:               ret,
				ReturnMod:            mod,
				Volatility:           vol,
				PreservesOptionality: d.PreservesOptionality,
				Impl:                 d.Impl,
			})
		}
	}
}

// addOperators registers operator overloads. Operators are global and
// always land in std.
func (b *builder) addOperators(v cue.Value) {
	for _, ov := range b.list(v) {
		var d callableDecl
		if !b.decode(ov, &d) {
			continue
		}
		if d.Name == "" {
			b.fail(ErrCodeInvalidCallable, ov, "operator has no name")
			continue
		}
		kind := qltypes.Infix
		want := 2
		switch d.Kind {
		case "", "infix":
		case "prefix":
			kind, want = qltypes.Prefix, 1
		default:
			b.fail(ErrCodeInvalidCallable, ov, "invalid operator kind %q: must be infix or prefix", d.Kind)
			continue
		}
		if len(d.Params) != want {
			b.fail(ErrCodeInvalidCallable, ov, "%s operator %s takes %d operands, got %d", d.Kind, d.Name, want, len(d.Params))
			continue
		}
		params, ret, mod, ok := b.signature(ov, d)
		if !ok {
			continue
		}
		vol, err := parseVolatility(d.Volatility)
		if err != nil {
			b.fail(ErrCodeInvalidCallable, ov, "%v", err)
			continue
		}
		b.s = b.s.WithOperator(&schema.Operator{
			Name:       schema.StdName(strings.ToUpper(d.Name)),
			Kind:       kind,
			Parameters: params,
			Return:     ret,
			ReturnMod:  mod,
			Volatility: vol,
			Impl:       d.Impl,
		})
	}
}

func (b *builder) signature(v cue.Value, d callableDecl) ([]schema.Parameter, schema.Type, qltypes.TypeModifier, bool) {
	ok := true
	params := make([]schema.Parameter, 0, len(d.Params))
	for i, pd := range d.Params {
		t, tok := b.resolveType(v, pd.Type)
		if !tok {
			ok = false
			continue
		}
		mod, err := parseTypemod(pd.Typemod)
		if err != nil {
			b.fail(ErrCodeInvalidCallable, v, "parameter %s: %v", pd.Name, err)
			ok = false
			continue
		}
		kind, err := parseParamKind(pd.Kind)
		if err != nil {
			b.fail(ErrCodeInvalidCallable, v, "parameter %s: %v", pd.Name, err)
			ok = false
			continue
		}
		if kind == qltypes.VariadicParam && i != len(d.Params)-1 {
			b.fail(ErrCodeInvalidCallable, v, "variadic parameter %s must be last", pd.Name)
			ok = false
			continue
		}
		p := schema.Parameter{Name: pd.Name, Type: t, Typemod: mod, Kind: kind}
		if pd.Default != "" {
			e, eok := b.parseExpr(v, pd.Default)
			if !eok {
				ok = false
				continue
			}
			p.Default = e
		}
		params = append(params, p)
	}
	if d.Return == "" {
		b.fail(ErrCodeInvalidCallable, v, "missing return type")
		return nil, nil, 0, false
	}
	ret, rok := b.resolveType(v, d.Return)
	mod, err := parseTypemod(d.ReturnMod)
	if err != nil {
		b.fail(ErrCodeInvalidCallable, v, "return: %v", err)
		return nil, nil, 0, false
	}
	return params, ret, mod, ok && rok
}

func parseTypemod(s string) (qltypes.TypeModifier, error) {
	switch strings.ToLower(s) {
	case "", "singleton":
		return qltypes.SingletonType, nil
	case "optional":
		return qltypes.OptionalType, nil
	case "setof", "set of":
		return qltypes.SetOfType, nil
	default:
		return 0, fmt.Errorf("invalid type modifier %q", s)
	}
}

func parseParamKind(s string) (qltypes.ParameterKind, error) {
	switch strings.ToLower(s) {
	case "", "positional":
		return qltypes.PositionalParam, nil
	case "named", "named only":
		return qltypes.NamedOnlyParam, nil
	case "variadic":
		return qltypes.VariadicParam, nil
	default:
		return 0, fmt.Errorf("invalid parameter kind %q", s)
	}
}

func parseVolatility(s string) (qltypes.Volatility, error) {
	switch strings.ToLower(s) {
	case "", "immutable":
		return qltypes.Immutable, nil
	case "stable":
		return qltypes.Stable, nil
	case "volatile":
		return qltypes.Volatile, nil
	case "modifying":
		return qltypes.Modifying, nil
	default:
		return 0, fmt.Errorf("invalid volatility %q", s)
	}
}
