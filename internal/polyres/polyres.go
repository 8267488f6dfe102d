// Package polyres resolves calls to overloaded functions, operators and
// casts against the schema type lattice.
//
// Resolution is independent of the order in which candidates are given:
// candidates are ranked by their signature before matching, and ties are
// broken by common-parent type distance.
package polyres

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

// Arg is a compiled call argument. V is the caller's representation of
// the argument value; the resolver only looks at Type.
type Arg[V any] struct {
	Value V
	Type  schema.Type
}

// ArgKey identifies the call-site argument a bound argument came from.
// Defaults and the inlined-defaults bitmask have neither an index nor a
// name.
type ArgKey struct {
	Index int
	Name  string
}

// NoArg is the key of arguments that were not passed by the caller.
var NoArg = ArgKey{Index: -1}

func positional(i int) ArgKey     { return ArgKey{Index: i} }
func keyword(name string) ArgKey { return ArgKey{Index: -1, Name: name} }

// IsPositional reports whether the argument was passed by position.
func (k ArgKey) IsPositional() bool { return k.Index >= 0 }

// IsKeyword reports whether the argument was passed by name.
func (k ArgKey) IsKeyword() bool { return k.Name != "" }

// IsNone reports whether the argument was synthesized by the resolver.
func (k ArgKey) IsNone() bool { return k.Index < 0 && k.Name == "" }

func (k ArgKey) String() string {
	switch {
	case k.IsKeyword():
		return "$" + k.Name
	case k.IsPositional():
		return "$" + strconv.Itoa(k.Index)
	default:
		return "<none>"
	}
}

// BoundArg is an argument matched to a parameter.
//
// Param is nil for the defaults bitmask of callables with inlined
// defaults. For defaults (IsDefault) Value is the zero V; the caller
// compiles Param.Default, or an empty set of ParamType when the callable
// inlines its defaults. Variadic arguments carry the element type of the
// variadic parameter as ParamType.
type BoundArg[V any] struct {
	Param        *schema.Parameter
	ParamType    schema.Type
	Value        V
	ValueType    schema.Type
	CastDistance int
	Arg          ArgKey
	IsDefault    bool
}

// IsBitmask reports whether the argument is the defaults bitmask.
func (a BoundArg[V]) IsBitmask() bool { return a.Param == nil }

// BoundCall is one way of calling Func with the given arguments.
type BoundCall[V any] struct {
	Func       schema.Callable
	Args       []BoundArg[V]
	NullArgs   []string
	ReturnType schema.Type

	// DefaultsMask has bit i set when parameter i took its default. It
	// is only populated for callables with inlined defaults.
	DefaultsMask []byte

	// VariadicArgID is the index of the first variadic argument and
	// VariadicArgCount the number of variadic arguments; both are -1
	// when the callable is not variadic.
	VariadicArgID    int
	VariadicArgCount int
}

// TotalDistance sums the cast distances of all arguments.
func (c BoundCall[V]) TotalDistance() int {
	total := 0
	for _, a := range c.Args {
		total += a.CastDistance
	}
	return total
}

// Options tune a resolution.
type Options struct {
	// InAbstractDefinition admits abstract candidates and allows a
	// polymorphic return type to stay unresolved. It is set while
	// compiling the body of an abstract callable or constraint.
	InAbstractDefinition bool

	// BasicMatchingOnly binds arguments to parameters by position and
	// name without looking at types.
	BasicMatchingOnly bool
}

// FindCallable returns the best matching candidates for a call with the
// given positional and keyword arguments. An empty result means no
// candidate matched; more than one means the call is ambiguous. Both are
// reported by the caller, which knows the call site.
func FindCallable[V any](
	s *schema.Schema,
	candidates []schema.Callable,
	args []Arg[V],
	kwargs map[string]Arg[V],
	opts Options,
) ([]BoundCall[V], error) {
	var (
		matched      []BoundCall[V]
		bestDistance = -1
	)
	for _, cand := range sortCandidates(candidates) {
		if cand.IsAbstract() && !opts.InAbstractDefinition {
			continue
		}
		call, ok, err := tryBind(s, cand, args, kwargs, opts)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		d := call.TotalDistance()
		switch {
		case bestDistance < 0 || d < bestDistance:
			bestDistance = d
			matched = []BoundCall[V]{call}
		case d == bestDistance:
			matched = append(matched, call)
		}
	}

	if len(matched) <= 1 {
		return matched, nil
	}

	// Several candidates with the same cast distance: prefer those whose
	// parameter types are closest to the argument types in the lattice.
	var (
		best        []BoundCall[V]
		bestParents = -1
	)
	for _, call := range matched {
		d := 0
		for _, a := range call.Args {
			if a.IsBitmask() {
				continue
			}
			d += s.CommonParentTypeDistance(a.ValueType, a.ParamType)
		}
		switch {
		case bestParents < 0 || d < bestParents:
			bestParents = d
			best = []BoundCall[V]{call}
		case d == bestParents:
			best = append(best, call)
		}
	}
	return best, nil
}

// FindCallableTypemods returns the type modifier of every argument of a
// call before the arguments are compiled, so that SET OF arguments can be
// fenced and OPTIONAL ones branched. Keys are positional indexes and
// keyword names.
func FindCallableTypemods(
	s *schema.Schema,
	candidates []schema.Callable,
	numArgs int,
	kwargNames []string,
) (map[ArgKey]qltypes.TypeModifier, error) {
	dummy := make([]Arg[struct{}], numArgs)
	for i := range dummy {
		dummy[i] = Arg[struct{}]{Type: schema.AnyType}
	}
	kwargs := make(map[string]Arg[struct{}], len(kwargNames))
	for _, k := range kwargNames {
		kwargs[k] = Arg[struct{}]{Type: schema.AnyType}
	}

	options, err := FindCallable(s, candidates, dummy, kwargs, Options{
		BasicMatchingOnly:    true,
		InAbstractDefinition: true,
	})
	if err != nil {
		return nil, err
	}

	out := make(map[ArgKey]qltypes.TypeModifier, numArgs+len(kwargNames))
	if len(options) == 0 {
		// The call will fail to resolve later with a proper error.
		for i := range numArgs {
			out[positional(i)] = qltypes.SingletonType
		}
		for _, k := range kwargNames {
			out[keyword(k)] = qltypes.SingletonType
		}
		return out, nil
	}

	for _, call := range options {
		for _, a := range call.Args {
			if a.Param == nil || a.Arg.IsNone() {
				continue
			}
			mod := a.Param.Typemod
			prev, seen := out[a.Arg]
			switch {
			case !seen:
				out[a.Arg] = mod
			case prev == mod:
			case prev == qltypes.SetOfType || mod == qltypes.SetOfType:
				return nil, diag.NewQueryError(diag.ErrCodeQuery, diag.Span{},
					"argument could be SET OF or not in call to %s", call.Func.Signature())
			default:
				out[a.Arg] = qltypes.OptionalType
			}
		}
	}
	return out, nil
}

// Candidates converts a slice of functions, operators or casts to
// callables.
func Candidates[C schema.Callable](cs []C) []schema.Callable {
	out := make([]schema.Callable, len(cs))
	for i, c := range cs {
		out[i] = c
	}
	return out
}

func sortCandidates(candidates []schema.Callable) []schema.Callable {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b schema.Callable) int {
		return strings.Compare(a.Signature(), b.Signature())
	})
	return out
}

// pending is an argument slot during binding: either a bound argument or
// a parameter that fell back to its default.
type pending[V any] struct {
	bound   BoundArg[V]
	missing bool
}

type binder[V any] struct {
	s    *schema.Schema
	opts Options

	abstract bool
	polyBase schema.Type
}

func tryBind[V any](
	s *schema.Schema,
	fn schema.Callable,
	args []Arg[V],
	kwargs map[string]Arg[V],
	opts Options,
) (BoundCall[V], bool, error) {
	b := &binder[V]{s: s, opts: opts, abstract: fn.IsAbstract()}
	params := canonicalOrder(fn.Params())
	nargs := len(args)
	inlined := fn.HasInlinedDefaults()

	call := BoundCall[V]{
		Func:             fn,
		ReturnType:       fn.ReturnType(),
		VariadicArgID:    -1,
		VariadicArgCount: -1,
	}

	if len(params) == 0 {
		if nargs > 0 || len(kwargs) > 0 {
			return call, false, nil
		}
		if inlined {
			bytes := s.MustType(schema.StdName("bytes"))
			call.DefaultsMask = []byte{0}
			call.Args = []BoundArg[V]{{ParamType: bytes, ValueType: bytes, Arg: NoArg}}
		}
		return call, true, nil
	}

	if nargs == 0 && len(kwargs) == 0 {
		for _, p := range params {
			if p.Kind != qltypes.VariadicParam && !p.HasDefault() {
				return call, false, nil
			}
		}
	}

	var (
		prep       []pending[V]
		hasMissing bool
		namedOnly  bool
		pi         int
	)

	// Named-only parameters come first in canonical order.
	usedKwargs := 0
	for pi < len(params) && params[pi].Kind == qltypes.NamedOnlyParam {
		p := &params[pi]
		pi++
		namedOnly = true
		arg, ok := kwargs[p.Name]
		if !ok {
			if !p.HasDefault() {
				return call, false, nil
			}
			hasMissing = true
			prep = append(prep, pending[V]{missing: true, bound: BoundArg[V]{Param: p, ParamType: p.Type}})
			continue
		}
		usedKwargs++
		cd := b.castDistance(arg.Type, p.Type)
		if cd < 0 {
			return call, false, nil
		}
		prep = append(prep, pending[V]{bound: BoundArg[V]{
			Param: p, ParamType: p.Type, Value: arg.Value, ValueType: arg.Type,
			CastDistance: cd, Arg: keyword(p.Name),
		}})
	}
	if usedKwargs != len(kwargs) {
		return call, false, nil
	}

	ai := 0
	for ai < nargs {
		if pi >= len(params) {
			return call, false, nil
		}
		p := &params[pi]
		pi++

		if p.Kind == qltypes.VariadicParam {
			elem := p.Type
			if arr, ok := p.Type.(*schema.ArrayType); ok {
				elem = arr.Element
			}
			call.VariadicArgID = ai
			call.VariadicArgCount = nargs - ai
			for ; ai < nargs; ai++ {
				arg := args[ai]
				cd := b.castDistance(arg.Type, elem)
				if cd < 0 {
					return call, false, nil
				}
				prep = append(prep, pending[V]{bound: BoundArg[V]{
					Param: p, ParamType: elem, Value: arg.Value, ValueType: arg.Type,
					CastDistance: cd, Arg: positional(ai),
				}})
			}
			break
		}

		arg := args[ai]
		cd := b.castDistance(arg.Type, p.Type)
		if cd < 0 {
			return call, false, nil
		}
		prep = append(prep, pending[V]{bound: BoundArg[V]{
			Param: p, ParamType: p.Type, Value: arg.Value, ValueType: arg.Type,
			CastDistance: cd, Arg: positional(ai),
		}})
		ai++
	}

	for i := pi; i < len(params); i++ {
		p := &params[i]
		switch p.Kind {
		case qltypes.PositionalParam:
			if !p.HasDefault() {
				return call, false, nil
			}
			hasMissing = true
			prep = append(prep, pending[V]{missing: true, bound: BoundArg[V]{Param: p, ParamType: p.Type}})
		case qltypes.VariadicParam:
			call.VariadicArgID = nargs
			call.VariadicArgCount = 0
		default:
			return call, false, diag.NewInternalError("unprocessed NAMED ONLY parameter %s", p.Name)
		}
	}

	var mask uint64
	bound := make([]BoundArg[V], 0, len(prep)+1)
	switch {
	case !hasMissing:
		for _, a := range prep {
			bound = append(bound, a.bound)
		}
	case inlined || namedOnly:
		for i, a := range prep {
			if !a.missing {
				bound = append(bound, a.bound)
				continue
			}
			p := a.bound.Param
			call.NullArgs = append(call.NullArgs, p.Name)
			mask |= 1 << uint(i)

			defaultType := p.Type
			if (inlined || isEmptyDefault(p.Default)) && !opts.BasicMatchingOnly && schema.IsAny(p.Type) {
				if b.polyBase == nil {
					return call, false, diag.NewQueryError(diag.ErrCodeQuery, diag.Span{},
						"could not resolve \"anytype\" type for the $%s parameter", p.Name)
				}
				defaultType = b.polyBase
			}
			bound = append(bound, BoundArg[V]{
				Param:     p,
				ParamType: defaultType,
				ValueType: defaultType,
				Arg:       NoArg,
				IsDefault: true,
			})
		}
	default:
		for _, a := range prep {
			if !a.missing {
				bound = append(bound, a.bound)
			}
		}
	}

	if inlined {
		bytes := s.MustType(schema.StdName("bytes"))
		call.DefaultsMask = littleEndian(mask, len(params)/8+1)
		bound = slices.Insert(bound, 0, BoundArg[V]{ParamType: bytes, ValueType: bytes, Arg: NoArg})
	}

	if schema.IsPolymorphic(call.ReturnType) {
		switch {
		case b.polyBase != nil:
			call.ReturnType = s.ToNonPolymorphic(call.ReturnType, b.polyBase)
		case !opts.InAbstractDefinition && !opts.BasicMatchingOnly:
			return call, false, nil
		}
	}

	if b.polyBase != nil {
		for i := range bound {
			if schema.IsPolymorphic(bound[i].ParamType) {
				bound[i].ParamType = s.ToNonPolymorphic(bound[i].ParamType, b.polyBase)
			}
		}
	}

	call.Args = bound
	return call, true, nil
}

// canonicalOrder puts named-only parameters first, keeping the relative
// order of the rest.
func canonicalOrder(params []schema.Parameter) []schema.Parameter {
	out := make([]schema.Parameter, 0, len(params))
	for _, p := range params {
		if p.Kind == qltypes.NamedOnlyParam {
			out = append(out, p)
		}
	}
	for _, p := range params {
		if p.Kind != qltypes.NamedOnlyParam {
			out = append(out, p)
		}
	}
	return out
}

// castDistance scores binding a value of type arg to a parameter of type
// param: 0 for an exact or subtype match, the implicit cast distance
// otherwise, and -1 when the argument cannot bind.
func (b *binder[V]) castDistance(arg, param schema.Type) int {
	if b.opts.BasicMatchingOnly {
		return 0
	}
	s := b.s

	// An untyped empty set binds to any parameter without fixing the
	// polymorphic base.
	if schema.IsAny(arg) {
		return 0
	}

	if schema.IsPolymorphic(param) {
		if !s.TestPolymorphic(arg, param) {
			return -1
		}
		resolved := s.ResolvePolymorphic(param, arg)
		if resolved == nil {
			return -1
		}
		if b.polyBase == nil {
			b.polyBase = resolved
		}
		if schema.Same(b.polyBase, resolved) {
			switch {
			case b.abstract:
				return schema.MaxTypeDistance
			case rangeToMultirange(arg, param):
				return 1
			default:
				return 0
			}
		}

		if common := s.FindCommonImplicitlyCastableType(b.polyBase, resolved); common != nil {
			b.polyBase = common
			if b.abstract {
				return schema.MaxTypeDistance
			}
			return 0
		}
		if refined := s.ResolvePolymorphic(resolved, b.polyBase); refined != nil {
			b.polyBase = refined
			if b.abstract {
				return schema.MaxTypeDistance
			}
			return 0
		}
		return -1
	}

	if s.IsSubclass(arg, param) {
		return 0
	}
	return s.ImplicitCastDistance(arg, param)
}

func rangeToMultirange(arg, param schema.Type) bool {
	_, isRange := arg.(*schema.RangeType)
	_, isMulti := param.(*schema.MultirangeType)
	return isRange && isMulti
}

// isEmptyDefault reports whether a parameter default is the empty set,
// possibly under a cast.
func isEmptyDefault(e qlast.Expr) bool {
	switch e := e.(type) {
	case *qlast.Set:
		return len(e.Elements) == 0
	case *qlast.TypeCast:
		return isEmptyDefault(e.Expr)
	default:
		return false
	}
}

func littleEndian(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		if i < 8 {
			out[i] = byte(v >> (8 * uint(i)))
		}
	}
	return out
}
