package schema

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qlast"
)

// LookupType resolves a possibly unqualified type name. Unqualified names
// are looked up in module first and then in std.
func (s *Schema) LookupType(name, module string) (Type, bool) {
	n := ParseName(name)
	if n.IsQualified() {
		return s.Type(n)
	}
	if t, ok := s.Type(NewName(module, n.Name)); ok {
		return t, true
	}
	return s.Type(StdName(n.Name))
}

// LookupFunctions resolves a possibly unqualified function name the same
// way LookupType does.
func (s *Schema) LookupFunctions(name, module string) (Name, []*Function) {
	n := ParseName(name)
	if n.IsQualified() {
		return n, s.Functions(n)
	}
	if fs := s.Functions(NewName(module, n.Name)); len(fs) > 0 {
		return NewName(module, n.Name), fs
	}
	return StdName(n.Name), s.Functions(StdName(n.Name))
}

// ResolveTypeName turns a type expression into a schema type.
func (s *Schema) ResolveTypeName(tn *qlast.TypeName, module string) (Type, error) {
	switch tn.Name {
	case "array", "range", "multirange":
		if len(tn.Subtypes) != 1 {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, tn.Span,
				"unexpected number of subtypes for %s: expecting 1, got %d", tn.Name, len(tn.Subtypes))
		}
		el, err := s.ResolveTypeName(tn.Subtypes[0], module)
		if err != nil {
			return nil, err
		}
		switch tn.Name {
		case "array":
			if _, nested := el.(*ArrayType); nested {
				return nil, diag.NewUnsupportedError(tn.Span, "nested arrays are not supported")
			}
			return &ArrayType{Element: el}, nil
		case "range":
			return &RangeType{Element: el}, nil
		default:
			return &MultirangeType{Element: el}, nil
		}

	case "tuple":
		if len(tn.Subtypes) == 0 {
			return AnyTuple, nil
		}
		els := make([]TupleElement, len(tn.Subtypes))
		named := false
		for i, st := range tn.Subtypes {
			t, err := s.ResolveTypeName(st, module)
			if err != nil {
				return nil, err
			}
			els[i] = TupleElement{Name: st.ElementName, Type: t}
			if st.ElementName != "" {
				named = true
			}
		}
		if named {
			for i, el := range els {
				if el.Name == "" {
					return nil, diag.NewQueryError(diag.ErrCodeQuery, tn.Subtypes[i].Span,
						"mixing named and unnamed tuple declaration is not supported")
				}
			}
			return NewNamedTuple(els...), nil
		}
		types := make([]Type, len(els))
		for i, el := range els {
			types[i] = el.Type
		}
		return NewTuple(types...), nil
	}

	if t, ok := s.LookupType(tn.Name, module); ok {
		return t, nil
	}

	candidates := append(s.TypeNamesInModule(module), s.TypeNamesInModule(StdModule)...)
	err := diag.NewReferenceError(diag.ErrCodeUnknownName, tn.Span, "type '%s' does not exist", tn.Name)
	if hint := diag.DidYouMean(ParseName(tn.Name).Name, candidates); hint != "" {
		err.WithHint(hint)
	}
	return nil, err
}

// ParseType parses and resolves a type expression such as
// "array<tuple<str, int64>>".
func (s *Schema) ParseType(expr, module string) (Type, error) {
	tn, err := qlast.ParseTypeName(expr)
	if err != nil {
		return nil, err
	}
	return s.ResolveTypeName(tn, module)
}
