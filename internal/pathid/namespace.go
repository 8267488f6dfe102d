package pathid

import (
	"slices"
	"strings"
)

// Namespace scopes a PathID. Weak namespaces take part in equality but are
// ignored by SameIdentity; the compiler uses them for speculative
// scopes that may later be folded into their parent.
type Namespace struct {
	Name string
	Weak bool
}

func (n Namespace) String() string {
	if n.Weak {
		return n.Name + "~w"
	}
	return n.Name
}

// NamespaceSet is a sorted set of namespaces. The zero value is the empty
// set.
type NamespaceSet []Namespace

// NewNamespaceSet builds a set from ns, dropping duplicates.
func NewNamespaceSet(ns ...Namespace) NamespaceSet {
	if len(ns) == 0 {
		return nil
	}
	out := slices.Clone(ns)
	slices.SortFunc(out, compareNamespace)
	return slices.Compact(out)
}

// Strong builds a set of non-weak namespaces from names.
func Strong(names ...string) NamespaceSet {
	ns := make([]Namespace, len(names))
	for i, n := range names {
		ns[i] = Namespace{Name: n}
	}
	return NewNamespaceSet(ns...)
}

func compareNamespace(a, b Namespace) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	switch {
	case a.Weak == b.Weak:
		return 0
	case !a.Weak:
		return -1
	default:
		return 1
	}
}

// Union returns s | o.
func (s NamespaceSet) Union(o NamespaceSet) NamespaceSet {
	if len(o) == 0 {
		return s
	}
	if len(s) == 0 {
		return o
	}
	return NewNamespaceSet(append(slices.Clone(s), o...)...)
}

// Minus returns s without the namespaces whose names appear in o.
func (s NamespaceSet) Minus(o NamespaceSet) NamespaceSet {
	var out NamespaceSet
	for _, n := range s {
		if !o.Contains(n.Name) {
			out = append(out, n)
		}
	}
	return out
}

// Contains reports whether a namespace with the given name is in s.
func (s NamespaceSet) Contains(name string) bool {
	for _, n := range s {
		if n.Name == name {
			return true
		}
	}
	return false
}

// Equal reports set equality.
func (s NamespaceSet) Equal(o NamespaceSet) bool {
	return slices.Equal(s, o)
}

// HasWeak reports whether any namespace in s is weak.
func (s NamespaceSet) HasWeak() bool {
	for _, n := range s {
		if n.Weak {
			return true
		}
	}
	return false
}

// Strong returns the non-weak subset of s.
func (s NamespaceSet) Strong() NamespaceSet {
	var out NamespaceSet
	for _, n := range s {
		if !n.Weak {
			out = append(out, n)
		}
	}
	return out
}

// Names lists the namespace names in order.
func (s NamespaceSet) Names() []string {
	out := make([]string, len(s))
	for i, n := range s {
		out[i] = n.Name
	}
	return out
}

// String joins the namespaces with "@".
func (s NamespaceSet) String() string {
	parts := make([]string, len(s))
	for i, n := range s {
		parts[i] = n.String()
	}
	return strings.Join(parts, "@")
}

func (s NamespaceSet) key() string {
	return s.String()
}
