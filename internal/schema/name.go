package schema

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// StdModule is the module holding builtin types and callables.
const StdModule = "std"

// DefaultModule is the module unqualified user names resolve to.
const DefaultModule = "default"

// Name is a module-qualified schema name. Collection types carry an empty
// module and their full type expression as Name.
type Name struct {
	Module string
	Name   string
}

// NewName builds a Name, normalizing both parts to Unicode NFC so that
// identifiers written in different normalization forms compare equal.
func NewName(module, name string) Name {
	return Name{Module: norm.NFC.String(module), Name: norm.NFC.String(name)}
}

// StdName is shorthand for NewName(StdModule, name).
func StdName(name string) Name {
	return NewName(StdModule, name)
}

// ParseName splits "module::name". A name without "::" is unqualified.
func ParseName(s string) Name {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		return NewName(s[:i], s[i+2:])
	}
	return NewName("", s)
}

func (n Name) String() string {
	if n.Module == "" {
		return n.Name
	}
	return n.Module + "::" + n.Name
}

// IsQualified reports whether the name carries a module.
func (n Name) IsQualified() bool {
	return n.Module != ""
}

// IsZero reports whether the name is empty.
func (n Name) IsZero() bool {
	return n.Module == "" && n.Name == ""
}

// idNamespace seeds the deterministic object ids.
var idNamespace = uuid.MustParse("8c3c1f0e-5a43-4d4e-9f0a-2b6d3c7e1a55")

// ObjectID derives a stable id for a schema object from its kind and
// qualified name. Ids are identical across processes and schema versions.
func ObjectID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(kind+"\x00"+name))
}
