package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep hashes of different kinds of content apart. The
// version suffix allows the encoding to change without collisions.
const (
	DomainStatement = "pathql/statement/v1"
	DomainQuery     = "pathql/query/v1"
)

// hashWithDomain returns hex(SHA-256(domain || 0x00 || data)).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical encoding of a compiled statement. Two
// compilations that produce the same IR have the same fingerprint
// regardless of when or where they ran.
func Fingerprint(stmt *Statement) (string, error) {
	enc, err := Encode(stmt)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	canonical, err := MarshalCanonical(enc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainStatement, canonical), nil
}

// QueryKey identifies a query source compiled against a schema version
// with a set of options. It is the lookup key of the statement cache.
func QueryKey(source string, schemaVersion string, options Object) (string, error) {
	canonical, err := MarshalCanonical(Obj(
		F("source", Str(source)),
		F("schema", Str(schemaVersion)),
		F("options", options),
	))
	if err != nil {
		return "", fmt.Errorf("query key: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}
