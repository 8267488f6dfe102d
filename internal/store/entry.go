package store

import (
	"fmt"

	"github.com/roach88/pathql/internal/ir"
)

// Entry is one cached statement.
type Entry struct {
	Key           string
	Fingerprint   string
	CompileID     string
	Source        string
	SchemaVersion string
	ResultType    string
	Cardinality   string
	// IR is the canonical JSON encoding of the statement.
	IR   []byte
	Refs []string
	// Seq orders entries by insertion; Put assigns it.
	Seq int64
}

// NewEntry builds the cache entry for stmt compiled from source.
func NewEntry(key, source, schemaVersion string, stmt *ir.Statement) (Entry, error) {
	enc, err := ir.Encode(stmt)
	if err != nil {
		return Entry{}, fmt.Errorf("encode statement: %w", err)
	}
	data, err := ir.MarshalCanonical(enc)
	if err != nil {
		return Entry{}, fmt.Errorf("encode statement: %w", err)
	}
	e := Entry{
		Key:           key,
		Fingerprint:   stmt.Fingerprint,
		CompileID:     stmt.ID,
		Source:        source,
		SchemaVersion: schemaVersion,
		Cardinality:   stmt.Cardinality.String(),
		IR:            data,
	}
	if t := stmt.ResultType(); t != nil {
		e.ResultType = t.DisplayName()
	}
	for _, r := range stmt.SchemaRefs {
		e.Refs = append(e.Refs, r.String())
	}
	return e, nil
}
