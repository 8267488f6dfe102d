package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const entryColumns = `query_key, fingerprint, compile_id, source, schema_version, result_type, cardinality, ir, seq`

// Get returns the entry stored under key. ok is false when there is none.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM statements WHERE query_key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get statement: %w", err)
	}
	refs, err := s.refs(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}
	e.Refs = refs
	return e, true, nil
}

// List returns every entry ordered by seq, then key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM statements
		ORDER BY seq ASC, query_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list statements: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}
	for i := range entries {
		refs, err := s.refs(ctx, entries[i].Key)
		if err != nil {
			return nil, err
		}
		entries[i].Refs = refs
	}
	return entries, nil
}

// Dependents returns the keys of the statements referencing ref.
func (s *Store) Dependents(ctx context.Context, ref string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.query_key
		FROM statement_refs r JOIN statements s ON s.query_key = r.query_key
		WHERE r.ref = ?
		ORDER BY s.seq ASC, r.query_key COLLATE BINARY ASC
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("dependents of %s: %w", ref, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Stats summarizes the cache.
type Stats struct {
	Statements int `json:"statements"`
	Refs       int `json:"refs"`
}

// Stats counts the cached statements and their refs.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Statements, err = s.count(ctx, "statements"); err != nil {
		return Stats{}, err
	}
	if st.Refs, err = s.count(ctx, "statement_refs"); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *Store) refs(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ref FROM statement_refs WHERE query_key = ?
		ORDER BY ref COLLATE BINARY ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("refs of %s: %w", key, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var irJSON string
	if err := row.Scan(
		&e.Key, &e.Fingerprint, &e.CompileID, &e.Source, &e.SchemaVersion,
		&e.ResultType, &e.Cardinality, &irJSON, &e.Seq,
	); err != nil {
		return Entry{}, err
	}
	e.IR = []byte(irJSON)
	return e, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
