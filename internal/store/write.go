package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Put stores e under e.Key, replacing any previous entry and its refs.
// It returns the entry's assigned seq.
func (s *Store) Put(ctx context.Context, e Entry) (int64, error) {
	if e.Key == "" {
		return 0, fmt.Errorf("put statement: empty key")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("put statement: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM statements`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("put statement: next seq: %w", err)
	}

	// Deleting first drops the old refs through the cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM statements WHERE query_key = ?`, e.Key); err != nil {
		return 0, fmt.Errorf("put statement: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO statements
		(query_key, fingerprint, compile_id, source, schema_version, result_type, cardinality, ir, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Key,
		e.Fingerprint,
		e.CompileID,
		e.Source,
		e.SchemaVersion,
		e.ResultType,
		e.Cardinality,
		string(e.IR),
		seq,
	)
	if err != nil {
		return 0, fmt.Errorf("put statement: %w", err)
	}
	if err := insertRefs(ctx, tx, e.Key, e.Refs); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("put statement: commit: %w", err)
	}
	return seq, nil
}

func insertRefs(ctx context.Context, tx *sql.Tx, key string, refs []string) error {
	for _, ref := range refs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO statement_refs (query_key, ref) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, key, ref)
		if err != nil {
			return fmt.Errorf("put statement: ref %s: %w", ref, err)
		}
	}
	return nil
}

// Invalidate deletes every statement referencing one of refs and returns
// how many were deleted.
func (s *Store) Invalidate(ctx context.Context, refs ...string) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	args := make([]any, len(refs))
	for i, r := range refs {
		args[i] = r
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(refs)), ", ")
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM statements WHERE query_key IN (
			SELECT query_key FROM statement_refs WHERE ref IN (`+placeholders+`)
		)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate: %w", err)
	}
	return n, nil
}

// Prune deletes statements compiled against any schema version other
// than keep.
func (s *Store) Prune(ctx context.Context, keep string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM statements WHERE schema_version != ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return n, nil
}

// Purge empties the cache.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM statements`)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return n, nil
}
