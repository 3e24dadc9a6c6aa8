package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion lives in the SQLite header (PRAGMA user_version). Zero means
// a fresh file. There is no in-place upgrade: export decisions and move the
// database aside when this changes.
const schemaVersion = 1

// ErrSchemaMismatch is returned by Open for a database written by another
// schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SchemaVersion reports the schema version this build expects.
func SchemaVersion() int {
	return schemaVersion
}

func (s *Store) storedSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.storedSchemaVersion(ctx)
	if err != nil {
		return err
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("%w: database is at %d, this build needs %d; run 'autopublish decisions export' and move the database aside",
			ErrSchemaMismatch, version, schemaVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	// PRAGMA takes no bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}
