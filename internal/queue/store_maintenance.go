package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of candidates grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.queryWithRetry(ctx, `SELECT status, COUNT(1) FROM candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates candidate state for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusPublished:
			health.Published += count
		case StatusDrafted:
			health.Drafted += count
		case StatusAutoFailed:
			health.AutoFailed += count
		}
	}

	err = s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&health.Retrying, &health.NeedsReview)
	}, `SELECT
            COALESCE(SUM(CASE WHEN attempt_count > 0 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(needs_review), 0)
        FROM candidates WHERE status = ?`, StatusPending)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("pending breakdown: %w", err)
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the database file.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: schemaVersion,
	}

	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true
	if version, err := s.storedSchemaVersion(connCtx); err == nil {
		health.SchemaVersion = version
	}

	counts := []struct {
		table string
		dst   *int
	}{
		{"candidates", &health.TotalCandidates},
		{"decisions", &health.TotalDecisions},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
