// ABOUTME: SQLite implementation of the call ledger
// ABOUTME: Stores routed request observations and aggregates them for the stats API

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// defaultListLimit caps ListCalls when the filter sets no limit.
const defaultListLimit = 100

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// SaveCall stores a call record.
func (s *SQLiteStore) SaveCall(ctx context.Context, rec *CallRecord) error {
	query := `
		INSERT INTO calls (id, session_id, operation, started_at, duration_us, success, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	success := 0
	if rec.Success {
		success = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.Operation,
		formatTime(rec.StartedAt),
		rec.Duration.Microseconds(),
		success,
		nullString(rec.ErrorKind),
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}

	s.logger.Debug("saved call",
		"id", rec.ID,
		"session_id", rec.SessionID,
		"operation", rec.Operation,
		"success", rec.Success,
	)
	return nil
}

// GetCall retrieves a call record by ID.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*CallRecord, error) {
	query := `
		SELECT id, session_id, operation, started_at, duration_us, success, error_kind
		FROM calls
		WHERE id = ?
	`

	rec, err := scanCall(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListCalls returns matching calls, newest first.
func (s *SQLiteStore) ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, error) {
	where, args := filter.where()
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, session_id, operation, started_at, duration_us, success, error_kind
		FROM calls
	` + where + `
		ORDER BY started_at DESC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calls []*CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call rows: %w", err)
	}

	return calls, nil
}

// GetCallStats returns aggregated call statistics with optional filters.
func (s *SQLiteStore) GetCallStats(ctx context.Context, filter CallFilter) (*CallStats, error) {
	where, args := filter.where()

	query := `
		SELECT
			operation,
			COUNT(*) as calls,
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) as failures,
			COALESCE(AVG(duration_us), 0) as avg_us,
			COALESCE(MAX(duration_us), 0) as max_us
		FROM calls
	` + where + `
		GROUP BY operation
		ORDER BY calls DESC, operation ASC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying call stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &CallStats{
		ByOperation: []OperationStats{},
		ByErrorKind: map[string]int64{},
	}
	for rows.Next() {
		var op OperationStats
		var avgUs, maxUs float64
		if err := rows.Scan(&op.Operation, &op.Calls, &op.Failures, &avgUs, &maxUs); err != nil {
			return nil, fmt.Errorf("scanning call stats: %w", err)
		}
		op.AvgDurationMs = avgUs / 1000
		op.MaxDurationMs = maxUs / 1000
		stats.TotalCalls += op.Calls
		stats.TotalFailures += op.Failures
		stats.ByOperation = append(stats.ByOperation, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call stats: %w", err)
	}
	_ = rows.Close()

	kindWhere := where
	if kindWhere == "" {
		kindWhere = " WHERE error_kind IS NOT NULL"
	} else {
		kindWhere += " AND error_kind IS NOT NULL"
	}
	kindRows, err := s.db.QueryContext(ctx,
		`SELECT error_kind, COUNT(*) FROM calls`+kindWhere+` GROUP BY error_kind`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying error kinds: %w", err)
	}
	defer func() { _ = kindRows.Close() }()

	for kindRows.Next() {
		var kind string
		var n int64
		if err := kindRows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning error kinds: %w", err)
		}
		stats.ByErrorKind[kind] = n
	}
	if err := kindRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating error kinds: %w", err)
	}

	return stats, nil
}

// PruneCalls deletes calls that started before the cutoff.
func (s *SQLiteStore) PruneCalls(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE started_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning calls: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned call ledger", "deleted", n, "before", before)
	}
	return n, nil
}

func (f CallFilter) where() (string, []any) {
	var clauses []string
	var args []any

	if f.SessionID != nil {
		clauses = append(clauses, "session_id = ?")
		args = append(args, *f.SessionID)
	}
	if f.Operation != nil {
		clauses = append(clauses, "operation = ?")
		args = append(args, *f.Operation)
	}
	if f.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		clauses = append(clauses, "started_at < ?")
		args = append(args, formatTime(*f.Until))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCall scans a single call row into a CallRecord struct.
func scanCall(row rowScanner) (*CallRecord, error) {
	var rec CallRecord
	var startedAt string
	var durationUs int64
	var success int
	var errorKind sql.NullString

	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Operation, &startedAt, &durationUs, &success, &errorKind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call row: %w", err)
	}

	rec.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	rec.Duration = time.Duration(durationUs) * time.Microsecond
	rec.Success = success != 0
	if errorKind.Valid {
		rec.ErrorKind = errorKind.String
	}

	return &rec, nil
}
