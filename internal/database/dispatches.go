package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 50

// MaxRecentLimit caps Recent.
const MaxRecentLimit = 500

// Record inserts a journal entry. Missing IDs and timestamps are filled in.
func (d *Database) Record(ctx context.Context, rec *DispatchRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_dispatch", start, err) }()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO dispatches (id, created_at, filename, declared_mime, resolved_class, kind, mime,
		converted, fallback, status, error, recipient, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.CreatedAt.UnixMilli(),
		rec.Filename,
		rec.DeclaredMIME,
		rec.ResolvedClass,
		rec.Kind,
		rec.MIME,
		rec.Converted,
		rec.Fallback,
		rec.Status,
		rec.Error,
		rec.Recipient,
		rec.DurationMs,
	)
	return err
}

// Recent returns the newest journal entries first.
func (d *Database) Recent(ctx context.Context, limit int) ([]DispatchRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("recent_dispatches", start, err) }()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
	SELECT id, created_at, filename, declared_mime, resolved_class, kind, mime,
		converted, fallback, status, error, recipient, duration_ms
	FROM dispatches
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]DispatchRecord, 0, limit)
	for rows.Next() {
		var rec DispatchRecord
		var createdAt int64
		if err = rows.Scan(
			&rec.ID, &createdAt, &rec.Filename, &rec.DeclaredMIME, &rec.ResolvedClass,
			&rec.Kind, &rec.MIME, &rec.Converted, &rec.Fallback, &rec.Status,
			&rec.Error, &rec.Recipient, &rec.DurationMs,
		); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Prune deletes journal entries older than olderThan and returns the number
// of rows removed.
func (d *Database) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune_dispatches", start, err) }()

	cutoff := time.Now().Add(-olderThan).UnixMilli()

	d.mu.Lock()
	result, err := d.db.ExecContext(ctx, "DELETE FROM dispatches WHERE created_at < ?", cutoff)
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if setErr := d.SetLastPrune(ctx, time.Now()); setErr != nil {
		return removed, setErr
	}
	return removed, nil
}
