// Package history keeps a persistent, append-only journal of the media
// deletions the backend confirmed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one confirmed deletion.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Library    string    `json:"library"`
	ContentKey string    `json:"content_key"`
	Title      string    `json:"title"`
	MediaID    int64     `json:"media_id"`
	Bytes      int64     `json:"bytes"`
	Files      []string  `json:"files"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// LibraryTotal aggregates the journal per library.
type LibraryTotal struct {
	Library string `json:"library"`
	Count   int64  `json:"count"`
	Bytes   int64  `json:"bytes"`
}

// Journal writes and reads the deletion_log table.
type Journal struct {
	db        *sql.DB
	sessionID string
}

// New creates a Journal. Every entry recorded through it carries the same
// freshly generated session id.
func New(db *sql.DB) *Journal {
	return &Journal{db: db, sessionID: uuid.NewString()}
}

// SessionID identifies this process in the journal.
func (j *Journal) SessionID() string { return j.sessionID }

// Record appends e. SessionID and DeletedAt are filled in when empty.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.SessionID == "" {
		e.SessionID = j.sessionID
	}
	if e.DeletedAt.IsZero() {
		e.DeletedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO deletion_log
			(session_id, library, content_key, title, media_id, bytes, files, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Library, e.ContentKey, e.Title, e.MediaID, e.Bytes,
		strings.Join(e.Files, "\n"), e.DeletedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert deletion record: %w", err)
	}
	id, _ := res.LastInsertId()
	slog.Debug("deletion journaled", "id", id, "media_id", e.MediaID, "library", e.Library)
	return id, nil
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, library, content_key, title, media_id, bytes, files, deleted_at
		FROM deletion_log
		ORDER BY deleted_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query deletion log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			files     string
			deletedAt int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Library, &e.ContentKey, &e.Title,
			&e.MediaID, &e.Bytes, &files, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan deletion row: %w", err)
		}
		if files != "" {
			e.Files = strings.Split(files, "\n")
		}
		e.DeletedAt = time.Unix(deletedAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of journal entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deletion_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deletion log: %w", err)
	}
	return n, nil
}

// Totals aggregates count and bytes per library, largest first.
func (j *Journal) Totals(ctx context.Context) ([]LibraryTotal, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT library, COUNT(*), COALESCE(SUM(bytes), 0)
		FROM deletion_log
		GROUP BY library
		ORDER BY SUM(bytes) DESC, library`)
	if err != nil {
		return nil, fmt.Errorf("query deletion totals: %w", err)
	}
	defer rows.Close()

	totals := []LibraryTotal{}
	for rows.Next() {
		var t LibraryTotal
		if err := rows.Scan(&t.Library, &t.Count, &t.Bytes); err != nil {
			return nil, fmt.Errorf("scan deletion totals: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Purge removes entries older than the cutoff and returns how many went.
// Intended to be called by the scheduler.
func (j *Journal) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM deletion_log WHERE deleted_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge deletion log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("deletion log purged", "entries", n, "older_than", olderThan.Format(time.RFC3339))
	}
	return n, nil
}
