// Package journal keeps a local record of messages sent through a session.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/predicatestudio/gmapi/internal/gmail"
)

// Entry is one sent message.
type Entry struct {
	MessageID gmail.MessageID
	ThreadID  gmail.ThreadID
	LabelIDs  []gmail.LabelID
	To        string
	Subject   string
	Size      int
	SentAt    time.Time
}

type row struct {
	ID        int64  `db:"id"`
	MessageID string `db:"message_id"`
	ThreadID  string `db:"thread_id"`
	LabelIDs  string `db:"label_ids"`
	Recipient string `db:"recipient"`
	Subject   string `db:"subject"`
	Size      int    `db:"size_bytes"`
	SentAt    int64  `db:"sent_at"`
}

// Journal is a SQLite-backed record of sent messages.
type Journal struct {
	db *sqlx.DB
}

// Open opens (or creates) the journal at path and applies pending migrations.
// Use ":memory:" for a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	current := 0
	var tables int
	err := j.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := j.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := j.db.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Record stores e. A zero SentAt is replaced with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	labels := make([]string, len(e.LabelIDs))
	for i, l := range e.LabelIDs {
		labels[i] = string(l)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sent_messages (message_id, thread_id, label_ids, recipient, subject, size_bytes, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.MessageID), string(e.ThreadID), strings.Join(labels, ","),
		e.To, e.Subject, e.Size, e.SentAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording sent message %s: %w", e.MessageID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []row
	err := j.db.SelectContext(ctx, &rows,
		"SELECT * FROM sent_messages ORDER BY sent_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent sent messages: %w", err)
	}
	return toEntries(rows), nil
}

// ByThread returns every entry sent into thread, oldest first.
func (j *Journal) ByThread(ctx context.Context, thread gmail.ThreadID) ([]Entry, error) {
	var rows []row
	err := j.db.SelectContext(ctx, &rows,
		"SELECT * FROM sent_messages WHERE thread_id = ? ORDER BY sent_at, id", string(thread))
	if err != nil {
		return nil, fmt.Errorf("querying thread %s: %w", thread, err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []row) []Entry {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{
			MessageID: gmail.MessageID(r.MessageID),
			ThreadID:  gmail.ThreadID(r.ThreadID),
			To:        r.Recipient,
			Subject:   r.Subject,
			Size:      r.Size,
			SentAt:    time.UnixMilli(r.SentAt),
		}
		if r.LabelIDs != "" {
			for _, l := range strings.Split(r.LabelIDs, ",") {
				e.LabelIDs = append(e.LabelIDs, gmail.LabelID(l))
			}
		}
		out = append(out, e)
	}
	return out
}
