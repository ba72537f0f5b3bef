package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

// Archive records every run in SQLite. Each contact is committed as soon as
// it completes, so an interrupted run keeps what it already harvested.
type Archive struct {
	db     *sql.DB
	dbPath string
}

// OpenArchive opens or creates the archive at path.
func OpenArchive(path string) (*Archive, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenArchive")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	a := &Archive{db: db, dbPath: path}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logging.Store("archive ready at %s", path)
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		contacts INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		messages INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS contacts (
		run_id TEXT NOT NULL REFERENCES runs(id),
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		finished_at DATETIME,
		PRIMARY KEY (run_id, name)
	);

	CREATE TABLE IF NOT EXISTS messages (
		run_id TEXT NOT NULL,
		contact TEXT NOT NULL,
		seq INTEGER NOT NULL,
		reply_sender TEXT,
		reply_text TEXT,
		reply_is_media INTEGER NOT NULL DEFAULT 0,
		has_reply INTEGER NOT NULL DEFAULT 0,
		header TEXT,
		body TEXT,
		media TEXT NOT NULL,
		PRIMARY KEY (run_id, contact, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_contact ON messages(run_id, contact);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Begin implements Sink.
func (a *Archive) Begin(ctx context.Context, run Run) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at) VALUES (?, ?)`,
		run.ID, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Put implements Sink.
func (a *Archive) Put(ctx context.Context, res types.ContactResult) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var errText sql.NullString
	if res.Err != nil {
		errText = sql.NullString{String: res.Err.Error(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO contacts (run_id, name, position, status, error, message_count, row_errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Name, res.Position, string(res.Status), errText, len(res.Records), res.RowErrors,
		res.StartedAt.UTC(), res.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("record contact %q: %w", res.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE run_id = ? AND contact = ?`, res.RunID, res.Name); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (run_id, contact, seq, reply_sender, reply_text, reply_is_media, has_reply, header, body, media)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range res.Records {
		var sender, quoted sql.NullString
		isMedia, hasReply := false, false
		if rec.Reply != nil {
			hasReply = true
			sender = nullString(rec.Reply.Sender)
			quoted = nullString(rec.Reply.QuotedText)
			isMedia = rec.Reply.IsMedia
		}
		if _, err := stmt.ExecContext(ctx, res.RunID, res.Name, i, sender, quoted, isMedia, hasReply,
			nullString(rec.Header), nullString(rec.Text), rec.Media.String()); err != nil {
			return fmt.Errorf("record message %d of %q: %w", i, res.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.StoreDebug("archived %q: %s, %d messages", res.Name, res.Status, len(res.Records))
	return nil
}

// Finish implements Sink.
func (a *Archive) Finish(ctx context.Context, run Run) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, contacts = ?, failed = ?, messages = ? WHERE id = ?`,
		run.FinishedAt.UTC(), run.Contacts, run.Failed, run.Messages, run.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// ContactSummary is one archived contact.
type ContactSummary struct {
	Name      string
	Position  int
	Status    types.ContactStatus
	Messages  int
	RowErrors int
	Err       string
}

// RunSummary is an archived run with its contacts in harvest order.
type RunSummary struct {
	Run      Run
	Contacts []ContactSummary
}

// Summary returns the archived state of a run.
func (a *Archive) Summary(ctx context.Context, runID string) (*RunSummary, error) {
	var s RunSummary
	var finished sql.NullTime
	err := a.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, contacts, failed, messages FROM runs WHERE id = ?`, runID).
		Scan(&s.Run.ID, &s.Run.StartedAt, &finished, &s.Run.Contacts, &s.Run.Failed, &s.Run.Messages)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		s.Run.FinishedAt = finished.Time
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT name, position, status, COALESCE(error, ''), message_count, row_errors
		FROM contacts WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c ContactSummary
		var status string
		if err := rows.Scan(&c.Name, &c.Position, &status, &c.Err, &c.Messages, &c.RowErrors); err != nil {
			return nil, err
		}
		c.Status = types.ContactStatus(status)
		s.Contacts = append(s.Contacts, c)
	}
	return &s, rows.Err()
}

// Runs lists archived runs, newest first.
func (a *Archive) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, contacts, failed, messages
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Contacts, &r.Failed, &r.Messages); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Messages returns the archived records of one contact in row order.
func (a *Archive) Messages(ctx context.Context, runID, contact string) ([]types.MessageRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT has_reply, COALESCE(reply_sender, ''), COALESCE(reply_text, ''), reply_is_media,
		       COALESCE(header, ''), COALESCE(body, ''), media
		FROM messages WHERE run_id = ? AND contact = ? ORDER BY seq`, runID, contact)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.MessageRecord
	for rows.Next() {
		var rec types.MessageRecord
		var hasReply, isMedia bool
		var sender, quoted, media string
		if err := rows.Scan(&hasReply, &sender, &quoted, &isMedia, &rec.Header, &rec.Text, &media); err != nil {
			return nil, err
		}
		if hasReply {
			rec.Reply = &types.Reply{Sender: sender, QuotedText: quoted, IsMedia: isMedia}
		}
		if rec.Media, err = types.ParseMediaKind(media); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Export replays an archived run into sink, contacts in harvest order.
func (a *Archive) Export(ctx context.Context, runID string, sink Sink) error {
	summary, err := a.Summary(ctx, runID)
	if err != nil {
		return err
	}
	if err := sink.Begin(ctx, summary.Run); err != nil {
		return err
	}
	for _, c := range summary.Contacts {
		res := types.ContactResult{RunID: runID, Name: c.Name, Position: c.Position, Status: c.Status, RowErrors: c.RowErrors}
		if c.Status != types.ContactFailed {
			if res.Records, err = a.Messages(ctx, runID, c.Name); err != nil {
				return err
			}
		}
		if err := sink.Put(ctx, res); err != nil {
			return err
		}
	}
	if summary.Run.FinishedAt.IsZero() {
		summary.Run.FinishedAt = time.Now()
	}
	return sink.Finish(ctx, summary.Run)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
