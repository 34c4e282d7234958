package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/model"
)

// migration is a flat, versioned slice of SQL blocks applied in order,
// each guarded by a row in schema_versions so re-running NewSQLiteStore
// against an already-migrated file is a no-op.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS insights (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	emoji TEXT NOT NULL,
	preview TEXT NOT NULL,
	body TEXT NOT NULL,
	urgency INTEGER NOT NULL,
	context_fingerprint TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_fingerprint ON insights(context_fingerprint);
CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights(created_at);

CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed Store at
// path, applies WAL mode and foreign key enforcement, then runs any
// unapplied migrations.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, jasperr.Wrap(jasperr.StoreError, "store.NewSQLiteStore", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, jasperr.Wrap(jasperr.StoreError, "store.NewSQLiteStore", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		return nil, jasperr.Wrap(jasperr.StoreError, "store.NewSQLiteStore", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);`); err != nil {
		return jasperr.Wrap(jasperr.StoreError, "store.migrate", err)
	}

	for _, m := range migrations {
		var applied int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&applied)
		if err != nil {
			return jasperr.Wrap(jasperr.StoreError, "store.migrate", err)
		}
		if applied > 0 {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return jasperr.Wrap(jasperr.StoreError, "store.migrate", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return jasperr.Wrap(jasperr.StoreError, "store.migrate", fmt.Errorf("migration %d: %w", m.version, err))
		}
		if _, err := tx.Exec(`INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)`, m.version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return jasperr.Wrap(jasperr.StoreError, "store.migrate", err)
		}
		if err := tx.Commit(); err != nil {
			return jasperr.Wrap(jasperr.StoreError, "store.migrate", err)
		}
	}
	return nil
}

const kvCurrentPointerKey = "current_insight_pointer"

func (s *sqliteStore) Append(ctx context.Context, insight model.Insight) (model.Insight, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Insight{}, jasperr.Wrap(jasperr.StoreError, "store.Append", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO insights (created_at, emoji, preview, body, urgency, context_fingerprint, provider, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		insight.CreatedAt.UTC().Format(time.RFC3339Nano), insight.Emoji, insight.Preview, insight.Body,
		int(insight.Urgency), insight.ContextFingerprint, insight.Provider, insight.Model)
	if err != nil {
		return model.Insight{}, jasperr.Wrap(jasperr.StoreError, "store.Append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Insight{}, jasperr.Wrap(jasperr.StoreError, "store.Append", err)
	}
	insight.ID = id

	pointer := model.CurrentInsightPointer{
		CurrentInsightID:        id,
		LastAnalyzedFingerprint: insight.ContextFingerprint,
		LastAnalyzedAt:          insight.CreatedAt,
	}
	if err := putPointer(ctx, tx, pointer); err != nil {
		return model.Insight{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Insight{}, jasperr.Wrap(jasperr.StoreError, "store.Append", err)
	}
	return insight, nil
}

func (s *sqliteStore) RecordEvaluation(ctx context.Context, fingerprint string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return jasperr.Wrap(jasperr.StoreError, "store.RecordEvaluation", err)
	}
	defer tx.Rollback()

	pointer, err := getPointer(ctx, tx)
	if err != nil && !jasperr.Is(err, jasperr.NotFound) {
		return err
	}
	pointer.LastAnalyzedFingerprint = fingerprint
	pointer.LastAnalyzedAt = time.Now()
	if err := putPointer(ctx, tx, pointer); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Pointer(ctx context.Context) (model.CurrentInsightPointer, error) {
	return getPointer(ctx, s.db)
}

// execer is the subset of *sql.DB / *sql.Tx this package needs, so
// pointer helpers work against either a bare connection or an open
// transaction.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getPointer(ctx context.Context, e execer) (model.CurrentInsightPointer, error) {
	var raw string
	err := e.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, kvCurrentPointerKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.CurrentInsightPointer{}, jasperr.New(jasperr.NotFound, "store.Pointer", "no current insight pointer")
	}
	if err != nil {
		return model.CurrentInsightPointer{}, jasperr.Wrap(jasperr.StoreError, "store.Pointer", err)
	}
	return decodePointer(raw)
}

func putPointer(ctx context.Context, e execer, p model.CurrentInsightPointer) error {
	raw := encodePointer(p)
	_, err := e.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, kvCurrentPointerKey, raw)
	if err != nil {
		return jasperr.Wrap(jasperr.StoreError, "store.putPointer", err)
	}
	return nil
}

func encodePointer(p model.CurrentInsightPointer) string {
	return fmt.Sprintf("%d|%s|%s", p.CurrentInsightID, p.LastAnalyzedFingerprint, p.LastAnalyzedAt.UTC().Format(time.RFC3339Nano))
}

func decodePointer(raw string) (model.CurrentInsightPointer, error) {
	idStr, rest, ok := strings.Cut(raw, "|")
	if !ok {
		return model.CurrentInsightPointer{}, jasperr.New(jasperr.StoreError, "store.decodePointer", "malformed pointer record")
	}
	fp, ts, _ := strings.Cut(rest, "|")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return model.CurrentInsightPointer{}, jasperr.Wrap(jasperr.StoreError, "store.decodePointer", err)
	}
	t, _ := time.Parse(time.RFC3339Nano, ts)
	return model.CurrentInsightPointer{CurrentInsightID: id, LastAnalyzedFingerprint: fp, LastAnalyzedAt: t}, nil
}

func (s *sqliteStore) Current(ctx context.Context) (model.Insight, error) {
	pointer, err := s.Pointer(ctx)
	if err != nil {
		return model.Insight{}, err
	}
	if pointer.CurrentInsightID == 0 {
		return model.Insight{}, jasperr.New(jasperr.NotFound, "store.Current", "no insight committed yet")
	}
	return s.ByID(ctx, pointer.CurrentInsightID)
}

func (s *sqliteStore) ByID(ctx context.Context, id int64) (model.Insight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, emoji, preview, body, urgency, context_fingerprint, provider, model FROM insights WHERE id = ?`, id)
	return scanInsight(row)
}

func scanInsight(row *sql.Row) (model.Insight, error) {
	var insight model.Insight
	var createdAt string
	var urgency int
	err := row.Scan(&insight.ID, &createdAt, &insight.Emoji, &insight.Preview, &insight.Body, &urgency, &insight.ContextFingerprint, &insight.Provider, &insight.Model)
	if err == sql.ErrNoRows {
		return model.Insight{}, jasperr.New(jasperr.NotFound, "store.ByID", "insight not found")
	}
	if err != nil {
		return model.Insight{}, jasperr.Wrap(jasperr.StoreError, "store.ByID", err)
	}
	insight.Urgency = model.Urgency(urgency)
	insight.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return insight, nil
}

func (s *sqliteStore) List(ctx context.Context, sinceID int64, limit int) ([]model.Insight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, emoji, preview, body, urgency, context_fingerprint, provider, model FROM insights WHERE id > ? ORDER BY id ASC LIMIT ?`, sinceID, limit)
	if err != nil {
		return nil, jasperr.Wrap(jasperr.StoreError, "store.List", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var insight model.Insight
		var createdAt string
		var urgency int
		if err := rows.Scan(&insight.ID, &createdAt, &insight.Emoji, &insight.Preview, &insight.Body, &urgency, &insight.ContextFingerprint, &insight.Provider, &insight.Model); err != nil {
			return nil, jasperr.Wrap(jasperr.StoreError, "store.List", err)
		}
		insight.Urgency = model.Urgency(urgency)
		insight.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, insight)
	}
	return out, rows.Err()
}

// Retain deletes insights outside the keep-last-N window or older than
// maxAge, but never the current insight: the pointer row is excluded from
// both conditions regardless of its age or rank.
func (s *sqliteStore) Retain(ctx context.Context, maxAge int64, maxCount int) (int64, error) {
	pointer, err := s.Pointer(ctx)
	if err != nil && !jasperr.Is(err, jasperr.NotFound) {
		return 0, err
	}
	cutoff := time.Now().Add(-time.Duration(maxAge) * time.Second).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM insights WHERE id != ? AND (
			id NOT IN (SELECT id FROM insights ORDER BY id DESC LIMIT ?)
			OR created_at < ?
		)`, pointer.CurrentInsightID, maxCount, cutoff)
	if err != nil {
		return 0, jasperr.Wrap(jasperr.StoreError, "store.Retain", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, jasperr.Wrap(jasperr.StoreError, "store.Retain", err)
	}
	return n, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
