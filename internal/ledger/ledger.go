// Package ledger keeps a local SQLite record of pipeline runs so papers
// already written to Notion can be skipped on later runs.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/henrybloomingdale/paperstack/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	dry_run INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	fetched INTEGER NOT NULL DEFAULT 0,
	enriched INTEGER NOT NULL DEFAULT 0,
	enrich_failed INTEGER NOT NULL DEFAULT 0,
	written INTEGER NOT NULL DEFAULT 0,
	write_failed INTEGER NOT NULL DEFAULT 0,
	already_seen INTEGER NOT NULL DEFAULT 0,
	cancelled INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	paper_id TEXT NOT NULL,
	link TEXT NOT NULL,
	title TEXT NOT NULL,
	final TEXT NOT NULL,
	analysis TEXT NOT NULL DEFAULT '',
	write_state TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_paper ON outcomes(paper_id, write_state);
`

// RunRecord is one row of run history.
type RunRecord struct {
	ID           int64      `json:"id" yaml:"id"`
	Query        string     `json:"query" yaml:"query"`
	DryRun       bool       `json:"dry_run" yaml:"dry_run"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Fetched      int        `json:"fetched" yaml:"fetched"`
	Enriched     int        `json:"enriched" yaml:"enriched"`
	EnrichFailed int        `json:"enrich_failed" yaml:"enrich_failed"`
	Written      int        `json:"written" yaml:"written"`
	WriteFailed  int        `json:"write_failed" yaml:"write_failed"`
	AlreadySeen  int        `json:"already_seen" yaml:"already_seen"`
	Cancelled    bool       `json:"cancelled" yaml:"cancelled"`
}

// Ledger wraps the SQLite database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns the ledger location under the user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "paperstack.db"
	}
	return filepath.Join(dir, "paperstack", "ledger.db")
}

// Open opens or creates the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// Workers look up links while the aggregator records outcomes; one
	// connection keeps SQLite from reporting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// BeginRun inserts a run row and returns a handle that records outcomes for it.
func (l *Ledger) BeginRun(ctx context.Context, query string, dryRun bool) (*Run, error) {
	q, args, err := sq.Insert("runs").
		Columns("query", "dry_run", "started_at").
		Values(query, dryRun, formatTime(l.now())).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	res, err := l.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	return &Run{ID: id, ledger: l}, nil
}

// Seen reports whether any version of the paper id was written by an
// earlier run that was not a dry run.
func (l *Ledger) Seen(ctx context.Context, id string) (bool, error) {
	q, args, err := sq.Select("COUNT(*)").
		From("outcomes o").
		Join("runs r ON r.id = o.run_id").
		Where(sq.Eq{
			"o.paper_id":    id,
			"o.write_state": string(pipeline.StateWritten),
			"r.dry_run":     false,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var n int
	if err := l.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("query seen: %w", err)
	}
	return n > 0, nil
}

// History returns the most recent runs, newest first.
func (l *Ledger) History(ctx context.Context, limit int) ([]RunRecord, error) {
	b := sq.Select("id", "query", "dry_run", "started_at", "COALESCE(finished_at, '')",
		"fetched", "enriched", "enrich_failed", "written", "write_failed", "already_seen", "cancelled").
		From("runs").
		OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Query, &r.DryRun, &started, &finished,
			&r.Fetched, &r.Enriched, &r.EnrichFailed, &r.Written, &r.WriteFailed, &r.AlreadySeen, &r.Cancelled); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		if finished != "" {
			t := parseTime(finished)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run records the outcomes of one pipeline run.
type Run struct {
	ID     int64
	ledger *Ledger
}

// Seen delegates to the ledger.
func (r *Run) Seen(ctx context.Context, id string) (bool, error) {
	return r.ledger.Seen(ctx, id)
}

// Record stores one paper outcome.
func (r *Run) Record(ctx context.Context, o pipeline.Outcome) error {
	var errText string
	if o.Err != nil {
		errText = o.Err.Error()
	}

	q, args, err := sq.Insert("outcomes").
		Columns("run_id", "paper_id", "link", "title", "final", "analysis", "write_state", "error", "recorded_at").
		Values(r.ID, o.Paper.ID(), o.Paper.Link, o.Paper.Title, string(o.Final), string(o.Analysis), string(o.Write), errText, formatTime(r.ledger.now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.ledger.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Finish stores the run's summary counts.
func (r *Run) Finish(ctx context.Context, s *pipeline.Summary) error {
	q, args, err := sq.Update("runs").
		SetMap(map[string]any{
			"finished_at":   formatTime(r.ledger.now()),
			"fetched":       s.Fetched,
			"enriched":      s.Enriched,
			"enrich_failed": s.EnrichFailed,
			"written":       s.Written,
			"write_failed":  s.WriteFailed,
			"already_seen":  s.AlreadySeen,
			"cancelled":     s.Cancelled,
		}).
		Where(sq.Eq{"id": r.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.ledger.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
