// Package archive keeps finished runs: a SQLite index of every run plus the
// deliverables written out as markdown files.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/simulation"
)

// ErrNotFound is returned when a run ID is not in the archive.
var ErrNotFound = errors.New("run not found")

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const timeLayout = time.RFC3339

// Run is one archived run.
type Run struct {
	ID                string    `json:"id"`
	State             string    `json:"state"`
	Error             string    `json:"error,omitempty"`
	SOW               string    `json:"sow"`
	StaffingPlan      string    `json:"staffingPlan,omitempty"`
	AdditionalContext string    `json:"additionalContext,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	Completed         int       `json:"completed"`
	Total             int       `json:"total"`
	Tokens            int       `json:"tokens"`
	Cost              float64   `json:"cost"`
	Dir               string    `json:"dir"`
}

// Deliverable is an archived deliverable.
type Deliverable struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AgentID       string `json:"agentId"`
	Phase         int    `json:"phase"`
	Status        string `json:"status"`
	Content       string `json:"content"`
	StartDate     string `json:"startDate,omitempty"`
	CompletedDate string `json:"completedDate,omitempty"`
	DurationDays  int    `json:"durationDays,omitempty"`
}

// Detail is a run with everything it produced.
type Detail struct {
	Run
	Messages      []simulation.Message `json:"messages"`
	Deliverables  []Deliverable        `json:"deliverables"`
	Insights      *insights.Insights   `json:"insights,omitempty"`
	InsightsError string               `json:"insightsError,omitempty"`
}

// Record is what a caller hands over when a run ends.
type Record struct {
	RunID             string
	SOW               string
	StaffingPlan      string
	AdditionalContext string
	StartedAt         time.Time
	FinishedAt        time.Time
	Roster            *roster.Roster
	State             simulation.State
	Tokens            int
	Cost              float64
}

// Store is the run archive rooted at one directory.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates the archive in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dir, "kickoff.db"))
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, dir: dir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the archive root.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id                 TEXT PRIMARY KEY,
			state              TEXT    NOT NULL,
			error              TEXT    NOT NULL DEFAULT '',
			sow                TEXT    NOT NULL,
			staffing_plan      TEXT    NOT NULL DEFAULT '',
			additional_context TEXT    NOT NULL DEFAULT '',
			started_at         TEXT    NOT NULL,
			finished_at        TEXT    NOT NULL,
			completed          INTEGER NOT NULL DEFAULT 0,
			total              INTEGER NOT NULL DEFAULT 0,
			tokens             INTEGER NOT NULL DEFAULT 0,
			cost               REAL    NOT NULL DEFAULT 0,
			dir                TEXT    NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			run_id     TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			agent_id   TEXT    NOT NULL,
			phase      INTEGER NOT NULL,
			text       TEXT    NOT NULL,
			created_at TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deliverables (
			run_id         TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			deliverable_id TEXT    NOT NULL,
			seq            INTEGER NOT NULL,
			title          TEXT    NOT NULL,
			agent_id       TEXT    NOT NULL,
			phase          INTEGER NOT NULL,
			status         TEXT    NOT NULL,
			content        TEXT    NOT NULL DEFAULT '',
			start_date     TEXT    NOT NULL DEFAULT '',
			completed_date TEXT    NOT NULL DEFAULT '',
			duration_days  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, deliverable_id)
		);

		CREATE TABLE IF NOT EXISTS insights (
			run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
			body   TEXT NOT NULL DEFAULT '',
			error  TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id, seq);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`)
	return err
}

// Save archives a run: database rows first, then files under <dir>/<run-id>.
// It returns the run's file directory.
func (s *Store) Save(ctx context.Context, rec Record) (string, error) {
	if rec.RunID == "" {
		return "", errors.New("archive: run id is required")
	}
	r := rec.Roster
	if r == nil {
		r = roster.Default()
	}

	runDir := filepath.Join(s.dir, filepath.Base(filepath.Clean(rec.RunID)))
	st := rec.State

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, state, error, sow, staffing_plan, additional_context, started_at, finished_at, completed, total, tokens, cost, dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, string(st.RunState), st.Error, rec.SOW, rec.StaffingPlan, rec.AdditionalContext,
		rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
		st.CompletedCount(), len(st.Deliverables), rec.Tokens, rec.Cost, runDir,
	)
	if err != nil {
		return "", fmt.Errorf("archive: insert run: %w", err)
	}

	for i, m := range st.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO messages (id, run_id, seq, agent_id, phase, text, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, rec.RunID, i, m.AgentID, m.Phase, m.Text, m.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return "", fmt.Errorf("archive: insert message %s: %w", m.ID, err)
		}
	}

	delivs := deliverables(r, st)
	for i, d := range delivs {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO deliverables
				(run_id, deliverable_id, seq, title, agent_id, phase, status, content, start_date, completed_date, duration_days)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, d.ID, i, d.Title, d.AgentID, d.Phase, d.Status, d.Content, d.StartDate, d.CompletedDate, d.DurationDays,
		)
		if err != nil {
			return "", fmt.Errorf("archive: insert deliverable %s: %w", d.ID, err)
		}
	}

	if st.Insights != nil || st.InsightsError != "" {
		body := ""
		if st.Insights != nil {
			data, err := json.Marshal(st.Insights)
			if err != nil {
				return "", fmt.Errorf("archive: encode insights: %w", err)
			}
			body = string(data)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO insights (run_id, body, error) VALUES (?, ?, ?)`,
			rec.RunID, body, st.InsightsError,
		)
		if err != nil {
			return "", fmt.Errorf("archive: insert insights: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("archive: commit: %w", err)
	}

	if err := writeFiles(runDir, rec, delivs); err != nil {
		return "", err
	}
	slog.Debug("run archived", "run", rec.RunID, "dir", runDir, "deliverables", len(delivs))
	return runDir, nil
}

func deliverables(r *roster.Roster, st simulation.State) []Deliverable {
	defs := r.Deliverables()
	out := make([]Deliverable, 0, len(defs))
	for _, def := range defs {
		ds, ok := st.Deliverables[def.ID]
		if !ok {
			continue
		}
		d := Deliverable{
			ID:           def.ID,
			Title:        def.Title,
			AgentID:      def.AgentID,
			Phase:        def.Phase,
			Status:       string(ds.Status),
			Content:      ds.Content,
			DurationDays: ds.DurationDays,
		}
		if ds.StartDate != nil {
			d.StartDate = ds.StartDate.Format("2006-01-02")
		}
		if ds.CompletedDate != nil {
			d.CompletedDate = ds.CompletedDate.Format("2006-01-02")
		}
		out = append(out, d)
	}
	return out
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, error, sow, staffing_plan, additional_context, started_at, finished_at, completed, total, tokens, cost, dir
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var started, finished string
	if err := row.Scan(&r.ID, &r.State, &r.Error, &r.SOW, &r.StaffingPlan, &r.AdditionalContext,
		&started, &finished, &r.Completed, &r.Total, &r.Tokens, &r.Cost, &r.Dir); err != nil {
		return Run{}, err
	}
	r.StartedAt, _ = time.Parse(timeLayout, started)
	r.FinishedAt, _ = time.Parse(timeLayout, finished)
	return r, nil
}

// Get loads one run with its messages, deliverables and insights.
func (s *Store) Get(ctx context.Context, id string) (*Detail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, error, sow, staffing_plan, additional_context, started_at, finished_at, completed, total, tokens, cost, dir
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get run: %w", err)
	}
	d := &Detail{Run: run}

	msgs, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, phase, text, created_at FROM messages WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("archive: get messages: %w", err)
	}
	defer msgs.Close()
	for msgs.Next() {
		var m simulation.Message
		var created string
		if err := msgs.Scan(&m.ID, &m.AgentID, &m.Phase, &m.Text, &created); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		d.Messages = append(d.Messages, m)
	}
	if err := msgs.Err(); err != nil {
		return nil, err
	}

	dels, err := s.db.QueryContext(ctx, `
		SELECT deliverable_id, title, agent_id, phase, status, content, start_date, completed_date, duration_days
		FROM deliverables WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("archive: get deliverables: %w", err)
	}
	defer dels.Close()
	for dels.Next() {
		var del Deliverable
		if err := dels.Scan(&del.ID, &del.Title, &del.AgentID, &del.Phase, &del.Status, &del.Content,
			&del.StartDate, &del.CompletedDate, &del.DurationDays); err != nil {
			return nil, err
		}
		d.Deliverables = append(d.Deliverables, del)
	}
	if err := dels.Err(); err != nil {
		return nil, err
	}

	var body string
	err = s.db.QueryRowContext(ctx, `SELECT body, error FROM insights WHERE run_id = ?`, id).Scan(&body, &d.InsightsError)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("archive: get insights: %w", err)
	case body != "":
		var in insights.Insights
		if err := json.Unmarshal([]byte(body), &in); err != nil {
			return nil, fmt.Errorf("archive: decode insights: %w", err)
		}
		d.Insights = &in
	}
	return d, nil
}
