package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/wasatch-geo/blocktrends/internal/enrich"
)

// Run statuses recorded in the journal.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// Run is one journal entry for a pipeline execution.
type Run struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Vintage    string          `json:"vintage"`
	StateFIPS  string          `json:"state_fips"`
	Report     *enrich.Report  `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Journal records pipeline runs in SQLite so operators can audit what was
// built, when, and with what degradation warnings.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (and migrates) the journal database at path, configuring
// WAL mode the same way every time.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "journal: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "journal: exec %s", pragma)
		}
	}
	j := &Journal{db: db}
	if err := j.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

const journalMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	vintage     TEXT NOT NULL,
	state_fips  TEXT NOT NULL,
	report      TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, journalMigration)
	return eris.Wrap(err, "journal: migrate")
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin records the start of a run and returns its entry.
func (j *Journal) Begin(ctx context.Context, vintage, stateFIPS string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Vintage:   vintage,
		StateFIPS: stateFIPS,
		StartedAt: time.Now().UTC(),
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, vintage, state_fips, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Vintage, run.StateFIPS, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "journal: insert run")
	}
	return run, nil
}

// Complete marks a run finished and attaches its report.
func (j *Journal) Complete(ctx context.Context, runID string, report *enrich.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "journal: marshal report")
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, finished_at = ? WHERE id = ?`,
		RunStatusComplete, string(reportJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "journal: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// Fail marks a run failed with its error message.
func (j *Journal) Fail(ctx context.Context, runID string, runErr error) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		RunStatusFailed, runErr.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "journal: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// Get returns one run by id.
func (j *Journal) Get(ctx context.Context, runID string) (*Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, status, vintage, state_fips, report, error, started_at, finished_at
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// List returns the most recent runs, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, status, vintage, state_fips, report, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "journal: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "journal: list runs iterate")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "journal: rows affected")
	}
	if n == 0 {
		return eris.Errorf("journal: run not found: %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var reportJSON, errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &r.Vintage, &r.StateFIPS,
		&reportJSON, &errMsg, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("journal: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "journal: scan run")
	}

	if reportJSON.Valid {
		r.Report = &enrich.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "journal: unmarshal report")
		}
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
