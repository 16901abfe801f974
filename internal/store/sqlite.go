package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/statement-flow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'pending',
	retries      INTEGER NOT NULL DEFAULT 0,
	input_path   TEXT NOT NULL DEFAULT '',
	diagram_path TEXT NOT NULL DEFAULT '',
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS flows (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position          INTEGER NOT NULL,
	source            TEXT NOT NULL,
	target            TEXT NOT NULL,
	amount            REAL NOT NULL CHECK (amount > 0),
	category          TEXT NOT NULL,
	line_item         TEXT NOT NULL DEFAULT '',
	statement_section TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS verifications (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	attempt          INTEGER NOT NULL,
	diagram_path     TEXT NOT NULL DEFAULT '',
	passed           BOOLEAN NOT NULL,
	overall_accuracy REAL NOT NULL,
	report           TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (run_id, attempt)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_flows_run_id ON flows(run_id, position);
CREATE INDEX IF NOT EXISTS idx_verifications_run_id ON verifications(run_id, attempt);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, retries, started_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		id, string(status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, update RunUpdate) error {
	errJSON, err := marshalError(update.Error)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run error")
	}
	var errCol sql.NullString
	if errJSON != nil {
		errCol = sql.NullString{String: string(errJSON), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, retries = ?,
			input_path = COALESCE(NULLIF(?, ''), input_path),
			diagram_path = COALESCE(NULLIF(?, ''), diagram_path),
			error = COALESCE(?, error),
			updated_at = ?
		 WHERE id = ?`,
		string(update.Status), update.Retries, update.InputPath, update.DiagramPath, errCol, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: delete run: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM verifications WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: delete verifications for run %s", runID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM flows WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: delete flows for run %s", runID)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: delete run: commit")
}

func (s *SQLiteStore) InsertFlows(ctx context.Context, runID string, flows []model.Flow) error {
	if len(flows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert flows: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO flows (id, run_id, position, source, target, amount, category, line_item, statement_section)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare flow insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, f := range flows {
		lineItem, section := flowMetadataColumns(f)
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), runID, i, f.Source, f.Target, f.Amount, string(f.Category), lineItem, section); err != nil {
			return eris.Wrapf(err, "sqlite: insert flow %s for run %s", f.Key(), runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: insert flows: commit")
}

func (s *SQLiteStore) ListFlows(ctx context.Context, runID string) ([]model.Flow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, target, amount, category, line_item, statement_section
		 FROM flows WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list flows for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var flows []model.Flow
	for rows.Next() {
		var f model.Flow
		var category, lineItem, section string
		if err := rows.Scan(&f.Source, &f.Target, &f.Amount, &category, &lineItem, &section); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan flow")
		}
		f.Category = model.Category(category)
		f.Metadata = flowMetadata(lineItem, section)
		flows = append(flows, f)
	}
	return flows, eris.Wrap(rows.Err(), "sqlite: list flows iterate")
}

func (s *SQLiteStore) InsertVerification(ctx context.Context, rec model.VerificationRecord) (*model.VerificationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verifications (id, run_id, attempt, diagram_path, passed, overall_accuracy, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Attempt, rec.DiagramPath, rec.Report.Passed, rec.Report.OverallAccuracy, string(reportJSON), rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert verification for run %s", rec.RunID)
	}
	return &rec, nil
}

func (s *SQLiteStore) GetLatestVerification(ctx context.Context, runID string) (*model.VerificationRecord, error) {
	var rec model.VerificationRecord
	var reportJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, attempt, diagram_path, report, created_at
		 FROM verifications WHERE run_id = ? ORDER BY attempt DESC LIMIT 1`,
		runID,
	).Scan(&rec.ID, &rec.RunID, &rec.Attempt, &rec.DiagramPath, &reportJSON, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get latest verification for run %s", runID)
	}
	if err := json.Unmarshal([]byte(reportJSON), &rec.Report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &rec, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var errJSON sql.NullString

	if err := row.Scan(&r.ID, &status, &r.Retries, &r.InputPath, &r.DiagramPath, &errJSON, &r.StartedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if errJSON.Valid && errJSON.String != "" {
		r.Error = &model.PipelineError{}
		if err := json.Unmarshal([]byte(errJSON.String), r.Error); err != nil {
			return nil, eris.Wrap(err, "unmarshal run error")
		}
	}
	return &r, nil
}
