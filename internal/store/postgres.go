package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-flow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'pending',
	retries      INTEGER NOT NULL DEFAULT 0,
	input_path   TEXT NOT NULL DEFAULT '',
	diagram_path TEXT NOT NULL DEFAULT '',
	error        JSONB,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS flows (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position          INTEGER NOT NULL,
	source            TEXT NOT NULL,
	target            TEXT NOT NULL,
	amount            DOUBLE PRECISION NOT NULL CHECK (amount > 0),
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
	overall_accuracy DOUBLE PRECISION NOT NULL,
	report           JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, attempt)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_flows_run_id ON flows(run_id, position);
CREATE INDEX IF NOT EXISTS idx_verifications_run_id ON verifications(run_id, attempt DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, retries, started_at, updated_at) VALUES ($1, $2, 0, $3, $4)`,
		id, string(status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, update RunUpdate) error {
	errJSON, err := marshalError(update.Error)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run error")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, retries = $2,
			input_path = COALESCE(NULLIF($3, ''), input_path),
			diagram_path = COALESCE(NULLIF($4, ''), diagram_path),
			error = COALESCE($5, error),
			updated_at = $6
		 WHERE id = $7`,
		string(update.Status), update.Retries, update.InputPath, update.DiagramPath, errJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const runColumns = `id, status, retries, input_path, diagram_path, error, started_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: delete run: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM verifications WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: delete verifications for run %s", runID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM flows WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: delete flows for run %s", runID)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: delete run: commit")
}

// InsertFlows bulk-loads flows with the COPY protocol, preserving order.
func (s *PostgresStore) InsertFlows(ctx context.Context, runID string, flows []model.Flow) error {
	if len(flows) == 0 {
		return nil
	}

	rows := make([][]any, len(flows))
	for i, f := range flows {
		lineItem, section := flowMetadataColumns(f)
		rows[i] = []any{uuid.New().String(), runID, i, f.Source, f.Target, f.Amount, string(f.Category), lineItem, section}
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"flows"}, flowColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return eris.Wrapf(err, "postgres: copy flows for run %s", runID)
	}
	if n != int64(len(flows)) {
		return eris.Errorf("postgres: copied %d of %d flows for run %s", n, len(flows), runID)
	}
	return nil
}

func (s *PostgresStore) ListFlows(ctx context.Context, runID string) ([]model.Flow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, target, amount, category, line_item, statement_section
		 FROM flows WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list flows for run %s", runID)
	}
	defer rows.Close()

	var flows []model.Flow
	for rows.Next() {
		var f model.Flow
		var category, lineItem, section string
		if err := rows.Scan(&f.Source, &f.Target, &f.Amount, &category, &lineItem, &section); err != nil {
			return nil, eris.Wrap(err, "postgres: scan flow")
		}
		f.Category = model.Category(category)
		f.Metadata = flowMetadata(lineItem, section)
		flows = append(flows, f)
	}
	return flows, eris.Wrap(rows.Err(), "postgres: list flows iterate")
}

func (s *PostgresStore) InsertVerification(ctx context.Context, rec model.VerificationRecord) (*model.VerificationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO verifications (id, run_id, attempt, diagram_path, passed, overall_accuracy, report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.RunID, rec.Attempt, rec.DiagramPath, rec.Report.Passed, rec.Report.OverallAccuracy, reportJSON, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert verification for run %s", rec.RunID)
	}
	return &rec, nil
}

func (s *PostgresStore) GetLatestVerification(ctx context.Context, runID string) (*model.VerificationRecord, error) {
	var rec model.VerificationRecord
	var reportJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, run_id, attempt, diagram_path, report, created_at
		 FROM verifications WHERE run_id = $1 ORDER BY attempt DESC LIMIT 1`,
		runID,
	).Scan(&rec.ID, &rec.RunID, &rec.Attempt, &rec.DiagramPath, &reportJSON, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get latest verification for run %s", runID)
	}
	if err := json.Unmarshal(reportJSON, &rec.Report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &rec, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var errJSON []byte

	if err := row.Scan(&r.ID, &status, &r.Retries, &r.InputPath, &r.DiagramPath, &errJSON, &r.StartedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(errJSON) > 0 {
		r.Error = &model.PipelineError{}
		if err := json.Unmarshal(errJSON, r.Error); err != nil {
			return nil, eris.Wrap(err, "unmarshal run error")
		}
	}
	return &r, nil
}

// marshalError returns nil for a nil error so the column keeps its value.
func marshalError(pe *model.PipelineError) ([]byte, error) {
	if pe == nil {
		return nil, nil
	}
	return json.Marshal(pe)
}
