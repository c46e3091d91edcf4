package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/molforge/graphchem/pkg/errors"
)

// RunStatus enumerates the lifecycle states of a training run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the persisted record of a training run.
type Run struct {
	ID            string
	Dataset       string
	Status        RunStatus
	Tasks         []string
	Config        []byte // model and trainer configuration as JSON
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	BestEpoch     int
	MeanAUC       float64
	CheckpointKey string
	Error         string
}

// DB is the subset of pgxpool.Pool the repository uses.  Tests can
// substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunRepository persists training run records.
type RunRepository struct {
	db DB
}

// NewRunRepository constructs a RunRepository over the given database handle.
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, dataset, status, tasks, config, created_at, started_at,
	finished_at, best_epoch, mean_auc, checkpoint_key, error_message`

// Create inserts a new run in the pending state.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO runs (id, dataset, status, tasks, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Dataset, run.Status, run.Tasks, run.Config, run.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create run "+run.ID)
	}
	return nil
}

// Start marks a run as running and stamps its start time.
func (r *RunRepository) Start(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE runs SET status = $2, started_at = $3 WHERE id = $1`,
		id, RunStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to start run "+id)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeRunNotFound, "run not found: "+id)
	}
	return nil
}

// Complete records a successful run with its final metrics and the key of
// the last checkpoint written.
func (r *RunRepository) Complete(ctx context.Context, id string, bestEpoch int, meanAUC float64, checkpointKey string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE runs
		SET status = $2, finished_at = $3, best_epoch = $4, mean_auc = $5, checkpoint_key = $6
		WHERE id = $1`,
		id, RunStatusCompleted, time.Now().UTC(), bestEpoch, meanAUC, checkpointKey,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to complete run "+id)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeRunNotFound, "run not found: "+id)
	}
	return nil
}

// Fail records a failed run together with the failure message.
func (r *RunRepository) Fail(ctx context.Context, id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE runs SET status = $2, finished_at = $3, error_message = $4 WHERE id = $1`,
		id, RunStatusFailed, time.Now().UTC(), msg,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to mark run failed "+id)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeRunNotFound, "run not found: "+id)
	}
	return nil
}

// Get fetches a run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeRunNotFound, "run not found: "+id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to fetch run "+id)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run row")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate runs")
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(
		&run.ID, &run.Dataset, &run.Status, &run.Tasks, &run.Config,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
		&run.BestEpoch, &run.MeanAUC, &run.CheckpointKey, &run.Error,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
