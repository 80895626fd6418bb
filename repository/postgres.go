package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mediaCompressor/database"
	"mediaCompressor/models"
)

type PostgresRepo struct {
	db  *database.DB
	now func() time.Time
}

func NewPostgresRepo(db *database.DB) *PostgresRepo {
	return &PostgresRepo{db: db, now: time.Now}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (r *PostgresRepo) EnsureTable(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS compression_tasks (
			id                TEXT PRIMARY KEY,
			trace_id          TEXT NOT NULL DEFAULT '',
			original_filename TEXT NOT NULL DEFAULT '',
			media_kind        TEXT NOT NULL,
			quality           INTEGER NOT NULL,
			adaptive_mode     BOOLEAN NOT NULL DEFAULT FALSE,
			bitrate           DOUBLE PRECISION NOT NULL DEFAULT 0,
			status            TEXT NOT NULL DEFAULT 'pending',
			progress          INTEGER NOT NULL DEFAULT 0,
			original_size     BIGINT NOT NULL,
			compressed_size   BIGINT,
			compression_ratio DOUBLE PRECISION,
			error_kind        TEXT NOT NULL DEFAULT '',
			error_message     TEXT NOT NULL DEFAULT '',
			report            JSONB,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at        TIMESTAMPTZ,
			completed_at      TIMESTAMPTZ
		)`)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_compression_tasks_status ON compression_tasks(status, updated_at)`)
	return err
}

const taskColumns = `id, trace_id, original_filename, media_kind, quality, adaptive_mode, bitrate,
	status, progress, original_size, compressed_size, compression_ratio, error_kind, error_message,
	report, created_at, updated_at, started_at, completed_at`

func (r *PostgresRepo) CreateTask(ctx context.Context, task *models.Task) error {
	if task.Status != models.StatusPending {
		return models.ErrInvalidTransition
	}
	now := r.now().Truncate(time.Microsecond)

	query := `
		INSERT INTO compression_tasks (id, trace_id, original_filename, media_kind, quality, adaptive_mode,
			bitrate, status, progress, original_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $10)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.Pool.Exec(ctx, query,
		task.ID,
		task.TraceID,
		task.OriginalFilename,
		task.MediaKind,
		task.Settings.Quality,
		task.Settings.AdaptiveMode,
		task.Settings.Bitrate,
		task.Status,
		task.OriginalSize,
		now,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrAlreadyExists
	}

	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

func (r *PostgresRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM compression_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// Transition locks the row, validates the lifecycle edge and writes the result in one
// transaction. Concurrent transitions on the same id queue on the row lock.
func (r *PostgresRepo) Transition(ctx context.Context, id string, to models.TaskStatus, update models.Update) (*models.Task, error) {
	var out *models.Task

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM compression_tasks WHERE id = $1 FOR UPDATE`, id)
		task, err := scanTask(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}

		if err := models.Apply(task, to, update, r.now().Truncate(time.Microsecond)); err != nil {
			return err
		}

		report, err := marshalReport(task.Report)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE compression_tasks
			SET status = $2, progress = $3, compressed_size = $4, compression_ratio = $5,
				error_kind = $6, error_message = $7, report = $8, updated_at = $9,
				started_at = $10, completed_at = $11
			WHERE id = $1`,
			task.ID, task.Status, task.Progress, task.CompressedSize, task.CompressionRatio,
			task.ErrorKind, task.ErrorMessage, report, task.UpdatedAt,
			task.StartedAt, task.CompletedAt,
		)
		if err != nil {
			return err
		}

		out = task
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("transition task %s to %s: %w", id, to, err)
	}

	return out, nil
}

func (r *PostgresRepo) UpdateProgress(ctx context.Context, id string, progress int) error {
	if progress > 99 {
		progress = 99
	}

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE compression_tasks
		SET progress = GREATEST(progress, $2), updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, progress, r.now().Truncate(time.Microsecond), models.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetTask(ctx, id); err != nil {
			return err
		}
		return models.ErrInvalidTransition
	}
	return nil
}

func (r *PostgresRepo) ListStale(ctx context.Context, status models.TaskStatus, before time.Time) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM compression_tasks WHERE status = $1 AND updated_at < $2`, status, before)
}

func (r *PostgresRepo) ListExpired(ctx context.Context, before time.Time) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM compression_tasks WHERE status IN ($1, $2) AND completed_at < $3`,
		models.StatusCompleted, models.StatusFailed, before)
}

func (r *PostgresRepo) DeleteTask(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM compression_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	var report []byte

	err := row.Scan(
		&task.ID,
		&task.TraceID,
		&task.OriginalFilename,
		&task.MediaKind,
		&task.Settings.Quality,
		&task.Settings.AdaptiveMode,
		&task.Settings.Bitrate,
		&task.Status,
		&task.Progress,
		&task.OriginalSize,
		&task.CompressedSize,
		&task.CompressionRatio,
		&task.ErrorKind,
		&task.ErrorMessage,
		&report,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(report) > 0 {
		var rep models.Report
		if err := json.Unmarshal(report, &rep); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		task.Report = &rep
	}

	return &task, nil
}

func marshalReport(report *models.Report) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}
