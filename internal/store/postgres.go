package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/mixsmvrt/api/internal/config"
	"github.com/mixsmvrt/api/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

const jobColumns = `id, user_id, genre, flow_type, preset_name, input_s3_key, output_s3_key,
	status, error_message, progress, current_stage, created_at, updated_at`

// PostgresStore implements JobStore on a Postgres processing_jobs table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to Postgres and, when configured, applies migrations.
func NewPostgresStore(cfg *config.DatabaseConfig) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job model.NewJob) (*model.Job, error) {
	var result model.Job
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO processing_jobs (id, user_id, input_s3_key, genre, flow_type, preset_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', clock_timestamp(), clock_timestamp())
		 RETURNING `+jobColumns,
		uuid.NewString(), job.UserID, job.InputS3Key, job.Genre, string(job.FlowType), job.PresetName,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	var job model.Job
	err := s.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter model.JobFilter) ([]model.Job, error) {
	limit := NormalizeLimit(filter.Limit)
	jobs := []model.Job{}

	var err error
	if filter.Status != nil {
		err = s.db.SelectContext(ctx, &jobs,
			`SELECT `+jobColumns+` FROM processing_jobs
			 WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, string(*filter.Status), limit)
	} else {
		err = s.db.SelectContext(ctx, &jobs,
			`SELECT `+jobColumns+` FROM processing_jobs
			 ORDER BY created_at ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Claim selects and transitions the oldest unlocked pending row in one
// transaction. Rows locked by a concurrent claim are skipped, not waited on.
func (s *PostgresStore) Claim(ctx context.Context) (*model.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim job: begin: %w", err)
	}
	defer tx.Rollback()

	var job model.Job
	err = tx.GetContext(ctx, &job,
		`UPDATE processing_jobs
		 SET status = 'processing', error_message = NULL, updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM processing_jobs
		     WHERE status = 'pending'
		     ORDER BY created_at ASC
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoJob
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim job: commit: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, upd model.JobUpdate) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	var job model.Job
	err := s.db.GetContext(ctx, &job,
		`UPDATE processing_jobs
		 SET status = $2,
		     output_s3_key = CASE WHEN $2 = 'completed' THEN COALESCE($3, output_s3_key) END,
		     error_message = CASE
		         WHEN $4::text IS NOT NULL THEN $4::text
		         WHEN $2 = 'completed' THEN NULL
		         ELSE error_message
		     END,
		     current_stage = COALESCE($5, current_stage),
		     progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+jobColumns,
		id, string(upd.Status), upd.OutputS3Key, upd.ErrorMessage, upd.CurrentStage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return &job, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, upd model.ProgressUpdate) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	var job model.Job
	err := s.db.GetContext(ctx, &job,
		`UPDATE processing_jobs
		 SET current_stage = $2,
		     progress = GREATEST(progress, $3),
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'
		 RETURNING `+jobColumns,
		id, upd.CurrentStage, clampPercent(upd.Progress))
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update progress %s: %w", id, err)
	}

	// Unknown, not yet claimed, or terminal; a known job is left as is.
	return s.Get(ctx, id)
}

func (s *PostgresStore) QueuePosition(ctx context.Context, jobID string, flow model.FlowType) (*model.QueuePosition, error) {
	var row struct {
		Size     int `db:"size"`
		Position int `db:"position"`
	}
	err := s.db.GetContext(ctx, &row,
		`WITH active AS (
		     SELECT id::text AS id, ROW_NUMBER() OVER (ORDER BY created_at ASC, id ASC) AS rn
		     FROM processing_jobs
		     WHERE flow_type = $2 AND status IN ('pending', 'processing')
		 )
		 SELECT COUNT(*) AS size,
		        COALESCE(MAX(rn) FILTER (WHERE id = $1), 0) AS position
		 FROM active`, jobID, string(flow))
	if err != nil {
		return nil, fmt.Errorf("queue position %s: %w", jobID, err)
	}
	return &model.QueuePosition{Position: row.Position, Size: row.Size}, nil
}

func (s *PostgresStore) ReclaimStale(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs
		 SET status = 'pending', updated_at = NOW()
		 WHERE id IN (
		     SELECT id FROM processing_jobs
		     WHERE status = 'processing'
		       AND updated_at < NOW() - make_interval(secs => $1)
		     FOR UPDATE SKIP LOCKED
		 )`, ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
