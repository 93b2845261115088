package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/observability"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/schedule"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// PostgresStore implements Store using a PostgreSQL backend via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a connection pool sized per spec §6's
// DB_POOL_SIZE/DB_MAX_OVERFLOW knobs (folded into MaxConns here since pgxpool
// has no separate overflow concept).
func NewPostgresStore(ctx context.Context, connString string, poolSize, maxOverflow int, recycle time.Duration, healthCheck time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(poolSize + maxOverflow)
	cfg.MinConns = 2
	cfg.MaxConnLifetime = recycle
	cfg.HealthCheckPeriod = healthCheck

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Health implements the health() endpoint contract from spec §6.
func (s *PostgresStore) Health(ctx context.Context) Health {
	start := time.Now()
	stat := s.pool.Stat()
	if err := s.pool.Ping(ctx); err != nil {
		return Health{Status: HealthUnhealthy, ResponseTime: time.Since(start)}
	}
	status := HealthHealthy
	if stat.AcquiredConns() >= stat.MaxConns() {
		status = HealthDegraded
	}
	return Health{
		Status:       status,
		ResponseTime: time.Since(start),
		PoolStats: map[string]any{
			"acquired_conns": stat.AcquiredConns(),
			"idle_conns":     stat.IdleConns(),
			"max_conns":      stat.MaxConns(),
		},
	}
}

func (s *PostgresStore) Create(ctx context.Context, spec task.Spec) (*task.AITask, error) {
	scheduleConfigJSON, err := json.Marshal(normalizeScheduleConfig(spec.ScheduleConfig))
	if err != nil {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, err.Error())
	}
	channelsJSON, err := json.Marshal(spec.NotificationChannels)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, err.Error())
	}
	nextRunAt, err := schedule.NextRun(spec.ScheduleType, spec.ScheduleConfig, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var (
		id        int64
		createdAt time.Time
		updatedAt time.Time
	)

	start := time.Now()
	err = withRetry(ctx, func(ctx context.Context) error {
		scanErr := s.pool.QueryRow(ctx, `
			INSERT INTO ai_tasks (
				user_id, title, description, task_type, schedule_type, schedule_config,
				status, next_run_at, ai_context, notification_channels, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			RETURNING id, created_at, updated_at
		`, spec.UserID, spec.Title, spec.Description, spec.TaskType, spec.ScheduleType,
			scheduleConfigJSON, task.StatusActive, nextRunAt, spec.AIContext, channelsJSON,
		).Scan(&id, &createdAt, &updatedAt)
		// Classify a unique violation here, before it leaves the op closure:
		// withRetry rewraps anything else as ErrStoreUnavailable, which would
		// otherwise make this indistinguishable from a transient failure and
		// retry it 5x instead of failing fast.
		if isUniqueViolation(scanErr) {
			return taskerr.Wrap(taskerr.ErrAlreadyExists, scanErr.Error())
		}
		return scanErr
	})
	observability.StoreOperationLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return &task.AITask{
		ID:                   id,
		UserID:               spec.UserID,
		Title:                spec.Title,
		Description:          spec.Description,
		TaskType:             spec.TaskType,
		ScheduleType:         spec.ScheduleType,
		ScheduleConfig:       spec.ScheduleConfig,
		Status:               task.StatusActive,
		NextRunAt:            nextRunAt,
		AIContext:            spec.AIContext,
		NotificationChannels: spec.NotificationChannels,
		CreatedAt:            createdAt,
		UpdatedAt:            updatedAt,
	}, nil
}

// ClaimDueTasks uses SELECT ... FOR UPDATE SKIP LOCKED so that concurrent
// Workers never observe the same due task, per spec §4.1 and the invariant
// in spec §8 ("no two Workers observe the same task id in processing
// simultaneously").
func (s *PostgresStore) ClaimDueTasks(ctx context.Context, limit int, now time.Time) ([]*task.AITask, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*task.AITask
	start := time.Now()
	err := withRetry(ctx, func(ctx context.Context) error {
		claimed = claimed[:0]
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx, `
			SELECT id, user_id, title, description, task_type, schedule_type, schedule_config,
			       next_run_at, last_run_at, status, ai_context, notification_channels, created_at, updated_at
			FROM ai_tasks
			WHERE status = $1 AND next_run_at <= $2
			ORDER BY next_run_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		`, task.StatusActive, now, limit)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			t, scanErr := scanTask(rows)
			if scanErr != nil {
				rows.Close()
				return scanErr
			}
			claimed = append(claimed, t)
			ids = append(ids, t.ID)
		}
		rows.Close()
		if rerr := rows.Err(); rerr != nil {
			return rerr
		}
		if len(ids) == 0 {
			return tx.Commit(ctx)
		}

		_, err = tx.Exec(ctx, `UPDATE ai_tasks SET status = $1, updated_at = NOW() WHERE id = ANY($2)`, task.StatusProcessing, ids)
		if err != nil {
			return err
		}
		for _, t := range claimed {
			t.Status = task.StatusProcessing
		}
		return tx.Commit(ctx)
	})
	observability.StoreOperationLatency.WithLabelValues("claim_due_tasks").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *PostgresStore) UpdateAfterRun(ctx context.Context, id int64, update task.RunUpdate) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return taskerr.Wrap(taskerr.ErrNotFound, "task not found")
	}
	if !task.CanTransition(current.Status, update.Status) {
		return taskerr.Wrapf(taskerr.ErrInvalidStateTransition, "%s -> %s", current.Status, update.Status)
	}

	start := time.Now()
	err = withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			UPDATE ai_tasks
			SET status = $1, last_run_at = $2, next_run_at = $3, updated_at = NOW()
			WHERE id = $4
		`, update.Status, update.LastRunAt, update.NextRunAt, id)
		return err
	})
	observability.StoreOperationLatency.WithLabelValues("update_after_run").Observe(time.Since(start).Seconds())
	return err
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID int64, filter task.ListFilter) ([]*task.AITask, error) {
	query := `
		SELECT id, user_id, title, description, task_type, schedule_type, schedule_config,
		       next_run_at, last_run_at, status, ai_context, notification_channels, created_at, updated_at
		FROM ai_tasks WHERE user_id = $1
	`
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if filter.TaskType != "" {
		args = append(args, filter.TaskType)
		query += " AND task_type = $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*task.AITask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id int64, userID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return taskerr.Wrap(taskerr.ErrNotFound, "task not found")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*task.AITask, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, description, task_type, schedule_type, schedule_config,
		       next_run_at, last_run_at, status, ai_context, notification_channels, created_at, updated_at
		FROM ai_tasks WHERE id = $1
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PostgresStore) SetPaused(ctx context.Context, id int64, paused bool) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return taskerr.Wrap(taskerr.ErrNotFound, "task not found")
	}
	target := task.StatusActive
	if paused {
		target = task.StatusPaused
	}
	if !task.CanTransition(current.Status, target) {
		return taskerr.Wrapf(taskerr.ErrInvalidStateTransition, "%s -> %s", current.Status, target)
	}
	_, err = s.pool.Exec(ctx, `UPDATE ai_tasks SET status = $1, updated_at = NOW() WHERE id = $2`, target, id)
	return err
}

// rowScanner abstracts pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.AITask, error) {
	var (
		t                  task.AITask
		scheduleConfigJSON []byte
		channelsJSON       []byte
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.TaskType, &t.ScheduleType, &scheduleConfigJSON,
		&t.NextRunAt, &t.LastRunAt, &t.Status, &t.AIContext, &channelsJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(scheduleConfigJSON) > 0 {
		if err := json.Unmarshal(scheduleConfigJSON, &t.ScheduleConfig); err != nil {
			return nil, err
		}
	}
	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &t.NotificationChannels); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// normalizeScheduleConfig ensures instant fields are UTC before persistence,
// per spec §3's invariant that schedule_config timestamps be normalised.
func normalizeScheduleConfig(cfg task.ScheduleConfig) task.ScheduleConfig {
	if !cfg.RunAt.IsZero() {
		cfg.RunAt = cfg.RunAt.UTC()
	}
	return cfg
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
