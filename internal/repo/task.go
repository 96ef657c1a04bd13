package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

// DB is the part of pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const taskColumns = `id, user_id, title, description, status, priority, deadline, created_at, updated_at`

type TaskRepo struct {
	db DB
}

func NewTaskRepo(db DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO tasks (id, user_id, title, description, status, priority, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+taskColumns,
		t.ID, t.UserID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Deadline, t.CreatedAt,
	)
	created, err := scanTask(row)
	return created, r.mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, userID, id string) (model.Task, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	t, err := scanTask(row)
	return t, r.mapError(err)
}

func (r *TaskRepo) List(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3 = '' OR title ILIKE '%' || $3 || '%' OR description ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC, id DESC
	`, userID, status, escapeLike(filter.Search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) Update(ctx context.Context, userID, id string, p model.TaskPatch) (model.Task, error) {
	var status, priority *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	if p.Priority != nil {
		s := string(*p.Priority)
		priority = &s
	}

	row := r.db.QueryRow(ctx, `
		UPDATE tasks
		SET title = COALESCE($3, title),
		    description = COALESCE($4, description),
		    status = COALESCE($5, status),
		    priority = COALESCE($6, priority),
		    deadline = CASE WHEN $7 THEN NULL ELSE COALESCE($8, deadline) END,
		    updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+taskColumns,
		id, userID, p.Title, p.Description, status, priority, p.ClearDeadline, p.Deadline,
	)
	t, err := scanTask(row)
	return t, r.mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, userID, id string) error {
	cmd, err := r.db.Exec(ctx, "DELETE FROM tasks WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *TaskRepo) GetStats(ctx context.Context, userID string) (model.TaskStats, error) {
	var stats model.TaskStats
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM tasks
		WHERE user_id = $1
		GROUP BY status
	`, userID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Add(model.Status(status), int(count))
	}
	return stats, rows.Err()
}

func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, userID, key, taskID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, task_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, taskID)
	return err
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, userID, key string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT task_id FROM idempotency_keys WHERE user_id = $1 AND key = $2
	`, userID, key).Scan(&id)
	return id, r.mapError(err)
}

func (r *TaskRepo) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, "DELETE FROM idempotency_keys WHERE created_at < $1", before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t                model.Task
		status, priority string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &priority,
		&t.Deadline, &t.CreatedAt, &t.UpdatedAt)
	t.Status = model.Status(status)
	t.Priority = model.Priority(priority)
	return t, err
}

func (r *TaskRepo) mapError(err error) error {
	return mapPgError(err)
}

// mapPgError turns driver errors into repository sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrorConflict
		case "23503": // foreign_key_violation
			return ErrorNotFound
		}
	}
	return err
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
