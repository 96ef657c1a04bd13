package repo

import (
	"context"
	"time"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
)

// TaskRepository stores tasks. Every method that reads or writes a task takes
// the owner id; there is no unscoped accessor.
type TaskRepository interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Get(ctx context.Context, userID, id string) (model.Task, error)
	List(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error)
	Update(ctx context.Context, userID, id string, patch model.TaskPatch) (model.Task, error)
	Delete(ctx context.Context, userID, id string) error
	GetStats(ctx context.Context, userID string) (model.TaskStats, error)
	SaveIdempotencyKey(ctx context.Context, userID, key, taskID string) error
	GetIdempotencyKey(ctx context.Context, userID, key string) (string, error)
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}

// UserRepository stores credentials. Emails are expected normalized.
type UserRepository interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}
