// Package repomock holds testify mocks of the repository interfaces.
package repomock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
	"github.com/BuzzLyutic/tasknest-api/internal/repo"
)

var (
	_ repo.TaskRepository = (*TaskRepository)(nil)
	_ repo.UserRepository = (*UserRepository)(nil)
)

type TaskRepository struct {
	mock.Mock
}

// Create also accepts a func(context.Context, model.Task) model.Task return
// value, which echoes the argument back.
func (m *TaskRepository) Create(ctx context.Context, t model.Task) (model.Task, error) {
	args := m.Called(ctx, t)
	if fn, ok := args.Get(0).(func(context.Context, model.Task) model.Task); ok {
		return fn(ctx, t), args.Error(1)
	}
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *TaskRepository) Get(ctx context.Context, userID, id string) (model.Task, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *TaskRepository) List(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *TaskRepository) Update(ctx context.Context, userID, id string, patch model.TaskPatch) (model.Task, error) {
	args := m.Called(ctx, userID, id, patch)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *TaskRepository) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *TaskRepository) GetStats(ctx context.Context, userID string) (model.TaskStats, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.TaskStats), args.Error(1)
}

func (m *TaskRepository) SaveIdempotencyKey(ctx context.Context, userID, key, taskID string) error {
	args := m.Called(ctx, userID, key, taskID)
	return args.Error(0)
}

func (m *TaskRepository) GetIdempotencyKey(ctx context.Context, userID, key string) (string, error) {
	args := m.Called(ctx, userID, key)
	return args.String(0), args.Error(1)
}

func (m *TaskRepository) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, u model.User) (model.User, error) {
	args := m.Called(ctx, u)
	if fn, ok := args.Get(0).(func(context.Context, model.User) model.User); ok {
		return fn(ctx, u), args.Error(1)
	}
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}
