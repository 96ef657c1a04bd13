package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
	"github.com/BuzzLyutic/tasknest-api/internal/repo"
)

const maxTitleLength = 200

type TaskService struct {
	repo  repo.TaskRepository
	users repo.UserRepository
	now   func() time.Time
}

func NewTaskService(repo repo.TaskRepository, users repo.UserRepository) *TaskService {
	return &TaskService{repo: repo, users: users, now: time.Now}
}

func (s *TaskService) Create(ctx context.Context, userID string, in model.TaskInput, idempKey string) (model.Task, error) {
	task, err := s.buildTask(userID, in)
	if err != nil {
		return model.Task{}, err
	}

	if idempKey != "" { // a repeated key returns the task it created the first time
		existingID, err := s.repo.GetIdempotencyKey(ctx, userID, idempKey)
		switch {
		case err == nil:
			existing, err := s.repo.Get(ctx, userID, existingID)
			if err == nil {
				return existing, nil
			}
			if !errors.Is(err, repo.ErrorNotFound) {
				return model.Task{}, fmt.Errorf("get task: %w", err)
			}
		case !errors.Is(err, repo.ErrorNotFound):
			return model.Task{}, fmt.Errorf("get idempotency key: %w", err)
		}
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			return model.Task{}, ErrUnauthorized
		}
		return model.Task{}, fmt.Errorf("find owner: %w", err)
	}

	created, err := s.repo.Create(ctx, task)
	if err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			return model.Task{}, ErrUnauthorized
		}
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}

	if idempKey != "" {
		if err := s.repo.SaveIdempotencyKey(ctx, userID, idempKey, created.ID); err != nil {
			return model.Task{}, fmt.Errorf("save idempotency key: %w", err)
		}
		return s.settleIdempotentCreate(ctx, userID, idempKey, created)
	}
	return created, nil
}

// settleIdempotentCreate resolves concurrent creates sharing one key: the
// first saved key wins and the losers drop their own task.
func (s *TaskService) settleIdempotentCreate(ctx context.Context, userID, idempKey string, created model.Task) (model.Task, error) {
	winnerID, err := s.repo.GetIdempotencyKey(ctx, userID, idempKey)
	switch {
	case errors.Is(err, repo.ErrorNotFound):
		return created, nil
	case err != nil:
		return model.Task{}, fmt.Errorf("confirm idempotency key: %w", err)
	case winnerID == created.ID:
		return created, nil
	}

	winner, err := s.repo.Get(ctx, userID, winnerID)
	if errors.Is(err, repo.ErrorNotFound) {
		return created, nil
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get winning task: %w", err)
	}
	if err := s.repo.Delete(ctx, userID, created.ID); err != nil && !errors.Is(err, repo.ErrorNotFound) {
		return model.Task{}, fmt.Errorf("drop duplicate task: %w", err)
	}
	return winner, nil
}

func (s *TaskService) Get(ctx context.Context, userID, id string) (model.Task, error) {
	if !validID(id) {
		return model.Task{}, ErrNotFound
	}
	t, err := s.repo.Get(ctx, userID, id)
	return t, s.mapError(err)
}

func (s *TaskService) List(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, validationf("status must be one of todo, in-progress, completed")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, userID, filter)
}

func (s *TaskService) Update(ctx context.Context, userID, id string, in model.TaskPatchInput) (model.Task, error) {
	patch, err := buildPatch(in)
	if err != nil {
		return model.Task{}, err
	}
	if !validID(id) {
		return model.Task{}, ErrNotFound
	}
	if patch.Empty() {
		return s.Get(ctx, userID, id)
	}
	t, err := s.repo.Update(ctx, userID, id, patch)
	return t, s.mapError(err)
}

func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	return s.mapError(s.repo.Delete(ctx, userID, id))
}

func (s *TaskService) GetStats(ctx context.Context, userID string) (model.TaskStats, error) {
	return s.repo.GetStats(ctx, userID)
}

func (s *TaskService) buildTask(userID string, in model.TaskInput) (model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if err := validateTitle(title); err != nil {
		return model.Task{}, err
	}

	now := s.now().UTC()
	t := model.Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		Status:      model.StatusTodo,
		Priority:    model.PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.Status != "" {
		st, err := parseStatus(in.Status)
		if err != nil {
			return model.Task{}, err
		}
		t.Status = st
	}
	if in.Priority != "" {
		p, err := parsePriority(in.Priority)
		if err != nil {
			return model.Task{}, err
		}
		t.Priority = p
	}
	if in.Deadline != nil && *in.Deadline != "" {
		d, err := parseDeadline(*in.Deadline)
		if err != nil {
			return model.Task{}, err
		}
		t.Deadline = &d
	}
	return t, nil
}

func buildPatch(in model.TaskPatchInput) (model.TaskPatch, error) {
	var p model.TaskPatch

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return p, err
		}
		p.Title = &title
	}
	p.Description = in.Description
	if in.Status != nil {
		st, err := parseStatus(*in.Status)
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	if in.Priority != nil {
		pr, err := parsePriority(*in.Priority)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if in.Deadline.Set {
		if in.Deadline.Value == nil || *in.Deadline.Value == "" {
			p.ClearDeadline = true
		} else {
			d, err := parseDeadline(*in.Deadline.Value)
			if err != nil {
				return p, err
			}
			p.Deadline = &d
		}
	}
	return p, nil
}

func validateTitle(title string) error {
	if title == "" {
		return validationf("title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return validationf("title must be at most %d characters", maxTitleLength)
	}
	return nil
}

func parseStatus(s string) (model.Status, error) {
	st := model.Status(s)
	if !st.Valid() {
		return "", validationf("status must be one of todo, in-progress, completed")
	}
	return st, nil
}

func parsePriority(s string) (model.Priority, error) {
	p := model.Priority(s)
	if !p.Valid() {
		return "", validationf("priority must be one of low, medium, high")
	}
	return p, nil
}

func parseDeadline(s string) (time.Time, error) {
	d, err := model.ParseDeadline(s)
	if err != nil {
		return time.Time{}, validationf("deadline must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	return d, nil
}

// validID rejects ids no store could hold, so they read as not found
// instead of reaching the driver.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *TaskService) mapError(err error) error {
	if errors.Is(err, repo.ErrorNotFound) {
		return ErrNotFound
	}
	return err
}
