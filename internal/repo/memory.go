package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
)

// MemoryStore keeps users and tasks in process memory. It backs the
// "memory" driver used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]model.User // by id
	emails  map[string]string     // email -> user id
	tasks   map[string]model.Task // by id
	idemKey map[idemKey]idemEntry
	now     func() time.Time
}

type idemKey struct {
	userID, key string
}

type idemEntry struct {
	taskID    string
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]model.User),
		emails:  make(map[string]string),
		tasks:   make(map[string]model.Task),
		idemKey: make(map[idemKey]idemEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Tasks() *MemoryTaskRepo { return &MemoryTaskRepo{s: s} }
func (s *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{s: s} }

type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) Create(_ context.Context, u model.User) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.emails[u.Email]; ok {
		return model.User{}, ErrorConflict
	}
	if _, ok := r.s.users[u.ID]; ok {
		return model.User{}, ErrorConflict
	}
	r.s.users[u.ID] = u
	r.s.emails[u.Email] = u.ID
	return u, nil
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.emails[email]
	if !ok {
		return model.User{}, ErrorNotFound
	}
	return r.s.users[id], nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return model.User{}, ErrorNotFound
	}
	return u, nil
}

type MemoryTaskRepo struct{ s *MemoryStore }

func (r *MemoryTaskRepo) Create(_ context.Context, t model.Task) (model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[t.UserID]; !ok {
		return model.Task{}, ErrorNotFound
	}
	if _, ok := r.s.tasks[t.ID]; ok {
		return model.Task{}, ErrorConflict
	}
	t.UpdatedAt = t.CreatedAt
	r.s.tasks[t.ID] = t
	return t, nil
}

func (r *MemoryTaskRepo) Get(_ context.Context, userID, id string) (model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tasks[id]
	if !ok || t.UserID != userID {
		return model.Task{}, ErrorNotFound
	}
	return t, nil
}

func (r *MemoryTaskRepo) List(_ context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	tasks := make([]model.Task, 0)
	for _, t := range r.s.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

func (r *MemoryTaskRepo) Update(_ context.Context, userID, id string, p model.TaskPatch) (model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[id]
	if !ok || t.UserID != userID {
		return model.Task{}, ErrorNotFound
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	switch {
	case p.ClearDeadline:
		t.Deadline = nil
	case p.Deadline != nil:
		d := *p.Deadline
		t.Deadline = &d
	}
	t.UpdatedAt = r.s.now().UTC()
	r.s.tasks[id] = t
	return t, nil
}

func (r *MemoryTaskRepo) Delete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[id]
	if !ok || t.UserID != userID {
		return ErrorNotFound
	}
	delete(r.s.tasks, id)
	for k, e := range r.s.idemKey {
		if e.taskID == id {
			delete(r.s.idemKey, k)
		}
	}
	return nil
}

func (r *MemoryTaskRepo) GetStats(_ context.Context, userID string) (model.TaskStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var stats model.TaskStats
	for _, t := range r.s.tasks {
		if t.UserID == userID {
			stats.Add(t.Status, 1)
		}
	}
	return stats, nil
}

func (r *MemoryTaskRepo) SaveIdempotencyKey(_ context.Context, userID, key, taskID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k := idemKey{userID: userID, key: key}
	if _, ok := r.s.idemKey[k]; !ok {
		r.s.idemKey[k] = idemEntry{taskID: taskID, createdAt: r.s.now()}
	}
	return nil
}

func (r *MemoryTaskRepo) GetIdempotencyKey(_ context.Context, userID, key string) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.idemKey[idemKey{userID: userID, key: key}]
	if !ok {
		return "", ErrorNotFound
	}
	return e.taskID, nil
}

func (r *MemoryTaskRepo) PurgeIdempotencyKeys(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, e := range r.s.idemKey {
		if e.createdAt.Before(before) {
			delete(r.s.idemKey, k)
			n++
		}
	}
	return n, nil
}
