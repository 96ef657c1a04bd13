package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
)

const (
	testUserID = "6f1b5f4e-6a43-4f0c-9a57-2d3d54c1a001"
	testTaskID = "0b4a7f4c-2c8e-4d8e-9a3f-1c2d3e4f5a60"
)

var taskCols = []string{"id", "user_id", "title", "description", "status", "priority", "deadline", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*TaskRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewTaskRepo(mock), mock
}

func TestTaskRepo_Create(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	task := model.Task{
		ID: testTaskID, UserID: testUserID, Title: "Buy milk",
		Status: model.StatusTodo, Priority: model.PriorityLow,
		Deadline: &deadline, CreatedAt: now,
	}

	tests := []struct {
		name    string
		setup   func(pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "success",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("INSERT INTO tasks").
					WithArgs(testTaskID, testUserID, "Buy milk", "", "todo", "low", &deadline, now).
					WillReturnRows(pgxmock.NewRows(taskCols).
						AddRow(testTaskID, testUserID, "Buy milk", "", "todo", "low", &deadline, now, now))
			},
		},
		{
			name: "duplicate id",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("INSERT INTO tasks").WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: ErrorConflict,
		},
		{
			name: "owner missing",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("INSERT INTO tasks").WillReturnError(&pgconn.PgError{Code: "23503"})
			},
			wantErr: ErrorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepo(t)
			tt.setup(mock)

			got, err := r.Create(context.Background(), task)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, testTaskID, got.ID)
				assert.Equal(t, model.PriorityLow, got.Priority)
				require.NotNil(t, got.Deadline)
				assert.Equal(t, deadline, *got.Deadline)
				assert.Equal(t, now, got.UpdatedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskRepo_Get(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "found",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT .+ FROM tasks WHERE id = \\$1 AND user_id = \\$2").
					WithArgs(testTaskID, testUserID).
					WillReturnRows(pgxmock.NewRows(taskCols).
						AddRow(testTaskID, testUserID, "Buy milk", "2%", "in-progress", "high", nil, now, now))
			},
		},
		{
			name: "not found or not owned",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT .+ FROM tasks").WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrorNotFound,
		},
		{
			name: "driver error passes through",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT .+ FROM tasks").WillReturnError(errors.New("conn closed"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepo(t)
			tt.setup(mock)

			got, err := r.Get(context.Background(), testUserID, testTaskID)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.name == "driver error passes through":
				assert.EqualError(t, err, "conn closed")
			default:
				require.NoError(t, err)
				assert.Equal(t, model.StatusInProgress, got.Status)
				assert.Nil(t, got.Deadline)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskRepo_List(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	completed := model.StatusCompleted
	status := "completed"

	tests := []struct {
		name   string
		filter model.TaskFilter
		args   []any
		rows   int
	}{
		{name: "no filter", filter: model.TaskFilter{}, args: []any{testUserID, (*string)(nil), ""}, rows: 2},
		{name: "status", filter: model.TaskFilter{Status: &completed}, args: []any{testUserID, &status, ""}, rows: 1},
		{name: "search escapes wildcards", filter: model.TaskFilter{Search: "50%_off"}, args: []any{testUserID, (*string)(nil), `50\%\_off`}, rows: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepo(t)
			rows := pgxmock.NewRows(taskCols)
			for i := 0; i < tt.rows; i++ {
				rows.AddRow(testTaskID, testUserID, "t", "", "completed", "medium", nil, now, now)
			}
			mock.ExpectQuery("SELECT .+ FROM tasks\\s+WHERE user_id = \\$1").
				WithArgs(tt.args...).
				WillReturnRows(rows)

			got, err := r.List(context.Background(), testUserID, tt.filter)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Len(t, got, tt.rows)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskRepo_Update(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	completed := model.StatusCompleted
	status := "completed"

	tests := []struct {
		name    string
		patch   model.TaskPatch
		args    []any
		err     error
		wantErr error
	}{
		{
			name:  "status only",
			patch: model.TaskPatch{Status: &completed},
			args:  []any{testTaskID, testUserID, (*string)(nil), (*string)(nil), &status, (*string)(nil), false, (*time.Time)(nil)},
		},
		{
			name:  "clear deadline",
			patch: model.TaskPatch{ClearDeadline: true},
			args:  []any{testTaskID, testUserID, (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), true, (*time.Time)(nil)},
		},
		{
			name:    "not owned",
			patch:   model.TaskPatch{Status: &completed},
			args:    []any{testTaskID, testUserID, (*string)(nil), (*string)(nil), &status, (*string)(nil), false, (*time.Time)(nil)},
			err:     pgx.ErrNoRows,
			wantErr: ErrorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepo(t)
			exp := mock.ExpectQuery("UPDATE tasks").WithArgs(tt.args...)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnRows(pgxmock.NewRows(taskCols).
					AddRow(testTaskID, testUserID, "t", "", "completed", "medium", nil, now, now.Add(time.Minute)))
			}

			got, err := r.Update(context.Background(), testUserID, testTaskID, tt.patch)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, model.StatusCompleted, got.Status)
				assert.True(t, got.UpdatedAt.After(got.CreatedAt))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskRepo_Delete(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "deleted", rows: 1},
		{name: "not found", rows: 0, wantErr: ErrorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepo(t)
			mock.ExpectExec("DELETE FROM tasks WHERE id = \\$1 AND user_id = \\$2").
				WithArgs(testTaskID, testUserID).
				WillReturnResult(pgxmock.NewResult("DELETE", tt.rows))

			err := r.Delete(context.Background(), testUserID, testTaskID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskRepo_GetStats(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\)").
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("todo", int64(2)).
			AddRow("completed", int64(1)))

	stats, err := r.GetStats(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStats{Total: 3, Todo: 2, Completed: 1}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_IdempotencyKeys(t *testing.T) {
	ctx := context.Background()
	r, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs(testUserID, "key-1", testTaskID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT task_id FROM idempotency_keys").
		WithArgs(testUserID, "key-1").
		WillReturnRows(pgxmock.NewRows([]string{"task_id"}).AddRow(testTaskID))
	mock.ExpectQuery("SELECT task_id FROM idempotency_keys").
		WithArgs(testUserID, "key-2").
		WillReturnError(pgx.ErrNoRows)

	cutoff := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM idempotency_keys WHERE created_at < \\$1").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	require.NoError(t, r.SaveIdempotencyKey(ctx, testUserID, "key-1", testTaskID))

	id, err := r.GetIdempotencyKey(ctx, testUserID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, testTaskID, id)

	_, err = r.GetIdempotencyKey(ctx, testUserID, "key-2")
	assert.ErrorIs(t, err, ErrorNotFound)

	n, err := r.PurgeIdempotencyKeys(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapPgError(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no rows", err: pgx.ErrNoRows, want: ErrorNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: ErrorConflict},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: ErrorNotFound},
		{name: "other pg error", err: &pgconn.PgError{Code: "23514"}, want: nil},
		{name: "other", err: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPgError(tt.err)
			if tt.want == nil && tt.err != nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
