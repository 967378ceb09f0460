package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/soundtrace/soundtrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Task{}))
	return db
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	l := New(setupTestDB(t))
	ctx := context.Background()

	created, err := l.Create(ctx, "task-1", models.TaskTypeTrack, "file://a.wav", 1)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, created.Status)

	got, err := l.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypeTrack, got.TaskType)
	assert.Equal(t, "file://a.wav", got.SourceURL)
	assert.Equal(t, 1, got.TotalItems)
	assert.Equal(t, 0, got.ProcessedItems)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetUnknownTaskReturnsNotFound(t *testing.T) {
	l := New(setupTestDB(t))

	_, err := l.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTransitionStampsTimestamps(t *testing.T) {
	l := New(setupTestDB(t))
	ctx := context.Background()

	_, err := l.Create(ctx, "task-1", models.TaskTypeTrack, "file://a.wav", 1)
	require.NoError(t, err)

	require.NoError(t, l.Transition(ctx, "task-1", models.TaskStatusRunning))
	running, err := l.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)
	assert.Nil(t, running.CompletedAt)

	require.NoError(t, l.Transition(ctx, "task-1", models.TaskStatusCompleted))
	done, err := l.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(*done.StartedAt))
}

func TestTransitionIsMonotonic(t *testing.T) {
	cases := []struct {
		name string
		path []models.TaskStatus
		last models.TaskStatus
	}{
		{"completed tasks never reopen", []models.TaskStatus{models.TaskStatusRunning, models.TaskStatusCompleted}, models.TaskStatusRunning},
		{"failed tasks never reopen", []models.TaskStatus{models.TaskStatusRunning, models.TaskStatusFailed}, models.TaskStatusRunning},
		{"pending cannot skip to completed", nil, models.TaskStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(setupTestDB(t))
			ctx := context.Background()

			_, err := l.Create(ctx, "task-1", models.TaskTypeTrack, "file://a.wav", 1)
			require.NoError(t, err)
			for _, next := range tc.path {
				require.NoError(t, l.Transition(ctx, "task-1", next))
			}

			err = l.Transition(ctx, "task-1", tc.last)
			assert.ErrorIs(t, err, ErrIllegalTransition)
		})
	}
}

func TestTransitionUnknownTaskReturnsNotFound(t *testing.T) {
	l := New(setupTestDB(t))

	err := l.Transition(context.Background(), "nope", models.TaskStatusRunning)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestIncrementProcessed(t *testing.T) {
	l := New(setupTestDB(t))
	ctx := context.Background()

	_, err := l.Create(ctx, "task-1", models.TaskTypePlaylist, "file://", 3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.IncrementProcessed(ctx, "task-1"))
	}

	got, err := l.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ProcessedItems)
}

func TestSetResult(t *testing.T) {
	l := New(setupTestDB(t))
	ctx := context.Background()

	_, err := l.Create(ctx, "task-1", models.TaskTypeTrack, "file://a.wav", 1)
	require.NoError(t, err)
	require.NoError(t, l.SetResult(ctx, "task-1", `{"success":true}`))

	got, err := l.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, got.ResultBlob)
}

func TestSweepCompletedRemovesOnlyExpiredCompletedTasks(t *testing.T) {
	db := setupTestDB(t)
	l := New(db)
	ctx := context.Background()

	finish := func(id string) {
		_, err := l.Create(ctx, id, models.TaskTypeTrack, "file://a.wav", 1)
		require.NoError(t, err)
		require.NoError(t, l.Transition(ctx, id, models.TaskStatusRunning))
		require.NoError(t, l.Transition(ctx, id, models.TaskStatusCompleted))
	}
	finish("old-completed")
	finish("fresh-completed")

	_, err := l.Create(ctx, "old-failed", models.TaskTypeTrack, "file://b.wav", 1)
	require.NoError(t, err)
	require.NoError(t, l.Transition(ctx, "old-failed", models.TaskStatusFailed))

	stale := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, db.Model(&models.Task{}).
		Where("id IN ?", []string{"old-completed", "old-failed"}).
		UpdateColumn("completed_at", stale).Error)

	removed, err := l.SweepCompleted(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = l.Get(ctx, "old-completed")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// Fresh completed tasks and failed tasks survive the sweep.
	_, err = l.Get(ctx, "fresh-completed")
	assert.NoError(t, err)
	_, err = l.Get(ctx, "old-failed")
	assert.NoError(t, err)
}

func TestCountsByStatus(t *testing.T) {
	l := New(setupTestDB(t))
	ctx := context.Background()

	_, err := l.Create(ctx, "pending-1", models.TaskTypeTrack, "file://a.wav", 1)
	require.NoError(t, err)
	_, err = l.Create(ctx, "running-1", models.TaskTypeTrack, "file://b.wav", 1)
	require.NoError(t, err)
	require.NoError(t, l.Transition(ctx, "running-1", models.TaskStatusRunning))

	counts, err := l.CountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.TaskStatusPending])
	assert.Equal(t, int64(1), counts[models.TaskStatusRunning])
	assert.Zero(t, counts[models.TaskStatusCompleted])
}
