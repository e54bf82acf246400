package workflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingup/pingup/internal/adapters/runstore"
	"github.com/pingup/pingup/internal/adapters/storage"
	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/logging"
	"github.com/pingup/pingup/internal/retry"
	"github.com/pingup/pingup/internal/workflow"
	"github.com/pingup/pingup/internal/workflows"
)

type expiryFixture struct {
	store     *storage.Memory
	engine    *workflow.Engine
	scheduler *workflow.Scheduler
	mock      *clock.Mock
}

func newExpiryFixture(t *testing.T) *expiryFixture {
	t.Helper()
	f := &expiryFixture{
		store: storage.NewMemory(),
		mock:  clock.NewMock(),
	}
	f.engine = workflow.New(runstore.NewMemory(),
		workflow.WithClock(f.mock),
		workflow.WithRetryPolicy(retry.None()),
		workflow.WithLogger(logging.NewNop()),
	)
	require.NoError(t, f.engine.Register(workflows.NewStoryExpiry(f.store)))
	f.scheduler = workflow.NewScheduler(f.engine, workflow.WithSchedulerLogger(logging.NewNop()))
	return f
}

func (f *expiryFixture) seedStory(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.SaveStory(context.Background(), &core.Story{
		ID:        id,
		UserID:    "u-alice",
		Content:   "hello",
		MediaType: core.StoryMediaNone,
		CreatedAt: f.mock.Now(),
	}))
}

func (f *expiryFixture) emit(t *testing.T, storyID string) {
	t.Helper()
	require.NoError(t, f.engine.Emit(context.Background(),
		workflows.EventStoryDelete,
		workflows.StoryDeleteEvent{StoryID: storyID},
		workflow.WithDedupeKey(storyID)))
}

func (f *expiryFixture) storyExists(id string) bool {
	_, err := f.store.GetStory(context.Background(), id)
	return err == nil
}

func TestStoryExpiry_DeletesAfter24Hours(t *testing.T) {
	f := newExpiryFixture(t)
	f.seedStory(t, "story-1")
	f.emit(t, "story-1")

	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.True(t, f.storyExists("story-1"), "story deleted before its TTL")

	f.mock.Add(23 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.True(t, f.storyExists("story-1"))

	f.mock.Add(2 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.False(t, f.storyExists("story-1"), "story survived past its TTL")
}

func TestStoryExpiry_AbsentStoryCompletesCleanly(t *testing.T) {
	f := newExpiryFixture(t)
	f.seedStory(t, "story-1")
	f.emit(t, "story-1")

	require.NoError(t, f.scheduler.Tick(context.Background()))

	// A storage-level sweep got there first.
	require.NoError(t, f.store.DeleteStory(context.Background(), "story-1"))

	f.mock.Add(25 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))

	// The run settled rather than retrying forever.
	f.mock.Add(time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))
}

func TestStoryExpiry_DuplicateEventSingleRun(t *testing.T) {
	f := newExpiryFixture(t)
	f.seedStory(t, "story-1")
	f.emit(t, "story-1")
	f.emit(t, "story-1")

	f.mock.Add(25 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.False(t, f.storyExists("story-1"))
}

func TestStoryExpiry_IndependentStories(t *testing.T) {
	f := newExpiryFixture(t)
	f.seedStory(t, "story-1")
	f.emit(t, "story-1")
	require.NoError(t, f.scheduler.Tick(context.Background()))

	// A second story posted twelve hours later expires twelve hours
	// after the first.
	f.mock.Add(12 * time.Hour)
	f.seedStory(t, "story-2")
	f.emit(t, "story-2")
	require.NoError(t, f.scheduler.Tick(context.Background()))

	f.mock.Add(13 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.False(t, f.storyExists("story-1"))
	assert.True(t, f.storyExists("story-2"))

	f.mock.Add(12 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.False(t, f.storyExists("story-2"))
}
