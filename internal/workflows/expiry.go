package workflows

import (
	"context"
	"time"

	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/workflow"
)

const storyTTL = 24 * time.Hour

// NewStoryExpiry builds the expiry workflow: wait 24 hours past the
// story's creation, then delete it. The delete is idempotent so a
// retried step, or a storage-level TTL sweep racing the workflow,
// cannot fail it.
func NewStoryExpiry(storage core.Storage) workflow.Definition {
	return workflow.Definition{
		Name:    "story-delete",
		Trigger: EventStoryDelete,
		Body: func(ctx *workflow.Context) error {
			var event StoryDeleteEvent
			if err := ctx.Input(&event); err != nil {
				return err
			}

			if err := ctx.Sleep("wait-for-24-hours", storyTTL); err != nil {
				return err
			}

			_, err := workflow.Step(ctx, "delete-story",
				func(stdctx context.Context) (string, error) {
					if err := storage.DeleteStory(stdctx, event.StoryID); err != nil {
						return "", err
					}
					return "Story Deleted Successfully", nil
				})
			return err
		},
	}
}
