package workflows

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/workflow"
)

// NewUserCreated syncs a freshly provisioned identity into the local
// user table. The username is derived from the email local part; on
// collision a random numeric suffix is appended, matching the
// behavior users already rely on for display handles.
func NewUserCreated(storage core.Storage) workflow.Definition {
	return workflow.Definition{
		Name:    "sync-user-created",
		Trigger: EventUserCreated,
		Body: func(ctx *workflow.Context) error {
			var event UserEvent
			if err := ctx.Input(&event); err != nil {
				return err
			}

			_, err := workflow.Step(ctx, "create-user",
				func(stdctx context.Context) (string, error) {
					username := usernameFromEmail(event.Email)
					if _, err := storage.GetUserByUsername(stdctx, username); err == nil {
						username = fmt.Sprintf("%s%d", username, rand.Intn(100000))
					} else if !errors.Is(err, core.ErrUserNotFound) {
						return "", err
					}

					now := time.Now().UTC()
					user := &core.User{
						ID:             event.ID,
						Email:          event.Email,
						FullName:       strings.TrimSpace(event.FirstName + " " + event.LastName),
						Username:       username,
						ProfilePicture: event.ImageURL,
						CreatedAt:      now,
						UpdatedAt:      now,
					}
					if err := storage.PutUser(stdctx, user); err != nil {
						return "", err
					}
					return username, nil
				})
			return err
		},
	}
}

// NewUserUpdated propagates identity profile changes.
func NewUserUpdated(storage core.Storage) workflow.Definition {
	return workflow.Definition{
		Name:    "sync-user-updated",
		Trigger: EventUserUpdated,
		Body: func(ctx *workflow.Context) error {
			var event UserEvent
			if err := ctx.Input(&event); err != nil {
				return err
			}

			_, err := workflow.Step(ctx, "update-user",
				func(stdctx context.Context) (string, error) {
					user, err := storage.GetUser(stdctx, event.ID)
					if err != nil {
						return "", err
					}
					user.Email = event.Email
					user.FullName = strings.TrimSpace(event.FirstName + " " + event.LastName)
					user.ProfilePicture = event.ImageURL
					user.UpdatedAt = time.Now().UTC()
					if err := storage.PutUser(stdctx, user); err != nil {
						return "", err
					}
					return user.ID, nil
				})
			return err
		},
	}
}

// NewUserDeleted removes the local record for a deleted identity.
func NewUserDeleted(storage core.Storage) workflow.Definition {
	return workflow.Definition{
		Name:    "sync-user-deleted",
		Trigger: EventUserDeleted,
		Body: func(ctx *workflow.Context) error {
			var event UserEvent
			if err := ctx.Input(&event); err != nil {
				return err
			}

			_, err := workflow.Step(ctx, "delete-user",
				func(stdctx context.Context) (string, error) {
					if err := storage.DeleteUser(stdctx, event.ID); err != nil {
						return "", err
					}
					return event.ID, nil
				})
			return err
		},
	}
}

func usernameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
