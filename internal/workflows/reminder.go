package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/workflow"
)

const (
	connectionRequestSubject = "👋 New Connection Request"
	reminderDelay            = 24 * time.Hour
)

// ReminderDeps are the collaborators the reminder workflow needs.
type ReminderDeps struct {
	Storage core.Storage
	Mailer  core.Mailer
	// FrontendURL is the base URL linked in notification mail.
	FrontendURL string
}

// NewConnectionRequestReminder builds the reminder workflow: notify
// the recipient immediately, wait 24 hours, then re-notify unless the
// request has been accepted in the meantime. Both steps read the
// request fresh from storage; the second step must see the live status
// at the 24-hour mark, not the value captured at trigger time.
func NewConnectionRequestReminder(deps ReminderDeps) workflow.Definition {
	return workflow.Definition{
		Name:    "send-new-connection-request-reminder",
		Trigger: EventConnectionRequest,
		Body: func(ctx *workflow.Context) error {
			var event ConnectionRequestEvent
			if err := ctx.Input(&event); err != nil {
				return err
			}

			_, err := workflow.Step(ctx, "send-connection-request-mail",
				func(stdctx context.Context) (string, error) {
					return deps.notify(stdctx, event.ConnectionID, false)
				})
			if err != nil {
				return err
			}

			if err := ctx.Sleep("wait-for-24-hours", reminderDelay); err != nil {
				return err
			}

			_, err = workflow.Step(ctx, "send-connection-request-reminder",
				func(stdctx context.Context) (string, error) {
					return deps.notify(stdctx, event.ConnectionID, true)
				})
			return err
		},
	}
}

// notify loads the request and both profiles, then mails the
// recipient. For the reminder pass an already-accepted request is a
// no-op.
func (deps ReminderDeps) notify(ctx context.Context, connectionID string, reminder bool) (string, error) {
	connection, err := deps.Storage.GetConnection(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("loading connection request %s: %w", connectionID, err)
	}

	if reminder && connection.Status == core.ConnectionAccepted {
		return "Already Accepted", nil
	}

	from, err := deps.Storage.GetUser(ctx, connection.FromUserID)
	if err != nil {
		return "", fmt.Errorf("loading sender profile: %w", err)
	}
	to, err := deps.Storage.GetUser(ctx, connection.ToUserID)
	if err != nil {
		return "", fmt.Errorf("loading recipient profile: %w", err)
	}

	body := fmt.Sprintf(`<div style="font-family:Arial,sans-serif;padding:20px;">
<h2>Hi %s,</h2>
<p>You have a new connection request from %s - @%s</p>
<p>Click <a href="%s/connections" style="color:#10b981">here</a> to accept or reject the request</p>
<br/>
<p>Thanks,<br/>PingUp - Stay Connected.</p>
</div>`, to.FullName, from.FullName, from.Username, deps.FrontendURL)

	if err := deps.Mailer.Send(ctx, to.Email, connectionRequestSubject, body); err != nil {
		return "", err
	}
	if reminder {
		return "Reminder sent", nil
	}
	return "Notification sent", nil
}
