// Package notifications queues and delivers the e-mail sent to an organizer
// after a conference is created.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/pkg/queue"
)

// JobEnqueuer is the producing side of the job queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, queueName string, jobType queue.JobType, payload any) (*queue.Job, error)
}

// Enqueuer turns conference events into e-mail jobs.
type Enqueuer struct {
	queue  JobEnqueuer
	logger *zap.Logger
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(q JobEnqueuer, logger *zap.Logger) *Enqueuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enqueuer{queue: q, logger: logger}
}

// ConferenceCreated queues the confirmation e-mail for a new conference.
func (e *Enqueuer) ConferenceCreated(ctx context.Context, recipient string, c *models.Conference) error {
	if recipient == "" {
		return fmt.Errorf("no recipient for conference %s", c.Key)
	}
	job, err := e.queue.Enqueue(ctx, queue.QueueEmails, queue.JobTypeConferenceConfirmation, queue.ConferenceConfirmationPayload{
		RecipientEmail: recipient,
		ConferenceInfo: ConferenceInfo(c),
	})
	if err != nil {
		return fmt.Errorf("enqueue confirmation: %w", err)
	}
	e.logger.Info("confirmation e-mail queued", zap.String("job_id", job.ID), zap.String("conference", c.Key.String()))
	return nil
}

// ConferenceInfo renders the plain-text summary of a conference.
func ConferenceInfo(c *models.Conference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Id: %d\n", c.Key.ID)
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	fmt.Fprintf(&b, "City: %s\n", c.City)
	fmt.Fprintf(&b, "Topics: %s\n", strings.Join(c.Topics, ", "))
	fmt.Fprintf(&b, "Start Date: %s\n", formatDate(c.StartDate))
	fmt.Fprintf(&b, "End Date: %s\n", formatDate(c.EndDate))
	fmt.Fprintf(&b, "Max Attendees: %d", c.MaxAttendees)
	return b.String()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
