package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conference-central/backend/pkg/queue"
)

// ConfirmationSubject is the subject of the conference confirmation e-mail.
const ConfirmationSubject = "You created a new Conference!"

// JobQueue is the consuming side of the job queue.
type JobQueue interface {
	Dequeue(ctx context.Context, queueName string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor delivers queued e-mail jobs.
type Processor struct {
	queue   JobQueue
	sender  Sender
	backoff time.Duration
	logger  *zap.Logger
}

// NewProcessor creates an e-mail job processor.
func NewProcessor(q JobQueue, sender Sender, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{queue: q, sender: sender, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one e-mail job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeConferenceConfirmation {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ConferenceConfirmationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.RecipientEmail == "" {
		return fmt.Errorf("job %s has no recipient", job.ID)
	}
	msg := Message{
		To:      payload.RecipientEmail,
		Subject: ConfirmationSubject,
		Text:    "Hi, you have created the following new conference.\n\n" + payload.ConferenceInfo,
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		return err
	}
	p.logger.Info("confirmation e-mail sent", zap.String("job_id", job.ID), zap.String("to", payload.RecipientEmail))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.QueueEmails)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			// Requeue even when shutting down so the job is not lost.
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
