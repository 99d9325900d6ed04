// Package worker runs the conversation engine for jobs taken off the inbound
// queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"debtbot/internal/conversation"
	"debtbot/internal/domain"
	"debtbot/internal/providers/meta"
	sqsqueue "debtbot/internal/queue/sqs"
)

type Engine interface {
	Handle(ctx context.Context, businessID string, msg domain.InboundMessage) conversation.Result
}

type Processor struct {
	Engine Engine
	// JobTimeout bounds one engine run. Zero means no extra deadline.
	JobTimeout time.Duration
}

// Process decodes the queued message and runs exactly one engine branch for
// it. The returned error is for logging only; the job is never retried.
func (p *Processor) Process(ctx context.Context, job sqsqueue.InboundJob) error {
	msg, err := meta.DecodeMessage(job.Message)
	if err != nil {
		return fmt.Errorf("job %s: decode message: %w", job.JobID, err)
	}

	if p.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.JobTimeout)
		defer cancel()
	}

	res := p.Engine.Handle(ctx, job.BusinessID, msg)
	if res.Err != nil {
		return fmt.Errorf("job %s: %s: %w", job.JobID, res.Outcome, res.Err)
	}
	if res.SendFailed {
		return fmt.Errorf("job %s: %s: reply not delivered", job.JobID, res.Outcome)
	}
	return nil
}
