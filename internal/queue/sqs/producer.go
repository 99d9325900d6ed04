// Package sqsqueue hands accepted inbound messages from the webhook to the
// conversation worker through a FIFO SQS queue.
package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"debtbot/internal/domain"
	"debtbot/internal/observability"
	"debtbot/internal/util"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// InboundJob carries one accepted message. Message is the raw message object
// as delivered by the webhook; the worker decodes it again.
type InboundJob struct {
	JobID      string          `json:"jobId"`
	BusinessID string          `json:"businessId"`
	Message    json.RawMessage `json:"message"`
}

type Producer struct {
	SQS      sqsAPI
	QueueURL string
}

// Dispatch enqueues msg. Messages of one user share a group so replies keep
// their order; the dedup id repeats the claim the webhook already wrote.
func (p *Producer) Dispatch(ctx context.Context, businessID string, msg domain.InboundMessage) error {
	job := InboundJob{
		JobID:      util.NewJobID(),
		BusinessID: businessID,
		Message:    msg.Raw,
	}
	body, err := json.Marshal(job)
	if err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		return err
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(msg.From),
		MessageDeduplicationId: str(dedupID(msg)),
	})
	if err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		return fmt.Errorf("sqs send: %w", err)
	}
	observability.Enqueues.WithLabelValues("ok").Inc()
	return nil
}

func dedupID(msg domain.InboundMessage) string {
	return fmt.Sprintf("%s:%s", msg.From, msg.ID)
}

func str(s string) *string { return &s }
