package sqsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"

	"debtbot/internal/domain"
)

type fakeSQS struct {
	mu      sync.Mutex
	sent    []*sqs.SendMessageInput
	sendErr error
	pending []types.Message
	deleted []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.pending
	f.pending = nil
	f.mu.Unlock()
	if len(msgs) > 0 {
		return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func TestDispatchEnqueuesRawMessage(t *testing.T) {
	f := &fakeSQS{}
	p := &Producer{SQS: f, QueueURL: "https://sqs.local/q.fifo"}

	raw := json.RawMessage(`{"from":"573001112233","id":"wamid.1","type":"text","text":{"body":"ABC123"}}`)
	err := p.Dispatch(context.Background(), "PNID", domain.InboundMessage{ID: "wamid.1", From: "573001112233", Raw: raw})
	require.NoError(t, err)
	require.Len(t, f.sent, 1)

	in := f.sent[0]
	require.Equal(t, "573001112233", aws.ToString(in.MessageGroupId))
	require.Equal(t, "573001112233:wamid.1", aws.ToString(in.MessageDeduplicationId))

	var job InboundJob
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &job))
	require.Equal(t, "PNID", job.BusinessID)
	require.NotEmpty(t, job.JobID)
	require.JSONEq(t, string(raw), string(job.Message))
}

func TestDispatchSendError(t *testing.T) {
	f := &fakeSQS{sendErr: errors.New("throttled")}
	p := &Producer{SQS: f, QueueURL: "q"}
	err := p.Dispatch(context.Background(), "PNID", domain.InboundMessage{ID: "wamid.1", From: "u"})
	require.Error(t, err)
}

func TestPollDeletesEveryMessage(t *testing.T) {
	good, _ := json.Marshal(InboundJob{JobID: "job_1", BusinessID: "PNID", Message: json.RawMessage(`{"id":"a"}`)})
	failing, _ := json.Marshal(InboundJob{JobID: "job_2", BusinessID: "PNID", Message: json.RawMessage(`{"id":"b"}`)})

	f := &fakeSQS{pending: []types.Message{
		{ReceiptHandle: aws.String("r1"), Body: aws.String(string(good))},
		{ReceiptHandle: aws.String("r2"), Body: aws.String(string(failing))},
		{ReceiptHandle: aws.String("r3"), Body: aws.String("not json")},
		{ReceiptHandle: aws.String("r4")},
	}}
	c := &Consumer{SQS: f, QueueURL: "q"}

	var mu sync.Mutex
	var handled []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.PollConcurrent(ctx, 2, func(_ context.Context, job InboundJob) error {
			mu.Lock()
			handled = append(handled, job.JobID)
			mu.Unlock()
			if job.JobID == "job_2" {
				return errors.New("send failed")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return f.deletedCount() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"job_1", "job_2"}, handled)
	require.ElementsMatch(t, []string{"r1", "r2", "r3", "r4"}, f.deleted)
}
