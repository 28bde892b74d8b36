package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent        []*sqs.SendMessageInput
	deleted     []string
	visibility  []*sqs.ChangeMessageVisibilityInput
	sendErrFor  string
	receiveOnce []types.Message
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErrFor != "" && *in.QueueUrl == f.sendErrFor {
		return nil, errors.New("send failed")
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	msgs := f.receiveOnce
	f.receiveOnce = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.visibility = append(f.visibility, in)
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func sqsMessage(t *testing.T, q *SQSQueue, fake *fakeSQS, receipt string, count string) types.Message {
	t.Helper()
	job, err := NewJob("upload", payload{Code: "P100"})
	require.NoError(t, err)
	require.NoError(t, q.Submit(context.Background(), job))
	body := fake.sent[len(fake.sent)-1].MessageBody
	return types.Message{
		Body:          body,
		ReceiptHandle: aws.String(receipt),
		Attributes:    map[string]string{string(types.MessageSystemAttributeNameApproximateReceiveCount): count},
	}
}

func TestSQSQueue_AckDeletesMessage(t *testing.T) {
	fake := &fakeSQS{}
	d := NewDispatcher()
	var attempt int
	d.Register("upload", func(ctx context.Context, job Job) error {
		attempt = job.Attempt
		return nil
	})
	q := NewSQSQueue(fake, "https://sqs/uploads", "https://sqs/uploads-dlq", d, DefaultPolicy(), 1)

	fake.receiveOnce = []types.Message{sqsMessage(t, q, fake, "r1", "1")}
	require.NoError(t, q.pollOnce(context.Background()))

	assert.Equal(t, 1, attempt)
	assert.Equal(t, []string{"r1"}, fake.deleted)
	assert.Equal(t, "upload", *fake.sent[0].MessageAttributes["job_type"].StringValue)
}

func TestSQSQueue_RetryExtendsVisibility(t *testing.T) {
	fake := &fakeSQS{}
	d := NewDispatcher()
	d.Register("upload", func(ctx context.Context, job Job) error { return errors.New("transient") })
	q := NewSQSQueue(fake, "https://sqs/uploads", "", d, Policy{MaxAttempts: 3, Backoff: 2 * time.Second}, 1)

	q.handle(context.Background(), sqsMessage(t, q, fake, "r1", "2"))

	assert.Empty(t, fake.deleted)
	require.Len(t, fake.visibility, 1)
	assert.EqualValues(t, 4, fake.visibility[0].VisibilityTimeout)
}

func TestSQSQueue_LastAttemptForwardsToDLQ(t *testing.T) {
	fake := &fakeSQS{}
	d := NewDispatcher()
	d.Register("upload", func(ctx context.Context, job Job) error { return errors.New("still broken") })
	q := NewSQSQueue(fake, "https://sqs/uploads", "https://sqs/uploads-dlq", d, Policy{MaxAttempts: 3, Backoff: time.Second}, 1)

	q.handle(context.Background(), sqsMessage(t, q, fake, "r9", "3"))

	last := fake.sent[len(fake.sent)-1]
	assert.Equal(t, "https://sqs/uploads-dlq", *last.QueueUrl)
	assert.Equal(t, "still broken", *last.MessageAttributes["error"].StringValue)
	assert.Equal(t, []string{"r9"}, fake.deleted)
}

func TestSQSQueue_DLQFailureKeepsMessage(t *testing.T) {
	fake := &fakeSQS{sendErrFor: "https://sqs/uploads-dlq"}
	d := NewDispatcher()
	d.Register("upload", func(ctx context.Context, job Job) error { return Permanent(errors.New("bad payload")) })
	q := NewSQSQueue(fake, "https://sqs/uploads", "https://sqs/uploads-dlq", d, DefaultPolicy(), 1)

	q.handle(context.Background(), sqsMessage(t, q, fake, "r2", "1"))
	assert.Empty(t, fake.deleted)
}

func TestReceiveCountDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, receiveCount(types.Message{}))
	assert.Equal(t, 4, receiveCount(types.Message{Attributes: map[string]string{"ApproximateReceiveCount": "4"}}))
}
