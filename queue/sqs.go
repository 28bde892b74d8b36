package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// SQSClient is the subset of the SQS client used by SQSQueue.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSQueue delivers jobs through an SQS queue. The attempt number comes from
// the message receive count; a retry is the message becoming visible again
// after the backoff. Dead letters are forwarded to deadLetterURL, if set.
type SQSQueue struct {
	client        SQSClient
	queueURL      string
	deadLetterURL string
	dispatcher    *Dispatcher
	policy        Policy
	pollers       int

	waitSeconds       int32
	visibilityTimeout int32
}

func NewSQSQueue(client SQSClient, queueURL, deadLetterURL string, d *Dispatcher, policy Policy, pollers int) *SQSQueue {
	if pollers < 1 {
		pollers = 1
	}
	return &SQSQueue{
		client:            client,
		queueURL:          queueURL,
		deadLetterURL:     deadLetterURL,
		dispatcher:        d,
		policy:            policy,
		pollers:           pollers,
		waitSeconds:       20,
		visibilityTimeout: 60,
	}
}

func (q *SQSQueue) Submit(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(raw)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"job_type": {DataType: aws.String("String"), StringValue: aws.String(job.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := q.pollOnce(ctx); err != nil && ctx.Err() == nil {
					zap.L().Error("error polling SQS", zap.String("queue_url", q.queueURL), zap.Error(err))
					sleep(ctx, time.Second)
				}
			}
		}()
	}
	zap.L().Info("sqs queue started", zap.String("queue_url", q.queueURL), zap.Int("pollers", q.pollers))
	wg.Wait()
	zap.L().Info("sqs queue stopped", zap.String("queue_url", q.queueURL))
	return nil
}

func (q *SQSQueue) pollOnce(ctx context.Context) error {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     q.waitSeconds,
		VisibilityTimeout:   q.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}
	for _, msg := range out.Messages {
		q.handle(ctx, msg)
	}
	return nil
}

func (q *SQSQueue) handle(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		q.delete(ctx, msg)
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(*msg.Body), &job); err != nil {
		zap.L().Error("undecodable SQS message", zap.String("queue_url", q.queueURL), zap.Error(err))
		q.forwardDead(ctx, msg, *msg.Body, err)
		return
	}
	job.Attempt = receiveCount(msg)

	err := q.dispatcher.Dispatch(ctx, job)
	switch q.policy.decide(job.Attempt, err) {
	case ack:
		q.delete(ctx, msg)
	case retry:
		secs := int32(q.policy.delay(job.Attempt) / time.Second)
		_, verr := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(q.queueURL),
			ReceiptHandle:     msg.ReceiptHandle,
			VisibilityTimeout: secs,
		})
		if verr != nil {
			zap.L().Warn("failed to change message visibility", zap.String("job_id", job.ID), zap.Error(verr))
		}
	case deadLetter:
		zap.L().Error("job dead-lettered",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		dl, _ := json.Marshal(DeadLetter{Job: job, Error: err.Error(), FailedAt: time.Now().UTC()})
		q.forwardDead(ctx, msg, string(dl), err)
	}
}

// forwardDead sends body to the dead-letter queue and deletes the original.
// Without a DLQ the message is dropped after logging.
func (q *SQSQueue) forwardDead(ctx context.Context, msg types.Message, body string, cause error) {
	if q.deadLetterURL != "" {
		_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(q.deadLetterURL),
			MessageBody: aws.String(body),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"error": {DataType: aws.String("String"), StringValue: aws.String(cause.Error())},
			},
		})
		if err != nil {
			// leave the message in place; it will be received again
			zap.L().Error("failed to forward to dead-letter queue", zap.String("dlq_url", q.deadLetterURL), zap.Error(err))
			return
		}
	}
	q.delete(ctx, msg)
}

func (q *SQSQueue) delete(ctx context.Context, msg types.Message) {
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		zap.L().Warn("failed to delete message", zap.String("queue_url", q.queueURL), zap.Error(err))
	}
}

func receiveCount(msg types.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
