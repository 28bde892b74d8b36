package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalog-service/models"
	awspkg "catalog-service/pkg/aws"
)

const (
	EventUploadCompleted = "product.upload.completed"
	EventUploadFailed    = "product.upload.failed"
)

// UploadEvent describes the terminal outcome of an upload job.
type UploadEvent struct {
	Type       string               `json:"type"`
	ProductID  string               `json:"product_id"`
	Code       string               `json:"code"`
	Status     models.ProductStatus `json:"status"`
	Image      *string              `json:"image,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// EventPublisher announces upload outcomes to other systems.
type EventPublisher interface {
	PublishUploadOutcome(ctx context.Context, ev UploadEvent) error
}

// SNSEventPublisher publishes upload events as JSON to one SNS topic.
type SNSEventPublisher struct {
	sns      awspkg.SNSPublisher
	topicArn string
}

func NewSNSEventPublisher(sns awspkg.SNSPublisher, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{sns: sns, topicArn: topicArn}
}

func (p *SNSEventPublisher) PublishUploadOutcome(ctx context.Context, ev UploadEvent) error {
	if ev.Type == "" {
		ev.Type = EventUploadCompleted
		if ev.Status == models.StatusFailed {
			ev.Type = EventUploadFailed
		}
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode upload event: %w", err)
	}
	return p.sns.Publish(ctx, p.topicArn, body)
}
