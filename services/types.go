package services

import (
	"context"
	"time"

	"catalog-service/models"

	"github.com/google/uuid"
)

// UploadJobType is the queue job type handled by UploadJob.
const UploadJobType = "product.upload"

// UploadJobRecord is the immutable description of one upload finalisation.
// ProductID locates the product when its code no longer matches.
type UploadJobRecord struct {
	ProductID    uuid.UUID `json:"product_id"`
	Code         string    `json:"code"`
	StagedKey    string    `json:"staged_key"`
	OriginalName string    `json:"original_name"`
}

// ProductForm holds the raw text fields of a product submission.
type ProductForm struct {
	Code        string `form:"code" validate:"required,max=64"`
	Name        string `form:"name" validate:"required,max=255"`
	Description string `form:"description" validate:"required"`
	Stock       string `form:"stock" validate:"required,number"`
	Price       string `form:"price" validate:"required,numeric"`
	Category    string `form:"category" validate:"required,category"`
}

// UploadedFile is an image received with a submission.
type UploadedFile struct {
	Name string
	Data []byte
}

// UpdateRequest edits the text fields of a product and optionally toggles
// its soft-delete flag.
type UpdateRequest struct {
	ProductForm
	IsDeleted *bool
}

type ListParams struct {
	Page    int
	PerPage int
}

type ProductPage struct {
	Products []*models.Product
	Total    int64
	Page     int
	PerPage  int
}

// CacheInvalidator drops cached product reads.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// MetricsRecorder is the metrics sink for the upload pipeline.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}
