package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "catalog-service/common/errors"
	"catalog-service/models"
	awspkg "catalog-service/pkg/aws"
	"catalog-service/queue"
	"catalog-service/repository"
	"catalog-service/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stages reported in JobExecutionError. StageUpdate means the outcome could
// not be recorded at all and the job is retried.
const (
	StageLoad     = "load"
	StageMarker   = "marker"
	StageMove     = "move"
	StageComplete = "complete"
	StageUpdate   = "update"
)

// UploadJob moves a staged image to its permanent key and resolves the
// product to completed or failed. Each run performs exactly one terminal
// update; on failure the staged file is deleted first.
type UploadJob struct {
	repo    repository.ProductRepo
	store   storage.BlobStore
	events  EventPublisher
	cache   CacheInvalidator
	metrics MetricsRecorder
	now     func() time.Time
}

// NewUploadJob wires the job. events, cache and metrics may be nil.
func NewUploadJob(repo repository.ProductRepo, store storage.BlobStore, events EventPublisher, cache CacheInvalidator, metrics MetricsRecorder) *UploadJob {
	return &UploadJob{
		repo:    repo,
		store:   store,
		events:  events,
		cache:   cache,
		metrics: metrics,
		now:     time.Now,
	}
}

// Handle is the queue.Handler for UploadJobType. A failure that has been
// recorded on the product is permanent; one that happened before the
// product could be resolved is returned as is so the queue retries it.
func (j *UploadJob) Handle(ctx context.Context, job queue.Job) error {
	var rec UploadJobRecord
	if err := job.Decode(&rec); err != nil {
		return queue.Permanent(err)
	}
	err := j.Run(ctx, rec)
	var jerr *apperrors.JobExecutionError
	if errors.As(err, &jerr) && jerr.Stage != StageLoad && jerr.Stage != StageUpdate {
		return queue.Permanent(err)
	}
	return err
}

// DestinationName builds the permanent image name: a nanosecond timestamp,
// an underscore and the sanitised original filename.
func DestinationName(now time.Time, originalName string) string {
	return fmt.Sprintf("%d_%s", now.UnixNano(), storage.SanitizeName(originalName))
}

// Run executes one upload job.
func (j *UploadJob) Run(ctx context.Context, rec UploadJobRecord) error {
	log := zap.L().With(zap.String("code", rec.Code), zap.String("staged_key", rec.StagedKey))

	product, err := j.load(ctx, rec)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// nothing to resolve; the staged file has no owner
			j.deleteBlob(ctx, log, rec.StagedKey)
			return queue.Permanent(&apperrors.JobExecutionError{Code: rec.Code, Stage: StageLoad, Err: err})
		}
		return &apperrors.JobExecutionError{Code: rec.Code, Stage: StageLoad, Err: err}
	}
	if product.Status.Terminal() {
		// redelivery of a resolved job
		log.Info("upload already resolved, skipping", zap.String("status", string(product.Status)))
		j.deleteBlob(ctx, log, rec.StagedKey)
		return nil
	}
	if product.UploadTarget != nil {
		// a previous run moved the file but did not record the outcome
		done, err := j.store.Exists(ctx, models.ImageKey(*product.UploadTarget))
		if err == nil && done {
			return j.complete(ctx, log, product, rec, *product.UploadTarget)
		}
	}

	dest := DestinationName(j.now(), rec.OriginalName)
	log = log.With(zap.String("destination", dest))

	if err := j.repo.UpdateByCode(ctx, product.Code, map[string]interface{}{repository.ColUploadTarget: &dest}); err != nil {
		return j.fail(ctx, log, product, rec, StageMarker, err)
	}

	start := j.now()
	if err := j.store.Move(ctx, rec.StagedKey, models.ImageKey(dest)); err != nil {
		return j.fail(ctx, log, product, rec, StageMove, err)
	}
	j.recordLatency(ctx, j.now().Sub(start))

	return j.complete(ctx, log, product, rec, dest)
}

// load finds the product by code, then by id if the code was changed.
func (j *UploadJob) load(ctx context.Context, rec UploadJobRecord) (*models.Product, error) {
	product, err := j.repo.FindByCode(ctx, rec.Code)
	if errors.Is(err, repository.ErrNotFound) && rec.ProductID != uuid.Nil {
		return j.repo.FindByID(ctx, rec.ProductID)
	}
	return product, err
}

// complete records image = dest, status = completed and clears the marker.
// If that update fails the product is marked failed instead and the moved
// image is removed; if even that cannot be recorded the marker is left for a
// retry or the reconciler.
func (j *UploadJob) complete(ctx context.Context, log *zap.Logger, product *models.Product, rec UploadJobRecord, dest string) error {
	var none *string
	err := j.repo.UpdateByCode(ctx, product.Code, map[string]interface{}{
		repository.ColImage:        &dest,
		repository.ColStatus:       models.StatusCompleted,
		repository.ColUploadTarget: none,
	})
	if err != nil {
		log.Error("failed to mark product completed", zap.Error(err))
		ferr := j.fail(ctx, log, product, rec, StageComplete, err)
		var jerr *apperrors.JobExecutionError
		if errors.As(ferr, &jerr) && jerr.Stage == StageComplete {
			j.deleteBlob(ctx, log, models.ImageKey(dest))
		}
		return ferr
	}

	log.Info("product upload completed", zap.String("image", dest))
	j.outcome(ctx, product, models.StatusCompleted, &dest, "")
	return nil
}

// fail deletes the staged file, records the failure and returns the
// original error wrapped as a JobExecutionError.
func (j *UploadJob) fail(ctx context.Context, log *zap.Logger, product *models.Product, rec UploadJobRecord, stage string, cause error) error {
	log.Warn("product upload failed", zap.String("stage", stage), zap.Error(cause))
	j.deleteBlob(ctx, log, rec.StagedKey)

	if err := j.repo.UpdateByCode(ctx, product.Code, failedUpdate()); err != nil {
		log.Error("failed to mark product failed", zap.Error(err))
		return &apperrors.JobExecutionError{Code: rec.Code, Stage: StageUpdate, Err: errors.Join(cause, err)}
	}

	j.outcome(ctx, product, models.StatusFailed, nil, cause.Error())
	return &apperrors.JobExecutionError{Code: rec.Code, Stage: stage, Err: cause}
}

func (j *UploadJob) deleteBlob(ctx context.Context, log *zap.Logger, key string) {
	if err := j.store.Delete(ctx, key); err != nil {
		log.Error("failed to delete file", zap.String("key", key), zap.Error(err))
	}
}

func (j *UploadJob) outcome(ctx context.Context, p *models.Product, status models.ProductStatus, image *string, reason string) {
	if j.cache != nil {
		if err := j.cache.Invalidate(ctx); err != nil {
			zap.L().Warn("failed to invalidate product cache", zap.String("code", p.Code), zap.Error(err))
		}
	}

	if j.metrics != nil {
		name := awspkg.MetricUploadsCompleted
		if status == models.StatusFailed {
			name = awspkg.MetricUploadsFailed
		}
		if err := j.metrics.RecordCount(ctx, name, nil); err != nil {
			zap.L().Warn("failed to record upload metric", zap.Error(err))
		}
	}

	if j.events != nil {
		ev := UploadEvent{
			ProductID:  p.ID.String(),
			Code:       p.Code,
			Status:     status,
			Image:      image,
			Reason:     reason,
			OccurredAt: j.now().UTC(),
		}
		if err := j.events.PublishUploadOutcome(ctx, ev); err != nil {
			zap.L().Warn("failed to publish upload event", zap.String("code", p.Code), zap.Error(err))
		}
	}
}

func (j *UploadJob) recordLatency(ctx context.Context, d time.Duration) {
	if j.metrics == nil {
		return
	}
	if err := j.metrics.RecordLatency(ctx, awspkg.MetricUploadMoveLatency, d, nil); err != nil {
		zap.L().Warn("failed to record move latency", zap.Error(err))
	}
}
