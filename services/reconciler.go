package services

import (
	"context"
	"fmt"

	"catalog-service/models"
	"catalog-service/repository"
	"catalog-service/storage"

	"go.uber.org/zap"
)

// Reconciler finishes uploads interrupted between the file move and the
// product update. It looks at pending products carrying an upload marker:
// if the marked destination exists the product is completed, otherwise it
// is left for the queue to retry.
type Reconciler struct {
	repo  repository.ProductRepo
	store storage.BlobStore
	cache CacheInvalidator
}

func NewReconciler(repo repository.ProductRepo, store storage.BlobStore, cache CacheInvalidator) *Reconciler {
	return &Reconciler{repo: repo, store: store, cache: cache}
}

// Reconcile makes one pass and returns how many products it completed.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	pending, err := r.repo.FindPendingWithTarget(ctx)
	if err != nil {
		return 0, fmt.Errorf("find pending uploads: %w", err)
	}

	completed := 0
	for _, p := range pending {
		target := *p.UploadTarget
		log := zap.L().With(zap.String("code", p.Code), zap.String("destination", target))

		ok, err := r.store.Exists(ctx, models.ImageKey(target))
		if err != nil {
			log.Warn("reconcile: cannot check destination", zap.Error(err))
			continue
		}
		if !ok {
			log.Info("reconcile: destination missing, leaving for retry")
			continue
		}

		var none *string
		err = r.repo.UpdateByCode(ctx, p.Code, map[string]interface{}{
			repository.ColImage:        &target,
			repository.ColStatus:       models.StatusCompleted,
			repository.ColUploadTarget: none,
		})
		if err != nil {
			log.Error("reconcile: failed to complete product", zap.Error(err))
			continue
		}
		log.Info("reconcile: product completed")
		completed++
	}

	if completed > 0 && r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			zap.L().Warn("failed to invalidate product cache", zap.Error(err))
		}
	}
	return completed, nil
}
