package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "catalog-service/common/errors"
	"catalog-service/common/logger"
	"catalog-service/models"
	awspkg "catalog-service/pkg/aws"
	"catalog-service/queue"
	"catalog-service/repository"
	"catalog-service/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100

	cleanupTimeout = 10 * time.Second
)

// ProductService owns the product API use cases, including the synchronous
// half of the upload pipeline.
type ProductService struct {
	repo      repository.ProductRepo
	store     storage.BlobStore
	queue     queue.Queue
	validator *ProductValidator
	cache     CacheInvalidator
	metrics   MetricsRecorder
}

// NewProductService wires the service. cache and metrics may be nil.
func NewProductService(repo repository.ProductRepo, store storage.BlobStore, q queue.Queue, v *ProductValidator, cache CacheInvalidator, metrics MetricsRecorder) *ProductService {
	return &ProductService{
		repo:      repo,
		store:     store,
		queue:     q,
		validator: v,
		cache:     cache,
		metrics:   metrics,
	}
}

// SubmitUpload validates the submission, stages the image, creates the
// pending product and enqueues the upload job, in that order. It returns
// as soon as the job is enqueued.
//
// A failed create removes the staged file. A failed enqueue also marks the
// product failed, so no pending product is left without a job.
func (s *ProductService) SubmitUpload(ctx context.Context, form ProductForm, file *UploadedFile) (*models.Product, error) {
	log := logger.FromContext(ctx).With(zap.String("code", form.Code))

	verr := apperrors.NewValidationError()
	valid := s.validator.ValidateForm(form, verr)
	s.validator.ValidateImage(file, verr)
	if verr.Empty() {
		s.checkCodeFree(ctx, valid.Code, uuid.Nil, verr)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	stagedKey, err := s.store.Stage(ctx, file.Data, file.Name)
	if err != nil {
		log.Error("failed to stage upload", zap.Error(err))
		return nil, apperrors.UploadFailure(fmt.Errorf("stage image: %w", err))
	}
	log = log.With(zap.String("staged_key", stagedKey))

	product := &models.Product{
		ID:          uuid.New(),
		Code:        valid.Code,
		Name:        valid.Name,
		Description: valid.Description,
		Stock:       valid.Stock,
		Price:       valid.Price,
		Category:    valid.Category,
		Status:      models.StatusPending,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		cctx, cancel := cleanupContext(ctx)
		s.discardStaged(cctx, log, stagedKey)
		cancel()
		if errors.Is(err, repository.ErrDuplicateCode) {
			verr.Add("code", "The code has already been taken.")
			return nil, verr
		}
		log.Error("failed to create pending product", zap.Error(err))
		return nil, apperrors.UploadFailure(fmt.Errorf("create product: %w", err))
	}

	job, err := queue.NewJob(UploadJobType, UploadJobRecord{
		ProductID:    product.ID,
		Code:         product.Code,
		StagedKey:    stagedKey,
		OriginalName: file.Name,
	})
	if err == nil {
		err = s.queue.Submit(ctx, job)
	}
	if err != nil {
		log.Error("failed to enqueue upload job", zap.Error(err))
		// the request may already be cancelled; compensation must still run
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		s.discardStaged(cctx, log, stagedKey)
		if uerr := s.repo.UpdateByCode(cctx, product.Code, failedUpdate()); uerr != nil {
			log.Error("failed to mark product failed after enqueue error", zap.Error(uerr))
		}
		s.invalidate(cctx)
		return nil, apperrors.UploadFailure(fmt.Errorf("enqueue upload job: %w", err))
	}

	s.invalidate(ctx)
	if s.metrics != nil {
		_ = s.metrics.RecordCount(ctx, awspkg.MetricUploadsSubmitted, nil)
	}
	log.Info("product upload submitted", zap.String("job_id", job.ID), zap.String("product_id", product.ID.String()))
	return product, nil
}

// ListProducts returns one page of live products.
func (s *ProductService) ListProducts(ctx context.Context, params ListParams) (*ProductPage, error) {
	page, perPage := normalizePage(params.Page, params.PerPage)

	total, err := s.repo.Count(ctx, repository.ProductFilter{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	products, err := s.repo.List(ctx, repository.ProductFilter{}, perPage, (page-1)*perPage)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &ProductPage{Products: products, Total: total, Page: page, PerPage: perPage}, nil
}

// GetProduct returns a live product. Soft-deleted products are not found.
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

// UpdateProduct rewrites the text fields and optionally the soft-delete
// flag. Image and upload status are left alone.
func (s *ProductService) UpdateProduct(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.Product, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	verr := apperrors.NewValidationError()
	valid := s.validator.ValidateForm(req.ProductForm, verr)
	if verr.Empty() && valid.Code != current.Code {
		if current.Status == models.StatusPending {
			// the upload job locates the product by its code
			verr.Add("code", "The code cannot be changed while the image upload is pending.")
		} else {
			s.checkCodeFree(ctx, valid.Code, id, verr)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		repository.ColCode:        valid.Code,
		repository.ColName:        valid.Name,
		repository.ColDescription: valid.Description,
		repository.ColStock:       valid.Stock,
		repository.ColPrice:       valid.Price,
		repository.ColCategory:    valid.Category,
	}
	if req.IsDeleted != nil {
		updates[repository.ColIsDeleted] = *req.IsDeleted
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			verr.Add("code", "The code has already been taken.")
			return nil, verr
		}
		return nil, s.repoError(err)
	}
	s.invalidate(ctx)
	return s.find(ctx, id)
}

// DestroyProduct soft-deletes a product. Deleting twice is not an error.
func (s *ProductService) DestroyProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.setDeleted(ctx, id, true)
}

// RestoreProduct clears the soft-delete flag. Restoring a live product is
// not an error.
func (s *ProductService) RestoreProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.setDeleted(ctx, id, false)
}

func (s *ProductService) setDeleted(ctx context.Context, id uuid.UUID, deleted bool) (*models.Product, error) {
	if err := s.repo.SetDeleted(ctx, id, deleted); err != nil {
		return nil, s.repoError(err)
	}
	s.invalidate(ctx)
	logger.FromContext(ctx).Info("product soft-delete flag changed",
		zap.String("product_id", id.String()), zap.Bool("is_deleted", deleted))
	return s.find(ctx, id)
}

func (s *ProductService) find(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError(err)
	}
	return p, nil
}

func (s *ProductService) checkCodeFree(ctx context.Context, code string, self uuid.UUID, verr *apperrors.ValidationError) {
	existing, err := s.repo.FindByCode(ctx, code)
	if err == nil && existing.ID != self {
		verr.Add("code", "The code has already been taken.")
	}
}

// cleanupContext detaches compensation from the caller's cancellation.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func (s *ProductService) discardStaged(ctx context.Context, log *zap.Logger, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		log.Error("failed to delete staged file", zap.Error(err))
	}
}

func (s *ProductService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate product cache", zap.Error(err))
	}
}

func (s *ProductService) repoError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.Wrap(apperrors.ErrNotFound, err)
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// failedUpdate is the terminal failure write: no image, no marker.
func failedUpdate() map[string]interface{} {
	var none *string
	return map[string]interface{}{
		repository.ColStatus:       models.StatusFailed,
		repository.ColImage:        none,
		repository.ColUploadTarget: none,
	}
}
