package repository

import (
	"context"
	"errors"
	"fmt"

	"catalog-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(ctx context.Context, product *models.Product) error {
	err := r.db.WithContext(ctx).Create(product).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateCode
	}
	return err
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProductRepository) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProductRepository) List(ctx context.Context, filter ProductFilter, limit, offset int) ([]*models.Product, error) {
	var products []*models.Product
	q := r.scoped(ctx, filter).Order("created_at ASC").Order("code ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *GormProductRepository) Count(ctx context.Context, filter ProductFilter) (int64, error) {
	var total int64
	if err := r.scoped(ctx, filter).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

func (r *GormProductRepository) UpdateByCode(ctx context.Context, code string, updates map[string]interface{}) error {
	return r.update(ctx, "code = ?", code, updates)
}

func (r *GormProductRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.update(ctx, "id = ?", id, updates)
}

func (r *GormProductRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool) error {
	return r.update(ctx, "id = ?", id, map[string]interface{}{ColIsDeleted: deleted})
}

func (r *GormProductRepository) FindPendingWithTarget(ctx context.Context) ([]*models.Product, error) {
	var products []*models.Product
	err := r.db.WithContext(ctx).
		Where("status = ? AND upload_target IS NOT NULL", models.StatusPending).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("find pending products: %w", err)
	}
	return products, nil
}

func (r *GormProductRepository) scoped(ctx context.Context, filter ProductFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if !filter.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return q
}

func (r *GormProductRepository) update(ctx context.Context, where string, key interface{}, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where(where, key).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
