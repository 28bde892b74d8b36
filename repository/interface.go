package repository

import (
	"context"
	"errors"

	"catalog-service/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateCode is returned when a product code is already taken.
	ErrDuplicateCode = errors.New("product code already exists")
)

// Column names accepted in update maps. Both adapters use the same names.
const (
	ColCode         = "code"
	ColName         = "name"
	ColDescription  = "description"
	ColStock        = "stock"
	ColPrice        = "price"
	ColCategory     = "category"
	ColImage        = "image"
	ColStatus       = "status"
	ColUploadTarget = "upload_target"
	ColIsDeleted    = "is_deleted"
)

// ProductFilter narrows List and Count. The zero value lists live products.
type ProductFilter struct {
	IncludeDeleted bool
	Status         models.ProductStatus
}

// ProductRepo is the product store consumed by the services. Lookups return
// soft-deleted rows too; callers decide whether to hide them.
type ProductRepo interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByCode(ctx context.Context, code string) (*models.Product, error)
	List(ctx context.Context, filter ProductFilter, limit, offset int) ([]*models.Product, error)
	Count(ctx context.Context, filter ProductFilter) (int64, error)
	// UpdateByCode applies a partial update. A nil pointer value clears the column.
	UpdateByCode(ctx context.Context, code string, updates map[string]interface{}) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool) error
	// FindPendingWithTarget returns pending products carrying an upload marker.
	FindPendingWithTarget(ctx context.Context) ([]*models.Product, error)
}

// UserRepo is the user store used by authentication and seeding.
type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
