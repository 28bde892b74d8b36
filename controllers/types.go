package controllers

import (
	"context"
	"time"

	"catalog-service/models"
	"catalog-service/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultContextTimeout bounds the service call made by one handler.
const DefaultContextTimeout = 30 * time.Second

// ProductServiceAPI defines the product operations the HTTP layer needs.
type ProductServiceAPI interface {
	SubmitUpload(ctx context.Context, form services.ProductForm, file *services.UploadedFile) (*models.Product, error)
	ListProducts(ctx context.Context, params services.ListParams) (*services.ProductPage, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, req services.UpdateRequest) (*models.Product, error)
	DestroyProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	RestoreProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// AuthServiceAPI defines the authentication operations the HTTP layer needs.
type AuthServiceAPI interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, claims *services.Claims) error
	CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ProductCache is the read cache consulted by ProductController.
type ProductCache interface {
	GetProduct(ctx context.Context, id string, dst interface{}) bool
	SetProduct(ctx context.Context, id string, value interface{})
	GetProductList(ctx context.Context, page, perPage int, dst interface{}) bool
	SetProductList(ctx context.Context, page, perPage int, value interface{})
}

// ProductResponse is the JSON shape of a product.
type ProductResponse struct {
	ID          uuid.UUID            `json:"id"`
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Stock       int                  `json:"stock"`
	Price       decimal.Decimal      `json:"price"`
	Category    string               `json:"category"`
	Image       *string              `json:"image"`
	ImageURL    *string              `json:"image_url"`
	Status      models.ProductStatus `json:"status"`
	IsDeleted   bool                 `json:"is_deleted"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func newProductResponse(p *models.Product, publicBase string) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Stock:       p.Stock,
		Price:       p.Price,
		Category:    p.Category,
		Image:       p.Image,
		ImageURL:    p.ImageURL(publicBase),
		Status:      p.Status,
		IsDeleted:   p.IsDeleted,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProductEnvelope wraps a single product.
type ProductEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    ProductResponse `json:"data"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ProductListEnvelope wraps one page of products.
type ProductListEnvelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    []ProductResponse `json:"data"`
	Meta    PageMeta          `json:"meta"`
}

func newProductListEnvelope(page *services.ProductPage, publicBase string) ProductListEnvelope {
	data := make([]ProductResponse, 0, len(page.Products))
	for _, p := range page.Products {
		data = append(data, newProductResponse(p, publicBase))
	}
	totalPages := int((page.Total + int64(page.PerPage) - 1) / int64(page.PerPage))
	return ProductListEnvelope{
		Success: true,
		Message: "List Data Product",
		Data:    data,
		Meta: PageMeta{
			Page:       page.Page,
			PerPage:    page.PerPage,
			Total:      page.Total,
			TotalPages: totalPages,
		},
	}
}

// UserResponse is the JSON shape of a user. The password hash never leaves
// the service.
type UserResponse struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
