package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductStatus string

const (
	StatusPending   ProductStatus = "pending"
	StatusCompleted ProductStatus = "completed"
	StatusFailed    ProductStatus = "failed"
)

// Terminal reports whether no automatic transition leaves s.
func (s ProductStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImageDir is the blob prefix completed product images live under.
const ImageDir = "product"

// Product is a catalog entry. Image is set iff Status is completed.
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string          `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`
	Price       decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"price"`
	Category    string          `gorm:"size:64;index;not null" json:"category"`
	Image       *string         `json:"image"`
	Status      ProductStatus   `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	// UploadTarget is the destination the upload job is about to move the
	// staged file to. Cleared on every terminal update.
	UploadTarget *string   `json:"-"`
	IsDeleted    bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ImageURL derives the public URL of a completed product image, or nil.
func (p *Product) ImageURL(publicBase string) *string {
	if p.Status != StatusCompleted || p.Image == nil || *p.Image == "" {
		return nil
	}
	u := strings.TrimSuffix(publicBase, "/") + "/storage/" + ImageDir + "/" + *p.Image
	return &u
}

// ImageKey is the blob key of a stored image name.
func ImageKey(name string) string {
	return ImageDir + "/" + name
}
