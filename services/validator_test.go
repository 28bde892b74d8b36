package services

import (
	"bytes"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	apperrors "catalog-service/common/errors"
	"catalog-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func TestValidateForm(t *testing.T) {
	v := NewProductValidator(models.NewCategories(models.DefaultCategories...), 0)

	t.Run("valid input is trimmed and converted", func(t *testing.T) {
		verr := apperrors.NewValidationError()
		form := validForm(" P001 ")
		form.Category = "Laptop"
		form.Price = "15000000.50"

		got := v.ValidateForm(form, verr)

		assert.True(t, verr.Empty(), verr.Error())
		assert.Equal(t, "P001", got.Code)
		assert.Equal(t, 10, got.Stock)
		assert.Equal(t, "laptop", got.Category)
		assert.True(t, decimal.RequireFromString("15000000.5").Equal(got.Price))
	})

	t.Run("every field reported", func(t *testing.T) {
		verr := apperrors.NewValidationError()

		v.ValidateForm(ProductForm{Stock: "abc", Price: "x"}, verr)

		assert.Equal(t, "The code field is required.", verr.Fields["code"])
		assert.Equal(t, "The name field is required.", verr.Fields["name"])
		assert.Equal(t, "The description field is required.", verr.Fields["description"])
		assert.Equal(t, "The category field is required.", verr.Fields["category"])
		assert.Equal(t, "The stock field must be a non-negative integer.", verr.Fields["stock"])
		assert.Equal(t, "The price field must be a number.", verr.Fields["price"])
	})

	t.Run("limits", func(t *testing.T) {
		verr := apperrors.NewValidationError()
		form := validForm(strings.Repeat("C", 65))
		form.Price = "-1"

		v.ValidateForm(form, verr)

		assert.Equal(t, "The code field must not be greater than 64 characters.", verr.Fields["code"])
		assert.Equal(t, "The price field must be at least 0.", verr.Fields["price"])
	})

	t.Run("registered category", func(t *testing.T) {
		cats := models.NewCategories(models.DefaultCategories...)
		cats.Register("tablet")
		verr := apperrors.NewValidationError()
		form := validForm("P9")
		form.Category = "tablet"

		NewProductValidator(cats, 0).ValidateForm(form, verr)

		assert.True(t, verr.Empty())
	})
}

func TestValidateImage(t *testing.T) {
	v := NewProductValidator(models.NewCategories(models.DefaultCategories...), 1024)

	tests := []struct {
		name string
		file *UploadedFile
		want string
	}{
		{"png", &UploadedFile{Name: "a.png", Data: pngBytes(t)}, ""},
		{"jpeg", &UploadedFile{Name: "a.jpg", Data: jpegBytes(t)}, ""},
		{"missing", nil, "The image field is required."},
		{"empty", &UploadedFile{Name: "a.png"}, "The image field is required."},
		{"too large", &UploadedFile{Name: "a.png", Data: bytes.Repeat([]byte{0}, 2048)}, "The image field must not be greater than 1 kilobytes."},
		{"gif", &UploadedFile{Name: "a.gif", Data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")}, "The image field must be a file of type: jpeg, jpg, png."},
		{"truncated png", &UploadedFile{Name: "a.png", Data: pngBytes(t)[:20]}, "The image field must be an image."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := apperrors.NewValidationError()
			v.ValidateImage(tt.file, verr)
			assert.Equal(t, tt.want, verr.Fields["image"])
		})
	}
}
