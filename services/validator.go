package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"reflect"
	"strconv"
	"strings"

	apperrors "catalog-service/common/errors"
	"catalog-service/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultMaxImageBytes is the upload size limit (2 MiB).
const DefaultMaxImageBytes int64 = 2 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ValidProduct is a ProductForm that passed validation.
type ValidProduct struct {
	Code        string
	Name        string
	Description string
	Stock       int
	Price       decimal.Decimal
	Category    string
}

// ProductValidator checks product submissions. Nothing is written while
// validating.
type ProductValidator struct {
	validate      *validator.Validate
	categories    *models.Categories
	maxImageBytes int64
}

func NewProductValidator(categories *models.Categories, maxImageBytes int64) *ProductValidator {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := strings.Split(f.Tag.Get("form"), ",")[0]; name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return categories.Allowed(fl.Field().String())
	})
	return &ProductValidator{validate: v, categories: categories, maxImageBytes: maxImageBytes}
}

// ValidateForm checks the text fields and converts them. Field errors are
// added to verr; the returned product is only meaningful when verr is empty.
func (pv *ProductValidator) ValidateForm(form ProductForm, verr *apperrors.ValidationError) ValidProduct {
	form = trimForm(form)

	if err := pv.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.Add(fe.Field(), fieldMessage(fe))
			}
		} else {
			verr.Add("form", err.Error())
		}
	}

	out := ValidProduct{
		Code:        form.Code,
		Name:        form.Name,
		Description: form.Description,
		Category:    strings.ToLower(form.Category),
	}
	if _, failed := verr.Fields["stock"]; !failed {
		stock, err := strconv.Atoi(form.Stock)
		if err != nil || stock < 0 {
			verr.Add("stock", "The stock field must be a non-negative integer.")
		}
		out.Stock = stock
	}
	if _, failed := verr.Fields["price"]; !failed {
		price, err := decimal.NewFromString(form.Price)
		switch {
		case err != nil:
			verr.Add("price", "The price field must be a number.")
		case price.IsNegative():
			verr.Add("price", "The price field must be at least 0.")
		}
		out.Price = price
	}
	return out
}

// ValidateImage checks presence, size, sniffed type and decodability.
func (pv *ProductValidator) ValidateImage(file *UploadedFile, verr *apperrors.ValidationError) {
	if file == nil || len(file.Data) == 0 {
		verr.Add("image", "The image field is required.")
		return
	}
	if int64(len(file.Data)) > pv.maxImageBytes {
		verr.Add("image", fmt.Sprintf("The image field must not be greater than %d kilobytes.", pv.maxImageBytes/1024))
		return
	}
	mt := mimetype.Detect(file.Data)
	if !allowedImageTypes[mt.String()] {
		verr.Add("image", "The image field must be a file of type: jpeg, jpg, png.")
		return
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(file.Data)); err != nil {
		verr.Add("image", "The image field must be an image.")
	}
}

func trimForm(f ProductForm) ProductForm {
	f.Code = strings.TrimSpace(f.Code)
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Stock = strings.TrimSpace(f.Stock)
	f.Price = strings.TrimSpace(f.Price)
	f.Category = strings.TrimSpace(f.Category)
	return f
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "number":
		return fmt.Sprintf("The %s field must be a non-negative integer.", fe.Field())
	case "numeric":
		return fmt.Sprintf("The %s field must be a number.", fe.Field())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", fe.Field(), fe.Param())
	case "category":
		return fmt.Sprintf("The selected %s is invalid.", fe.Field())
	default:
		return fmt.Sprintf("The %s field is invalid.", fe.Field())
	}
}
