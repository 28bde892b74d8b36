package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "catalog-service/common/errors"
	"catalog-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MaxPageNumber caps the page query parameter.
const MaxPageNumber = 1000000

const maxFormMemory = 8 << 20

var productFormKeys = []string{"code", "name", "description", "stock", "price", "category"}

// ErrInvalidID is returned for a path id that is not a UUID.
var ErrInvalidID = errors.New("invalid product id")

// RequestValidator reads and pre-checks request input. Business validation
// stays in the services package.
type RequestValidator struct {
	maxImageBytes int64
}

func NewRequestValidator(maxImageBytes int64) *RequestValidator {
	if maxImageBytes <= 0 {
		maxImageBytes = services.DefaultMaxImageBytes
	}
	return &RequestValidator{maxImageBytes: maxImageBytes}
}

// ParsePagination reads page and perPage. Out of range values are clamped
// by the service, malformed ones are rejected here.
func (rv *RequestValidator) ParsePagination(c *gin.Context) (int, int, error) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 0, 0, errors.New("invalid page number")
	}
	if page > MaxPageNumber {
		page = MaxPageNumber
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("perPage", strconv.Itoa(services.DefaultPerPage)))
	if err != nil || perPage < 1 {
		return 0, 0, errors.New("invalid page size")
	}
	return page, perPage, nil
}

// ParseID reads the :id path parameter.
func (rv *RequestValidator) ParseID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// Fields reads a flat set of scalar fields from a JSON body or from a
// urlencoded/multipart form.
func (rv *RequestValidator) Fields(c *gin.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))

	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return out, nil
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		for _, k := range keys {
			if v, ok := raw[k]; ok && v != nil {
				out[k] = scalarString(v)
			}
		}
		return out, nil
	}

	if strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
	}
	for _, k := range keys {
		if v, ok := c.GetPostForm(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// ProductForm builds the text part of a product request.
func (rv *RequestValidator) ProductForm(fields map[string]string) services.ProductForm {
	return services.ProductForm{
		Code:        fields["code"],
		Name:        fields["name"],
		Description: fields["description"],
		Stock:       fields["stock"],
		Price:       fields["price"],
		Category:    fields["category"],
	}
}

// UpdateRequest builds an update request, including the optional
// is_deleted toggle.
func (rv *RequestValidator) UpdateRequest(c *gin.Context) (services.UpdateRequest, error) {
	fields, err := rv.Fields(c, append(productFormKeys, "is_deleted")...)
	if err != nil {
		return services.UpdateRequest{}, err
	}
	req := services.UpdateRequest{ProductForm: rv.ProductForm(fields)}
	if raw, ok := fields["is_deleted"]; ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			verr := apperrors.NewValidationError()
			verr.Add("is_deleted", "The is_deleted field must be true or false.")
			return services.UpdateRequest{}, verr
		}
		req.IsDeleted = &v
	}
	return req, nil
}

// Image reads the uploaded image, if any. The body is read up to one byte
// past the limit so that the size rule can reject it.
func (rv *RequestValidator) Image(c *gin.Context) (*services.UploadedFile, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("read image: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, rv.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &services.UploadedFile{Name: fh.Filename, Data: data}, nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
