package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "catalog-service/common/errors"
	"catalog-service/models"
	"catalog-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductController serves the /api/products endpoints.
type ProductController struct {
	products   ProductServiceAPI
	cache      ProductCache
	validator  *RequestValidator
	publicBase string
	timeout    time.Duration
}

// NewProductController wires the controller. publicBase is the externally
// visible origin used to build image URLs.
func NewProductController(ps ProductServiceAPI, cache ProductCache, validator *RequestValidator, publicBase string) *ProductController {
	return &ProductController{
		products:   ps,
		cache:      cache,
		validator:  validator,
		publicBase: publicBase,
		timeout:    DefaultContextTimeout,
	}
}

// Index lists live products, one page at a time.
func (pc *ProductController) Index(c *gin.Context) {
	page, perPage, err := pc.validator.ParsePagination(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	var cached ProductListEnvelope
	if pc.cache.GetProductList(ctx, page, perPage, &cached) {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := pc.products.ListProducts(ctx, services.ListParams{Page: page, PerPage: perPage})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := newProductListEnvelope(result, pc.publicBase)
	pc.cache.SetProductList(ctx, page, perPage, resp)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, resp)
}

// Show returns one live product.
func (pc *ProductController) Show(c *gin.Context) {
	id, ok := pc.productID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	var cached ProductEnvelope
	if pc.cache.GetProduct(ctx, id.String(), &cached) {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	p, err := pc.products.GetProduct(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := ProductEnvelope{Success: true, Message: "Detail Data Product", Data: newProductResponse(p, pc.publicBase)}
	pc.cache.SetProduct(ctx, id.String(), resp)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, resp)
}

// Store accepts a multipart product submission and returns the pending
// product. The image is finalised in the background.
func (pc *ProductController) Store(c *gin.Context) {
	fields, err := pc.validator.Fields(c, productFormKeys...)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	file, err := pc.validator.Image(c)
	if err != nil {
		zap.L().Warn("failed to read uploaded image", zap.Error(err))
		badRequest(c, "Invalid multipart form")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	p, err := pc.products.SubmitUpload(ctx, pc.validator.ProductForm(fields), file)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ProductEnvelope{
		Success: true,
		Message: "Product upload in progress",
		Data:    newProductResponse(p, pc.publicBase),
	})
}

// Update rewrites the product's text fields.
func (pc *ProductController) Update(c *gin.Context) {
	id, ok := pc.productID(c)
	if !ok {
		return
	}
	req, err := pc.validator.UpdateRequest(c)
	if err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			respondError(c, err)
			return
		}
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	p, err := pc.products.UpdateProduct(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductEnvelope{Success: true, Message: "Product updated successfully", Data: newProductResponse(p, pc.publicBase)})
}

// Destroy soft-deletes a product.
func (pc *ProductController) Destroy(c *gin.Context) {
	pc.toggle(c, pc.products.DestroyProduct, "Product deleted successfully")
}

// Restore brings a soft-deleted product back.
func (pc *ProductController) Restore(c *gin.Context) {
	pc.toggle(c, pc.products.RestoreProduct, "Product restored successfully")
}

func (pc *ProductController) toggle(c *gin.Context, op func(context.Context, uuid.UUID) (*models.Product, error), msg string) {
	id, ok := pc.productID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	p, err := op(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductEnvelope{Success: true, Message: msg, Data: newProductResponse(p, pc.publicBase)})
}

// productID parses :id, answering 404 for anything that is not a UUID.
func (pc *ProductController) productID(c *gin.Context) (uuid.UUID, bool) {
	id, err := pc.validator.ParseID(c)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Product not found"})
		return uuid.Nil, false
	}
	return id, true
}
