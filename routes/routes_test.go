package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"catalog-service/cache"
	commonmw "catalog-service/common/middleware"
	"catalog-service/controllers"
	"catalog-service/database"
	"catalog-service/models"
	"catalog-service/queue"
	"catalog-service/repository"
	"catalog-service/services"
	"catalog-service/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const publicBase = "http://catalog.test"

type app struct {
	router *gin.Engine
	store  *storage.LocalStore
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(database.Options{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "app.db")})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.Migrate(db))

	users := repository.NewGormUserRepository(db)
	products := repository.NewGormProductRepository(db)
	require.NoError(t, database.Seed(context.Background(), users, products))

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	readCache := cache.NewCacheManager(nil, 0)
	job := services.NewUploadJob(products, store, nil, readCache, nil)
	dispatcher := queue.NewDispatcher()
	dispatcher.Register(services.UploadJobType, job.Handle)
	mq := queue.NewMemoryQueue(dispatcher, queue.Policy{MaxAttempts: 1}, 1, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mq.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	validator := services.NewProductValidator(models.NewCategories(models.DefaultCategories...), 0)
	productSvc := services.NewProductService(products, store, mq, validator, readCache, nil)
	tokens, err := services.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	authSvc := services.NewAuthService(users, tokens, services.NewMemoryRevocationList())

	rv := controllers.NewRequestValidator(0)
	r := gin.New()
	RegisterRoutes(r, Deps{
		Products:      controllers.NewProductController(productSvc, readCache, rv, publicBase),
		Auth:          controllers.NewAuthController(authSvc, rv),
		Authenticator: authSvc,
		LoginLimiter:  commonmw.NewRateLimiter(rate.Limit(100), 100, time.Minute),
		Store:         store,
	})
	return &app{router: r, store: store}
}

func (a *app) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *app) login(t *testing.T, email, password string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"`+email+`","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := a.do(t, req, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func uploadRequest(t *testing.T, code string, fields map[string]string) *http.Request {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, jpeg.Encode(&img, image.NewRGBA(image.Rect(0, 0, 64, 64)), nil))

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	base := map[string]string{
		"code":        code,
		"name":        "Laptop " + code,
		"description": "A laptop",
		"stock":       "5",
		"price":       "1000",
		"category":    "laptop",
	}
	for k, v := range fields {
		if v == "" {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	for k, v := range base {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("image", "product.jpg")
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadPipelineOverHTTP(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "ihsan@gmail.com", "admin")

	w := a.do(t, uploadRequest(t, "P100", nil), admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created controllers.ProductEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.StatusPending, created.Data.Status)
	assert.Nil(t, created.Data.ImageURL)

	var shown controllers.ProductEnvelope
	require.Eventually(t, func() bool {
		w := a.do(t, httptest.NewRequest(http.MethodGet, "/api/products/"+created.Data.ID.String(), nil), admin)
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &shown) != nil {
			return false
		}
		return shown.Data.Status == models.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	require.NotNil(t, shown.Data.Image)
	require.NotNil(t, shown.Data.ImageURL)
	assert.True(t, strings.HasSuffix(*shown.Data.Image, "_product.jpg"))
	assert.Equal(t, publicBase+"/storage/product/"+*shown.Data.Image, *shown.Data.ImageURL)

	imgPath := strings.TrimPrefix(*shown.Data.ImageURL, publicBase)
	w = a.do(t, httptest.NewRequest(http.MethodGet, imgPath, nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMissingStockIsRejected(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "ihsan@gmail.com", "admin")

	w := a.do(t, uploadRequest(t, "P150", map[string]string{"stock": ""}), admin)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"stock"`)

	w = a.do(t, httptest.NewRequest(http.MethodGet, "/api/products?perPage=100", nil), admin)
	assert.NotContains(t, w.Body.String(), "P150")
}

func TestRoleChecks(t *testing.T) {
	a := newApp(t)
	user := a.login(t, "lukman@gmail.com", "user")

	w := a.do(t, httptest.NewRequest(http.MethodGet, "/api/products", nil), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, httptest.NewRequest(http.MethodGet, "/api/products", nil), user)
	require.Equal(t, http.StatusOK, w.Code)
	var list controllers.ProductListEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(2), list.Meta.Total, "seeded P002 is soft-deleted")

	w = a.do(t, uploadRequest(t, "P101", nil), user)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newApp(t)
	token := a.login(t, "lukman@gmail.com", "user")

	w := a.do(t, httptest.NewRequest(http.MethodGet, "/api/user", nil), token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lukman@gmail.com")

	w = a.do(t, httptest.NewRequest(http.MethodPost, "/api/logout", nil), token)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, httptest.NewRequest(http.MethodGet, "/api/user", nil), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSoftDeleteAndRestoreOverHTTP(t *testing.T) {
	a := newApp(t)
	admin := a.login(t, "ihsan@gmail.com", "admin")

	w := a.do(t, httptest.NewRequest(http.MethodGet, "/api/products", nil), admin)
	var list controllers.ProductListEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.NotEmpty(t, list.Data)
	id := list.Data[0].ID.String()

	for i := 0; i < 2; i++ {
		w = a.do(t, httptest.NewRequest(http.MethodDelete, "/api/products/"+id, nil), admin)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w = a.do(t, httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil), admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, httptest.NewRequest(http.MethodPut, "/api/products/"+id+"/restore", nil), admin)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil), admin)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	w := a.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
}
