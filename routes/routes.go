package routes

import (
	"net/http"
	"path/filepath"

	commonmw "catalog-service/common/middleware"
	"catalog-service/controllers"
	"catalog-service/middleware"
	"catalog-service/models"
	"catalog-service/storage"

	"github.com/gin-gonic/gin"
)

// Deps is everything the route table needs.
type Deps struct {
	Products      *controllers.ProductController
	Auth          *controllers.AuthController
	Authenticator middleware.Authenticator
	LoginLimiter  *commonmw.RateLimiter
	Store         storage.BlobStore
}

// RegisterRoutes mounts the whole HTTP surface on r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	api := r.Group("/api")
	RegisterAuthRoutes(api, d)
	RegisterProductRoutes(api, d)
	RegisterStorageRoutes(r, d.Store)
}

func RegisterAuthRoutes(api *gin.RouterGroup, d Deps) {
	login := []gin.HandlerFunc{d.Auth.Login}
	if d.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{commonmw.RateLimit(d.LoginLimiter)}, login...)
	}
	api.POST("/login", login...)

	authed := api.Group("", middleware.RequireAuth(d.Authenticator))
	{
		authed.POST("/logout", d.Auth.Logout)
		authed.GET("/user", d.Auth.User)
	}
}

func RegisterProductRoutes(api *gin.RouterGroup, d Deps) {
	products := api.Group("/products", middleware.RequireAuth(d.Authenticator))
	{
		read := middleware.RequireRole(models.RoleAdmin, models.RoleUser)
		products.GET("", read, d.Products.Index)
		products.GET("/:id", read, d.Products.Show)

		admin := middleware.RequireRole(models.RoleAdmin)
		products.POST("", admin, d.Products.Store)
		products.PUT("/:id", admin, d.Products.Update)
		products.DELETE("/:id", admin, d.Products.Destroy)
		products.PUT("/:id/restore", admin, d.Products.Restore)
	}
}

// RegisterStorageRoutes serves completed product images. Local files are
// served directly; remote stores answer with a redirect. Staged files are
// never exposed.
func RegisterStorageRoutes(r *gin.Engine, store storage.BlobStore) {
	switch s := store.(type) {
	case *storage.LocalStore:
		r.Static("/storage/"+models.ImageDir, filepath.Join(s.Root(), models.ImageDir))
	case interface{ URL(key string) string }:
		r.GET("/storage/"+models.ImageDir+"/:file", func(c *gin.Context) {
			name := storage.SanitizeName(c.Param("file"))
			c.Redirect(http.StatusFound, s.URL(models.ImageKey(name)))
		})
	}
}
