package database

import (
	"context"
	"errors"
	"fmt"

	"catalog-service/models"
	"catalog-service/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SeedImage is the shared image name of seeded products.
const SeedImage = "placeholder.png"

type seedUser struct {
	name     string
	email    string
	password string
	role     models.Role
}

var seedUsers = []seedUser{
	{name: "Ihsan", email: "ihsan@gmail.com", password: "admin", role: models.RoleAdmin},
	{name: "Lukman", email: "lukman@gmail.com", password: "user", role: models.RoleUser},
}

type seedProduct struct {
	code, name, description, category string
	stock                             int
	price                             int64
	deleted                           bool
}

var seedProducts = []seedProduct{
	{code: "P001", name: "Asus ROG", description: "Gaming laptop", category: "laptop", stock: 10, price: 15000000},
	{code: "P002", name: "Lenovo ThinkPad", description: "Business laptop", category: "laptop", stock: 9, price: 12000000, deleted: true},
	{code: "P003", name: "iPhone 15", description: "Smartphone", category: "phone", stock: 20, price: 25000000},
}

// Seed inserts the demo users and products that do not exist yet. Users are
// matched by email and products by code, so running it twice is harmless.
func Seed(ctx context.Context, users repository.UserRepo, products repository.ProductRepo) error {
	for _, su := range seedUsers {
		_, err := users.FindByEmail(ctx, su.email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("seed user %s: %w", su.email, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(su.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u := &models.User{Name: su.name, Email: su.email, Password: string(hash), Role: su.role}
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", su.email, err)
		}
		zap.L().Info("seeded user", zap.String("email", su.email), zap.String("role", string(su.role)))
	}

	for _, sp := range seedProducts {
		_, err := products.FindByCode(ctx, sp.code)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("seed product %s: %w", sp.code, err)
		}
		img := SeedImage
		p := &models.Product{
			Code:        sp.code,
			Name:        sp.name,
			Description: sp.description,
			Stock:       sp.stock,
			Price:       decimal.NewFromInt(sp.price),
			Category:    sp.category,
			Image:       &img,
			Status:      models.StatusCompleted,
			IsDeleted:   sp.deleted,
		}
		if err := products.Create(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", sp.code, err)
		}
		zap.L().Info("seeded product", zap.String("code", sp.code))
	}
	return nil
}
