package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"catalog-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ProductRepositoryTestSuite struct {
	suite.Suite
	db    *gorm.DB
	repo  *GormProductRepository
	users *GormUserRepository
}

func (s *ProductRepositoryTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&models.Product{}, &models.User{}))

	s.db = db
	s.repo = NewGormProductRepository(db)
	s.users = NewGormUserRepository(db)
}

func (s *ProductRepositoryTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func TestProductRepository(t *testing.T) {
	suite.Run(t, new(ProductRepositoryTestSuite))
}

func newProduct(code string) *models.Product {
	return &models.Product{
		Code:        code,
		Name:        "Product " + code,
		Description: "desc",
		Stock:       5,
		Price:       decimal.RequireFromString("100.50"),
		Category:    "laptop",
		Status:      models.StatusPending,
	}
}

func (s *ProductRepositoryTestSuite) TestCreateAndFind() {
	ctx := context.Background()
	p := newProduct("P100")
	s.Require().NoError(s.repo.Create(ctx, p))
	s.NotEqual(uuid.Nil, p.ID)

	byCode, err := s.repo.FindByCode(ctx, "P100")
	s.Require().NoError(err)
	s.Equal(p.ID, byCode.ID)
	s.True(decimal.RequireFromString("100.5").Equal(byCode.Price))
	s.Nil(byCode.Image)
	s.Equal(models.StatusPending, byCode.Status)

	byID, err := s.repo.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("P100", byID.Code)
}

func (s *ProductRepositoryTestSuite) TestNotFound() {
	ctx := context.Background()
	_, err := s.repo.FindByCode(ctx, "missing")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.repo.FindByID(ctx, uuid.New())
	s.ErrorIs(err, ErrNotFound)

	err = s.repo.UpdateByCode(ctx, "missing", map[string]interface{}{ColStatus: models.StatusFailed})
	s.ErrorIs(err, ErrNotFound)
}

func (s *ProductRepositoryTestSuite) TestDuplicateCode() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, newProduct("DUP")))
	s.ErrorIs(s.repo.Create(ctx, newProduct("DUP")), ErrDuplicateCode)
}

func (s *ProductRepositoryTestSuite) TestUpdateByCodeSetsAndClears() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, newProduct("P1")))

	target := "123_a.jpg"
	s.Require().NoError(s.repo.UpdateByCode(ctx, "P1", map[string]interface{}{ColUploadTarget: &target}))
	pending, err := s.repo.FindPendingWithTarget(ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(target, *pending[0].UploadTarget)

	var clear *string
	s.Require().NoError(s.repo.UpdateByCode(ctx, "P1", map[string]interface{}{
		ColImage:        &target,
		ColStatus:       models.StatusCompleted,
		ColUploadTarget: clear,
	}))

	p, err := s.repo.FindByCode(ctx, "P1")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, p.Status)
	s.Require().NotNil(p.Image)
	s.Equal(target, *p.Image)
	s.Nil(p.UploadTarget)

	pending, err = s.repo.FindPendingWithTarget(ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *ProductRepositoryTestSuite) TestSetDeletedIsIdempotent() {
	ctx := context.Background()
	p := newProduct("P2")
	s.Require().NoError(s.repo.Create(ctx, p))

	s.Require().NoError(s.repo.SetDeleted(ctx, p.ID, true))
	s.Require().NoError(s.repo.SetDeleted(ctx, p.ID, true))

	got, err := s.repo.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.True(got.IsDeleted)

	s.Require().NoError(s.repo.SetDeleted(ctx, p.ID, false))
	got, err = s.repo.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.False(got.IsDeleted)
}

func (s *ProductRepositoryTestSuite) TestListHidesDeletedAndPaginates() {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, code := range []string{"A1", "A2", "A3", "A4"} {
		p := newProduct(code)
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.repo.Create(ctx, p))
		if code == "A2" {
			s.Require().NoError(s.repo.SetDeleted(ctx, p.ID, true))
		}
	}

	total, err := s.repo.Count(ctx, ProductFilter{})
	s.Require().NoError(err)
	s.EqualValues(3, total)

	all, err := s.repo.Count(ctx, ProductFilter{IncludeDeleted: true})
	s.Require().NoError(err)
	s.EqualValues(4, all)

	page, err := s.repo.List(ctx, ProductFilter{}, 2, 0)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal("A1", page[0].Code)
	s.Equal("A3", page[1].Code)

	page, err = s.repo.List(ctx, ProductFilter{}, 2, 2)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("A4", page[0].Code)
}

func (s *ProductRepositoryTestSuite) TestUsers() {
	ctx := context.Background()
	u := &models.User{Name: "Admin", Email: "admin@example.com", Password: "hash", Role: models.RoleAdmin}
	s.Require().NoError(s.users.Create(ctx, u))

	found, err := s.users.FindByEmail(ctx, "admin@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)
	s.Equal(models.RoleAdmin, found.Role)

	byID, err := s.users.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("Admin", byID.Name)

	_, err = s.users.FindByEmail(ctx, "nobody@example.com")
	s.ErrorIs(err, ErrNotFound)
}
