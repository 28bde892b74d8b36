package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"catalog-service/models"
	"catalog-service/queue"
	"catalog-service/repository"
	"catalog-service/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.User{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func validForm(code string) ProductForm {
	return ProductForm{
		Code:        code,
		Name:        "Laptop " + code,
		Description: "A laptop",
		Stock:       "10",
		Price:       "15000000",
		Category:    "laptop",
	}
}

// recordingQueue keeps submitted jobs instead of running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Submit(ctx context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) submitted() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Job(nil), q.jobs...)
}

// faultyStore wraps a BlobStore and can fail individual operations.
type faultyStore struct {
	storage.BlobStore
	stageErr error
	moveErr  error
	moves    int
}

func (s *faultyStore) Stage(ctx context.Context, data []byte, name string) (string, error) {
	if s.stageErr != nil {
		return "", s.stageErr
	}
	return s.BlobStore.Stage(ctx, data, name)
}

func (s *faultyStore) Move(ctx context.Context, src, dst string) error {
	s.moves++
	if s.moveErr != nil {
		return s.moveErr
	}
	return s.BlobStore.Move(ctx, src, dst)
}

// Delete honours cancellation like a network store would.
func (s *faultyStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.BlobStore.Delete(ctx, key)
}

// cancellingRepo cancels the caller's context as soon as Create returns,
// like a client hanging up mid-request.
type cancellingRepo struct {
	repository.ProductRepo
	cancel    context.CancelFunc
	createErr error
}

func (r *cancellingRepo) Create(ctx context.Context, p *models.Product) error {
	defer r.cancel()
	if r.createErr != nil {
		return r.createErr
	}
	return r.ProductRepo.Create(ctx, p)
}

// faultyRepo fails UpdateByCode calls that set the given status.
type faultyRepo struct {
	repository.ProductRepo
	failStatus models.ProductStatus
	failures   int
}

func (r *faultyRepo) UpdateByCode(ctx context.Context, code string, updates map[string]interface{}) error {
	if status, ok := updates[repository.ColStatus]; ok && status == r.failStatus && r.failures > 0 {
		r.failures--
		return errors.New("database unavailable")
	}
	return r.ProductRepo.UpdateByCode(ctx, code, updates)
}

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *recordingMetrics) RecordCount(ctx context.Context, name string, dims map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name]++
	return nil
}

func (m *recordingMetrics) RecordLatency(ctx context.Context, name string, d time.Duration, dims map[string]string) error {
	return nil
}

func (m *recordingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []UploadEvent
}

func (p *recordingPublisher) PublishUploadOutcome(ctx context.Context, ev UploadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}
