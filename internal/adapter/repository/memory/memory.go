// Package memory provides an in-process URL repository. It enforces the same
// uniqueness rules as the postgres schema and is meant for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
)

type Option func(*URLRepository)

func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

type URLRepository struct {
	mu       sync.RWMutex
	byCode   map[string]*entity.URL
	byTxHash map[string]string
	nextID   int64
	now      func() time.Time
}

func NewURLRepository(opts ...Option) *URLRepository {
	r := &URLRepository{
		byCode:   make(map[string]*entity.URL),
		byTxHash: make(map[string]string),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *URLRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	const op = "adapter.repository.memory.URLRepository.Exists"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byCode[shortCode]

	return ok, nil
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string, payment entity.Payment, expiresAt *time.Time) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.Save"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byCode[shortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}
	if payment.TxHash != "" {
		if _, ok := r.byTxHash[payment.TxHash]; ok {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrPaymentAlreadyUsed)
		}
	}

	r.nextID++
	now := r.now()

	url := &entity.URL{
		ID:          r.nextID,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		Active:      true,
		Payment:     payment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if expiresAt != nil {
		t := *expiresAt
		url.ExpiresAt = &t
	}

	r.byCode[shortCode] = url
	if payment.TxHash != "" {
		r.byTxHash[payment.TxHash] = shortCode
	}

	return clone(url), nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.RetrieveByShortCode"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	url, ok := r.byCode[shortCode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return clone(url), nil
}

// RetrieveAndUpdateStats counts an access to an active, unexpired URL.
func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.RetrieveAndUpdateStats"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	url, ok := r.byCode[shortCode]
	if !ok || !url.Active || url.Expired(now) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url.AccessCount++
	url.UpdatedAt = now

	return clone(url), nil
}

func (r *URLRepository) Deactivate(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.memory.URLRepository.Deactivate"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	url, ok := r.byCode[shortCode]
	if !ok || !url.Active {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url.Active = false
	url.UpdatedAt = r.now()

	return nil
}

func clone(u *entity.URL) *entity.URL {
	c := *u
	if u.ExpiresAt != nil {
		t := *u.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
