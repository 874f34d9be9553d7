package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
)

const defaultMaxAttempts = 10

// Submission outcomes reported to the metrics recorder.
const (
	OutcomeCreated         = "created"
	OutcomeInvalidURL      = "invalid_url"
	OutcomePaymentRejected = "payment_rejected"
	OutcomeExhausted       = "exhausted"
	OutcomeError           = "error"
)

type urlRepository interface {
	Exists(ctx context.Context, shortCode string) (bool, error)
	Save(ctx context.Context, shortCode, originalURL string, payment entity.Payment, expiresAt *time.Time) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error)
	Deactivate(ctx context.Context, shortCode string) error
}

type urlValidator interface {
	Validate(raw string) (string, error)
}

type claimVerifier interface {
	Verify(claim *entity.PaymentClaim) (*entity.VerifiedClaim, error)
}

type codeGenerator interface {
	Generate() (string, error)
	IsValid(code string) bool
}

type metricsRecorder interface {
	SubmissionCompleted(outcome string)
	CodeCollision()
}

type noopMetrics struct{}

func (noopMetrics) SubmissionCompleted(string) {}
func (noopMetrics) CodeCollision()             {}

type Option func(*URLUseCase)

// WithMaxAttempts sets how many candidate codes a submission may try.
func WithMaxAttempts(n int) Option {
	return func(uc *URLUseCase) {
		if n > 0 {
			uc.maxAttempts = n
		}
	}
}

// WithTTL makes new URLs expire ttl after creation. Zero disables expiration.
func WithTTL(ttl time.Duration) Option {
	return func(uc *URLUseCase) {
		uc.ttl = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(uc *URLUseCase) {
		uc.logger = logger
	}
}

func WithMetrics(m metricsRecorder) Option {
	return func(uc *URLUseCase) {
		uc.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *URLUseCase) {
		uc.now = now
	}
}

// URLUseCase coordinates URL submissions and lookups. It keeps no per-request
// state; uniqueness of short codes is enforced by the repository.
type URLUseCase struct {
	urlRepo     urlRepository
	validator   urlValidator
	verifier    claimVerifier
	generator   codeGenerator
	maxAttempts int
	ttl         time.Duration
	logger      *slog.Logger
	metrics     metricsRecorder
	now         func() time.Time
}

func New(
	urlRepo urlRepository,
	validator urlValidator,
	verifier claimVerifier,
	generator codeGenerator,
	opts ...Option,
) *URLUseCase {
	uc := &URLUseCase{
		urlRepo:     urlRepo,
		validator:   validator,
		verifier:    verifier,
		generator:   generator,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     noopMetrics{},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// ShortenURL validates rawURL, verifies claim and persists the URL under a
// fresh short code. Validation and payment rejections are returned as
// *entity.ValidationError and *entity.PaymentError before storage is touched.
func (uc *URLUseCase) ShortenURL(ctx context.Context, rawURL string, claim *entity.PaymentClaim) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	originalURL, err := uc.validator.Validate(rawURL)
	if err != nil {
		uc.metrics.SubmissionCompleted(OutcomeInvalidURL)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claim == nil {
		uc.metrics.SubmissionCompleted(OutcomePaymentRejected)
		return nil, fmt.Errorf("%s: %w", op, entity.NewPaymentError(entity.ReasonPaymentRequired, "payment is required to shorten a url"))
	}

	verified, err := uc.verifier.Verify(claim)
	if err != nil {
		uc.metrics.SubmissionCompleted(OutcomePaymentRejected)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var expiresAt *time.Time
	if uc.ttl > 0 {
		t := uc.now().Add(uc.ttl)
		expiresAt = &t
	}

	url, err := uc.persist(ctx, originalURL, verified.Payment(), expiresAt)
	if err != nil {
		var pErr *entity.PaymentError

		switch {
		case errors.As(err, &pErr):
			uc.metrics.SubmissionCompleted(OutcomePaymentRejected)
		case errors.Is(err, entity.ErrCodeGenerationExhausted):
			uc.logger.Warn("short code generation exhausted", slog.Int("attempts", uc.maxAttempts))
			uc.metrics.SubmissionCompleted(OutcomeExhausted)
		default:
			uc.metrics.SubmissionCompleted(OutcomeError)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uc.metrics.SubmissionCompleted(OutcomeCreated)

	return url, nil
}

func (uc *URLUseCase) persist(ctx context.Context, originalURL string, payment entity.Payment, expiresAt *time.Time) (*entity.URL, error) {
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shortCode, err := uc.generator.Generate()
		if err != nil {
			return nil, err
		}

		exists, err := uc.urlRepo.Exists(ctx, shortCode)
		if err != nil {
			return nil, fmt.Errorf("failed to check short code: %w", err)
		}
		if exists {
			uc.collision(shortCode, attempt)
			continue
		}

		url, err := uc.urlRepo.Save(ctx, shortCode, originalURL, payment, expiresAt)
		if err != nil {
			if errors.Is(err, entity.ErrShortCodeExists) {
				uc.collision(shortCode, attempt)
				continue
			}
			if errors.Is(err, entity.ErrPaymentAlreadyUsed) {
				return nil, entity.NewPaymentError(entity.ReasonPaymentAlreadyUsed, "payment has already been used for another url")
			}

			return nil, fmt.Errorf("failed to save url: %w", err)
		}

		return url, nil
	}

	return nil, entity.ErrCodeGenerationExhausted
}

func (uc *URLUseCase) collision(shortCode string, attempt int) {
	uc.metrics.CodeCollision()
	uc.logger.Debug("short code collision",
		slog.String("short_code", shortCode),
		slog.Int("attempt", attempt),
	)
}

// ResolveShortCode returns the active URL for shortCode and records the access.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	if !uc.generator.IsValid(shortCode) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url, err := uc.urlRepo.RetrieveAndUpdateStats(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	return url, nil
}

func (uc *URLUseCase) DeactivateURL(ctx context.Context, shortCode string) error {
	const op = "usecase.URLUseCase.DeactivateURL"

	if !uc.generator.IsValid(shortCode) {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	err := uc.urlRepo.Deactivate(ctx, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to deactivate url: %w", op, err)
	}

	return nil
}

func (uc *URLUseCase) GetURLStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLStats"

	if !uc.generator.IsValid(shortCode) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url, err := uc.urlRepo.RetrieveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}
