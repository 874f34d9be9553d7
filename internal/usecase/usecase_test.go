package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
	"github.com/vadimbarashkov/paid-url-shortener/internal/payment"
	"github.com/vadimbarashkov/paid-url-shortener/internal/shortcode"
	"github.com/vadimbarashkov/paid-url-shortener/internal/urlpolicy"

	usecaseMock "github.com/vadimbarashkov/paid-url-shortener/mocks/usecase"
)

const (
	testNetwork = "base-sepolia"
	testAsset   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	testTxHash  = "0x8f0a4c0e5b7d2f3a9c1e6b4d8a2f7c3e9b1d5a6c8e0f2b4d6a8c0e2f4b6d8a0c"
	testPayer   = "0x1234567890abcdef1234567890abcdef12345678"
)

var testPayment = entity.Payment{TxHash: testTxHash, PayerAddress: testPayer}

// sequenceGenerator hands out codes in order and wraps around.
type sequenceGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
	err   error
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return "", g.err
	}

	code := g.codes[g.calls%len(g.codes)]
	g.calls++

	return code, nil
}

func (g *sequenceGenerator) IsValid(code string) bool {
	return shortcode.IsValid(code)
}

type recordingMetrics struct {
	mu         sync.Mutex
	outcomes   []string
	collisions int
}

func (m *recordingMetrics) SubmissionCompleted(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) CodeCollision() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collisions++
}

func testVerifier() *payment.Verifier {
	return payment.NewVerifier(payment.Policy{
		Network:   testNetwork,
		Asset:     testAsset,
		MinAmount: 1000,
		MaxAmount: 10000,
	})
}

func validClaim() *entity.PaymentClaim {
	return &entity.PaymentClaim{
		TxHash:       testTxHash,
		PayerAddress: testPayer,
		Amount:       5000,
		Asset:        testAsset,
		Network:      testNetwork,
	}
}

type URLUseCaseTestSuite struct {
	suite.Suite
	errUnknown  error
	urlRepoMock *usecaseMock.MockUrlRepository
	generator   *sequenceGenerator
	metrics     *recordingMetrics
	uc          *URLUseCase
}

func (suite *URLUseCaseTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
}

func (suite *URLUseCaseTestSuite) SetupSubTest() {
	suite.urlRepoMock = usecaseMock.NewMockUrlRepository(suite.T())
	suite.generator = &sequenceGenerator{
		codes: []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"},
	}
	suite.metrics = &recordingMetrics{}
	suite.uc = New(
		suite.urlRepoMock,
		urlpolicy.New(urlpolicy.DefaultPolicy()),
		testVerifier(),
		suite.generator,
		WithMetrics(suite.metrics),
	)
}

func (suite *URLUseCaseTestSuite) TearDownSubTest() {
	suite.urlRepoMock.AssertExpectations(suite.T())
}

func (suite *URLUseCaseTestSuite) TestShortenURL() {
	ctx := context.Background()

	suite.Run("unsafe protocol", func() {
		url, err := suite.uc.ShortenURL(ctx, "javascript:alert(1)", validClaim())

		var vErr *entity.ValidationError
		suite.ErrorAs(err, &vErr)
		suite.Equal(entity.ReasonUnsafeProtocol, vErr.Reason)
		suite.Nil(url)
		suite.Zero(suite.generator.calls)
		suite.Equal([]string{OutcomeInvalidURL}, suite.metrics.outcomes)
	})

	suite.Run("url is validated before payment", func() {
		url, err := suite.uc.ShortenURL(ctx, "http://localhost/", nil)

		var vErr *entity.ValidationError
		suite.ErrorAs(err, &vErr)
		suite.Equal(entity.ReasonBlockedHostname, vErr.Reason)
		suite.Nil(url)
	})

	suite.Run("payment required", func() {
		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", nil)

		var pErr *entity.PaymentError
		suite.ErrorAs(err, &pErr)
		suite.Equal(entity.ReasonPaymentRequired, pErr.Reason)
		suite.Nil(url)
		suite.Zero(suite.generator.calls)
		suite.Equal([]string{OutcomePaymentRejected}, suite.metrics.outcomes)
	})

	suite.Run("payment rejected", func() {
		claim := validClaim()
		claim.Amount = 999

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", claim)

		var pErr *entity.PaymentError
		suite.ErrorAs(err, &pErr)
		suite.Equal(entity.ReasonAmountTooLow, pErr.Reason)
		suite.Nil(url)
		suite.Zero(suite.generator.calls)
	})

	suite.Run("short code generation error", func() {
		suite.generator.err = suite.errUnknown

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
		suite.Equal([]string{OutcomeError}, suite.metrics.outcomes)
	})

	suite.Run("every candidate exists", func() {
		suite.urlRepoMock.
			On("Exists", ctx, mock.Anything).
			Times(defaultMaxAttempts).
			Return(true, nil)

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.ErrorIs(err, entity.ErrCodeGenerationExhausted)
		suite.Nil(url)
		suite.Equal(defaultMaxAttempts, suite.generator.calls)
		suite.Equal(defaultMaxAttempts, suite.metrics.collisions)
		suite.Equal([]string{OutcomeExhausted}, suite.metrics.outcomes)
		suite.urlRepoMock.AssertNotCalled(suite.T(), "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	suite.Run("every insert collides", func() {
		suite.urlRepoMock.
			On("Exists", ctx, mock.Anything).
			Times(defaultMaxAttempts).
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, mock.Anything, "https://example.com/page", testPayment, (*time.Time)(nil)).
			Times(defaultMaxAttempts).
			Return(nil, fmt.Errorf("repo: %w", entity.ErrShortCodeExists))

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.ErrorIs(err, entity.ErrCodeGenerationExhausted)
		suite.Nil(url)
	})

	suite.Run("existing candidate is skipped", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(true, nil)
		suite.urlRepoMock.
			On("Exists", ctx, "bbbbbbbb").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "bbbbbbbb", "https://example.com/page", testPayment, (*time.Time)(nil)).
			Once().
			Return(&entity.URL{
				ShortCode:   "bbbbbbbb",
				OriginalURL: "https://example.com/page",
				Active:      true,
				Payment:     testPayment,
			}, nil)

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.NoError(err)
		suite.Equal("bbbbbbbb", url.ShortCode)
		suite.Equal(1, suite.metrics.collisions)
	})

	suite.Run("insert race is retried with a fresh code", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "aaaaaaaa", "https://example.com/page", testPayment, (*time.Time)(nil)).
			Once().
			Return(nil, fmt.Errorf("repo: %w", entity.ErrShortCodeExists))
		suite.urlRepoMock.
			On("Exists", ctx, "bbbbbbbb").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "bbbbbbbb", "https://example.com/page", testPayment, (*time.Time)(nil)).
			Once().
			Return(&entity.URL{
				ShortCode:   "bbbbbbbb",
				OriginalURL: "https://example.com/page",
				Active:      true,
				Payment:     testPayment,
			}, nil)

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.NoError(err)
		suite.Equal("bbbbbbbb", url.ShortCode)
		suite.Equal(2, suite.generator.calls)
		suite.Equal([]string{OutcomeCreated}, suite.metrics.outcomes)
	})

	suite.Run("payment already used", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "aaaaaaaa", "https://example.com/page", testPayment, (*time.Time)(nil)).
			Once().
			Return(nil, fmt.Errorf("repo: %w", entity.ErrPaymentAlreadyUsed))

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		var pErr *entity.PaymentError
		suite.ErrorAs(err, &pErr)
		suite.Equal(entity.ReasonPaymentAlreadyUsed, pErr.Reason)
		suite.Nil(url)
		suite.Equal(1, suite.generator.calls)
		suite.Equal([]string{OutcomePaymentRejected}, suite.metrics.outcomes)
	})

	suite.Run("storage unavailable on existence check", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, fmt.Errorf("repo: %w", entity.ErrStorageUnavailable))

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.ErrorIs(err, entity.ErrStorageUnavailable)
		suite.Nil(url)
		suite.Equal(1, suite.generator.calls)
		suite.Equal([]string{OutcomeError}, suite.metrics.outcomes)
	})

	suite.Run("unknown error on save", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "aaaaaaaa", "https://example.com/page", testPayment, (*time.Time)(nil)).
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("canceled context", func() {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		url, err := suite.uc.ShortenURL(canceled, "https://example.com/page", validClaim())

		suite.ErrorIs(err, context.Canceled)
		suite.Nil(url)
		suite.Zero(suite.generator.calls)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "aaaaaaaa", "https://example.com/page", testPayment, (*time.Time)(nil)).
			Once().
			Return(&entity.URL{
				ShortCode:   "aaaaaaaa",
				OriginalURL: "https://example.com/page",
				Active:      true,
				Payment:     testPayment,
			}, nil)

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.NoError(err)
		suite.NotNil(url)
		suite.Len(url.ShortCode, shortcode.Length)
		suite.Equal("https://example.com/page", url.OriginalURL)
		suite.Equal(testTxHash, url.Payment.TxHash)
		suite.Zero(url.AccessCount)
	})

	suite.Run("normalized url is persisted", func() {
		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "aaaaaaaa", "https://example.com/", testPayment, (*time.Time)(nil)).
			Once().
			Return(&entity.URL{
				ShortCode:   "aaaaaaaa",
				OriginalURL: "https://example.com/",
			}, nil)

		url, err := suite.uc.ShortenURL(ctx, "  HTTPS://Example.com:443 ", validClaim())

		suite.NoError(err)
		suite.Equal("https://example.com/", url.OriginalURL)
	})

	suite.Run("expiration", func() {
		now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
		suite.uc = New(
			suite.urlRepoMock,
			urlpolicy.New(urlpolicy.DefaultPolicy()),
			testVerifier(),
			suite.generator,
			WithTTL(24*time.Hour),
			WithClock(func() time.Time { return now }),
		)

		wantExpiry := now.Add(24 * time.Hour)

		suite.urlRepoMock.
			On("Exists", ctx, "aaaaaaaa").
			Once().
			Return(false, nil)
		suite.urlRepoMock.
			On("Save", ctx, "aaaaaaaa", "https://example.com/page", testPayment,
				mock.MatchedBy(func(t *time.Time) bool { return t != nil && t.Equal(wantExpiry) })).
			Once().
			Return(&entity.URL{
				ShortCode:   "aaaaaaaa",
				OriginalURL: "https://example.com/page",
				ExpiresAt:   &wantExpiry,
			}, nil)

		url, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.NoError(err)
		suite.Equal(wantExpiry, *url.ExpiresAt)
	})
}

func (suite *URLUseCaseTestSuite) TestWithMaxAttempts() {
	ctx := context.Background()

	suite.Run("custom budget", func() {
		suite.uc = New(
			suite.urlRepoMock,
			urlpolicy.New(urlpolicy.DefaultPolicy()),
			testVerifier(),
			suite.generator,
			WithMaxAttempts(3),
		)

		suite.urlRepoMock.
			On("Exists", ctx, mock.Anything).
			Times(3).
			Return(true, nil)

		_, err := suite.uc.ShortenURL(ctx, "https://example.com/page", validClaim())

		suite.ErrorIs(err, entity.ErrCodeGenerationExhausted)
		suite.Equal(3, suite.generator.calls)
	})

	suite.Run("non-positive budget is ignored", func() {
		uc := New(suite.urlRepoMock, nil, nil, suite.generator, WithMaxAttempts(0))

		suite.Equal(defaultMaxAttempts, uc.maxAttempts)
	})
}

func (suite *URLUseCaseTestSuite) TestResolveShortCode() {
	ctx := context.Background()

	suite.Run("malformed short code", func() {
		url, err := suite.uc.ResolveShortCode(ctx, "abc-123")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("RetrieveAndUpdateStats", ctx, "abc12345").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.ResolveShortCode(ctx, "abc12345")

		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("RetrieveAndUpdateStats", ctx, "abc12345").
			Once().
			Return(&entity.URL{
				ShortCode:   "abc12345",
				OriginalURL: "https://example.com/",
				Active:      true,
				URLStats: entity.URLStats{
					AccessCount: 1,
				},
			}, nil)

		url, err := suite.uc.ResolveShortCode(ctx, "abc12345")

		suite.NoError(err)
		suite.Equal("abc12345", url.ShortCode)
		suite.Equal("https://example.com/", url.OriginalURL)
		suite.Equal(int64(1), url.AccessCount)
	})
}

func (suite *URLUseCaseTestSuite) TestDeactivateURL() {
	ctx := context.Background()

	suite.Run("malformed short code", func() {
		err := suite.uc.DeactivateURL(ctx, "abc")

		suite.ErrorIs(err, entity.ErrURLNotFound)
	})

	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("Deactivate", ctx, "abc12345").
			Once().
			Return(suite.errUnknown)

		err := suite.uc.DeactivateURL(ctx, "abc12345")

		suite.ErrorIs(err, suite.errUnknown)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("Deactivate", ctx, "abc12345").
			Once().
			Return(nil)

		err := suite.uc.DeactivateURL(ctx, "abc12345")

		suite.NoError(err)
	})
}

func (suite *URLUseCaseTestSuite) TestGetURLStats() {
	ctx := context.Background()

	suite.Run("malformed short code", func() {
		url, err := suite.uc.GetURLStats(ctx, "abcdefghi")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("RetrieveByShortCode", ctx, "abc12345").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.GetURLStats(ctx, "abc12345")

		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("RetrieveByShortCode", ctx, "abc12345").
			Once().
			Return(&entity.URL{
				ShortCode:   "abc12345",
				OriginalURL: "https://example.com/",
				URLStats: entity.URLStats{
					AccessCount: 7,
				},
			}, nil)

		url, err := suite.uc.GetURLStats(ctx, "abc12345")

		suite.NoError(err)
		suite.Equal(int64(7), url.AccessCount)
	})
}

func TestURLUseCase(t *testing.T) {
	suite.Run(t, new(URLUseCaseTestSuite))
}
