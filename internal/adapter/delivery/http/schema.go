package http

import (
	"time"

	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
	"github.com/vadimbarashkov/paid-url-shortener/internal/payment"
	"github.com/vadimbarashkov/paid-url-shortener/pkg/response"
)

// shortenRequest represents the structure for a request to shorten a URL.
// The URL itself is checked by the URL policy, not by struct tags.
type shortenRequest struct {
	OriginalURL string `json:"original_url" validate:"required"`
}

// urlResponse represents the structure for a response containing shortened URL information.
type urlResponse struct {
	ID              int64      `json:"id"`
	ShortCode       string     `json:"short_code"`
	ShortURL        string     `json:"short_url"`
	OriginalURL     string     `json:"original_url"`
	Active          bool       `json:"active"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	Payer           string     `json:"payer,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toURLResponse(url *entity.URL, baseURL string) urlResponse {
	return urlResponse{
		ID:              url.ID,
		ShortCode:       url.ShortCode,
		ShortURL:        baseURL + "/" + url.ShortCode,
		OriginalURL:     url.OriginalURL,
		Active:          url.Active,
		TransactionHash: url.Payment.TxHash,
		Payer:           url.Payment.PayerAddress,
		ExpiresAt:       url.ExpiresAt,
		CreatedAt:       url.CreatedAt,
		UpdatedAt:       url.UpdatedAt,
	}
}

// urlStatsResponse adds access statistics to urlResponse.
type urlStatsResponse struct {
	urlResponse
	Stats urlStats `json:"stats"`
}

type urlStats struct {
	AccessCount int64 `json:"access_count"`
}

func toURLStatsResponse(url *entity.URL, baseURL string) urlStatsResponse {
	return urlStatsResponse{
		urlResponse: toURLResponse(url, baseURL),
		Stats: urlStats{
			AccessCount: url.AccessCount,
		},
	}
}

// paymentRequirements tells a client how to build an acceptable claim.
type paymentRequirements struct {
	Header            string `json:"header"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	PayTo             string `json:"pay_to,omitempty"`
	MinAmount         int64  `json:"min_amount"`
	MaxAmount         int64  `json:"max_amount"`
	MaxTimeoutSeconds int64  `json:"max_timeout_seconds,omitempty"`
}

func toPaymentRequirements(p payment.Policy) paymentRequirements {
	return paymentRequirements{
		Header:            paymentHeader,
		Network:           p.Network,
		Asset:             p.Asset,
		PayTo:             p.PayTo,
		MinAmount:         p.MinAmount,
		MaxAmount:         p.MaxAmount,
		MaxTimeoutSeconds: int64(p.MaxTimeout / time.Second),
	}
}

// paymentErrorResponse is the 402 body.
type paymentErrorResponse struct {
	response.Response
	Accepts paymentRequirements `json:"accepts"`
}
