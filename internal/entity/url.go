// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a paid shortened URL, the payment
// claim attached to a submission, and the error kinds the submission gate produces.
package entity

import "time"

// URL represents a shortened URL.
type URL struct {
	ID          int64      // ID is the unique identifier of the URL in the database.
	ShortCode   string     // ShortCode is the generated code used to shorten the original URL. Immutable.
	OriginalURL string     // OriginalURL is the canonical form of the submitted URL.
	Active      bool       // Active is false once the URL has been retired.
	Payment     Payment    // Payment holds the metadata of the claim that paid for the URL.
	URLStats               // URLStats contains statistics about the URL.
	ExpiresAt   *time.Time // ExpiresAt is nil when the URL never expires.
	CreatedAt   time.Time  // CreatedAt is the timestamp when the URL was created.
	UpdatedAt   time.Time  // UpdatedAt is the timestamp when the URL was last updated.
}

// URLStats contains statistics related to a shortened URL.
type URLStats struct {
	AccessCount int64 // AccessCount is the number of times the shortened URL has been accessed.
}

// Payment is the payment metadata persisted alongside a URL.
// Both fields are optional at the storage level.
type Payment struct {
	TxHash       string
	PayerAddress string
}

// Expired reports whether the URL has an expiration time that is not after now.
func (u *URL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && !u.ExpiresAt.After(now)
}
