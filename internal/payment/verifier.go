// Package payment verifies payment claims against the configured pricing policy.
//
// Claim authenticity (signatures, settlement) is established upstream by the
// payment protocol; this package only enforces policy bounds and identifier formats.
package payment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
)

var (
	txHashPattern       = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	payerAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Policy is the immutable pricing policy a claim must satisfy.
// Amounts are atomic units of Asset; both bounds are inclusive.
type Policy struct {
	Network    string
	Asset      string
	PayTo      string
	MinAmount  int64
	MaxAmount  int64
	MaxTimeout time.Duration
}

type Option func(*Verifier)

// WithClock sets the time source used to stamp verified claims.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

type Verifier struct {
	policy Policy
	now    func() time.Time
}

func NewVerifier(policy Policy, opts ...Option) *Verifier {
	v := &Verifier{
		policy: policy,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Policy returns the policy the verifier enforces.
func (v *Verifier) Policy() Policy {
	return v.policy
}

// Verify checks claim against the policy. A rejection is always an *entity.PaymentError.
func (v *Verifier) Verify(claim *entity.PaymentClaim) (*entity.VerifiedClaim, error) {
	if claim == nil {
		return nil, entity.NewPaymentError(entity.ReasonPaymentRequired, "payment claim is required")
	}

	if missing := missingFields(claim); len(missing) > 0 {
		return nil, entity.NewPaymentError(entity.ReasonMissingFields,
			fmt.Sprintf("payment claim is missing fields: %s", strings.Join(missing, ", ")))
	}

	if claim.Network != v.policy.Network {
		return nil, entity.NewPaymentError(entity.ReasonInvalidNetwork,
			fmt.Sprintf("network %q is not accepted, expected %q", claim.Network, v.policy.Network))
	}

	if !strings.EqualFold(claim.Asset, v.policy.Asset) {
		return nil, entity.NewPaymentError(entity.ReasonInvalidAsset,
			fmt.Sprintf("asset %q is not accepted", claim.Asset))
	}

	if claim.Amount < v.policy.MinAmount {
		return nil, entity.NewPaymentError(entity.ReasonAmountTooLow,
			fmt.Sprintf("amount %d is below the minimum of %d", claim.Amount, v.policy.MinAmount))
	}
	if claim.Amount > v.policy.MaxAmount {
		return nil, entity.NewPaymentError(entity.ReasonAmountTooHigh,
			fmt.Sprintf("amount %d is above the maximum of %d", claim.Amount, v.policy.MaxAmount))
	}

	if !txHashPattern.MatchString(claim.TxHash) {
		return nil, entity.NewPaymentError(entity.ReasonInvalidTxHash, "transaction hash must be 0x followed by 64 hex characters")
	}

	if !payerAddressPattern.MatchString(claim.PayerAddress) {
		return nil, entity.NewPaymentError(entity.ReasonInvalidPayerAddress, "payer address must be 0x followed by 40 hex characters")
	}

	now := v.now()

	if v.policy.MaxTimeout > 0 && !claim.ObservedAt.IsZero() && now.Sub(claim.ObservedAt) > v.policy.MaxTimeout {
		return nil, entity.NewPaymentError(entity.ReasonClaimExpired,
			fmt.Sprintf("payment claim is older than %s", v.policy.MaxTimeout))
	}

	return &entity.VerifiedClaim{
		PaymentClaim: *claim,
		VerifiedAt:   now,
	}, nil
}

// An amount of zero counts as absent.
func missingFields(claim *entity.PaymentClaim) []string {
	var missing []string

	if claim.TxHash == "" {
		missing = append(missing, "transaction_hash")
	}
	if claim.PayerAddress == "" {
		missing = append(missing, "payer")
	}
	if claim.Amount == 0 {
		missing = append(missing, "amount")
	}
	if claim.Asset == "" {
		missing = append(missing, "asset")
	}
	if claim.Network == "" {
		missing = append(missing, "network")
	}

	return missing
}
