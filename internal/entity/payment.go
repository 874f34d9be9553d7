package entity

import "time"

// PaymentClaim is a caller-supplied assertion of a completed payment.
// Amount is expressed in atomic units of Asset.
type PaymentClaim struct {
	TxHash       string
	PayerAddress string
	Amount       int64
	Asset        string
	Network      string
	ObservedAt   time.Time
}

// VerifiedClaim is a PaymentClaim that passed policy verification.
type VerifiedClaim struct {
	PaymentClaim
	VerifiedAt time.Time
}

// Payment returns the subset of the claim persisted with a URL.
func (c *VerifiedClaim) Payment() Payment {
	return Payment{
		TxHash:       c.TxHash,
		PayerAddress: c.PayerAddress,
	}
}
