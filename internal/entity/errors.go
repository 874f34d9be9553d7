package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrShortCodeExists is returned when attempting to create a URL with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrPaymentAlreadyUsed is returned when the transaction hash of a claim already backs another URL.
	ErrPaymentAlreadyUsed = errors.New("payment already used")
	// ErrURLNotFound is returned when a URL with the specified short code cannot be found.
	ErrURLNotFound = errors.New("url not found")
	// ErrCodeGenerationExhausted is returned when no free short code was found within the attempt budget.
	ErrCodeGenerationExhausted = errors.New("code generation exhausted")
	// ErrStorageUnavailable is returned when the storage cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Reason is a machine-readable rejection code.
type Reason string

// URL policy reasons.
const (
	ReasonURLEmpty        Reason = "URL_EMPTY"
	ReasonURLTooLong      Reason = "URL_TOO_LONG"
	ReasonInvalidFormat   Reason = "INVALID_FORMAT"
	ReasonInvalidProtocol Reason = "INVALID_PROTOCOL"
	ReasonUnsafeProtocol  Reason = "UNSAFE_PROTOCOL"
	ReasonBlockedHostname Reason = "BLOCKED_HOSTNAME"
	ReasonPrivateIP       Reason = "PRIVATE_IP"
	ReasonShortenerChain  Reason = "SHORTENER_CHAIN"
	ReasonPathTooLong     Reason = "PATH_TOO_LONG"
	ReasonQueryTooLong    Reason = "QUERY_TOO_LONG"
)

// Payment reasons.
const (
	ReasonPaymentRequired     Reason = "PAYMENT_REQUIRED"
	ReasonMalformedClaim      Reason = "MALFORMED_CLAIM"
	ReasonMissingFields       Reason = "MISSING_FIELDS"
	ReasonInvalidNetwork      Reason = "INVALID_NETWORK"
	ReasonInvalidAsset        Reason = "INVALID_ASSET"
	ReasonAmountTooLow        Reason = "AMOUNT_TOO_LOW"
	ReasonAmountTooHigh       Reason = "AMOUNT_TOO_HIGH"
	ReasonInvalidTxHash       Reason = "INVALID_TX_HASH"
	ReasonInvalidPayerAddress Reason = "INVALID_PAYER_ADDRESS"
	ReasonClaimExpired        Reason = "CLAIM_EXPIRED"
	ReasonPaymentAlreadyUsed  Reason = "PAYMENT_ALREADY_USED"
)

// ValidationError is returned when a submitted URL violates the URL policy.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("url rejected: %s: %s", e.Reason, e.Message)
}

// NewValidationError creates a ValidationError with the given reason and message.
func NewValidationError(reason Reason, msg string) *ValidationError {
	return &ValidationError{Reason: reason, Message: msg}
}

// PaymentError is returned when a payment claim is absent or violates the payment policy.
type PaymentError struct {
	Reason  Reason
	Message string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment rejected: %s: %s", e.Reason, e.Message)
}

// NewPaymentError creates a PaymentError with the given reason and message.
func NewPaymentError(reason Reason, msg string) *PaymentError {
	return &PaymentError{Reason: reason, Message: msg}
}
