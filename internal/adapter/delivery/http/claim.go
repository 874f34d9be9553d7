package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
)

const paymentHeader = "X-PAYMENT"

// paymentClaimPayload is the JSON document carried base64-encoded in the X-PAYMENT header.
type paymentClaimPayload struct {
	TransactionHash string      `json:"transaction_hash"`
	Payer           string      `json:"payer"`
	Amount          json.Number `json:"amount"`
	Asset           string      `json:"asset"`
	Network         string      `json:"network"`
	Timestamp       string      `json:"timestamp"`
}

var claimEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// decodePaymentClaim turns the X-PAYMENT header value into a claim. An empty
// header yields no claim and no error. Any decoding failure is a MALFORMED_CLAIM
// payment error; field-level policy checks are left to the verifier.
func decodePaymentClaim(header string) (*entity.PaymentClaim, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	raw, ok := decodeBase64(header)
	if !ok {
		return nil, entity.NewPaymentError(entity.ReasonMalformedClaim, "payment header is not valid base64")
	}

	var payload paymentClaimPayload
	if err := render.DecodeJSON(bytes.NewReader(raw), &payload); err != nil {
		return nil, entity.NewPaymentError(entity.ReasonMalformedClaim, "payment header does not hold a valid claim document")
	}

	var amount int64
	if payload.Amount != "" {
		n, err := payload.Amount.Int64()
		if err != nil {
			return nil, entity.NewPaymentError(entity.ReasonMalformedClaim, "payment amount must be an integer in atomic units")
		}
		amount = n
	}

	var observedAt time.Time
	if payload.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			return nil, entity.NewPaymentError(entity.ReasonMalformedClaim, "payment timestamp must be RFC 3339")
		}
		observedAt = t
	}

	return &entity.PaymentClaim{
		TxHash:       payload.TransactionHash,
		PayerAddress: payload.Payer,
		Amount:       amount,
		Asset:        payload.Asset,
		Network:      payload.Network,
		ObservedAt:   observedAt,
	}, nil
}

func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range claimEncodings {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, true
		}
	}
	return nil, false
}
