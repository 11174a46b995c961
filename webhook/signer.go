package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/oriys/novacore/canonjson"
)

// payload is the wire object receivers verify. Members and their
// canonical order fix the schema; receivers recompute the signature
// over the canonical bytes with signature omitted.
type payload struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	WebhookID string         `json:"webhookId"`
	UserID    string         `json:"userId"`
	Attempt   int            `json:"attempt"`
	Signature string         `json:"signature,omitempty"`
}

// SignedPayload builds the canonical payload for one delivery attempt
// and its detached signature. The attempt number is part of the signed
// bytes, so every retry carries a fresh signature.
func SignedPayload(secret string, deliveryID string, ev Event, webhookID string, attempt int) (body []byte, signature string, err error) {
	p := payload{
		ID:        deliveryID,
		Event:     ev.Type,
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
		WebhookID: webhookID,
		UserID:    ev.UserID,
		Attempt:   attempt,
	}
	unsigned, err := canonjson.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	signature = Sign(secret, unsigned)
	p.Signature = signature
	body, err = canonjson.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	return body, signature, nil
}

// Resign rebuilds an existing payload for a new attempt number. The
// attempt member changes, so the signature is recomputed from scratch.
func Resign(secret string, body []byte, attempt int) (newBody []byte, signature string, err error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, "", err
	}
	p.Attempt = attempt
	p.Signature = ""
	unsigned, err := canonjson.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	signature = Sign(secret, unsigned)
	p.Signature = signature
	newBody, err = canonjson.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	return newBody, signature, nil
}

// Sign is HMAC-SHA256 over the canonical bytes, lowercase hex.
func Sign(secret string, canonical []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature in constant time, the check
// a receiver performs.
func VerifySignature(secret string, canonical []byte, signature string) bool {
	want := Sign(secret, canonical)
	return hmac.Equal([]byte(want), []byte(signature))
}
