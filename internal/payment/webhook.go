package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader  = "X-Gateway-Signature"
	DefaultTolerance = 5 * time.Minute
)

const (
	EventIntentSucceeded  = "payment_intent.succeeded"
	EventIntentProcessing = "payment_intent.processing"
	EventIntentFailed     = "payment_intent.payment_failed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is the webhook envelope. Only the intent id and status of the inner
// object matter to reconciliation; everything else is passed through untouched.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse webhook event: %w", err)
	}
	if event.Type == "" {
		return nil, errors.New("webhook event missing type")
	}
	return &event, nil
}

// Sign produces the signature header value for a payload: "t=<unix>,v1=<hex>"
// where the hex digest is HMAC-SHA256 over "<unix>.<payload>".
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the header against the payload. The timestamp must
// be within tolerance of now in either direction so replayed deliveries are
// rejected without penalizing minor clock skew.
func VerifySignature(payload []byte, header string, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var ts int64
	var signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = parsed
		case "v1":
			signature = value
		}
	}
	if ts == 0 || signature == "" {
		return ErrInvalidSignature
	}

	at := time.Unix(ts, 0)
	drift := now.Sub(at)
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return ErrInvalidSignature
	}

	expected := Sign(payload, secret, at)
	_, expectedSig, _ := strings.Cut(expected, ",v1=")
	if !hmac.Equal([]byte(expectedSig), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
