// Package domain defines the persistence models for the consistency backbone.
// This file declares the event vocabulary shared by the outbox writer, the
// relay, and the projector, plus the payload types carried on the wire.
package domain

import (
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event types published through the outbox. The relay uses the type as the
// transport topic.
const (
	EventRevenuePosted    = "revenue.posted"
	EventRevenueCorrected = "revenue.corrected"
)

// ErrInvalidPayload reports a payload that fails schema validation. The
// projector treats it as permanent: the event is logged and skipped, never
// retried as if it were transient.
var ErrInvalidPayload = errors.New("invalid event payload")

// EventDraft is an unstaged domain event produced by a business mutation.
// Drafts are turned into OutboxEvent rows by the outbox writer inside the
// mutation's transaction. EventID may be left empty, in which case a fresh
// UUID is assigned at staging time.
type EventDraft struct {
	EventType string
	EventID   string
	Payload   any
}

// RevenuePostedPayload is the payload for both revenue.posted and
// revenue.corrected events. Both carry the full ABSOLUTE values for the
// source transaction; the projector converts them into deltas against the
// fact row. Version is a per-source monotonic sequence (corrections carry a
// higher version than the posting they amend).
type RevenuePostedPayload struct {
	SourceID  string `json:"source_id"`
	AccountID string `json:"account_id"`
	Day       string `json:"day"` // YYYY-MM-DD
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Version   int64  `json:"version"`
}

// Validate checks the payload shape. A zero Amount is legal (fully refunded
// corrections); a missing dimension or non-positive version is not.
func (p RevenuePostedPayload) Validate() error {
	if strings.TrimSpace(p.SourceID) == "" {
		return errors.New("source_id is required")
	}
	if strings.TrimSpace(p.AccountID) == "" {
		return errors.New("account_id is required")
	}
	if _, err := time.Parse("2006-01-02", p.Day); err != nil {
		return errors.New("day must be YYYY-MM-DD")
	}
	if p.Version <= 0 {
		return errors.New("version must be positive")
	}
	return nil
}

// DecodeRevenuePayload parses and validates a revenue event payload.
// Malformed JSON and schema violations are both reported as
// ErrInvalidPayload so callers can classify them as permanent.
func DecodeRevenuePayload(raw []byte) (RevenuePostedPayload, error) {
	var p RevenuePostedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	return p, nil
}

// EncodePayload serializes an event payload for staging into the outbox.
func EncodePayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewEventID returns a fresh globally unique event identifier.
func NewEventID() string { return uuid.NewString() }
