// Package protocol implements Nostr event encoding, validation, and
// decoding: the wire-level layer between a relay connection and the index.
package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the semantic type of an event. This indexer only acts on
// KindProfile and KindContacts; everything else is read and ignored.
type Kind int

const (
	KindProfile  Kind = 0
	KindContacts Kind = 3
)

// Event is a signed Nostr event as received from a relay.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      Kind       `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ErrInvalidEvent wraps every validation failure in Validate.
var ErrInvalidEvent = errors.New("protocol: invalid event")

// InvalidEventError carries the specific reason an event failed validation.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("protocol: invalid event: %s", e.Reason)
}

func (e *InvalidEventError) Unwrap() error {
	return ErrInvalidEvent
}

func invalid(format string, args ...any) error {
	return &InvalidEventError{Reason: fmt.Sprintf(format, args...)}
}

// CanonicalID computes the NIP-01 event id: the lowercase hex SHA-256 of the
// compact JSON array [0, pubkey, created_at, kind, tags, content].
func CanonicalID(e *Event) (string, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized, err := json.Marshal([]any{0, e.PubKey, e.CreatedAt, int(e.Kind), tags, e.Content})
	if err != nil {
		return "", fmt.Errorf("protocol: canonical serialize: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

const (
	maxClockSkewPast   = 3600 * time.Second
	maxClockSkewFuture = 300 * time.Second
)

// Limits bounds event validation; values come from the indexer configuration.
type Limits struct {
	MaxEventSize int
}

// Validate checks an event against the wire size cap, the clock-skew window,
// canonical id re-derivation, and the signature, in that order. It returns
// nil on success and an *InvalidEventError otherwise.
func Validate(e *Event, limits Limits, now time.Time) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return invalid("cannot serialize event: %v", err)
	}
	if limits.MaxEventSize > 0 && len(raw) > limits.MaxEventSize {
		return invalid("event too large: %d bytes", len(raw))
	}

	created := time.Unix(e.CreatedAt, 0)
	if created.Before(now.Add(-maxClockSkewPast)) {
		return invalid("event too old: created_at=%d", e.CreatedAt)
	}
	if created.After(now.Add(maxClockSkewFuture)) {
		return invalid("event too far in the future: created_at=%d", e.CreatedAt)
	}

	want, err := CanonicalID(e)
	if err != nil {
		return invalid("cannot compute canonical id: %v", err)
	}
	if want != e.ID {
		return invalid("id mismatch: have %s want %s", e.ID, want)
	}

	ok, err := VerifySignature(e)
	if err != nil {
		return invalid("signature check failed: %v", err)
	}
	if !ok {
		return invalid("signature does not verify")
	}

	return nil
}
