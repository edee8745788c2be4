// Package identity provides hex/bech32 conversion for Nostr public keys.
//
// Internally every map and comparison in this module is keyed by lowercase
// hex; bech32 ("npub1...") is only a presentation form used at the API and
// persistence boundaries. See Normalize.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr/nip19"
)

// KeySize is the byte length of a Nostr public or private key.
const KeySize = 32

// ErrInvalidKey is returned when a hex or bech32 key fails to decode.
var ErrInvalidKey = errors.New("identity: invalid key")

// Decoded is the result of decoding a bech32 string.
type Decoded struct {
	HRP string
	Hex string
}

// ToBech32 encodes a 32-byte hex-encoded public key as an npub. hrp is kept
// in the signature for callers that want to assert intent, but only "npub"
// is supported; every caller in this module only ever mints public keys.
func ToBech32(hexKey string, hrp string) (string, error) {
	if hrp != "npub" {
		return "", fmt.Errorf("%w: unsupported bech32 prefix %q", ErrInvalidKey, hrp)
	}
	if _, err := decodeHex(hexKey); err != nil {
		return "", err
	}

	encoded, err := nip19.EncodePublicKey(strings.ToLower(hexKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return encoded, nil
}

// FromBech32 decodes a bech32 string and returns its human-readable prefix
// and the 32-byte payload as lowercase hex.
func FromBech32(s string) (*Decoded, error) {
	prefix, value, err := nip19.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	hexKey, ok := value.(string)
	if !ok || len(hexKey) != KeySize*2 {
		return nil, fmt.Errorf("%w: %q does not decode to a 32-byte key", ErrInvalidKey, s)
	}

	return &Decoded{HRP: prefix, Hex: strings.ToLower(hexKey)}, nil
}

// Normalize accepts either a 64-char hex string or a bech32 string (any HRP)
// and returns the canonical lowercase hex form. This is the only place the
// codec runs outside of the API/persistence boundary helpers that call it.
func Normalize(key string) (string, error) {
	key = strings.TrimSpace(key)

	if looksLikeHex(key) {
		raw, err := decodeHex(key)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}

	decoded, err := FromBech32(key)
	if err != nil {
		return "", err
	}
	return decoded.Hex, nil
}

func looksLikeHex(s string) bool {
	return len(s) == KeySize*2
}

func decodeHex(s string) ([]byte, error) {
	if len(s) != KeySize*2 {
		return nil, fmt.Errorf("%w: hex key is %d chars, want %d", ErrInvalidKey, len(s), KeySize*2)
	}
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return raw, nil
}
