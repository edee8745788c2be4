package protocol

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// schnorrSigLen is the fixed length, in bytes, of a BIP-340 Schnorr
// signature. Nostr events historically signed with ECDSA-DER, which is
// variable length and never exactly this size, so the byte length alone is
// enough to pick the verification path.
const schnorrSigLen = 64

// VerifySignature checks e.Sig against e.PubKey over the bytes of e.ID. It
// tries 64-byte Schnorr first; any other signature length falls back to
// ECDSA-DER, so events signed under either scheme verify correctly.
func VerifySignature(e *Event) (bool, error) {
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil || len(idBytes) != 32 {
		return false, fmt.Errorf("protocol: invalid event id: %s", e.ID)
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false, fmt.Errorf("protocol: invalid signature hex: %v", err)
	}

	pubKeyBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubKeyBytes) != 32 {
		return false, fmt.Errorf("protocol: invalid pubkey: %s", e.PubKey)
	}

	if len(sigBytes) == schnorrSigLen {
		return verifySchnorr(pubKeyBytes, idBytes, sigBytes)
	}
	return verifyECDSADER(pubKeyBytes, idBytes, sigBytes)
}

func verifySchnorr(pubKeyBytes, idBytes, sigBytes []byte) (bool, error) {
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("protocol: parse schnorr pubkey: %v", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("protocol: parse schnorr signature: %v", err)
	}
	return sig.Verify(idBytes, pubKey), nil
}

// verifyECDSADER verifies a DER-encoded ECDSA signature over idBytes. The
// pubkey arrives as a 32-byte x-only key (NIP-01 form); since the relay
// protocol never tells us the sign of y, both even and odd candidates are
// tried and the signature must verify against at least one.
func verifyECDSADER(pubKeyBytes, idBytes, sigBytes []byte) (bool, error) {
	sig, err := btcecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("protocol: parse DER signature: %v", err)
	}

	for _, prefix := range []byte{0x02, 0x03} {
		compressed := append([]byte{prefix}, pubKeyBytes...)
		pubKey, err := btcec.ParsePubKey(compressed)
		if err != nil {
			continue
		}
		if sig.Verify(idBytes, pubKey) {
			return true, nil
		}
	}
	return false, nil
}
