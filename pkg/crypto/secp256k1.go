package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize is the size of a recoverable signature seal: r || s || recid.
const SignatureSize = 65

// Offsets of the compact signature header byte used by the ecdsa package.
const (
	compactSigMagicOffset = 27
	compactSigCompPubKey  = 4
)

var (
	// ErrInvalidSignature is returned for seals that cannot be parsed as a
	// recoverable signature.
	ErrInvalidSignature = errors.New("invalid recoverable signature")

	// ErrPubkeyHashMismatch is returned when the recovered key does not
	// hash to the expected blake160.
	ErrPubkeyHashMismatch = errors.New("recovered pubkey hash mismatch")
)

// PrivateKey wraps secp256k1 private key
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps secp256k1 public key
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GeneratePrivateKey creates a random private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a private key from raw bytes
func PrivateKeyFromBytes(keyBytes []byte) (*PrivateKey, error) {
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(keyBytes))
	}

	key := secp256k1.PrivKeyFromBytes(keyBytes)
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex parses a hex private key, with or without 0x prefix.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}

// Sign creates a recoverable signature over hash in the layout CKB lock
// scripts expect: 64 bytes of r || s followed by the recovery id.
func (pk *PrivateKey) Sign(hash [32]byte) []byte {
	compact := ecdsa.SignCompact(pk.key, hash[:], true)

	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])
	sig[64] = compact[0] - compactSigMagicOffset - compactSigCompPubKey
	return sig
}

// PublicKey derives the public key
func (pk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: pk.key.PubKey()}
}

// Bytes returns the raw 32-byte private key
func (pk *PrivateKey) Bytes() []byte {
	return pk.key.Serialize()
}

// Bytes returns the compressed public key bytes
func (pub *PublicKey) Bytes() []byte {
	return pub.key.SerializeCompressed()
}

// Blake160 returns the lock args form of the public key.
func (pub *PublicKey) Blake160() [20]byte {
	return Blake160(pub.Bytes())
}

// RecoverPublicKey recovers the signing key from a 65-byte seal.
func RecoverPublicKey(sig []byte, hash [32]byte) (*PublicKey, error) {
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(sig))
	}
	recID := sig[64]
	if recID > 3 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, recID)
	}

	compact := make([]byte, SignatureSize)
	compact[0] = compactSigMagicOffset + compactSigCompPubKey + recID
	copy(compact[1:], sig[:64])

	key, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &PublicKey{key: key}, nil
}

// Blake160Verifier authenticates seals produced by the secp256k1-blake160
// lock: the key recovered from the seal must hash to PubkeyHash.
type Blake160Verifier struct {
	PubkeyHash [20]byte
}

// Verify checks seal against the signing message hash.
func (v Blake160Verifier) Verify(seal []byte, hash [32]byte) error {
	pub, err := RecoverPublicKey(seal, hash)
	if err != nil {
		return err
	}
	got := pub.Blake160()
	if !bytes.Equal(got[:], v.PubkeyHash[:]) {
		return fmt.Errorf("%w: expected %x, got %x", ErrPubkeyHashMismatch, v.PubkeyHash, got)
	}
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
