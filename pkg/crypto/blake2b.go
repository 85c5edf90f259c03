// Package crypto provides the hash and signature primitives used by the
// cobuild authorization engine.
//
// Every digest in CKB is BLAKE2b-256 with a 16-byte personalization. The
// personalization is NOT a key but a distinct parameter of the hash
// function, so the same preimage hashed under two personalizations yields
// unrelated digests. Cobuild uses this to domain-separate the three kinds
// of signing message hash:
//
//	ckb-tcob-sighash  whole transaction, with a Message
//	ckb-tcob-sgohash  whole transaction, without a Message
//	ckb-tcob-otxhash  one open transaction's claimed ranges
//
// Script hashes and transaction hashes use the chain-wide default
// personalization ckb-default-hash.
package crypto

import (
	"hash"

	blake2b "github.com/minio/blake2b-simd"
)

// Personalization strings (all 16 bytes).
const (
	DefaultHashPersonalization    = "ckb-default-hash"
	SighashAllPersonalization     = "ckb-tcob-sighash"
	SighashAllOnlyPersonalization = "ckb-tcob-sgohash"
	OtxPersonalization            = "ckb-tcob-otxhash"
)

// HashSize is the digest size of every CKB hash.
const HashSize = 32

// blake2bNew256 creates a new BLAKE2b-256 hash with the given personalization.
func blake2bNew256(personalization string) hash.Hash {
	h, err := blake2b.New(&blake2b.Config{
		Size:   HashSize,
		Person: []byte(personalization),
	})
	if err != nil {
		// Only reachable with an oversized personalization, which the
		// constants above rule out.
		panic(err)
	}
	return h
}

// NewDefaultHasher returns a hasher for script and transaction hashes.
func NewDefaultHasher() hash.Hash {
	return blake2bNew256(DefaultHashPersonalization)
}

// NewSighashAllHasher returns the whole-transaction hasher used when a
// SighashAll witness carries a Message.
func NewSighashAllHasher() hash.Hash {
	return blake2bNew256(SighashAllPersonalization)
}

// NewSighashAllOnlyHasher returns the whole-transaction hasher used when no
// Message is present.
func NewSighashAllOnlyHasher() hash.Hash {
	return blake2bNew256(SighashAllOnlyPersonalization)
}

// NewOtxHasher returns the hasher for open transaction commitments.
func NewOtxHasher() hash.Hash {
	return blake2bNew256(OtxPersonalization)
}

// Sum256 finalizes h into a fixed-size digest.
func Sum256(h hash.Hash) [HashSize]byte {
	var digest [HashSize]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// Blake2b256 hashes data with the default personalization.
func Blake2b256(data []byte) [HashSize]byte {
	h := NewDefaultHasher()
	h.Write(data)
	return Sum256(h)
}

// Blake160 returns the first 20 bytes of Blake2b256(data), the form in
// which public keys are committed to in lock script args.
func Blake160(data []byte) [20]byte {
	digest := Blake2b256(data)
	var out [20]byte
	copy(out[:], digest[:20])
	return out
}
