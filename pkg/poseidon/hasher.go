// Package poseidon implements the FieldHasher contract of spec §4.1: a
// Poseidon2 permutation over BN254 Fr, domain-separated by arity so that
// hash_n([x]) can never collide with hash_n([x,0]), plus hash_string and
// hash_geometry, which absorb into the same Poseidon2 sponge under their
// own domain tags rather than calling hash_n.
//
// Any deviation from these constants silently invalidates every existing
// proof (spec §4.1) — the round constants and MDS matrix come from
// gnark-crypto's bn254 Poseidon2 implementation, the same one the
// teacher's pkg/crypto and pkg/merkle packages use, so this module's
// outputs are compatible with a gnark-based verifier circuit out of the
// box.
package poseidon

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/shadowatlas/commitment/pkg/field"
	"github.com/shadowatlas/commitment/pkg/geometry"
)

// Domain tags. Each arity gets its own tag so that, e.g., a 1-element and
// a 2-element absorption of overlapping data cannot produce the same
// output (spec §4.1: "domain-separated by n").
const (
	tagArity1    = 101
	tagArity2    = 102
	tagArity4    = 104
	tagString    = 200
	tagGeometry  = 201
	tagEmptyStr  = 202
)

// Hasher is the FieldHasher. It is pure and stateless — constructing one
// costs nothing, and it carries no mutable state, so a single instance may
// be shared freely across goroutines (spec §5: FieldHasher is pure and
// non-suspending).
type Hasher struct{}

// NewHasher constructs a FieldHasher for the bn254-width3-v1 variant. It
// never fails: the only way to pick a different Poseidon2 parameterization
// is to reject it earlier, at config validation (pkg/config).
func NewHasher() Hasher { return Hasher{} }

func newSponge() *poseidon2.MerkleDamgardHasher {
	return poseidon2.NewMerkleDamgardHasher()
}

func writeElement(h *poseidon2.MerkleDamgardHasher, e fr.Element) {
	b := e.Bytes()
	h.Write(b[:])
}

func sum(h *poseidon2.MerkleDamgardHasher) *big.Int {
	return new(big.Int).SetBytes(h.Sum(nil))
}

// HashPair computes hash_pair(a, b). It is deliberately non-commutative —
// the order in which siblings are fed in is exactly what a Merkle fold
// (left-then-right) depends on, and a circuit verifier must recompute the
// identical sequence.
func (h Hasher) HashPair(a, b fr.Element) fr.Element {
	return h.HashN([]fr.Element{a, b})
}

// HashN hashes xs with an arity-specific domain tag. n must be 1, 2, or 4;
// any other arity is a programmer error (the contract in spec §4.1 only
// defines these three).
func (Hasher) HashN(xs []fr.Element) fr.Element {
	var tag int64
	switch len(xs) {
	case 1:
		tag = tagArity1
	case 2:
		tag = tagArity2
	case 4:
		tag = tagArity4
	default:
		panic("poseidon: HashN only supports arity 1, 2, or 4")
	}

	h := newSponge()
	writeElement(h, field.FromInt64(tag))
	for _, x := range xs {
		writeElement(h, x)
	}
	var out fr.Element
	out.SetBigInt(sum(h))
	return out
}

// HashString deterministically absorbs s: UTF-8 bytes are chunked into
// 31-byte blocks (so each chunk fits inside one Fr element), interpreted
// big-endian, and hashed as a length-prefixed sequence so that "" and
// "\x00" hash differently (spec §4.1).
func (Hasher) HashString(s string) fr.Element {
	h := newSponge()

	if len(s) == 0 {
		writeElement(h, field.FromInt64(tagEmptyStr))
		var out fr.Element
		out.SetBigInt(sum(h))
		return out
	}

	writeElement(h, field.FromInt64(tagString))
	writeElement(h, field.FromInt64(int64(len(s))))

	const chunkSize = 31
	data := []byte(s)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		var buf [chunkSize]byte
		copy(buf[:], data[offset:end])

		var elem fr.Element
		elem.SetBytes(buf[:])
		writeElement(h, elem)
	}

	var out fr.Element
	out.SetBigInt(sum(h))
	return out
}

// HashGeometry canonicalizes g's coordinates to fixed-point microdegrees
// (signed 32-bit), serializes rings in exactly the order the normalizer
// emitted them, and absorbs the sequence, prefixed with a geometry domain
// tag and the polygon, ring and point counts, into one Poseidon2 sponge;
// it does not call HashN. The result is
// insensitive to surrounding JSON whitespace (geometry is already a typed
// value by the time it reaches here) but sensitive to coordinate order and
// ring order — reordering points or rings changes the hash, matching
// spec §4.1.
func (h Hasher) HashGeometry(g geometry.MultiPolygon) fr.Element {
	sp := newSponge()
	writeElement(sp, field.FromInt64(tagGeometry))
	writeElement(sp, field.FromInt64(int64(len(g.Polygons))))

	for _, poly := range g.Polygons {
		writeElement(sp, field.FromInt64(int64(len(poly.Rings))))
		for _, ring := range poly.Rings {
			writeElement(sp, field.FromInt64(int64(len(ring.Points))))
			for _, pt := range ring.Points {
				lat := field.MicroDegrees(pt.Lat)
				lon := field.MicroDegrees(pt.Lon)
				writeElement(sp, field.FromInt64(int64(lat)))
				writeElement(sp, field.FromInt64(int64(lon)))
			}
		}
	}

	var out fr.Element
	out.SetBigInt(sum(sp))
	return out
}
