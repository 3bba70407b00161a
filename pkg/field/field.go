// Package field validates and converts values into the BN254 scalar field
// Fr. Every hash, leaf, index, and public input in the commitment engine
// lives in Fr (spec §3); values outside [0, q) must be rejected on every
// external input path, never silently reduced.
package field

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
)

// Modulus is the BN254 scalar field modulus q.
func Modulus() *big.Int {
	return ecc.BN254.ScalarField()
}

// InRange reports whether v lies in [0, q).
func InRange(v *big.Int) bool {
	if v.Sign() < 0 {
		return false
	}
	return v.Cmp(Modulus()) < 0
}

// FromBigInt validates v is in [0, q) and returns the corresponding
// fr.Element. Values outside the field are rejected, not reduced
// mod q — reducing silently would let a caller smuggle in a value that
// collides with a different in-range element.
func FromBigInt(v *big.Int) (fr.Element, error) {
	var e fr.Element
	if v == nil || !InRange(v) {
		return e, fmt.Errorf("%w: value not in [0, q)", atlaserrors.ErrFieldOutOfRange)
	}
	e.SetBigInt(v)
	return e, nil
}

// MustFromBigInt is FromBigInt but panics on error. Use only for
// programmer-controlled constants (e.g. domain tags), never external input.
func MustFromBigInt(v *big.Int) fr.Element {
	e, err := FromBigInt(v)
	if err != nil {
		panic(err)
	}
	return e
}

// FromInt64 builds an Fr element from a small non-negative constant,
// always in range.
func FromInt64(v int64) fr.Element {
	var e fr.Element
	e.SetInt64(v)
	return e
}

// ToBigInt converts an Fr element back to a canonical big.Int in [0, q).
func ToBigInt(e fr.Element) *big.Int {
	out := new(big.Int)
	e.BigInt(out)
	return out
}

// Bytes32 returns the canonical 32-byte big-endian encoding of e, matching
// the teacher's fr.Element.Bytes() convention used throughout the pack.
func Bytes32(e fr.Element) [32]byte {
	return e.Bytes()
}

// HexString renders e as a 0x-prefixed, 64-hex-nibble left-padded string —
// the canonical snapshot serialization encoding for Fr values (spec §4.5).
func HexString(e fr.Element) string {
	b := e.Bytes()
	return fmt.Sprintf("0x%x", b[:])
}

// FromHexString parses a 0x-prefixed 64-hex-nibble string produced by
// HexString, validating the result is in range.
func FromHexString(s string) (fr.Element, error) {
	var e fr.Element
	v, ok := new(big.Int).SetString(trimHexPrefix(s), 16)
	if !ok {
		return e, fmt.Errorf("%w: malformed hex field element %q", atlaserrors.ErrFieldOutOfRange, s)
	}
	return FromBigInt(v)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// MicroDegrees fixes a WGS84 coordinate (degrees, up to 8 decimal places
// per I1) to a signed 32-bit microdegree integer — the precision
// hash_geometry actually hashes (spec §4.1).
func MicroDegrees(deg float64) int32 {
	return int32(deg * 1e6)
}

// Bytes2Field converts bytes to field elements with fixed size for circuit.
// numChunks is the total number of field elements to produce.
// elementSize is the number of bytes per field element.
func Bytes2Field(data []byte, numChunks, elementSize int) []frontend.Variable {
	elements := make([]frontend.Variable, numChunks)

	// Re-use a single buffer to avoid per-iteration allocations. big.Int.SetBytes
	// makes its own copy so it's safe to reuse the buffer afterwards.
	buf := make([]byte, elementSize)

	for i := 0; i < numChunks; i++ {
		// Reset buffer in-place (cheaper than make each loop).
		for j := range buf {
			buf[j] = 0
		}

		start := i * elementSize
		if start >= len(data) {
			// No more data – keep zero element.
			elements[i] = big.NewInt(0)
			continue
		}

		end := start + elementSize
		if end > len(data) {
			end = len(data)
		}

		copy(buf, data[start:end])

		elements[i] = new(big.Int).SetBytes(buf)
	}

	return elements
}

// Field2Bytes converts field elements back to bytes.
// elementSize is the number of bytes per field element.
func Field2Bytes(elements []frontend.Variable, elementSize, originalSize int) []byte {
	// Pre-allocate with exact capacity to avoid growth reallocations.
	result := make([]byte, 0, len(elements)*elementSize)

	tmp := make([]byte, elementSize) // reusable buffer

	for _, elem := range elements {
		// Fast-path for the common case (*big.Int produced by Bytes2Field).
		var value *big.Int
		switch v := elem.(type) {
		case *big.Int:
			value = v
		case int:
			value = big.NewInt(int64(v))
		case string:
			value = new(big.Int)
			value.SetString(v, 10)
		default:
			value = new(big.Int)
			_ = value.UnmarshalText([]byte(fmt.Sprintf("%v", v)))
		}

		// Zero the buffer then copy the value bytes at the end (big-endian).
		// If the value exceeds elementSize bytes (e.g. a full 32-byte field
		// element), take only the least-significant elementSize bytes to
		// avoid a negative slice index panic.
		for i := range tmp {
			tmp[i] = 0
		}
		valueBytes := value.Bytes()
		if len(valueBytes) > elementSize {
			valueBytes = valueBytes[len(valueBytes)-elementSize:]
		}
		copy(tmp[elementSize-len(valueBytes):], valueBytes)

		result = append(result, tmp...)
	}

	if originalSize > 0 && originalSize < len(result) {
		result = result[:originalSize]
	}

	return result
}
