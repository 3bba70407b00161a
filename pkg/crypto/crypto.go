// Package crypto provides the voter-secret primitives used outside the
// ZK statement itself: generating a user secret and deriving the public
// key a registrar records at enrollment time, before any nullifier is
// ever computed. The nullifier-derivation hashing itself lives in
// pkg/poseidon/pkg/proof, mirrored in-circuit by circuits/nullifier —
// this package only needs to cover key issuance.
package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// GenerateSecretKey generates a random secret key as a non-zero BN254 scalar field element.
func GenerateSecretKey() (*big.Int, error) {
	for {
		sk, err := rand.Int(rand.Reader, ecc.BN254.ScalarField())
		if err != nil {
			return nil, err
		}
		if sk.Sign() != 0 {
			return sk, nil
		}
	}
}

// DerivePublicKey computes publicKey = H(secretKey) using Poseidon2, the
// value a registrar records at enrollment so it can later check a
// presented secret against the roll without ever storing the secret
// itself.
func DerivePublicKey(secretKey *big.Int) *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()

	var skFr fr.Element
	skFr.SetBigInt(secretKey)
	skBytes := skFr.Bytes()
	h.Write(skBytes[:])

	return new(big.Int).SetBytes(h.Sum(nil))
}
