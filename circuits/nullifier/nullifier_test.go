package nullifier_test

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test/unsafekzg"

	"github.com/shadowatlas/commitment/circuits/nullifier"
	"github.com/shadowatlas/commitment/pkg/crypto"
	"github.com/shadowatlas/commitment/pkg/setup"
)

// rawHash mirrors the circuit's two-stage Write/Sum absorption off-circuit:
// actionId = H(root, epochId, campaignId, authorityHash), then
// nullifier = H(userSecret, actionId).
func rawHash(userSecret, root, epochID, campaignID, authorityHash *big.Int) *big.Int {
	actionHasher := poseidon2.NewMerkleDamgardHasher()
	for _, v := range []*big.Int{root, epochID, campaignID, authorityHash} {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		actionHasher.Write(b[:])
	}
	actionID := new(big.Int).SetBytes(actionHasher.Sum(nil))

	nullHasher := poseidon2.NewMerkleDamgardHasher()
	for _, v := range []*big.Int{userSecret, actionID} {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		nullHasher.Write(b[:])
	}
	return new(big.Int).SetBytes(nullHasher.Sum(nil))
}

// TestNullifierCircuitEndToEnd compiles the circuit, runs an unsafe PLONK
// setup, generates a proof for a valid witness, and verifies it —
// mirroring the teacher's keyleak end-to-end test shape.
func TestNullifierCircuitEndToEnd(t *testing.T) {
	ccs, err := setup.CompileCircuitForBackend(&nullifier.Circuit{}, setup.PlonkBackend)
	if err != nil {
		t.Fatalf("compile circuit: %v", err)
	}

	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		t.Fatalf("generate SRS: %v", err)
	}

	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		t.Fatalf("plonk setup: %v", err)
	}

	userSecret, err := crypto.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate user secret: %v", err)
	}
	root := new(big.Int).SetUint64(0xABCDEF)
	epochID := big.NewInt(2026)
	campaignID := big.NewInt(7)
	authorityHash := new(big.Int).SetUint64(0x1234)
	nullifierValue := rawHash(userSecret, root, epochID, campaignID, authorityHash)

	assignment := nullifier.Circuit{
		RootHash:      root,
		EpochID:       epochID,
		CampaignID:    campaignID,
		AuthorityHash: authorityHash,
		Nullifier:     nullifierValue,
		UserSecret:    userSecret,
	}

	witness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		t.Fatalf("create witness: %v", err)
	}
	publicWitness, err := witness.Public()
	if err != nil {
		t.Fatalf("extract public witness: %v", err)
	}

	proof, err := plonk.Prove(ccs, pk, witness)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if err := plonk.Verify(proof, vk, publicWitness); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

// TestNullifierCircuitRejectsMismatchedEpoch checks that proving fails
// (at the constraint-solving stage) when the asserted nullifier was
// derived from a different epoch than the one supplied as public input.
func TestNullifierCircuitRejectsMismatchedEpoch(t *testing.T) {
	ccs, err := setup.CompileCircuitForBackend(&nullifier.Circuit{}, setup.PlonkBackend)
	if err != nil {
		t.Fatalf("compile circuit: %v", err)
	}

	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		t.Fatalf("generate SRS: %v", err)
	}
	pk, _, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		t.Fatalf("plonk setup: %v", err)
	}

	userSecret, err := crypto.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate user secret: %v", err)
	}
	root := new(big.Int).SetUint64(0xABCDEF)
	epochID := big.NewInt(2026)
	campaignID := big.NewInt(7)
	authorityHash := new(big.Int).SetUint64(0x1234)
	wrongNullifier := rawHash(userSecret, root, big.NewInt(2025), campaignID, authorityHash)

	assignment := nullifier.Circuit{
		RootHash:      root,
		EpochID:       epochID,
		CampaignID:    campaignID,
		AuthorityHash: authorityHash,
		Nullifier:     wrongNullifier,
		UserSecret:    userSecret,
	}

	witness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		t.Fatalf("create witness: %v", err)
	}

	if _, err := plonk.Prove(ccs, pk, witness); err == nil {
		t.Fatal("expected proving to fail for mismatched epoch")
	}
}
