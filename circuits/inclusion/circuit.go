// Package inclusion implements the Merkle inclusion circuit spec §4.5
// describes as consuming this module's proofs: a single fixed-depth
// opening against a public root, adapted from the teacher's
// circuits/poi package by dropping the 8-way parallel-opening VRF
// machinery (there is no randomness challenge or secret key in a
// boundary-inclusion proof — a district is either committed or it
// isn't) down to the one Merkle-path verification every opening in
// circuits/poi.MerkleProofCircuit already does.
package inclusion

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/permutation/poseidon2"
)

// Depth is the fixed Merkle tree depth this circuit verifies against,
// matching pkg/config.Default().MerkleDepth.
const Depth = 20

// Tag values mirror pkg/boundary's closed BoundaryType set so the
// circuit can re-derive a leaf hash without importing pkg/boundary
// (circuits stay dependency-free of the host package graph, matching
// the teacher's circuits/poi not importing pkg/merkle's sparse-tree
// builder either).
const (
	TagCongressional         = 1
	TagStateLegislativeUpper = 2
	TagStateLegislativeLower = 3
	TagCounty                = 4
	TagMunicipalCouncil      = 5
	TagWard                  = 6
)

// Circuit proves: "I know a boundary record (tag, idHash, geomHash,
// authority) whose leaf hash opens to RootHash at LeafIndex via
// Siblings/Directions" — without revealing which boundary (idHash and
// geomHash are private; only the tag and authority class need not be
// hidden for this circuit's purpose, so both stay private too, leaving
// RootHash as the only public signal).
type Circuit struct {
	// Public
	RootHash frontend.Variable `gnark:"rootHash,public"`

	// Private
	Tag        frontend.Variable        `gnark:"tag"`
	IDHash     frontend.Variable        `gnark:"idHash"`
	GeomHash   frontend.Variable        `gnark:"geomHash"`
	Authority  frontend.Variable        `gnark:"authority"`
	Siblings   [Depth]frontend.Variable `gnark:"siblings"`
	Directions [Depth]frontend.Variable `gnark:"directions"`
}

// Define re-derives the leaf hash from the four private fields using the
// arity-4 domain-tagged Poseidon2 absorption pkg/poseidon.Hasher.HashN
// uses off-circuit, then walks the fixed-depth Merkle path exactly as
// the teacher's circuits/poi.MerkleProofCircuit.Define does.
func (c *Circuit) Define(api frontend.API) error {
	p, err := poseidon2.NewPoseidon2FromParameters(api, 2, 6, 50)
	if err != nil {
		return err
	}

	leafHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	leafHasher.Write(c.Tag, c.IDHash, c.GeomHash, c.Authority)
	leafHash := leafHasher.Sum()
	leafHasher.Reset()

	currentHash := leafHash
	for i := 0; i < Depth; i++ {
		sibling := c.Siblings[i]
		direction := c.Directions[i]

		leftHash := api.Select(direction, sibling, currentHash)
		rightHash := api.Select(direction, currentHash, sibling)

		pairHasher := hash.NewMerkleDamgardHasher(api, p, 0)
		pairHasher.Write(leftHash, rightHash)
		currentHash = pairHasher.Sum()
		pairHasher.Reset()
	}

	api.AssertIsEqual(currentHash, c.RootHash)
	return nil
}
