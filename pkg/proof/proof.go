// Package proof generates and verifies Merkle inclusion proofs consumable
// by the external ZK circuit (spec §4.5): Generate never emits a proof
// whose sibling count differs from the tree depth, and Verify refuses
// any proof that does (OQ3, resolved in favor of refusal over silent
// acceptance).
package proof

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
)

// InclusionProof is the externally-consumable witness for the
// district-inclusion circuit: the leaf hash, its fixed-depth sibling
// path, and the root it is claimed to open to.
type InclusionProof struct {
	LeafHash   fr.Element
	Root       fr.Element
	Depth      int
	LeafIndex  int
	Siblings   []fr.Element
	Directions []int
}

// Generate produces the InclusionProof for (jurisdiction, boundaryType,
// id) against tree, built over the canonically-ordered leaves slice.
// Refuses (ErrPlaceholderProof) if the resulting proof's sibling count
// does not equal tree.Depth — this should be unreachable given a
// correctly-built Tree, and existing only as a last-line defense against
// ever emitting a malformed witness.
func Generate(tree *merkletree.Tree, leaves []merkletree.Leaf, jurisdiction, boundaryType, id string) (InclusionProof, error) {
	idx, err := merkletree.IndexOf(leaves, jurisdiction, boundaryType, id)
	if err != nil {
		return InclusionProof{}, err
	}
	mp, err := tree.ProofFor(idx)
	if err != nil {
		return InclusionProof{}, err
	}
	if len(mp.Siblings) != tree.Depth || len(mp.Directions) != tree.Depth {
		return InclusionProof{}, fmt.Errorf("%w: got %d siblings, want %d", atlaserrors.ErrPlaceholderProof, len(mp.Siblings), tree.Depth)
	}
	return InclusionProof{
		LeafHash:   leaves[idx].Hash,
		Root:       tree.Root,
		Depth:      tree.Depth,
		LeafIndex:  mp.LeafIndex,
		Siblings:   mp.Siblings,
		Directions: mp.Directions,
	}, nil
}

// Verify recomputes the root from p and reports whether it matches
// p.Root, refusing any proof whose path length is not exactly p.Depth.
func Verify(h poseidon.Hasher, p InclusionProof) bool {
	proof := merkletree.Proof{Siblings: p.Siblings, Directions: p.Directions}
	return merkletree.VerifyProof(h, p.LeafHash, proof, p.Depth, p.Root)
}

// Witness is the gnark frontend.Variable form of an InclusionProof: the
// root, the leaf hash, and the fixed-depth path. circuits/inclusion.Circuit
// takes the root, siblings and directions, but it re-derives the leaf hash
// from the boundary's tag, idHash, geomHash and authority, so LeafHash has
// no slot in that circuit's assignment.
type Witness struct {
	Root       frontend.Variable
	LeafHash   frontend.Variable
	Siblings   []frontend.Variable
	Directions []frontend.Variable
}

// PrepareWitness converts p into the frontend.Variable form a gnark
// circuit assignment needs, mirroring the teacher's
// utils.PrepareWitness/circuits/poi/witness.go pattern of deriving a
// ready-to-use circuit assignment from domain values.
func PrepareWitness(p InclusionProof) Witness {
	siblings := make([]frontend.Variable, len(p.Siblings))
	directions := make([]frontend.Variable, len(p.Directions))
	for i, s := range p.Siblings {
		siblings[i] = frBigInt(s)
	}
	for i, d := range p.Directions {
		directions[i] = d
	}
	return Witness{
		Root:       frBigInt(p.Root),
		LeafHash:   frBigInt(p.LeafHash),
		Siblings:   siblings,
		Directions: directions,
	}
}

func frBigInt(e fr.Element) frontend.Variable {
	b := e.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// AuthorityHash computes authority_hash = hash_string(authority_id), the
// public signal identifying which registrar issued the boundary a voter
// is proving inclusion under (spec §4.6).
func AuthorityHash(h poseidon.Hasher, authorityID string) fr.Element {
	return h.HashString(authorityID)
}

// ActionID derives the action-scoping value the nullifier circuit folds
// root, epochID, campaignID, and authorityHash into (circuits/nullifier.
// Circuit computes the same value in-circuit rather than accepting it as
// a free input, so every public signal the circuit exposes is actually
// constrained instead of left dangling). Off-circuit callers use this to
// build a witness that matches what the circuit will derive.
func ActionID(h poseidon.Hasher, root, epochID, campaignID, authorityHash fr.Element) fr.Element {
	return h.HashN([]fr.Element{root, epochID, campaignID, authorityHash})
}

// Nullifier computes nullifier = hash_n([user_secret, action_id]) per
// spec §4.6.
func Nullifier(h poseidon.Hasher, userSecret, actionID fr.Element) fr.Element {
	return h.HashN([]fr.Element{userSecret, actionID})
}

// NullifierWitness is the full external-circuit witness bundle of spec
// §4.6: {merkle_root, nullifier, authority_hash, epoch_id, campaign_id,
// leaf, merkle_path[D], leaf_index, user_secret}.
type NullifierWitness struct {
	RootHash      frontend.Variable
	Nullifier     frontend.Variable
	AuthorityHash frontend.Variable
	EpochID       frontend.Variable
	CampaignID    frontend.Variable
	Leaf          frontend.Variable
	MerklePath    []frontend.Variable
	LeafIndex     int
	UserSecret    frontend.Variable
}

// PrepareNullifierWitness locates (jurisdiction, boundaryType, id) in
// tree, derives authority_hash, action_id, and nullifier the same way the
// nullifier circuit does in-circuit, and returns the combined witness
// bundle spec §4.6 describes for the external circuit pair (inclusion +
// nullifier).
func PrepareNullifierWitness(h poseidon.Hasher, tree *merkletree.Tree, leaves []merkletree.Leaf, jurisdiction, boundaryType, id string, userSecret, epochID, campaignID fr.Element, authorityID string) (NullifierWitness, error) {
	p, err := Generate(tree, leaves, jurisdiction, boundaryType, id)
	if err != nil {
		return NullifierWitness{}, err
	}

	authorityHash := AuthorityHash(h, authorityID)
	actionID := ActionID(h, p.Root, epochID, campaignID, authorityHash)
	nullifier := Nullifier(h, userSecret, actionID)

	path := make([]frontend.Variable, len(p.Siblings))
	for i, s := range p.Siblings {
		path[i] = frBigInt(s)
	}

	return NullifierWitness{
		RootHash:      frBigInt(p.Root),
		Nullifier:     frBigInt(nullifier),
		AuthorityHash: frBigInt(authorityHash),
		EpochID:       frBigInt(epochID),
		CampaignID:    frBigInt(campaignID),
		Leaf:          frBigInt(p.LeafHash),
		MerklePath:    path,
		LeafIndex:     p.LeafIndex,
		UserSecret:    frBigInt(userSecret),
	}, nil
}
