// Package nullifier implements the nullifier-derivation circuit of spec
// §4.6/§1, adapted from the teacher's circuits/keyleak package: the same
// "prove a public value was derived from a private secret and a public
// context" shape, repurposed from key-leak slashing to proving a voter's
// per-action nullifier was derived from their own secret without
// revealing it — the standard technique for letting a verifier accept
// "this eligible voter has not double-claimed this action" without
// learning who the voter is. This circuit pins down the external
// public-input contract spec §1 names: {root, nullifier, authority_hash,
// epoch_id, campaign_id}.
package nullifier

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/permutation/poseidon2"
)

// Circuit proves ownership of UserSecret such that:
//
//	actionId  == H(RootHash, EpochID, CampaignID, AuthorityHash)
//	Nullifier == H(UserSecret, actionId)
//
// actionId is an in-circuit intermediate, not a witness field: deriving
// it from the other four public signals instead of accepting it as a
// free input means every public signal this circuit exposes is actually
// constrained, rather than leaving RootHash/EpochID/CampaignID/
// AuthorityHash dangling alongside a Nullifier that doesn't depend on
// them. Off-circuit witness preparation (pkg/proof.ActionID) derives
// actionId the identical way so the witness always matches what the
// circuit recomputes.
type Circuit struct {
	// Public
	RootHash      frontend.Variable `gnark:"rootHash,public"`
	EpochID       frontend.Variable `gnark:"epochId,public"`
	CampaignID    frontend.Variable `gnark:"campaignId,public"`
	AuthorityHash frontend.Variable `gnark:"authorityHash,public"`
	Nullifier     frontend.Variable `gnark:"nullifier,public"`

	// Private
	UserSecret frontend.Variable `gnark:"userSecret"`
}

func (c *Circuit) Define(api frontend.API) error {
	p, err := poseidon2.NewPoseidon2FromParameters(api, 2, 6, 50)
	if err != nil {
		return err
	}

	actionHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	actionHasher.Write(c.RootHash, c.EpochID, c.CampaignID, c.AuthorityHash)
	actionID := actionHasher.Sum()
	actionHasher.Reset()

	nullHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	nullHasher.Write(c.UserSecret, actionID)
	derivedNullifier := nullHasher.Sum()
	nullHasher.Reset()

	api.AssertIsEqual(c.Nullifier, derivedNullifier)
	return nil
}
