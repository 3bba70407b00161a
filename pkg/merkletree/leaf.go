// Package merkletree builds the fixed-depth sparse Merkle commitment over
// a snapshot's NormalizedBoundary set (spec §4.4), adapting the teacher's
// pkg/merkle.SparseMerkleTree from file-chunk leaves to boundary-record
// leaves, and its CheckpointedSMT to the streaming-build variant spec §5
// requires for large snapshots.
package merkletree

import (
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/poseidon"
)

// Leaf is one committed record: a boundary's domain-tagged content hash,
// plus the identifying fields needed to look it back up after proof
// generation.
type Leaf struct {
	Jurisdiction string
	BoundaryType boundary.BoundaryType
	ID           string
	Hash         fr.Element
}

// LeafHash computes H(tag, hash_string(id), hash_geometry(geom), authority)
// for b — the leaf hash formula of spec §4.4.
func LeafHash(h poseidon.Hasher, b boundary.NormalizedBoundary) (fr.Element, error) {
	tag, err := b.BoundaryType.Tag()
	if err != nil {
		return fr.Element{}, err
	}
	var tagElem, idElem, geomElem, authElem fr.Element
	tagElem.SetInt64(tag)
	idElem = h.HashString(b.ID)
	geomElem = h.HashGeometry(b.Geometry)
	authElem.SetInt64(int64(b.Authority))

	return h.HashN([]fr.Element{tagElem, idElem, geomElem, authElem}), nil
}

// Order imposes the deterministic total order spec §4.4 requires leaves
// to be sorted under before tree construction: lexicographic by
// (boundaryType, id). Ties are impossible per I3 — ids are assigned in a
// format that is unique per boundaryType across the whole snapshot (e.g.
// "US-Congress-<state>-<GEOID>"), not merely within one jurisdiction, so
// jurisdiction is not and must not be part of the sort key: a build that
// keyed on jurisdiction first would commit a different root than an
// independent spec-literal implementation over the same boundary set.
func Order(leaves []Leaf) {
	sort.Slice(leaves, func(i, j int) bool {
		a, b := leaves[i], leaves[j]
		if a.BoundaryType != b.BoundaryType {
			return a.BoundaryType < b.BoundaryType
		}
		return a.ID < b.ID
	})
}

// BuildLeaves computes and orders the leaf set for boundaries, rejecting
// duplicate (jurisdiction, boundaryType, id) keys per invariant I3.
func BuildLeaves(h poseidon.Hasher, boundaries []boundary.NormalizedBoundary) ([]Leaf, error) {
	seen := make(map[string]bool, len(boundaries))
	leaves := make([]Leaf, 0, len(boundaries))
	for _, b := range boundaries {
		jurisdiction, bt, id := b.Key()
		key := jurisdiction + "\x00" + string(bt) + "\x00" + id
		if seen[key] {
			return nil, atlaserrors.ErrDuplicateID
		}
		seen[key] = true

		lh, err := LeafHash(h, b)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, Leaf{
			Jurisdiction: jurisdiction,
			BoundaryType: bt,
			ID:           id,
			Hash:         lh,
		})
	}
	Order(leaves)
	return leaves, nil
}
