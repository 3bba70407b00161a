// Package snapshot defines the published, content-addressed commitment
// unit spec §5 describes: an ordered leaf set, its Merkle root, and the
// metadata needed to reopen or re-verify it, stored under a content hash
// so concurrent readers never observe a half-built snapshot.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/shadowatlas/commitment/pkg/field"
	"github.com/shadowatlas/commitment/pkg/merkletree"
)

// LeafRecord is the serializable form of a merkletree.Leaf, carrying the
// Fr hash as a canonical hex string rather than an fr.Element so it can
// round-trip through JSON without a custom (un)marshaler fighting
// encoding/json's reflection-based struct codec (spec §5: "canonical
// JSON" is the wire format, not a binary one).
type LeafRecord struct {
	Jurisdiction string `json:"jurisdiction"`
	BoundaryType string `json:"boundary_type"`
	ID           string `json:"id"`
	Hash         string `json:"hash"`
}

// Snapshot is the immutable, published commitment: its ordered leaf set,
// Merkle root, and build metadata. Once constructed it is never mutated —
// a new build produces a new Snapshot and a new CID (spec §5).
type Snapshot struct {
	ID          string       `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	Depth       int          `json:"depth"`
	Root        string       `json:"root"`
	LeafCount   int          `json:"leaf_count"`
	Leaves      []LeafRecord `json:"leaves"`
	ContentHash string       `json:"content_hash"`
}

// New builds a Snapshot from an ordered leaf set and its tree root. The
// content hash is computed before the fresh correlation ID is assigned,
// so ContentHash covers every field except ID and itself, and two builds
// over the same input at the same createdAt share it.
func New(leaves []merkletree.Leaf, depth int, root string, createdAt time.Time) (Snapshot, error) {
	records := make([]LeafRecord, len(leaves))
	for i, l := range leaves {
		records[i] = LeafRecord{
			Jurisdiction: l.Jurisdiction,
			BoundaryType: string(l.BoundaryType),
			ID:           l.ID,
			Hash:         field.HexString(l.Hash),
		}
	}

	snap := Snapshot{
		CreatedAt: createdAt,
		Depth:     depth,
		Root:      root,
		LeafCount: len(records),
		Leaves:    records,
	}

	canonical, err := Canonicalize(snap)
	if err != nil {
		return Snapshot{}, err
	}
	sum := sha256.Sum256(canonical)
	snap.ContentHash = "sha256:" + hex.EncodeToString(sum[:])
	snap.ID = uuid.NewString()
	return snap, nil
}
