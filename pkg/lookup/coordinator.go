package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/field"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/proof"
	"github.com/shadowatlas/commitment/pkg/snapshot"
)

// layerPreference is the finest-to-coarsest granularity order spec §4.8
// falls back to when a caller does not name a layer: a point is resolved
// against the most specific boundary type that contains it.
var layerPreference = []boundary.BoundaryType{
	boundary.Ward,
	boundary.MunicipalCouncil,
	boundary.County,
	boundary.StateLegislativeLower,
	boundary.StateLegislativeUpper,
	boundary.Congressional,
}

// MerkleProof is the wire-safe form of a merkletree inclusion proof: every
// Fr element as a canonical hex string, matching pkg/snapshot.LeafRecord's
// convention (spec §4.8: the lookup result bundles a proof the caller can
// verify without talking back to the commitment engine).
type MerkleProof struct {
	LeafHash   string   `json:"leaf_hash"`
	LeafIndex  int      `json:"leaf_index"`
	Siblings   []string `json:"siblings"`
	Directions []int    `json:"directions"`
}

// Provenance identifies which published snapshot a Result was resolved
// against, and when (spec §4.8: "{snapshotId, blobCid, merkleRoot,
// retrievedAt}").
type Provenance struct {
	SnapshotID  string    `json:"snapshot_id"`
	BlobCID     string    `json:"blob_cid"`
	MerkleRoot  string    `json:"merkle_root"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Result is the outcome of a Locate call: the containing boundary, the
// queried coordinates, and enough to independently verify the answer
// against a published commitment — a Merkle inclusion proof and the
// provenance of the snapshot it was drawn from.
type Result struct {
	Boundary    boundary.NormalizedBoundary
	AreaM2      float64
	Coordinates geometry.Point
	MerkleProof MerkleProof
	Provenance  Provenance
}

// Coordinator answers point-in-district queries against one GridIndex per
// boundary layer, and assembles the Merkle proof + provenance bundle a
// Result carries from the same ordered leaf set and Tree the currently
// published Snapshot commits to.
type Coordinator struct {
	engine    geometry.SpatialEngine
	indexes   map[boundary.BoundaryType]*GridIndex
	tree      *merkletree.Tree
	leaves    []merkletree.Leaf
	publisher *snapshot.Publisher
}

// NewCoordinator builds a Coordinator with one spatial index per boundary
// type present in boundaries. tree and leaves must be the same ordered
// leaf set and Merkle tree committed by the snapshot currently (or about
// to be) live in publisher; publisher is read at Locate time, not copied,
// so a republish is immediately reflected in subsequent results'
// Provenance.
func NewCoordinator(engine geometry.SpatialEngine, boundaries []boundary.NormalizedBoundary, tree *merkletree.Tree, leaves []merkletree.Leaf, publisher *snapshot.Publisher) *Coordinator {
	byType := make(map[boundary.BoundaryType][]boundary.NormalizedBoundary)
	for _, b := range boundaries {
		byType[b.BoundaryType] = append(byType[b.BoundaryType], b)
	}
	indexes := make(map[boundary.BoundaryType]*GridIndex, len(byType))
	for bt, group := range byType {
		indexes[bt] = NewGridIndex(engine, group)
	}
	return &Coordinator{engine: engine, indexes: indexes, tree: tree, leaves: leaves, publisher: publisher}
}

// Locate finds the boundary containing pt. If layer is non-empty it is
// the sole candidate layer tested; if empty, every layer in
// layerPreference (finest first) is tried in turn and the first
// containing match wins (spec §4.8: "preferring finer granularity if
// layer is unspecified"). When multiple candidate boundaries within a
// single layer's bounding boxes overlap pt (only possible with malformed,
// overlapping source data — tessellation should have caught true overlaps
// before commit), the smallest-area match is returned, deterministically
// breaking the tie in favor of the most specific boundary (spec §4.7).
func (c *Coordinator) Locate(ctx context.Context, layer boundary.BoundaryType, pt geometry.Point) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", atlaserrors.ErrDeadlineExceeded, err)
	}

	layers := layerPreference
	if layer != "" {
		layers = []boundary.BoundaryType{layer}
	}

	var best *boundary.NormalizedBoundary
	var bestArea float64
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", atlaserrors.ErrDeadlineExceeded, err)
		}
		idx, ok := c.indexes[l]
		if !ok {
			continue
		}
		for _, candidate := range idx.Candidates(pt) {
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("%w: %v", atlaserrors.ErrDeadlineExceeded, err)
			}
			if !pointInMultiPolygon(c.engine, pt, candidate.Geometry) {
				continue
			}
			area := geometry.MultiPolygonAreaM2(candidate.Geometry)
			if best == nil || area < bestArea {
				b := candidate
				best = &b
				bestArea = area
			}
		}
		if best != nil {
			break // layers is finest-first: stop at the first layer with any match
		}
	}

	if best == nil {
		return Result{}, atlaserrors.ErrNotInAnyDistrict
	}

	merkleProof, provenance, err := c.proveAndAttribute(*best)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Boundary:    *best,
		AreaM2:      bestArea,
		Coordinates: pt,
		MerkleProof: merkleProof,
		Provenance:  provenance,
	}, nil
}

// proveAndAttribute builds b's Merkle inclusion proof against c.tree/
// c.leaves and the Provenance of the snapshot currently live in
// c.publisher.
func (c *Coordinator) proveAndAttribute(b boundary.NormalizedBoundary) (MerkleProof, Provenance, error) {
	if c.tree == nil || c.leaves == nil {
		return MerkleProof{}, Provenance{}, nil
	}

	snap := c.publisher.Current()
	if snap == nil {
		return MerkleProof{}, Provenance{}, atlaserrors.ErrMalformedSnapshot
	}

	ip, err := proof.Generate(c.tree, c.leaves, b.Jurisdiction, string(b.BoundaryType), b.ID)
	if err != nil {
		return MerkleProof{}, Provenance{}, err
	}

	siblings := make([]string, len(ip.Siblings))
	for i, s := range ip.Siblings {
		siblings[i] = field.HexString(s)
	}

	return MerkleProof{
			LeafHash:   field.HexString(ip.LeafHash),
			LeafIndex:  ip.LeafIndex,
			Siblings:   siblings,
			Directions: ip.Directions,
		}, Provenance{
			SnapshotID:  snap.ID,
			BlobCID:     snap.ContentHash,
			MerkleRoot:  snap.Root,
			RetrievedAt: time.Now().UTC(),
		}, nil
}

func pointInMultiPolygon(engine geometry.SpatialEngine, pt geometry.Point, mp geometry.MultiPolygon) bool {
	for _, p := range mp.Polygons {
		if engine.Contains(pt, p) {
			return true
		}
	}
	return false
}
