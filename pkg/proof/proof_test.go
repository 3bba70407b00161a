package proof

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
)

func buildSampleTree(t *testing.T, n int) (*merkletree.Tree, []merkletree.Leaf) {
	t.Helper()
	h := poseidon.NewHasher()
	bs := make([]boundary.NormalizedBoundary, n)
	for i := 0; i < n; i++ {
		bs[i] = boundary.NormalizedBoundary{
			ID:           string(rune('a' + i)),
			Name:         "d",
			BoundaryType: boundary.County,
			Authority:    boundary.AuthorityCounty,
			Jurisdiction: "state-y",
			Geometry: geometry.MultiPolygon{Polygons: []geometry.Polygon{{
				Rings: []geometry.Ring{{Points: []geometry.Point{
					{Lat: float64(i), Lon: 0}, {Lat: float64(i), Lon: 1},
					{Lat: float64(i) + 1, Lon: 1}, {Lat: float64(i) + 1, Lon: 0},
					{Lat: float64(i), Lon: 0},
				}}},
			}}},
		}
	}
	leaves, err := merkletree.BuildLeaves(h, bs)
	if err != nil {
		t.Fatalf("BuildLeaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tree, leaves
}

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	h := poseidon.NewHasher()
	tree, leaves := buildSampleTree(t, 4)
	target := leaves[2]

	p, err := Generate(tree, leaves, target.Jurisdiction, string(target.BoundaryType), target.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(p.Siblings) != tree.Depth {
		t.Fatalf("sibling count %d != depth %d", len(p.Siblings), tree.Depth)
	}
	if !Verify(h, p) {
		t.Fatal("generated proof did not verify")
	}
}

func TestVerifyRejectsTamperedRoot(t *testing.T) {
	h := poseidon.NewHasher()
	tree, leaves := buildSampleTree(t, 3)
	p, err := Generate(tree, leaves, leaves[0].Jurisdiction, string(leaves[0].BoundaryType), leaves[0].ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p.Root = leaves[1].Hash // substitute a wrong root
	if Verify(h, p) {
		t.Fatal("expected verification failure against tampered root")
	}
}

func TestGenerateUnknownBoundaryFails(t *testing.T) {
	tree, leaves := buildSampleTree(t, 2)
	if _, err := Generate(tree, leaves, "state-y", string(boundary.County), "not-there"); err == nil {
		t.Fatal("expected error for unknown boundary id")
	}
}

func TestPrepareNullifierWitnessMatchesInCircuitDerivation(t *testing.T) {
	h := poseidon.NewHasher()
	tree, leaves := buildSampleTree(t, 4)
	target := leaves[1]

	var userSecret, epoch, campaign fr.Element
	userSecret.SetInt64(42)
	epoch.SetInt64(2026)
	campaign.SetInt64(7)

	w, err := PrepareNullifierWitness(h, tree, leaves, target.Jurisdiction, string(target.BoundaryType), target.ID, userSecret, epoch, campaign, "county-clerk")
	if err != nil {
		t.Fatalf("PrepareNullifierWitness: %v", err)
	}

	authorityHash := AuthorityHash(h, "county-clerk")
	actionID := ActionID(h, tree.Root, epoch, campaign, authorityHash)
	wantNullifier := Nullifier(h, userSecret, actionID)

	got := w.Nullifier.(*big.Int)
	want := frBigInt(wantNullifier).(*big.Int)
	if got.Cmp(want) != 0 {
		t.Fatalf("nullifier mismatch: got %v want %v", got, want)
	}
	if w.LeafIndex != 1 {
		t.Fatalf("leaf index = %d, want 1", w.LeafIndex)
	}
	if len(w.MerklePath) != tree.Depth {
		t.Fatalf("merkle path len %d != depth %d", len(w.MerklePath), tree.Depth)
	}
}

func TestPrepareNullifierWitnessDiffersAcrossActions(t *testing.T) {
	h := poseidon.NewHasher()
	tree, leaves := buildSampleTree(t, 3)
	target := leaves[0]

	var userSecret, epochA, epochB, campaign fr.Element
	userSecret.SetInt64(1)
	epochA.SetInt64(1)
	epochB.SetInt64(2)
	campaign.SetInt64(1)

	wa, err := PrepareNullifierWitness(h, tree, leaves, target.Jurisdiction, string(target.BoundaryType), target.ID, userSecret, epochA, campaign, "authority")
	if err != nil {
		t.Fatalf("PrepareNullifierWitness: %v", err)
	}
	wb, err := PrepareNullifierWitness(h, tree, leaves, target.Jurisdiction, string(target.BoundaryType), target.ID, userSecret, epochB, campaign, "authority")
	if err != nil {
		t.Fatalf("PrepareNullifierWitness: %v", err)
	}
	if wa.Nullifier.(*big.Int).Cmp(wb.Nullifier.(*big.Int)) == 0 {
		t.Fatal("expected different epochs to produce different nullifiers")
	}
}
