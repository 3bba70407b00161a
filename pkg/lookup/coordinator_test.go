package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
	"github.com/shadowatlas/commitment/pkg/snapshot"
)

func squareBoundary(id string, offset, size float64) boundary.NormalizedBoundary {
	return squareBoundaryType(id, boundary.County, boundary.AuthorityCounty, offset, size)
}

func squareBoundaryType(id string, bt boundary.BoundaryType, auth boundary.AuthorityLevel, offset, size float64) boundary.NormalizedBoundary {
	return boundary.NormalizedBoundary{
		ID: id, Name: id, BoundaryType: bt, Authority: auth,
		Jurisdiction: "state-q",
		Geometry: geometry.MultiPolygon{Polygons: []geometry.Polygon{{
			Rings: []geometry.Ring{{Points: []geometry.Point{
				{Lat: offset, Lon: offset}, {Lat: offset, Lon: offset + size},
				{Lat: offset + size, Lon: offset + size}, {Lat: offset + size, Lon: offset},
				{Lat: offset, Lon: offset},
			}}},
		}}},
	}
}

// buildTestCoordinator commits boundaries to a tiny tree and a published
// snapshot so Locate can assemble a real Merkle proof and provenance
// bundle, the way a production Coordinator always does.
func buildTestCoordinator(t *testing.T, boundaries []boundary.NormalizedBoundary) *Coordinator {
	t.Helper()
	h := poseidon.NewHasher()
	leaves, err := merkletree.BuildLeaves(h, boundaries)
	if err != nil {
		t.Fatalf("BuildLeaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, 8)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	snap, err := snapshot.New(leaves, tree.Depth, tree.Root.String(), time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	pub := snapshot.NewPublisher()
	pub.Publish(snap)
	return NewCoordinator(geometry.PlanarEngine{}, boundaries, tree, leaves, pub)
}

func TestLocateFindsContainingBoundary(t *testing.T) {
	boundaries := []boundary.NormalizedBoundary{
		squareBoundary("a", 0, 1),
		squareBoundary("b", 5, 1),
	}
	coord := buildTestCoordinator(t, boundaries)

	res, err := coord.Locate(context.Background(), boundary.County, geometry.Point{Lat: 0.5, Lon: 0.5})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Boundary.ID != "a" {
		t.Fatalf("got %s want a", res.Boundary.ID)
	}
	if res.Provenance.SnapshotID == "" || res.Provenance.MerkleRoot == "" {
		t.Fatalf("expected provenance to be populated, got %+v", res.Provenance)
	}
	if len(res.MerkleProof.Siblings) != 8 {
		t.Fatalf("expected an 8-deep merkle proof, got %d siblings", len(res.MerkleProof.Siblings))
	}
	if res.Coordinates.Lat != 0.5 || res.Coordinates.Lon != 0.5 {
		t.Fatalf("expected coordinates to echo the query point, got %+v", res.Coordinates)
	}
}

func TestLocateNotInAnyDistrict(t *testing.T) {
	boundaries := []boundary.NormalizedBoundary{squareBoundary("a", 0, 1)}
	coord := buildTestCoordinator(t, boundaries)

	_, err := coord.Locate(context.Background(), boundary.County, geometry.Point{Lat: 50, Lon: 50})
	if err == nil {
		t.Fatal("expected ErrNotInAnyDistrict")
	}
}

func TestLocateRespectsDeadline(t *testing.T) {
	boundaries := []boundary.NormalizedBoundary{squareBoundary("a", 0, 1)}
	coord := buildTestCoordinator(t, boundaries)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := coord.Locate(ctx, boundary.County, geometry.Point{Lat: 0.5, Lon: 0.5})
	if err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestLocatePicksSmallestAreaOnOverlap(t *testing.T) {
	boundaries := []boundary.NormalizedBoundary{
		squareBoundary("big", 0, 10),
		squareBoundary("small", 2, 1),
	}
	coord := buildTestCoordinator(t, boundaries)

	res, err := coord.Locate(context.Background(), boundary.County, geometry.Point{Lat: 2.5, Lon: 2.5})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Boundary.ID != "small" {
		t.Fatalf("got %s want small (smallest-area tie-break)", res.Boundary.ID)
	}
}

func TestLocateWithoutLayerPrefersFinestGranularity(t *testing.T) {
	boundaries := []boundary.NormalizedBoundary{
		squareBoundaryType("county-1", boundary.County, boundary.AuthorityCounty, 0, 10),
		squareBoundaryType("ward-1", boundary.Ward, boundary.AuthorityMunicipal, 2, 1),
	}
	coord := buildTestCoordinator(t, boundaries)

	res, err := coord.Locate(context.Background(), "", geometry.Point{Lat: 2.5, Lon: 2.5})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Boundary.ID != "ward-1" {
		t.Fatalf("got %s want ward-1 (finest layer preferred when layer is unspecified)", res.Boundary.ID)
	}
}

func TestLocateWithoutLayerFallsBackToCoarserLayer(t *testing.T) {
	boundaries := []boundary.NormalizedBoundary{
		squareBoundaryType("county-1", boundary.County, boundary.AuthorityCounty, 0, 10),
	}
	coord := buildTestCoordinator(t, boundaries)

	res, err := coord.Locate(context.Background(), "", geometry.Point{Lat: 2.5, Lon: 2.5})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Boundary.ID != "county-1" {
		t.Fatalf("got %s want county-1", res.Boundary.ID)
	}
}
