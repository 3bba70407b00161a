package integrity

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
	"github.com/shadowatlas/commitment/pkg/snapshot"
	"github.com/shadowatlas/commitment/pkg/tessellation"
)

func square(offset float64) geometry.MultiPolygon {
	return geometry.MultiPolygon{Polygons: []geometry.Polygon{{
		Rings: []geometry.Ring{{Points: []geometry.Point{
			{Lat: offset, Lon: offset}, {Lat: offset, Lon: offset + 1},
			{Lat: offset + 1, Lon: offset + 1}, {Lat: offset + 1, Lon: offset},
			{Lat: offset, Lon: offset},
		}}},
	}}}
}

func TestCheckFlagsLeafCountMismatch(t *testing.T) {
	log := zerolog.New(os.Stderr)
	h := poseidon.NewHasher()
	bs := []boundary.NormalizedBoundary{{
		ID: "a", Name: "A", BoundaryType: boundary.County, Authority: boundary.AuthorityCounty,
		Jurisdiction: "state-z", Geometry: square(0),
	}}
	leaves, err := merkletree.BuildLeaves(h, bs)
	if err != nil {
		t.Fatalf("BuildLeaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, 8)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	snap, err := snapshot.New(leaves, tree.Depth, "0xroot", time.Now().UTC())
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	snap.LeafCount = 5 // corrupt

	report := Check(log, geometry.PlanarEngine{}, snap, bs, ExpectedCounts{}, nil, tessellation.DefaultThresholds())
	if report.Valid {
		t.Fatal("expected invalid report for corrupted leaf count")
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected at least one error")
	}
}

func TestCrossSourceDiscrepancyDetectsAreaDelta(t *testing.T) {
	a := square(0)
	b := geometry.MultiPolygon{Polygons: []geometry.Polygon{{
		Rings: []geometry.Ring{{Points: []geometry.Point{
			{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 0}, {Lat: 0, Lon: 0},
		}}},
	}}}
	if err := CrossSourceDiscrepancy(geometry.PlanarEngine{}, a, b, 1.0); err == nil {
		t.Fatal("expected discrepancy error for grossly different footprints")
	}
	if err := CrossSourceDiscrepancy(geometry.PlanarEngine{}, a, a, 1.0); err != nil {
		t.Fatalf("expected no discrepancy comparing identical geometry, got %v", err)
	}
}
