package tessellation

import (
	"testing"

	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
)

func square(minLat, minLon, maxLat, maxLon float64) geometry.Polygon {
	return geometry.Polygon{Rings: []geometry.Ring{{Points: []geometry.Point{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: maxLat, Lon: minLon},
		{Lat: minLat, Lon: minLon},
	}}}}
}

func squareMP(minLat, minLon, maxLat, maxLon float64) geometry.MultiPolygon {
	return geometry.MultiPolygon{Polygons: []geometry.Polygon{square(minLat, minLon, maxLat, maxLon)}}
}

func countyBoundary(id string, jurisdiction string, mp geometry.MultiPolygon) boundary.NormalizedBoundary {
	return boundary.NormalizedBoundary{
		ID:           id,
		Name:         id,
		BoundaryType: boundary.County,
		Authority:    boundary.AuthorityCounty,
		Jurisdiction: jurisdiction,
		Geometry:     mp,
	}
}

func TestCheckContainmentPassesWhenFullyInside(t *testing.T) {
	engine := geometry.PlanarEngine{}
	jurisdiction := squareMP(0, 0, 10, 10)
	group := []boundary.NormalizedBoundary{countyBoundary("a", "state-x", squareMP(1, 1, 4, 4))}
	th := DefaultThresholds()

	findings := checkContainment(engine, group, jurisdiction, th)
	if len(findings) != 0 {
		t.Fatalf("unexpected findings: %v", findings)
	}
}

func TestCheckContainmentFailsWhenCentroidOutside(t *testing.T) {
	engine := geometry.PlanarEngine{}
	jurisdiction := squareMP(0, 0, 10, 10)
	group := []boundary.NormalizedBoundary{countyBoundary("a", "state-x", squareMP(20, 20, 24, 24))}
	th := DefaultThresholds()

	findings := checkContainment(engine, group, jurisdiction, th)
	if !HasFailures(findings) {
		t.Fatal("expected containment failure for boundary entirely outside jurisdiction")
	}
}

func TestCheckContainmentFailsWhenAreaFractionTooLow(t *testing.T) {
	engine := geometry.PlanarEngine{}
	jurisdiction := squareMP(0, 0, 10, 10)
	// Centroid (lat ~9.95, lon 5) lies just inside the jurisdiction, but
	// only about half the boundary's area does.
	group := []boundary.NormalizedBoundary{countyBoundary("a", "state-x", squareMP(8, 0, 11.9, 10))}
	th := DefaultThresholds()

	findings := checkContainment(engine, group, jurisdiction, th)
	if !HasFailures(findings) {
		t.Fatal("expected containment failure for boundary mostly outside jurisdiction")
	}
}

func TestCheckContainmentSkipsConsolidatedJurisdiction(t *testing.T) {
	engine := geometry.PlanarEngine{}
	jurisdiction := squareMP(0, 0, 10, 10)
	group := []boundary.NormalizedBoundary{countyBoundary("a", "metro-city", squareMP(20, 20, 24, 24))}
	th := DefaultThresholds()
	th.ConsolidatedJurisdictions = map[string]bool{"metro-city": true}

	findings := checkContainment(engine, group, jurisdiction, th)
	if len(findings) != 0 {
		t.Fatalf("unexpected findings for consolidated jurisdiction: %v", findings)
	}
}

func TestCheckContainmentDegradesGracefullyWithNoJurisdictionPolygon(t *testing.T) {
	engine := geometry.PlanarEngine{}
	group := []boundary.NormalizedBoundary{countyBoundary("a", "state-x", squareMP(20, 20, 24, 24))}
	th := DefaultThresholds()

	findings := checkContainment(engine, group, geometry.MultiPolygon{}, th)
	if len(findings) != 0 {
		t.Fatalf("expected containment to skip the area/centroid checks with no jurisdiction polygon, got %v", findings)
	}
}

func TestCheckExclusivityPassesWithinTolerance(t *testing.T) {
	engine := geometry.PlanarEngine{}
	a := countyBoundary("a", "state-x", squareMP(0, 0, 10, 10))
	b := countyBoundary("b", "state-x", squareMP(10, 0, 20, 10)) // touches at the edge, no area overlap
	th := DefaultThresholds()

	findings := checkExclusivity(engine, []boundary.NormalizedBoundary{a, b}, th)
	if len(findings) != 0 {
		t.Fatalf("expected no findings for edge-adjacent boundaries, got %v", findings)
	}
}

func TestCheckExclusivityWarnsOnSmallOverlap(t *testing.T) {
	engine := geometry.PlanarEngine{}
	aGeom := square(0, 0, 10, 10)
	bGeom := square(9, 0, 19, 10)
	overlap := engine.IntersectionAreaM2(aGeom, bGeom)
	if overlap <= 0 {
		t.Fatal("test fixture expects a positive overlap")
	}

	a := countyBoundary("a", "state-x", geometry.MultiPolygon{Polygons: []geometry.Polygon{aGeom}})
	b := countyBoundary("b", "state-x", geometry.MultiPolygon{Polygons: []geometry.Polygon{bGeom}})
	th := DefaultThresholds()
	th.OverlapRelPct = 0
	th.OverlapAbsM2 = overlap / 1.5 // tolerance < overlap <= 2x tolerance: warn range

	findings := checkExclusivity(engine, []boundary.NormalizedBoundary{a, b}, th)
	if len(findings) == 0 {
		t.Fatal("expected a finding for the overlap")
	}
	for _, f := range findings {
		if f.Severity == SeverityFail {
			t.Fatalf("expected warn, not fail, for a near-tolerance overlap: %v", f.Err)
		}
	}
}

func TestCheckExclusivityFailsOnLargeOverlap(t *testing.T) {
	engine := geometry.PlanarEngine{}
	aGeom := square(0, 0, 10, 10)
	bGeom := square(5, 5, 15, 15)
	overlap := engine.IntersectionAreaM2(aGeom, bGeom)
	if overlap <= 0 {
		t.Fatal("test fixture expects a positive overlap")
	}

	a := countyBoundary("a", "state-x", geometry.MultiPolygon{Polygons: []geometry.Polygon{aGeom}})
	b := countyBoundary("b", "state-x", geometry.MultiPolygon{Polygons: []geometry.Polygon{bGeom}})
	th := DefaultThresholds()
	th.OverlapRelPct = 0
	th.OverlapAbsM2 = overlap / 3 // well beyond 2x tolerance: fail

	findings := checkExclusivity(engine, []boundary.NormalizedBoundary{a, b}, th)
	if len(findings) == 0 {
		t.Fatal("expected a finding for substantial overlap")
	}
	if findings[0].Severity != SeverityFail {
		t.Fatalf("expected fail severity, got %v", findings[0].Severity)
	}
}

func TestCheckExhaustivityPassesOnFullCoverage(t *testing.T) {
	engine := geometry.PlanarEngine{}
	jurisdiction := squareMP(0, 0, 10, 10)
	group := []boundary.NormalizedBoundary{
		countyBoundary("a", "state-x", squareMP(0, 0, 5, 10)),
		countyBoundary("b", "state-x", squareMP(5, 0, 10, 10)),
	}
	th := DefaultThresholds()

	findings := checkExhaustivity(engine, group, jurisdiction, th)
	if len(findings) != 0 {
		t.Fatalf("expected no exhaustivity findings for full coverage, got %v", findings)
	}
}

func TestCheckExhaustivityFailsOnLargeGap(t *testing.T) {
	engine := geometry.PlanarEngine{}
	jurisdiction := squareMP(0, 0, 10, 10)
	group := []boundary.NormalizedBoundary{
		countyBoundary("a", "state-x", squareMP(0, 0, 2, 10)), // covers ~20% of the jurisdiction
	}
	th := DefaultThresholds()

	findings := checkExhaustivity(engine, group, jurisdiction, th)
	if len(findings) == 0 {
		t.Fatal("expected an exhaustivity failure for a large uncovered gap")
	}
	if findings[0].Subject != "state-x" {
		t.Fatalf("expected layer-level subject to be the jurisdiction name, got %q", findings[0].Subject)
	}
}

func TestCheckSingleFeatureMunicipalFlagsWardWithoutException(t *testing.T) {
	group := []boundary.NormalizedBoundary{{
		ID: "w1", BoundaryType: boundary.Ward, Authority: boundary.AuthorityMunicipal, Jurisdiction: "small-town",
		Geometry: squareMP(0, 0, 1, 1),
	}}
	th := DefaultThresholds()

	findings := checkSingleFeatureMunicipal(group, th)
	if len(findings) != 1 || findings[0].Severity != SeverityFail {
		t.Fatalf("expected a single fail finding, got %v", findings)
	}
}

func TestCheckSingleFeatureMunicipalExemptsAtLargeCity(t *testing.T) {
	group := []boundary.NormalizedBoundary{{
		ID: "mc1", BoundaryType: boundary.MunicipalCouncil, Authority: boundary.AuthorityMunicipal, Jurisdiction: "at-large-town",
		Geometry: squareMP(0, 0, 1, 1),
	}}
	th := DefaultThresholds()
	th.AtLargeCities = map[string]bool{"at-large-town": true}

	if findings := checkSingleFeatureMunicipal(group, th); len(findings) != 0 {
		t.Fatalf("expected no findings for at-large city, got %v", findings)
	}
}

func TestFindingAffectedIDsPairwise(t *testing.T) {
	group := []boundary.NormalizedBoundary{
		countyBoundary("a", "state-x", squareMP(0, 0, 1, 1)),
		countyBoundary("b", "state-x", squareMP(1, 1, 2, 2)),
	}
	f := Finding{Subject: "a,b"}
	ids := f.AffectedIDs(group)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected [a b], got %v", ids)
	}
}

func TestFindingAffectedIDsLayerLevel(t *testing.T) {
	group := []boundary.NormalizedBoundary{
		countyBoundary("a", "state-x", squareMP(0, 0, 1, 1)),
		countyBoundary("b", "state-x", squareMP(1, 1, 2, 2)),
	}
	f := Finding{Subject: "state-x"}
	ids := f.AffectedIDs(group)
	if len(ids) != 2 {
		t.Fatalf("expected both boundaries quarantined for a layer-level finding, got %v", ids)
	}
}

func TestFindingAffectedIDsSingleBoundary(t *testing.T) {
	group := []boundary.NormalizedBoundary{
		countyBoundary("a", "state-x", squareMP(0, 0, 1, 1)),
		countyBoundary("b", "state-x", squareMP(1, 1, 2, 2)),
	}
	f := Finding{Subject: "a"}
	ids := f.AffectedIDs(group)
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("expected [a], got %v", ids)
	}
}
