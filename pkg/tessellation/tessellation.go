// Package tessellation implements the containment, exclusivity, and
// exhaustivity validators of spec §4.3, run over a group of
// NormalizedBoundary records sharing a (jurisdiction, boundaryType) key,
// checked against that jurisdiction's own polygon.
package tessellation

import (
	"fmt"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
)

// Severity classifies a tessellation finding. Warn findings are recorded
// but do not block a commit; Fail findings quarantine the offending
// boundary or layer (spec §4.3).
type Severity string

const (
	SeverityValid Severity = "valid"
	SeverityWarn  Severity = "warn"
	SeverityFail  Severity = "fail"
)

// Finding is one tessellation check result against a single boundary or
// pair/group of boundaries.
type Finding struct {
	Severity Severity
	Err      error
	Subject  string // boundary id, "a,b" for a pairwise finding, or the jurisdiction name for a layer-level finding
}

// AffectedIDs returns the boundary ids within group that Subject names:
// a single id for a per-boundary finding, both ids for a pairwise
// exclusivity finding ("a,b"), or every id in group for a layer-level
// finding (exhaustivity, single-feature-municipal) whose Subject is the
// jurisdiction name rather than a boundary id.
func (f Finding) AffectedIDs(group []boundary.NormalizedBoundary) []string {
	for _, b := range group {
		if b.ID == f.Subject {
			return []string{f.Subject}
		}
	}
	if idx := indexOfByte(f.Subject, ','); idx >= 0 {
		return []string{f.Subject[:idx], f.Subject[idx+1:]}
	}
	ids := make([]string, len(group))
	for i, b := range group {
		ids[i] = b.ID
	}
	return ids
}

func indexOfByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Thresholds configures the numeric tolerances spec §4.3 leaves
// site-specific (consolidated jurisdictions, at-large cities, and the
// containment/exclusivity/exhaustivity area thresholds).
type Thresholds struct {
	// ContainmentMin is C_MIN: the minimum fraction (0..1) of a
	// boundary's area that must lie within the jurisdiction polygon.
	ContainmentMin float64
	// OverlapAbsM2 is E_MAX: the largest pairwise intersection area (m²)
	// tolerated before two boundaries are considered non-exclusive.
	OverlapAbsM2 float64
	// OverlapRelPct is E_REL: the largest pairwise intersection area,
	// expressed as a fraction (0..1) of the smaller polygon's own area,
	// tolerated as an alternative to OverlapAbsM2 (either threshold
	// clearing the overlap is sufficient).
	OverlapRelPct float64
	// CoverageMin is X_MIN: the minimum fraction (0..1) of the
	// jurisdiction polygon's area the group's boundaries must cover.
	CoverageMin float64
	// MaxGapPct is X_GAP: the largest uncovered fraction (0..1) of the
	// jurisdiction polygon's area tolerated before exhaustivity fails.
	MaxGapPct float64
	// ConsolidatedJurisdictions are (jurisdiction) names exempt from
	// containment (city-county mergers, where the municipal boundary
	// legitimately equals or exceeds the nominal jurisdiction polygon)
	// and from the multi-feature-per-municipal-layer expectation.
	ConsolidatedJurisdictions map[string]bool
	// AtLargeCities are jurisdictions where a single municipal-council
	// boundary is expected and not an error.
	AtLargeCities map[string]bool
}

// DefaultThresholds returns the spec §4.3 default tolerances (C_MIN=98%,
// E_MAX=1000m², E_REL=0.1%, X_MIN=99%, X_GAP=1%) with empty exception
// sets — callers load the real exception sets from pkg/config.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ContainmentMin:            0.98,
		OverlapAbsM2:              1000,
		OverlapRelPct:             0.001,
		CoverageMin:               0.99,
		MaxGapPct:                 0.01,
		ConsolidatedJurisdictions: map[string]bool{},
		AtLargeCities:             map[string]bool{},
	}
}

// Validate runs containment, exclusivity, exhaustivity, and the
// single-feature-municipal check over group, using engine for all
// geometric predicates and jurisdictionPolygon as the parent polygon
// group's boundaries are tested against. jurisdictionPolygon may be the
// zero value (no polygons) when no jurisdiction geometry is available;
// containment then only re-validates each boundary's geometry, and
// exhaustivity reports nothing.
func Validate(engine geometry.SpatialEngine, group []boundary.NormalizedBoundary, jurisdictionPolygon geometry.MultiPolygon, th Thresholds) []Finding {
	var findings []Finding
	findings = append(findings, checkContainment(engine, group, jurisdictionPolygon, th)...)
	findings = append(findings, checkExclusivity(engine, group, th)...)
	findings = append(findings, checkExhaustivity(engine, group, jurisdictionPolygon, th)...)
	findings = append(findings, checkSingleFeatureMunicipal(group, th)...)
	return findings
}

// checkContainment verifies each boundary's own geometry validates, then
// — unless the jurisdiction is a declared consolidated city-county or no
// jurisdiction polygon was supplied — that the boundary's centroid and
// ≥ th.ContainmentMin of its area lie within jurisdictionPolygon (spec
// §4.3).
func checkContainment(engine geometry.SpatialEngine, group []boundary.NormalizedBoundary, jurisdictionPolygon geometry.MultiPolygon, th Thresholds) []Finding {
	var out []Finding
	for _, b := range group {
		if err := b.Geometry.Validate(); err != nil {
			out = append(out, Finding{
				Severity: SeverityFail,
				Err:      fmt.Errorf("%w: %s", atlaserrors.ErrContainmentFailure, err),
				Subject:  b.ID,
			})
			continue
		}
		if th.ConsolidatedJurisdictions[b.Jurisdiction] || len(jurisdictionPolygon.Polygons) == 0 {
			continue
		}

		centroidInside := false
		for _, poly := range b.Geometry.Polygons {
			c := engine.Centroid(poly)
			for _, jp := range jurisdictionPolygon.Polygons {
				if engine.Contains(c, jp) {
					centroidInside = true
					break
				}
			}
			if centroidInside {
				break
			}
		}
		if !centroidInside {
			out = append(out, Finding{
				Severity: SeverityFail,
				Err:      fmt.Errorf("%w: %s centroid lies outside jurisdiction %s", atlaserrors.ErrContainmentFailure, b.ID, b.Jurisdiction),
				Subject:  b.ID,
			})
			continue
		}

		area := geometry.MultiPolygonAreaM2(b.Geometry)
		if area <= 0 {
			continue
		}
		var inside float64
		for _, poly := range b.Geometry.Polygons {
			for _, jp := range jurisdictionPolygon.Polygons {
				inside += engine.IntersectionAreaM2(poly, jp)
			}
		}
		frac := inside / area
		if frac < th.ContainmentMin {
			out = append(out, Finding{
				Severity: SeverityFail,
				Err:      fmt.Errorf("%w: %s only %.2f%% inside jurisdiction %s (need >= %.2f%%)", atlaserrors.ErrContainmentFailure, b.ID, frac*100, b.Jurisdiction, th.ContainmentMin*100),
				Subject:  b.ID,
			})
		}
	}
	return out
}

// checkExclusivity flags any pair of boundaries in group whose pairwise
// overlap clears neither E_MAX (th.OverlapAbsM2) nor E_REL
// (th.OverlapRelPct of the smaller polygon's area): clearing either
// tolerance is accepted outright (floating-point edge rounding), an
// overlap up to twice the clearing tolerance is accepted with a warning,
// and anything beyond that fails (spec §4.3).
func checkExclusivity(engine geometry.SpatialEngine, group []boundary.NormalizedBoundary, th Thresholds) []Finding {
	var out []Finding
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := group[i], group[j]
			bboxA := engine.BoundingBox(a.Geometry)
			bboxB := engine.BoundingBox(b.Geometry)
			if !bboxA.Intersects(bboxB) {
				continue
			}
			var overlap float64
			for _, pa := range a.Geometry.Polygons {
				for _, pb := range b.Geometry.Polygons {
					overlap += engine.IntersectionAreaM2(pa, pb)
				}
			}
			if overlap <= 0 {
				continue
			}

			areaA := geometry.MultiPolygonAreaM2(a.Geometry)
			areaB := geometry.MultiPolygonAreaM2(b.Geometry)
			smaller := areaA
			if areaB < smaller {
				smaller = areaB
			}
			tolerance := th.OverlapAbsM2
			if relTolerance := smaller * th.OverlapRelPct; relTolerance > tolerance {
				tolerance = relTolerance
			}
			if overlap <= tolerance {
				continue
			}

			severity := SeverityFail
			if overlap <= 2*tolerance {
				severity = SeverityWarn
			}
			out = append(out, Finding{
				Severity: severity,
				Err:      fmt.Errorf("%w: %s/%s overlap %.1fm2 exceeds tolerance %.1fm2 (E_MAX=%.1fm2, E_REL=%.3f%% of %.1fm2)", atlaserrors.ErrExclusivityFailure, a.ID, b.ID, overlap, tolerance, th.OverlapAbsM2, th.OverlapRelPct*100, smaller),
				Subject:  a.ID + "," + b.ID,
			})
		}
	}
	return out
}

// checkExhaustivity verifies group's boundaries cover ≥ th.CoverageMin of
// jurisdictionPolygon's area, with uncovered remainder ≤ th.MaxGapPct
// (spec §4.3). Union area is approximated by two-term
// inclusion-exclusion (sum of areas minus sum of pairwise overlaps) —
// exact for a tessellation, a safe underestimate whenever three or more
// boundaries share a single point, which a correctly-partitioned layer
// never does at more than negligible measure. Returns no findings when
// jurisdictionPolygon is unavailable.
func checkExhaustivity(engine geometry.SpatialEngine, group []boundary.NormalizedBoundary, jurisdictionPolygon geometry.MultiPolygon, th Thresholds) []Finding {
	if len(group) == 0 || len(jurisdictionPolygon.Polygons) == 0 {
		return nil
	}

	jurisdictionArea := geometry.MultiPolygonAreaM2(jurisdictionPolygon)
	if jurisdictionArea <= 0 {
		return nil
	}

	var sumAreas float64
	for _, b := range group {
		sumAreas += geometry.MultiPolygonAreaM2(b.Geometry)
	}

	var sumPairwiseOverlap float64
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			for _, pa := range group[i].Geometry.Polygons {
				for _, pb := range group[j].Geometry.Polygons {
					sumPairwiseOverlap += engine.IntersectionAreaM2(pa, pb)
				}
			}
		}
	}

	unionArea := sumAreas - sumPairwiseOverlap
	if unionArea < 0 {
		unionArea = 0
	}
	coverage := unionArea / jurisdictionArea
	gap := 1 - coverage
	if gap < 0 {
		gap = 0
	}

	if coverage >= th.CoverageMin && gap <= th.MaxGapPct {
		return nil
	}
	return []Finding{{
		Severity: SeverityFail,
		Err:      fmt.Errorf("%w: %s covers %.2f%% of jurisdiction area (need >= %.2f%%, gap <= %.2f%%, actual gap %.2f%%)", atlaserrors.ErrExhaustivityFailure, group[0].Jurisdiction, coverage*100, th.CoverageMin*100, th.MaxGapPct*100, gap*100),
		Subject:  group[0].Jurisdiction,
	}}
}

// checkSingleFeatureMunicipal flags a municipal-council or ward layer
// with exactly one feature, unless the jurisdiction is a declared
// at-large city or a consolidated city-county (spec §4.3 edge case
// E-municipal).
func checkSingleFeatureMunicipal(group []boundary.NormalizedBoundary, th Thresholds) []Finding {
	if len(group) != 1 {
		return nil
	}
	b := group[0]
	if b.BoundaryType != boundary.MunicipalCouncil && b.BoundaryType != boundary.Ward {
		return nil
	}
	if th.AtLargeCities[b.Jurisdiction] || th.ConsolidatedJurisdictions[b.Jurisdiction] {
		return nil
	}
	return []Finding{{
		Severity: SeverityFail,
		Err:      fmt.Errorf("%w: %s", atlaserrors.ErrSingleFeatureMunicipal, b.Jurisdiction),
		Subject:  b.Jurisdiction,
	}}
}

// HasFailures reports whether any finding in findings is a Fail.
func HasFailures(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityFail {
			return true
		}
	}
	return false
}
