// Package integrity implements the post-commit sanity sweep of spec §4.6:
// re-checking committed geometry, comparing against declared expected
// counts, flagging cross-source discrepancies, and validating snapshot
// self-consistency. Check runs against a built Snapshot and returns a
// Report instead of an error; the caller decides what an invalid report
// means (cmd/snapshot runs it before writing and refuses to publish when
// the report is invalid).
package integrity

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/snapshot"
	"github.com/shadowatlas/commitment/pkg/tessellation"
)

// Report is the outcome of a Check run: Valid is false if any Errors were
// recorded; Warnings never affect Valid.
type Report struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Report) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Report) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ExpectedCounts maps a (jurisdiction, boundaryType) key to the number of
// features a data source declares should exist, used to catch silent
// drops during ingest.
type ExpectedCounts map[string]int

// Key formats the lookup key ExpectedCounts uses.
func Key(jurisdiction string, bt boundary.BoundaryType) string {
	return jurisdiction + "/" + string(bt)
}

// Check runs the full integrity sweep: re-validating every boundary's
// geometry, re-running tessellation over each (jurisdiction, boundaryType)
// group against its jurisdiction polygon, comparing group sizes against
// expected, and checking the snapshot's own self-consistency (leaf count
// vs. declared count). jurisdictionPolygons maps a jurisdiction name to
// its parent polygon; a jurisdiction missing from the map degrades
// tessellation.Validate's containment/exhaustivity checks rather than
// failing the whole sweep (see pkg/tessellation.Validate).
func Check(log zerolog.Logger, engine geometry.SpatialEngine, snap snapshot.Snapshot, boundaries []boundary.NormalizedBoundary, expected ExpectedCounts, jurisdictionPolygons map[string]geometry.MultiPolygon, th tessellation.Thresholds) Report {
	report := Report{Valid: true}

	if snap.LeafCount != len(snap.Leaves) {
		report.addError("%v: declared leaf_count %d != %d leaf records", atlaserrors.ErrMalformedSnapshot, snap.LeafCount, len(snap.Leaves))
	}

	groups := groupByKey(boundaries)
	for key, group := range groups {
		for _, b := range group {
			if err := b.Geometry.Validate(); err != nil {
				report.addError("%s: geometry re-check failed: %v", b.ID, err)
			}
		}

		findings := tessellation.Validate(engine, group, jurisdictionPolygons[group[0].Jurisdiction], th)
		for _, f := range findings {
			if f.Severity == tessellation.SeverityFail {
				report.addError("%s: %v", f.Subject, f.Err)
			} else if f.Severity == tessellation.SeverityWarn {
				report.addWarning("%s: %v", f.Subject, f.Err)
			}
		}

		if want, ok := expected[key]; ok && want != len(group) {
			report.addError("%v: %s expected %d boundaries, committed %d", atlaserrors.ErrBoundaryCountMismatch, key, want, len(group))
		}
	}

	if len(boundaries) != snap.LeafCount {
		report.addError("%v: %d normalized boundaries but snapshot commits %d leaves", atlaserrors.ErrBoundaryCountMismatch, len(boundaries), snap.LeafCount)
	}

	log.Info().
		Bool("valid", report.Valid).
		Int("errors", len(report.Errors)).
		Int("warnings", len(report.Warnings)).
		Str("snapshot_id", snap.ID).
		Msg("integrity check complete")

	return report
}

func groupByKey(boundaries []boundary.NormalizedBoundary) map[string][]boundary.NormalizedBoundary {
	groups := make(map[string][]boundary.NormalizedBoundary)
	for _, b := range boundaries {
		key := Key(b.Jurisdiction, b.BoundaryType)
		groups[key] = append(groups[key], b)
	}
	return groups
}

// CrossSourceDiscrepancy compares the total planar areas of two
// independently-sourced geometries for the same boundary and returns
// ErrCrossSourceDiscrepancy when they differ by more than maxDeltaM2. It
// does not compare bounding boxes, positions or names, and the engine
// argument is unused.
func CrossSourceDiscrepancy(_ geometry.SpatialEngine, a, b geometry.MultiPolygon, maxDeltaM2 float64) error {
	areaA := geometry.MultiPolygonAreaM2(a)
	areaB := geometry.MultiPolygonAreaM2(b)
	delta := absF(areaA - areaB)
	if delta > maxDeltaM2 {
		return fmt.Errorf("%w: footprint delta %.1fm2 exceeds %.1fm2", atlaserrors.ErrCrossSourceDiscrepancy, delta, maxDeltaM2)
	}
	return nil
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
