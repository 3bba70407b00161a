// Package lookup implements point-in-district resolution (spec §4.7): a
// coarse spatial index over committed boundaries, and a Coordinator that
// answers "which district contains this point" with deadline propagation
// and deterministic tie-breaking. No spatial-indexing library (R-tree,
// quadtree, s2) appears anywhere in the retrieval pack (confirmed by
// grep over _examples/), so GridIndex is this module's one
// standard-library-only component — see DESIGN.md.
package lookup

import (
	"math"

	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
)

// cellSizeDeg is the grid cell edge length in degrees. ~0.1 degrees is
// roughly 11km at the equator — coarse enough to keep the index small,
// fine enough that most cells hold only a handful of candidate boundaries
// for municipal/county-scale layers.
const cellSizeDeg = 0.1

type cellKey struct {
	lat, lon int64
}

func cellFor(pt geometry.Point) cellKey {
	return cellKey{
		lat: int64(math.Floor(pt.Lat / cellSizeDeg)),
		lon: int64(math.Floor(pt.Lon / cellSizeDeg)),
	}
}

// entry pairs a boundary with its precomputed bounding box, so candidate
// filtering never re-walks geometry just to reject distant boundaries.
type entry struct {
	boundary boundary.NormalizedBoundary
	bbox     geometry.BBox
}

// GridIndex buckets boundaries into fixed-size lat/lon cells so a point
// query only needs to test the (typically few) boundaries whose bounding
// box overlaps the query point's cell, instead of every boundary in the
// layer.
type GridIndex struct {
	cells map[cellKey][]int
	all   []entry
}

// NewGridIndex builds a GridIndex over boundaries, bucketing each one
// into every cell its bounding box overlaps.
func NewGridIndex(engine geometry.SpatialEngine, boundaries []boundary.NormalizedBoundary) *GridIndex {
	idx := &GridIndex{cells: make(map[cellKey][]int), all: make([]entry, len(boundaries))}
	for i, b := range boundaries {
		bbox := engine.BoundingBox(b.Geometry)
		idx.all[i] = entry{boundary: b, bbox: bbox}

		minCell := cellFor(geometry.Point{Lat: bbox.MinLat, Lon: bbox.MinLon})
		maxCell := cellFor(geometry.Point{Lat: bbox.MaxLat, Lon: bbox.MaxLon})
		for lat := minCell.lat; lat <= maxCell.lat; lat++ {
			for lon := minCell.lon; lon <= maxCell.lon; lon++ {
				key := cellKey{lat: lat, lon: lon}
				idx.cells[key] = append(idx.cells[key], i)
			}
		}
	}
	return idx
}

// Candidates returns the boundaries whose bounding box might contain pt,
// deduplicated, without running the (more expensive) exact polygon test.
func (g *GridIndex) Candidates(pt geometry.Point) []boundary.NormalizedBoundary {
	key := cellFor(pt)
	idxs := g.cells[key]
	seen := make(map[int]bool, len(idxs))
	out := make([]boundary.NormalizedBoundary, 0, len(idxs))
	for _, i := range idxs {
		if seen[i] {
			continue
		}
		seen[i] = true
		if g.all[i].bbox.Contains(pt) {
			out = append(out, g.all[i].boundary)
		}
	}
	return out
}
