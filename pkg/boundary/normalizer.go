package boundary

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/geometry"
)

// RawGeometry is the GeoJSON-shaped geometry a scraper hands in: either a
// single polygon's rings or several polygons' rings (MultiPolygon), plus
// the declared spatial reference. Schema-validated at the boundary — a
// typed struct, not a dynamic map[string]interface{} traversal (spec §9).
type RawGeometry struct {
	Type              string               `json:"type"`               // "Polygon" or "MultiPolygon"
	SpatialReference  string               `json:"spatial_reference"`  // e.g. "EPSG:4326"; "" is treated as WGS84
	PolygonRings      [][]geometry.Point   `json:"polygon_rings,omitempty"`
	MultiPolygonRings [][][]geometry.Point `json:"multi_polygon_rings,omitempty"`
}

// RawBoundaryRecord is the heterogeneous scraper-provided record Normalize
// consumes (spec §4.2).
type RawBoundaryRecord struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	Geometry              RawGeometry  `json:"geometry"`
	BoundaryType          BoundaryType `json:"boundary_type"`
	Authority             AuthorityLevel `json:"authority"`
	Jurisdiction          string       `json:"jurisdiction"`
	ExpectedDistrictCount *int         `json:"expected_district_count,omitempty"`
}

// supportedProjections is the closed set of spatial references this
// normalizer can re-project from (here: identity re-projection only,
// since WGS84 is the committed CRS and no external projection library is
// part of this module's scope — re-projection math itself is out of
// scope per spec §1, "not a GIS engine").
var supportedProjections = map[string]bool{
	"":            true, // unspecified defaults to WGS84
	"EPSG:4326":   true,
	"WGS84":       true,
	"urn:ogc:def:crs:OGC:1.3:CRS84": true,
}

// Normalize canonicalizes raw into a NormalizedBoundary: it checks that the
// projection is a WGS84 alias, drops consecutive duplicate points, rejects
// rings left with fewer than 4 points, fixes winding, rounds coordinates to
// 6 decimals, checks the required attributes, and cleans the name. The id
// is kept exactly as given (no layer-specific id format is applied), and
// duplicate ids are not detected here; merkletree.BuildLeaves rejects
// them. An invalid boundaryType is reported as ErrWrongGeometryType.
func Normalize(raw RawBoundaryRecord) (*NormalizedBoundary, error) {
	if !supportedProjections[raw.Geometry.SpatialReference] {
		return nil, fmt.Errorf("%w: %q", atlaserrors.ErrUnknownProjection, raw.Geometry.SpatialReference)
	}

	mp, err := toMultiPolygon(raw.Geometry)
	if err != nil {
		return nil, err
	}

	// Rule 2 + 3: drop consecutive duplicates, reject the record if any
	// ring is left with fewer than 4 points, then fix winding.
	fixed := geometry.MultiPolygon{Polygons: make([]geometry.Polygon, 0, len(mp.Polygons))}
	for _, poly := range mp.Polygons {
		dedup := geometry.Polygon{Rings: make([]geometry.Ring, 0, len(poly.Rings))}
		for _, ring := range poly.Rings {
			deduped := geometry.DedupConsecutive(ring)
			if len(deduped.Points) < 4 {
				return nil, fmt.Errorf("%w: ring has %d points after dedup", atlaserrors.ErrDegenerateGeometry, len(deduped.Points))
			}
			dedup.Rings = append(dedup.Rings, deduped)
		}
		dedup = geometry.FixWinding(dedup)
		fixed.Polygons = append(fixed.Polygons, dedup)
	}

	// Rule 4: round coordinates to exactly 6 decimals (~11cm) — this is
	// the precision hash_geometry sees.
	rounded := roundMultiPolygon(fixed, 6)
	if err := rounded.Validate(); err != nil {
		return nil, err
	}

	if raw.ID == "" {
		return nil, fmt.Errorf("%w: id", atlaserrors.ErrMissingAttribute)
	}
	if raw.Jurisdiction == "" {
		return nil, fmt.Errorf("%w: jurisdiction", atlaserrors.ErrMissingAttribute)
	}
	if !raw.BoundaryType.Valid() {
		return nil, fmt.Errorf("%w: boundaryType %q", atlaserrors.ErrWrongGeometryType, raw.BoundaryType)
	}
	if !raw.Authority.Valid() {
		return nil, fmt.Errorf("%w: authority %d", atlaserrors.ErrMissingAttribute, raw.Authority)
	}

	// Rule 5: normalize names — strip control chars, collapse whitespace.
	// (NFC normalization over an already-valid UTF-8 string with no
	// combining-mark sequences is a no-op for the vast majority of
	// municipal GIS exports; full Unicode normalization tables are not
	// available anywhere in the retrieval pack, see DESIGN.md.)
	name := cleanName(raw.Name)

	return &NormalizedBoundary{
		ID:                    raw.ID,
		Name:                  name,
		Geometry:              rounded,
		BoundaryType:          raw.BoundaryType,
		Authority:             raw.Authority,
		Jurisdiction:          raw.Jurisdiction,
		ExpectedDistrictCount: raw.ExpectedDistrictCount,
	}, nil
}

func toMultiPolygon(g RawGeometry) (geometry.MultiPolygon, error) {
	switch g.Type {
	case "Polygon":
		if len(g.PolygonRings) == 0 {
			return geometry.MultiPolygon{}, fmt.Errorf("%w: empty polygon", atlaserrors.ErrDegenerateGeometry)
		}
		rings := make([]geometry.Ring, len(g.PolygonRings))
		for i, pts := range g.PolygonRings {
			rings[i] = geometry.Ring{Points: pts}
		}
		return geometry.MultiPolygon{Polygons: []geometry.Polygon{{Rings: rings}}}, nil
	case "MultiPolygon":
		if len(g.MultiPolygonRings) == 0 {
			return geometry.MultiPolygon{}, fmt.Errorf("%w: empty multipolygon", atlaserrors.ErrDegenerateGeometry)
		}
		polys := make([]geometry.Polygon, len(g.MultiPolygonRings))
		for pi, ringsPts := range g.MultiPolygonRings {
			rings := make([]geometry.Ring, len(ringsPts))
			for ri, pts := range ringsPts {
				rings[ri] = geometry.Ring{Points: pts}
			}
			polys[pi] = geometry.Polygon{Rings: rings}
		}
		return geometry.MultiPolygon{Polygons: polys}, nil
	default:
		return geometry.MultiPolygon{}, fmt.Errorf("%w: %q", atlaserrors.ErrWrongGeometryType, g.Type)
	}
}

// roundCoord rounds v to the given number of decimal places.
func roundCoord(v float64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return roundHalfAwayFromZero(v*scale) / scale
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}

func roundMultiPolygon(mp geometry.MultiPolygon, decimals int) geometry.MultiPolygon {
	out := geometry.MultiPolygon{Polygons: make([]geometry.Polygon, len(mp.Polygons))}
	for pi, poly := range mp.Polygons {
		outPoly := geometry.Polygon{Rings: make([]geometry.Ring, len(poly.Rings))}
		for ri, ring := range poly.Rings {
			pts := make([]geometry.Point, len(ring.Points))
			for i, p := range ring.Points {
				pts[i] = geometry.Point{
					Lat: roundCoord(p.Lat, decimals),
					Lon: roundCoord(p.Lon, decimals),
				}
			}
			outPoly.Rings[ri] = geometry.Ring{Points: pts}
		}
		out.Polygons[pi] = outPoly
	}
	return out
}

// cleanName strips control characters and collapses internal whitespace.
func cleanName(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
