// Package geometry implements the WGS84 polygon types and the planar
// SpatialEngine spec.md treats as "opaque geometry handed to an external
// spatial library" (§1 Non-goals). No GIS library appears anywhere in the
// retrieval pack (see DESIGN.md), so this package ships one concrete
// implementation — shoelace area/centroid, ray-casting containment,
// Sutherland–Hodgman clipping for intersection area — behind the
// SpatialEngine interface, so a real GIS library could be substituted
// without touching pkg/tessellation or pkg/lookup.
package geometry

import (
	"fmt"
	"math"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
)

// Point is a WGS84 coordinate pair (degrees).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Ring is a closed linear ring: Points[0] == Points[len(Points)-1].
type Ring struct {
	Points []Point `json:"points"`
}

// Polygon is one exterior ring plus zero or more interior holes.
type Polygon struct {
	Rings []Ring `json:"rings"` // Rings[0] is exterior; Rings[1:] are holes.
}

// MultiPolygon is an ordered collection of polygons. A single Polygon is
// represented as a MultiPolygon with one element so geometry.MultiPolygon
// is the one type hash_geometry and the containment checks need to know
// about (spec §3: "geometry: Polygon|MultiPolygon").
type MultiPolygon struct {
	Polygons []Polygon `json:"polygons"`
}

// Exterior returns the exterior ring of p.
func (p Polygon) Exterior() Ring {
	if len(p.Rings) == 0 {
		return Ring{}
	}
	return p.Rings[0]
}

// Holes returns p's interior rings.
func (p Polygon) Holes() []Ring {
	if len(p.Rings) <= 1 {
		return nil
	}
	return p.Rings[1:]
}

// BBox is an axis-aligned bounding box in WGS84 degrees.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Contains reports whether pt lies within b (inclusive).
func (b BBox) Contains(pt Point) bool {
	return pt.Lat >= b.MinLat && pt.Lat <= b.MaxLat && pt.Lon >= b.MinLon && pt.Lon <= b.MaxLon
}

// Intersects reports whether b and o overlap.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat && b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// Validate checks I1/I2: finite, in-range coordinates, closed rings with
// at least 4 points. It does not fix winding — see FixWinding.
func (mp MultiPolygon) Validate() error {
	if len(mp.Polygons) == 0 {
		return fmt.Errorf("%w: empty geometry", atlaserrors.ErrDegenerateGeometry)
	}
	for pi, poly := range mp.Polygons {
		if len(poly.Rings) == 0 {
			return fmt.Errorf("%w: polygon %d has no rings", atlaserrors.ErrDegenerateGeometry, pi)
		}
		for ri, ring := range poly.Rings {
			if err := validateRing(ring); err != nil {
				return fmt.Errorf("polygon %d ring %d: %w", pi, ri, err)
			}
		}
	}
	return nil
}

func validateRing(r Ring) error {
	if len(r.Points) < 4 {
		return fmt.Errorf("%w: ring has %d points, need >= 4", atlaserrors.ErrDegenerateGeometry, len(r.Points))
	}
	first, last := r.Points[0], r.Points[len(r.Points)-1]
	if first.Lat != last.Lat || first.Lon != last.Lon {
		return fmt.Errorf("%w: ring is not closed", atlaserrors.ErrDegenerateGeometry)
	}
	for _, pt := range r.Points {
		if math.IsNaN(pt.Lat) || math.IsNaN(pt.Lon) || math.IsInf(pt.Lat, 0) || math.IsInf(pt.Lon, 0) {
			return fmt.Errorf("%w: non-finite coordinate", atlaserrors.ErrCoordinateRange)
		}
		if pt.Lon < -180 || pt.Lon > 180 || pt.Lat < -90 || pt.Lat > 90 {
			return fmt.Errorf("%w: (%f, %f) outside [-180,180]x[-90,90]", atlaserrors.ErrCoordinateRange, pt.Lat, pt.Lon)
		}
	}
	return nil
}

// DedupConsecutive removes consecutive duplicate points from r, preserving
// closure. Used by the normalizer (spec §4.2 rule 3) before the <4-point
// degenerate check.
func DedupConsecutive(r Ring) Ring {
	if len(r.Points) == 0 {
		return r
	}
	out := make([]Point, 0, len(r.Points))
	out = append(out, r.Points[0])
	for _, pt := range r.Points[1:] {
		prev := out[len(out)-1]
		if prev.Lat == pt.Lat && prev.Lon == pt.Lon {
			continue
		}
		out = append(out, pt)
	}
	return Ring{Points: out}
}

// SignedArea returns the shoelace signed area of r in (degree^2), positive
// for counter-clockwise rings. Used both to fix winding (RFC 7946: exterior
// CCW, holes CW) and to compute polygon area.
func SignedArea(r Ring) float64 {
	if len(r.Points) < 4 {
		return 0
	}
	var sum float64
	pts := r.Points
	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		sum += a.Lon*b.Lat - b.Lon*a.Lat
	}
	return sum / 2
}

// IsCCW reports whether r is wound counter-clockwise.
func IsCCW(r Ring) bool {
	return SignedArea(r) > 0
}

// Reversed returns r with its point order reversed (flips winding).
func Reversed(r Ring) Ring {
	pts := make([]Point, len(r.Points))
	for i, p := range r.Points {
		pts[len(pts)-1-i] = p
	}
	return Ring{Points: pts}
}

// FixWinding enforces RFC 7946 winding: exterior rings counter-clockwise,
// holes clockwise (spec §4.2 rule 2).
func FixWinding(p Polygon) Polygon {
	if len(p.Rings) == 0 {
		return p
	}
	out := Polygon{Rings: make([]Ring, len(p.Rings))}
	ext := p.Rings[0]
	if !IsCCW(ext) {
		ext = Reversed(ext)
	}
	out.Rings[0] = ext
	for i, hole := range p.Rings[1:] {
		if IsCCW(hole) {
			hole = Reversed(hole)
		}
		out.Rings[i+1] = hole
	}
	return out
}

// areaDegSqToM2 converts an approximate degree^2 planar area to square
// meters at the given reference latitude, using the local meters-per-degree
// scale (accurate enough for the municipal/county scale tessellation
// thresholds operate at — these are not geodesic-precision computations).
func areaDegSqToM2(areaDeg2, refLat float64) float64 {
	const metersPerDegLat = 111_320.0
	metersPerDegLon := metersPerDegLat * math.Cos(refLat*math.Pi/180)
	return math.Abs(areaDeg2) * metersPerDegLat * metersPerDegLon
}

// PolygonAreaM2 returns p's area in square meters (exterior minus holes).
func PolygonAreaM2(p Polygon) float64 {
	if len(p.Rings) == 0 {
		return 0
	}
	ext := p.Rings[0]
	refLat := centroidLat(ext)
	area := math.Abs(SignedArea(ext))
	for _, hole := range p.Holes() {
		area -= math.Abs(SignedArea(hole))
	}
	if area < 0 {
		area = 0
	}
	return areaDegSqToM2(area, refLat)
}

// MultiPolygonAreaM2 sums the area of every constituent polygon.
func MultiPolygonAreaM2(mp MultiPolygon) float64 {
	var total float64
	for _, p := range mp.Polygons {
		total += PolygonAreaM2(p)
	}
	return total
}

func centroidLat(r Ring) float64 {
	if len(r.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range r.Points {
		sum += p.Lat
	}
	return sum / float64(len(r.Points))
}

// Centroid returns the area-weighted centroid of the exterior ring of p
// (holes are ignored: the spec's containment check only needs a
// representative interior point, spec §4.3).
func Centroid(p Polygon) Point {
	ext := p.Exterior()
	pts := ext.Points
	if len(pts) < 4 {
		return Point{}
	}
	var cx, cy, areaAcc float64
	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		cross := a.Lon*b.Lat - b.Lon*a.Lat
		areaAcc += cross
		cx += (a.Lon + b.Lon) * cross
		cy += (a.Lat + b.Lat) * cross
	}
	if areaAcc == 0 {
		return averagePoint(pts)
	}
	areaAcc /= 2
	cx /= (6 * areaAcc)
	cy /= (6 * areaAcc)
	return Point{Lat: cy, Lon: cx}
}

func averagePoint(pts []Point) Point {
	var lat, lon float64
	for _, p := range pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pts))
	return Point{Lat: lat / n, Lon: lon / n}
}

// BoundingBox returns mp's axis-aligned bounding box.
func BoundingBox(mp MultiPolygon) BBox {
	b := BBox{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
	for _, poly := range mp.Polygons {
		for _, ring := range poly.Rings {
			for _, pt := range ring.Points {
				b.MinLat = math.Min(b.MinLat, pt.Lat)
				b.MaxLat = math.Max(b.MaxLat, pt.Lat)
				b.MinLon = math.Min(b.MinLon, pt.Lon)
				b.MaxLon = math.Max(b.MaxLon, pt.Lon)
			}
		}
	}
	return b
}

// PointInRing reports whether pt is inside ring using the standard
// even-odd ray-casting test.
func PointInRing(pt Point, ring Ring) bool {
	pts := ring.Points
	inside := false
	n := len(pts)
	if n < 4 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := pts[i], pts[j]
		if (pi.Lat > pt.Lat) != (pj.Lat > pt.Lat) {
			lonAtLat := (pj.Lon-pi.Lon)*(pt.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lon
			if pt.Lon < lonAtLat {
				inside = !inside
			}
		}
	}
	return inside
}

// PointInPolygon reports whether pt is inside p: inside the exterior ring
// and outside every hole.
func PointInPolygon(pt Point, p Polygon) bool {
	if len(p.Rings) == 0 {
		return false
	}
	if !PointInRing(pt, p.Rings[0]) {
		return false
	}
	for _, hole := range p.Holes() {
		if PointInRing(pt, hole) {
			return false
		}
	}
	return true
}

// PointInMultiPolygon reports whether pt is inside any constituent polygon.
func PointInMultiPolygon(pt Point, mp MultiPolygon) bool {
	for _, p := range mp.Polygons {
		if PointInPolygon(pt, p) {
			return true
		}
	}
	return false
}
