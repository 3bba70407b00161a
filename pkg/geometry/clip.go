package geometry

import "math"

// SpatialEngine is the interface pkg/tessellation and pkg/lookup program
// against. The planar implementation in this package is the only
// implementation shipped, but any component that needs containment,
// intersection, or area could be handed a different engine (e.g. backed
// by a real GIS library) without changes elsewhere.
type SpatialEngine interface {
	AreaM2(p Polygon) float64
	Centroid(p Polygon) Point
	Contains(pt Point, p Polygon) bool
	IntersectionAreaM2(a, b Polygon) float64
	BoundingBox(mp MultiPolygon) BBox
}

// PlanarEngine is the concrete SpatialEngine shipped with this module
// (shoelace area, ray-casting containment, Sutherland–Hodgman clipping).
type PlanarEngine struct{}

func (PlanarEngine) AreaM2(p Polygon) float64                     { return PolygonAreaM2(p) }
func (PlanarEngine) Centroid(p Polygon) Point                     { return Centroid(p) }
func (PlanarEngine) Contains(pt Point, p Polygon) bool            { return PointInPolygon(pt, p) }
func (PlanarEngine) BoundingBox(mp MultiPolygon) BBox             { return BoundingBox(mp) }
func (e PlanarEngine) IntersectionAreaM2(a, b Polygon) float64    { return IntersectionAreaM2(a, b) }

// clipPoint is a 2-D point in (lon, lat) order, matching the convention
// SignedArea uses for the shoelace formula.
type clipPoint struct{ x, y float64 }

func ringToClip(r Ring) []clipPoint {
	// Drop the closing duplicate point; Sutherland-Hodgman re-closes
	// implicitly by wrapping around the slice.
	pts := r.Points
	if len(pts) == 0 {
		return nil
	}
	n := len(pts) - 1
	out := make([]clipPoint, n)
	for i := 0; i < n; i++ {
		out[i] = clipPoint{x: pts[i].Lon, y: pts[i].Lat}
	}
	return out
}

func clipToRing(pts []clipPoint) Ring {
	if len(pts) == 0 {
		return Ring{}
	}
	out := make([]Point, 0, len(pts)+1)
	for _, p := range pts {
		out = append(out, Point{Lat: p.y, Lon: p.x})
	}
	out = append(out, out[0])
	return Ring{Points: out}
}

func clipArea(pts []clipPoint) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	n := len(pts)
	for i := 0; i < n; i++ {
		a := pts[i]
		b := pts[(i+1)%n]
		sum += a.x*b.y - b.x*a.y
	}
	return math.Abs(sum) / 2
}

// side is >0 left of edge (lo->hi), <0 right, 0 on the line, matching the
// orientation of a CCW-wound clip polygon.
func side(lo, hi, p clipPoint) float64 {
	return (hi.x-lo.x)*(p.y-lo.y) - (hi.y-lo.y)*(p.x-lo.x)
}

func lineIntersect(a, b, lo, hi clipPoint) clipPoint {
	a1 := side(lo, hi, a)
	a2 := side(lo, hi, b)
	t := a1 / (a1 - a2)
	return clipPoint{x: a.x + t*(b.x-a.x), y: a.y + t*(b.y-a.y)}
}

// clipPolygon clips subject against every edge of clipPoly in turn using
// the Sutherland-Hodgman algorithm. clipPoly must be
// CCW-wound for the inside test to be correct, which is guaranteed for
// exterior rings by FixWinding.
func clipPolygon(subject, clipPoly []clipPoint) []clipPoint {
	output := subject
	n := len(clipPoly)
	for i := 0; i < n && len(output) > 0; i++ {
		lo := clipPoly[i]
		hi := clipPoly[(i+1)%n]

		input := output
		output = nil
		if len(input) == 0 {
			break
		}
		prev := input[len(input)-1]
		prevInside := side(lo, hi, prev) >= 0
		for _, cur := range input {
			curInside := side(lo, hi, cur) >= 0
			switch {
			case curInside && prevInside:
				output = append(output, cur)
			case curInside && !prevInside:
				output = append(output, lineIntersect(prev, cur, lo, hi), cur)
			case !curInside && prevInside:
				output = append(output, lineIntersect(prev, cur, lo, hi))
			}
			prev = cur
			prevInside = curInside
		}
	}
	return output
}

// IntersectionAreaM2 returns the area of a ∩ b (exterior rings only — a
// sufficient approximation for the exclusivity check, spec §4.3, whose
// thresholds are on the order of 1000 m² against boundaries with
// negligible hole area near their border). Holes are intentionally
// ignored here; a future revision could clip against each hole too.
func IntersectionAreaM2(a, b Polygon) float64 {
	subj := ringToClip(a.Exterior())
	clip := ringToClip(b.Exterior())
	if len(subj) < 3 || len(clip) < 3 {
		return 0
	}
	clipped := clipPolygon(subj, clip)
	areaDeg2 := clipArea(clipped)
	if areaDeg2 == 0 {
		return 0
	}
	refLat := centroidLat(a.Exterior())
	return areaDegSqToM2(areaDeg2, refLat)
}
