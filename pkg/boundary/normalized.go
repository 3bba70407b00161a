package boundary

import "github.com/shadowatlas/commitment/pkg/geometry"

// NormalizedBoundary is the immutable, canonicalized record produced by
// Normalize. Ownership: produced by the normalizer, owned by the
// in-memory snapshot-under-construction, immutable thereafter (spec §3).
type NormalizedBoundary struct {
	ID                   string
	Name                 string
	Geometry             geometry.MultiPolygon
	BoundaryType         BoundaryType
	Authority            AuthorityLevel
	Jurisdiction         string
	ExpectedDistrictCount *int
}

// Key identifies b within its (jurisdiction, boundaryType) group, where
// I3 requires uniqueness.
func (b NormalizedBoundary) Key() (jurisdiction string, boundaryType BoundaryType, id string) {
	return b.Jurisdiction, b.BoundaryType, b.ID
}
