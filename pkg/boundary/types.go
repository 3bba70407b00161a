// Package boundary defines the closed-set BoundaryType/AuthorityLevel
// variants and the NormalizedBoundary record (spec §3), and implements the
// BoundaryNormalizer (spec §4.2) that turns a heterogeneous scraper record
// into one.
package boundary

import "fmt"

// BoundaryType is a closed-set tagged variant used as a collision-
// prevention domain tag in the leaf hash (spec §3). It is a Go
// string-backed enum with a single dispatch table (Tag), not an
// interface hierarchy — the class-hierarchy-of-strategies pattern spec §9
// calls out for re-architecture.
type BoundaryType string

const (
	Congressional       BoundaryType = "congressional-district"
	StateLegislativeUpper BoundaryType = "state-legislative-upper"
	StateLegislativeLower BoundaryType = "state-legislative-lower"
	County               BoundaryType = "county"
	MunicipalCouncil     BoundaryType = "municipal-council"
	Ward                 BoundaryType = "ward"
)

// tagValues assigns each BoundaryType an injective small integer used as
// the Fr domain tag in the leaf hash (spec §4.4). Values are stable across
// releases — changing one would silently reclassify every existing leaf.
var tagValues = map[BoundaryType]int64{
	Congressional:         1,
	StateLegislativeUpper: 2,
	StateLegislativeLower: 3,
	County:                4,
	MunicipalCouncil:      5,
	Ward:                  6,
}

// Tag returns the injective Fr domain tag for t, or an error if t is not
// one of the closed-set values.
func (t BoundaryType) Tag() (int64, error) {
	v, ok := tagValues[t]
	if !ok {
		return 0, fmt.Errorf("boundary: unknown boundary type %q", string(t))
	}
	return v, nil
}

// Valid reports whether t is a member of the closed set.
func (t BoundaryType) Valid() bool {
	_, ok := tagValues[t]
	return ok
}

// AuthorityLevel encodes the governing body publishing a boundary, 1
// (federal) through 5 (municipal) — spec §3. Included in the leaf hash so
// identical geometry from different authorities hashes differently.
type AuthorityLevel int

const (
	AuthorityFederal   AuthorityLevel = 1
	AuthorityState     AuthorityLevel = 2
	AuthorityCounty    AuthorityLevel = 3
	AuthorityCity      AuthorityLevel = 4
	AuthorityMunicipal AuthorityLevel = 5
)

// Valid reports whether a is in [1, 5].
func (a AuthorityLevel) Valid() bool {
	return a >= AuthorityFederal && a <= AuthorityMunicipal
}
