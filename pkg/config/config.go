// Package config validates the recognized runtime options of spec §6,
// generalizing the teacher's config/constants.go compile-time constants
// into a runtime struct with startup-time rejection of anything
// malformed — an unrecognized Poseidon2 variant or an out-of-range depth
// must fail fast, never silently fall back (spec §6: "unrecognized
// options are a startup error, not a warning").
package config

import (
	"fmt"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
)

// PoseidonVariant is the closed set of supported Poseidon2
// parameterizations. Only one is defined (bn254-width3-v1), and Validate
// rejects every other value the same way.
type PoseidonVariant string

const (
	VariantBN254Width3V1 PoseidonVariant = "bn254-width3-v1"
)

var supportedVariants = map[PoseidonVariant]bool{
	VariantBN254Width3V1: true,
}

// Config is the validated set of options spec §6 recognizes for a
// commitment engine deployment.
type Config struct {
	// MerkleDepth is the fixed tree depth every snapshot commits at.
	// Changing it across snapshots is a breaking change for any
	// consumer with cached inclusion proofs (spec §4.4).
	MerkleDepth int

	// PoseidonVariant pins the hash parameterization. Must be a member
	// of supportedVariants.
	PoseidonVariant PoseidonVariant

	// GeometryPrecisionDecimals is range-checked by Validate (0 to 9).
	// boundary.Normalize does not read it: it always rounds coordinates
	// to 6 decimal places.
	GeometryPrecisionDecimals int

	// Tessellation thresholds and exception sets (spec §4.3, §6).
	// ContainmentMin is C_MIN, OverlapAbsM2 is E_MAX, OverlapRelPct is
	// E_REL, CoverageMin is X_MIN, MaxGapPct is X_GAP.
	ContainmentMin            float64
	OverlapAbsM2              float64
	OverlapRelPct             float64
	CoverageMin               float64
	MaxGapPct                 float64
	ConsolidatedJurisdictions []string
	AtLargeCities             []string

	// ExpectedDistrictCounts maps "<jurisdiction>/<boundaryType>" keys to
	// the declared feature count (spec §4.6).
	ExpectedDistrictCounts map[string]int

	// CheckpointLevels is a list of Merkle tree checkpoint levels; Validate
	// requires it to be strictly ascending and to end with MerkleDepth. No
	// builder in this module reads it (merkletree.BuildCheckpointed takes a
	// CheckpointScheme).
	CheckpointLevels []int
}

// Default returns a Config with spec-reasonable defaults: depth 20 (the
// same MaxTreeDepth the teacher's circuits target), the only currently
// implemented Poseidon2 variant, 6-decimal geometry precision (~11cm),
// and the spec §4.3 tessellation thresholds (C_MIN=98%, E_MAX=1000m²,
// E_REL=0.1%, X_MIN=99%, X_GAP=1%) with empty exception sets.
func Default() Config {
	return Config{
		MerkleDepth:               20,
		PoseidonVariant:           VariantBN254Width3V1,
		GeometryPrecisionDecimals: 6,
		ContainmentMin:            0.98,
		OverlapAbsM2:              1000,
		OverlapRelPct:             0.001,
		CoverageMin:               0.99,
		MaxGapPct:                 0.01,
		ExpectedDistrictCounts:    map[string]int{},
		CheckpointLevels:          []int{10, 20},
	}
}

// Validate rejects any Config value spec §6 would consider malformed.
// Startup must call this and abort on error — there is no degraded mode.
func (c Config) Validate() error {
	if c.MerkleDepth < 1 || c.MerkleDepth > 32 {
		return fmt.Errorf("%w: merkle depth %d outside [1,32]", atlaserrors.ErrUnsupportedDepth, c.MerkleDepth)
	}
	if !supportedVariants[c.PoseidonVariant] {
		return fmt.Errorf("%w: %q", atlaserrors.ErrUnknownPoseidonVariant, c.PoseidonVariant)
	}
	if c.GeometryPrecisionDecimals < 0 || c.GeometryPrecisionDecimals > 9 {
		return fmt.Errorf("%w: geometry_precision_decimals %d outside [0,9]", atlaserrors.ErrUnsupportedDepth, c.GeometryPrecisionDecimals)
	}
	if c.ContainmentMin < 0 || c.ContainmentMin > 1 {
		return fmt.Errorf("%w: containment_min %v outside [0,1]", atlaserrors.ErrUnsupportedDepth, c.ContainmentMin)
	}
	if c.OverlapAbsM2 < 0 {
		return fmt.Errorf("%w: overlap_abs must be >= 0", atlaserrors.ErrUnsupportedDepth)
	}
	if c.OverlapRelPct < 0 || c.OverlapRelPct > 1 {
		return fmt.Errorf("%w: overlap_rel %v outside [0,1]", atlaserrors.ErrUnsupportedDepth, c.OverlapRelPct)
	}
	if c.CoverageMin < 0 || c.CoverageMin > 1 {
		return fmt.Errorf("%w: coverage_min %v outside [0,1]", atlaserrors.ErrUnsupportedDepth, c.CoverageMin)
	}
	if c.MaxGapPct < 0 || c.MaxGapPct > 1 {
		return fmt.Errorf("%w: max_gap_pct %v outside [0,1]", atlaserrors.ErrUnsupportedDepth, c.MaxGapPct)
	}
	if len(c.CheckpointLevels) == 0 {
		return fmt.Errorf("%w: checkpoint_levels must not be empty", atlaserrors.ErrUnsupportedDepth)
	}
	last := c.CheckpointLevels[len(c.CheckpointLevels)-1]
	if last != c.MerkleDepth {
		return fmt.Errorf("%w: checkpoint_levels must end with merkle depth %d, got %d", atlaserrors.ErrUnsupportedDepth, c.MerkleDepth, last)
	}
	for i := 1; i < len(c.CheckpointLevels); i++ {
		if c.CheckpointLevels[i] <= c.CheckpointLevels[i-1] {
			return fmt.Errorf("%w: checkpoint_levels must be strictly ascending", atlaserrors.ErrUnsupportedDepth)
		}
	}
	return nil
}

// ConsolidatedSet returns ConsolidatedJurisdictions as a lookup set.
func (c Config) ConsolidatedSet() map[string]bool {
	return toSet(c.ConsolidatedJurisdictions)
}

// AtLargeSet returns AtLargeCities as a lookup set.
func (c Config) AtLargeSet() map[string]bool {
	return toSet(c.AtLargeCities)
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}
