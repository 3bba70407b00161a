// Command snapshot runs the ingest-to-publish pipeline of spec §4: read
// raw boundary records, normalize, tessellation-validate each
// (jurisdiction, boundaryType) group, build the Merkle tree over the
// surviving leaves, check the result with pkg/integrity, and write the
// canonical snapshot JSON to the -out file (and also to a Badger store
// when -badger-dir is set).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/config"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/integrity"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
	"github.com/shadowatlas/commitment/pkg/snapshot"
	"github.com/shadowatlas/commitment/pkg/tessellation"
)

func main() {
	in := flag.String("in", "", "path to a JSON array of boundary.RawBoundaryRecord")
	jurisdictionsPath := flag.String("jurisdictions", "", "path to a JSON object mapping jurisdiction name to its parent geometry.MultiPolygon, used for containment/exhaustivity checks")
	out := flag.String("out", "snapshot.json", "path to write the published snapshot JSON")
	badgerDir := flag.String("badger-dir", "", "if set, persist the snapshot to a Badger store at this directory instead of only writing -out")
	flag.Parse()

	if *in == "" {
		log.Fatal("usage: snapshot -in records.json [-jurisdictions jurisdictions.json] [-out snapshot.json] [-badger-dir ./data]")
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	raw, err := readRecords(*in)
	if err != nil {
		log.Fatalf("read records: %v", err)
	}
	jurisdictionPolygons, err := readJurisdictions(*jurisdictionsPath)
	if err != nil {
		log.Fatalf("read jurisdictions: %v", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	normalized, quarantine := normalizeAll(raw)
	normalized, quarantine = validateAll(normalized, cfg, jurisdictionPolygons, quarantine)
	if !quarantine.Empty() {
		for _, entry := range quarantine.Entries {
			logger.Warn().Str("subject", entry.Subject).Str("reason", entry.Reason).Msg("quarantined boundary")
		}
	}

	h := poseidon.NewHasher()
	leaves, err := merkletree.BuildLeaves(h, normalized)
	if err != nil {
		log.Fatalf("build leaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, cfg.MerkleDepth)
	if err != nil {
		log.Fatalf("build tree: %v", err)
	}

	snap, err := snapshot.New(leaves, tree.Depth, tree.Root.String(), time.Now().UTC())
	if err != nil {
		log.Fatalf("build snapshot: %v", err)
	}

	engine := geometry.PlanarEngine{}
	th := tessellation.Thresholds{
		ContainmentMin:            cfg.ContainmentMin,
		OverlapAbsM2:              cfg.OverlapAbsM2,
		OverlapRelPct:             cfg.OverlapRelPct,
		CoverageMin:               cfg.CoverageMin,
		MaxGapPct:                 cfg.MaxGapPct,
		ConsolidatedJurisdictions: cfg.ConsolidatedSet(),
		AtLargeCities:             cfg.AtLargeSet(),
	}
	report := integrity.Check(logger, engine, snap, normalized, integrity.ExpectedCounts(cfg.ExpectedDistrictCounts), jurisdictionPolygons, th)
	if !report.Valid {
		for _, e := range report.Errors {
			logger.Error().Msg(e)
		}
		log.Fatal("integrity check failed, refusing to publish")
	}

	data, err := snapshot.Canonicalize(snap)
	if err != nil {
		log.Fatalf("canonicalize snapshot: %v", err)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		log.Fatalf("write snapshot file: %v", err)
	}
	fmt.Printf("snapshot %s written to %s (%d leaves, root %s)\n", snap.ID, *out, snap.LeafCount, snap.Root)

	if *badgerDir != "" {
		store, err := snapshot.OpenBadgerStore(*badgerDir)
		if err != nil {
			log.Fatalf("open badger store: %v", err)
		}
		defer store.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Put(ctx, snap); err != nil && !isAlreadyExists(err) {
			log.Fatalf("persist snapshot: %v", err)
		}
		fmt.Printf("persisted to badger store at %s\n", *badgerDir)
	}
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, atlaserrors.ErrAlreadyExists)
}

func readRecords(path string) ([]boundary.RawBoundaryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var records []boundary.RawBoundaryRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// readJurisdictions loads the optional jurisdiction-polygon map used for
// containment/exhaustivity checks (spec §4.3, glossary: "Jurisdiction —
// the parent polygon ... whose tessellation a layer must satisfy"). An
// empty path returns a nil map, under which tessellation.Validate
// degrades gracefully rather than failing.
func readJurisdictions(path string) (map[string]geometry.MultiPolygon, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var polygons map[string]geometry.MultiPolygon
	if err := json.NewDecoder(f).Decode(&polygons); err != nil {
		return nil, err
	}
	return polygons, nil
}

func normalizeAll(raw []boundary.RawBoundaryRecord) ([]boundary.NormalizedBoundary, snapshot.QuarantineReport) {
	var quarantine snapshot.QuarantineReport
	normalized := make([]boundary.NormalizedBoundary, 0, len(raw))
	for _, r := range raw {
		nb, err := boundary.Normalize(r)
		if err != nil {
			quarantine.Add(r.ID, err.Error())
			continue
		}
		normalized = append(normalized, *nb)
	}
	return normalized, quarantine
}

func validateAll(normalized []boundary.NormalizedBoundary, cfg config.Config, jurisdictionPolygons map[string]geometry.MultiPolygon, quarantine snapshot.QuarantineReport) ([]boundary.NormalizedBoundary, snapshot.QuarantineReport) {
	engine := geometry.PlanarEngine{}
	th := tessellation.Thresholds{
		ContainmentMin:            cfg.ContainmentMin,
		OverlapAbsM2:              cfg.OverlapAbsM2,
		OverlapRelPct:             cfg.OverlapRelPct,
		CoverageMin:               cfg.CoverageMin,
		MaxGapPct:                 cfg.MaxGapPct,
		ConsolidatedJurisdictions: cfg.ConsolidatedSet(),
		AtLargeCities:             cfg.AtLargeSet(),
	}

	groups := make(map[string][]boundary.NormalizedBoundary)
	for _, b := range normalized {
		key := integrity.Key(b.Jurisdiction, b.BoundaryType)
		groups[key] = append(groups[key], b)
	}

	quarantined := make(map[string]bool)
	for key, group := range groups {
		findings := tessellation.Validate(engine, group, jurisdictionPolygons[group[0].Jurisdiction], th)
		if !tessellation.HasFailures(findings) {
			continue
		}
		for _, f := range findings {
			if f.Severity != tessellation.SeverityFail {
				continue
			}
			quarantine.Add(f.Subject, fmt.Sprintf("%s: %v", key, f.Err))
			for _, id := range f.AffectedIDs(group) {
				quarantined[id] = true
			}
		}
	}

	surviving := make([]boundary.NormalizedBoundary, 0, len(normalized))
	for _, b := range normalized {
		if quarantined[b.ID] {
			continue
		}
		surviving = append(surviving, b)
	}
	return surviving, quarantine
}
