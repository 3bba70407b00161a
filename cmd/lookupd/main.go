// Command lookupd serves the read-only district-lookup and snapshot
// endpoints of spec §6 over HTTP: point-in-district queries against the
// normalized boundary set, and the currently-published snapshot's
// metadata, without exposing ingest or commit operations.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/shadowatlas/commitment/internal/api"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/lookup"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
	"github.com/shadowatlas/commitment/pkg/snapshot"
)

// version is stamped into /v1/health's response; shadowatlas doesn't
// build with -ldflags version injection yet, so this is the one place to
// bump it by hand on a release.
const version = "0.1.0"

func main() {
	boundariesPath := flag.String("boundaries", "", "path to a JSON array of boundary.RawBoundaryRecord to serve lookups against")
	snapshotPath := flag.String("snapshot", "", "path to a published snapshot JSON (from cmd/snapshot -out)")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	environment := flag.String("environment", envOrDefault("SHADOWATLAS_ENV", "development"), "deployment environment reported by /v1/health")
	flag.Parse()

	if *boundariesPath == "" || *snapshotPath == "" {
		log.Fatal("usage: lookupd -boundaries records.json -snapshot snapshot.json [-addr :8080]")
	}

	normalized, err := loadNormalizedBoundaries(*boundariesPath)
	if err != nil {
		log.Fatalf("load boundaries: %v", err)
	}
	snap, err := loadSnapshot(*snapshotPath)
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}

	publisher := snapshot.NewPublisher()
	publisher.Publish(snap)

	h := poseidon.NewHasher()
	leaves, err := merkletree.BuildLeaves(h, normalized)
	if err != nil {
		log.Fatalf("build leaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, snap.Depth)
	if err != nil {
		log.Fatalf("build tree: %v", err)
	}
	if tree.Root.String() != snap.Root {
		log.Fatalf("rebuilt tree root %s does not match published snapshot root %s", tree.Root.String(), snap.Root)
	}

	coordinator := lookup.NewCoordinator(geometry.PlanarEngine{}, normalized, tree, leaves, publisher)
	server := api.NewServer(publisher, coordinator, *environment, version)

	log.Printf("lookupd serving %d boundaries, snapshot %s, on %s", len(normalized), snap.ID, *addr)
	if err := http.ListenAndServe(*addr, server.Routes()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadNormalizedBoundaries(path string) ([]boundary.NormalizedBoundary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var raw []boundary.RawBoundaryRecord
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	normalized := make([]boundary.NormalizedBoundary, 0, len(raw))
	for _, r := range raw {
		nb, err := boundary.Normalize(r)
		if err != nil {
			log.Printf("skipping %s: %v", r.ID, err)
			continue
		}
		normalized = append(normalized, *nb)
	}
	return normalized, nil
}

func loadSnapshot(path string) (snapshot.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	defer f.Close()
	var snap snapshot.Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snapshot.Snapshot{}, err
	}
	return snap, nil
}
