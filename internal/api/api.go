// Package api implements the thin HTTP boundary spec.md §6 describes:
// a serve layer downstream of snapshot publication, covered here only at
// its I/O boundary (request in, status code + JSON out) rather than as a
// full edge service (routing, auth, rate limiting are out of scope).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/lookup"
	"github.com/shadowatlas/commitment/pkg/snapshot"
)

// Server exposes the currently-published snapshot and district lookups
// over HTTP. It owns no state of its own beyond the Publisher/Coordinator
// handed to it; republishing a snapshot elsewhere is immediately visible
// here without restarting the server.
type Server struct {
	publisher   *snapshot.Publisher
	coordinator *lookup.Coordinator
	environment string
	version     string
}

// NewServer builds a Server serving the snapshot currently live in
// publisher, with district lookups answered by coordinator. environment
// and version are echoed back verbatim by /v1/health (spec §6).
func NewServer(publisher *snapshot.Publisher, coordinator *lookup.Coordinator, environment, version string) *Server {
	return &Server{publisher: publisher, coordinator: coordinator, environment: environment, version: version}
}

// Routes returns a ServeMux with every endpoint registered, ready to be
// wrapped in middleware or served directly.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/districts", s.handleDistricts)
	return mux
}

// healthResponse is the wire shape for /v1/health (spec §6: "{status,
// environment, version, timestamp}").
type healthResponse struct {
	Status      string    `json:"status"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.publisher.Current() == nil {
		status = "no snapshot published"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		Environment: s.environment,
		Version:     s.version,
		Timestamp:   time.Now().UTC(),
	})
}

// snapshotMetadata is the wire shape for /v1/snapshot: current snapshot
// metadata, deliberately omitting Leaves (spec §6: "/v1/snapshot returns
// current snapshot metadata (no leaves)" — the full leaf set is for
// cmd/snapshot's own output file and pkg/snapshot.BlobStore, not this
// read endpoint).
type snapshotMetadata struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Depth       int       `json:"depth"`
	Root        string    `json:"root"`
	LeafCount   int       `json:"leaf_count"`
	ContentHash string    `json:"content_hash"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.publisher.Current()
	if snap == nil {
		writeError(w, atlaserrors.ErrMalformedSnapshot)
		return
	}
	writeJSON(w, http.StatusOK, snapshotMetadata{
		ID:          snap.ID,
		CreatedAt:   snap.CreatedAt,
		Depth:       snap.Depth,
		Root:        snap.Root,
		LeafCount:   snap.LeafCount,
		ContentHash: snap.ContentHash,
	})
}

// districtResponse is the wire shape for a successful /v1/districts hit
// (spec §6: "{district, coordinates, merkleProof, provenance, latencyMs,
// cacheHit}").
type districtResponse struct {
	District    district            `json:"district"`
	Coordinates geometry.Point       `json:"coordinates"`
	MerkleProof lookup.MerkleProof  `json:"merkleProof"`
	Provenance  lookup.Provenance   `json:"provenance"`
	LatencyMs   float64             `json:"latencyMs"`
	CacheHit    bool                `json:"cacheHit"`
}

// district is the boundary-identifying subset of lookup.Result surfaced
// to callers — the full boundary.NormalizedBoundary also carries its raw
// geometry, which this read endpoint does not re-serve.
type district struct {
	Jurisdiction string  `json:"jurisdiction"`
	BoundaryType string  `json:"boundary_type"`
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	AreaM2       float64 `json:"area_m2"`
}

// handleDistricts answers GET /v1/districts?lat=<f>&lng=<f>&layer=<type?>
// (spec §6). layer is optional; when absent, lookup.Coordinator.Locate
// prefers the finest granularity layer that contains the point (spec
// §4.8). This module never caches a lookup result itself, so CacheHit is
// always false — the field exists so a caching layer placed in front of
// this handler has somewhere to report a hit without changing the
// response shape.
func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var layer boundary.BoundaryType
	if raw := r.URL.Query().Get("layer"); raw != "" {
		layer = boundary.BoundaryType(raw)
		if !layer.Valid() {
			writeError(w, atlaserrors.ErrWrongGeometryType)
			return
		}
	}

	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		writeError(w, atlaserrors.ErrInvalidCoordinate)
		return
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		writeError(w, atlaserrors.ErrInvalidCoordinate)
		return
	}

	result, err := s.coordinator.Locate(r.Context(), layer, geometry.Point{Lat: lat, Lon: lng})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, districtResponse{
		District: district{
			Jurisdiction: result.Boundary.Jurisdiction,
			BoundaryType: string(result.Boundary.BoundaryType),
			ID:           result.Boundary.ID,
			Name:         result.Boundary.Name,
			AreaM2:       result.AreaM2,
		},
		Coordinates: result.Coordinates,
		MerkleProof: result.MerkleProof,
		Provenance:  result.Provenance,
		LatencyMs:   float64(time.Since(start)) / float64(time.Millisecond),
		CacheHit:    false,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := atlaserrors.HTTPStatus(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
