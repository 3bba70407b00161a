package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shadowatlas/commitment/internal/api"
	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/geometry"
	"github.com/shadowatlas/commitment/pkg/lookup"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
	"github.com/shadowatlas/commitment/pkg/snapshot"
)

func squareBoundary(id string) boundary.NormalizedBoundary {
	ring := geometry.Ring{Points: []geometry.Point{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}, {Lat: 0, Lon: 0},
	}}
	return boundary.NormalizedBoundary{
		ID:           id,
		Name:         "Sample County",
		Geometry:     geometry.MultiPolygon{Polygons: []geometry.Polygon{{Rings: []geometry.Ring{ring}}}},
		BoundaryType: boundary.County,
		Authority:    boundary.AuthorityCounty,
		Jurisdiction: "sample-state",
	}
}

func buildServer(t *testing.T) *api.Server {
	t.Helper()
	b := squareBoundary("county-1")
	h := poseidon.NewHasher()
	leaves, err := merkletree.BuildLeaves(h, []boundary.NormalizedBoundary{b})
	if err != nil {
		t.Fatalf("build leaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, 8)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	snap, err := snapshot.New(leaves, tree.Depth, tree.Root.String(), time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	pub := snapshot.NewPublisher()
	pub.Publish(snap)
	coord := lookup.NewCoordinator(geometry.PlanarEngine{}, []boundary.NormalizedBoundary{b}, tree, leaves, pub)
	return api.NewServer(pub, coord, "test", "0.0.0-test")
}

func TestHealthReflectsPublishedSnapshot(t *testing.T) {
	srv := buildServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status      string    `json:"status"`
		Environment string    `json:"environment"`
		Version     string    `json:"version"`
		Timestamp   time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
	if body.Environment != "test" || body.Version != "0.0.0-test" {
		t.Fatalf("got environment=%q version=%q, want test/0.0.0-test", body.Environment, body.Version)
	}
	if body.Timestamp.IsZero() {
		t.Fatal("expected a non-zero timestamp")
	}
}

func TestSnapshotEndpointReturnsMetadataWithoutLeaves(t *testing.T) {
	srv := buildServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil)
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["leaves"]; ok {
		t.Fatal("expected /v1/snapshot to omit leaves")
	}
	var leafCount int
	if err := json.Unmarshal(body["leaf_count"], &leafCount); err != nil {
		t.Fatalf("decode leaf_count: %v", err)
	}
	if leafCount != 1 {
		t.Fatalf("leaf count = %d, want 1", leafCount)
	}
}

func TestDistrictsEndpointFindsContainingBoundary(t *testing.T) {
	srv := buildServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/districts?layer=county&lat=0.5&lng=0.5", nil)
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		District struct {
			ID string `json:"id"`
		} `json:"district"`
		Coordinates geometry.Point      `json:"coordinates"`
		MerkleProof lookup.MerkleProof `json:"merkleProof"`
		Provenance  lookup.Provenance  `json:"provenance"`
		CacheHit    bool               `json:"cacheHit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.District.ID != "county-1" {
		t.Fatalf("district id = %q, want county-1", body.District.ID)
	}
	if body.Coordinates.Lat != 0.5 || body.Coordinates.Lon != 0.5 {
		t.Fatalf("coordinates = %+v, want (0.5, 0.5)", body.Coordinates)
	}
	if len(body.MerkleProof.Siblings) != 8 {
		t.Fatalf("expected an 8-deep merkle proof, got %d siblings", len(body.MerkleProof.Siblings))
	}
	if body.Provenance.SnapshotID == "" || body.Provenance.MerkleRoot == "" {
		t.Fatalf("expected provenance to be populated, got %+v", body.Provenance)
	}
	if body.CacheHit {
		t.Fatal("expected cacheHit to be false: this server has no caching layer")
	}
}

func TestDistrictsEndpointWithoutLayerStillResolves(t *testing.T) {
	srv := buildServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/districts?lat=0.5&lng=0.5", nil)
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestDistrictsEndpointRejectsUnknownLayer(t *testing.T) {
	srv := buildServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/districts?layer=not-a-layer&lat=0.5&lng=0.5", nil)
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDistrictsEndpointNotFound(t *testing.T) {
	srv := buildServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/districts?layer=county&lat=9&lng=9", nil)
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
