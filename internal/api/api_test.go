package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/moww20/nostr-relay/internal/index"
	"github.com/moww20/nostr-relay/internal/protocol"
)

const testPubkey = "bc282e4fd117fcb863b834cf7937dc2b93eb17e4611eee7035805424147719e3"

func newTestServer() (*Server, *index.Store) {
	store := index.New()
	api := New(store, nil)
	return NewServer("", api), store
}

func seedProfile(store *index.Store) {
	store.UpsertProfile(protocol.Profile{
		PubKey:      testPubkey,
		Name:        "alice",
		DisplayName: "Alice Developer",
		CreatedAt:   1000,
		SearchTerms: []string{"alice", "developer"},
	}, "wss://relay.example")
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if !resp.Success || resp.Data != "OK" {
		t.Errorf("health response = %+v, want success with data OK", resp)
	}
}

func TestHandleProfileFound(t *testing.T) {
	srv, store := newTestServer()
	seedProfile(store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile/"+testPubkey, nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("success = false, want true")
	}
}

func TestHandleProfileNotFound(t *testing.T) {
	srv, _ := newTestServer()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile/"+testPubkey, nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Success || resp.Error == "" {
		t.Errorf("response = %+v, want failure with error message", resp)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, store := newTestServer()
	seedProfile(store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=alice", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("search failed: %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want map", resp.Data)
	}
	if total, _ := data["TotalCount"].(float64); total != 1 {
		t.Errorf("TotalCount = %v, want 1", data["TotalCount"])
	}
}

func TestHandleStatsInvalidKeyReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/not-a-valid-key", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleIndexerStats(t *testing.T) {
	srv, store := newTestServer()
	seedProfile(store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/indexer-stats", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("indexer-stats failed: %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want map", resp.Data)
	}
	if count, _ := data["profiles_count"].(float64); count != 1 {
		t.Errorf("profiles_count = %v, want 1", data["profiles_count"])
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
