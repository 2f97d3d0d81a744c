package domresolve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/domresolve/dbopen"
	"github.com/hazyhaar/domresolve/observability"
	"github.com/hazyhaar/domresolve/selctx"
	"github.com/hazyhaar/domresolve/tabs"
)

func testRouter(t *testing.T, s *Session) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	s.RegisterHTTP(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_Health(t *testing.T) {
	h := testRouter(t, testSession(t))
	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestHTTP_SetContextAndStats(t *testing.T) {
	s := testSession(t)
	h := testRouter(t, s)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/context",
		`{"primary":"extraction","secondary":"match_list","dom_state":"live"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set context status: got %d, body %s", rec.Code, rec.Body.String())
	}

	if _, err := s.ResolveHTML(context.Background(), "home_team_name", testPage); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status: got %d", rec.Code)
	}
	var stats SessionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Context.Primary != "extraction" || stats.Cache.Entries == 0 {
		t.Fatalf("stats: %+v", stats)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/context", "")
	var cur selctx.Context
	if err := json.Unmarshal(rec.Body.Bytes(), &cur); err != nil {
		t.Fatal(err)
	}
	if cur.Path() != "extraction/match_list" {
		t.Fatalf("context: %+v", cur)
	}
}

func TestHTTP_SetContextRejectsInvalid(t *testing.T) {
	h := testRouter(t, testSession(t))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/context", `{"primary":"bogus"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/context", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/context", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestHTTP_Tabs(t *testing.T) {
	s := testSession(t)
	h := testRouter(t, s)

	if _, err := s.Tabs().Register("t1", tabs.TypeContent, "https://example.com", ""); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/tabs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var listed []tabs.Tab
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != "t1" {
		t.Fatalf("tabs: %+v", listed)
	}
}

func TestHTTP_Invalidate(t *testing.T) {
	s := testSession(t)
	h := testRouter(t, s)

	if err := s.SetContext("extraction", "match_list", "", selctx.StateLive, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ResolveHTML(context.Background(), "home_team_name", testPage); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/invalidate", `{"fragment":"extraction"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var out struct {
		Evicted int `json:"evicted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Evicted == 0 {
		t.Fatal("expected evictions")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/invalidate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestHTTP_LogsWithoutStoreAre404(t *testing.T) {
	h := testRouter(t, testSession(t))
	for _, path := range []string{
		"/api/v1/log/resolutions",
		"/api/v1/log/invalidations",
		"/api/v1/log/navigation/t1",
	} {
		rec := doJSON(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: got %d, want 404", path, rec.Code)
		}
	}
}

func TestHTTP_ResolutionLog(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	s, err := NewSession(testConfig(t), WithObservabilityDB(db))
	if err != nil {
		t.Fatal(err)
	}
	h := testRouter(t, s)

	if err := s.SetContext("extraction", "match_list", "", selctx.StateLive, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ResolveHTML(context.Background(), "home_team_name", testPage); err != nil {
		t.Fatal(err)
	}
	// Close drains the async buffer so the log queries see the rows.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/log/resolutions?selector=home_team_name&outcome=success", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var entries []observability.ResolutionEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].SelectorName != "home_team_name" {
		t.Fatalf("entries: %+v", entries)
	}

	// Without a selector parameter the name filter stays unset.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/log/resolutions", "")
	entries = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("unfiltered entries: got %d, want 1", len(entries))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/log/resolutions?selector=away_team_name", "")
	entries = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("mismatched selector filter returned %d entries", len(entries))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/log/invalidations?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
}
