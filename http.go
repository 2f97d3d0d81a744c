package domresolve

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/domresolve/observability"
	"github.com/hazyhaar/domresolve/selctx"
)

// RegisterHTTP registers the session's read and control endpoints on
// the router. The query endpoints under /api/v1/log return 404 when no
// observability store is configured.
func (s *Session) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/context", s.handleGetContext)
	r.Post("/api/v1/context", s.handleSetContext)
	r.Get("/api/v1/tabs", s.handleTabs)
	r.Post("/api/v1/invalidate", s.handleInvalidate)
	r.Get("/api/v1/log/resolutions", s.handleResolutionLog)
	r.Get("/api/v1/log/invalidations", s.handleInvalidationLog)
	r.Get("/api/v1/log/navigation/{tab_id}", s.handleNavigationLog)
}

func (s *Session) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Session) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Stats())
}

func (s *Session) handleGetContext(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.contexts.Current())
}

func (s *Session) handleSetContext(w http.ResponseWriter, r *http.Request) {
	var req setContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Primary == "" {
		http.Error(w, "primary required", http.StatusBadRequest)
		return
	}
	if err := s.SetContext(req.Primary, req.Secondary, req.Tertiary, selctx.DOMState(req.DOMState), req.TabID); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.contexts.Current())
}

func (s *Session) handleTabs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.tabs.Tabs())
}

func (s *Session) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fragment string `json:"fragment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Fragment == "" {
		http.Error(w, "fragment required", http.StatusBadRequest)
		return
	}
	evicted := s.Invalidate(req.Fragment)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"evicted": len(evicted), "keys": evicted})
}

func (s *Session) handleResolutionLog(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "observability disabled", http.StatusNotFound)
		return
	}
	f := &observability.ResolutionFilter{
		Limit: queryInt(r, "limit"),
	}
	if v := r.URL.Query().Get("selector"); v != "" {
		f.SelectorName = &v
	}
	if st := r.URL.Query().Get("strategy"); st != "" {
		f.StrategyType = &st
	}
	switch r.URL.Query().Get("outcome") {
	case "success":
		f.SuccessOnly = true
	case "failed":
		f.FailedOnly = true
	}
	entries, err := s.store.Resolutions(r.Context(), f)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Session) handleInvalidationLog(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "observability disabled", http.StatusNotFound)
		return
	}
	entries, err := s.store.Invalidations(r.Context(), queryInt(r, "limit"))
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Session) handleNavigationLog(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "observability disabled", http.StatusNotFound)
		return
	}
	tabID := chi.URLParam(r, "tab_id")
	entries, err := s.store.NavigationTrail(r.Context(), tabID, queryInt(r, "limit"))
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}
