package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TierOracle/internal/observability"
	"TierOracle/internal/persistence"
	"TierOracle/internal/projection"
	"TierOracle/internal/query"
)

// HTTPServer serves the query and admin API over HTTP/JSON, plus the
// health probes and Prometheus metrics. Queries read from the projection
// tables and never touch the engine.
type HTTPServer struct {
	httpServer    *http.Server
	addr          string
	db            *sql.DB
	queryService  *query.QueryService
	snapshotMgr   *persistence.SnapshotManager
	healthChecker *observability.HealthChecker
}

// HTTPDeps holds the dependencies the HTTP handlers need.
type HTTPDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
}

func NewHTTPServer(addr string, deps *HTTPDeps) *HTTPServer {
	return &HTTPServer{
		addr:          addr,
		db:            deps.DB,
		queryService:  deps.QueryService,
		snapshotMgr:   deps.SnapshotMgr,
		healthChecker: deps.HealthChecker,
	}
}

// Start runs the HTTP server (blocking) until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/assets", s.handleListAssets)
	mux.HandleFunc("GET /v1/assets/{asset_id}/price", s.handleGetPrice)
	mux.HandleFunc("GET /v1/assets/{asset_id}/twap", s.handleGetTWAP)
	mux.HandleFunc("GET /v1/assets/{asset_id}/history", s.handleGetHistory)
	mux.HandleFunc("GET /v1/assets/{asset_id}/status", s.handleGetStatus)
	mux.HandleFunc("GET /v1/assets/{asset_id}/events", s.handleGetEvents)

	mux.HandleFunc("GET /v1/admin/integrity", s.handleVerifyIntegrity)
	mux.HandleFunc("GET /v1/admin/eventlog", s.handleEventLogInfo)
	mux.HandleFunc("POST /v1/admin/rebuild-projections", s.handleRebuildProjections)

	mux.Handle("GET /metrics", promhttp.Handler())
	if s.healthChecker != nil {
		mux.HandleFunc("GET /healthz", s.healthChecker.LivenessHandler)
		mux.HandleFunc("GET /readyz", s.healthChecker.ReadinessHandler)
	}

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.queryService.ListAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

func (s *HTTPServer) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset_id")
	resp, err := s.queryService.GetPrice(r.Context(), assetID)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetTWAP(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset_id")

	window := parseInt64Param(r, "window_seconds", 3600)
	now := parseInt64Param(r, "now", 0)

	resp, err := s.queryService.GetTWAP(r.Context(), assetID, window, now)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset_id")

	from := parseInt64Param(r, "from", 0)
	to := parseInt64Param(r, "to", 0)
	limit := int(parseInt64Param(r, "limit", 100))

	var before *int64
	if b := parseInt64Param(r, "before_sequence", 0); b > 0 {
		before = &b
	}

	resp, err := s.queryService.GetHistory(r.Context(), assetID, from, to, limit, before)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset_id")
	resp, err := s.queryService.GetStatus(r.Context(), assetID)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset_id")

	limit := int(parseInt64Param(r, "limit", 100))
	var before *int64
	if b := parseInt64Param(r, "before_sequence", 0); b > 0 {
		before = &b
	}

	events, err := s.queryService.GetEvents(r.Context(), assetID, limit, before)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *HTTPServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request) {
	latestSeq, err := s.snapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"last_sequence": latestSeq})
}

func (s *HTTPServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildProjections(r.Context(), s.db); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

// --- helpers ---

func parseInt64Param(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrAssetNotFound), errors.Is(err, query.ErrNoHistory):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
