// Package server provides the HTTP API over the tracked-app collection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rankradar/rankradar/internal/syncer"
	"github.com/rankradar/rankradar/internal/tracker"
	"github.com/rankradar/rankradar/pkg/appstore"
	"github.com/rankradar/rankradar/pkg/model"
)

// Server provides the HTTP API.
type Server struct {
	tracker   *tracker.Tracker
	refresher *tracker.Refresher
	syncer    *syncer.Syncer
	catalog   *appstore.Client
	port      int
}

// New creates a new HTTP server.
func New(t *tracker.Tracker, r *tracker.Refresher, s *syncer.Syncer, catalog *appstore.Client, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		tracker:   t,
		refresher: r,
		syncer:    s,
		catalog:   catalog,
		port:      port,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/apps", s.handleApps)
	mux.HandleFunc("/api/v1/keywords", s.handleKeywords)
	mux.HandleFunc("/api/v1/refresh", s.handleRefresh)
	mux.HandleFunc("/api/v1/sync", s.handleSync)
	mux.HandleFunc("/api/v1/status", s.handleStatus)

	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("rankradar server listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// keywordView is a keyword with its derived ranking fields resolved.
type keywordView struct {
	model.TrackedKeyword
	CurrentRank        int `json:"current_rank"`
	PreviousRank       int `json:"previous_rank"`
	RankChange         int `json:"rank_change"`
	EstimatedDownloads int `json:"estimated_downloads"`
}

type appView struct {
	model.TrackedApp
	Keywords []keywordView         `json:"keywords"`
	Rating   *model.RatingSnapshot `json:"latest_rating,omitempty"`
}

func viewOf(app model.TrackedApp) appView {
	v := appView{TrackedApp: app, Rating: app.LatestRating()}
	v.Keywords = make([]keywordView, 0, len(app.Keywords))
	for _, kw := range app.Keywords {
		v.Keywords = append(v.Keywords, keywordView{
			TrackedKeyword:     kw,
			CurrentRank:        kw.CurrentRank(),
			PreviousRank:       kw.PreviousRank(),
			RankChange:         kw.RankChange(),
			EstimatedDownloads: kw.EstimatedDownloads(),
		})
	}
	return v
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		apps := s.tracker.Apps().Apps
		views := make([]appView, 0, len(apps))
		for _, app := range apps {
			views = append(views, viewOf(app))
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": views, "count": len(views)})

	case http.MethodPost:
		var req struct {
			CatalogID int64  `json:"catalog_id"`
			Term      string `json:"term"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		res, err := s.resolveApp(r.Context(), req.CatalogID, req.Term)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		app, err := s.tracker.AddApp(r.Context(), *res)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(app))

	case http.MethodDelete:
		catalogID, err := strconv.ParseInt(r.URL.Query().Get("catalog_id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "catalog_id required"})
			return
		}
		if err := s.tracker.RemoveApp(r.Context(), catalogID); err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) resolveApp(ctx context.Context, catalogID int64, term string) (*appstore.Result, error) {
	country := s.tracker.Country()
	if catalogID != 0 {
		return s.catalog.Lookup(ctx, catalogID, country)
	}
	results, err := s.catalog.Search(ctx, term, country, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, appstore.ErrNotFound
	}
	return &results[0], nil
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			CatalogID int64    `json:"catalog_id"`
			Keywords  []string `json:"keywords"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keywords) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "catalog_id and keywords required"})
			return
		}
		added, err := s.tracker.AddKeywords(r.Context(), req.CatalogID, req.Keywords)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"data": added, "count": len(added)})

	case http.MethodDelete:
		catalogID, err := strconv.ParseInt(r.URL.Query().Get("catalog_id"), 10, 64)
		text := r.URL.Query().Get("keyword")
		if err != nil || text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "catalog_id and keyword required"})
			return
		}
		if err := s.tracker.RemoveKeyword(r.Context(), catalogID, text); err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if busy, _ := s.refresher.Status().Snapshot(); busy {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "refresh already running"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.refresher.RefreshAll(ctx); err == nil {
			s.syncer.Force()
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.syncer.Force()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync scheduled"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	refreshBusy, refreshErr := s.refresher.Status().Snapshot()
	syncBusy, syncErr := s.syncer.Status().Snapshot()

	resp := map[string]any{
		"busy":               refreshBusy || syncBusy,
		"refresh_last_error": refreshErr,
		"sync_last_error":    syncErr,
		"country":            s.tracker.Country(),
	}
	if last := s.syncer.LastSync(); !last.IsZero() {
		resp["last_sync"] = last.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrAppNotFound),
		errors.Is(err, tracker.ErrKeywordNotFound),
		errors.Is(err, appstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrAppExists),
		errors.Is(err, tracker.ErrKeywordExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
