package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/pipeline"
	"github.com/streed/snap-notes/internal/search"
	"github.com/streed/snap-notes/internal/services"
)

const maxUploadBytes = 32 << 20

type APIServer struct {
	svc    *services.Services
	server *http.Server
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Tags  string `json:"tags"`
	From  string `json:"from"`
	To    string `json:"to"`
	Limit int    `json:"limit"`
}

type SummaryRequest struct {
	Kind string `json:"kind"`
	Days int    `json:"days"`
}

func NewAPIServer(svc *services.Services) *APIServer {
	return &APIServer{svc: svc}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	// Notes
	api.HandleFunc("/notes", s.handleListNotes).Methods("GET")
	api.HandleFunc("/notes/search", s.handleSearchNotes).Methods("POST")
	api.HandleFunc("/notes/{id}", s.handleGetNote).Methods("GET")
	api.HandleFunc("/notes/{id}/image", s.handleGetImage).Methods("GET")

	// Captures
	api.HandleFunc("/captures", s.handleCapture).Methods("POST")

	// Index
	api.HandleFunc("/tags", s.handleListTags).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/index/rebuild", s.handleRebuild).Methods("POST")

	// Peers
	api.HandleFunc("/peers", s.handleListPeers).Methods("GET")
	api.HandleFunc("/peers/{name}/test", s.handleTestPeer).Methods("POST")

	// Summaries
	api.HandleFunc("/summaries", s.handleSummarize).Methods("POST")

	api.HandleFunc("/config", s.handleConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/docs", s.handleDocs).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return c.Handler(router)
}

func (s *APIServer) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Captures wait for extraction and peers.
		WriteTimeout: s.svc.Config.PipelineTimeout.Std() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Starting HTTP API server on %s", addr)
	return s.server.ListenAndServe()
}

func (s *APIServer) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *APIServer) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: statusCode < 400,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   err.Error(),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interrors.ErrNoteNotFound), errors.Is(err, interrors.ErrUnknownPeer):
		return http.StatusNotFound
	case errors.Is(err, interrors.ErrIndexCorruption), errors.Is(err, interrors.ErrIndexBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, interrors.ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, interrors.ErrEmptyCapture):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *APIServer) parseTags(tagsStr string) []string {
	if tagsStr == "" {
		return nil
	}

	var tags []string
	for _, tag := range strings.Split(tagsStr, ",") {
		cleanTag := strings.TrimSpace(tag)
		if cleanTag != "" {
			tags = append(tags, cleanTag)
		}
	}
	return tags
}

// Handlers

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"peers":     len(s.svc.Router.List()),
	}

	stats, err := s.svc.Index.Stats(r.Context())
	if err != nil {
		health["status"] = "unhealthy"
		health["index_error"] = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health["entries"] = stats.EntryCount

	s.writeJSON(w, http.StatusOK, health)
}

func (s *APIServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
			return
		}
		limit = l
	}

	entries, err := s.svc.Index.Recent(r.Context(), limit, s.parseTags(r.URL.Query().Get("tags")))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *APIServer) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.svc.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *APIServer) handleGetImage(w http.ResponseWriter, r *http.Request) {
	note, err := s.svc.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, s.svc.Store.ImagePath(note))
}

func (s *APIServer) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	q := search.Query{Text: req.Query, Tags: s.parseTags(req.Tags), Limit: req.Limit}
	var err error
	if q.From, err = search.ParseDate(req.From, false, time.Local); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.To, err = search.ParseDate(req.To, true, time.Local); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := s.svc.Index.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *APIServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("expected multipart form: %w", err))
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing image: %w", err))
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	at := time.Now()
	if ts := r.FormValue("timestamp"); ts != "" {
		if at, err = time.Parse(time.RFC3339, ts); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid timestamp: %w", err))
			return
		}
	}
	var region *models.Region
	if rs := r.FormValue("region"); rs != "" {
		if region, err = models.ParseRegion(rs); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	opts := pipeline.Options{
		Title:     r.FormValue("title"),
		Tags:      s.parseTags(r.FormValue("tags")),
		SkipOCR:   formBool(r, "skip_ocr"),
		SkipVLM:   formBool(r, "skip_vlm"),
		SkipPeers: formBool(r, "skip_peers"),
		Peers:     s.parseTags(r.FormValue("peers")),
	}
	capture := models.NewCapture(image, at, region, r.FormValue("source"))

	res, err := s.svc.Pipeline.Process(r.Context(), capture, opts)
	if err != nil {
		logger.Error("Capture failed: %v", err)
		s.writeJSON(w, statusFor(err), res)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func formBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.FormValue(key))
	return err == nil && v
}

func (s *APIServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.svc.Index.Tags(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, tags)
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Index.Stats(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *APIServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Index.Rebuild(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *APIServer) handleListPeers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Router.List())
}

func (s *APIServer) handleTestPeer(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Router.Test(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *APIServer) handleSummarize(w http.ResponseWriter, r *http.Request) {
	req := SummaryRequest{Kind: string(models.PeriodDaily)}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	}
	kind := models.PeriodKind(req.Kind)
	if kind != models.PeriodDaily && kind != models.PeriodWeekly {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("kind must be daily or weekly"))
		return
	}
	if req.Days <= 0 {
		req.Days = s.svc.Config.Summary.DailyLookbackDays
		if kind == models.PeriodWeekly {
			req.Days = s.svc.Config.Summary.WeeklyLookbackDays
		}
	}

	path, err := s.svc.Summarize(r.Context(), kind, req.Days)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"path": path, "skipped": path == ""})
}

func (s *APIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.svc.Config
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"debug_mode":      cfg.Debug,
		"data_directory":  cfg.DataDirectory,
		"index_path":      cfg.GetIndexPath(),
		"ocr_enabled":     cfg.OCR.Enabled,
		"vlm_enabled":     cfg.VLM.Enabled,
		"summary_enabled": cfg.Summary.Enabled,
		"default_tags":    cfg.DefaultTags,
	})
}

func (s *APIServer) handleDocs(w http.ResponseWriter, r *http.Request) {
	docs := `# Snap Notes API Documentation

## Base URL
http://localhost:8080/api/v1

## Endpoints

### Notes
- GET /notes - Recent notes (query params: limit, tags)
- GET /notes/{id} - Note frontmatter and body
- GET /notes/{id}/image - Captured image
- POST /notes/search - Search notes

### Captures
- POST /captures - Run the capture pipeline on an uploaded image
  (multipart fields: image, title, tags, source, region, timestamp,
  skip_ocr, skip_vlm, skip_peers, peers)

### Index
- GET /tags - Tag histogram
- GET /stats - Index statistics
- POST /index/rebuild - Rebuild the index from the note files

### Peers
- GET /peers - Configured post-processing peers
- POST /peers/{name}/test - Handshake and list the peer's tools

### Summaries
- POST /summaries - Write a summary now

### System
- GET /health - Health check
- GET /config - Configuration info
- GET /docs - This documentation

## Example Usage

### Search notes:
POST /notes/search
{
  "query": "quarterly review",
  "tags": "work,excel",
  "from": "2025-08-01",
  "to": "2025-08-31",
  "limit": 10
}

### Weekly summary:
POST /summaries
{
  "kind": "weekly",
  "days": 7
}
`

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(docs)); err != nil {
		logger.Error("Failed to write response: %v", err)
	}
}
