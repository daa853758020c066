// Package api exposes the scoring subsystem over HTTP: submission upload,
// submission status, and leaderboards. Authentication is owned by the
// surrounding platform; the caller identity arrives in headers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridian-ml/podium/internal/leaderboard"
	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/pipeline"
	"github.com/meridian-ml/podium/internal/store"
)

// maxUploadBytes caps submission file size at 50 MiB.
const maxUploadBytes = 50 << 20

// Server holds the HTTP handler dependencies.
type Server struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	boards   *leaderboard.Aggregator
}

// NewServer creates the API server.
func NewServer(st store.Store, p *pipeline.Pipeline, boards *leaderboard.Aggregator) *Server {
	return &Server{store: st, pipeline: p, boards: boards}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID", "X-Team-ID"},
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/competitions/{slug}/submissions", s.handleSubmit)
		r.Get("/competitions/{slug}/submissions", s.handleListSubmissions)
		r.Get("/competitions/{slug}/leaderboard", s.handleLeaderboard)
		r.Get("/submissions/{id}", s.handleGetSubmission)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts a multipart upload with a "file" field and runs it
// through pipeline intake. Sync mode responds with the terminal submission;
// async mode responds 202 with the PENDING record.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}
	teamID := r.Header.Get("X-Team-ID")

	comp, ok := s.competition(w, r)
	if !ok {
		return
	}

	filename, content, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.pipeline.Submit(r.Context(), comp, userID, teamID, filename, content)
	if err != nil {
		var rejection *pipeline.RejectionError
		switch {
		case errors.Is(err, pipeline.ErrCompetitionClosed):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pipeline.ErrDailyLimitReached):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.As(err, &rejection):
			writeError(w, http.StatusUnprocessableEntity, rejection.Reason)
		default:
			zap.L().Error("api: submit failed",
				zap.String("competition", comp.Slug),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	status := http.StatusCreated
	if !sub.Status.Terminal() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sub)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "submission not found")
			return
		}
		zap.L().Error("api: get submission failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleListSubmissions returns the caller's own submissions for one
// competition, newest first.
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	comp, ok := s.competition(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	subs, err := s.store.ListByUser(r.Context(), comp.ID, userID, limit)
	if err != nil {
		zap.L().Error("api: list submissions failed",
			zap.String("competition", comp.Slug),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"competition": comp.Slug,
		"submissions": subs,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	comp, ok := s.competition(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.boards.Compute(r.Context(), comp, limit)
	if err != nil {
		zap.L().Error("api: leaderboard failed",
			zap.String("competition", comp.Slug),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"competition": comp.Slug,
		"metric":      comp.EvaluationMetric,
		"entries":     entries,
	})
}

// readUpload extracts the submission bytes from either a multipart form
// ("file" field) or a raw request body.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.New("multipart field 'file' is required")
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return "", nil, errors.New("read upload")
		}
		return header.Filename, content, nil
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, errors.New("read upload")
	}
	if len(content) == 0 {
		return "", nil, errors.New("request body is empty")
	}
	return "submission.csv", content, nil
}

// competition resolves the {slug} path parameter, writing the error
// response itself when the competition does not exist.
func (s *Server) competition(w http.ResponseWriter, r *http.Request) (*model.Competition, bool) {
	slug := chi.URLParam(r, "slug")
	comp, err := s.store.GetCompetitionBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "competition not found")
			return nil, false
		}
		zap.L().Error("api: load competition failed", zap.String("slug", slug), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return comp, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
