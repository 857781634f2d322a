// Package server exposes the tree engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arcanist/spelltree/pkg/spelltree"
	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/locks"
)

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *spelltree.Engine
	logger   *zap.Logger
	validate *validator.Validate
	coord    Coordinator
}

// New creates a Server.
func New(engine *spelltree.Engine, logger *zap.Logger) *Server {
	return &Server{
		engine:   engine,
		logger:   logger,
		validate: validator.New(),
	}
}

// Routes configures all routes and middleware.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))

	router.Get("/healthz", s.health)

	router.Route("/v1", func(r chi.Router) {
		r.Post("/build", s.handleBuild)
		r.Post("/locks", s.handleLocks)
		r.Post("/score", s.handleScore)
		r.Get("/builds", s.handleListBuilds)
		r.Get("/builds/{buildID}", s.handleGetBuild)
	})

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// buildEnvelope is validated before dispatch; the full payload goes to
// the engine verbatim.
type buildEnvelope struct {
	Command string `json:"command" validate:"required,oneof=build_tree_classic build_tree build_tree_graph build_tree_thematic build_tree_oracle prm_score"`
}

// handleBuild runs one wire command. Builds are serialized through the
// coordinator: a newer request cancels the one still running.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var env buildEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(env); err != nil {
		writeError(w, http.StatusBadRequest, "unknown or missing command")
		return
	}

	ctx, finish := s.coord.Begin(r.Context())
	defer finish()

	result, err := s.engine.Dispatch(ctx, raw)
	if err != nil {
		if errors.Is(err, context.Canceled) && Replaced(ctx, r.Context()) {
			s.logger.Info("build replaced by newer request",
				zap.String("command", env.Command))
			writeError(w, http.StatusConflict, internalerr.ErrBuildReplaced.Error())
			return
		}
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	var req spelltree.LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.ApplyLocks(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req locks.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.PRMScore(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.engine.ListBuilds(r.Context(), limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": records})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")
	rec, err := s.engine.GetBuild(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, internalerr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, internalerr.ErrInvalidInput),
		errors.Is(err, internalerr.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
