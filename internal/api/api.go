package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/daimoniac/scorecard/internal/api/docs" // swagger spec

	"github.com/daimoniac/scorecard/internal/config"
	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/remediation"
	"github.com/daimoniac/scorecard/internal/service"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// @title scorecard API
// @version 1.0
// @description REST API for compliance findings, exclusions and remediation.
// @description
// @description ## Features
// @description - List non-compliant resources of the latest scan with allowed actions
// @description - Request, change and review exclusions
// @description - Trigger remediation of a finding
// @description - Re-apply exclusions to a scan

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description HS256 JWT carrying an email claim ("Bearer <token>")

// ExclusionAPI is the exclusion service surface the handlers call
type ExclusionAPI interface {
	PutAdmin(ctx context.Context, user *types.User, req service.AdminPutRequest) (*service.AdminPutResult, error)
	PutForUser(ctx context.Context, user *types.User, req service.UserPutRequest) (*service.UserPutResult, error)
	ListExclusions(ctx context.Context, user *types.User, limit int, nextToken string) (*service.ExclusionPage, error)
}

// FindingAPI lists findings
type FindingAPI interface {
	ListFindings(ctx context.Context, user *types.User, accountIDs []string, requirementID string) ([]*service.FindingView, error)
}

// Remediator runs remediations
type Remediator interface {
	Remediate(ctx context.Context, user *types.User, in remediation.Input) (*remediation.Result, error)
}

// ScanLookup resolves and lists scans
type ScanLookup interface {
	GetScan(ctx context.Context, scanID string) (*types.Scan, error)
	ListScans(ctx context.Context, limit int) ([]*types.Scan, error)
}

// UserDirectory resolves an authenticated email to a catalog user and
// names the accounts users hold grants on
type UserDirectory interface {
	User(email string) (*types.User, bool)
	Account(id string) (*types.Account, bool)
	AccountIDs() []string
}

// Deps are the components behind the API
type Deps struct {
	Exclusions ExclusionAPI
	Findings   FindingAPI
	Remediator Remediator
	Scans      ScanLookup
	Queue      queue.TaskQueue
	Users      UserDirectory
}

// APIServer serves the scorecard REST API
type APIServer struct {
	config *config.APIConfig
	deps   Deps
	router chi.Router
	server *http.Server
	logger *slog.Logger
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.APIConfig, deps Deps, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &APIServer{
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *APIServer) Handler() http.Handler {
	return s.router
}

func (s *APIServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/", s.handleRootRedirect)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/exclusions", s.handleListExclusions)
		r.Get("/ncr", s.handleListNCRs)
		r.Get("/scans", s.handleListScans)
		r.Get("/user/status", s.handleUserStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.writeGuard)
			r.Put("/exclusions", s.handlePutExclusionAdmin)
			r.Put("/ncr/exclusion", s.handlePutExclusionUser)
			r.Post("/remediate", s.handleRemediate)
			r.Post("/scans/{scanId}/exclude", s.handleApplyExclusions)
		})
	})

	s.router = r
}

// corsMiddleware adds CORS headers to allow cross-origin requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeGuard blocks write operations in read-only mode
func (s *APIServer) writeGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.ReadOnly {
			s.respondError(w, http.StatusForbidden, "API is in read-only mode")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *APIServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("API server is disabled")
		return nil
	}

	s.logger.Info("starting API server",
		"port", s.config.Port,
		"read_only", s.config.ReadOnly)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error",
				"error", err.Error())
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.server.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the API server
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// respondJSON sends a JSON response
func (s *APIServer) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response",
			"error", err.Error())
	}
}

// respondError sends an error response
func (s *APIServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string                       `json:"error"`
	Details *errors.StateTransitionError `json:"details,omitempty"`
}

// respondServiceError maps a service error onto its HTTP status
func (s *APIServer) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := ErrorResponse{Error: err.Error()}

	var transition *errors.StateTransitionError
	if errors.As(err, &transition) {
		body.Details = transition
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		body.Error = "internal server error"
	}
	s.respondJSON(w, status, body)
}

// StatusFor returns the HTTP status of an error
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest),
		errors.Is(err, errors.ErrInvalidStateTransition):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound),
		errors.Is(err, statestore.ErrScanNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrRemediationInProgress):
		return http.StatusConflict
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// parseQueryParamInt extracts an integer query parameter
func parseQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// handleRootRedirect redirects / to /swagger/
func (s *APIServer) handleRootRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
}
