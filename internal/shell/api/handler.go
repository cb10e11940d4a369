// Package api provides the HTTP status surface of the deployment engine:
// submit a deployment, resume or cancel one, and poll job and session state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/provision"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/queue"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/workers"
)

// =============================================================================
// Quota
// =============================================================================

// QuotaChecker gates deployment submission per tenant. The engine itself has
// no notion of plans or billing; the checker is supplied by the embedding
// application.
type QuotaChecker interface {
	CheckDeploymentQuota(ctx context.Context, tenantID string) (allowed bool, reason string, err error)
}

// UnlimitedQuota admits every submission.
type UnlimitedQuota struct{}

func (UnlimitedQuota) CheckDeploymentQuota(ctx context.Context, tenantID string) (bool, string, error) {
	return true, "", nil
}

// =============================================================================
// Handler
// =============================================================================

const (
	defaultJobPriority = 5
	defaultMaxRetries  = 2
)

// Handler provides the HTTP handlers for the API.
type Handler struct {
	store   store.Store
	queue   *queue.Queue
	locks   *queue.DeploymentLock
	quota   QuotaChecker
	credKey []byte
	logger  *slog.Logger
}

// NewHandler creates an API handler. credKey seals submitted credentials
// into job payloads.
func NewHandler(s store.Store, q *queue.Queue, locks *queue.DeploymentLock, quota QuotaChecker, credKey []byte, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if quota == nil {
		quota = UnlimitedQuota{}
	}
	return &Handler{
		store:   s,
		queue:   q,
		locks:   locks,
		quota:   quota,
		credKey: credKey,
		logger:  logger.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", h.handleCreateDeployment)
			r.Get("/", h.handleListDeployments)
			r.Get("/{id}", h.handleGetDeployment)
			r.Post("/{id}/resume", h.handleResumeDeployment)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{id}", h.handleGetJob)
			r.Post("/{id}/cancel", h.handleCancelJob)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if _, err := h.store.ListJobs(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req CreateDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if msg := validateCreate(&req); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg, "validation_error")
		return
	}

	allowed, reason, err := h.quota.CheckDeploymentQuota(r.Context(), req.TenantID)
	if err != nil {
		h.logger.Error("quota check failed", "tenant", req.TenantID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "quota check failed", "internal_error")
		return
	}
	if !allowed {
		h.writeError(w, http.StatusTooManyRequests, reason, "quota_exceeded")
		return
	}

	session := domain.NewDeploymentSession(req.TenantID, req.ProjectName, req.Region)
	if err := h.store.CreateSession(r.Context(), session); err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create session", "internal_error")
		return
	}

	job, err := h.enqueueJob(r.Context(), domain.JobTypeDeploy, session, &workers.DeployPayload{
		SessionID:      session.ID,
		TenantID:       req.TenantID,
		ProjectName:    req.ProjectName,
		Region:         req.Region,
		SourceLocation: req.SourceLocation,
		FrameworkHint:  req.FrameworkHint,
		Provider:       req.Provider,
		StaticOnly:     req.StaticOnly,
	}, req.Credentials, req.Priority)
	if err != nil {
		h.logger.Error("failed to enqueue deployment", "session", session.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to enqueue deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, CreateDeploymentResponse{
		SessionID: session.ID,
		JobID:     job.ID,
		Status:    string(session.Status),
	})
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
			return
		}
		h.logger.Error("failed to get session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get session", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, sessionToResponse(session))
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		h.writeError(w, http.StatusBadRequest, "tenant_id is required", "validation_error")
		return
	}

	opts := store.ListOptions{}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}

	sessions, err := h.store.ListSessionsByTenant(r.Context(), tenantID, opts)
	if err != nil {
		h.logger.Error("failed to list sessions", "tenant", tenantID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list sessions", "internal_error")
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, sessionToResponse(&sessions[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResumeDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResumeDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.SourceLocation == "" {
		h.writeError(w, http.StatusBadRequest, "source_location is required", "validation_error")
		return
	}
	strategy := domain.ResumeStrategy(req.Strategy)
	if strategy == "" {
		strategy = domain.ResumeContinue
	}
	if strategy != domain.ResumeContinue && strategy != domain.ResumeRestart {
		h.writeError(w, http.StatusBadRequest, "strategy must be continue or restart", "validation_error")
		return
	}

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
			return
		}
		h.logger.Error("failed to get session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get session", "internal_error")
		return
	}

	if !session.Resumable() {
		h.writeError(w, http.StatusConflict, "session is not in a resumable state", "not_resumable")
		return
	}

	// A resume is refused while another worker holds the target; the
	// session is still live there.
	targetID := provision.ResourceName(session.ProjectName,
		provision.TargetSuffix(session.TenantID, session.ProjectName))
	if _, held, err := h.locks.Holder(r.Context(), targetID); err == nil && held {
		h.writeError(w, http.StatusConflict, "deployment is locked by an active worker", "target_locked")
		return
	}

	job, err := h.enqueueJob(r.Context(), domain.JobTypeResume, session, &workers.DeployPayload{
		SessionID:      session.ID,
		TenantID:       session.TenantID,
		ProjectName:    session.ProjectName,
		Region:         session.Region,
		SourceLocation: req.SourceLocation,
		Provider:       req.Provider,
		ResumeStrategy: strategy,
	}, req.Credentials, 0)
	if err != nil {
		h.logger.Error("failed to enqueue resume", "session", session.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to enqueue resume", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, CreateDeploymentResponse{
		SessionID: session.ID,
		JobID:     job.ID,
		Status:    string(session.Status),
	})
}

// =============================================================================
// Job Handlers
// =============================================================================

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.queue.Get(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "job not found", "job_not_found")
			return
		}
		h.logger.Error("failed to get job", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get job", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (h *Handler) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.queue.Cancel(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "job not found", "job_not_found")
			return
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			h.writeError(w, http.StatusConflict, "job is already finished", "job_finished")
			return
		}
		h.logger.Error("failed to cancel job", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel job", "internal_error")
		return
	}

	job, err := h.queue.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to get job", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, jobToResponse(job))
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) enqueueJob(ctx context.Context, jobType domain.JobType, session *domain.DeploymentSession, payload *workers.DeployPayload, creds CredentialsRequest, priority int) (*domain.Job, error) {
	sealed, err := workers.SealCredentials(cloud.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		APIToken:        creds.APIToken,
	}, h.credKey)
	if err != nil {
		return nil, err
	}
	payload.SealedCredentials = sealed

	body, err := payload.Encode()
	if err != nil {
		return nil, err
	}

	if priority <= 0 {
		priority = defaultJobPriority
	}
	job := domain.NewJob(jobType, body, priority, defaultMaxRetries)
	if err := h.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func validateCreate(req *CreateDeploymentRequest) string {
	switch {
	case req.TenantID == "":
		return "tenant_id is required"
	case req.ProjectName == "":
		return "project_name is required"
	case req.Region == "":
		return "region is required"
	case req.SourceLocation == "":
		return "source_location is required"
	case req.Provider == "":
		return "provider is required"
	}
	switch req.Provider {
	case "aws":
		if req.Credentials.AccessKeyID == "" || req.Credentials.SecretAccessKey == "" {
			return "access_key_id and secret_access_key are required for aws"
		}
	case "digitalocean":
		if req.Credentials.APIToken == "" {
			return "api_token is required for digitalocean"
		}
	default:
		return "provider must be aws or digitalocean"
	}
	return ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func isNotFound(err error) bool {
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
