package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/crypto"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/provision"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/queue"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/workers"
)

// =============================================================================
// Test Fixtures
// =============================================================================

type denyQuota struct{ reason string }

func (d denyQuota) CheckDeploymentQuota(ctx context.Context, tenantID string) (bool, string, error) {
	return false, d.reason, nil
}

type apiHarness struct {
	store   store.Store
	queue   *queue.Queue
	locks   *queue.DeploymentLock
	handler *Handler
	server  http.Handler
	key     []byte
}

func setupAPI(t *testing.T, quota QuotaChecker) *apiHarness {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &apiHarness{
		store: s,
		queue: queue.New(s, queue.Config{}, logger),
		locks: queue.NewDeploymentLock(s, time.Minute, logger),
		key:   crypto.DeriveKey("api-test-passphrase"),
	}
	h.handler = NewHandler(s, h.queue, h.locks, quota, h.key, logger)
	h.server = h.handler.Routes()
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func validCreateRequest() CreateDeploymentRequest {
	return CreateDeploymentRequest{
		TenantID:       "tenant-1",
		ProjectName:    "shop",
		Region:         "us-east-1",
		SourceLocation: "/srv/uploads/shop",
		Provider:       "aws",
		Credentials: CredentialsRequest{
			AccessKeyID:     "AKIAFAKEFAKEFAKE",
			SecretAccessKey: "super-secret-value",
		},
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealthEndpoints(t *testing.T) {
	h := setupAPI(t, nil)

	rec := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["database"])
}

// =============================================================================
// Create Deployment
// =============================================================================

func TestCreateDeploymentValidation(t *testing.T) {
	h := setupAPI(t, nil)

	tests := []struct {
		name   string
		mutate func(*CreateDeploymentRequest)
	}{
		{"missing tenant", func(r *CreateDeploymentRequest) { r.TenantID = "" }},
		{"missing project", func(r *CreateDeploymentRequest) { r.ProjectName = "" }},
		{"missing region", func(r *CreateDeploymentRequest) { r.Region = "" }},
		{"missing source", func(r *CreateDeploymentRequest) { r.SourceLocation = "" }},
		{"unknown provider", func(r *CreateDeploymentRequest) { r.Provider = "gcp" }},
		{"aws without keys", func(r *CreateDeploymentRequest) { r.Credentials = CredentialsRequest{} }},
		{"do without token", func(r *CreateDeploymentRequest) {
			r.Provider = "digitalocean"
			r.Credentials = CredentialsRequest{AccessKeyID: "x"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(&req)
			rec := h.do(t, http.MethodPost, "/api/v1/deployments", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCreateDeploymentAccepted(t *testing.T) {
	h := setupAPI(t, nil)
	ctx := context.Background()

	rec := h.do(t, http.MethodPost, "/api/v1/deployments", validCreateRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[CreateDeploymentResponse](t, rec)
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.JobID)

	session, err := h.store.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionPending, session.Status)

	job, err := h.store.GetJob(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobTypeDeploy, job.Type)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	// The stored payload carries the credentials sealed.
	assert.NotContains(t, job.Payload, "super-secret-value")
	payload, err := workers.ParsePayload(job.Payload)
	require.NoError(t, err)
	creds, err := payload.OpenCredentials(h.key)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", creds.SecretAccessKey)
}

func TestCreateDeploymentQuotaExceeded(t *testing.T) {
	h := setupAPI(t, denyQuota{reason: "plan limit reached"})

	rec := h.do(t, http.MethodPost, "/api/v1/deployments", validCreateRequest())
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "quota_exceeded", resp.Code)
	assert.Equal(t, "plan limit reached", resp.Error)

	// Nothing was created for the rejected submission.
	sessions, err := h.store.ListSessionsByTenant(context.Background(), "tenant-1", store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

// =============================================================================
// Get / List
// =============================================================================

func TestGetDeployment(t *testing.T) {
	h := setupAPI(t, nil)
	ctx := context.Background()

	session := domain.NewDeploymentSession("tenant-1", "shop", "us-east-1")
	session.Deploy = &domain.DeployResult{Success: true, LiveURL: "https://shop.example.com"}
	require.NoError(t, h.store.CreateSession(ctx, session))

	rec := h.do(t, http.MethodGet, "/api/v1/deployments/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, session.ID, resp.ID)
	assert.Equal(t, "https://shop.example.com", resp.LiveURL)

	rec = h.do(t, http.MethodGet, "/api/v1/deployments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDeployments(t *testing.T) {
	h := setupAPI(t, nil)
	ctx := context.Background()

	rec := h.do(t, http.MethodGet, "/api/v1/deployments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for i := 0; i < 3; i++ {
		session := domain.NewDeploymentSession("tenant-1", "shop", "us-east-1")
		require.NoError(t, h.store.CreateSession(ctx, session))
	}
	require.NoError(t, h.store.CreateSession(ctx,
		domain.NewDeploymentSession("tenant-2", "blog", "us-east-1")))

	rec = h.do(t, http.MethodGet, "/api/v1/deployments?tenant_id=tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SessionResponse](t, rec), 3)
}

// =============================================================================
// Resume
// =============================================================================

func TestResumeDeployment(t *testing.T) {
	h := setupAPI(t, nil)
	ctx := context.Background()

	session := domain.NewDeploymentSession("tenant-1", "shop", "us-east-1")
	require.NoError(t, h.store.CreateSession(ctx, session))

	body := ResumeDeploymentRequest{
		SourceLocation: "/srv/uploads/shop",
		Provider:       "aws",
		Credentials:    CredentialsRequest{AccessKeyID: "k", SecretAccessKey: "s"},
	}

	// A pending session is not resumable.
	rec := h.do(t, http.MethodPost, "/api/v1/deployments/"+session.ID+"/resume", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_resumable", decode[ErrorResponse](t, rec).Code)

	require.NoError(t, session.Transition(domain.SessionAnalyzing))
	require.NoError(t, session.Fail(domain.ErrKindBuildFailure, "boom"))
	require.NoError(t, h.store.UpdateSession(ctx, session))

	// A held target lock refuses the resume.
	targetID := provision.ResourceName(session.ProjectName,
		provision.TargetSuffix(session.TenantID, session.ProjectName))
	require.NoError(t, h.locks.Acquire(ctx, targetID, "worker-elsewhere"))
	rec = h.do(t, http.MethodPost, "/api/v1/deployments/"+session.ID+"/resume", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "target_locked", decode[ErrorResponse](t, rec).Code)
	require.NoError(t, h.locks.Release(ctx, targetID, "worker-elsewhere"))

	rec = h.do(t, http.MethodPost, "/api/v1/deployments/"+session.ID+"/resume", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[CreateDeploymentResponse](t, rec)

	job, err := h.store.GetJob(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobTypeResume, job.Type)

	payload, err := workers.ParsePayload(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, domain.ResumeContinue, payload.ResumeStrategy)
}

func TestResumeRejectsUnknownStrategy(t *testing.T) {
	h := setupAPI(t, nil)
	ctx := context.Background()

	session := domain.NewDeploymentSession("tenant-1", "shop", "us-east-1")
	require.NoError(t, h.store.CreateSession(ctx, session))

	rec := h.do(t, http.MethodPost, "/api/v1/deployments/"+session.ID+"/resume", ResumeDeploymentRequest{
		Strategy:       "rewind",
		SourceLocation: "/srv/uploads/shop",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Jobs
// =============================================================================

func TestCancelJob(t *testing.T) {
	h := setupAPI(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/deployments", validCreateRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[CreateDeploymentResponse](t, rec)

	rec = h.do(t, http.MethodPost, "/api/v1/jobs/"+created.JobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.JobStatusCancelled), decode[JobResponse](t, rec).Status)

	// Cancelling a finished job conflicts.
	rec = h.do(t, http.MethodPost, "/api/v1/jobs/"+created.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/jobs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob(t *testing.T) {
	h := setupAPI(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/deployments", validCreateRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[CreateDeploymentResponse](t, rec)

	rec = h.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[JobResponse](t, rec)
	assert.Equal(t, created.JobID, job.ID)
	assert.Equal(t, string(domain.JobTypeDeploy), job.Type)

	rec = h.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
