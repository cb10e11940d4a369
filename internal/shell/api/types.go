package api

import (
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// CredentialsRequest carries caller cloud credentials. They are sealed into
// the job payload on receipt and never stored in cleartext.
type CredentialsRequest struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
	APIToken        string `json:"api_token,omitempty"`
}

// CreateDeploymentRequest is the request to start a deployment.
type CreateDeploymentRequest struct {
	TenantID       string             `json:"tenant_id"`
	ProjectName    string             `json:"project_name"`
	Region         string             `json:"region"`
	SourceLocation string             `json:"source_location"`
	Provider       string             `json:"provider"`
	FrameworkHint  string             `json:"framework_hint,omitempty"`
	StaticOnly     bool               `json:"static_only,omitempty"`
	Priority       int                `json:"priority,omitempty"`
	Credentials    CredentialsRequest `json:"credentials"`
}

// ResumeDeploymentRequest resumes a failed or cancelled session.
type ResumeDeploymentRequest struct {
	Strategy       string             `json:"strategy,omitempty"`
	SourceLocation string             `json:"source_location"`
	Provider       string             `json:"provider"`
	Credentials    CredentialsRequest `json:"credentials"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// CreateDeploymentResponse acknowledges an accepted deployment.
type CreateDeploymentResponse struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

// LogEntryResponse is one session log line.
type LogEntryResponse struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

// SessionResponse is the status view of a deployment session.
type SessionResponse struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	ProjectName  string             `json:"project_name"`
	Region       string             `json:"region"`
	Status       string             `json:"status"`
	Progress     int                `json:"progress_percentage"`
	CurrentStep  string             `json:"current_step,omitempty"`
	LiveURL      string             `json:"live_url,omitempty"`
	Degraded     bool               `json:"degraded,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Logs         []LogEntryResponse `json:"logs,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// JobResponse is the status view of a queued job.
type JobResponse struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Priority   int        `json:"priority"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// =============================================================================
// Conversions
// =============================================================================

func sessionToResponse(s *domain.DeploymentSession) SessionResponse {
	resp := SessionResponse{
		ID:           s.ID,
		TenantID:     s.TenantID,
		ProjectName:  s.ProjectName,
		Region:       s.Region,
		Status:       string(s.Status),
		Progress:     s.Progress,
		CurrentStep:  s.CurrentStep,
		ErrorKind:    string(s.ErrorKind),
		ErrorMessage: s.ErrorMessage,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Deploy != nil {
		resp.LiveURL = s.Deploy.LiveURL
		resp.Degraded = s.Deploy.Degraded
	}
	for _, entry := range s.Logs {
		resp.Logs = append(resp.Logs, LogEntryResponse{
			Time:    entry.Time,
			Level:   entry.Level,
			Message: entry.Message,
			Hint:    entry.Hint,
		})
	}
	return resp
}

func jobToResponse(j *domain.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Type:       string(j.Type),
		Status:     string(j.Status),
		Priority:   j.Priority,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		LastError:  j.LastError,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}
