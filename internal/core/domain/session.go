package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Session Status
// =============================================================================

// SessionStatus is the lifecycle state of a deployment session.
type SessionStatus string

const (
	SessionPending      SessionStatus = "pending"
	SessionAnalyzing    SessionStatus = "analyzing"
	SessionBuilding     SessionStatus = "building"
	SessionProvisioning SessionStatus = "provisioning"
	SessionDeploying    SessionStatus = "deploying"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
	SessionCancelled    SessionStatus = "cancelled"
)

// Terminal reports whether the status is final for the current run.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// =============================================================================
// Resume Strategy
// =============================================================================

// ResumeStrategy selects how a failed or cancelled session is resumed.
type ResumeStrategy string

const (
	// ResumeContinue picks up at the last good step.
	ResumeContinue ResumeStrategy = "continue"
	// ResumeRestart re-runs the pipeline from the beginning.
	ResumeRestart ResumeStrategy = "restart"
)

// =============================================================================
// Session Log
// =============================================================================

// MaxSessionLogEntries caps the per-session log. Oldest entries are dropped
// first so a long-running session cannot grow without bound.
const MaxSessionLogEntries = 500

// LogEntry is one append-only session log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

// =============================================================================
// Deployment Session
// =============================================================================

// DeploymentSession tracks the lifecycle, progress and logs of one
// deployment. It is mutated only by the worker holding the session's
// deployment lock; callers read it freely.
type DeploymentSession struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	ProjectName string        `json:"project_name"`
	Region      string        `json:"region"`
	Status      SessionStatus `json:"status"`
	Progress    int           `json:"progress_percentage"`
	CurrentStep string        `json:"current_step"`
	Logs        []LogEntry    `json:"logs,omitempty"`

	// Sub-results from completed pipeline stages. They let a resumed session
	// continue at the last good step instead of repeating finished work.
	Analysis *RequirementsDescriptor `json:"analysis,omitempty"`
	Build    *BuildResult            `json:"build,omitempty"`
	Infra    *InfrastructureConfig   `json:"infra,omitempty"`
	Deploy   *DeployResult           `json:"deploy,omitempty"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewDeploymentSession creates a pending session for a tenant's target.
func NewDeploymentSession(tenantID, projectName, region string) *DeploymentSession {
	now := time.Now().UTC()
	return &DeploymentSession{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ProjectName: projectName,
		Region:      region,
		Status:      SessionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// =============================================================================
// Session State Machine
// =============================================================================

var validSessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:      {SessionAnalyzing, SessionCancelled},
	SessionAnalyzing:    {SessionBuilding, SessionProvisioning, SessionFailed, SessionCancelled},
	SessionBuilding:     {SessionProvisioning, SessionFailed, SessionCancelled},
	SessionProvisioning: {SessionDeploying, SessionFailed, SessionCancelled},
	SessionDeploying:    {SessionCompleted, SessionFailed, SessionCancelled},
	// Failed and cancelled sessions may be resumed: restart re-enters pending,
	// continue re-enters whichever stage follows the last good sub-result.
	SessionFailed:    {SessionPending, SessionAnalyzing, SessionBuilding, SessionProvisioning, SessionDeploying},
	SessionCancelled: {SessionPending, SessionAnalyzing, SessionBuilding, SessionProvisioning, SessionDeploying},
	SessionCompleted: {},
}

// Transition moves the session to a new status, enforcing the state machine.
func (s *DeploymentSession) Transition(to SessionStatus) error {
	allowed, exists := validSessionTransitions[s.Status]
	if !exists {
		return ErrInvalidTransition
	}
	for _, st := range allowed {
		if st == to {
			s.Status = to
			s.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrInvalidTransition
}

// SetProgress advances the progress percentage. Progress is monotonic within
// one run; a lower value is ignored rather than rejected.
func (s *DeploymentSession) SetProgress(pct int, step string) {
	if pct > 100 {
		pct = 100
	}
	if pct > s.Progress {
		s.Progress = pct
	}
	s.CurrentStep = step
	s.UpdatedAt = time.Now().UTC()
}

// ResetProgress zeroes the progress counter for a restarted run.
func (s *DeploymentSession) ResetProgress() {
	s.Progress = 0
	s.CurrentStep = ""
	s.UpdatedAt = time.Now().UTC()
}

// AppendLog appends one log entry, dropping the oldest entry when the cap is
// reached.
func (s *DeploymentSession) AppendLog(level, message, hint string) {
	entry := LogEntry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: message,
		Hint:    hint,
	}
	s.Logs = append(s.Logs, entry)
	if len(s.Logs) > MaxSessionLogEntries {
		s.Logs = s.Logs[len(s.Logs)-MaxSessionLogEntries:]
	}
	s.UpdatedAt = entry.Time
}

// Fail marks the session failed with a terse cause.
func (s *DeploymentSession) Fail(kind ErrorKind, message string) error {
	if err := s.Transition(SessionFailed); err != nil {
		return err
	}
	s.ErrorKind = kind
	s.ErrorMessage = message
	return nil
}

// Resumable reports whether the session may be resumed.
func (s *DeploymentSession) Resumable() bool {
	return s.Status == SessionFailed || s.Status == SessionCancelled
}

// LastGoodStatus returns the status a continued resumption should re-enter,
// based on which sub-results already exist.
func (s *DeploymentSession) LastGoodStatus() SessionStatus {
	switch {
	case s.Infra != nil:
		return SessionDeploying
	case s.Build != nil:
		return SessionProvisioning
	case s.Analysis != nil:
		return SessionBuilding
	default:
		return SessionAnalyzing
	}
}
