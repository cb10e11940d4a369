// Package domain contains the core types of the deployment control plane.
// This is part of the Functional Core - no I/O, no cloud calls.
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind classifies a failure so that callers can branch on it without
// inspecting error text. Cloud provider errors are mapped into these kinds
// at the shell boundary.
type ErrorKind string

const (
	// ErrKindNone means no error occurred.
	ErrKindNone ErrorKind = ""

	// ErrKindDetectionMismatch means no requirements descriptor could be produced.
	ErrKindDetectionMismatch ErrorKind = "detection_mismatch"

	// ErrKindBuildFailure means the image build or push failed.
	ErrKindBuildFailure ErrorKind = "build_failure"

	// ErrKindProvisionCompute means declarative config computation failed.
	ErrKindProvisionCompute ErrorKind = "provision_compute_error"

	// ErrKindDeployFailure means a cloud mutation step failed irrecoverably.
	ErrKindDeployFailure ErrorKind = "deploy_failure"

	// ErrKindHealthTimeout means resources exist but health was not confirmed in time.
	ErrKindHealthTimeout ErrorKind = "health_timeout"

	// ErrKindQuotaExceeded means a capacity/quota-class provider error occurred.
	// It triggers path fallback, not immediate failure.
	ErrKindQuotaExceeded ErrorKind = "quota_exceeded"

	// ErrKindLockContention means another worker holds the target's lock.
	ErrKindLockContention ErrorKind = "lock_contention"

	// ErrKindPermissionDenied means an identity/ACL operation was refused.
	ErrKindPermissionDenied ErrorKind = "permission_denied"

	// ErrKindResourceExists means a named resource already exists.
	// Idempotent ensure steps branch on this and reuse the resource.
	ErrKindResourceExists ErrorKind = "resource_exists"

	// ErrKindNotFound means a named resource does not exist.
	ErrKindNotFound ErrorKind = "not_found"

	// ErrKindConfigInvalid means the deployment request failed validation
	// before any cloud call was issued.
	ErrKindConfigInvalid ErrorKind = "config_invalid"
)

// Terminal reports whether the kind short-circuits the pipeline.
func (k ErrorKind) Terminal() bool {
	switch k {
	case ErrKindDetectionMismatch, ErrKindBuildFailure, ErrKindProvisionCompute, ErrKindConfigInvalid:
		return true
	}
	return false
}

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNoDescriptor is returned when detection declines the source tree.
	ErrNoDescriptor = errors.New("no requirements descriptor could be produced for this source tree")

	// ErrLockHeld is returned when a deployment lock is held by another worker.
	ErrLockHeld = errors.New("deployment lock is held by another worker")

	// ErrInvalidTransition is returned for a disallowed status transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSessionLocked is returned when resuming a session whose lock is held elsewhere.
	ErrSessionLocked = errors.New("session is locked by another worker")

	// ErrStaticPathRejected is returned when a descriptor requiring a server
	// process is routed at a static-content-only deployment path.
	ErrStaticPathRejected = errors.New("server-side runtime cannot be deployed to a static-only path")
)

// =============================================================================
// Pipeline Error
// =============================================================================

// PipelineError carries the error kind, the pipeline step that failed, and an
// optional remediation hint for the session log.
type PipelineError struct {
	Kind ErrorKind
	Step string
	Hint string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Kind)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a PipelineError.
func NewPipelineError(kind ErrorKind, step string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Step: step, Err: err}
}

// WithHint attaches a remediation hint and returns the error.
func (e *PipelineError) WithHint(hint string) *PipelineError {
	e.Hint = hint
	return e
}

// KindOf extracts the ErrorKind from an error chain.
// Unclassified errors report ErrKindDeployFailure only when nonNil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrKindNone
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindDeployFailure
}
