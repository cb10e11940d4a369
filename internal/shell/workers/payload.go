package workers

import (
	"encoding/json"
	"fmt"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/crypto"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// =============================================================================
// Job Payload
// =============================================================================

// DeployPayload is the JSON body carried by deploy, resume and destroy jobs.
// Cloud credentials travel sealed; they are opened inside the worker for the
// duration of one job execution and never written back anywhere.
type DeployPayload struct {
	SessionID      string `json:"session_id"`
	TenantID       string `json:"tenant_id"`
	ProjectName    string `json:"project_name"`
	Region         string `json:"region"`
	SourceLocation string `json:"source_location"`
	FrameworkHint  string `json:"framework_hint,omitempty"`

	// Provider selects the cloud backend, "aws" or "digitalocean".
	Provider string `json:"provider"`

	// StaticOnly routes the target at the static-content-only path.
	StaticOnly bool `json:"static_only,omitempty"`

	ResumeStrategy domain.ResumeStrategy `json:"resume_strategy,omitempty"`

	// SealedCredentials is the encrypted JSON of cloud.Credentials.
	SealedCredentials string `json:"sealed_credentials"`
}

// ParsePayload decodes a job's payload body.
func ParsePayload(raw string) (*DeployPayload, error) {
	var p DeployPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decoding job payload: %w", err)
	}
	if p.SessionID == "" {
		return nil, fmt.Errorf("job payload missing session_id")
	}
	return &p, nil
}

// Encode serializes the payload for storage as a job body.
func (p *DeployPayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	return string(raw), nil
}

// SealCredentials encrypts caller-supplied cloud credentials for embedding in
// a job payload.
func SealCredentials(creds cloud.Credentials, key []byte) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}
	sealed, err := crypto.EncryptToBase64(raw, key)
	if err != nil {
		return "", fmt.Errorf("sealing credentials: %w", err)
	}
	return sealed, nil
}

// OpenCredentials decrypts the payload's sealed credentials. The returned
// value is scoped to the calling job execution.
func (p *DeployPayload) OpenCredentials(key []byte) (cloud.Credentials, error) {
	var creds cloud.Credentials
	raw, err := crypto.DecryptFromBase64(p.SealedCredentials, key)
	if err != nil {
		return creds, fmt.Errorf("opening credentials: %w", err)
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("decoding credentials: %w", err)
	}
	return creds, nil
}
