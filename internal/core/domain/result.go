package domain

// =============================================================================
// Build Result
// =============================================================================

// BuildResult is the outcome of an image build.
type BuildResult struct {
	Success  bool   `json:"success"`
	ImageRef string `json:"image_ref,omitempty"`
	// Degraded is set when a stock base image was substituted for the
	// intended application image. Substitution never happens silently.
	Degraded bool     `json:"degraded,omitempty"`
	Logs     []string `json:"logs,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// =============================================================================
// Deploy Result
// =============================================================================

// DeployResult is the terminal outcome of a deployment rollout.
type DeployResult struct {
	Success bool   `json:"success"`
	LiveURL string `json:"live_url,omitempty"`
	// Degraded means resources exist and the URL is returned, but health
	// could not be confirmed within the gate's bound.
	Degraded    bool              `json:"degraded,omitempty"`
	ResourceIDs map[string]string `json:"resource_ids,omitempty"`
	Method      DeploymentMethod  `json:"deployment_method,omitempty"`
	Logs        []string          `json:"logs,omitempty"`
	ErrorKind   ErrorKind         `json:"error_kind,omitempty"`
}

// AddResource records an opaque resource identifier under a stable key.
func (r *DeployResult) AddResource(key, id string) {
	if id == "" {
		return
	}
	if r.ResourceIDs == nil {
		r.ResourceIDs = make(map[string]string)
	}
	r.ResourceIDs[key] = id
}

// Log appends a structured log line to the result.
func (r *DeployResult) Log(line string) {
	r.Logs = append(r.Logs, line)
}
