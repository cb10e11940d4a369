package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/buildspec"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/crypto"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/detect"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/provision"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/builder"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud/aws"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud/digitalocean"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/deploy"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/queue"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ImageBuilder builds and pushes application images. Satisfied by
// *builder.Builder.
type ImageBuilder interface {
	Build(ctx context.Context, req builder.Request) (*domain.BuildResult, error)
	Push(ctx context.Context, imageRef string, auth builder.AuthSource) error
}

// ProviderFactory constructs a cloud provider from per-job credentials.
type ProviderFactory func(name, region string, creds cloud.Credentials, logger *slog.Logger) (cloud.Provider, error)

// ErrUnknownProvider reports an unrecognized provider name in a job payload.
var ErrUnknownProvider = errors.New("unknown cloud provider")

// errJobCancelled signals that the job was cancelled between pipeline steps.
// The job record is already terminal, so the pool neither completes nor
// fails it.
var errJobCancelled = errors.New("job cancelled")

// DefaultProviderFactory wires the real provider implementations.
func DefaultProviderFactory(name, region string, creds cloud.Credentials, logger *slog.Logger) (cloud.Provider, error) {
	switch name {
	case "aws":
		return aws.NewProvider(region, creds, logger), nil
	case "digitalocean":
		return digitalocean.NewProvider(creds.APIToken, region, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator drives one job through the deployment pipeline: analyze the
// source, build and push the image, compute infrastructure, roll out. All
// cloud mutations for a target happen under that target's deployment lock,
// and the session record is updated at every step boundary.
type Orchestrator struct {
	store     store.Store
	locks     *queue.DeploymentLock
	images    ImageBuilder
	providers ProviderFactory

	// credKey opens sealed payload credentials and seals generated
	// database passwords at rest.
	credKey []byte

	healthAttempts int
	healthInterval time.Duration
	logger         *slog.Logger
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(s store.Store, locks *queue.DeploymentLock, images ImageBuilder, providers ProviderFactory, credKey []byte, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     s,
		locks:     locks,
		images:    images,
		providers: providers,
		credKey:   credKey,
		logger:    logger.With("component", "orchestrator"),
	}
}

// WithHealthGate overrides the rollout health gate bounds.
func (o *Orchestrator) WithHealthGate(attempts int, interval time.Duration) *Orchestrator {
	o.healthAttempts = attempts
	o.healthInterval = interval
	return o
}

// Execute runs one claimed job to completion. A nil return means the job
// succeeded; errJobCancelled means the job went terminal underneath us; any
// other error is handed to the queue for retry accounting.
func (o *Orchestrator) Execute(ctx context.Context, workerID string, job *domain.Job) error {
	switch job.Type {
	case domain.JobTypeDeploy, domain.JobTypeResume:
		return o.runPipeline(ctx, workerID, job)
	case domain.JobTypeDestroy:
		// Resource teardown is manual for now. The ensure-style provider
		// surface has no delete operations to drive.
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "destroy",
			fmt.Errorf("destroy jobs are not automated")).
			WithHint("delete the target's cloud resources through the provider console")
	default:
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "dispatch",
			fmt.Errorf("unknown job type %q", job.Type))
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// jobRun carries the mutable state of one pipeline execution.
type jobRun struct {
	job      *domain.Job
	payload  *DeployPayload
	session  *domain.DeploymentSession
	provider cloud.Provider
	targetID string
	workerID string
}

// pipelineStep is one stage of the pipeline. A stage whose sub-result is
// already present on the session is skipped, which is what makes
// continue-style resumption pick up at the last good step.
type pipelineStep struct {
	status   domain.SessionStatus
	name     string
	progress int
	done     func(*domain.DeploymentSession) bool
	run      func(context.Context, *jobRun) error
}

func (o *Orchestrator) steps() []pipelineStep {
	return []pipelineStep{
		{
			status:   domain.SessionAnalyzing,
			name:     "analyze",
			progress: 10,
			done:     func(s *domain.DeploymentSession) bool { return s.Analysis != nil },
			run:      o.analyze,
		},
		{
			status:   domain.SessionBuilding,
			name:     "build",
			progress: 35,
			done:     func(s *domain.DeploymentSession) bool { return s.Build != nil && s.Build.Success },
			run:      o.build,
		},
		{
			status:   domain.SessionProvisioning,
			name:     "provision",
			progress: 60,
			done:     func(s *domain.DeploymentSession) bool { return s.Infra != nil },
			run:      o.provision,
		},
		{
			status:   domain.SessionDeploying,
			name:     "deploy",
			progress: 80,
			done:     func(s *domain.DeploymentSession) bool { return false },
			run:      o.deploy,
		},
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, workerID string, job *domain.Job) error {
	payload, err := ParsePayload(job.Payload)
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "dispatch", err)
	}

	session, err := o.store.GetSession(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", payload.SessionID, err)
	}

	targetID := provision.ResourceName(session.ProjectName,
		provision.TargetSuffix(session.TenantID, session.ProjectName))

	// Exactly one worker mutates a target at a time. A held lock rejects
	// the job; the queue's delayed retry acts as the poll.
	if err := o.locks.Acquire(ctx, targetID, workerID); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.locks.Release(releaseCtx, targetID, workerID); err != nil {
			o.logger.Warn("releasing deployment lock", "target", targetID, "error", err)
		}
	}()

	creds, err := payload.OpenCredentials(o.credKey)
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "dispatch", err)
	}
	provider, err := o.providers(payload.Provider, session.Region, creds, o.logger)
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "dispatch", err)
	}

	run := &jobRun{
		job:      job,
		payload:  payload,
		session:  session,
		provider: provider,
		targetID: targetID,
		workerID: workerID,
	}

	if job.Type == domain.JobTypeResume {
		if err := o.prepareResume(ctx, run); err != nil {
			return err
		}
	}

	log := o.logger.With("session", session.ID, "target", targetID, "worker", workerID)

	for _, step := range o.steps() {
		if step.done(session) {
			continue
		}

		// Cancellation and lock renewal happen at step boundaries only;
		// a running cloud operation is never interrupted mid-flight.
		if err := o.checkpoint(ctx, run); err != nil {
			return err
		}

		if err := session.Transition(step.status); err != nil {
			return err
		}
		session.SetProgress(step.progress, step.name)
		session.AppendLog("info", step.name+" started", "")
		if err := o.store.UpdateSession(ctx, session); err != nil {
			return err
		}

		log.Info("pipeline step", "step", step.name)
		if err := step.run(ctx, run); err != nil {
			o.failSession(ctx, session, err)
			return err
		}
		if err := o.store.UpdateSession(ctx, session); err != nil {
			return err
		}
	}

	if err := session.Transition(domain.SessionCompleted); err != nil {
		return err
	}
	session.SetProgress(100, "completed")
	if session.Deploy != nil && session.Deploy.LiveURL != "" {
		session.AppendLog("info", "deployment live at "+session.Deploy.LiveURL, "")
	}
	if err := o.store.UpdateSession(ctx, session); err != nil {
		return err
	}
	log.Info("pipeline completed", "url", liveURL(session))
	return nil
}

// prepareResume validates resumability and, for restarts, clears the
// sub-results so every stage runs again.
func (o *Orchestrator) prepareResume(ctx context.Context, r *jobRun) error {
	if !r.session.Resumable() {
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "resume",
			fmt.Errorf("session %s is %s, not resumable", r.session.ID, r.session.Status))
	}
	if r.payload.ResumeStrategy == domain.ResumeRestart {
		r.session.Analysis = nil
		r.session.Build = nil
		r.session.Infra = nil
		r.session.Deploy = nil
		r.session.ResetProgress()
	}
	r.session.ErrorKind = domain.ErrKindNone
	r.session.ErrorMessage = ""
	return o.store.UpdateSession(ctx, r.session)
}

// checkpoint runs between steps: it honors context cancellation, observes
// job cancellation, and renews the deployment lock lease.
func (o *Orchestrator) checkpoint(ctx context.Context, r *jobRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := o.store.GetJob(ctx, r.job.ID)
	if err != nil {
		return err
	}
	if current.Status == domain.JobStatusCancelled {
		if r.session.Status.Terminal() {
			return errJobCancelled
		}
		if err := r.session.Transition(domain.SessionCancelled); err != nil {
			return err
		}
		r.session.AppendLog("warn", "deployment cancelled; created resources are left in place", "")
		if err := o.store.UpdateSession(ctx, r.session); err != nil {
			return err
		}
		return errJobCancelled
	}

	return o.locks.Renew(ctx, r.targetID, r.workerID)
}

func (o *Orchestrator) failSession(ctx context.Context, session *domain.DeploymentSession, cause error) {
	kind := domain.KindOf(cause)
	var perr *domain.PipelineError
	hint := ""
	if errors.As(cause, &perr) {
		hint = perr.Hint
	}
	session.AppendLog("error", cause.Error(), hint)
	if err := session.Fail(kind, cause.Error()); err != nil {
		o.logger.Warn("marking session failed", "session", session.ID, "error", err)
		return
	}
	if err := o.store.UpdateSession(ctx, session); err != nil {
		o.logger.Warn("persisting failed session", "session", session.ID, "error", err)
	}
}

func liveURL(session *domain.DeploymentSession) string {
	if session.Deploy == nil {
		return ""
	}
	return session.Deploy.LiveURL
}

// =============================================================================
// Stages
// =============================================================================

func (o *Orchestrator) analyze(ctx context.Context, r *jobRun) error {
	descriptor, err := detect.Detect(os.DirFS(r.payload.SourceLocation),
		detect.Hints{Framework: r.payload.FrameworkHint})
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindDetectionMismatch, "analyze", err).
			WithHint("supported applications: laravel, wordpress, symfony, generic php, static sites")
	}
	r.session.Analysis = descriptor
	r.session.AppendLog("info", fmt.Sprintf("detected %s app, runtime constraint %s",
		descriptor.AppType, descriptor.VersionConstraint), "")
	return nil
}

func (o *Orchestrator) build(ctx context.Context, r *jobRun) error {
	registry := r.provider.Registry()
	repoURI, err := registry.EnsureRepository(ctx, r.targetID)
	if err != nil {
		return domain.NewPipelineError(domain.ErrKindBuildFailure, "ensure_repository", err)
	}

	def := buildspec.Render(r.session.Analysis)
	imageRef := repoURI + ":" + r.session.ID[:8]

	result, err := o.images.Build(ctx, builder.Request{
		Source:     os.DirFS(r.payload.SourceLocation),
		Definition: &def,
		ImageRef:   imageRef,
	})
	if err != nil {
		return err
	}
	if err := o.images.Push(ctx, imageRef, registry.AuthToken); err != nil {
		return err
	}

	r.session.Build = result
	if result.Degraded {
		r.session.AppendLog("warn", "image built against substituted base image", "")
	}
	for _, w := range result.Warnings {
		r.session.AppendLog("warn", w, "")
	}
	return nil
}

func (o *Orchestrator) provision(ctx context.Context, r *jobRun) error {
	existing, err := o.loadDatabaseProvision(ctx, r.targetID)
	if err != nil {
		return err
	}

	cfg, err := provision.Provision(r.session.Analysis, provision.Request{
		TenantID:         r.session.TenantID,
		ProjectName:      r.session.ProjectName,
		Region:           r.session.Region,
		ExistingDatabase: existing,
	})
	if err != nil {
		return err
	}

	if cfg.Database != nil && existing == nil {
		if err := o.saveDatabaseProvision(ctx, r.targetID, cfg.Database); err != nil {
			return err
		}
		r.session.AppendLog("info", "generated database credentials for "+cfg.Database.ResourceName, "")
	}

	// The session record is readable through the status API; it carries the
	// config with the password redacted. The sealed store record is the
	// only place the password persists.
	r.session.Infra = redactInfra(cfg)
	return nil
}

// redactInfra deep-copies a config with the database password stripped.
func redactInfra(cfg *domain.InfrastructureConfig) *domain.InfrastructureConfig {
	stored := *cfg
	if cfg.Database != nil {
		db := *cfg.Database
		db.Credentials.Password = ""
		stored.Database = &db
	}
	return &stored
}

func (o *Orchestrator) deploy(ctx context.Context, r *jobRun) error {
	deployer := deploy.New(r.provider, o.logger)
	if o.healthAttempts > 0 || o.healthInterval > 0 {
		deployer = deployer.WithHealthGate(o.healthAttempts, o.healthInterval)
	}

	infra, err := o.hydrateInfra(ctx, r)
	if err != nil {
		return err
	}

	result, err := deployer.Deploy(ctx, deploy.Request{
		TargetName: r.targetID,
		Descriptor: r.session.Analysis,
		Infra:      infra,
		ImageRef:   r.session.Build.ImageRef,
		StaticOnly: r.payload.StaticOnly,
	})
	r.session.Deploy = result
	if err != nil {
		return err
	}

	if result.Degraded {
		r.session.AppendLog("warn", "deployment completed degraded", "")
	}

	// The rollout learns the database endpoint; persist it so later runs
	// reuse it instead of re-waiting on propagation.
	if db := infra.Database; db != nil && db.Host != "" {
		if err := o.saveDatabaseProvision(ctx, r.targetID, db); err != nil {
			return err
		}
		r.session.Infra.Database.Host = db.Host
		r.session.Infra.Database.Port = db.Port
	}
	return nil
}

// hydrateInfra rebuilds a deployable config from the session's redacted copy,
// restoring the sealed database password from the store.
func (o *Orchestrator) hydrateInfra(ctx context.Context, r *jobRun) (*domain.InfrastructureConfig, error) {
	infra := r.session.Infra
	if infra.Database == nil {
		return infra, nil
	}
	hydrated := *infra
	db := *infra.Database
	if db.Credentials.Password == "" {
		loaded, err := o.loadDatabaseProvision(ctx, r.targetID)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, domain.NewPipelineError(domain.ErrKindConfigInvalid, "rollout",
				fmt.Errorf("no persisted database credentials for %s", r.targetID))
		}
		db = *loaded
	}
	hydrated.Database = &db
	return &hydrated, nil
}

// =============================================================================
// Database Provision Persistence
// =============================================================================

// loadDatabaseProvision fetches the persisted provision for a target and
// opens its sealed password. Returns nil when no provision exists yet.
func (o *Orchestrator) loadDatabaseProvision(ctx context.Context, targetID string) (*domain.DatabaseProvision, error) {
	existing, err := o.store.GetDatabaseProvision(ctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	plain, err := crypto.DecryptFromBase64(existing.Credentials.Password, o.credKey)
	if err != nil {
		return nil, fmt.Errorf("opening database credentials for %s: %w", targetID, err)
	}
	existing.Credentials.Password = string(plain)
	return existing, nil
}

// saveDatabaseProvision persists a provision with the password sealed. The
// stored record never carries the cleartext password.
func (o *Orchestrator) saveDatabaseProvision(ctx context.Context, targetID string, db *domain.DatabaseProvision) error {
	sealed := *db
	enc, err := crypto.EncryptToBase64([]byte(db.Credentials.Password), o.credKey)
	if err != nil {
		return fmt.Errorf("sealing database credentials for %s: %w", targetID, err)
	}
	sealed.Credentials.Password = enc
	return o.store.SaveDatabaseProvision(ctx, targetID, &sealed)
}
