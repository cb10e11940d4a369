package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Job Operations
// =============================================================================

// jobRow represents a job row in the database.
type jobRow struct {
	ID         string  `db:"id"`
	Type       string  `db:"type"`
	Payload    string  `db:"payload"`
	Priority   int     `db:"priority"`
	Status     string  `db:"status"`
	RetryCount int     `db:"retry_count"`
	MaxRetries int     `db:"max_retries"`
	LastError  string  `db:"last_error"`
	CreatedAt  string  `db:"created_at"`
	UpdatedAt  string  `db:"updated_at"`
	StartedAt  *string `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
	NotBefore  *string `db:"not_before"`
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.Job) error {
	return createJob(ctx, s.db, job)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return getJob(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	return updateJob(ctx, s.db, job)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts ListOptions) ([]domain.Job, error) {
	return listJobs(ctx, s.db, opts)
}

func (s *SQLiteStore) ClaimNextJob(ctx context.Context, now time.Time) (*domain.Job, error) {
	var claimed *domain.Job
	err := s.WithTx(ctx, func(tx Store) error {
		job, err := tx.ClaimNextJob(ctx, now)
		if err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *SQLiteStore) ReleaseRetrying(ctx context.Context, now time.Time) (int, error) {
	return releaseRetrying(ctx, s.db, now)
}

func (s *SQLiteStore) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	return requeueStale(ctx, s.db, cutoff)
}

// =============================================================================
// Session Operations
// =============================================================================

// sessionRow represents a session row in the database.
type sessionRow struct {
	ID           string  `db:"id"`
	TenantID     string  `db:"tenant_id"`
	ProjectName  string  `db:"project_name"`
	Region       string  `db:"region"`
	Status       string  `db:"status"`
	Progress     int     `db:"progress"`
	CurrentStep  string  `db:"current_step"`
	Logs         *string `db:"logs"`
	Analysis     *string `db:"analysis"`
	Build        *string `db:"build"`
	Infra        *string `db:"infra"`
	Deploy       *string `db:"deploy"`
	ErrorKind    string  `db:"error_kind"`
	ErrorMessage string  `db:"error_message"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.DeploymentSession) error {
	return createSession(ctx, s.db, session)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.DeploymentSession, error) {
	return getSession(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.DeploymentSession) error {
	return updateSession(ctx, s.db, session)
}

func (s *SQLiteStore) ListSessionsByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]domain.DeploymentSession, error) {
	return listSessionsByTenant(ctx, s.db, tenantID, opts)
}

// =============================================================================
// Lock Operations
// =============================================================================

func (s *SQLiteStore) AcquireLock(ctx context.Context, targetID, holder string, ttl time.Duration) (bool, error) {
	return acquireLock(ctx, s.db, targetID, holder, ttl)
}

func (s *SQLiteStore) RenewLock(ctx context.Context, targetID, holder string, ttl time.Duration) (bool, error) {
	return renewLock(ctx, s.db, targetID, holder, ttl)
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, targetID, holder string) error {
	return releaseLock(ctx, s.db, targetID, holder)
}

func (s *SQLiteStore) LockHolder(ctx context.Context, targetID string) (string, bool, error) {
	return lockHolder(ctx, s.db, targetID)
}

// =============================================================================
// Database Provision Operations
// =============================================================================

func (s *SQLiteStore) GetDatabaseProvision(ctx context.Context, targetID string) (*domain.DatabaseProvision, error) {
	return getDatabaseProvision(ctx, s.db, targetID)
}

func (s *SQLiteStore) SaveDatabaseProvision(ctx context.Context, targetID string, provision *domain.DatabaseProvision) error {
	return saveDatabaseProvision(ctx, s.db, targetID, provision)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateJob(ctx context.Context, job *domain.Job) error {
	return createJob(ctx, s.tx, job)
}

func (s *txSQLiteStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return getJob(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	return updateJob(ctx, s.tx, job)
}

func (s *txSQLiteStore) ListJobs(ctx context.Context, opts ListOptions) ([]domain.Job, error) {
	return listJobs(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ClaimNextJob(ctx context.Context, now time.Time) (*domain.Job, error) {
	return claimNextJob(ctx, s.tx, now)
}

func (s *txSQLiteStore) ReleaseRetrying(ctx context.Context, now time.Time) (int, error) {
	return releaseRetrying(ctx, s.tx, now)
}

func (s *txSQLiteStore) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	return requeueStale(ctx, s.tx, cutoff)
}

func (s *txSQLiteStore) CreateSession(ctx context.Context, session *domain.DeploymentSession) error {
	return createSession(ctx, s.tx, session)
}

func (s *txSQLiteStore) GetSession(ctx context.Context, id string) (*domain.DeploymentSession, error) {
	return getSession(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateSession(ctx context.Context, session *domain.DeploymentSession) error {
	return updateSession(ctx, s.tx, session)
}

func (s *txSQLiteStore) ListSessionsByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]domain.DeploymentSession, error) {
	return listSessionsByTenant(ctx, s.tx, tenantID, opts)
}

func (s *txSQLiteStore) AcquireLock(ctx context.Context, targetID, holder string, ttl time.Duration) (bool, error) {
	return acquireLock(ctx, s.tx, targetID, holder, ttl)
}

func (s *txSQLiteStore) RenewLock(ctx context.Context, targetID, holder string, ttl time.Duration) (bool, error) {
	return renewLock(ctx, s.tx, targetID, holder, ttl)
}

func (s *txSQLiteStore) ReleaseLock(ctx context.Context, targetID, holder string) error {
	return releaseLock(ctx, s.tx, targetID, holder)
}

func (s *txSQLiteStore) LockHolder(ctx context.Context, targetID string) (string, bool, error) {
	return lockHolder(ctx, s.tx, targetID)
}

func (s *txSQLiteStore) GetDatabaseProvision(ctx context.Context, targetID string) (*domain.DatabaseProvision, error) {
	return getDatabaseProvision(ctx, s.tx, targetID)
}

func (s *txSQLiteStore) SaveDatabaseProvision(ctx context.Context, targetID string, provision *domain.DatabaseProvision) error {
	return saveDatabaseProvision(ctx, s.tx, targetID, provision)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions: Jobs
// =============================================================================

func createJob(ctx context.Context, exec executor, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, type, payload, priority, status, retry_count, max_retries,
			last_error, created_at, updated_at, started_at, finished_at, not_before
		) VALUES (
			:id, :type, :payload, :priority, :status, :retry_count, :max_retries,
			:last_error, :created_at, :updated_at, :started_at, :finished_at, :not_before
		)`

	_, err := exec.NamedExecContext(ctx, query, jobToRow(job))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateJob", "job", job.ID, "job with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateJob", "job", job.ID, err.Error(), err)
	}
	return nil
}

func getJob(ctx context.Context, exec executor, id string) (*domain.Job, error) {
	var row jobRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetJob", "job", id, "job not found", ErrNotFound)
		}
		return nil, NewStoreError("GetJob", "job", id, err.Error(), err)
	}
	return rowToJob(&row)
}

func updateJob(ctx context.Context, exec executor, job *domain.Job) error {
	query := `
		UPDATE jobs SET
			status = :status,
			retry_count = :retry_count,
			last_error = :last_error,
			updated_at = :updated_at,
			started_at = :started_at,
			finished_at = :finished_at,
			not_before = :not_before
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, jobToRow(job))
	if err != nil {
		return NewStoreError("UpdateJob", "job", job.ID, err.Error(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("UpdateJob", "job", job.ID, "job not found", ErrNotFound)
	}
	return nil
}

func listJobs(ctx context.Context, exec executor, opts ListOptions) ([]domain.Job, error) {
	opts = opts.Normalize()

	var rows []jobRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM jobs ORDER BY created_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListJobs", "job", "", err.Error(), err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		job, err := rowToJob(&row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// claimNextJob selects the highest-priority claimable job and marks it
// running. The guarded UPDATE keeps the claim atomic even with concurrent
// workers; an affected count of zero means someone else won the race.
func claimNextJob(ctx context.Context, exec executor, now time.Time) (*domain.Job, error) {
	nowStr := now.UTC().Format(time.RFC3339)

	for attempt := 0; attempt < 3; attempt++ {
		var row jobRow
		err := exec.GetContext(ctx, &row, `
			SELECT * FROM jobs
			WHERE status = ? AND (not_before IS NULL OR not_before <= ?)
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1`, string(domain.JobStatusPending), nowStr)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNoPendingJobs
			}
			return nil, NewStoreError("ClaimNextJob", "job", "", err.Error(), err)
		}

		result, err := exec.ExecContext(ctx, `
			UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(domain.JobStatusRunning), nowStr, nowStr, row.ID, string(domain.JobStatusPending))
		if err != nil {
			return nil, NewStoreError("ClaimNextJob", "job", row.ID, err.Error(), err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			continue // lost the race, pick the next candidate
		}

		row.Status = string(domain.JobStatusRunning)
		row.StartedAt = &nowStr
		row.UpdatedAt = nowStr
		return rowToJob(&row)
	}

	return nil, ErrNoPendingJobs
}

func releaseRetrying(ctx context.Context, exec executor, now time.Time) (int, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	result, err := exec.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE status = ? AND not_before IS NOT NULL AND not_before <= ?`,
		string(domain.JobStatusPending), nowStr, string(domain.JobStatusRetrying), nowStr)
	if err != nil {
		return 0, NewStoreError("ReleaseRetrying", "job", "", err.Error(), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func requeueStale(ctx context.Context, exec executor, cutoff time.Time) (int, error) {
	nowStr := time.Now().UTC().Format(time.RFC3339)
	result, err := exec.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = NULL, updated_at = ?
		WHERE status = ? AND started_at IS NOT NULL AND started_at <= ?`,
		string(domain.JobStatusPending), nowStr, string(domain.JobStatusRunning),
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, NewStoreError("RequeueStale", "job", "", err.Error(), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func jobToRow(job *domain.Job) map[string]any {
	return map[string]any{
		"id":          job.ID,
		"type":        string(job.Type),
		"payload":     job.Payload,
		"priority":    job.Priority,
		"status":      string(job.Status),
		"retry_count": job.RetryCount,
		"max_retries": job.MaxRetries,
		"last_error":  job.LastError,
		"created_at":  job.CreatedAt.Format(time.RFC3339),
		"updated_at":  job.UpdatedAt.Format(time.RFC3339),
		"started_at":  timePtrToString(job.StartedAt),
		"finished_at": timePtrToString(job.FinishedAt),
		"not_before":  timePtrToString(job.NotBefore),
	}
}

func rowToJob(row *jobRow) (*domain.Job, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToJob", "job", row.ID, "invalid created_at", ErrInvalidData)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToJob", "job", row.ID, "invalid updated_at", ErrInvalidData)
	}

	return &domain.Job{
		ID:         row.ID,
		Type:       domain.JobType(row.Type),
		Payload:    row.Payload,
		Priority:   row.Priority,
		Status:     domain.JobStatus(row.Status),
		RetryCount: row.RetryCount,
		MaxRetries: row.MaxRetries,
		LastError:  row.LastError,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		StartedAt:  stringToTimePtr(row.StartedAt),
		FinishedAt: stringToTimePtr(row.FinishedAt),
		NotBefore:  stringToTimePtr(row.NotBefore),
	}, nil
}

// =============================================================================
// Shared Implementation Functions: Sessions
// =============================================================================

func createSession(ctx context.Context, exec executor, session *domain.DeploymentSession) error {
	row, err := sessionToRow(session)
	if err != nil {
		return NewStoreError("CreateSession", "session", session.ID, err.Error(), ErrInvalidData)
	}

	query := `
		INSERT INTO sessions (
			id, tenant_id, project_name, region, status, progress, current_step,
			logs, analysis, build, infra, deploy, error_kind, error_message,
			created_at, updated_at
		) VALUES (
			:id, :tenant_id, :project_name, :region, :status, :progress, :current_step,
			:logs, :analysis, :build, :infra, :deploy, :error_kind, :error_message,
			:created_at, :updated_at
		)`

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateSession", "session", session.ID, "session with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateSession", "session", session.ID, err.Error(), err)
	}
	return nil
}

func getSession(ctx context.Context, exec executor, id string) (*domain.DeploymentSession, error) {
	var row sessionRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM sessions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSession", "session", id, "session not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSession", "session", id, err.Error(), err)
	}
	return rowToSession(&row)
}

func updateSession(ctx context.Context, exec executor, session *domain.DeploymentSession) error {
	row, err := sessionToRow(session)
	if err != nil {
		return NewStoreError("UpdateSession", "session", session.ID, err.Error(), ErrInvalidData)
	}

	query := `
		UPDATE sessions SET
			status = :status,
			progress = :progress,
			current_step = :current_step,
			logs = :logs,
			analysis = :analysis,
			build = :build,
			infra = :infra,
			deploy = :deploy,
			error_kind = :error_kind,
			error_message = :error_message,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateSession", "session", session.ID, err.Error(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("UpdateSession", "session", session.ID, "session not found", ErrNotFound)
	}
	return nil
}

func listSessionsByTenant(ctx context.Context, exec executor, tenantID string, opts ListOptions) ([]domain.DeploymentSession, error) {
	opts = opts.Normalize()

	var rows []sessionRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM sessions WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		tenantID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListSessionsByTenant", "session", "", err.Error(), err)
	}

	sessions := make([]domain.DeploymentSession, 0, len(rows))
	for _, row := range rows {
		session, err := rowToSession(&row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

func sessionToRow(session *domain.DeploymentSession) (map[string]any, error) {
	logs, err := marshalNullable(session.Logs)
	if err != nil {
		return nil, err
	}
	analysis, err := marshalNullable(session.Analysis)
	if err != nil {
		return nil, err
	}
	build, err := marshalNullable(session.Build)
	if err != nil {
		return nil, err
	}
	infra, err := marshalNullable(session.Infra)
	if err != nil {
		return nil, err
	}
	deploy, err := marshalNullable(session.Deploy)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"id":            session.ID,
		"tenant_id":     session.TenantID,
		"project_name":  session.ProjectName,
		"region":        session.Region,
		"status":        string(session.Status),
		"progress":      session.Progress,
		"current_step":  session.CurrentStep,
		"logs":          logs,
		"analysis":      analysis,
		"build":         build,
		"infra":         infra,
		"deploy":        deploy,
		"error_kind":    string(session.ErrorKind),
		"error_message": session.ErrorMessage,
		"created_at":    session.CreatedAt.Format(time.RFC3339),
		"updated_at":    session.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func rowToSession(row *sessionRow) (*domain.DeploymentSession, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid created_at", ErrInvalidData)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid updated_at", ErrInvalidData)
	}

	session := &domain.DeploymentSession{
		ID:           row.ID,
		TenantID:     row.TenantID,
		ProjectName:  row.ProjectName,
		Region:       row.Region,
		Status:       domain.SessionStatus(row.Status),
		Progress:     row.Progress,
		CurrentStep:  row.CurrentStep,
		ErrorKind:    domain.ErrorKind(row.ErrorKind),
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if err := unmarshalNullable(row.Logs, &session.Logs); err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid logs", ErrInvalidData)
	}
	if err := unmarshalNullable(row.Analysis, &session.Analysis); err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid analysis", ErrInvalidData)
	}
	if err := unmarshalNullable(row.Build, &session.Build); err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid build", ErrInvalidData)
	}
	if err := unmarshalNullable(row.Infra, &session.Infra); err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid infra", ErrInvalidData)
	}
	if err := unmarshalNullable(row.Deploy, &session.Deploy); err != nil {
		return nil, NewStoreError("rowToSession", "session", row.ID, "invalid deploy", ErrInvalidData)
	}

	return session, nil
}

// =============================================================================
// Shared Implementation Functions: Locks
// =============================================================================

// acquireLock inserts or reclaims the lease row for a target. The upsert's
// WHERE clause only steals leases that have already expired, which keeps
// exactly one live holder per target.
func acquireLock(ctx context.Context, exec executor, targetID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	result, err := exec.ExecContext(ctx, `
		INSERT INTO deployment_locks (target_id, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE deployment_locks.expires_at <= ? OR deployment_locks.holder = excluded.holder`,
		targetID, holder, now.Add(ttl).Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return false, NewStoreError("AcquireLock", "lock", targetID, err.Error(), err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func renewLock(ctx context.Context, exec executor, targetID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	result, err := exec.ExecContext(ctx, `
		UPDATE deployment_locks SET expires_at = ?
		WHERE target_id = ? AND holder = ? AND expires_at > ?`,
		now.Add(ttl).Format(time.RFC3339), targetID, holder, now.Format(time.RFC3339))
	if err != nil {
		return false, NewStoreError("RenewLock", "lock", targetID, err.Error(), err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func releaseLock(ctx context.Context, exec executor, targetID, holder string) error {
	_, err := exec.ExecContext(ctx,
		`DELETE FROM deployment_locks WHERE target_id = ? AND holder = ?`, targetID, holder)
	if err != nil {
		return NewStoreError("ReleaseLock", "lock", targetID, err.Error(), err)
	}
	return nil
}

func lockHolder(ctx context.Context, exec executor, targetID string) (string, bool, error) {
	var row struct {
		Holder    string `db:"holder"`
		ExpiresAt string `db:"expires_at"`
	}
	err := exec.GetContext(ctx, &row,
		`SELECT holder, expires_at FROM deployment_locks WHERE target_id = ?`, targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, NewStoreError("LockHolder", "lock", targetID, err.Error(), err)
	}

	expires, err := time.Parse(time.RFC3339, row.ExpiresAt)
	if err != nil || !expires.After(time.Now().UTC()) {
		return "", false, nil
	}
	return row.Holder, true, nil
}

// =============================================================================
// Shared Implementation Functions: Database Provisions
// =============================================================================

func getDatabaseProvision(ctx context.Context, exec executor, targetID string) (*domain.DatabaseProvision, error) {
	var row struct {
		Provision string `db:"provision"`
	}
	err := exec.GetContext(ctx, &row,
		`SELECT provision FROM database_provisions WHERE target_id = ?`, targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDatabaseProvision", "database_provision", targetID, "provision not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDatabaseProvision", "database_provision", targetID, err.Error(), err)
	}

	var provision domain.DatabaseProvision
	if err := json.Unmarshal([]byte(row.Provision), &provision); err != nil {
		return nil, NewStoreError("GetDatabaseProvision", "database_provision", targetID, "invalid provision data", ErrInvalidData)
	}
	return &provision, nil
}

func saveDatabaseProvision(ctx context.Context, exec executor, targetID string, provision *domain.DatabaseProvision) error {
	data, err := json.Marshal(provision)
	if err != nil {
		return NewStoreError("SaveDatabaseProvision", "database_provision", targetID, "failed to serialize provision", ErrInvalidData)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO database_provisions (target_id, provision, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			provision = excluded.provision,
			updated_at = excluded.updated_at`,
		targetID, string(data), now, now)
	if err != nil {
		return NewStoreError("SaveDatabaseProvision", "database_provision", targetID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func timePtrToString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func stringToTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

func marshalNullable(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	// Typed nil pointers and empty slices also serialize to null.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	if s == "null" {
		return nil, nil
	}
	return &s, nil
}

func unmarshalNullable(s *string, dest any) error {
	if s == nil || *s == "" {
		return nil
	}
	return json.Unmarshal([]byte(*s), dest)
}
