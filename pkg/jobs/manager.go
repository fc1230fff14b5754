// Package jobs implements the matching job queue: bounded admission across
// global, per-user, per-project and external-stage ceilings, priority-aware
// FIFO draining, and two-speed cancellation.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

// ErrCancelled is returned by runners that stopped because cancellation was
// requested. The manager maps it to the cancelled terminal status instead of
// failed.
var ErrCancelled = errors.New("job cancelled")

// JobStore is the persistence surface the manager needs
type JobStore interface {
	Create(ctx context.Context, job *models.MatchingJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.MatchingJob, error)
	Update(ctx context.Context, job *models.MatchingJob) error
	// MarkProcessing claims a queued job: the transition must be atomic on
	// "status is still queued" and return false when another scanner won.
	MarkProcessing(ctx context.Context, job *models.MatchingJob) (bool, error)
	// ListQueued returns queued jobs ordered by priority desc, enqueued_at asc
	ListQueued(ctx context.Context, limit int) ([]models.MatchingJob, error)
	CountProcessing(ctx context.Context) (int, error)
	CountProcessingByUser(ctx context.Context, userID string) (int, error)
	CountProcessingByProject(ctx context.Context, projectID uuid.UUID) (int, error)
	CountProcessingExternal(ctx context.Context) (int, error)
}

// Runner executes the matching work for one admitted job. It must call
// rt.Progress at every batch boundary and honor rt.CancelledNow between
// external calls.
type Runner interface {
	Run(ctx context.Context, job *models.MatchingJob, rt *Runtime) error
}

// Notifier receives job lifecycle transitions, e.g. for the match-events
// topic. May be nil.
type Notifier interface {
	JobChanged(ctx context.Context, job *models.MatchingJob)
}

// ManagerConfig holds the admission ceilings. Zero values fall back to
// defaults; per-project concurrency is fixed at one so passes over the same
// catalog never interleave.
type ManagerConfig struct {
	MaxConcurrent  int // global processing ceiling (default: 4)
	MaxPerUser     int // per-user processing ceiling (default: 2)
	MaxExternal    int // ceiling for jobs with AI/web-search stages (default: 1)
	QueueScanLimit int // queued jobs examined per drain (default: 50)
}

// DefaultManagerConfig returns sensible defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConcurrent:  4,
		MaxPerUser:     2,
		MaxExternal:    1,
		QueueScanLimit: 50,
	}
}

// Admission denial reasons
const (
	DenyGlobalLimit   = "global_limit"
	DenyUserLimit     = "user_limit"
	DenyProjectBusy   = "project_busy"
	DenyExternalLimit = "external_limit"
)

// AdmissionCounts is the snapshot of processing counts an admission check saw
type AdmissionCounts struct {
	Global   int `json:"global"`
	User     int `json:"user"`
	Project  int `json:"project"`
	External int `json:"external"`
}

// AdmissionDecision reports whether a job may start and, when denied, the
// first ceiling that blocked it.
type AdmissionDecision struct {
	Allowed bool            `json:"allowed"`
	Reason  string          `json:"reason,omitempty"`
	Counts  AdmissionCounts `json:"counts"`
}

// cancelState is the in-memory cancellation flag for a running job
type cancelState struct {
	mu        sync.Mutex
	requested bool
	kind      models.CancelKind
}

func (c *cancelState) set(kind models.CancelKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// immediate upgrades graceful, never the other way
	if c.requested && c.kind == models.CancelImmediate {
		return
	}
	c.requested = true
	c.kind = kind
}

func (c *cancelState) get() (bool, models.CancelKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested, c.kind
}

// Manager owns the job queue. Submissions enqueue; a drain loop admits
// whatever the ceilings allow, and every job completion triggers another
// drain so freed capacity is reused immediately.
type Manager struct {
	logger   ectologger.Logger
	store    JobStore
	runner   Runner
	notifier Notifier
	cfg      ManagerConfig

	mu      sync.Mutex
	running map[uuid.UUID]*cancelState

	// drainMu serializes admission: TryAdmit counts rows and start acts on
	// them, so concurrent scans must not share a snapshot
	drainMu sync.Mutex

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewManager creates a job queue manager. Call Start before submitting.
func NewManager(logger ectologger.Logger, store JobStore, runner Runner, notifier Notifier, cfg ManagerConfig) *Manager {
	def := DefaultManagerConfig()
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxPerUser < 1 {
		cfg.MaxPerUser = def.MaxPerUser
	}
	if cfg.MaxExternal < 1 {
		cfg.MaxExternal = def.MaxExternal
	}
	if cfg.QueueScanLimit < 1 {
		cfg.QueueScanLimit = def.QueueScanLimit
	}
	return &Manager{
		logger:   logger,
		store:    store,
		runner:   runner,
		notifier: notifier,
		cfg:      cfg,
		running:  make(map[uuid.UUID]*cancelState),
	}
}

// Start binds the manager's lifetime to ctx and drains any jobs left queued
// by a previous run.
func (m *Manager) Start(ctx context.Context) {
	m.baseCtx, m.cancel = context.WithCancel(ctx)
	m.Drain(m.baseCtx)
}

// Stop cancels all running jobs and waits for them to finish
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Submit validates, enqueues and immediately attempts to drain. The returned
// job carries its assigned id and queued status; whether it started right
// away is visible through its status transitions, not the return value.
func (m *Manager) Submit(ctx context.Context, job *models.MatchingJob) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Manager.Submit")
	defer span.End()

	if job.ProjectID == uuid.Nil {
		return errors.New("job requires a project id")
	}
	if job.UserID == "" {
		return errors.New("job requires a user id")
	}
	switch job.Kind {
	case models.JobKindFullPass, models.JobKindAI, models.JobKindWebSearch:
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = models.JobStatusQueued
	job.EnqueuedAt = time.Now().UTC()

	if err := m.store.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":     job.ID,
		"project_id": job.ProjectID,
		"kind":       job.Kind,
		"priority":   job.Priority,
	}).Info("Job enqueued")
	m.notify(ctx, job)

	m.Drain(ctx)
	return nil
}

// TryAdmit checks every ceiling for a job without starting it. Ceilings are
// evaluated global, then user, then project, then external; the reason names
// the first one that failed.
func (m *Manager) TryAdmit(ctx context.Context, job *models.MatchingJob) (AdmissionDecision, error) {
	var d AdmissionDecision
	var err error

	if d.Counts.Global, err = m.store.CountProcessing(ctx); err != nil {
		return d, fmt.Errorf("failed to count processing jobs: %w", err)
	}
	if d.Counts.User, err = m.store.CountProcessingByUser(ctx, job.UserID); err != nil {
		return d, fmt.Errorf("failed to count user jobs: %w", err)
	}
	if d.Counts.Project, err = m.store.CountProcessingByProject(ctx, job.ProjectID); err != nil {
		return d, fmt.Errorf("failed to count project jobs: %w", err)
	}
	if d.Counts.External, err = m.store.CountProcessingExternal(ctx); err != nil {
		return d, fmt.Errorf("failed to count external jobs: %w", err)
	}

	switch {
	case d.Counts.Global >= m.cfg.MaxConcurrent:
		d.Reason = DenyGlobalLimit
	case d.Counts.User >= m.cfg.MaxPerUser:
		d.Reason = DenyUserLimit
	case d.Counts.Project >= 1:
		d.Reason = DenyProjectBusy
	case job.Kind.UsesExternalStage() && d.Counts.External >= m.cfg.MaxExternal:
		d.Reason = DenyExternalLimit
	default:
		d.Allowed = true
	}
	return d, nil
}

// Drain admits as many queued jobs as the ceilings allow. Jobs blocked by a
// scoped ceiling are skipped, not head-of-line blockers; a global-limit denial
// ends the scan since nothing later can pass either.
func (m *Manager) Drain(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Manager.Drain")
	defer span.End()

	// one scan at a time: two drains reading the same counts would both
	// admit into the last free slot
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	queued, err := m.store.ListQueued(ctx, m.cfg.QueueScanLimit)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to list queued jobs")
		return
	}

	for i := range queued {
		job := queued[i]
		decision, err := m.TryAdmit(ctx, &job)
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).Error("Admission check failed")
			return
		}
		if !decision.Allowed {
			if decision.Reason == DenyGlobalLimit {
				return
			}
			continue
		}
		if err := m.start(ctx, &job); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("Failed to start job")
		}
	}
}

// RequestCancel marks a job for cancellation. A queued job is cancelled on
// the spot; a processing job keeps running until its next checkpoint honors
// the flag. Terminal jobs are left alone.
func (m *Manager) RequestCancel(ctx context.Context, id uuid.UUID, kind models.CancelKind) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Manager.RequestCancel")
	defer span.End()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status.IsTerminal() {
		return nil
	}

	kindStr := string(kind)
	job.CancelRequested = true
	job.CancelKind = &kindStr

	if job.Status == models.JobStatusQueued {
		m.finish(ctx, job, models.JobStatusCancelled, nil)
		return nil
	}

	if err := m.store.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancel request: %w", err)
	}

	m.mu.Lock()
	if state, ok := m.running[id]; ok {
		state.set(kind)
	}
	m.mu.Unlock()

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id": id,
		"kind":   kind,
	}).Info("Job cancellation requested")
	return nil
}

// start claims a queued job and runs it on its own goroutine. The claim is a
// status compare-and-swap in the store, so a job already taken by another
// instance is skipped without error.
func (m *Manager) start(ctx context.Context, job *models.MatchingJob) error {
	now := time.Now().UTC()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &now
	claimed, err := m.store.MarkProcessing(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if !claimed {
		return nil
	}

	state := &cancelState{}
	m.mu.Lock()
	m.running[job.ID] = state
	m.mu.Unlock()

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":     job.ID,
		"project_id": job.ProjectID,
		"kind":       job.Kind,
	}).Info("Job started")
	m.notify(ctx, job)

	m.wg.Add(1)
	go m.run(job, state)
	return nil
}

// run executes the job to a terminal state and drains freed capacity
func (m *Manager) run(job *models.MatchingJob, state *cancelState) {
	defer m.wg.Done()

	ctx := m.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	rt := &Runtime{manager: m, job: job, state: state}
	err := m.runner.Run(ctx, job, rt)

	m.mu.Lock()
	delete(m.running, job.ID)
	m.mu.Unlock()

	switch {
	case err == nil:
		m.finish(ctx, job, models.JobStatusCompleted, nil)
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		m.finish(ctx, job, models.JobStatusCancelled, nil)
	default:
		m.finish(ctx, job, models.JobStatusFailed, err)
	}

	m.Drain(ctx)
}

// finish writes a terminal transition. A failed persist is logged, not
// retried.
func (m *Manager) finish(ctx context.Context, job *models.MatchingJob, status models.JobStatus, runErr error) {
	now := time.Now().UTC()
	job.Status = status
	job.FinishedAt = &now
	if runErr != nil {
		msg := runErr.Error()
		job.Error = &msg
	}

	if err := m.store.Update(ctx, job); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("Failed to persist job transition")
		return
	}

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":    job.ID,
		"status":    status,
		"processed": job.ProcessedItems,
		"total":     job.TotalItems,
	})
	if runErr != nil {
		log.WithError(runErr).Error("Job failed")
	} else {
		log.Info("Job finished")
	}
	m.notify(ctx, job)
}

func (m *Manager) notify(ctx context.Context, job *models.MatchingJob) {
	if m.notifier != nil {
		m.notifier.JobChanged(ctx, job)
	}
}

// Runtime is the handle a runner uses to report progress and observe
// cancellation.
type Runtime struct {
	manager *Manager
	job     *models.MatchingJob
	state   *cancelState
}

// Progress persists batch progress. It returns ErrCancelled when any
// cancellation was requested, making every batch boundary a graceful
// suspension point.
func (rt *Runtime) Progress(ctx context.Context, processed, total int) error {
	rt.job.ProcessedItems = processed
	rt.job.TotalItems = total
	if err := rt.manager.store.Update(ctx, rt.job); err != nil {
		return fmt.Errorf("failed to persist job progress: %w", err)
	}
	if requested, _ := rt.state.get(); requested {
		return ErrCancelled
	}
	return nil
}

// CancelledNow reports whether an immediate cancellation is pending. Runners
// consult it between individual external calls; graceful requests wait for
// the batch boundary instead.
func (rt *Runtime) CancelledNow() bool {
	requested, kind := rt.state.get()
	return requested && kind == models.CancelImmediate
}
