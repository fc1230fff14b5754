package jobs

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearline/partmatch/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// memJobStore is an in-memory JobStore. It stores copies, matching the
// row-ownership semantics of the real repository.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.MatchingJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]models.MatchingJob)}
}

func (s *memJobStore) Create(_ context.Context, job *models.MatchingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) Get(_ context.Context, id uuid.UUID) (*models.MatchingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (s *memJobStore) Update(_ context.Context, job *models.MatchingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) MarkProcessing(_ context.Context, job *models.MatchingJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok || current.Status != models.JobStatusQueued {
		return false, nil
	}
	s.jobs[job.ID] = *job
	return true, nil
}

func (s *memJobStore) ListQueued(_ context.Context, limit int) ([]models.MatchingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MatchingJob
	for _, job := range s.jobs {
		if job.Status == models.JobStatusQueued {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memJobStore) countWhere(match func(*models.MatchingJob) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == models.JobStatusProcessing && match(&job) {
			n++
		}
	}
	return n
}

func (s *memJobStore) CountProcessing(context.Context) (int, error) {
	return s.countWhere(func(*models.MatchingJob) bool { return true }), nil
}

func (s *memJobStore) CountProcessingByUser(_ context.Context, userID string) (int, error) {
	return s.countWhere(func(j *models.MatchingJob) bool { return j.UserID == userID }), nil
}

func (s *memJobStore) CountProcessingByProject(_ context.Context, projectID uuid.UUID) (int, error) {
	return s.countWhere(func(j *models.MatchingJob) bool { return j.ProjectID == projectID }), nil
}

func (s *memJobStore) CountProcessingExternal(context.Context) (int, error) {
	return s.countWhere(func(j *models.MatchingJob) bool { return j.Kind.UsesExternalStage() }), nil
}

func (s *memJobStore) status(id uuid.UUID) models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

type runnerFunc func(ctx context.Context, job *models.MatchingJob, rt *Runtime) error

func (f runnerFunc) Run(ctx context.Context, job *models.MatchingJob, rt *Runtime) error {
	return f(ctx, job, rt)
}

func newJob(project uuid.UUID, user string, kind models.JobKind) *models.MatchingJob {
	return &models.MatchingJob{ProjectID: project, UserID: user, Kind: kind}
}

func TestSubmitValidation(t *testing.T) {
	m := NewManager(testLogger(), newMemJobStore(), runnerFunc(nil), nil, ManagerConfig{})
	ctx := context.Background()

	tests := []struct {
		name string
		job  *models.MatchingJob
	}{
		{name: "missing project", job: newJob(uuid.Nil, "user-1", models.JobKindFullPass)},
		{name: "missing user", job: newJob(uuid.New(), "", models.JobKindFullPass)},
		{name: "unknown kind", job: newJob(uuid.New(), "user-1", models.JobKind("bulk"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, m.Submit(ctx, tt.job))
		})
	}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	store := newMemJobStore()
	done := make(chan uuid.UUID, 1)
	runner := runnerFunc(func(_ context.Context, job *models.MatchingJob, rt *Runtime) error {
		done <- job.ID
		return nil
	})

	m := NewManager(testLogger(), store, runner, nil, ManagerConfig{})
	m.Start(context.Background())
	defer m.Stop()

	job := newJob(uuid.New(), "user-1", models.JobKindFullPass)
	require.NoError(t, m.Submit(context.Background(), job))
	assert.NotEqual(t, uuid.Nil, job.ID)

	select {
	case id := <-done:
		assert.Equal(t, job.ID, id)
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	require.Eventually(t, func() bool {
		return store.status(job.ID) == models.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
}

func TestProjectSerializationAndAutoAdmit(t *testing.T) {
	store := newMemJobStore()
	started := make(chan uuid.UUID, 3)
	release := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, job *models.MatchingJob, _ *Runtime) error {
		started <- job.ID
		<-release
		return nil
	})

	m := NewManager(testLogger(), store, runner, nil, ManagerConfig{})
	m.Start(context.Background())
	defer m.Stop()

	projectA := uuid.New()
	projectB := uuid.New()

	job1 := newJob(projectA, "user-1", models.JobKindFullPass)
	require.NoError(t, m.Submit(context.Background(), job1))
	require.Equal(t, job1.ID, <-started)

	// same project: must wait
	job2 := newJob(projectA, "user-2", models.JobKindFullPass)
	require.NoError(t, m.Submit(context.Background(), job2))

	// the busy project skips, it does not block the queue behind it
	job3 := newJob(projectB, "user-3", models.JobKindFullPass)
	require.NoError(t, m.Submit(context.Background(), job3))
	require.Equal(t, job3.ID, <-started)

	select {
	case id := <-started:
		t.Fatalf("job %s started while its project was busy", id)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, models.JobStatusQueued, store.status(job2.ID))

	// finishing job1 frees the project and admits job2 without a new submit
	close(release)
	select {
	case id := <-started:
		assert.Equal(t, job2.ID, id)
	case <-time.After(time.Second):
		t.Fatal("queued job was never admitted after capacity freed")
	}
}

// slowCountStore widens the window between counting and starting so
// overlapping drains actually overlap.
type slowCountStore struct {
	*memJobStore
	delay time.Duration
}

func (s *slowCountStore) CountProcessingByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	time.Sleep(s.delay)
	return s.memJobStore.CountProcessingByProject(ctx, projectID)
}

func TestConcurrentDrainsRespectProjectCeiling(t *testing.T) {
	store := &slowCountStore{memJobStore: newMemJobStore(), delay: 20 * time.Millisecond}
	started := make(chan uuid.UUID, 2)
	release := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, job *models.MatchingJob, _ *Runtime) error {
		started <- job.ID
		<-release
		return nil
	})

	m := NewManager(testLogger(), store, runner, nil, ManagerConfig{})

	project := uuid.New()
	for i, user := range []string{"user-1", "user-2"} {
		job := newJob(project, user, models.JobKindFullPass)
		job.ID = uuid.New()
		job.Status = models.JobStatusQueued
		job.EnqueuedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, store.Create(context.Background(), job))
	}

	var drains sync.WaitGroup
	for i := 0; i < 2; i++ {
		drains.Add(1)
		go func() {
			defer drains.Done()
			m.Drain(context.Background())
		}()
	}
	drains.Wait()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("no job started")
	}
	select {
	case id := <-started:
		t.Fatalf("job %s started while its project already had a running job", id)
	case <-time.After(50 * time.Millisecond):
	}

	processing, err := store.CountProcessing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processing)

	close(release)
	m.Stop()
}

// staleListStore hands Drain a queued snapshot of a job that has since reached
// a terminal state, the way a scan races a sibling instance.
type staleListStore struct {
	*memJobStore
	stale models.MatchingJob
}

func (s *staleListStore) ListQueued(context.Context, int) ([]models.MatchingJob, error) {
	return []models.MatchingJob{s.stale}, nil
}

func TestDrainSkipsJobClaimedElsewhere(t *testing.T) {
	mem := newMemJobStore()
	job := newJob(uuid.New(), "user-1", models.JobKindFullPass)
	job.ID = uuid.New()
	job.Status = models.JobStatusCompleted
	require.NoError(t, mem.Create(context.Background(), job))

	stale := *job
	stale.Status = models.JobStatusQueued
	store := &staleListStore{memJobStore: mem, stale: stale}

	ran := make(chan uuid.UUID, 1)
	runner := runnerFunc(func(_ context.Context, job *models.MatchingJob, _ *Runtime) error {
		ran <- job.ID
		return nil
	})

	m := NewManager(testLogger(), store, runner, nil, ManagerConfig{})
	m.Drain(context.Background())
	m.Stop()

	select {
	case id := <-ran:
		t.Fatalf("job %s ran from a stale queue snapshot", id)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, models.JobStatusCompleted, mem.status(job.ID))
}

// countingStore returns fixed processing counts so admission reasons can be
// checked without goroutines.
type countingStore struct {
	*memJobStore
	global, user, project, external int
}

func (s *countingStore) CountProcessing(context.Context) (int, error) { return s.global, nil }
func (s *countingStore) CountProcessingByUser(context.Context, string) (int, error) {
	return s.user, nil
}
func (s *countingStore) CountProcessingByProject(context.Context, uuid.UUID) (int, error) {
	return s.project, nil
}
func (s *countingStore) CountProcessingExternal(context.Context) (int, error) {
	return s.external, nil
}

func TestTryAdmitDenialReasons(t *testing.T) {
	tests := []struct {
		name    string
		counts  countingStore
		kind    models.JobKind
		allowed bool
		reason  string
	}{
		{name: "global ceiling", counts: countingStore{global: 4}, kind: models.JobKindFullPass, reason: DenyGlobalLimit},
		{name: "user ceiling", counts: countingStore{global: 3, user: 2}, kind: models.JobKindFullPass, reason: DenyUserLimit},
		{name: "project busy", counts: countingStore{global: 1, user: 1, project: 1}, kind: models.JobKindFullPass, reason: DenyProjectBusy},
		{name: "external ceiling", counts: countingStore{global: 1, external: 1}, kind: models.JobKindAI, reason: DenyExternalLimit},
		{name: "external ceiling ignored for full pass", counts: countingStore{global: 1, external: 1}, kind: models.JobKindFullPass, allowed: true},
		{name: "all clear", counts: countingStore{}, kind: models.JobKindWebSearch, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.counts
			store.memJobStore = newMemJobStore()
			m := NewManager(testLogger(), &store, runnerFunc(nil), nil, ManagerConfig{})

			d, err := m.TryAdmit(context.Background(), newJob(uuid.New(), "user-1", tt.kind))
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestCancelQueuedJobImmediately(t *testing.T) {
	store := newMemJobStore()
	m := NewManager(testLogger(), store, runnerFunc(nil), nil, ManagerConfig{})

	job := newJob(uuid.New(), "user-1", models.JobKindFullPass)
	job.ID = uuid.New()
	job.Status = models.JobStatusQueued
	require.NoError(t, store.Create(context.Background(), job))

	require.NoError(t, m.RequestCancel(context.Background(), job.ID, models.CancelGraceful))

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.True(t, got.CancelRequested)
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	store := newMemJobStore()
	m := NewManager(testLogger(), store, runnerFunc(nil), nil, ManagerConfig{})

	job := newJob(uuid.New(), "user-1", models.JobKindFullPass)
	job.ID = uuid.New()
	job.Status = models.JobStatusCompleted
	require.NoError(t, store.Create(context.Background(), job))

	require.NoError(t, m.RequestCancel(context.Background(), job.ID, models.CancelImmediate))
	assert.Equal(t, models.JobStatusCompleted, store.status(job.ID))
}

func TestGracefulCancelStopsAtBatchBoundary(t *testing.T) {
	store := newMemJobStore()
	runtimes := make(chan *Runtime, 1)
	proceed := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, _ *models.MatchingJob, rt *Runtime) error {
		runtimes <- rt
		<-proceed
		return rt.Progress(ctx, 1, 2)
	})

	m := NewManager(testLogger(), store, runner, nil, ManagerConfig{})
	m.Start(context.Background())
	defer m.Stop()

	job := newJob(uuid.New(), "user-1", models.JobKindFullPass)
	require.NoError(t, m.Submit(context.Background(), job))
	rt := <-runtimes

	require.NoError(t, m.RequestCancel(context.Background(), job.ID, models.CancelGraceful))

	// graceful requests never trip the per-item check
	assert.False(t, rt.CancelledNow())

	close(proceed)
	require.Eventually(t, func() bool {
		return store.status(job.ID) == models.JobStatusCancelled
	}, time.Second, 10*time.Millisecond)

	// progress written at the boundary survives the cancellation
	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ProcessedItems)
	assert.Equal(t, 2, got.TotalItems)
}

func TestImmediateCancelVisibleBetweenItems(t *testing.T) {
	store := newMemJobStore()
	runtimes := make(chan *Runtime, 1)
	proceed := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, _ *models.MatchingJob, rt *Runtime) error {
		runtimes <- rt
		<-proceed
		if rt.CancelledNow() {
			return ErrCancelled
		}
		return nil
	})

	m := NewManager(testLogger(), store, runner, nil, ManagerConfig{})
	m.Start(context.Background())
	defer m.Stop()

	job := newJob(uuid.New(), "user-1", models.JobKindAI)
	require.NoError(t, m.Submit(context.Background(), job))
	rt := <-runtimes

	require.NoError(t, m.RequestCancel(context.Background(), job.ID, models.CancelImmediate))
	assert.True(t, rt.CancelledNow())

	close(proceed)
	require.Eventually(t, func() bool {
		return store.status(job.ID) == models.JobStatusCancelled
	}, time.Second, 10*time.Millisecond)
}

func TestImmediateUpgradesGraceful(t *testing.T) {
	state := &cancelState{}
	state.set(models.CancelGraceful)
	state.set(models.CancelImmediate)

	requested, kind := state.get()
	assert.True(t, requested)
	assert.Equal(t, models.CancelImmediate, kind)

	// and immediate never downgrades
	state.set(models.CancelGraceful)
	_, kind = state.get()
	assert.Equal(t, models.CancelImmediate, kind)
}
