// Package matchjob persists matching job state. The queue manager is the only
// writer; admission ceilings are computed from the counts here so they
// survive restarts.
package matchjob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/gearline/partmatch/pkg/database"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

const columns = "id, project_id, user_id, kind, priority, status, processed_items, total_items, cancel_requested, cancel_kind, error, enqueued_at, started_at, finished_at"

// Repository handles matching job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new job row
func (r *Repository) Create(ctx context.Context, job *models.MatchingJob) error {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.Create")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_jobs")
	sb.Cols("id", "project_id", "user_id", "kind", "priority", "status", "processed_items", "total_items", "cancel_requested", "cancel_kind", "error", "enqueued_at", "started_at", "finished_at")
	sb.Values(job.ID, job.ProjectID, job.UserID, job.Kind, job.Priority, job.Status, job.ProcessedItems, job.TotalItems, job.CancelRequested, job.CancelKind, job.Error, job.EnqueuedAt, job.StartedAt, job.FinishedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("Failed to create match job")
		return fmt.Errorf("failed to create match job: %w", err)
	}
	return nil
}

// Get retrieves a job by id
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.MatchingJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.Get")
	defer span.End()

	query := "SELECT " + columns + " FROM match_jobs WHERE id = $1"

	var job models.MatchingJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match job")
		return nil, fmt.Errorf("failed to get match job %s: %w", id, err)
	}
	return &job, nil
}

// Update persists the job's mutable fields
func (r *Repository) Update(ctx context.Context, job *models.MatchingJob) error {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.Update")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_jobs")
	sb.Set(
		sb.Assign("status", job.Status),
		sb.Assign("priority", job.Priority),
		sb.Assign("processed_items", job.ProcessedItems),
		sb.Assign("total_items", job.TotalItems),
		sb.Assign("cancel_requested", job.CancelRequested),
		sb.Assign("cancel_kind", job.CancelKind),
		sb.Assign("error", job.Error),
		sb.Assign("started_at", job.StartedAt),
		sb.Assign("finished_at", job.FinishedAt),
	)
	sb.Where(sb.Equal("id", job.ID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("Failed to update match job")
		return fmt.Errorf("failed to update match job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("match job %s not found", job.ID)
	}
	return nil
}

// MarkProcessing claims a queued job for execution. The transition is a
// compare-and-swap on status: it only succeeds while the row is still queued,
// so two drains scanning the same queue can never start one job twice.
func (r *Repository) MarkProcessing(ctx context.Context, job *models.MatchingJob) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.MarkProcessing")
	defer span.End()

	query := "UPDATE match_jobs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4"
	result, err := r.db.ExecContext(ctx, query, models.JobStatusProcessing, job.StartedAt, job.ID, models.JobStatusQueued)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("Failed to claim match job")
		return false, fmt.Errorf("failed to claim match job: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListQueued returns queued jobs in admission order: highest priority first,
// then oldest submission.
func (r *Repository) ListQueued(ctx context.Context, limit int) ([]models.MatchingJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.ListQueued")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_jobs")
	sb.Where(sb.Equal("status", models.JobStatusQueued))
	sb.OrderBy("priority DESC", "enqueued_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var jobs []models.MatchingJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list queued jobs")
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	return jobs, nil
}

// CountProcessing counts all currently processing jobs
func (r *Repository) CountProcessing(ctx context.Context) (int, error) {
	return r.countWhere(ctx, "status = $1", models.JobStatusProcessing)
}

// CountProcessingByUser counts a user's currently processing jobs
func (r *Repository) CountProcessingByUser(ctx context.Context, userID string) (int, error) {
	return r.countWhere(ctx, "status = $1 AND user_id = $2", models.JobStatusProcessing, userID)
}

// CountProcessingByProject counts a project's currently processing jobs
func (r *Repository) CountProcessingByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	return r.countWhere(ctx, "status = $1 AND project_id = $2", models.JobStatusProcessing, projectID)
}

// CountProcessingExternal counts processing jobs whose kind calls an external
// collaborator.
func (r *Repository) CountProcessingExternal(ctx context.Context) (int, error) {
	return r.countWhere(ctx, "status = $1 AND kind IN ($2, $3)", models.JobStatusProcessing, models.JobKindAI, models.JobKindWebSearch)
}

func (r *Repository) countWhere(ctx context.Context, where string, args ...any) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.countWhere")
	defer span.End()

	var count int
	query := "SELECT COUNT(*) FROM match_jobs WHERE " + where
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count match jobs")
		return 0, fmt.Errorf("failed to count match jobs: %w", err)
	}
	return count, nil
}

// RequeueInterrupted returns processing jobs to the queue. Called once at
// startup so jobs orphaned by a crash run again instead of pinning their
// project's admission slot forever.
func (r *Repository) RequeueInterrupted(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.RequeueInterrupted")
	defer span.End()

	query := `
		UPDATE match_jobs
		SET status = $1, started_at = NULL
		WHERE status = $2
	`
	result, err := r.db.ExecContext(ctx, query, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to requeue interrupted jobs")
		return 0, fmt.Errorf("failed to requeue interrupted jobs: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"count": rows}).Warn("Requeued interrupted jobs from previous run")
	}
	return int(rows), nil
}
