// Package matchcandidate persists scored match candidates and their review
// lifecycle.
package matchcandidate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/gearline/partmatch/pkg/database"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

const columns = "id, project_id, store_part_id, supplier_part_id, method, confidence, stage, evidence, status, decided_by, decided_at, decision_note, created_at, updated_at"

// ErrAlreadyConfirmed is returned when confirming a candidate for a store
// part that already has a confirmed match.
var ErrAlreadyConfirmed = errors.New("store part already has a confirmed match")

// ErrAlreadyDecided is returned when deciding a candidate that is no longer
// pending. Decisions are terminal.
var ErrAlreadyDecided = errors.New("match candidate already decided")

// Repository handles match candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts candidates and returns how many rows were actually
// written. Duplicates of (project, store part, supplier part, method) are
// skipped, so re-running a pass over the same catalog is idempotent.
func (r *Repository) CreateBatch(ctx context.Context, candidates []models.MatchCandidate) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.CreateBatch")
	defer span.End()

	if len(candidates) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	sb := database.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols("id", "project_id", "store_part_id", "supplier_part_id", "method", "confidence", "stage", "evidence", "status", "created_at", "updated_at")

	for i := range candidates {
		c := &candidates[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = models.MatchCandidateStatusPending
		}
		if len(c.Evidence) == 0 {
			c.Evidence = []byte(`{}`)
		}
		sb.Values(c.ID, c.ProjectID, c.StorePartID, c.SupplierPartID, c.Method, c.Confidence, c.Stage, c.Evidence, c.Status, c.CreatedAt, c.UpdatedAt)
	}
	sb.OnConflictDoNothing()

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create match candidates batch")
		return 0, fmt.Errorf("failed to create match candidates: %w", err)
	}

	inserted64, _ := result.RowsAffected()
	inserted := int(inserted64)
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"count":    len(candidates),
		"inserted": inserted,
	}).Debug("Created match candidates batch")
	return inserted, nil
}

// Get retrieves a candidate by id
func (r *Repository) Get(ctx context.Context, projectID, id uuid.UUID) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Get")
	defer span.End()

	query := "SELECT " + columns + " FROM match_candidates WHERE project_id = $1 AND id = $2"

	var candidate models.MatchCandidate
	if err := r.db.GetContext(ctx, &candidate, query, projectID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate")
		return nil, fmt.Errorf("failed to get match candidate %s: %w", id, err)
	}
	return &candidate, nil
}

// ListPending retrieves pending candidates for review, highest confidence
// first.
func (r *Repository) ListPending(ctx context.Context, projectID uuid.UUID, limit int) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_candidates")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("status", models.MatchCandidateStatusPending),
	)
	sb.OrderBy("confidence DESC", "created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.MatchCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending match candidates")
		return nil, fmt.Errorf("failed to list pending match candidates: %w", err)
	}
	return candidates, nil
}

// Decide moves a pending candidate to confirmed or rejected. Decisions are
// terminal: a candidate that is no longer pending returns ErrAlreadyDecided,
// and confirming a second candidate for the same store part returns
// ErrAlreadyConfirmed. A confirmation also rejects the store part's other
// pending candidates in the same transaction, so the review queue never shows
// alternatives for an already-resolved item.
func (r *Repository) Decide(ctx context.Context, projectID, id uuid.UUID, status string, decidedBy string, note *string) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Decide")
	defer span.End()

	if status != models.MatchCandidateStatusConfirmed && status != models.MatchCandidateStatusRejected {
		return fmt.Errorf("invalid decision status %q", status)
	}

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin decision transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	query := `
		UPDATE match_candidates
		SET status = $1, decided_by = $2, decided_at = $3, decision_note = $4, updated_at = $3
		WHERE project_id = $5 AND id = $6 AND status = $7
	`

	result, err := tx.ExecContext(txCtx, query, status, decidedBy, now, note, projectID, id, models.MatchCandidateStatusPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// partial unique index on confirmed candidates per store part
			return ErrAlreadyConfirmed
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to decide match candidate")
		return fmt.Errorf("failed to decide match candidate %s: %w", id, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, getErr := r.Get(ctx, projectID, id)
		if getErr == nil && existing != nil {
			return ErrAlreadyDecided
		}
		return fmt.Errorf("match candidate %s not found", id)
	}

	if status == models.MatchCandidateStatusConfirmed {
		supersede := `
			UPDATE match_candidates
			SET status = $1, decided_at = $2, decision_note = $3, updated_at = $2
			WHERE project_id = $4 AND status = $5 AND id != $6
			AND store_part_id = (SELECT store_part_id FROM match_candidates WHERE id = $6)
		`
		if _, err := tx.ExecContext(txCtx, supersede, models.MatchCandidateStatusRejected, now, "superseded by confirmed match", projectID, models.MatchCandidateStatusPending, id); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to supersede sibling candidates")
			return fmt.Errorf("failed to supersede sibling candidates of %s: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

// CountByStatus reports candidate counts for a project
func (r *Repository) CountByStatus(ctx context.Context, projectID uuid.UUID, status string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.CountByStatus")
	defer span.End()

	var count int
	query := "SELECT COUNT(*) FROM match_candidates WHERE project_id = $1 AND status = $2"
	if err := r.db.GetContext(ctx, &count, query, projectID, status); err != nil {
		return 0, fmt.Errorf("failed to count match candidates: %w", err)
	}
	return count, nil
}
