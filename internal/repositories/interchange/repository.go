// Package interchange persists vendor cross-reference entries.
package interchange

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/gearline/partmatch/pkg/database"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/normalize"
	"github.com/gearline/partmatch/pkg/tracing"
)

const columns = "id, project_id, ours, theirs, ours_canonical, theirs_canonical, confidence, source, created_at"

// Repository handles interchange entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new interchange repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts cross-reference entries, computing canonical forms on
// the way in. Duplicate (project, ours, theirs) pairs are skipped.
func (r *Repository) CreateBatch(ctx context.Context, entries []models.InterchangeEntry) error {
	ctx, span := tracing.StartSpan(ctx, "interchange.Repository.CreateBatch")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := database.NewInsertBuilder()
	sb.InsertInto("interchange_entries")
	sb.Cols("id", "project_id", "ours", "theirs", "ours_canonical", "theirs_canonical", "confidence", "source", "created_at")

	for i := range entries {
		e := &entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.CreatedAt = now
		e.OursCanonical = normalize.Canonicalize(e.Ours)
		e.TheirsCanonical = normalize.Canonicalize(e.Theirs)
		if e.Confidence <= 0 || e.Confidence > 1 {
			e.Confidence = 0.97
		}
		sb.Values(e.ID, e.ProjectID, e.Ours, e.Theirs, e.OursCanonical, e.TheirsCanonical, e.Confidence, e.Source, e.CreatedAt)
	}
	sb.OnConflictDoNothing("project_id", "ours", "theirs")

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create interchange batch")
		return fmt.Errorf("failed to create interchange batch: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(entries)}).Debug("Created interchange batch")
	return nil
}

// ListByProject retrieves every cross-reference entry for a project
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.InterchangeEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "interchange.Repository.ListByProject")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("interchange_entries")
	sb.Where(sb.Equal("project_id", projectID))
	sb.OrderBy("id")

	query, args := sb.Build()
	var entries []models.InterchangeEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list interchange entries")
		return nil, fmt.Errorf("failed to list interchange entries: %w", err)
	}
	return entries, nil
}
