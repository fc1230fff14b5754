// Package part persists catalog rows for both sides of a reconciliation
// project.
package part

import (
	"context"
	"database/sql"
	"errors"
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

const columns = "id, project_id, side, part_number, canonical_number, line_code, mfr_code, description, cost, quantity, created_at"

// Repository handles part record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new part repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// prepareRow fills the derived columns of an incoming catalog row. Explicit
// line or manufacturer codes from the feed win over the split ones.
func prepareRow(p *models.PartRecord, now time.Time) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = now

	n := normalize.Normalize(p.PartNumber)
	p.CanonicalNumber = n.Canonical
	if p.LineCode == nil {
		p.LineCode = n.LineCode
	}
	if p.MfrCode == nil {
		p.MfrCode = n.MfrCode
	}
}

// CreateBatch inserts catalog rows, normalizing part numbers on the way in.
// Rows that collide on (project, side, part number) are skipped so re-ingests
// are idempotent.
func (r *Repository) CreateBatch(ctx context.Context, parts []models.PartRecord) error {
	ctx, span := tracing.StartSpan(ctx, "part.Repository.CreateBatch")
	defer span.End()

	if len(parts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := database.NewInsertBuilder()
	sb.InsertInto("parts")
	sb.Cols("id", "project_id", "side", "part_number", "canonical_number", "line_code", "mfr_code", "description", "cost", "quantity", "created_at")

	for i := range parts {
		p := &parts[i]
		prepareRow(p, now)
		sb.Values(p.ID, p.ProjectID, p.Side, p.PartNumber, p.CanonicalNumber, p.LineCode, p.MfrCode, p.Description, p.Cost, p.Quantity, p.CreatedAt)
	}
	sb.OnConflictDoNothing("project_id", "side", "part_number")

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create parts batch")
		return fmt.Errorf("failed to create parts batch: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(parts)}).Debug("Created parts batch")
	return nil
}

// Get retrieves a part record by id
func (r *Repository) Get(ctx context.Context, projectID, id uuid.UUID) (*models.PartRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "part.Repository.Get")
	defer span.End()

	query := "SELECT " + columns + " FROM parts WHERE project_id = $1 AND id = $2"

	var part models.PartRecord
	if err := r.db.GetContext(ctx, &part, query, projectID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get part")
		return nil, fmt.Errorf("failed to get part %s: %w", id, err)
	}
	return &part, nil
}

// ListBySide retrieves all records of one catalog side for a project
func (r *Repository) ListBySide(ctx context.Context, projectID uuid.UUID, side models.CatalogSide) ([]models.PartRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "part.Repository.ListBySide")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("parts")
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("side", side),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var parts []models.PartRecord
	if err := r.db.SelectContext(ctx, &parts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list parts by side")
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	return parts, nil
}

// ListSupplierCatalog retrieves the full supplier side of a project
func (r *Repository) ListSupplierCatalog(ctx context.Context, projectID uuid.UUID) ([]models.PartRecord, error) {
	return r.ListBySide(ctx, projectID, models.CatalogSideSupplier)
}

// ListUnmatchedStoreItems retrieves store items with no confirmed match
// candidate. Pending and rejected candidates do not count as resolved.
func (r *Repository) ListUnmatchedStoreItems(ctx context.Context, projectID uuid.UUID) ([]models.PartRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "part.Repository.ListUnmatchedStoreItems")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM parts p
		WHERE p.project_id = $1
		AND p.side = $2
		AND NOT EXISTS (
			SELECT 1 FROM match_candidates mc
			WHERE mc.project_id = p.project_id
			AND mc.store_part_id = p.id
			AND mc.status = $3
		)
		ORDER BY p.id
	`

	var parts []models.PartRecord
	if err := r.db.SelectContext(ctx, &parts, query, projectID, models.CatalogSideStore, models.MatchCandidateStatusConfirmed); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unmatched store items")
		return nil, fmt.Errorf("failed to list unmatched store items: %w", err)
	}
	return parts, nil
}

// SearchSimilar returns the supplier parts whose canonical numbers are most
// trigram-similar to the given one. Backed by the pg_trgm index; used to
// narrow candidate pools for the external stages.
func (r *Repository) SearchSimilar(ctx context.Context, projectID uuid.UUID, canonical string, limit int) ([]models.PartRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "part.Repository.SearchSimilar")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 25
	}

	query := `
		SELECT ` + columns + `
		FROM parts
		WHERE project_id = $1
		AND side = $2
		AND canonical_number % $3
		ORDER BY similarity(canonical_number, $3) DESC, id
		LIMIT $4
	`

	var parts []models.PartRecord
	if err := r.db.SelectContext(ctx, &parts, query, projectID, models.CatalogSideSupplier, canonical, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search similar parts")
		return nil, fmt.Errorf("failed to search similar parts: %w", err)
	}
	return parts, nil
}

// CountBySide reports catalog sizes for progress accounting
func (r *Repository) CountBySide(ctx context.Context, projectID uuid.UUID, side models.CatalogSide) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "part.Repository.CountBySide")
	defer span.End()

	var count int
	query := "SELECT COUNT(*) FROM parts WHERE project_id = $1 AND side = $2"
	if err := r.db.GetContext(ctx, &count, query, projectID, side); err != nil {
		return 0, fmt.Errorf("failed to count parts: %w", err)
	}
	return count, nil
}
