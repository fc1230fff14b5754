// Package matchingrule persists learned and administrative matching rules.
package matchingrule

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
	"github.com/gearline/partmatch/pkg/tracing"
)

const columns = "id, scope, project_id, line_code, signature, category, action, confidence, support_count, is_active, created_by, created_at, updated_at"

// Repository handles matching rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new matching rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a rule. Colliding with an existing active rule on the same
// (scope, project, line code, signature) key is an error; callers check with
// GetActiveByKey first.
func (r *Repository) Create(ctx context.Context, rule *models.MatchingRule) error {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Create")
	defer span.End()

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("matching_rules")
	sb.Cols("id", "scope", "project_id", "line_code", "signature", "category", "action", "confidence", "support_count", "is_active", "created_by", "created_at", "updated_at")
	sb.Values(rule.ID, rule.Scope, rule.ProjectID, rule.LineCode, rule.Signature, rule.Category, rule.Action, rule.Confidence, rule.SupportCount, rule.IsActive, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"line_code": rule.LineCode,
			"signature": rule.Signature,
		}).Error("Failed to create matching rule")
		return fmt.Errorf("failed to create matching rule: %w", err)
	}
	return nil
}

// GetActiveByKey finds the active rule for an exact key, or nil
func (r *Repository) GetActiveByKey(ctx context.Context, key models.RuleKey) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.GetActiveByKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("matching_rules")
	where := []string{
		sb.Equal("scope", key.Scope),
		sb.Equal("line_code", key.LineCode),
		sb.Equal("signature", key.Signature),
		sb.Equal("is_active", true),
	}
	if key.Scope == models.RuleScopeProject {
		where = append(where, sb.Equal("project_id", key.ProjectID))
	} else {
		where = append(where, "project_id IS NULL")
	}
	sb.Where(where...)
	sb.Limit(1)

	query, args := sb.Build()
	var rule models.MatchingRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get matching rule by key")
		return nil, fmt.Errorf("failed to get matching rule: %w", err)
	}
	return &rule, nil
}

// ListActiveForProject returns the active rules visible to a project: its own
// plus the global set. Precedence between them is the matcher's concern.
func (r *Repository) ListActiveForProject(ctx context.Context, projectID uuid.UUID) ([]models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.ListActiveForProject")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM matching_rules
		WHERE is_active = TRUE
		AND (scope = $1 OR (scope = $2 AND project_id = $3))
		ORDER BY line_code, signature, scope
	`

	var rules []models.MatchingRule
	if err := r.db.SelectContext(ctx, &rules, query, models.RuleScopeGlobal, models.RuleScopeProject, projectID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matching rules")
		return nil, fmt.Errorf("failed to list matching rules: %w", err)
	}
	return rules, nil
}

// Deactivate retires a rule without deleting its history
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Deactivate")
	defer span.End()

	query := "UPDATE matching_rules SET is_active = FALSE, updated_at = $1 WHERE id = $2"
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to deactivate matching rule")
		return fmt.Errorf("failed to deactivate matching rule %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("matching rule %s not found", id)
	}
	return nil
}
