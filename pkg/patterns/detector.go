package patterns

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

// RuleStore is the persistence surface the detector needs
type RuleStore interface {
	GetActiveByKey(ctx context.Context, key models.RuleKey) (*models.MatchingRule, error)
	Create(ctx context.Context, rule *models.MatchingRule) error
}

// DetectorConfig controls when a decision group graduates into a rule
type DetectorConfig struct {
	MinSupport     int     // confirmed decisions required per group (default: 2)
	RuleConfidence float64 // confidence assigned to learned rules (default: 0.90)
}

// DefaultDetectorConfig returns sensible defaults
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinSupport:     2,
		RuleConfidence: 0.90,
	}
}

// LearnResult reports what a learning pass did
type LearnResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Detector clusters bulk review decisions by (line code, transformation
// signature) and proposes reusable matching rules from approval-dominated
// groups.
type Detector struct {
	logger ectologger.Logger
	rules  RuleStore
	cfg    DetectorConfig
}

// NewDetector creates a new pattern detector
func NewDetector(logger ectologger.Logger, rules RuleStore, cfg DetectorConfig) *Detector {
	return &Detector{logger: logger, rules: rules, cfg: cfg}
}

// group accumulates decisions sharing a rule key
type group struct {
	lineCode  string
	signature string
	projectID uuid.UUID
	approves  int
	rejects   int
}

// LearnFromDecisions mines a decision batch. Groups need at least MinSupport
// approvals and a strict approval majority to produce a rule; creation is
// idempotent, so a group whose equivalent rule already exists counts as
// skipped rather than duplicated. Rules are created project-local; promotion
// to global scope is an explicit administrative act.
func (d *Detector) LearnFromDecisions(ctx context.Context, decisions []models.ReviewDecision) (LearnResult, error) {
	ctx, span := tracing.StartSpan(ctx, "patterns.Detector.LearnFromDecisions")
	defer span.End()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{"decisions": len(decisions)})

	groups := make(map[string]*group)
	for i := range decisions {
		dec := &decisions[i]
		lineCode := ""
		if dec.LineCode != nil {
			lineCode = *dec.LineCode
		}
		if lineCode == "" {
			continue // nothing to generalize without a line code
		}

		sig := Signature(dec.StorePartNumber, dec.SupplierPartNumber)
		if sig == SignatureIdentical || sig == SignatureUnknown {
			continue
		}

		key := dec.ProjectID.String() + "|" + lineCode + "|" + sig
		g, ok := groups[key]
		if !ok {
			g = &group{lineCode: lineCode, signature: sig, projectID: dec.ProjectID}
			groups[key] = g
		}
		if dec.Decision == models.DecisionApprove {
			g.approves++
		} else {
			g.rejects++
		}
	}

	var result LearnResult
	for _, g := range groups {
		if g.approves == 0 || g.rejects >= g.approves {
			continue // reject-dominated groups never produce a rule
		}

		projectID := g.projectID
		key := models.RuleKey{
			Scope:     models.RuleScopeProject,
			ProjectID: projectID,
			LineCode:  g.lineCode,
			Signature: g.signature,
		}

		// Idempotency first: a key already covered by an active rule counts
		// as skipped even when this batch alone is below support.
		existing, err := d.rules.GetActiveByKey(ctx, key)
		if err != nil {
			return result, fmt.Errorf("failed to look up existing rule: %w", err)
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		if g.approves < d.cfg.MinSupport {
			continue
		}

		rule := &models.MatchingRule{
			Scope:        models.RuleScopeProject,
			ProjectID:    &projectID,
			LineCode:     g.lineCode,
			Signature:    g.signature,
			Action:       models.RuleActionAccept,
			Confidence:   d.cfg.RuleConfidence,
			SupportCount: g.approves,
			IsActive:     true,
			CreatedBy:    "pattern-detector",
		}
		if err := d.rules.Create(ctx, rule); err != nil {
			return result, fmt.Errorf("failed to create rule: %w", err)
		}
		result.Created++

		log.WithFields(map[string]any{
			"line_code": g.lineCode,
			"signature": g.signature,
			"support":   g.approves,
		}).Info("Learned matching rule from decision batch")
	}

	log.WithFields(map[string]any{"created": result.Created, "skipped": result.Skipped}).Debug("Learning pass finished")
	return result, nil
}
