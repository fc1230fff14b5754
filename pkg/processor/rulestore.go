package processor

import (
	"context"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/patterns"
)

// RuleNotifier announces learned rules. May be nil.
type RuleNotifier interface {
	EmitRuleLearned(ctx context.Context, rule *models.MatchingRule) error
}

// EmittingRuleStore decorates a rule store so every rule the detector creates
// is also announced on the match-events topic. Emission failures never fail
// the creation.
type EmittingRuleStore struct {
	store    patterns.RuleStore
	notifier RuleNotifier
}

// NewEmittingRuleStore wraps a rule store with event emission
func NewEmittingRuleStore(store patterns.RuleStore, notifier RuleNotifier) *EmittingRuleStore {
	return &EmittingRuleStore{store: store, notifier: notifier}
}

func (s *EmittingRuleStore) GetActiveByKey(ctx context.Context, key models.RuleKey) (*models.MatchingRule, error) {
	return s.store.GetActiveByKey(ctx, key)
}

func (s *EmittingRuleStore) Create(ctx context.Context, rule *models.MatchingRule) error {
	if err := s.store.Create(ctx, rule); err != nil {
		return err
	}
	if s.notifier != nil {
		_ = s.notifier.EmitRuleLearned(ctx, rule)
	}
	return nil
}
