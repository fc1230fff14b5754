package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearline/partmatch/pkg/models"
)

func newRule(id int, scope models.RuleScope, lineCode, signature string, action models.RuleAction, confidence float64) models.MatchingRule {
	r := models.MatchingRule{
		ID:         testID(id),
		Scope:      scope,
		LineCode:   lineCode,
		Signature:  signature,
		Action:     action,
		Confidence: confidence,
		IsActive:   true,
	}
	if scope == models.RuleScopeProject {
		pid := testProjectID
		r.ProjectID = &pid
	}
	return r
}

func TestRuleMatcherAppliesAcceptRule(t *testing.T) {
	m := NewRuleMatcher()

	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	suppliers := []models.PartRecord{supplierPart(2, "GM8036", "")}
	rules := []models.MatchingRule{newRule(10, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionAccept, 0.90)}

	out := m.Match(store, suppliers, rules)
	require.Len(t, out, 1)

	cand := out[0]
	assert.Equal(t, models.MatchMethodRule, cand.Method)
	assert.Equal(t, models.StageRule, cand.Stage)
	assert.Equal(t, 0.90, cand.Confidence)
	require.NotNil(t, cand.SupplierPartID)
	assert.Equal(t, suppliers[0].ID, *cand.SupplierPartID)

	ev := decodeEvidence(t, &cand)
	assert.Equal(t, "remove_dash", ev.Signature)
	assert.Equal(t, testID(10).String(), ev.RuleID)
}

func TestRuleMatcherRejectRuleSuppresses(t *testing.T) {
	m := NewRuleMatcher()

	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	suppliers := []models.PartRecord{supplierPart(2, "GM8036", "")}
	rules := []models.MatchingRule{newRule(10, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionReject, 0.90)}

	assert.Empty(t, m.Match(store, suppliers, rules))
}

func TestRuleMatcherProjectShadowsGlobal(t *testing.T) {
	m := NewRuleMatcher()

	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	suppliers := []models.PartRecord{supplierPart(2, "GM8036", "")}

	t.Run("project accept overrides global confidence", func(t *testing.T) {
		rules := []models.MatchingRule{
			newRule(10, models.RuleScopeGlobal, "GM", "remove_dash", models.RuleActionAccept, 0.95),
			newRule(11, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionAccept, 0.85),
		}
		out := m.Match(store, suppliers, rules)
		require.Len(t, out, 1)
		assert.Equal(t, 0.85, out[0].Confidence)
	})

	t.Run("project reject overrides global accept", func(t *testing.T) {
		rules := []models.MatchingRule{
			newRule(10, models.RuleScopeGlobal, "GM", "remove_dash", models.RuleActionAccept, 0.95),
			newRule(11, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionReject, 0.90),
		}
		assert.Empty(t, m.Match(store, suppliers, rules))
	})

	t.Run("order of rules does not matter", func(t *testing.T) {
		rules := []models.MatchingRule{
			newRule(11, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionAccept, 0.85),
			newRule(10, models.RuleScopeGlobal, "GM", "remove_dash", models.RuleActionAccept, 0.95),
		}
		out := m.Match(store, suppliers, rules)
		require.Len(t, out, 1)
		assert.Equal(t, 0.85, out[0].Confidence)
	})
}

func TestRuleMatcherIgnoresInactiveRules(t *testing.T) {
	m := NewRuleMatcher()

	rule := newRule(10, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionAccept, 0.90)
	rule.IsActive = false

	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	suppliers := []models.PartRecord{supplierPart(2, "GM8036", "")}

	assert.Empty(t, m.Match(store, suppliers, []models.MatchingRule{rule}))
}

func TestRuleMatcherRequiresLineCode(t *testing.T) {
	m := NewRuleMatcher()

	// digits-only numbers carry no line code, so no rule can apply
	store := []models.PartRecord{storePart(1, "21-3-1", "")}
	suppliers := []models.PartRecord{supplierPart(2, "21/3/1", "")}
	rules := []models.MatchingRule{newRule(10, models.RuleScopeProject, "GM", "dash_to_slash", models.RuleActionAccept, 0.90)}

	assert.Empty(t, m.Match(store, suppliers, rules))
}

func TestRuleMatcherDeterministicSupplierPick(t *testing.T) {
	m := NewRuleMatcher()

	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	suppliers := []models.PartRecord{
		supplierPart(9, "GM8036", ""),
		supplierPart(3, "GM8036", ""),
	}
	rules := []models.MatchingRule{newRule(10, models.RuleScopeProject, "GM", "remove_dash", models.RuleActionAccept, 0.90)}

	out := m.Match(store, suppliers, rules)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].SupplierPartID)
	assert.Equal(t, testID(3), *out[0].SupplierPartID)
}
