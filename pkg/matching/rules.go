package matching

import (
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/patterns"
)

// RuleMatcher applies learned (line code, transformation signature) rules to
// items the interchange and exact stages left unresolved. Rules are consumed
// read-only.
type RuleMatcher struct{}

// NewRuleMatcher creates a new rule matcher
func NewRuleMatcher() *RuleMatcher {
	return &RuleMatcher{}
}

// Match emits at most one candidate per store item. A supplier item is
// accepted when the transformation signature between the two raw part numbers
// equals an active rule's signature for the store item's line code. Project
// rules shadow global rules with the same (line code, signature) key; reject
// rules suppress the pair entirely.
func (m *RuleMatcher) Match(storeItems []models.PartRecord, supplierItems []models.PartRecord, rules []models.MatchingRule) []models.MatchCandidate {
	if len(storeItems) == 0 || len(supplierItems) == 0 || len(rules) == 0 {
		return nil
	}

	byLineCode := indexRules(rules)

	var out []models.MatchCandidate
	for i := range storeItems {
		store := &storeItems[i]
		lineCode := store.LineCodeValue()
		if lineCode == "" {
			continue
		}
		lineRules := byLineCode[lineCode]
		if len(lineRules) == 0 {
			continue
		}

		var (
			best     *models.PartRecord
			bestRule *models.MatchingRule
		)
		for j := range supplierItems {
			supplier := &supplierItems[j]
			sig := patterns.Signature(store.PartNumber, supplier.PartNumber)
			rule, ok := lineRules[sig]
			if !ok || rule.Action != models.RuleActionAccept {
				continue
			}
			// Deterministic pick: smallest supplier id
			if best == nil || supplier.ID.String() < best.ID.String() {
				best = supplier
				bestRule = rule
			}
		}
		if best == nil {
			continue
		}

		evidence := models.Evidence{
			RuleID:    bestRule.ID.String(),
			Signature: bestRule.Signature,
		}
		out = append(out, models.MatchCandidate{
			ProjectID:      store.ProjectID,
			StorePartID:    store.ID,
			SupplierPartID: &best.ID,
			Method:         models.MatchMethodRule,
			Confidence:     bestRule.Confidence,
			Stage:          models.StageRule,
			Evidence:       evidence.Marshal(),
		})
	}
	return out
}

// indexRules maps line code -> signature -> winning rule, applying scope
// precedence: a project rule replaces a global rule with the same key, never
// the other way around.
func indexRules(rules []models.MatchingRule) map[string]map[string]*models.MatchingRule {
	out := make(map[string]map[string]*models.MatchingRule)
	for i := range rules {
		r := &rules[i]
		if !r.IsActive {
			continue
		}
		sigs, ok := out[r.LineCode]
		if !ok {
			sigs = make(map[string]*models.MatchingRule)
			out[r.LineCode] = sigs
		}
		existing, ok := sigs[r.Signature]
		if !ok || (existing.Scope == models.RuleScopeGlobal && r.Scope == models.RuleScopeProject) {
			sigs[r.Signature] = r
		}
	}
	return out
}
