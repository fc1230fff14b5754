package matching

import (
	"github.com/gearline/partmatch/pkg/models"
)

// ExactConfig controls the exact matcher's false-positive guard. The floor
// was tuned empirically against one dataset; treat it as configuration.
type ExactConfig struct {
	ValidateDescriptions bool    // reject canonical joins below the floor
	SimilarityFloor      float64 // minimum description similarity (default: 0.60)
}

// DefaultExactConfig returns sensible defaults
func DefaultExactConfig() ExactConfig {
	return ExactConfig{
		ValidateDescriptions: true,
		SimilarityFloor:      0.60,
	}
}

// ExactMatcher joins store and supplier items on canonical part number with a
// description-similarity guard against short/common code collisions.
type ExactMatcher struct {
	scorer *Scorer
	cfg    ExactConfig
}

// NewExactMatcher creates a new exact matcher
func NewExactMatcher(scorer *Scorer, cfg ExactConfig) *ExactMatcher {
	return &ExactMatcher{scorer: scorer, cfg: cfg}
}

// Match emits at most one candidate per store item. When a store item joins
// multiple supplier rows on the same canonical number, the row with the
// highest description similarity wins; ties break on the lexicographically
// smallest supplier id for determinism.
func (m *ExactMatcher) Match(storeItems []models.PartRecord, supplierItems []models.PartRecord) []models.MatchCandidate {
	if len(storeItems) == 0 || len(supplierItems) == 0 {
		return nil
	}

	supplierByCanonical := make(map[string][]*models.PartRecord, len(supplierItems))
	for i := range supplierItems {
		c := supplierItems[i].CanonicalNumber
		if c == "" {
			continue
		}
		supplierByCanonical[c] = append(supplierByCanonical[c], &supplierItems[i])
	}

	var out []models.MatchCandidate
	for i := range storeItems {
		store := &storeItems[i]
		if store.CanonicalNumber == "" {
			// malformed record: skip, never abort the batch
			continue
		}
		suppliers := supplierByCanonical[store.CanonicalNumber]
		if len(suppliers) == 0 {
			continue
		}

		best, bestSim, tie := m.pickBest(store, suppliers)
		if m.cfg.ValidateDescriptions && bestSim < m.cfg.SimilarityFloor {
			continue
		}

		confidence := m.confidence(store, best, bestSim)
		evidence := models.Evidence{
			DescSimilarity: bestSim,
			RawEqual:       store.PartNumber == best.PartNumber,
			TieOccurred:    tie,
		}

		out = append(out, models.MatchCandidate{
			ProjectID:      store.ProjectID,
			StorePartID:    store.ID,
			SupplierPartID: &best.ID,
			Method:         models.MatchMethodExact,
			Confidence:     confidence,
			Stage:          models.StageExact,
			Evidence:       evidence.Marshal(),
		})
	}
	return out
}

func (m *ExactMatcher) pickBest(store *models.PartRecord, suppliers []*models.PartRecord) (best *models.PartRecord, bestSim float64, tie bool) {
	bestSim = -1.0
	for _, supplier := range suppliers {
		sim := m.scorer.DescriptionSimilarity(store.Description, supplier.Description)
		switch {
		case sim > bestSim:
			best = supplier
			bestSim = sim
			tie = false
		case sim == bestSim:
			tie = true
			if supplier.ID.String() < best.ID.String() {
				best = supplier
			}
		}
	}
	return best, bestSim, tie
}

// confidence maps a canonical join plus description similarity to a tier.
// Ordered highest first; the 0.80 tier is only reachable when the guard is
// disabled.
func (m *ExactMatcher) confidence(store, supplier *models.PartRecord, descSim float64) float64 {
	identical := store.PartNumber == supplier.PartNumber ||
		(store.Description != "" && store.Description == supplier.Description)
	switch {
	case identical && descSim >= 0.90:
		return 0.99
	case descSim >= 0.90:
		return 0.98
	case descSim >= 0.75:
		return 0.95
	case descSim >= 0.60:
		return 0.92
	case descSim >= 0.50:
		return 0.87
	default:
		return 0.80
	}
}
