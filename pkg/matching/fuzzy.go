package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/models"
)

// FuzzyConfig controls candidate generation and acceptance. The threshold was
// tuned empirically against one dataset; treat it as configuration and
// recalibrate per deployment.
type FuzzyConfig struct {
	Threshold            float64 // base acceptance threshold (default: 0.65)
	MaxCandidatesPerItem int     // candidate pool cap per store item (default: 50)
	MinMfrSimilarity     float64 // pool strategy (b) floor (default: 0.50)
	MinPartSimilarity    float64 // pool strategy (c) floor (default: 0.45)
	MinSharedDescWords   int     // pool strategy (d) floor (default: 2)
}

// DefaultFuzzyConfig returns sensible defaults
func DefaultFuzzyConfig() FuzzyConfig {
	return FuzzyConfig{
		Threshold:            0.65,
		MaxCandidatesPerItem: 50,
		MinMfrSimilarity:     0.50,
		MinPartSimilarity:    0.45,
		MinSharedDescWords:   2,
	}
}

// FuzzyMetrics reports what a fuzzy pass did
type FuzzyMetrics struct {
	ItemsScanned     int           `json:"items_scanned"`
	ItemsSkipped     int           `json:"items_skipped"`
	CandidatesScored int           `json:"candidates_scored"`
	Matched          int           `json:"matched"`
	Elapsed          time.Duration `json:"elapsed"`
}

// FuzzyMatcher scores candidate supplier items for store items the earlier
// stages could not resolve. Scoring combines part-number edit distance,
// substring containment, line-code agreement, manufacturer-code similarity
// and description token overlap.
type FuzzyMatcher struct {
	scorer *Scorer
	cfg    FuzzyConfig
}

// NewFuzzyMatcher creates a new fuzzy matcher
func NewFuzzyMatcher(scorer *Scorer, cfg FuzzyConfig) *FuzzyMatcher {
	return &FuzzyMatcher{scorer: scorer, cfg: cfg}
}

// poolEntry tracks a candidate and which generation strategies produced it
type poolEntry struct {
	part       *models.PartRecord
	strategies []string
}

// Match scores every pooled candidate and keeps the single best one per store
// item when it clears the adaptive threshold. Items in alreadyMatched are
// never reconsidered.
func (m *FuzzyMatcher) Match(storeItems []models.PartRecord, supplierItems []models.PartRecord, alreadyMatched map[uuid.UUID]struct{}) ([]models.MatchCandidate, FuzzyMetrics) {
	start := time.Now()
	metrics := FuzzyMetrics{}

	index := newSupplierIndex(supplierItems)

	var out []models.MatchCandidate
	for i := range storeItems {
		store := &storeItems[i]
		if _, done := alreadyMatched[store.ID]; done {
			metrics.ItemsSkipped++
			continue
		}
		if store.CanonicalNumber == "" {
			metrics.ItemsSkipped++
			continue
		}
		metrics.ItemsScanned++

		pool := m.buildPool(store, index)
		if len(pool) == 0 {
			continue
		}

		best, bestScore, bestEvidence := m.scorePool(store, pool, &metrics)
		if best == nil {
			continue
		}

		effective := m.effectiveThreshold(bestEvidence)
		if bestScore < effective {
			continue
		}

		method := models.MatchMethodFuzzy
		if bestEvidence.Substring {
			method = models.MatchMethodFuzzySubstring
		}

		confidence := bestScore
		if confidence > 1.0 {
			confidence = 1.0
		}

		out = append(out, models.MatchCandidate{
			ProjectID:      store.ProjectID,
			StorePartID:    store.ID,
			SupplierPartID: &best.ID,
			Method:         method,
			Confidence:     confidence,
			Stage:          models.StageFuzzy,
			Evidence:       bestEvidence.Marshal(),
		})
		metrics.Matched++
	}

	metrics.Elapsed = time.Since(start)
	return out, metrics
}

// buildPool unions the generation strategies in priority order, cheap before
// expensive, capped at MaxCandidatesPerItem. Earlier strategies are never
// discarded once later ones run.
func (m *FuzzyMatcher) buildPool(store *models.PartRecord, index *supplierIndex) []poolEntry {
	limit := m.cfg.MaxCandidatesPerItem
	pool := make([]poolEntry, 0, limit)
	seen := make(map[uuid.UUID]int)

	add := func(p *models.PartRecord, strategy string) bool {
		if idx, ok := seen[p.ID]; ok {
			pool[idx].strategies = append(pool[idx].strategies, strategy)
			return len(pool) < limit
		}
		if len(pool) >= limit {
			return false
		}
		seen[p.ID] = len(pool)
		pool = append(pool, poolEntry{part: p, strategies: []string{strategy}})
		return len(pool) < limit
	}

	// (a) same line code
	if lc := store.LineCodeValue(); lc != "" {
		for _, p := range index.byLineCode[lc] {
			if !add(p, "line_code") {
				return pool
			}
		}
	}

	// (b) similar manufacturer code
	if mfr := store.MfrCodeValue(); mfr != "" {
		for i := range index.parts {
			p := index.parts[i]
			candMfr := p.MfrCodeValue()
			if candMfr == "" {
				continue
			}
			if m.scorer.Levenshtein(mfr, candMfr) >= m.cfg.MinMfrSimilarity {
				if !add(p, "mfr_code") {
					return pool
				}
			}
		}
	}

	// (c) canonical substring / edit similarity
	for i := range index.parts {
		p := index.parts[i]
		if p.CanonicalNumber == "" {
			continue
		}
		if sim, _ := m.scorer.PartSimilarity(store.CanonicalNumber, p.CanonicalNumber); sim >= m.cfg.MinPartSimilarity {
			if !add(p, "part_number") {
				return pool
			}
		}
	}

	// (d) shared significant description words
	if store.Description != "" {
		for i := range index.parts {
			p := index.parts[i]
			if p.Description == "" {
				continue
			}
			if m.scorer.SharedSignificantWords(store.Description, p.Description, 3) >= m.cfg.MinSharedDescWords {
				if !add(p, "description") {
					return pool
				}
			}
		}
	}

	return pool
}

// scorePool computes the weighted score for every pooled candidate and
// returns the best. Ties keep the first encountered, which is deterministic
// because the pool is built in strategy-then-catalog order.
func (m *FuzzyMatcher) scorePool(store *models.PartRecord, pool []poolEntry, metrics *FuzzyMetrics) (*models.PartRecord, float64, models.Evidence) {
	var (
		best      *models.PartRecord
		bestScore = -1.0
		bestEv    models.Evidence
	)

	for _, entry := range pool {
		cand := entry.part
		metrics.CandidatesScored++

		partSim, substring := m.scorer.PartSimilarity(store.CanonicalNumber, cand.CanonicalNumber)

		mfrSim := 0.0
		if store.MfrCodeValue() != "" && cand.MfrCodeValue() != "" {
			mfrSim = m.scorer.Levenshtein(store.MfrCodeValue(), cand.MfrCodeValue())
		}

		lineMatched := store.LineCodeValue() != "" && store.LineCodeValue() == cand.LineCodeValue()
		lineBonus := 0.0
		if lineMatched {
			lineBonus = 1.0
		}

		shared := m.scorer.SharedSignificantWords(store.Description, cand.Description, 3)
		descBonus := m.scorer.DescriptionBonus(shared, 0.2)

		score := partSim + 0.4*mfrSim + 0.25*lineBonus + descBonus
		if score > bestScore {
			best = cand
			bestScore = score
			bestEv = models.Evidence{
				PartSimilarity:  partSim,
				MfrSimilarity:   mfrSim,
				LineCodeMatched: lineMatched,
				Substring:       substring,
				SharedDescWords: shared,
				PoolStrategies:  entry.strategies,
			}
		} else if score == bestScore {
			bestEv.TieOccurred = true
		}
	}

	return best, bestScore, bestEv
}

// effectiveThreshold adapts the acceptance bar to the strength of the
// structural signal: substring containment and line-code agreement justify a
// discount. A score exactly at the bar is accepted.
func (m *FuzzyMatcher) effectiveThreshold(ev models.Evidence) float64 {
	switch {
	case ev.Substring:
		return m.cfg.Threshold * 0.75
	case ev.LineCodeMatched:
		return m.cfg.Threshold * 0.9
	default:
		return m.cfg.Threshold
	}
}

// supplierIndex precomputes the lookups candidate generation needs
type supplierIndex struct {
	parts      []*models.PartRecord
	byLineCode map[string][]*models.PartRecord
}

func newSupplierIndex(supplierItems []models.PartRecord) *supplierIndex {
	idx := &supplierIndex{
		parts:      make([]*models.PartRecord, 0, len(supplierItems)),
		byLineCode: make(map[string][]*models.PartRecord),
	}
	for i := range supplierItems {
		p := &supplierItems[i]
		idx.parts = append(idx.parts, p)
		if lc := p.LineCodeValue(); lc != "" {
			idx.byLineCode[lc] = append(idx.byLineCode[lc], p)
		}
	}
	return idx
}
