// Package matching implements the waterfall of part matchers: interchange
// lookup, exact canonical join, learned rules, and fuzzy scoring. Matchers
// consume plain records and emit match candidates; they never touch storage.
package matching

import (
	"sort"

	"github.com/gearline/partmatch/pkg/models"
)

// InterchangeResolver matches store items to supplier items through a
// vendor-to-vendor cross-reference table, independent of catalog-internal
// similarity.
type InterchangeResolver struct{}

// NewInterchangeResolver creates a new interchange resolver
func NewInterchangeResolver() *InterchangeResolver {
	return &InterchangeResolver{}
}

// Resolve emits at most one candidate per store item. A store item matches an
// entry when its canonical number equals either canonical side; the opposite
// side must then equal a supplier item's canonical number. When the opposite
// side has no supplier row yet, an interchange_only candidate is still
// emitted so reviewers see the cross-reference while the catalog backfills.
func (r *InterchangeResolver) Resolve(storeItems []models.PartRecord, supplierItems []models.PartRecord, entries []models.InterchangeEntry) []models.MatchCandidate {
	if len(storeItems) == 0 || len(entries) == 0 {
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

	// Entries indexed by both canonical sides; the stored order is arbitrary
	entriesByCanonical := make(map[string][]*models.InterchangeEntry, len(entries)*2)
	for i := range entries {
		e := &entries[i]
		if e.OursCanonical != "" {
			entriesByCanonical[e.OursCanonical] = append(entriesByCanonical[e.OursCanonical], e)
		}
		if e.TheirsCanonical != "" && e.TheirsCanonical != e.OursCanonical {
			entriesByCanonical[e.TheirsCanonical] = append(entriesByCanonical[e.TheirsCanonical], e)
		}
	}

	var out []models.MatchCandidate
	for i := range storeItems {
		store := &storeItems[i]
		if store.CanonicalNumber == "" {
			continue
		}
		hits := entriesByCanonical[store.CanonicalNumber]
		if len(hits) == 0 {
			continue
		}

		// Highest entry confidence wins; ties break on smallest entry id
		sort.Slice(hits, func(a, b int) bool {
			if hits[a].Confidence != hits[b].Confidence {
				return hits[a].Confidence > hits[b].Confidence
			}
			return hits[a].ID.String() < hits[b].ID.String()
		})

		best := hits[0]
		other, side := otherSide(best, store.CanonicalNumber)

		cand := models.MatchCandidate{
			ProjectID:   store.ProjectID,
			StorePartID: store.ID,
			Method:      models.MatchMethodInterchangeOnly,
			Confidence:  best.Confidence,
			Stage:       models.StageInterchange,
		}
		evidence := models.Evidence{
			InterchangeID:   best.ID.String(),
			InterchangeSide: side,
			TieOccurred:     len(hits) > 1 && hits[1].Confidence == best.Confidence,
		}

		if suppliers := supplierByCanonical[other]; len(suppliers) > 0 {
			supplier := pickSmallestID(suppliers)
			cand.SupplierPartID = &supplier.ID
			cand.Method = models.MatchMethodInterchange
		}

		cand.Evidence = evidence.Marshal()
		out = append(out, cand)
	}
	return out
}

// otherSide returns the canonical number on the opposite side of the entry
// from the one that matched, plus which side matched.
func otherSide(e *models.InterchangeEntry, matched string) (string, string) {
	if e.OursCanonical == matched {
		return e.TheirsCanonical, "ours"
	}
	return e.OursCanonical, "theirs"
}

func pickSmallestID(parts []*models.PartRecord) *models.PartRecord {
	best := parts[0]
	for _, p := range parts[1:] {
		if p.ID.String() < best.ID.String() {
			best = p
		}
	}
	return best
}
