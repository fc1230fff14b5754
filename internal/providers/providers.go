// Package providers implements the external matchers behind the ai and
// web_search stages. Both talk to out-of-process services over HTTP; per-call
// rate limiting and retries live in the stage wrapper, not here.
package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/models"
)

// maxPoolPayload caps how many supplier rows a single request carries
const maxPoolPayload = 200

// SimilaritySearcher narrows the candidate pool for one store item using
// trigram similarity before the expensive external call.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, projectID uuid.UUID, canonical string, limit int) ([]models.PartRecord, error)
}

// itemPayload is the wire form of a catalog row
type itemPayload struct {
	ID          uuid.UUID `json:"id"`
	PartNumber  string    `json:"part_number"`
	LineCode    string    `json:"line_code,omitempty"`
	MfrCode     string    `json:"mfr_code,omitempty"`
	Description string    `json:"description,omitempty"`
}

func toPayload(rec *models.PartRecord) itemPayload {
	p := itemPayload{
		ID:          rec.ID,
		PartNumber:  rec.PartNumber,
		Description: rec.Description,
	}
	if rec.LineCode != nil {
		p.LineCode = *rec.LineCode
	}
	if rec.MfrCode != nil {
		p.MfrCode = *rec.MfrCode
	}
	return p
}

// narrowPool prefers a trigram search over sending the whole catalog. Falls
// back to a capped slice of the in-memory pool when the search fails or finds
// nothing.
func narrowPool(ctx context.Context, searcher SimilaritySearcher, storeItem models.PartRecord, pool []models.PartRecord) []models.PartRecord {
	if searcher != nil && storeItem.CanonicalNumber != "" {
		similar, err := searcher.SearchSimilar(ctx, storeItem.ProjectID, storeItem.CanonicalNumber, maxPoolPayload)
		if err == nil && len(similar) > 0 {
			return similar
		}
	}
	if len(pool) > maxPoolPayload {
		return pool[:maxPoolPayload]
	}
	return pool
}

func poolPayload(pool []models.PartRecord) []itemPayload {
	out := make([]itemPayload, 0, len(pool))
	for i := range pool {
		out = append(out, toPayload(&pool[i]))
	}
	return out
}

func poolIndex(pool []models.PartRecord) map[uuid.UUID]*models.PartRecord {
	idx := make(map[uuid.UUID]*models.PartRecord, len(pool))
	for i := range pool {
		idx[pool[i].ID] = &pool[i]
	}
	return idx
}
