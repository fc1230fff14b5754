package providers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/httpclient"
	"github.com/gearline/partmatch/pkg/models"
)

// AIMatcher asks an LLM-backed matching service to pick a supplier row for a
// store item. The service only ever sees rows we sent it; a response that
// references anything else is treated as no match.
type AIMatcher struct {
	logger   ectologger.Logger
	client   *httpclient.Client
	searcher SimilaritySearcher
	baseURL  string
	apiKey   string
}

// NewAIMatcher creates a new AI matcher. searcher may be nil.
func NewAIMatcher(logger ectologger.Logger, client *httpclient.Client, searcher SimilaritySearcher, baseURL, apiKey string) *AIMatcher {
	return &AIMatcher{
		logger:   logger,
		client:   client,
		searcher: searcher,
		baseURL:  baseURL,
		apiKey:   apiKey,
	}
}

func (m *AIMatcher) Name() string {
	return "ai"
}

type aiMatchRequest struct {
	StoreItem itemPayload   `json:"store_item"`
	Pool      []itemPayload `json:"pool"`
}

type aiMatchResponse struct {
	Matched        bool       `json:"matched"`
	SupplierPartID *uuid.UUID `json:"supplier_part_id,omitempty"`
	Confidence     float64    `json:"confidence"`
	Rationale      string     `json:"rationale,omitempty"`
}

// Match sends one store item plus a narrowed supplier pool and returns the
// provider's pick, or nil when it declined to match.
func (m *AIMatcher) Match(ctx context.Context, storeItem models.PartRecord, pool []models.PartRecord) (*models.MatchCandidate, error) {
	narrowed := narrowPool(ctx, m.searcher, storeItem, pool)
	if len(narrowed) == 0 {
		return nil, nil
	}

	req := aiMatchRequest{
		StoreItem: toPayload(&storeItem),
		Pool:      poolPayload(narrowed),
	}

	headers := map[string]string{}
	if m.apiKey != "" {
		headers["Authorization"] = "Bearer " + m.apiKey
	}

	resp, err := m.client.PostJSON(ctx, m.baseURL+"/v1/match", headers, req)
	if err != nil {
		return nil, err
	}

	var out aiMatchResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	if !out.Matched || out.SupplierPartID == nil || out.Confidence <= 0 {
		return nil, nil
	}

	supplier, ok := poolIndex(narrowed)[*out.SupplierPartID]
	if !ok {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"store_part_id":    storeItem.ID,
			"supplier_part_id": *out.SupplierPartID,
		}).Warn("AI matcher referenced a supplier row outside the pool; dropping")
		return nil, nil
	}

	evidence := models.Evidence{
		ExternalProvider: m.Name(),
		Rationale:        out.Rationale,
	}
	supplierID := supplier.ID
	return &models.MatchCandidate{
		SupplierPartID: &supplierID,
		Confidence:     out.Confidence,
		Evidence:       evidence.Marshal(),
	}, nil
}
