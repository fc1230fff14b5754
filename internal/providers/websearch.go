package providers

import (
	"context"
	"net/url"

	"github.com/Gobusters/ectologger"

	"github.com/gearline/partmatch/pkg/httpclient"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/normalize"
)

// WebSearchMatcher resolves a store item through a part-number lookup
// service. A discovered number that canonicalizes onto a supplier row yields
// a full candidate; one that doesn't still yields a candidate without a
// supplier reference so reviewers see what the search found.
type WebSearchMatcher struct {
	logger  ectologger.Logger
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// NewWebSearchMatcher creates a new web search matcher
func NewWebSearchMatcher(logger ectologger.Logger, client *httpclient.Client, baseURL, apiKey string) *WebSearchMatcher {
	return &WebSearchMatcher{
		logger:  logger,
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (m *WebSearchMatcher) Name() string {
	return "web_search"
}

type webSearchResponse struct {
	Found      bool    `json:"found"`
	PartNumber string  `json:"part_number,omitempty"`
	SourceURL  string  `json:"source_url,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Match looks the store item's number up and maps the result back onto the
// supplier pool by canonical number.
func (m *WebSearchMatcher) Match(ctx context.Context, storeItem models.PartRecord, pool []models.PartRecord) (*models.MatchCandidate, error) {
	query := url.Values{}
	query.Set("part_number", storeItem.PartNumber)
	if storeItem.LineCode != nil {
		query.Set("line_code", *storeItem.LineCode)
	}
	if storeItem.Description != "" {
		query.Set("description", storeItem.Description)
	}

	headers := map[string]string{}
	if m.apiKey != "" {
		headers["Authorization"] = "Bearer " + m.apiKey
	}

	resp, err := m.client.Get(ctx, m.baseURL+"/v1/lookup?"+query.Encode(), headers)
	if err != nil {
		return nil, err
	}

	var out webSearchResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	if !out.Found || out.PartNumber == "" || out.Confidence <= 0 {
		return nil, nil
	}

	evidence := models.Evidence{
		ExternalProvider: m.Name(),
		SourceURL:        out.SourceURL,
		DiscoveredNumber: out.PartNumber,
	}

	canonical := normalize.Canonicalize(out.PartNumber)
	for i := range pool {
		if pool[i].CanonicalNumber == canonical {
			supplierID := pool[i].ID
			return &models.MatchCandidate{
				SupplierPartID: &supplierID,
				Confidence:     out.Confidence,
				Evidence:       evidence.Marshal(),
			}, nil
		}
	}

	// No catalog row carries the discovered number. Surface the finding
	// anyway; it cannot be confirmed but tells reviewers where to look.
	return &models.MatchCandidate{
		Confidence: out.Confidence,
		Evidence:   evidence.Marshal(),
	}, nil
}
