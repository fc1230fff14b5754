package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearline/partmatch/pkg/httpclient"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/normalize"
)

var testProjectID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testClient() *httpclient.Client {
	return httpclient.NewClient(httpclient.DefaultConfig(), testLogger())
}

func part(n int, side models.CatalogSide, number, description string) models.PartRecord {
	return models.PartRecord{
		ID:              uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)),
		ProjectID:       testProjectID,
		Side:            side,
		PartNumber:      number,
		CanonicalNumber: normalize.Canonicalize(number),
		Description:     description,
	}
}

func decodeEvidence(t *testing.T, cand *models.MatchCandidate) models.Evidence {
	t.Helper()
	var ev models.Evidence
	require.NoError(t, json.Unmarshal(cand.Evidence, &ev))
	return ev
}

type fakeSearcher struct {
	results []models.PartRecord
	err     error
	calls   int
}

func (s *fakeSearcher) SearchSimilar(_ context.Context, _ uuid.UUID, _ string, _ int) ([]models.PartRecord, error) {
	s.calls++
	return s.results, s.err
}

func TestNarrowPool(t *testing.T) {
	store := part(1, models.CatalogSideStore, "GM-8036", "")
	pool := make([]models.PartRecord, 0, maxPoolPayload+50)
	for i := 0; i < maxPoolPayload+50; i++ {
		pool = append(pool, part(100+i, models.CatalogSideSupplier, fmt.Sprintf("SUP%d", i), ""))
	}

	t.Run("search results preferred", func(t *testing.T) {
		searcher := &fakeSearcher{results: pool[:3]}
		got := narrowPool(context.Background(), searcher, store, pool)
		assert.Len(t, got, 3)
		assert.Equal(t, 1, searcher.calls)
	})

	t.Run("search failure falls back to capped pool", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("db down")}
		got := narrowPool(context.Background(), searcher, store, pool)
		assert.Len(t, got, maxPoolPayload)
	})

	t.Run("empty search falls back", func(t *testing.T) {
		searcher := &fakeSearcher{}
		got := narrowPool(context.Background(), searcher, store, pool[:5])
		assert.Len(t, got, 5)
	})

	t.Run("nil searcher caps the pool", func(t *testing.T) {
		got := narrowPool(context.Background(), nil, store, pool)
		assert.Len(t, got, maxPoolPayload)
	})
}

func TestAIMatcherMatch(t *testing.T) {
	store := part(1, models.CatalogSideStore, "GM-8036", "water pump")
	pool := []models.PartRecord{
		part(10, models.CatalogSideSupplier, "GM8036", "water pump"),
		part(11, models.CatalogSideSupplier, "RAY4412", "oil filter"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/match", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var req aiMatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "GM-8036", req.StoreItem.PartNumber)
		require.Len(t, req.Pool, 2)

		resp := aiMatchResponse{
			Matched:        true,
			SupplierPartID: &req.Pool[0].ID,
			Confidence:     0.9,
			Rationale:      "same OEM number without the dash",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m := NewAIMatcher(testLogger(), testClient(), nil, srv.URL, "key-1")
	cand, err := m.Match(context.Background(), store, pool)
	require.NoError(t, err)
	require.NotNil(t, cand)

	require.NotNil(t, cand.SupplierPartID)
	assert.Equal(t, pool[0].ID, *cand.SupplierPartID)
	assert.Equal(t, 0.9, cand.Confidence)

	ev := decodeEvidence(t, cand)
	assert.Equal(t, "ai", ev.ExternalProvider)
	assert.Equal(t, "same OEM number without the dash", ev.Rationale)
}

func TestAIMatcherNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(aiMatchResponse{Matched: false})
	}))
	defer srv.Close()

	m := NewAIMatcher(testLogger(), testClient(), nil, srv.URL, "")
	cand, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), []models.PartRecord{
		part(10, models.CatalogSideSupplier, "RAY4412", ""),
	})
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestAIMatcherDropsOutOfPoolAnswer(t *testing.T) {
	rogue := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(aiMatchResponse{Matched: true, SupplierPartID: &rogue, Confidence: 0.99})
	}))
	defer srv.Close()

	m := NewAIMatcher(testLogger(), testClient(), nil, srv.URL, "")
	cand, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), []models.PartRecord{
		part(10, models.CatalogSideSupplier, "GM8036", ""),
	})
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestAIMatcherEmptyPoolSkipsTheCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
	}))
	defer srv.Close()

	m := NewAIMatcher(testLogger(), testClient(), nil, srv.URL, "")
	cand, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), nil)
	require.NoError(t, err)
	assert.Nil(t, cand)
	assert.Equal(t, 0, calls)
}

func TestAIMatcherServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewAIMatcher(testLogger(), testClient(), nil, srv.URL, "")
	_, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), []models.PartRecord{
		part(10, models.CatalogSideSupplier, "GM8036", ""),
	})
	require.Error(t, err)
	assert.True(t, httpclient.IsRetryable(err))
}

func TestAIMatcherUsesSimilaritySearch(t *testing.T) {
	narrowed := []models.PartRecord{part(10, models.CatalogSideSupplier, "GM8036", "")}
	searcher := &fakeSearcher{results: narrowed}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req aiMatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// only the narrowed pool goes over the wire
		require.Len(t, req.Pool, 1)
		assert.Equal(t, narrowed[0].ID, req.Pool[0].ID)
		json.NewEncoder(w).Encode(aiMatchResponse{Matched: true, SupplierPartID: &req.Pool[0].ID, Confidence: 0.85})
	}))
	defer srv.Close()

	bigPool := []models.PartRecord{
		part(10, models.CatalogSideSupplier, "GM8036", ""),
		part(11, models.CatalogSideSupplier, "RAY4412", ""),
		part(12, models.CatalogSideSupplier, "ACD5555", ""),
	}

	m := NewAIMatcher(testLogger(), testClient(), searcher, srv.URL, "")
	cand, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), bigPool)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, 1, searcher.calls)
}

func TestWebSearchMatcherMapsOntoPool(t *testing.T) {
	store := part(1, models.CatalogSideStore, "GM-8036", "water pump")
	lineCode := "GM"
	store.LineCode = &lineCode
	pool := []models.PartRecord{
		part(10, models.CatalogSideSupplier, "RAY 8036", ""),
		part(11, models.CatalogSideSupplier, "ACD5555", ""),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lookup", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "GM-8036", q.Get("part_number"))
		assert.Equal(t, "GM", q.Get("line_code"))
		assert.Equal(t, "water pump", q.Get("description"))

		json.NewEncoder(w).Encode(webSearchResponse{
			Found:      true,
			PartNumber: "RAY-8036",
			SourceURL:  "https://catalog.example.com/ray-8036",
			Confidence: 0.7,
		})
	}))
	defer srv.Close()

	m := NewWebSearchMatcher(testLogger(), testClient(), srv.URL, "")
	cand, err := m.Match(context.Background(), store, pool)
	require.NoError(t, err)
	require.NotNil(t, cand)

	// RAY-8036 canonicalizes onto the "RAY 8036" catalog row
	require.NotNil(t, cand.SupplierPartID)
	assert.Equal(t, pool[0].ID, *cand.SupplierPartID)
	assert.Equal(t, 0.7, cand.Confidence)

	ev := decodeEvidence(t, cand)
	assert.Equal(t, "web_search", ev.ExternalProvider)
	assert.Equal(t, "https://catalog.example.com/ray-8036", ev.SourceURL)
	assert.Equal(t, "RAY-8036", ev.DiscoveredNumber)
}

func TestWebSearchMatcherDiscoveryWithoutCatalogRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(webSearchResponse{
			Found:      true,
			PartNumber: "ZZQ-9-81",
			SourceURL:  "https://forum.example.com/thread/42",
			Confidence: 0.5,
		})
	}))
	defer srv.Close()

	m := NewWebSearchMatcher(testLogger(), testClient(), srv.URL, "")
	cand, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), []models.PartRecord{
		part(10, models.CatalogSideSupplier, "ACD5555", ""),
	})
	require.NoError(t, err)
	require.NotNil(t, cand)

	// the discovery surfaces for review even though nothing can be confirmed
	assert.Nil(t, cand.SupplierPartID)
	assert.Equal(t, 0.5, cand.Confidence)

	ev := decodeEvidence(t, cand)
	assert.Equal(t, "ZZQ-9-81", ev.DiscoveredNumber)
}

func TestWebSearchMatcherNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(webSearchResponse{Found: false})
	}))
	defer srv.Close()

	m := NewWebSearchMatcher(testLogger(), testClient(), srv.URL, "")
	cand, err := m.Match(context.Background(), part(1, models.CatalogSideStore, "GM-8036", ""), nil)
	require.NoError(t, err)
	assert.Nil(t, cand)
}
