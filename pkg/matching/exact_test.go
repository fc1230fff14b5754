package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearline/partmatch/pkg/models"
)

func TestExactMatcherCanonicalJoin(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	store := []models.PartRecord{storePart(1, "GM-8036", "water pump gasket")}
	suppliers := []models.PartRecord{supplierPart(2, "GM8036", "water pump gasket")}

	out := m.Match(store, suppliers)
	require.Len(t, out, 1)

	cand := out[0]
	assert.Equal(t, models.MatchMethodExact, cand.Method)
	assert.Equal(t, models.StageExact, cand.Stage)
	assert.Equal(t, store[0].ID, cand.StorePartID)
	require.NotNil(t, cand.SupplierPartID)
	assert.Equal(t, suppliers[0].ID, *cand.SupplierPartID)
	// identical descriptions on a canonical join are the top tier
	assert.Equal(t, 0.99, cand.Confidence)
}

func TestExactMatcherPunctuationVariantsTopTier(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	// same number rendered with dashes vs dots, identical descriptions
	store := []models.PartRecord{storePart(1, "000-2112-73", "oil seal rear main")}
	suppliers := []models.PartRecord{supplierPart(2, "000.2112.73", "oil seal rear main")}

	out := m.Match(store, suppliers)
	require.Len(t, out, 1)
	assert.Equal(t, 0.99, out[0].Confidence)

	ev := decodeEvidence(t, &out[0])
	assert.False(t, ev.RawEqual)
	assert.Equal(t, 1.0, ev.DescSimilarity)
}

func TestExactMatcherDescriptionGuard(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	// short codes collide across categories; unrelated descriptions reject
	store := []models.PartRecord{storePart(1, "21-3-1", "brake pad front axle set")}
	suppliers := []models.PartRecord{supplierPart(2, "21/3/1", "engine oil filter cartridge")}

	out := m.Match(store, suppliers)
	assert.Empty(t, out)
}

func TestExactMatcherGuardDisabled(t *testing.T) {
	m := NewExactMatcher(NewScorer(), ExactConfig{ValidateDescriptions: false})

	store := []models.PartRecord{storePart(1, "21-3-1", "brake pad front axle set")}
	suppliers := []models.PartRecord{supplierPart(2, "21/3/1", "engine oil filter cartridge")}

	out := m.Match(store, suppliers)
	require.Len(t, out, 1)
	// the join survives but lands in the lowest confidence tier
	assert.Equal(t, 0.80, out[0].Confidence)
}

func TestExactMatcherPicksBestDescription(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	store := []models.PartRecord{storePart(1, "RAY8036", "radiator hose upper")}
	suppliers := []models.PartRecord{
		supplierPart(2, "RAY8036", "wiper blade assembly"),
		supplierPart(3, "RAY8036", "radiator hose upper"),
	}

	out := m.Match(store, suppliers)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].SupplierPartID)
	assert.Equal(t, testID(3), *out[0].SupplierPartID)
}

func TestExactMatcherTieBreaksOnSmallestID(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	store := []models.PartRecord{storePart(1, "RAY8036", "radiator hose upper")}
	suppliers := []models.PartRecord{
		supplierPart(9, "RAY8036", "radiator hose upper"),
		supplierPart(3, "RAY8036", "radiator hose upper"),
	}

	out := m.Match(store, suppliers)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].SupplierPartID)
	assert.Equal(t, testID(3), *out[0].SupplierPartID)

	ev := decodeEvidence(t, &out[0])
	assert.True(t, ev.TieOccurred)
}

func TestExactMatcherSkipsEmptyCanonical(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	// "000" canonicalizes to nothing and must never join
	store := []models.PartRecord{storePart(1, "000", "mystery part")}
	suppliers := []models.PartRecord{supplierPart(2, "000", "mystery part")}

	assert.Empty(t, m.Match(store, suppliers))
}

func TestExactMatcherEmptyInputs(t *testing.T) {
	m := NewExactMatcher(NewScorer(), DefaultExactConfig())

	assert.Empty(t, m.Match(nil, []models.PartRecord{supplierPart(1, "GM8036", "")}))
	assert.Empty(t, m.Match([]models.PartRecord{storePart(1, "GM8036", "")}, nil))
}
