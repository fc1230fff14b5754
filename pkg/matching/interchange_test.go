package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/normalize"
)

func newEntry(id int, ours, theirs string, confidence float64) models.InterchangeEntry {
	return models.InterchangeEntry{
		ID:              testID(id),
		ProjectID:       testProjectID,
		Ours:            ours,
		Theirs:          theirs,
		OursCanonical:   normalize.Canonicalize(ours),
		TheirsCanonical: normalize.Canonicalize(theirs),
		Confidence:      confidence,
	}
}

func TestInterchangeResolverCrossReference(t *testing.T) {
	r := NewInterchangeResolver()

	store := []models.PartRecord{storePart(1, "GM-8036", "thermostat housing")}
	suppliers := []models.PartRecord{supplierPart(2, "RAY8036", "thermostat housing")}
	entries := []models.InterchangeEntry{newEntry(10, "GM-8036", "RAY8036", 0.97)}

	out := r.Resolve(store, suppliers, entries)
	require.Len(t, out, 1)

	cand := out[0]
	assert.Equal(t, models.MatchMethodInterchange, cand.Method)
	assert.Equal(t, models.StageInterchange, cand.Stage)
	require.NotNil(t, cand.SupplierPartID)
	assert.Equal(t, suppliers[0].ID, *cand.SupplierPartID)
	assert.Equal(t, 0.97, cand.Confidence)
}

func TestInterchangeResolverReverseDirection(t *testing.T) {
	r := NewInterchangeResolver()

	// the store item matches the theirs side; lookup must work both ways
	store := []models.PartRecord{storePart(1, "RAY8036", "thermostat housing")}
	suppliers := []models.PartRecord{supplierPart(2, "GM-8036", "thermostat housing")}
	entries := []models.InterchangeEntry{newEntry(10, "GM-8036", "RAY8036", 0.97)}

	out := r.Resolve(store, suppliers, entries)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].SupplierPartID)
	assert.Equal(t, suppliers[0].ID, *out[0].SupplierPartID)

	ev := decodeEvidence(t, &out[0])
	assert.Equal(t, "theirs", ev.InterchangeSide)
}

func TestInterchangeResolverInterchangeOnly(t *testing.T) {
	r := NewInterchangeResolver()

	// cross-reference exists but the supplier catalog has no RAY8036 row
	store := []models.PartRecord{storePart(1, "GM-8036", "thermostat housing")}
	suppliers := []models.PartRecord{supplierPart(2, "ACD12345", "spark plug")}
	entries := []models.InterchangeEntry{newEntry(10, "GM-8036", "RAY8036", 0.97)}

	out := r.Resolve(store, suppliers, entries)
	require.Len(t, out, 1)
	assert.Equal(t, models.MatchMethodInterchangeOnly, out[0].Method)
	assert.Nil(t, out[0].SupplierPartID)
	assert.Equal(t, 0.97, out[0].Confidence)
}

func TestInterchangeResolverHighestConfidenceWins(t *testing.T) {
	r := NewInterchangeResolver()

	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	suppliers := []models.PartRecord{
		supplierPart(2, "RAY8036", ""),
		supplierPart(3, "MOT8036X", ""),
	}
	entries := []models.InterchangeEntry{
		newEntry(10, "GM-8036", "MOT8036X", 0.90),
		newEntry(11, "GM-8036", "RAY8036", 0.97),
	}

	out := r.Resolve(store, suppliers, entries)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].SupplierPartID)
	assert.Equal(t, testID(2), *out[0].SupplierPartID)
	assert.Equal(t, 0.97, out[0].Confidence)
}

func TestInterchangeResolverNoEntries(t *testing.T) {
	r := NewInterchangeResolver()
	store := []models.PartRecord{storePart(1, "GM-8036", "")}
	assert.Empty(t, r.Resolve(store, nil, nil))
}
