package matching

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/normalize"
)

var testProjectID = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// testID builds a deterministic uuid so tie-break assertions are stable
func testID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func strPtr(s string) *string {
	return &s
}

// newPart builds a catalog row the way ingestion would: canonical number and
// line code derived from the raw number unless overridden.
func newPart(id int, side models.CatalogSide, number, desc string) models.PartRecord {
	n := normalize.Normalize(number)
	return models.PartRecord{
		ID:              testID(id),
		ProjectID:       testProjectID,
		Side:            side,
		PartNumber:      number,
		CanonicalNumber: n.Canonical,
		LineCode:        n.LineCode,
		MfrCode:         n.MfrCode,
		Description:     desc,
	}
}

func storePart(id int, number, desc string) models.PartRecord {
	return newPart(id, models.CatalogSideStore, number, desc)
}

func supplierPart(id int, number, desc string) models.PartRecord {
	return newPart(id, models.CatalogSideSupplier, number, desc)
}

func decodeEvidence(t *testing.T, c *models.MatchCandidate) models.Evidence {
	t.Helper()
	var ev models.Evidence
	require.NoError(t, json.Unmarshal(c.Evidence, &ev))
	return ev
}
