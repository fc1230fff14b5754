package models

import (
	"time"

	"github.com/google/uuid"
)

// InterchangeEntry is a vendor-curated cross-reference asserting that two
// differently coded parts are equivalent. The pair is stored as ours/theirs
// but is unordered in practice: lookups must try both sides.
type InterchangeEntry struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ProjectID       uuid.UUID `json:"project_id" db:"project_id"`
	Ours            string    `json:"ours" db:"ours"`
	Theirs          string    `json:"theirs" db:"theirs"`
	OursCanonical   string    `json:"ours_canonical" db:"ours_canonical"`
	TheirsCanonical string    `json:"theirs_canonical" db:"theirs_canonical"`
	Confidence      float64   `json:"confidence" db:"confidence"`
	Source          string    `json:"source" db:"source"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
