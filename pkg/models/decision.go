package models

import (
	"github.com/google/uuid"
)

// DecisionVerdict is the reviewer's call on a match candidate
type DecisionVerdict string

const (
	DecisionApprove DecisionVerdict = "approve"
	DecisionReject  DecisionVerdict = "reject"
)

// ReviewDecision is one row of the bulk decision feed consumed by the pattern
// detector. Produced externally (bulk review UI, CSV round-trips); partmatch
// only consumes this shape.
type ReviewDecision struct {
	MatchCandidateID   uuid.UUID       `json:"match_candidate_id" validate:"required"`
	ProjectID          uuid.UUID       `json:"project_id" validate:"required"`
	UserID             string          `json:"user_id" validate:"required"`
	StorePartNumber    string          `json:"store_part_number" validate:"required"`
	SupplierPartNumber string          `json:"supplier_part_number" validate:"required"`
	LineCode           *string         `json:"line_code,omitempty"`
	Decision           DecisionVerdict `json:"decision" validate:"required,oneof=approve reject"`
	Note               *string         `json:"note,omitempty"`
}
