package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MatchMethod identifies which matcher produced a candidate
type MatchMethod string

const (
	MatchMethodInterchange     MatchMethod = "interchange"
	MatchMethodInterchangeOnly MatchMethod = "interchange_only" // cross-reference hit without a supplier catalog row
	MatchMethodExact           MatchMethod = "exact"
	MatchMethodFuzzy           MatchMethod = "fuzzy"
	MatchMethodFuzzySubstring  MatchMethod = "fuzzy_substring"
	MatchMethodRule            MatchMethod = "rule"
	MatchMethodAI              MatchMethod = "ai"
	MatchMethodWebSearch       MatchMethod = "web_search"
)

// Matching stage numbers. Lower stages run first and exclude their resolved
// items from later stages within the same pass.
const (
	StageInterchange = 1
	StageExact       = 2
	StageRule        = 3
	StageFuzzy       = 4
	StageAI          = 5
	StageWebSearch   = 6
)

// MatchCandidateStatus constants
const (
	MatchCandidateStatusPending   = "pending"
	MatchCandidateStatusConfirmed = "confirmed"
	MatchCandidateStatusRejected  = "rejected"
)

// MatchCandidate is the output unit of every matcher: a scored assertion that
// a store item and a supplier item are the same physical part. Multiple
// pending candidates may coexist per store item; at most one may ever be
// confirmed.
type MatchCandidate struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ProjectID      uuid.UUID       `json:"project_id" db:"project_id"`
	StorePartID    uuid.UUID       `json:"store_part_id" db:"store_part_id"`
	SupplierPartID *uuid.UUID      `json:"supplier_part_id,omitempty" db:"supplier_part_id"`
	Method         MatchMethod     `json:"method" db:"method"`
	Confidence     float64         `json:"confidence" db:"confidence"`
	Stage          int             `json:"stage" db:"stage"`
	Evidence       json.RawMessage `json:"evidence" db:"evidence"`
	Status         string          `json:"status" db:"status"`
	DecidedBy      *string         `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty" db:"decided_at"`
	DecisionNote   *string         `json:"decision_note,omitempty" db:"decision_note"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Evidence is the free-form signal bag attached to a candidate. Which fields
// are populated depends on the matcher that produced it.
type Evidence struct {
	PartSimilarity   float64  `json:"part_similarity,omitempty"`
	MfrSimilarity    float64  `json:"mfr_similarity,omitempty"`
	DescSimilarity   float64  `json:"desc_similarity,omitempty"`
	LineCodeMatched  bool     `json:"line_code_matched,omitempty"`
	Substring        bool     `json:"substring,omitempty"`
	SharedDescWords  int      `json:"shared_desc_words,omitempty"`
	RawEqual         bool     `json:"raw_equal,omitempty"`
	TieOccurred      bool     `json:"tie_occurred,omitempty"`
	InterchangeID    string   `json:"interchange_id,omitempty"`
	InterchangeSide  string   `json:"interchange_side,omitempty"`
	RuleID           string   `json:"rule_id,omitempty"`
	Signature        string   `json:"signature,omitempty"`
	PoolStrategies   []string `json:"pool_strategies,omitempty"`
	ExternalProvider string   `json:"external_provider,omitempty"`
	Rationale        string   `json:"rationale,omitempty"`
	SourceURL        string   `json:"source_url,omitempty"`
	DiscoveredNumber string   `json:"discovered_number,omitempty"`
}

// Marshal encodes the evidence bag for storage
func (e Evidence) Marshal() json.RawMessage {
	b, err := json.Marshal(e)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
