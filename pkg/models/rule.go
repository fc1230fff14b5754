package models

import (
	"time"

	"github.com/google/uuid"
)

// RuleScope determines rule precedence: project rules shadow global rules
// with the same (line code, signature) key during evaluation.
type RuleScope string

const (
	RuleScopeGlobal  RuleScope = "global"
	RuleScopeProject RuleScope = "project"
)

// RuleAction is what a matcher should do when a rule's key matches
type RuleAction string

const (
	RuleActionAccept RuleAction = "accept"
	RuleActionReject RuleAction = "reject"
)

// MatchingRule is a generalized, reusable version of a confirmed decision
// pattern. Created by the pattern detector or by manual administration;
// consumed read-only by matchers. Updates are explicit, never silent.
type MatchingRule struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Scope        RuleScope  `json:"scope" db:"scope"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	LineCode     string     `json:"line_code" db:"line_code"`
	Signature    string     `json:"signature" db:"signature"`
	Category     *string    `json:"category,omitempty" db:"category"`
	Action       RuleAction `json:"action" db:"action"`
	Confidence   float64    `json:"confidence" db:"confidence"`
	SupportCount int        `json:"support_count" db:"support_count"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedBy    string     `json:"created_by" db:"created_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Key is the identity a rule is deduplicated on
func (r *MatchingRule) Key() RuleKey {
	k := RuleKey{Scope: r.Scope, LineCode: r.LineCode, Signature: r.Signature}
	if r.ProjectID != nil {
		k.ProjectID = *r.ProjectID
	}
	return k
}

// RuleKey identifies an equivalent rule for idempotent creation
type RuleKey struct {
	Scope     RuleScope
	ProjectID uuid.UUID
	LineCode  string
	Signature string
}
