package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/models"
)

// Message actions on the match-jobs topic
const (
	ActionSubmit = "submit"
	ActionCancel = "cancel"
)

// Message actions on the catalog-ingest topic
const (
	ActionParts       = "parts"
	ActionInterchange = "interchange"
)

// IncomingMessage is a raw Kafka message plus parsed metadata
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// Action returns the action header, defaulting to submit for bare payloads
func (m *IncomingMessage) Action() string {
	if a, ok := m.Headers["action"]; ok && a != "" {
		return a
	}
	return ActionSubmit
}

// JobSubmission is the payload of a submit message on the match-jobs topic
type JobSubmission struct {
	ProjectID uuid.UUID `json:"project_id" validate:"required"`
	UserID    string    `json:"user_id" validate:"required"`
	Kind      string    `json:"kind" validate:"required,oneof=full_pass ai web_search"`
	Priority  int       `json:"priority" validate:"gte=0,lte=100"`
}

// ParseJobSubmission decodes a submit payload
func (m *IncomingMessage) ParseJobSubmission() (*JobSubmission, error) {
	var sub JobSubmission
	if err := json.Unmarshal(m.Value, &sub); err != nil {
		return nil, fmt.Errorf("invalid job submission payload: %w", err)
	}
	return &sub, nil
}

// CancelRequest is the payload of a cancel message on the match-jobs topic
type CancelRequest struct {
	JobID uuid.UUID `json:"job_id" validate:"required"`
	Kind  string    `json:"kind" validate:"required,oneof=graceful immediate"`
}

// ParseCancelRequest decodes a cancel payload
func (m *IncomingMessage) ParseCancelRequest() (*CancelRequest, error) {
	var req CancelRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return nil, fmt.Errorf("invalid cancel payload: %w", err)
	}
	return &req, nil
}

// PartPayload is one already-parsed catalog row on the catalog-ingest topic.
// Canonical numbers are derived server-side; senders only supply raw fields.
type PartPayload struct {
	PartNumber  string   `json:"part_number" validate:"required"`
	LineCode    *string  `json:"line_code,omitempty"`
	MfrCode     *string  `json:"mfr_code,omitempty"`
	Description string   `json:"description"`
	Cost        *float64 `json:"cost,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
}

// PartBatch is the payload of a parts message on the catalog-ingest topic
type PartBatch struct {
	ProjectID uuid.UUID     `json:"project_id" validate:"required"`
	Side      string        `json:"side" validate:"required,oneof=store supplier"`
	Items     []PartPayload `json:"items" validate:"required,min=1,dive"`
}

// ParsePartBatch decodes a parts ingest payload
func (m *IncomingMessage) ParsePartBatch() (*PartBatch, error) {
	var batch PartBatch
	if err := json.Unmarshal(m.Value, &batch); err != nil {
		return nil, fmt.Errorf("invalid part batch payload: %w", err)
	}
	return &batch, nil
}

// InterchangePayload is one cross-reference pair on the catalog-ingest topic
type InterchangePayload struct {
	Ours       string  `json:"ours" validate:"required"`
	Theirs     string  `json:"theirs" validate:"required"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// InterchangeBatch is the payload of an interchange message on the
// catalog-ingest topic.
type InterchangeBatch struct {
	ProjectID uuid.UUID            `json:"project_id" validate:"required"`
	Entries   []InterchangePayload `json:"entries" validate:"required,min=1,dive"`
}

// ParseInterchangeBatch decodes an interchange ingest payload
func (m *IncomingMessage) ParseInterchangeBatch() (*InterchangeBatch, error) {
	var batch InterchangeBatch
	if err := json.Unmarshal(m.Value, &batch); err != nil {
		return nil, fmt.Errorf("invalid interchange batch payload: %w", err)
	}
	return &batch, nil
}

// DecisionBatch is the payload on the review-decisions topic: one bulk review
// session's worth of verdicts.
type DecisionBatch struct {
	Decisions []models.ReviewDecision `json:"decisions" validate:"required,min=1,dive"`
}

// ParseDecisionBatch decodes a decision batch payload
func (m *IncomingMessage) ParseDecisionBatch() (*DecisionBatch, error) {
	var batch DecisionBatch
	if err := json.Unmarshal(m.Value, &batch); err != nil {
		return nil, fmt.Errorf("invalid decision batch payload: %w", err)
	}
	return &batch, nil
}
