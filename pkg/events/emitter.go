// Package events handles event emission for matching lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/gearline/partmatch/pkg/kafka"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes match-events. Emission is best-effort: failures are
// logged and surfaced to the caller, but callers treat events as advisory and
// never roll back state over them.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// JobChanged emits the lifecycle event for a job's current status. Satisfies
// the queue manager's Notifier.
func (e *Emitter) JobChanged(ctx context.Context, job *models.MatchingJob) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.JobChanged")
	defer span.End()

	event := kafka.JobEventFromJob(job)
	if err := e.producer.PublishJobEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id":     job.ID,
			"event_type": event.EventType,
		}).Error("Failed to emit job event")
	}
}

// EmitCandidatesCreated announces freshly persisted match candidates
func (e *Emitter) EmitCandidatesCreated(ctx context.Context, projectID string, jobID string, created int, byMethod map[string]int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidatesCreated")
	defer span.End()

	if created == 0 {
		return nil
	}

	event := &kafka.CandidateEvent{
		EventType: "candidates.created",
		ProjectID: projectID,
		JobID:     jobID,
		Created:   created,
		ByMethod:  byMethod,
	}
	if err := e.producer.PublishCandidateEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit candidates.created event")
		return err
	}
	return nil
}

// EmitRuleLearned announces a rule created by the pattern detector
func (e *Emitter) EmitRuleLearned(ctx context.Context, rule *models.MatchingRule) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRuleLearned")
	defer span.End()

	event := &kafka.RuleEvent{
		EventType: "rule.learned",
		RuleID:    rule.ID.String(),
		LineCode:  rule.LineCode,
		Signature: rule.Signature,
		Support:   rule.SupportCount,
	}
	if rule.ProjectID != nil {
		event.ProjectID = rule.ProjectID.String()
	}
	if err := e.producer.PublishRuleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit rule.learned event")
		return err
	}
	return nil
}
