// Package processor handles the incoming Kafka surfaces: catalog ingestion,
// job submissions and cancellations on match-jobs, and bulk review decisions
// on review-decisions.
package processor

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/gearline/partmatch/internal/repositories/interchange"
	"github.com/gearline/partmatch/internal/repositories/matchcandidate"
	"github.com/gearline/partmatch/internal/repositories/part"
	"github.com/gearline/partmatch/pkg/jobs"
	"github.com/gearline/partmatch/pkg/kafka"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/patterns"
	"github.com/gearline/partmatch/pkg/tracing"
)

// Processor routes parsed messages to the catalog stores, the queue manager,
// the candidate store and the pattern detector.
type Processor struct {
	logger      ectologger.Logger
	validate    *validator.Validate
	manager     *jobs.Manager
	parts       *part.Repository
	interchange *interchange.Repository
	candidates  *matchcandidate.Repository
	detector    *patterns.Detector
}

// NewProcessor creates a new message processor
func NewProcessor(
	logger ectologger.Logger,
	manager *jobs.Manager,
	parts *part.Repository,
	interchangeRepo *interchange.Repository,
	candidates *matchcandidate.Repository,
	detector *patterns.Detector,
) *Processor {
	return &Processor{
		logger:      logger,
		validate:    validator.New(),
		manager:     manager,
		parts:       parts,
		interchange: interchangeRepo,
		candidates:  candidates,
		detector:    detector,
	}
}

// HandleJobMessage processes one message from the match-jobs topic.
// Malformed payloads are logged and dropped; returning an error here would
// wedge the partition on a message that can never succeed.
func (p *Processor) HandleJobMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.HandleJobMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
		"action": msg.Action(),
	})

	switch msg.Action() {
	case kafka.ActionSubmit:
		return p.handleSubmit(ctx, msg, log)
	case kafka.ActionCancel:
		return p.handleCancel(ctx, msg, log)
	default:
		log.Warn("Unknown job message action, skipping")
		return nil
	}
}

func (p *Processor) handleSubmit(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	sub, err := msg.ParseJobSubmission()
	if err != nil {
		log.WithError(err).Error("Failed to parse job submission, skipping")
		return nil
	}
	if err := p.validate.Struct(sub); err != nil {
		log.WithError(err).Error("Invalid job submission, skipping")
		return nil
	}

	job := &models.MatchingJob{
		ProjectID: sub.ProjectID,
		UserID:    sub.UserID,
		Kind:      models.JobKind(sub.Kind),
		Priority:  sub.Priority,
	}
	if err := p.manager.Submit(ctx, job); err != nil {
		log.WithError(err).Error("Failed to submit job")
		return err
	}

	log.WithFields(map[string]any{
		"job_id":     job.ID,
		"project_id": job.ProjectID,
		"kind":       job.Kind,
	}).Info("Job submission accepted")
	return nil
}

func (p *Processor) handleCancel(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	req, err := msg.ParseCancelRequest()
	if err != nil {
		log.WithError(err).Error("Failed to parse cancel request, skipping")
		return nil
	}
	if err := p.validate.Struct(req); err != nil {
		log.WithError(err).Error("Invalid cancel request, skipping")
		return nil
	}

	if err := p.manager.RequestCancel(ctx, req.JobID, models.CancelKind(req.Kind)); err != nil {
		log.WithError(err).WithFields(map[string]any{"job_id": req.JobID}).Error("Failed to request cancellation")
		return err
	}
	return nil
}

// HandleDecisionMessage processes one decision batch from the review-decisions
// topic: applies each verdict to its candidate, then feeds the whole batch to
// the pattern detector.
func (p *Processor) HandleDecisionMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.HandleDecisionMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	batch, err := msg.ParseDecisionBatch()
	if err != nil {
		log.WithError(err).Error("Failed to parse decision batch, skipping")
		return nil
	}
	if err := p.validate.Struct(batch); err != nil {
		log.WithError(err).Error("Invalid decision batch, skipping")
		return nil
	}

	applied := 0
	for i := range batch.Decisions {
		dec := &batch.Decisions[i]
		status := models.MatchCandidateStatusConfirmed
		if dec.Decision == models.DecisionReject {
			status = models.MatchCandidateStatusRejected
		}

		err := p.candidates.Decide(ctx, dec.ProjectID, dec.MatchCandidateID, status, dec.UserID, dec.Note)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, matchcandidate.ErrAlreadyDecided):
			// redelivery of an applied batch, nothing to do
		case errors.Is(err, matchcandidate.ErrAlreadyConfirmed):
			log.WithFields(map[string]any{
				"candidate_id": dec.MatchCandidateID,
			}).Warn("Store part already confirmed elsewhere, decision dropped")
		default:
			log.WithError(err).WithFields(map[string]any{
				"candidate_id": dec.MatchCandidateID,
			}).Error("Failed to apply decision")
			return err
		}
	}

	result, err := p.detector.LearnFromDecisions(ctx, batch.Decisions)
	if err != nil {
		log.WithError(err).Error("Pattern learning failed for decision batch")
		return err
	}

	log.WithFields(map[string]any{
		"decisions":     len(batch.Decisions),
		"applied":       applied,
		"rules_created": result.Created,
		"rules_skipped": result.Skipped,
	}).Info("Decision batch processed")
	return nil
}
