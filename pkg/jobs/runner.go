package jobs

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/gearline/partmatch/pkg/appcontext"
	"github.com/gearline/partmatch/pkg/matching"
	"github.com/gearline/partmatch/pkg/models"
)

// CandidateNotifier announces persisted candidates, e.g. on the match-events
// topic. May be nil.
type CandidateNotifier interface {
	EmitCandidatesCreated(ctx context.Context, projectID string, jobID string, created int, byMethod map[string]int) error
}

// PassRunner executes matching jobs against the matching service. Full passes
// run the in-memory waterfall; ai and web_search jobs run their configured
// external stage over whatever is still unmatched.
type PassRunner struct {
	logger   ectologger.Logger
	service  *matching.Service
	external map[models.JobKind]*matching.ExternalStage
	notifier CandidateNotifier
}

// NewPassRunner creates a runner. external may omit kinds that are not
// configured; submitting a job for one of those fails the job.
func NewPassRunner(logger ectologger.Logger, service *matching.Service, external map[models.JobKind]*matching.ExternalStage, notifier CandidateNotifier) *PassRunner {
	return &PassRunner{
		logger:   logger,
		service:  service,
		external: external,
		notifier: notifier,
	}
}

// Run executes one job to completion, reporting progress at every batch
// boundary through rt.
func (r *PassRunner) Run(ctx context.Context, job *models.MatchingJob, rt *Runtime) error {
	ctx = appcontext.SetJobID(ctx, job.ID.String())
	ctx = appcontext.SetProjectID(ctx, job.ProjectID.String())
	ctx = appcontext.SetUserID(ctx, job.UserID)

	hooks := matching.PassHooks{
		BatchCommitted: rt.Progress,
		ItemCheckpoint: rt.CancelledNow,
	}

	var (
		result matching.PassResult
		err    error
	)
	switch job.Kind {
	case models.JobKindFullPass:
		result, err = r.service.RunPass(ctx, job.ProjectID, hooks)
	case models.JobKindAI, models.JobKindWebSearch:
		stage, ok := r.external[job.Kind]
		if !ok || stage == nil {
			return fmt.Errorf("no %s stage configured", job.Kind)
		}
		result, err = r.service.RunExternalStage(ctx, job.ProjectID, stage, hooks)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if result.Created > 0 && r.notifier != nil {
		if emitErr := r.notifier.EmitCandidatesCreated(ctx, job.ProjectID.String(), job.ID.String(), result.Created, result.ByMethod); emitErr != nil {
			r.logger.WithContext(ctx).WithError(emitErr).Warn("Failed to announce created candidates")
		}
	}

	if err != nil {
		return err
	}
	if result.Stopped {
		return ErrCancelled
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":    job.ID,
		"processed": result.Processed,
		"created":   result.Created,
	}).Info("Matching job run finished")
	return nil
}
