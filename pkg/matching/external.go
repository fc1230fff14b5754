package matching

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/rate"
)

// ExternalMatcher is an opaque collaborator (AI, web search) that proposes a
// candidate for one store item. Latency and failure are the calling job's
// suspension/error surface, not the matchers'.
type ExternalMatcher interface {
	// Name identifies the provider in evidence and logs
	Name() string
	// Match returns nil without error when the provider found nothing
	Match(ctx context.Context, storeItem models.PartRecord, pool []models.PartRecord) (*models.MatchCandidate, error)
}

// ExternalStage runs an external matcher over a batch, one rate-limited call
// per item. Per-item failures are logged and skipped; they never abort the
// batch or roll back earlier items.
type ExternalStage struct {
	logger   ectologger.Logger
	matcher  ExternalMatcher
	executor *rate.Executor
	method   models.MatchMethod
	stage    int
}

// NewExternalStage creates a stage wrapper for an external matcher
func NewExternalStage(logger ectologger.Logger, matcher ExternalMatcher, executor *rate.Executor, method models.MatchMethod, stage int) *ExternalStage {
	return &ExternalStage{
		logger:   logger,
		matcher:  matcher,
		executor: executor,
		method:   method,
		stage:    stage,
	}
}

// Run processes every store item not in alreadyMatched. The checkpoint is
// consulted between items; returning true aborts at that point, keeping
// whatever was already produced.
func (s *ExternalStage) Run(ctx context.Context, storeItems []models.PartRecord, pool []models.PartRecord, alreadyMatched map[uuid.UUID]struct{}, checkpoint func() bool) []models.MatchCandidate {
	var out []models.MatchCandidate

	for i := range storeItems {
		if checkpoint != nil && checkpoint() {
			s.logger.WithContext(ctx).WithFields(map[string]any{"provider": s.matcher.Name()}).Info("External stage aborted at item checkpoint")
			break
		}

		store := storeItems[i]
		if _, done := alreadyMatched[store.ID]; done {
			continue
		}

		var candidate *models.MatchCandidate
		err := s.executor.Do(ctx, func(ctx context.Context) error {
			var callErr error
			candidate, callErr = s.matcher.Match(ctx, store, pool)
			return callErr
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// item stays unmatched for this pass, processing continues
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"provider":      s.matcher.Name(),
				"store_part_id": store.ID,
			}).Warn("External matcher call failed; skipping item")
			continue
		}
		if candidate == nil {
			continue
		}

		candidate.ProjectID = store.ProjectID
		candidate.StorePartID = store.ID
		candidate.Method = s.method
		candidate.Stage = s.stage
		if candidate.Confidence > 1.0 {
			candidate.Confidence = 1.0
		}
		out = append(out, *candidate)
	}
	return out
}
