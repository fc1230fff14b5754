package matching

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

// CatalogReader loads the project-scoped inputs a matching pass needs
type CatalogReader interface {
	// ListUnmatchedStoreItems returns store items with no confirmed candidate
	ListUnmatchedStoreItems(ctx context.Context, projectID uuid.UUID) ([]models.PartRecord, error)
	ListSupplierCatalog(ctx context.Context, projectID uuid.UUID) ([]models.PartRecord, error)
	ListInterchangeEntries(ctx context.Context, projectID uuid.UUID) ([]models.InterchangeEntry, error)
}

// CandidateSink persists matcher output. CreateBatch must be idempotent on
// (project, store part, supplier part, method) so re-running a pass never
// duplicates candidates; it returns how many rows were actually inserted.
type CandidateSink interface {
	CreateBatch(ctx context.Context, candidates []models.MatchCandidate) (int, error)
}

// RuleSource supplies the active rules visible to a project: its own plus the
// global set.
type RuleSource interface {
	ListActiveForProject(ctx context.Context, projectID uuid.UUID) ([]models.MatchingRule, error)
}

// ServiceConfig controls pass execution
type ServiceConfig struct {
	BatchSize int // store items per committed batch (default: 500)
}

// DefaultServiceConfig returns sensible defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{BatchSize: 500}
}

// PassHooks lets the owning job observe and steer a running pass. Both fields
// are optional.
type PassHooks struct {
	// BatchCommitted runs after each batch's candidates are persisted. A
	// non-nil error stops the pass at that batch boundary; work already
	// committed stays committed.
	BatchCommitted func(ctx context.Context, processed, total int) error
	// ItemCheckpoint is consulted between external calls. Returning true
	// aborts mid-batch.
	ItemCheckpoint func() bool
}

// PassResult summarizes a completed (or stopped) pass
type PassResult struct {
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Created   int            `json:"created"`
	ByMethod  map[string]int `json:"by_method"`
	Fuzzy     FuzzyMetrics   `json:"fuzzy"`
	Stopped   bool           `json:"stopped,omitempty"`
}

// Service runs the matching waterfall over a project's unmatched store items:
// interchange, exact, learned rules, fuzzy. Each batch is matched in memory
// and committed before the next begins, so a cancelled pass keeps everything
// committed so far.
type Service struct {
	logger      ectologger.Logger
	reader      CatalogReader
	sink        CandidateSink
	ruleSource  RuleSource
	interchange *InterchangeResolver
	exact       *ExactMatcher
	ruleMatcher *RuleMatcher
	fuzzy       *FuzzyMatcher
	cfg         ServiceConfig
}

// NewService creates a matching service
func NewService(logger ectologger.Logger, reader CatalogReader, sink CandidateSink, ruleSource RuleSource, interchange *InterchangeResolver, exact *ExactMatcher, ruleMatcher *RuleMatcher, fuzzy *FuzzyMatcher, cfg ServiceConfig) *Service {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultServiceConfig().BatchSize
	}
	return &Service{
		logger:      logger,
		reader:      reader,
		sink:        sink,
		ruleSource:  ruleSource,
		interchange: interchange,
		exact:       exact,
		ruleMatcher: ruleMatcher,
		fuzzy:       fuzzy,
		cfg:         cfg,
	}
}

// RunPass executes the full waterfall for one project. Load failures abort
// before any batch runs; per-record problems (missing canonical numbers and
// the like) are skipped by the individual matchers.
func (s *Service) RunPass(ctx context.Context, projectID uuid.UUID, hooks PassHooks) (PassResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.RunPass")
	defer span.End()

	result := PassResult{ByMethod: make(map[string]int)}
	log := s.logger.WithContext(ctx).WithFields(map[string]any{"project_id": projectID})

	storeItems, err := s.reader.ListUnmatchedStoreItems(ctx, projectID)
	if err != nil {
		return result, fmt.Errorf("failed to list unmatched store items: %w", err)
	}
	supplierItems, err := s.reader.ListSupplierCatalog(ctx, projectID)
	if err != nil {
		return result, fmt.Errorf("failed to list supplier catalog: %w", err)
	}
	entries, err := s.reader.ListInterchangeEntries(ctx, projectID)
	if err != nil {
		return result, fmt.Errorf("failed to list interchange entries: %w", err)
	}
	rules, err := s.ruleSource.ListActiveForProject(ctx, projectID)
	if err != nil {
		return result, fmt.Errorf("failed to list matching rules: %w", err)
	}

	result.Total = len(storeItems)
	log.WithFields(map[string]any{
		"store_items":    len(storeItems),
		"supplier_items": len(supplierItems),
		"interchange":    len(entries),
		"rules":          len(rules),
	}).Info("Starting matching pass")

	for start := 0; start < len(storeItems); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			result.Stopped = true
			return result, err
		}

		end := min(start+s.cfg.BatchSize, len(storeItems))
		batch := storeItems[start:end]

		candidates, fm := s.matchBatch(batch, supplierItems, entries, rules)
		result.Fuzzy = mergeFuzzyMetrics(result.Fuzzy, fm)

		created, err := s.sink.CreateBatch(ctx, candidates)
		if err != nil {
			return result, fmt.Errorf("failed to persist candidate batch: %w", err)
		}
		result.Created += created
		for i := range candidates {
			result.ByMethod[string(candidates[i].Method)]++
		}
		result.Processed = end

		if hooks.BatchCommitted != nil {
			if err := hooks.BatchCommitted(ctx, result.Processed, result.Total); err != nil {
				result.Stopped = true
				return result, err
			}
		}
	}

	log.WithFields(map[string]any{
		"processed": result.Processed,
		"created":   result.Created,
	}).Info("Matching pass finished")
	return result, nil
}

// matchBatch runs the in-memory waterfall over one batch. An item resolved to
// a concrete supplier part at one stage is excluded from every later stage;
// interchange_only hits carry no supplier reference and do not exclude.
func (s *Service) matchBatch(batch []models.PartRecord, supplierItems []models.PartRecord, entries []models.InterchangeEntry, rules []models.MatchingRule) ([]models.MatchCandidate, FuzzyMetrics) {
	matched := make(map[uuid.UUID]struct{})

	claim := func(candidates []models.MatchCandidate) {
		for i := range candidates {
			if candidates[i].SupplierPartID != nil {
				matched[candidates[i].StorePartID] = struct{}{}
			}
		}
	}

	all := s.interchange.Resolve(batch, supplierItems, entries)
	claim(all)

	exactCands := s.exact.Match(unresolved(batch, matched), supplierItems)
	claim(exactCands)
	all = append(all, exactCands...)

	ruleCands := s.ruleMatcher.Match(unresolved(batch, matched), supplierItems, rules)
	claim(ruleCands)
	all = append(all, ruleCands...)

	fuzzyCands, fm := s.fuzzy.Match(batch, supplierItems, matched)
	all = append(all, fuzzyCands...)

	return all, fm
}

// RunExternalStage runs an AI or web-search stage over the project's still
// unmatched items. Items the stage resolves are persisted batch-wide at the
// end; per-item failures were already skipped inside the stage.
func (s *Service) RunExternalStage(ctx context.Context, projectID uuid.UUID, stage *ExternalStage, hooks PassHooks) (PassResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.RunExternalStage")
	defer span.End()

	result := PassResult{ByMethod: make(map[string]int)}

	storeItems, err := s.reader.ListUnmatchedStoreItems(ctx, projectID)
	if err != nil {
		return result, fmt.Errorf("failed to list unmatched store items: %w", err)
	}
	supplierItems, err := s.reader.ListSupplierCatalog(ctx, projectID)
	if err != nil {
		return result, fmt.Errorf("failed to list supplier catalog: %w", err)
	}
	result.Total = len(storeItems)

	for start := 0; start < len(storeItems); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			result.Stopped = true
			return result, err
		}

		end := min(start+s.cfg.BatchSize, len(storeItems))
		batch := storeItems[start:end]

		candidates := stage.Run(ctx, batch, supplierItems, nil, hooks.ItemCheckpoint)

		created, err := s.sink.CreateBatch(ctx, candidates)
		if err != nil {
			return result, fmt.Errorf("failed to persist candidate batch: %w", err)
		}
		result.Created += created
		for i := range candidates {
			result.ByMethod[string(candidates[i].Method)]++
		}
		result.Processed = end

		if hooks.ItemCheckpoint != nil && hooks.ItemCheckpoint() {
			result.Stopped = true
			return result, nil
		}
		if hooks.BatchCommitted != nil {
			if err := hooks.BatchCommitted(ctx, result.Processed, result.Total); err != nil {
				result.Stopped = true
				return result, err
			}
		}
	}
	return result, nil
}

// unresolved filters a batch down to the items not yet claimed by an earlier
// stage.
func unresolved(batch []models.PartRecord, matched map[uuid.UUID]struct{}) []models.PartRecord {
	if len(matched) == 0 {
		return batch
	}
	out := make([]models.PartRecord, 0, len(batch))
	for i := range batch {
		if _, ok := matched[batch[i].ID]; !ok {
			out = append(out, batch[i])
		}
	}
	return out
}

func mergeFuzzyMetrics(a, b FuzzyMetrics) FuzzyMetrics {
	return FuzzyMetrics{
		ItemsScanned:     a.ItemsScanned + b.ItemsScanned,
		ItemsSkipped:     a.ItemsSkipped + b.ItemsSkipped,
		CandidatesScored: a.CandidatesScored + b.CandidatesScored,
		Matched:          a.Matched + b.Matched,
		Elapsed:          a.Elapsed + b.Elapsed,
	}
}
