package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gearline/partmatch/config"
	"github.com/gearline/partmatch/internal/providers"
	"github.com/gearline/partmatch/internal/repositories/interchange"
	"github.com/gearline/partmatch/internal/repositories/matchcandidate"
	"github.com/gearline/partmatch/internal/repositories/matchingrule"
	"github.com/gearline/partmatch/internal/repositories/matchjob"
	"github.com/gearline/partmatch/internal/repositories/part"
	"github.com/gearline/partmatch/pkg/database"
	"github.com/gearline/partmatch/pkg/events"
	"github.com/gearline/partmatch/pkg/httpclient"
	"github.com/gearline/partmatch/pkg/jobs"
	"github.com/gearline/partmatch/pkg/kafka"
	"github.com/gearline/partmatch/pkg/matching"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/patterns"
	"github.com/gearline/partmatch/pkg/processor"
	"github.com/gearline/partmatch/pkg/rate"
	"github.com/gearline/partmatch/pkg/startup"
	"github.com/gearline/partmatch/pkg/tracing"
	"github.com/gearline/partmatch/pkg/tracing/exporters"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	// Database
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	db := database.NewDatabaseInstance(sqlxDB, logger)

	migrationDriver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		os.Exit(1)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, migrationDriver); err != nil {
		logger.WithError(err).Error("Failed to run database migrations")
		os.Exit(1)
	}

	// Repositories
	partRepo := part.NewRepository(db, logger)
	interchangeRepo := interchange.NewRepository(db, logger)
	candidateRepo := matchcandidate.NewRepository(db, logger)
	ruleRepo := matchingrule.NewRepository(db, logger)
	jobRepo := matchjob.NewRepository(db, logger)

	// Matching waterfall
	scorer := matching.NewScorer()
	resolver := matching.NewInterchangeResolver()
	exact := matching.NewExactMatcher(scorer, matching.ExactConfig{
		ValidateDescriptions: cfg.ExactValidateDescriptions,
		SimilarityFloor:      cfg.ExactSimilarityFloor,
	})
	ruleMatcher := matching.NewRuleMatcher()
	fuzzyCfg := matching.DefaultFuzzyConfig()
	fuzzyCfg.Threshold = cfg.FuzzyThreshold
	fuzzyCfg.MaxCandidatesPerItem = cfg.FuzzyMaxCandidates
	fuzzy := matching.NewFuzzyMatcher(scorer, fuzzyCfg)

	reader := &catalogReader{parts: partRepo, interchange: interchangeRepo}
	service := matching.NewService(logger, reader, candidateRepo, ruleRepo, resolver, exact, ruleMatcher, fuzzy,
		matching.ServiceConfig{BatchSize: cfg.MatchBatchSize})

	// Events
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaEventsTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(producer, logger)

	// External stages
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.ExternalHTTPTimeout
	httpClient := httpclient.NewClient(httpCfg, logger)
	execCfg := rate.DefaultExecutorConfig()
	execCfg.MaxAttempts = cfg.ExternalMaxAttempts

	external := make(map[models.JobKind]*matching.ExternalStage)
	if cfg.AIServiceURL != "" {
		matcher := providers.NewAIMatcher(logger, httpClient, partRepo, cfg.AIServiceURL, cfg.AIServiceAPIKey)
		executor := rate.NewExecutor(rate.NewLimiter(cfg.AIRequestsPerMinute, nil), httpclient.IsRetryable, execCfg)
		external[models.JobKindAI] = matching.NewExternalStage(logger, matcher, executor, models.MatchMethodAI, models.StageAI)
	}
	if cfg.WebSearchURL != "" {
		matcher := providers.NewWebSearchMatcher(logger, httpClient, cfg.WebSearchURL, cfg.WebSearchAPIKey)
		executor := rate.NewExecutor(rate.NewLimiter(cfg.WebSearchRequestsPerMinute, nil), httpclient.IsRetryable, execCfg)
		external[models.JobKindWebSearch] = matching.NewExternalStage(logger, matcher, executor, models.MatchMethodWebSearch, models.StageWebSearch)
	}

	// Job queue
	runner := jobs.NewPassRunner(logger, service, external, emitter)
	manager := jobs.NewManager(logger, jobRepo, runner, emitter, jobs.ManagerConfig{
		MaxConcurrent: cfg.JobsMaxConcurrent,
		MaxPerUser:    cfg.JobsMaxPerUser,
		MaxExternal:   cfg.JobsMaxExternal,
	})

	// Pattern detection over bulk decisions
	ruleStore := processor.NewEmittingRuleStore(ruleRepo, emitter)
	detector := patterns.NewDetector(logger, ruleStore, patterns.DetectorConfig{
		MinSupport:     cfg.RuleMinSupport,
		RuleConfidence: cfg.RuleConfidence,
	})

	proc := processor.NewProcessor(logger, manager, partRepo, interchangeRepo, candidateRepo, detector)

	app := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	app.AddDependency(&runtimeDependency{
		name: "job-manager",
		start: func(ctx context.Context) error {
			requeued, err := jobRepo.RequeueInterrupted(ctx)
			if err != nil {
				return err
			}
			if requeued > 0 {
				logger.WithContext(ctx).Infof("Requeued %d interrupted jobs", requeued)
			}
			manager.Start(ctx)
			return nil
		},
		stop: func(context.Context) error {
			manager.Stop()
			return nil
		},
	})
	if cfg.KafkaConsumerEnabled {
		jobsConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaJobsTopic,
			ConsumerGroup: cfg.KafkaJobsConsumerGroup,
		}, logger, proc.HandleJobMessage)
		decisionsConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaDecisionsTopic,
			ConsumerGroup: cfg.KafkaDecisionConsumerGroup,
		}, logger, proc.HandleDecisionMessage)
		ingestConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaIngestTopic,
			ConsumerGroup: cfg.KafkaIngestConsumerGroup,
		}, logger, proc.HandleIngestMessage)

		app.AddDependency(&runtimeDependency{
			name:  "ingest-consumer",
			start: ingestConsumer.Start,
			stop:  func(context.Context) error { return ingestConsumer.Stop() },
		})
		app.AddDependency(&runtimeDependency{
			name:      "jobs-consumer",
			dependsOn: []string{"job-manager"},
			start:     jobsConsumer.Start,
			stop:      func(context.Context) error { return jobsConsumer.Stop() },
		})
		app.AddDependency(&runtimeDependency{
			name:      "decisions-consumer",
			dependsOn: []string{"job-manager"},
			start:     decisionsConsumer.Start,
			stop:      func(context.Context) error { return decisionsConsumer.Stop() },
		})
	}

	if err := app.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	logger.WithFields(map[string]any{"app": cfg.AppName}).Info("partmatch started")

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Error("Failed to close Kafka producer")
	}
	if shutdownTracing != nil {
		_ = shutdownTracing(shutdownCtx)
	}
	if err := sqlxDB.Close(); err != nil {
		logger.WithError(err).Error("Failed to close database")
	}
	logger.Info("partmatch stopped")
}

func newLogger(cfg config.Config) ectologger.Logger {
	if cfg.PrettyLogs {
		zapLogger, _ := zap.NewDevelopment()
		return zapadapter.NewZapEctoLogger(zapLogger, nil)
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapLogger, _ := zapCfg.Build()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func setupTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return nil, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.TracingExporter {
	case "console":
		exporter = &exporters.ConsoleExporter{}
	default:
		otlpExporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlpExporter
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AppName),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return tp.Shutdown, nil
}

// catalogReader adapts the part and interchange repositories onto the
// matching service's read surface.
type catalogReader struct {
	parts       *part.Repository
	interchange *interchange.Repository
}

func (r *catalogReader) ListUnmatchedStoreItems(ctx context.Context, projectID uuid.UUID) ([]models.PartRecord, error) {
	return r.parts.ListUnmatchedStoreItems(ctx, projectID)
}

func (r *catalogReader) ListSupplierCatalog(ctx context.Context, projectID uuid.UUID) ([]models.PartRecord, error) {
	return r.parts.ListSupplierCatalog(ctx, projectID)
}

func (r *catalogReader) ListInterchangeEntries(ctx context.Context, projectID uuid.UUID) ([]models.InterchangeEntry, error) {
	return r.interchange.ListByProject(ctx, projectID)
}

// runtimeDependency adapts plain start/stop funcs to the startup graph
type runtimeDependency struct {
	name      string
	dependsOn []string
	start     func(context.Context) error
	stop      func(context.Context) error
}

func (d *runtimeDependency) GetName() string {
	return d.name
}

func (d *runtimeDependency) DependsOn() []string {
	return d.dependsOn
}

func (d *runtimeDependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *runtimeDependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
