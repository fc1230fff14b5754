package config

import "time"

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"partmatch"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"partmatch"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Kafka Consumers
	KafkaBrokers               []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaJobsTopic             string   `env:"KAFKA_JOBS_TOPIC" env-default:"match-jobs"`
	KafkaJobsConsumerGroup     string   `env:"KAFKA_JOBS_CONSUMER_GROUP" env-default:"partmatch-jobs"`
	KafkaDecisionsTopic        string   `env:"KAFKA_DECISIONS_TOPIC" env-default:"review-decisions"`
	KafkaDecisionConsumerGroup string   `env:"KAFKA_DECISION_CONSUMER_GROUP" env-default:"partmatch-decisions"`
	KafkaIngestTopic           string   `env:"KAFKA_INGEST_TOPIC" env-default:"catalog-ingest"`
	KafkaIngestConsumerGroup   string   `env:"KAFKA_INGEST_CONSUMER_GROUP" env-default:"partmatch-ingest"`
	KafkaConsumerEnabled       bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka Producer settings
	KafkaEventsTopic  string `env:"KAFKA_EVENTS_TOPIC" env-default:"match-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Matching
	MatchBatchSize            int     `env:"MATCH_BATCH_SIZE" env-default:"500"`
	ExactValidateDescriptions bool    `env:"EXACT_VALIDATE_DESCRIPTIONS" env-default:"true"`
	ExactSimilarityFloor      float64 `env:"EXACT_SIMILARITY_FLOOR" env-default:"0.60"`
	FuzzyThreshold            float64 `env:"FUZZY_THRESHOLD" env-default:"0.65"`
	FuzzyMaxCandidates        int     `env:"FUZZY_MAX_CANDIDATES" env-default:"50"`

	// Pattern detection
	RuleMinSupport int     `env:"RULE_MIN_SUPPORT" env-default:"2"`
	RuleConfidence float64 `env:"RULE_CONFIDENCE" env-default:"0.90"`

	// Job queue ceilings
	JobsMaxConcurrent int `env:"JOBS_MAX_CONCURRENT" env-default:"4"`
	JobsMaxPerUser    int `env:"JOBS_MAX_PER_USER" env-default:"2"`
	JobsMaxExternal   int `env:"JOBS_MAX_EXTERNAL" env-default:"1"`

	// External stage rate limits
	AIRequestsPerMinute        int `env:"AI_REQUESTS_PER_MINUTE" env-default:"30"`
	WebSearchRequestsPerMinute int `env:"WEB_SEARCH_REQUESTS_PER_MINUTE" env-default:"60"`
	ExternalMaxAttempts        int `env:"EXTERNAL_MAX_ATTEMPTS" env-default:"3"`

	// External matching services. An empty URL leaves the stage unconfigured;
	// jobs submitted for it fail with a clear error instead of hanging.
	AIServiceURL        string        `env:"AI_SERVICE_URL" env-default:""`
	AIServiceAPIKey     string        `env:"AI_SERVICE_API_KEY" env-default:""`
	WebSearchURL        string        `env:"WEB_SEARCH_URL" env-default:""`
	WebSearchAPIKey     string        `env:"WEB_SEARCH_API_KEY" env-default:""`
	ExternalHTTPTimeout time.Duration `env:"EXTERNAL_HTTP_TIMEOUT" env-default:"30s"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"otlp"`
	OTLPEndpoint    string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool   `env:"OTLP_INSECURE" env-default:"true"`
}
