package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

// Producer handles event emission on the match-events topic
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// JobEvent announces a job lifecycle transition
type JobEvent struct {
	EventType string    `json:"event_type"` // job.queued, job.started, job.completed, job.failed, job.cancelled
	JobID     string    `json:"job_id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CandidateEvent announces new match candidates for a project
type CandidateEvent struct {
	EventType string         `json:"event_type"` // candidates.created
	ProjectID string         `json:"project_id"`
	JobID     string         `json:"job_id,omitempty"`
	Created   int            `json:"created"`
	ByMethod  map[string]int `json:"by_method,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RuleEvent announces a rule learned by the pattern detector
type RuleEvent struct {
	EventType string    `json:"event_type"` // rule.learned
	RuleID    string    `json:"rule_id"`
	ProjectID string    `json:"project_id,omitempty"`
	LineCode  string    `json:"line_code"`
	Signature string    `json:"signature"`
	Support   int       `json:"support"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishJobEvent publishes a job lifecycle event
func (p *Producer) PublishJobEvent(ctx context.Context, event *JobEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishJobEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.JobID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "project_id", Value: []byte(event.ProjectID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish job event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"job_id":     event.JobID,
	}).Debug("Published job event")

	return nil
}

// PublishCandidateEvent publishes a candidates.created event
func (p *Producer) PublishCandidateEvent(ctx context.Context, event *CandidateEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCandidateEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ProjectID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "project_id", Value: []byte(event.ProjectID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish candidate event")
		return err
	}

	return nil
}

// PublishRuleEvent publishes a rule.learned event
func (p *Producer) PublishRuleEvent(ctx context.Context, event *RuleEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRuleEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RuleID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "line_code", Value: []byte(event.LineCode)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish rule event")
		return err
	}

	return nil
}

// JobEventFromJob builds the event for a job's current state
func JobEventFromJob(job *models.MatchingJob) *JobEvent {
	event := &JobEvent{
		EventType: "job." + string(job.Status),
		JobID:     job.ID.String(),
		ProjectID: job.ProjectID.String(),
		UserID:    job.UserID,
		Kind:      string(job.Kind),
		Processed: job.ProcessedItems,
		Total:     job.TotalItems,
	}
	if job.Error != nil {
		event.Error = *job.Error
	}
	return event
}
