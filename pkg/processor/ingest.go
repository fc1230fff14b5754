package processor

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/gearline/partmatch/pkg/kafka"
	"github.com/gearline/partmatch/pkg/models"
	"github.com/gearline/partmatch/pkg/tracing"
)

// HandleIngestMessage processes one message from the catalog-ingest topic.
// Rows arrive already parsed; normalization happens at write time so every
// stored record carries a canonical number. Inserts are idempotent, so a
// redelivered batch is harmless.
func (p *Processor) HandleIngestMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.HandleIngestMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
		"action": msg.Action(),
	})

	switch msg.Action() {
	case kafka.ActionParts:
		return p.handlePartBatch(ctx, msg, log)
	case kafka.ActionInterchange:
		return p.handleInterchangeBatch(ctx, msg, log)
	default:
		log.Warn("Unknown ingest message action, skipping")
		return nil
	}
}

func (p *Processor) handlePartBatch(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	batch, err := msg.ParsePartBatch()
	if err != nil {
		log.WithError(err).Error("Failed to parse part batch, skipping")
		return nil
	}
	if err := p.validate.Struct(batch); err != nil {
		log.WithError(err).Error("Invalid part batch, skipping")
		return nil
	}

	records := make([]models.PartRecord, 0, len(batch.Items))
	for i := range batch.Items {
		item := &batch.Items[i]
		records = append(records, models.PartRecord{
			ProjectID:   batch.ProjectID,
			Side:        models.CatalogSide(batch.Side),
			PartNumber:  item.PartNumber,
			LineCode:    item.LineCode,
			MfrCode:     item.MfrCode,
			Description: item.Description,
			Cost:        item.Cost,
			Quantity:    item.Quantity,
		})
	}

	if err := p.parts.CreateBatch(ctx, records); err != nil {
		log.WithError(err).Error("Failed to ingest part batch")
		return err
	}

	log.WithFields(map[string]any{
		"project_id": batch.ProjectID,
		"side":       batch.Side,
		"items":      len(records),
	}).Info("Part batch ingested")
	return nil
}

func (p *Processor) handleInterchangeBatch(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	batch, err := msg.ParseInterchangeBatch()
	if err != nil {
		log.WithError(err).Error("Failed to parse interchange batch, skipping")
		return nil
	}
	if err := p.validate.Struct(batch); err != nil {
		log.WithError(err).Error("Invalid interchange batch, skipping")
		return nil
	}

	entries := make([]models.InterchangeEntry, 0, len(batch.Entries))
	for i := range batch.Entries {
		e := &batch.Entries[i]
		entries = append(entries, models.InterchangeEntry{
			ProjectID:  batch.ProjectID,
			Ours:       e.Ours,
			Theirs:     e.Theirs,
			Confidence: e.Confidence,
			Source:     e.Source,
		})
	}

	if err := p.interchange.CreateBatch(ctx, entries); err != nil {
		log.WithError(err).Error("Failed to ingest interchange batch")
		return err
	}

	log.WithFields(map[string]any{
		"project_id": batch.ProjectID,
		"entries":    len(entries),
	}).Info("Interchange batch ingested")
	return nil
}
