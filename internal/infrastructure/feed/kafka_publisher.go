// Package feed implements the optional cross-installation revocation feed.
// Revocation lists are installation-local; installations that opt in publish
// every durable revocation to a kafka topic, and every participating
// installation consumes the topic into its own local store.
package feed

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/domain/service"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// KafkaPublisher publishes revocation entries to the feed topic. Publication
// is strictly after the local durable write; failures are reported but never
// undo a revocation.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    logger.Logger
}

// NewKafkaPublisher creates a publisher for the configured feed.
func NewKafkaPublisher(cfg config.FeedConfig, log logger.Logger) (service.RevocationPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "feed brokers and topic are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &KafkaPublisher{
		writer: writer,
		log:    log.WithComponent("RevocationPublisher"),
	}, nil
}

// Publish sends one revocation entry to the feed, keyed by serial so replays
// of the topic stay idempotent per certificate.
func (p *KafkaPublisher) Publish(ctx context.Context, entry models.RevokedCertificate) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode revocation entry")
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.SerialNumber),
		Value: value,
	})
	if err != nil {
		p.log.Error(ctx, "failed to write revocation to feed", err,
			logger.String("serial", entry.SerialNumber),
		)
		return errors.Wrap(err, errors.CodeStorage, "failed to publish revocation")
	}
	return nil
}

// Close closes the underlying kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
