// Package consumers contains the background consumer applying the
// cross-installation revocation feed to the local store.
package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/domain/repository"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

const defaultFetchBackoff = time.Second

// feedReader is the slice of kafka.Reader the consume loop needs.
type feedReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RevocationConsumer reads revocation entries published by other installations
// and appends them to the local revocation store. Appends are idempotent, so
// redelivery and topic replays are harmless.
type RevocationConsumer struct {
	reader feedReader
	store  repository.RevocationStore
	log    logger.Logger
	stop   chan struct{}

	// fetchBackoff is how long the loop waits after a fetch error before
	// retrying, so an unreachable broker does not spin the loop.
	fetchBackoff time.Duration
}

// NewRevocationConsumer creates a consumer for the configured feed.
func NewRevocationConsumer(cfg config.FeedConfig, store repository.RevocationStore, log logger.Logger) (*RevocationConsumer, error) {
	if store == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "revocation store is required")
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "feed brokers and topic are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &RevocationConsumer{
		reader:       reader,
		store:        store,
		log:          log.WithComponent("RevocationConsumer"),
		stop:         make(chan struct{}),
		fetchBackoff: defaultFetchBackoff,
	}, nil
}

// Start runs the consume loop until Stop is called or ctx is cancelled. It
// blocks and should be run in its own goroutine.
func (c *RevocationConsumer) Start(ctx context.Context) {
	c.log.Info(ctx, "starting revocation feed consumer")
	for {
		select {
		case <-c.stop:
			c.log.Info(ctx, "stopping revocation feed consumer")
			return
		case <-ctx.Done():
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Error(ctx, "failed to fetch message from feed", err)
				if !c.waitBeforeRetry(ctx) {
					return
				}
				continue
			}
			if err := c.apply(ctx, msg.Value); err != nil {
				if errors.HasCode(err, errors.CodeMalformedEvent) {
					// Poison message: commit so the group does not loop on it.
					c.log.Error(ctx, "dropping malformed revocation event", err)
					_ = c.reader.CommitMessages(ctx, msg)
					continue
				}
				// Store failure: leave uncommitted for redelivery.
				c.log.Error(ctx, "failed to apply revocation event", err)
				continue
			}
			_ = c.reader.CommitMessages(ctx, msg)
		}
	}
}

// waitBeforeRetry sleeps for the fetch backoff, returning false if the
// consumer was stopped or the context cancelled while waiting.
func (c *RevocationConsumer) waitBeforeRetry(ctx context.Context) bool {
	backoff := c.fetchBackoff
	if backoff <= 0 {
		backoff = defaultFetchBackoff
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stop shuts the consumer down.
func (c *RevocationConsumer) Stop() {
	close(c.stop)
	if err := c.reader.Close(); err != nil {
		c.log.Error(context.Background(), "failed to close feed reader", err)
	}
}

// apply decodes one feed message and appends it to the local store.
func (c *RevocationConsumer) apply(ctx context.Context, value []byte) error {
	var entry models.RevokedCertificate
	if err := json.Unmarshal(value, &entry); err != nil {
		return errors.Wrap(err, errors.CodeMalformedEvent, "revocation event does not decode")
	}
	if entry.SerialNumber == "" {
		return errors.New(errors.CodeMalformedEvent, "revocation event missing serial")
	}
	if err := c.store.Revoke(ctx, entry.SerialNumber, entry.RevokedBy); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to store feed revocation")
	}
	c.log.Debug(ctx, "applied feed revocation", logger.String("serial", entry.SerialNumber))
	return nil
}
