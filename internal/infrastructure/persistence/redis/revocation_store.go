// Package redis implements the revocation list on a redis set, for
// installations whose processes share a redis instance. Durability relies on
// the server's persistence configuration (AOF or RDB).
package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// RevocationStore keeps revoked serials in a redis set, with a companion hash
// carrying the audit metadata per serial. SADD gives idempotent, atomic
// appends; SISMEMBER gives a consistent point-in-time membership check.
type RevocationStore struct {
	client  goredis.UniversalClient
	setKey  string
	metaKey string
	log     logger.Logger
}

// NewRevocationStore connects to redis with the given configuration.
func NewRevocationStore(cfg config.RedisConfig, log logger.Logger) (*RevocationStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRevocationStoreWithClient(client, cfg.SetKey, log)
}

// NewRevocationStoreWithClient wraps an existing client; tests use this with
// miniredis.
func NewRevocationStoreWithClient(client goredis.UniversalClient, setKey string, log logger.Logger) (*RevocationStore, error) {
	if client == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "redis client is required")
	}
	if setKey == "" {
		setKey = "keyfold:revoked"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RevocationStore{
		client:  client,
		setKey:  setKey,
		metaKey: setKey + ":meta",
		log:     log.WithComponent("RedisRevocationStore"),
	}, nil
}

// Revoke adds serial to the set and records audit metadata. HSETNX keeps the
// first revocation's metadata on repeated calls.
func (s *RevocationStore) Revoke(ctx context.Context, serial, revokedBy string) error {
	entry := models.RevokedCertificate{
		SerialNumber: serial,
		RevokedBy:    revokedBy,
		RevokedAt:    nowUTC(),
	}
	meta, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to encode revocation entry")
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.setKey, serial)
	pipe.HSetNX(ctx, s.metaKey, serial, meta)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to persist revocation entry")
	}
	return nil
}

// IsRevoked reports membership of serial.
func (s *RevocationStore) IsRevoked(ctx context.Context, serial string) (bool, error) {
	revoked, err := s.client.SIsMember(ctx, s.setKey, serial).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeStorage, "failed to query revocation entry")
	}
	return revoked, nil
}

// List returns all entries ordered by revocation time.
func (s *RevocationStore) List(ctx context.Context) ([]models.RevokedCertificate, error) {
	serials, err := s.client.SMembers(ctx, s.setKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to list revoked serials")
	}
	meta, err := s.client.HGetAll(ctx, s.metaKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to load revocation metadata")
	}

	entries := make([]models.RevokedCertificate, 0, len(serials))
	for _, serial := range serials {
		if raw, ok := meta[serial]; ok {
			var e models.RevokedCertificate
			if err := json.Unmarshal([]byte(raw), &e); err == nil {
				entries = append(entries, e)
				continue
			}
		}
		// Metadata may be missing for entries written by a feed consumer that
		// only knew the serial.
		entries = append(entries, models.RevokedCertificate{SerialNumber: serial})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RevokedAt.Before(entries[j].RevokedAt) })
	return entries, nil
}

// Close closes the redis client.
func (s *RevocationStore) Close() error {
	return s.client.Close()
}

func nowUTC() time.Time { return time.Now().UTC() }
