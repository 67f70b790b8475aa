// Package repository defines the persistence interfaces of the trust core.
// Implementations live under internal/infrastructure/persistence.
package repository

import (
	"context"

	"github.com/keyfold/keyfold/internal/domain/models"
)

// RevocationStore is the durable, installation-wide set of revoked certificate
// serial numbers.
//
// Contract:
//   - Revoke is idempotent and must be durable before it returns: the entry is
//     the sole revocation source of truth.
//   - The set is append-only; entries are never removed.
//   - Concurrent Revoke calls from different sessions must all be observed
//     (union semantics).
//   - IsRevoked must see a consistent snapshot at the instant it is evaluated.
type RevocationStore interface {
	// Revoke adds serial to the set, recording revokedBy for audit.
	Revoke(ctx context.Context, serial, revokedBy string) error

	// IsRevoked reports membership of serial.
	IsRevoked(ctx context.Context, serial string) (bool, error)

	// List returns every revocation entry, for operator inspection.
	List(ctx context.Context) ([]models.RevokedCertificate, error)

	// Close releases any resources held by the store.
	Close() error
}
