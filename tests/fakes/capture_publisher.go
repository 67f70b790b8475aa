package fakes

import (
	"context"
	"sync"

	"github.com/keyfold/keyfold/internal/domain/models"
)

// CapturePublisher records every published revocation entry for assertions.
type CapturePublisher struct {
	mu        sync.Mutex
	Published []models.RevokedCertificate

	// Err, when set, is returned by Publish.
	Err error
}

// NewCapturePublisher creates an empty capture publisher.
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

// Publish records entry.
func (p *CapturePublisher) Publish(ctx context.Context, entry models.RevokedCertificate) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, entry)
	return nil
}

// Close is a no-op.
func (p *CapturePublisher) Close() error { return nil }

// Entries returns a copy of what was published.
func (p *CapturePublisher) Entries() []models.RevokedCertificate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RevokedCertificate, len(p.Published))
	copy(out, p.Published)
	return out
}
