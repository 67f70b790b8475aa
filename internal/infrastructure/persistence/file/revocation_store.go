// Package file implements file-backed persistence: the shared JSON revocation
// list and per-subject sealed keystore records. The revocation file may be
// appended to by several processes of one installation; writes are atomic
// (temp file + rename) and reads merge before write so no entry is ever lost.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// revocationFile is the on-disk layout of the shared revocation list.
type revocationFile struct {
	Revoked []models.RevokedCertificate `json:"revoked"`
}

// RevocationStore is a JSON-file-backed repository.RevocationStore. When
// watching is enabled it picks up appends made by other processes through
// fsnotify; otherwise it re-reads the file on every membership check.
type RevocationStore struct {
	path  string
	log   logger.Logger
	watch bool

	mu      sync.RWMutex
	entries map[string]models.RevokedCertificate

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRevocationStore opens (creating if absent) the revocation list at path.
func NewRevocationStore(path string, watch bool, log logger.Logger) (*RevocationStore, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "revocation list path is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &RevocationStore{
		path:    path,
		log:     log.WithComponent("FileRevocationStore"),
		watch:   watch,
		entries: make(map[string]models.RevokedCertificate),
		done:    make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	if watch {
		if err := s.startWatcher(); err != nil {
			// Degrade to re-reading per check rather than failing open.
			s.log.Warn(context.Background(), "revocation file watch unavailable, falling back to per-check reads",
				logger.Err(err),
			)
			s.watch = false
		}
	}
	return s, nil
}

// Revoke adds serial to the list. The whole load-merge-write cycle runs under
// an exclusive advisory lock on a sidecar lock file, so a revocation completed
// by another process between our read and our write is merged, never
// overwritten (union semantics). Already-present serials are a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, serial, revokedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(func() error {
		if err := s.loadLocked(); err != nil {
			return err
		}
		if _, ok := s.entries[serial]; ok {
			return nil
		}
		s.entries[serial] = models.RevokedCertificate{
			SerialNumber: serial,
			RevokedBy:    revokedBy,
			RevokedAt:    time.Now().UTC(),
		}
		return s.persistLocked()
	})
}

// withFileLock runs fn while holding an exclusive flock on the sidecar lock
// file. The in-process mutex serialises handles within this process; the flock
// serialises writers across processes sharing the list. Readers need no lock
// because the list is only ever replaced by atomic rename.
func (s *RevocationStore) withFileLock(fn func() error) error {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to open revocation lock file")
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to lock revocation list")
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return fn()
}

// IsRevoked reports membership of serial in the list. In watch mode the
// answer comes from memory: an append made by another process becomes visible
// only after the asynchronous fsnotify reload, so it can lag by a moment. With
// watching off the file is re-read on every check instead.
func (s *RevocationStore) IsRevoked(ctx context.Context, serial string) (bool, error) {
	if !s.watch {
		s.mu.Lock()
		if err := s.loadLocked(); err != nil {
			s.mu.Unlock()
			return false, err
		}
		_, ok := s.entries[serial]
		s.mu.Unlock()
		return ok, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[serial]
	return ok, nil
}

// List returns all entries ordered by revocation time.
func (s *RevocationStore) List(ctx context.Context) ([]models.RevokedCertificate, error) {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	out := make([]models.RevokedCertificate, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RevokedAt.Before(out[j].RevokedAt) })
	return out, nil
}

// Close stops the file watcher.
func (s *RevocationStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *RevocationStore) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// loadLocked merges the file contents into the in-memory set. Entries already
// known are kept: the list is append-only, so a shorter file never removes
// anything.
func (s *RevocationStore) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.CodeStorage, "failed to read revocation list")
	}
	var rf revocationFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "revocation list is corrupted")
	}
	for _, e := range rf.Revoked {
		if _, ok := s.entries[e.SerialNumber]; !ok {
			s.entries[e.SerialNumber] = e
		}
	}
	return nil
}

func (s *RevocationStore) persistLocked() error {
	rf := revocationFile{Revoked: make([]models.RevokedCertificate, 0, len(s.entries))}
	for _, e := range s.entries {
		rf.Revoked = append(rf.Revoked, e)
	}
	sort.Slice(rf.Revoked, func(i, j int) bool { return rf.Revoked[i].RevokedAt.Before(rf.Revoked[j].RevokedAt) })

	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to encode revocation list")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".revoked-*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to create temp revocation file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to write revocation list")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to sync revocation list")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to close revocation list")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to replace revocation list")
	}
	return nil
}

func (s *RevocationStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: the atomic rename replaces the file inode, and
	// watching the file itself would go stale after the first replacement.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					s.log.Warn(context.Background(), "failed to reload revocation list after change",
						logger.Err(err),
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn(context.Background(), "revocation file watcher error", logger.Err(err))
			}
		}
	}()
	return nil
}
