// Package filestore is the default kvstore.Store backend: one file per
// record id under a directory, written atomically (write-temp, rename)
// to survive a power loss mid-write the way a wear-levelled flash
// filesystem would. This is the host analogue of the on-device NVS;
// on real hardware the equivalent lives in the flash filesystem driver
// (out of scope per spec §1).
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/internal/kvstore"
)

// saveTimeout is the mutex-acquire timeout from spec §4.B ("Saves are
// mutex-protected with a 500 ms timeout").
const saveTimeout = 500 * time.Millisecond

// Store is a directory-backed kvstore.Store.
type Store struct {
	dir string

	mu       sync.Mutex
	defaults bool
}

// Open creates (if needed) dir and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrapf(err, apperr.Storage, "create kv directory %s", dir)
	}
	s := &Store{dir: dir, defaults: true}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.Storage, "read kv directory %s", dir)
	}
	if len(entries) > 0 {
		s.defaults = false
	}
	return s, nil
}

func (s *Store) path(id kvstore.RecordID) string {
	return filepath.Join(s.dir, fmt.Sprintf("rec_%04d.kv", int(id)))
}

// lockWithTimeout acquires s.mu within saveTimeout or returns a Timeout
// apperr, matching spec §4.B's "ERROR_TIMEOUT on miss". Polls TryLock
// instead of racing a timer against a spawned lock-attempt goroutine:
// a goroutine blocked on s.mu.Lock() past the deadline would keep
// trying in the background and, on eventually acquiring the mutex,
// never release it — deadlocking every future Save/Load.
func (s *Store) lockWithTimeout() error {
	deadline := time.Now().Add(saveTimeout)
	for {
		if s.mu.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return apperr.New(apperr.Timeout, "kv store mutex acquire timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Store) Save(id kvstore.RecordID, data []byte) error {
	if err := s.lockWithTimeout(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrapf(err, apperr.Storage, "write record %d", int(id))
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		return apperr.Wrapf(err, apperr.Storage, "commit record %d", int(id))
	}
	s.defaults = false
	return nil
}

func (s *Store) Load(id kvstore.RecordID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.Storage, "read record %d", int(id))
	}
	return data, nil
}

func (s *Store) IsDefaults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

func (s *Store) Close() error { return nil }

var _ kvstore.Store = (*Store)(nil)
