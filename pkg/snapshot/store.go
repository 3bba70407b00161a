package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
)

// BlobStore is the content-addressed storage contract spec §5 requires:
// snapshots are written once under their ContentHash and never mutated.
type BlobStore interface {
	Put(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, contentHash string) (Snapshot, error)
	Has(ctx context.Context, contentHash string) (bool, error)
}

// MemoryStore is an in-process BlobStore, used by tests and by
// single-process deployments that don't need durability across restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Snapshot
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Snapshot)}
}

func (s *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[snap.ContentHash]; exists {
		return fmt.Errorf("%w: %s", atlaserrors.ErrAlreadyExists, snap.ContentHash)
	}
	s.data[snap.ContentHash] = snap
	return nil
}

func (s *MemoryStore) Get(_ context.Context, contentHash string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[contentHash]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", atlaserrors.ErrMalformedSnapshot, contentHash)
	}
	return snap, nil
}

func (s *MemoryStore) Has(_ context.Context, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[contentHash]
	return ok, nil
}

// BadgerStore is the production BlobStore backend: an embedded
// LSM-tree key-value store, grounded on the same github.com/dgraph-io/badger/v4
// dependency the pack's epoch-server repo uses for durable local storage.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if necessary) a BadgerStore at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logging is disabled
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", atlaserrors.ErrBlobStoreUnavailable, dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func blobKey(contentHash string) []byte {
	return []byte("snapshot:" + contentHash)
}

func (s *BadgerStore) Put(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", atlaserrors.ErrDeadlineExceeded, err)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(blobKey(snap.ContentHash)); err == nil {
			return atlaserrors.ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(blobKey(snap.ContentHash), payload)
	})
	if errors.Is(err, atlaserrors.ErrAlreadyExists) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", atlaserrors.ErrBlobStoreUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, contentHash string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", atlaserrors.ErrDeadlineExceeded, err)
	}
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(contentHash))
		if err == badger.ErrKeyNotFound {
			return atlaserrors.ErrMalformedSnapshot
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *BadgerStore) Has(ctx context.Context, contentHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", atlaserrors.ErrDeadlineExceeded, err)
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blobKey(contentHash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}
