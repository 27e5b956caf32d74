package nstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const defaultCompactConcurrency = 16

// Store is a collection of JSON documents persisted in a single
// append-only log file.
//
// Set the exported fields and call OpenStore() before use.
type Store struct {
	// Path of the log file. Created if it doesn't exist
	Path string

	// if true, will call file.Sync() after every write
	SyncWrites bool

	// if true, compaction only happens on Compact() and Clear().
	// Otherwise it runs when the write queue drains and there are
	// more stale records than live ones
	NoAutoCompact bool

	// CompactFilter, if set, is called for every document copied during
	// compaction. Documents for which it returns false are dropped
	// (e.g. expired by TTL).
	// It's called from up to CompactConcurrency goroutines at once so it
	// must be safe for concurrent use
	CompactFilter func(key string, doc json.RawMessage) bool

	// OnCompactError is called when automatic compaction fails.
	// If not set, the error is logged
	OnCompactError func(err error)

	// max number of documents copied concurrently during compaction
	CompactConcurrency int

	// mu protects everything below. The runner goroutine is the only one
	// that modifies file, idx, dbLength and staleCount so it reads them
	// without the lock
	mu         sync.RWMutex
	idle       *sync.Cond // signalled when gate goes back to idle
	file       *os.File
	idx        *index
	dbLength   int64
	staleCount int
	gate       gate
	callbacks  notifier
	closed     bool
	stats      counters

	// set when auto compaction failed, cleared on next successful write
	autoCompactFailed bool

	// compaction target, opening it isn't logged
	temporary bool
}

// Open opens the store at path with default options
func Open(path string) (*Store, error) {
	s := &Store{Path: path}
	if err := OpenStore(s); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenStore opens (creating if needed) the log file and rebuilds the index
// by replaying it. The store can be used only after it returns nil
func OpenStore(s *Store) error {
	if s.Path == "" {
		return fmt.Errorf("nstore: Path is not set")
	}
	if s.file != nil {
		return fmt.Errorf("nstore: store '%s' is already open", s.Path)
	}
	path, err := filepath.Abs(s.Path)
	if err != nil {
		return fmt.Errorf("nstore: failed to get absolute path for '%s': %w", s.Path, err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ioErr("mkdir", filepath.Dir(path), err)
	}
	// we write at explicit offsets so can't use os.O_APPEND
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return ioErr("open", path, err)
	}
	s.Path = path
	if err = openStoreWithFile(s, f); err != nil {
		f.Close()
		s.file = nil
		return err
	}
	return nil
}

// openStoreWithFile initializes s over an already opened file
func openStoreWithFile(s *Store, f *os.File) error {
	s.file = f
	s.idx = newIndex()
	s.dbLength = 0
	s.staleCount = 0
	s.gate = gate{}
	s.closed = false
	s.stats = counters{}
	s.autoCompactFailed = false
	s.idle = sync.NewCond(&s.mu)
	return s.load()
}

func (s *Store) compactConcurrency() int {
	if s.CompactConcurrency > 0 {
		return s.CompactConcurrency
	}
	return defaultCompactConcurrency
}

// Len returns number of documents in the store
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return 0
	}
	return s.idx.len()
}

// Has returns true if there's a document with this key
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx != nil && s.idx.has(key)
}

// Keys returns a snapshot of keys of all documents, in no particular order
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil
	}
	return s.idx.keys()
}

// waitIdle waits until there are no queued or running operations.
// Must be called with s.mu locked
func (s *Store) waitIdle() {
	for s.gate.state != StateIdle {
		s.idle.Wait()
	}
}

// Close waits for queued writes and compaction to finish and closes the
// file. Operations after Close fail with ErrClosed.
// Callbacks of async operations may still be running when Close returns.
// Close can be called from such a callback
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed || s.file == nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.waitIdle()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	return ioErr("close", s.Path, f.Close())
}

// detach waits for queued work to finish and hands over the file without
// closing it. Used by compaction to adopt a temporary store
func (s *Store) detach() (*os.File, *index, int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.waitIdle()
	f := s.file
	s.file = nil
	return f, s.idx, s.dbLength, s.staleCount
}
