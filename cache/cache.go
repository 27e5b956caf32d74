// Package cache keeps recently used documents of an nstore.Store in memory
package cache

import (
	"encoding/json"
	"sync"

	"github.com/kjk/nstore/nstore"
)

// Backend is the part of nstore.Store used by the cache
type Backend interface {
	SaveRaw(key string, payload json.RawMessage) (string, error)
	GetRaw(key string) (json.RawMessage, error)
	Remove(key string) error
}

var _ Backend = &nstore.Store{}

// Store caches up to MaxItems documents. When full, an arbitrary document
// is evicted to make room
type Store struct {
	backend  Backend
	maxItems int

	mu   sync.Mutex
	docs map[string]json.RawMessage
	// keys being read from the backend on a cache miss
	reads  map[string]*pendingRead
	hits   int64
	misses int64
}

type pendingRead struct {
	readers int
	// the document was saved or removed while it was being read
	stale bool
}

// New creates a cache in front of backend
func New(backend Backend, maxItems int) *Store {
	if maxItems < 1 {
		maxItems = 1
	}
	return &Store{
		backend:  backend,
		maxItems: maxItems,
		docs:     map[string]json.RawMessage{},
		reads:    map[string]*pendingRead{},
	}
}

// must be called with mu locked
func (c *Store) add(key string, d json.RawMessage) {
	if _, ok := c.docs[key]; !ok && len(c.docs) >= c.maxItems {
		// map iteration order is random which makes it a cheap random eviction
		for k := range c.docs {
			delete(c.docs, k)
			break
		}
	}
	c.docs[key] = d
}

// changed marks in-flight backend reads of key as stale so that they don't
// cache the old document. Must be called with mu locked
func (c *Store) changed(key string) {
	if p := c.reads[key]; p != nil {
		p.stale = true
	}
}

// Save saves doc in the backend and caches it. Returns the key, generated
// if key is empty
func (c *Store) Save(key string, doc any) (string, error) {
	d, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	key, err = c.backend.SaveRaw(key, d)
	if err != nil {
		return key, err
	}
	// json.Marshal output is already in the form stored by the backend
	c.mu.Lock()
	c.changed(key)
	c.add(key, d)
	c.mu.Unlock()
	return key, nil
}

// SaveRaw is like Save for already encoded JSON
func (c *Store) SaveRaw(key string, payload json.RawMessage) (string, error) {
	key, err := c.backend.SaveRaw(key, payload)
	if err != nil {
		return key, err
	}
	// the backend stores payload in compact form, re-read on next Get
	c.mu.Lock()
	c.changed(key)
	delete(c.docs, key)
	c.mu.Unlock()
	return key, nil
}

// GetRaw returns encoded document, from the cache if possible
func (c *Store) GetRaw(key string) (json.RawMessage, error) {
	c.mu.Lock()
	d, ok := c.docs[key]
	if ok {
		c.hits++
		c.mu.Unlock()
		return d, nil
	}
	c.misses++
	p := c.reads[key]
	if p == nil {
		p = &pendingRead{}
		c.reads[key] = p
	}
	p.readers++
	c.mu.Unlock()

	d, err := c.backend.GetRaw(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	p.readers--
	if p.readers == 0 {
		delete(c.reads, key)
	}
	if err != nil {
		return nil, err
	}
	if !p.stale {
		c.add(key, d)
	}
	return d, nil
}

// Get decodes the document into v
func (c *Store) Get(key string, v any) error {
	d, err := c.GetRaw(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(d, v)
}

// Remove removes the document from the backend and the cache
func (c *Store) Remove(key string) error {
	err := c.backend.Remove(key)
	c.mu.Lock()
	c.changed(key)
	delete(c.docs, key)
	c.mu.Unlock()
	return err
}

// Len returns number of cached documents
func (c *Store) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

// Stats returns number of cache hits and misses
func (c *Store) Stats() (hits int64, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Reset removes all cached documents
func (c *Store) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.docs)
}
