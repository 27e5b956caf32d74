package nstore

import (
	"context"
	"encoding/json"
	"iter"

	"golang.org/x/sync/errgroup"
)

const (
	streamConcurrency = 8
	// max number of fetched items not yet consumed by Next()
	streamBufferSize = 64
)

// Filter decides if a document should be returned by Stream and All
type Filter func(key string, doc json.RawMessage) bool

// Item is a document returned by Stream
type Item struct {
	Key string
	Doc json.RawMessage
	// set if fetching this document failed, Doc is nil then
	Err error
}

// Decode decodes the document into v using json.Unmarshal
func (it *Item) Decode(v any) error {
	if it.Err != nil {
		return it.Err
	}
	return json.Unmarshal(it.Doc, v)
}

// Stream returns documents that were in the store when it was created.
// Documents are fetched in the background, in no particular order, but
// only a bounded number of them is held until the consumer calls Next().
//
//	st := s.Stream(ctx, nil)
//	defer st.Close()
//	for st.Next() {
//		it := st.Item()
//	}
type Stream struct {
	ch     chan Item
	cancel context.CancelFunc
	curr   Item
	done   bool
	// written by fetcher before closing ch
	err error
}

// Stream starts fetching a snapshot of documents. If filter is not nil,
// only documents for which it returns true are returned.
// Cancelling ctx or calling Close() stops fetching
func (s *Store) Stream(ctx context.Context, filter Filter) *Stream {
	keys := s.Keys()
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		ch:     make(chan Item, streamBufferSize),
		cancel: cancel,
	}
	go st.fetch(ctx, s, keys, filter)
	return st
}

func (st *Stream) fetch(ctx context.Context, s *Store, keys []string, filter Filter) {
	defer close(st.ch)
	var g errgroup.Group
	g.SetLimit(streamConcurrency)
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d, err := s.GetRaw(key)
			if err == nil && filter != nil && !filter(key, d) {
				return nil
			}
			select {
			case st.ch <- Item{Key: key, Doc: d, Err: err}:
			case <-ctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()
	st.err = ctx.Err()
}

// Next advances to the next document. Returns false when all documents
// were returned or the stream was stopped. It returns false only once,
// later calls also return false
func (st *Stream) Next() bool {
	if st.done {
		return false
	}
	it, ok := <-st.ch
	if !ok {
		st.done = true
		st.cancel()
		return false
	}
	st.curr = it
	return true
}

// Item returns the current document
func (st *Stream) Item() Item {
	return st.curr
}

// Err returns an error if the stream stopped before returning all documents
// because ctx was cancelled or Close() was called
func (st *Stream) Err() error {
	if !st.done {
		return nil
	}
	return st.err
}

// Close stops fetching and waits for the fetchers to finish
func (st *Stream) Close() {
	st.cancel()
	for range st.ch {
	}
	st.done = true
}

// All returns an iterator over documents for which filter returns true
// (all if filter is nil). Documents that fail to be fetched are skipped
func (s *Store) All(ctx context.Context, filter Filter) iter.Seq2[string, json.RawMessage] {
	return func(yield func(string, json.RawMessage) bool) {
		st := s.Stream(ctx, filter)
		defer st.Close()
		for st.Next() {
			it := st.Item()
			if it.Err != nil {
				continue
			}
			if !yield(it.Key, it.Doc) {
				return
			}
		}
	}
}
