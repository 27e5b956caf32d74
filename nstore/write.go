package nstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kjk/nstore/log"
)

// SaveAsync queues saving doc under key. If key is empty, a new key is
// generated. done (can be nil) is called with the key when the document
// was written, or with an error.
// Callbacks of queued operations are called one at a time, in the order
// the operations were applied, and may call other methods of the store.
// doc is encoded with json.Marshal before returning so it's safe to modify
// doc afterwards. An encoding error is reported to done before SaveAsync
// returns
func (s *Store) SaveAsync(key string, doc any, done func(key string, err error)) {
	payload, err := encodeDoc(doc)
	if err != nil {
		if done != nil {
			done(key, err)
		}
		return
	}
	s.saveRawAsync(key, payload, false, done)
}

// Save saves doc under key and waits until it's written. If key is empty,
// a new key is generated. Returns the key
func (s *Store) Save(key string, doc any) (string, error) {
	payload, err := encodeDoc(doc)
	if err != nil {
		return key, err
	}
	return s.saveWait(key, payload)
}

// SaveRawAsync is like SaveAsync but payload is already encoded JSON
func (s *Store) SaveRawAsync(key string, payload json.RawMessage, done func(key string, err error)) {
	d, err := compactJSON(payload)
	if err != nil {
		if done != nil {
			done(key, err)
		}
		return
	}
	s.saveRawAsync(key, d, false, done)
}

// SaveRaw is like Save but payload is already encoded JSON.
// The payload is stored in compact form
func (s *Store) SaveRaw(key string, payload json.RawMessage) (string, error) {
	d, err := compactJSON(payload)
	if err != nil {
		return key, err
	}
	return s.saveWait(key, d)
}

// RemoveAsync queues removing the document with this key. done (can be nil)
// gets ErrNotFound if key has no document at the time the removal is
// processed
func (s *Store) RemoveAsync(key string, done func(err error)) {
	var doneKey func(string, error)
	if done != nil {
		doneKey = func(_ string, err error) {
			done(err)
		}
	}
	s.removeAsync(key, false, doneKey)
}

// Remove removes the document with this key and waits until the removal
// is written
func (s *Store) Remove(key string) error {
	ch := make(chan error, 1)
	s.removeAsync(key, true, func(_ string, err error) {
		ch <- err
	})
	return <-ch
}

func (s *Store) removeAsync(key string, inline bool, done func(string, error)) {
	req := &request{
		kind:   reqRemove,
		key:    key,
		done:   done,
		inline: inline,
	}
	err := validateKey(key)
	if err == nil {
		err = s.submit(req)
	}
	if err != nil {
		req.complete(key, err)
	}
}

type result struct {
	key string
	err error
}

// compactJSON validates d as JSON and removes insignificant whitespace,
// including newlines
func compactJSON(d []byte) ([]byte, error) {
	if len(d) == 0 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}
	if !json.Valid(d) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	res := buf.Bytes()
	if err := validatePayload(res); err != nil {
		return nil, err
	}
	return res, nil
}

func encodeDoc(doc any) ([]byte, error) {
	d, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return d, nil
}

// saveWait queues saving an encoded payload and waits for the result
func (s *Store) saveWait(key string, payload []byte) (string, error) {
	ch := make(chan result, 1)
	s.saveRawAsync(key, payload, true, func(key string, err error) {
		ch <- result{key, err}
	})
	res := <-ch
	return res.key, res.err
}

func (s *Store) saveRawAsync(key string, payload []byte, inline bool, done func(string, error)) {
	req := &request{
		kind:    reqSave,
		key:     key,
		payload: payload,
		done:    done,
		inline:  inline,
	}
	err := validatePayload(payload)
	if err == nil && key != "" {
		err = validateKey(key)
	}
	if err == nil {
		err = s.submit(req)
	}
	if err != nil {
		req.complete(key, err)
	}
}

// submit admits req to the write queue, starting the runner if needed
func (s *Store) submit(req *request) error {
	s.mu.Lock()
	if s.closed || s.file == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	if req.kind == reqCompact && s.gate.compactPending {
		s.mu.Unlock()
		return ErrCompacting
	}
	start := s.gate.admit(req)
	s.mu.Unlock()
	if start {
		go s.run()
	}
	return nil
}

// run processes queued requests until the queue is empty.
// There's at most one runner per store
func (s *Store) run() {
	for {
		s.mu.Lock()
		req := s.nextRequest()
		s.gate.next(req)
		if req == nil {
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		switch req.kind {
		case reqSave, reqRemove:
			s.write(req)
		case reqCompact:
			s.runCompaction(req)
		}
	}
}

// nextRequest returns the next queued request. When the queue is drained
// and the log is mostly stale records, returns an automatic compaction.
// Must be called with s.mu locked
func (s *Store) nextRequest() *request {
	if req := s.gate.pop(); req != nil {
		return req
	}
	if !s.shouldAutoCompact() {
		return nil
	}
	s.gate.compactPending = true
	return &request{
		kind: reqCompact,
		auto: true,
	}
}

func (s *Store) shouldAutoCompact() bool {
	if s.NoAutoCompact || s.closed || s.autoCompactFailed || s.gate.compactPending {
		return false
	}
	return s.staleCount > s.idx.len()
}

// writeFullAt writes all of d at off, looping over short writes
func writeFullAt(w io.WriterAt, d []byte, off int64) error {
	for len(d) > 0 {
		n, err := w.WriteAt(d, off)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		d = d[n:]
		off += int64(n)
	}
	return nil
}

// write appends a save or tombstone record. Called only by the runner
func (s *Store) write(req *request) {
	key := req.key
	var err error
	switch {
	case req.kind == reqSave && key == "":
		// generated against the live index so that queued saves
		// can't collide with each other
		key, err = generateKey(s.idx.has)
	case req.kind == reqRemove && !s.idx.has(key):
		err = fmt.Errorf("%w: '%s'", ErrNotFound, key)
	}
	if err != nil {
		s.writeFailed(req, key, err)
		return
	}

	rec := encodeRecord(key, req.payload)
	off := s.dbLength
	err = writeFullAt(s.file, rec, off)
	if err == nil && s.SyncWrites {
		err = s.file.Sync()
	}
	if err != nil {
		// don't leave a partial record for the next open to find
		_ = s.file.Truncate(off)
		log.Errorf("nstore: failed to write record for '%s' at offset %d in '%s': %s", key, off, s.Path, err)
		s.writeFailed(req, key, ioErr("write", s.Path, err))
		return
	}

	s.mu.Lock()
	if req.kind == reqSave {
		e := IndexEntry{
			Position: off + int64(len(key)) + 1,
			Length:   int64(len(req.payload)),
		}
		if s.idx.upsert(key, e) {
			s.staleCount++
		}
		s.stats.Writes++
	} else {
		s.idx.remove(key)
		s.staleCount++
		s.stats.Removes++
	}
	s.dbLength = off + int64(len(rec))
	s.autoCompactFailed = false
	s.mu.Unlock()

	s.finish(req, key, nil)
}

func (s *Store) writeFailed(req *request, key string, err error) {
	s.mu.Lock()
	s.stats.WriteErrors++
	s.mu.Unlock()
	s.finish(req, key, err)
}

// finish reports the result of req. Called only by the runner, which must
// not block on a callback: a callback can submit a request and wait for it
func (s *Store) finish(req *request, key string, err error) {
	if req.done == nil {
		return
	}
	if req.inline {
		req.done(key, err)
		return
	}
	s.callbacks.post(func() {
		req.done(key, err)
	})
}
