package nstore

import (
	"encoding/json"
	"fmt"
	"io"
)

// Get decodes the document with this key into v using json.Unmarshal.
// Returns ErrNotFound if there's no such document
func (s *Store) Get(key string, v any) error {
	d, err := s.GetRaw(key)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(d, v); err != nil {
		return fmt.Errorf("%w: key '%s': %w", ErrMalformedRecord, key, err)
	}
	return nil
}

// GetRaw returns the encoded JSON of the document with this key.
// Returns ErrNotFound if there's no such document
func (s *Store) GetRaw(key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return nil, ErrClosed
	}
	e, ok := s.idx.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, key)
	}
	return s.readPayload(key, e)
}

// readPayload reads the payload and the '\n' that ends the record.
// Must be called with s.mu locked for reading, or from the runner
func (s *Store) readPayload(key string, e IndexEntry) ([]byte, error) {
	d := make([]byte, e.Length+1)
	err := readFullAt(s.file, d, e.Position)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: key '%s' at offset %d: record past end of file", ErrMalformedRecord, key, e.Position)
	}
	if err != nil {
		return nil, ioErr("read", s.Path, err)
	}
	if d[e.Length] != recordSep {
		return nil, fmt.Errorf("%w: key '%s' at offset %d: missing record separator", ErrMalformedRecord, key, e.Position)
	}
	return d[:e.Length], nil
}

// readFullAt reads len(d) bytes at off, looping over short reads.
// Returns io.ErrUnexpectedEOF if the file ends before that
func readFullAt(r io.ReaderAt, d []byte, off int64) error {
	nRead := 0
	for nRead < len(d) {
		n, err := r.ReadAt(d[nRead:], off+int64(nRead))
		nRead += n
		if nRead == len(d) {
			return nil
		}
		if err == io.EOF {
			if nRead == 0 {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}
