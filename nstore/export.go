package nstore

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/kjk/nstore/atomicfile"
	"github.com/kjk/nstore/log"
	"github.com/kjk/nstore/siser"
	"github.com/kjk/nstore/u"
)

// Export writes all documents to w as siser blocks, with the key as the
// name of the block. Documents are sorted by key so that exports of the
// same data are identical. Returns number of exported documents
func (s *Store) Export(w io.Writer) (int, error) {
	keys := s.Keys()
	slices.Sort(keys)
	sw := siser.NewWriter(w)
	sw.NoTimestamp = true
	n := 0
	for _, key := range keys {
		d, err := s.GetRaw(key)
		if IsNotFound(err) {
			// removed after we took the snapshot of keys
			continue
		}
		if err != nil {
			return n, err
		}
		if _, err = sw.Write(d, time.Time{}, key); err != nil {
			return n, fmt.Errorf("nstore: export failed writing '%s': %w", key, err)
		}
		n++
	}
	return n, nil
}

// ExportFile exports to a file at path. The file only appears once the
// export is complete. Extensions .zst, .br and .gz compress the export
func (s *Store) ExportFile(path string) (n int, err error) {
	timeStart := time.Now()
	f, err := atomicfile.New(path)
	if err != nil {
		return 0, ioErr("create", path, err)
	}
	defer f.RemoveIfNotCommitted()

	w, err := u.NewWriterMaybeCompressed(f, path)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriterSize(w, 64*1024)
	n, err = s.Export(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = w.Close()
	}
	if err == nil {
		err = f.Close()
	}
	if err != nil {
		return n, ioErr("export", path, err)
	}
	log.Verbosef("nstore: exported %d documents to '%s' (%s) in %s\n", n, path, u.FormatSize(u.FileSize(path)), time.Since(timeStart))
	return n, nil
}

// Import saves documents from siser blocks written by Export. Existing
// documents with the same keys are over-written.
// Returns number of imported documents
func (s *Store) Import(r io.Reader) (int, error) {
	sr := siser.NewReader(bufio.NewReaderSize(r, readChunkSize))
	sr.NoTimestamp = true

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		n        int
	)
	done := func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			n++
		} else if firstErr == nil {
			firstErr = fmt.Errorf("nstore: import of '%s' failed: %w", key, err)
		}
		wg.Done()
	}
	for sr.ReadNextData() {
		// Data is re-used by the next ReadNextData()
		d := slices.Clone(sr.Data)
		wg.Add(1)
		s.SaveRawAsync(sr.Name, d, done)
	}
	wg.Wait()
	if err := sr.Err(); err != nil {
		return n, fmt.Errorf("nstore: import failed: %w", err)
	}
	return n, firstErr
}

// ImportFile imports a file written by ExportFile, decompressing it based
// on the extension
func (s *Store) ImportFile(path string) (int, error) {
	timeStart := time.Now()
	r, err := u.OpenFileMaybeCompressed(path)
	if err != nil {
		return 0, ioErr("open", path, err)
	}
	defer r.Close()
	n, err := s.Import(r)
	log.Verbosef("nstore: imported %d documents from '%s' in %s\n", n, path, time.Since(timeStart))
	return n, err
}
