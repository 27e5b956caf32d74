package nstore

import (
	"bufio"
	"io"
	"math"
	"time"

	"github.com/kjk/nstore/log"
)

// This size only affects performance, it's not a constraint on record sizes
const readChunkSize = 40 * 1024

// readLine reads up to and including '\n'. buf is re-used for the result.
// At the end of file returns io.EOF together with a partial line, if any
func readLine(r *bufio.Reader, buf []byte) ([]byte, error) {
	buf = buf[:0]
	for {
		d, err := r.ReadSlice(recordSep)
		buf = append(buf, d...)
		if err != bufio.ErrBufferFull {
			return buf, err
		}
	}
}

// load rebuilds the index by replaying the log from the start.
// A trailing record without '\n' was never completely written: it's not
// indexed and is truncated so that the next append starts a new record
func (s *Store) load() error {
	timeStart := time.Now()
	r := bufio.NewReaderSize(io.NewSectionReader(s.file, 0, math.MaxInt64), readChunkSize)

	var (
		off  int64
		line []byte
		err  error
	)
	for {
		line, err = readLine(r, line)
		if err == io.EOF {
			break
		}
		if err != nil {
			return ioErr("read", s.Path, err)
		}
		n := int64(len(line))
		key, payload, ok := decodeRecord(line[:len(line)-1])
		if !ok || len(key) == 0 {
			log.Verbosef("nstore: skipping malformed record at offset %d in '%s'\n", off, s.Path)
			s.stats.SkippedRecords++
			off += n
			continue
		}
		k := string(key)
		if len(payload) == 0 {
			if s.idx.remove(k) {
				s.staleCount++
			}
		} else {
			e := IndexEntry{
				Position: off + int64(len(key)) + 1,
				Length:   int64(len(payload)),
			}
			if s.idx.upsert(k, e) {
				s.staleCount++
			}
		}
		off += n
	}

	if len(line) > 0 {
		log.Verbosef("nstore: truncating incomplete record of %d bytes at offset %d in '%s'\n", len(line), off, s.Path)
		if err = s.file.Truncate(off); err != nil {
			return ioErr("truncate", s.Path, err)
		}
	}
	s.dbLength = off

	if s.temporary {
		return nil
	}
	dur := time.Since(timeStart)
	log.Verbosef("nstore: loaded '%s', %d documents, %d stale records, %d bytes in %s\n", s.Path, s.idx.len(), s.staleCount, off, dur)
	log.EventWithDuration("nstore.open", dur, "path", s.Path, "live", s.idx.len(), "stale", s.staleCount, "size", off)
	return nil
}
