package nstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/kjk/nstore/atomicfile"
	"github.com/kjk/nstore/log"
	"golang.org/x/sync/errgroup"
)

// Compact rewrites the log so that it only contains the records of live
// documents, dropping those rejected by CompactFilter.
// It's queued behind writes submitted before it. Writes submitted after
// it are applied to the compacted log.
// Returns ErrCompacting if a compaction is already queued or running
func (s *Store) Compact() error {
	return s.submitCompact(false)
}

// Clear removes all documents by compacting the log into an empty file
func (s *Store) Clear() error {
	return s.submitCompact(true)
}

func (s *Store) submitCompact(drop bool) error {
	ch := make(chan error, 1)
	req := &request{
		kind: reqCompact,
		drop: drop,
		done: func(_ string, err error) {
			ch <- err
		},
		inline: true,
	}
	if err := s.submit(req); err != nil {
		return err
	}
	return <-ch
}

// runCompaction is called only by the runner
func (s *Store) runCompaction(req *request) {
	var err error
	// nothing would change
	skip := !req.drop && s.staleCount == 0 && s.CompactFilter == nil
	if !skip {
		err = s.compact(req.drop)
	}

	s.mu.Lock()
	s.gate.compactPending = false
	if !skip {
		if err == nil {
			s.stats.Compactions++
		} else {
			s.stats.CompactionErrors++
			if req.auto {
				s.autoCompactFailed = true
			}
		}
	}
	s.mu.Unlock()

	if err != nil && req.auto {
		if onErr := s.OnCompactError; onErr != nil {
			s.callbacks.post(func() {
				onErr(err)
			})
		} else {
			log.Errorf("nstore: automatic compaction of '%s' failed: %s", s.Path, err)
		}
	}
	s.finish(req, "", err)
}

// compact writes live documents to a temporary store, renames its file over
// the log and adopts its state. If anything fails before the rename, the
// current log and index are untouched
func (s *Store) compact(drop bool) error {
	timeStart := time.Now()
	sizeBefore := s.dbLength
	nBefore := s.idx.len()

	_, base := filepath.Split(s.Path)
	tmpName := "." + base + "." + NewKey() + ".tmp"
	af, err := atomicfile.NewWithName(s.Path, tmpName)
	if err != nil {
		return ioErr("create", filepath.Join(filepath.Dir(s.Path), tmpName), err)
	}
	defer af.RemoveIfNotCommitted()

	tmp := &Store{
		Path:          af.Path(),
		NoAutoCompact: true,
		temporary:     true,
	}
	if err = openStoreWithFile(tmp, af.File()); err != nil {
		return err
	}
	if !drop {
		err = s.copyLive(tmp)
	}
	// af owns the file until Commit()
	f, idx, dbLength, staleCount := tmp.detach()
	if err != nil {
		return err
	}
	if err = af.Commit(); err != nil {
		return ioErr("rename", s.Path, err)
	}

	s.mu.Lock()
	prev := s.file
	s.file = f
	s.idx = idx
	s.dbLength = dbLength
	s.staleCount = staleCount
	s.mu.Unlock()

	if err = prev.Close(); err != nil {
		log.Errorf("nstore: failed to close compacted log '%s': %s", s.Path, err)
	}

	dur := time.Since(timeStart)
	log.Verbosef("nstore: compacted '%s' from %d to %d bytes, %d documents (dropped %d) in %s\n", s.Path, sizeBefore, dbLength, idx.len(), nBefore-idx.len(), dur)
	log.EventWithDuration("nstore.compact", dur, "path", s.Path, "before", sizeBefore, "after", dbLength, "live", idx.len(), "dropped", nBefore-idx.len())
	return nil
}

// copyLive saves every live document, unless rejected by CompactFilter,
// into dst. Reads from the log are done concurrently, dst serializes the
// writes
func (s *Store) copyLive(dst *Store) error {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(s.compactConcurrency())
	for key, e := range s.idx.entries() {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			d, err := s.readPayload(key, e)
			if err != nil {
				return err
			}
			if s.CompactFilter != nil && !s.CompactFilter(key, d) {
				return nil
			}
			_, err = dst.saveWait(key, d)
			return err
		})
	}
	return g.Wait()
}
