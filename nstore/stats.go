package nstore

// counters are protected by Store.mu
type counters struct {
	Writes           int64
	Removes          int64
	WriteErrors      int64
	Compactions      int64
	CompactionErrors int64
	SkippedRecords   int64
}

// Stats is a snapshot of the store's state and counters
type Stats struct {
	// number of documents
	Live int
	// number of records in the log that no longer back a document
	Stale int
	// size of the log file in bytes
	Size int64
	// state of the write queue
	State State
	// number of queued operations, including the one being processed
	Pending int

	// successful saves
	Writes int64
	// successful removes
	Removes int64
	// failed saves and removes
	WriteErrors      int64
	Compactions      int64
	CompactionErrors int64
	// malformed records skipped when loading the log
	SkippedRecords int64
}

// Stats returns a snapshot of the store's counters
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := Stats{
		Stale:            s.staleCount,
		Size:             s.dbLength,
		State:            s.gate.state,
		Pending:          s.gate.pending(),
		Writes:           s.stats.Writes,
		Removes:          s.stats.Removes,
		WriteErrors:      s.stats.WriteErrors,
		Compactions:      s.stats.Compactions,
		CompactionErrors: s.stats.CompactionErrors,
		SkippedRecords:   s.stats.SkippedRecords,
	}
	if s.idx != nil {
		res.Live = s.idx.len()
	}
	if res.State != StateIdle {
		// the request being processed was already popped
		res.Pending++
	}
	return res
}
