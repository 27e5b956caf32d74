// Package nstore is an embedded document store persisted in a single
// append-only log file.
//
// Documents are values that can be encoded with encoding/json, stored
// under string keys.
//
// # Log Format
//
// The log is a sequence of records, one per line:
//
//	<key>\t<json>\n
//
// A record with empty json is a tombstone i.e. the key was removed.
// Saving a document appends a record, so over-written and removed documents
// leave stale records behind. Compaction rewrites the log with only the live
// records and renames it over the original file.
//
// When opened, the index of key to record is rebuilt by reading the log
// from the beginning. A partially written record at the end of the log is
// discarded.
//
// # Basic Usage
//
//	s := &nstore.Store{
//	    Path: "./data/users.db",
//	}
//	err := nstore.OpenStore(s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	key, err := s.Save("", user)
//	err = s.Get(key, &user)
//	err = s.Remove(key)
//
//	for key, doc := range s.All(ctx, nil) {
//	    // ...
//	}
//
// # Concurrency
//
// A Store can be used from multiple goroutines. Saves, removes and
// compactions are applied one at a time, in the order they were submitted,
// by a goroutine owned by the store. Callbacks passed to SaveAsync and
// RemoveAsync are called on that goroutine so they must not wait for other
// operations on the same store.
//
// A log file must not be opened by more than one Store at a time.
package nstore
