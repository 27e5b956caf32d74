package nstore

// IndexEntry points to the payload of the most recent record for a key
type IndexEntry struct {
	// offset in the log file of the first byte of the payload
	Position int64
	// length of the payload in bytes
	Length int64
}

type index struct {
	m map[string]IndexEntry
}

func newIndex() *index {
	return &index{m: map[string]IndexEntry{}}
}

func (idx *index) lookup(key string) (IndexEntry, bool) {
	e, ok := idx.m[key]
	return e, ok
}

func (idx *index) has(key string) bool {
	_, ok := idx.m[key]
	return ok
}

// upsert returns true if it replaced an existing entry
func (idx *index) upsert(key string, e IndexEntry) bool {
	_, existed := idx.m[key]
	idx.m[key] = e
	return existed
}

// remove returns true if key was present
func (idx *index) remove(key string) bool {
	_, existed := idx.m[key]
	if existed {
		delete(idx.m, key)
	}
	return existed
}

func (idx *index) len() int {
	return len(idx.m)
}

// keys returns a snapshot of all keys, in no particular order
func (idx *index) keys() []string {
	res := make([]string, 0, len(idx.m))
	for k := range idx.m {
		res = append(res, k)
	}
	return res
}

// entries returns a snapshot of the index
func (idx *index) entries() map[string]IndexEntry {
	res := make(map[string]IndexEntry, len(idx.m))
	for k, e := range idx.m {
		res[k] = e
	}
	return res
}
