package nstore

// State of the admission gate
type State int

const (
	// StateIdle: nothing queued or running
	StateIdle State = iota
	// StateWriting: a save or remove is being applied
	StateWriting
	// StateCompacting: the log is being rewritten
	StateCompacting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateCompacting:
		return "compacting"
	}
	return "unknown"
}

type requestKind int

const (
	reqSave requestKind = iota
	reqRemove
	reqCompact
)

type request struct {
	kind requestKind
	// for reqSave, empty means generate a key
	key string
	// encoded document, empty for reqRemove
	payload []byte
	// for reqCompact: drop all documents, even if there are no stale records
	drop bool
	// for reqCompact: triggered by the store, not by the caller
	auto bool
	done func(key string, err error)
	// done only hands the result to a waiting caller and never blocks,
	// so the runner calls it directly
	inline bool
}

func (r *request) complete(key string, err error) {
	if r.done != nil {
		r.done(key, err)
	}
}

// gate admits one mutating operation at a time. Requests that arrive while
// one is in flight wait in a FIFO.
//
// Transitions:
//
//	idle       -- admit -->              writing (caller starts the runner)
//	writing    -- next: save/remove -->  writing
//	writing    -- next: compaction -->   compacting
//	compacting -- next: save/remove -->  writing
//	*          -- next: queue empty -->  idle (runner exits)
type gate struct {
	state State
	queue []*request
	// index of first pending request in queue
	head int
	// a compaction is queued or running
	compactPending bool
}

// admit adds req to the queue. Returns true if the gate was idle, in which
// case the caller must start the runner
func (g *gate) admit(req *request) bool {
	g.queue = append(g.queue, req)
	if req.kind == reqCompact {
		g.compactPending = true
	}
	if g.state != StateIdle {
		return false
	}
	g.state = StateWriting
	return true
}

// pop removes the oldest request. Returns nil if the queue is empty
func (g *gate) pop() *request {
	if g.head >= len(g.queue) {
		return nil
	}
	req := g.queue[g.head]
	g.queue[g.head] = nil
	g.head++
	if g.head == len(g.queue) {
		// reuse the backing array
		g.queue = g.queue[:0]
		g.head = 0
	} else if g.head > 1024 && g.head*2 > len(g.queue) {
		n := copy(g.queue, g.queue[g.head:])
		clear(g.queue[n:])
		g.queue = g.queue[:n]
		g.head = 0
	}
	return req
}

// next moves the gate to the state for req, or to idle if req is nil
func (g *gate) next(req *request) {
	switch {
	case req == nil:
		g.state = StateIdle
	case req.kind == reqCompact:
		g.state = StateCompacting
	default:
		g.state = StateWriting
	}
}

func (g *gate) pending() int {
	return len(g.queue) - g.head
}
