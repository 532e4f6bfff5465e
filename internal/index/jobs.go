package index

import (
	"github.com/dreamware/stcache/internal/cachecube"
	"github.com/dreamware/stcache/internal/cube"
	"github.com/dreamware/stcache/internal/proto"
)

// jobKind is the closed set of things a client request can turn into
// after the catalog lookup.
type jobKind int

const (
	jobCreate jobKind = iota
	jobDeliver
	jobPuzzle
)

func (k jobKind) String() string {
	switch k {
	case jobCreate:
		return "create"
	case jobDeliver:
		return "deliver"
	case jobPuzzle:
		return "puzzle"
	default:
		return "unknown"
	}
}

// jobResult is what the requesting client connection eventually sees.
type jobResult struct {
	delivery proto.DeliveryResponse
	errMsg   string
}

// job is one pending or in-flight client request. The scheduler owns
// it while pending; exactly one worker goroutine owns it while
// in-flight; the client connection goroutine blocks on done.
type job struct {
	id         uint64
	kind       jobKind
	semanticID string
	query      cachecube.QueryRectangle

	// deliver
	ref        cachecube.CacheRef
	targetNode uint32

	// puzzle
	refs      []cachecube.CacheRef
	remainder []cube.Cube
	// contributing holds the node ids that own refs; the scheduler
	// only assigns the job to a worker on one of them, so fewer pieces
	// cross the wire.
	contributing map[uint32]bool

	// rescheduled is set when a faulty worker hands the job back, so a
	// second fault fails the client instead of looping forever.
	rescheduled bool

	done chan jobResult
}

func newJob(id uint64, kind jobKind, semanticID string, query cachecube.QueryRectangle) *job {
	return &job{
		id:         id,
		kind:       kind,
		semanticID: semanticID,
		query:      query,
		done:       make(chan jobResult, 1),
	}
}

// eligible reports whether w satisfies this job's locality constraint:
// create runs anywhere, deliver must run on the
// node holding the entry, puzzle on any contributing node.
func (j *job) eligible(w *workerConn) bool {
	switch j.kind {
	case jobCreate:
		return true
	case jobDeliver:
		return w.nodeID == j.targetNode
	case jobPuzzle:
		return j.contributing[w.nodeID]
	default:
		return false
	}
}

func (j *job) complete(d proto.DeliveryResponse) {
	j.done <- jobResult{delivery: d}
}

func (j *job) fail(msg string) {
	j.done <- jobResult{errMsg: msg}
}
