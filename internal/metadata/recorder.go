package metadata

import (
	"sync"
	"time"

	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

/*
Recorder - observability sink for the engine

Events Collected
- Page/PageInfo creation and mutation
- Scorer re-scoring passes and per-page score changes
- Schedule key rewrites
- Map growth (PageDB, BF schedule, Freq schedule)
- Update-thread state transitions
- Errors, tagged with a package-agnostic EventCause

Logging Goals
- Debuggable crawl-frontier behavior
- Post-run auditability of scheduling decisions
- Failure diagnostics without coupling control flow to logging

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- Hashes
- Page ids
- Scores
- Durations
*/

// Sink is the capability a component needs to emit observability events.
// It is intentionally narrower than *Recorder so callers can be given a
// Sink without being handed Events.
type Sink interface {
	Record(e Event)
	RecordError(pkg, action string, err failure.ClassifiedError, attrs ...Attribute)
}

type Recorder struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// NewRecorder creates a Recorder retaining at most capacity events (a ring
// buffer); capacity <= 0 means unbounded.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{cap: capacity}
}

func (r *Recorder) Record(e Event) {
	if e.ObservedAt.IsZero() {
		e.ObservedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.cap > 0 && len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

func causeFromKind(k failure.Kind) EventCause {
	switch k {
	case failure.KindNoPage:
		return CauseNoPage
	case failure.KindPrecision:
		return CausePrecisionNotReached
	case failure.KindStoreFull:
		return CauseStoreFull
	case failure.KindInvalidPath:
		return CauseInvalidPath
	case failure.KindThread:
		return CauseThread
	case failure.KindInternal:
		return CauseInternal
	default:
		return CauseUnknown
	}
}

func (r *Recorder) RecordError(pkg, action string, err failure.ClassifiedError, attrs ...Attribute) {
	r.Record(Event{
		Kind:    EventError,
		Package: pkg,
		Action:  action,
		Cause:   causeFromKind(err.Kind()),
		Message: err.Error(),
		Attrs:   attrs,
	})
}

// Events returns a snapshot copy of recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
