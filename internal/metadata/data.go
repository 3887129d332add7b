package metadata

import "time"

/*
EventCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
  - EventCause is for observability only.
  - It must never be used to derive scheduling, retry, or growth decisions.
  - EventCause values MUST have stable, package-agnostic semantics.
  - Packages MAY map their local error kinds to EventCause, but MUST NOT
    invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be
used.
*/
type EventCause int

const (
	CauseUnknown EventCause = iota
	CauseNoPage
	CausePrecisionNotReached
	CauseStoreFull
	CauseInternal
	CauseInvalidPath
	CauseThread
)

// EventKind names what happened, independent of why (EventCause). The set
// mirrors the state transitions §4.5/§5 call out as worth observing.
type EventKind string

const (
	EventPageAdded               EventKind = "page_added"
	EventScoreUpdated            EventKind = "score_updated"
	EventScheduleRewritten        EventKind = "schedule_rewritten"
	EventMapGrown                EventKind = "map_grown"
	EventUpdateThreadStateChanged EventKind = "update_thread_state_changed"
	EventError                   EventKind = "error"
)

type Event struct {
	Kind       EventKind
	Package    string
	Action     string
	Cause      EventCause
	Message    string
	ObservedAt time.Time
	Attrs      []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{Key: key, Value: val}
}

type AttributeKey string

const (
	AttrHash        AttributeKey = "hash"
	AttrURL         AttributeKey = "url"
	AttrDomainHash  AttributeKey = "domain_hash"
	AttrPageID      AttributeKey = "page_id"
	AttrField       AttributeKey = "field"
	AttrOldScore    AttributeKey = "old_score"
	AttrNewScore    AttributeKey = "new_score"
	AttrState       AttributeKey = "state"
	AttrBatchSize   AttributeKey = "batch_size"
	AttrMapSize     AttributeKey = "map_size"
)
