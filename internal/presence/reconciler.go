// Package presence tracks whether the learner of each session is connected
// to its media room. Webhook events are authoritative; polling heals missed
// pushes once a webhook value has aged past the grace window.
package presence

import (
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

func stateOf(online bool) State {
	if online {
		return StateOnline
	}
	return StateOffline
}

type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
)

// Record is the presence of one session, keyed by room name.
type Record struct {
	Key       string    `json:"room_name"`
	State     State     `json:"state"`
	Source    Source    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Outcome reports what a poll result did to a record.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDiscarded Outcome = "discarded"
)

type Reconciler struct {
	mu       sync.Mutex
	grace    time.Duration
	now      func() time.Time
	records  map[string]Record
	onChange []func(Record)
}

func NewReconciler(grace time.Duration) *Reconciler {
	return &Reconciler{
		grace:   grace,
		now:     time.Now,
		records: make(map[string]Record),
	}
}

// SetClock replaces the time source. Tests only.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// OnChange registers fn to run after every state change. Callbacks run on
// the caller's goroutine without the reconciler lock held.
func (r *Reconciler) OnChange(fn func(Record)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// ApplyWebhook records an authoritative transition. It reports whether the
// state changed; the timestamp is refreshed either way.
func (r *Reconciler) ApplyWebhook(key string, online bool) (Record, bool) {
	r.mu.Lock()
	prev := r.lookup(key)
	next := Record{Key: key, State: stateOf(online), Source: SourceWebhook, UpdatedAt: r.now()}
	r.records[key] = next
	hooks := r.hooksFor(prev.State != next.State)
	r.mu.Unlock()

	notify(hooks, next)
	return next, prev.State != next.State
}

// ApplyPoll merges a polled occupancy. A result that disagrees with a
// webhook value younger than the grace window is discarded.
func (r *Reconciler) ApplyPoll(key string, online bool) (Record, Outcome) {
	r.mu.Lock()
	now := r.now()
	prev := r.lookup(key)
	state := stateOf(online)

	switch {
	case prev.State == state:
		if prev.Source == SourcePoll {
			prev.UpdatedAt = now
			r.records[key] = prev
		}
		r.mu.Unlock()
		return prev, OutcomeUnchanged
	case prev.Source == SourceWebhook && now.Sub(prev.UpdatedAt) < r.grace:
		r.mu.Unlock()
		return prev, OutcomeDiscarded
	}

	next := Record{Key: key, State: state, Source: SourcePoll, UpdatedAt: now}
	r.records[key] = next
	hooks := r.hooksFor(true)
	r.mu.Unlock()

	notify(hooks, next)
	return next, OutcomeApplied
}

func (r *Reconciler) Get(key string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(key)
}

// Forget drops the record of a destroyed session.
func (r *Reconciler) Forget(key string) {
	r.mu.Lock()
	delete(r.records, key)
	r.mu.Unlock()
}

func (r *Reconciler) Snapshot() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Reconciler) lookup(key string) Record {
	if rec, ok := r.records[key]; ok {
		return rec
	}
	return Record{Key: key, State: StateUnknown}
}

func (r *Reconciler) hooksFor(changed bool) []func(Record) {
	if !changed || len(r.onChange) == 0 {
		return nil
	}
	return append([]func(Record){}, r.onChange...)
}

func notify(hooks []func(Record), rec Record) {
	for _, fn := range hooks {
		fn(rec)
	}
}
