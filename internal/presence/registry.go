package presence

import "sync"

// Pusher is a live push connection to one tutor.
type Pusher interface {
	ID() string
	Push(msg any) error
}

// Registry maps a tutor to its push connection. Only one connection per
// tutor is meaningful; the latest registration wins.
type Registry struct {
	mu      sync.RWMutex
	pushers map[int64]Pusher
}

func NewRegistry() *Registry {
	return &Registry{pushers: make(map[int64]Pusher)}
}

// Register installs p for tutorID and returns the connection it replaced.
func (r *Registry) Register(tutorID int64, p Pusher) Pusher {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.pushers[tutorID]
	r.pushers[tutorID] = p
	return prev
}

// Unregister removes p only if it is still the registered connection, so a
// late disconnect cannot evict its replacement.
func (r *Registry) Unregister(tutorID int64, p Pusher) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.pushers[tutorID]
	if !ok || cur.ID() != p.ID() {
		return false
	}
	delete(r.pushers, tutorID)
	return true
}

func (r *Registry) Lookup(tutorID int64) (Pusher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pushers[tutorID]
	return p, ok
}

// Tutors lists the tutors with a live connection.
func (r *Registry) Tutors() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.pushers))
	for id := range r.pushers {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pushers)
}
