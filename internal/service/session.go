package service

import (
	"sync"
	"time"

	"github.com/cx-tal-miterani/train-booking-system/internal/booking"
	"github.com/cx-tal-miterani/train-booking-system/internal/catalog"
)

// session is one browser tab's booking.
type session struct {
	id       string
	store    *booking.Store
	searcher *catalog.Searcher

	mu        sync.Mutex
	lastSeen  time.Time
	abandoned []string
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// abandon remembers a cancelled order. Its hold is released by the order
// workflow and may outlive the cancel request.
func (s *session) abandon(orderID string) {
	s.mu.Lock()
	s.abandoned = append(s.abandoned, orderID)
	s.mu.Unlock()
}

// ownOrders returns the orders whose held seats belong to this session: the
// submitted order, if any, and every order it gave up.
func (s *session) ownOrders() []string {
	s.mu.Lock()
	out := append([]string(nil), s.abandoned...)
	s.mu.Unlock()
	if o := s.store.Snapshot().Order; o != nil {
		out = append(out, o.OrderID)
	}
	return out
}

type registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

func (r *registry) get(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *registry) remove(id string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	return s, ok
}

func (r *registry) all() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
