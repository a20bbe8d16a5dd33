package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

type seatKey struct {
	scheduleID string
	seat       models.SeatLabel
}

type hold struct {
	orderID string
	expiry  time.Time
}

// MemoryHolder keeps holds in process. It backs the worker when no Redis is
// configured and the tests.
type MemoryHolder struct {
	mu    sync.RWMutex
	holds map[seatKey]hold
	now   func() time.Time
}

func NewMemoryHolder() *MemoryHolder {
	return &MemoryHolder{
		holds: make(map[seatKey]hold),
		now:   time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *MemoryHolder) WithClock(now func() time.Time) *MemoryHolder {
	m.now = now
	return m
}

func (m *MemoryHolder) Hold(_ context.Context, scheduleID, orderID string, seats []models.SeatLabel, ttl time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	// First check all seats are free, held by this order or expired
	var conflicts []models.SeatLabel
	for _, seat := range seats {
		h, held := m.holds[seatKey{scheduleID, seat}]
		if !held || h.orderID == orderID || now.After(h.expiry) {
			continue
		}
		conflicts = append(conflicts, seat)
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].String() < conflicts[j].String() })
		return time.Time{}, apperr.ConflictError{Resource: "seats", Seats: conflicts, Msg: "are held by another order"}
	}

	expiry := now.Add(ttl)
	for _, seat := range seats {
		m.holds[seatKey{scheduleID, seat}] = hold{orderID: orderID, expiry: expiry}
	}
	return expiry, nil
}

func (m *MemoryHolder) Release(_ context.Context, scheduleID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, h := range m.holds {
		if k.scheduleID == scheduleID && h.orderID == orderID {
			delete(m.holds, k)
		}
	}
	return nil
}

func (m *MemoryHolder) Held(_ context.Context, scheduleID string) (map[models.SeatLabel]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make(map[models.SeatLabel]string)
	for k, h := range m.holds {
		if k.scheduleID == scheduleID && !now.After(h.expiry) {
			out[k.seat] = h.orderID
		}
	}
	return out, nil
}
