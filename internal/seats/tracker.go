// Package seats keeps the passenger-to-seat assignment of one booking.
//
// A Tracker holds one slot per passenger and the set of seats occupied by
// other bookings. Every mutation validates the complete resulting assignment
// before committing it, so no sequence of calls can leave two passengers on
// the same seat, even transiently.
package seats

import (
	"errors"
	"fmt"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/seatmap"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var (
	ErrIndexOutOfRange = errors.New("passenger index out of range")
	ErrSeatTaken       = errors.New("seat already assigned to another passenger")
	ErrSeatOccupied    = errors.New("seat occupied by another booking")
	ErrSeatNotInLayout = errors.New("seat does not exist on this train")
)

// Change assigns Seat to the passenger at Index. A zero Seat clears the slot.
type Change struct {
	Index int              `json:"index"`
	Seat  models.SeatLabel `json:"seat"`
}

type Tracker struct {
	layout   seatmap.Layout
	coaches  int
	assigned []models.SeatLabel
	occupied map[models.SeatLabel]struct{}
}

// NewTracker creates a tracker with `passengers` empty slots.
func NewTracker(layout seatmap.Layout, coaches, passengers int) *Tracker {
	if coaches < 1 {
		coaches = 1
	}
	if passengers < 0 {
		passengers = 0
	}
	return &Tracker{
		layout:   layout,
		coaches:  coaches,
		assigned: make([]models.SeatLabel, passengers),
		occupied: make(map[models.SeatLabel]struct{}),
	}
}

// Clone returns an independent copy.
func (t *Tracker) Clone() *Tracker {
	out := &Tracker{
		layout:   t.layout,
		coaches:  t.coaches,
		assigned: append([]models.SeatLabel(nil), t.assigned...),
		occupied: make(map[models.SeatLabel]struct{}, len(t.occupied)),
	}
	for l := range t.occupied {
		out.occupied[l] = struct{}{}
	}
	return out
}

func (t *Tracker) Layout() seatmap.Layout { return t.layout }

func (t *Tracker) Coaches() int { return t.coaches }

func (t *Tracker) Len() int { return len(t.assigned) }

// Assignments returns a copy of the seat held by each slot.
func (t *Tracker) Assignments() []models.SeatLabel {
	return append([]models.SeatLabel(nil), t.assigned...)
}

// Seat returns the seat held by slot i.
func (t *Tracker) Seat(i int) models.SeatLabel {
	if i < 0 || i >= len(t.assigned) {
		return models.SeatLabel{}
	}
	return t.assigned[i]
}

// HolderOf returns the slot holding the seat.
func (t *Tracker) HolderOf(label models.SeatLabel) (int, bool) {
	if label.IsZero() {
		return 0, false
	}
	for i, l := range t.assigned {
		if l == label {
			return i, true
		}
	}
	return 0, false
}

func (t *Tracker) IsOccupied(label models.SeatLabel) bool {
	_, ok := t.occupied[label]
	return ok
}

// Occupied lists the seats taken by other bookings.
func (t *Tracker) Occupied() []models.SeatLabel {
	out := make([]models.SeatLabel, 0, len(t.occupied))
	for l := range t.occupied {
		out = append(out, l)
	}
	return out
}

// Complete reports whether every slot holds a seat.
func (t *Tracker) Complete() bool {
	for _, l := range t.assigned {
		if l.IsZero() {
			return false
		}
	}
	return true
}

// Pick gives the seat to passenger i. Picking a seat held by a different
// passenger is rejected without any change.
func (t *Tracker) Pick(i int, label models.SeatLabel) error {
	if label.IsZero() {
		return apperr.Validation(ErrSeatNotInLayout, seatField(i, "a seat must be given"))
	}
	return t.Apply(Change{Index: i, Seat: label})
}

// Clear removes the seat of passenger i.
func (t *Tracker) Clear(i int) error {
	return t.Apply(Change{Index: i})
}

// Apply commits all changes at once. Changes are evaluated against the final
// assignment, so a swap of two passengers' seats is a single valid Apply.
func (t *Tracker) Apply(changes ...Change) error {
	next := append([]models.SeatLabel(nil), t.assigned...)
	for _, c := range changes {
		if c.Index < 0 || c.Index >= len(next) {
			return apperr.Validation(ErrIndexOutOfRange,
				apperr.Field("passengers", "index %d out of range [0,%d)", c.Index, len(next)))
		}
		if !c.Seat.IsZero() {
			if !t.layout.Contains(c.Seat, t.coaches) {
				return apperr.Validation(ErrSeatNotInLayout, seatField(c.Index, "seat %s does not exist", c.Seat))
			}
			if t.IsOccupied(c.Seat) && t.assigned[c.Index] != c.Seat {
				return apperr.Validation(ErrSeatOccupied, seatField(c.Index, "seat %s is occupied", c.Seat))
			}
		}
		next[c.Index] = c.Seat
	}

	if err := checkUnique(next); err != nil {
		return err
	}
	t.assigned = next
	return nil
}

// Reorder rebuilds the slot list from old positions: slot i keeps the seat of
// old slot from[i], or starts empty when from[i] is negative. Old slots not
// listed are dropped with their seats. from must not repeat an index.
func (t *Tracker) Reorder(from []int) {
	next := make([]models.SeatLabel, len(from))
	for i, j := range from {
		if j >= 0 && j < len(t.assigned) {
			next[i] = t.assigned[j]
		}
	}
	t.assigned = next
}

// SetOccupied replaces the set of seats taken by other bookings. Passengers
// sitting on a newly occupied seat lose it; their indexes are returned.
func (t *Tracker) SetOccupied(labels []models.SeatLabel) []int {
	t.occupied = make(map[models.SeatLabel]struct{}, len(labels))
	return t.MarkOccupied(labels...)
}

// MarkOccupied adds seats to the occupied set, clearing any passenger on them.
func (t *Tracker) MarkOccupied(labels ...models.SeatLabel) []int {
	var cleared []int
	for _, l := range labels {
		if l.IsZero() {
			continue
		}
		t.occupied[l] = struct{}{}
		if i, ok := t.HolderOf(l); ok {
			t.assigned[i] = models.SeatLabel{}
			cleared = append(cleared, i)
		}
	}
	return cleared
}

// Release removes seats from the occupied set.
func (t *Tracker) Release(labels ...models.SeatLabel) {
	for _, l := range labels {
		delete(t.occupied, l)
	}
}

// Validate checks the current assignment: unique, inside the layout and not
// occupied by another booking.
func (t *Tracker) Validate() error {
	for i, l := range t.assigned {
		if l.IsZero() {
			continue
		}
		if !t.layout.Contains(l, t.coaches) {
			return apperr.Validation(ErrSeatNotInLayout, seatField(i, "seat %s does not exist", l))
		}
		if t.IsOccupied(l) {
			return apperr.Validation(ErrSeatOccupied, seatField(i, "seat %s is occupied", l))
		}
	}
	return checkUnique(t.assigned)
}

func checkUnique(assigned []models.SeatLabel) error {
	seen := make(map[models.SeatLabel]int, len(assigned))
	for i, l := range assigned {
		if l.IsZero() {
			continue
		}
		if first, ok := seen[l]; ok {
			return apperr.Validation(ErrSeatTaken,
				seatField(i, "seat %s is already assigned to passenger %d", l, first))
		}
		seen[l] = i
	}
	return nil
}

func seatField(i int, format string, args ...any) apperr.FieldError {
	return apperr.Field(fmt.Sprintf("passengers[%d].seat", i), format, args...)
}
