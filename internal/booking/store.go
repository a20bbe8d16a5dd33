// Package booking owns the state of one booking session.
//
// A Store is the only writer of its BookingState. Every operation clones the
// current state, applies its change to the clone, checks the invariants and
// then swaps the clone in under a single lock, so callers only ever observe
// states produced by one completed operation.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/pricing"
	"github.com/cx-tal-miterani/train-booking-system/internal/seatmap"
	"github.com/cx-tal-miterani/train-booking-system/internal/seats"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var (
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrIncomplete        = errors.New("step is incomplete")
	ErrNoSchedule        = errors.New("no schedule chosen")
	ErrStaleSnapshot     = errors.New("booking changed since it was read")
	ErrInvariant         = errors.New("booking invariant violated")
)

// Listener receives a copy of the state after every commit, in commit order.
type Listener func(models.BookingState)

type Option func(*Store)

// WithClock sets the time source used for default search dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLayoutCache shares a seat layout cache between stores.
func WithLayoutCache(c *seatmap.Cache) Option {
	return func(s *Store) { s.layouts = c }
}

func WithValidator(v *validator.Validate) Option {
	return func(s *Store) { s.validate = v }
}

type Store struct {
	mu       sync.Mutex
	state    models.BookingState
	tracker  *seats.Tracker
	layouts  *seatmap.Cache
	validate *validator.Validate
	now      func() time.Time

	notifyMu   sync.Mutex
	listeners  []Listener
	pending    []models.BookingState
	delivering bool
}

// NewStore returns a store in the SEARCH step with default criteria.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.layouts == nil {
		s.layouts = seatmap.NewCache()
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	s.state = s.initialState()
	return s
}

func (s *Store) initialState() models.BookingState {
	return models.BookingState{
		Step:       models.StepSearch,
		Criteria:   DefaultCriteria(s.now()),
		Passengers: []models.PassengerSlot{},
	}
}

// DefaultCriteria is the search form a fresh session starts with: today, one adult.
func DefaultCriteria(now time.Time) models.SearchCriteria {
	return models.SearchCriteria{
		Date:       now.Format(models.DateLayout),
		Passengers: models.PassengerCounts{Adults: 1},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() models.BookingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers a listener for committed states.
func (s *Store) Subscribe(l Listener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// update runs fn against a private copy of the state and commits the result
// if fn and the invariant check succeed. Nothing is changed on error.
func (s *Store) update(fn func(next *models.BookingState, tr **seats.Tracker) error) error {
	s.mu.Lock()

	next := s.state.Clone()
	var tr *seats.Tracker
	if s.tracker != nil {
		tr = s.tracker.Clone()
	}

	if err := fn(&next, &tr); err != nil {
		s.mu.Unlock()
		return err
	}

	syncSeats(&next, tr)
	next.Total = pricing.ComputeTotal(next.Passengers)
	if err := CheckInvariants(next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.Version = s.state.Version + 1

	s.state = next
	s.tracker = tr

	s.notifyMu.Lock()
	s.pending = append(s.pending, next.Clone())
	s.notifyMu.Unlock()
	s.mu.Unlock()

	s.deliver()
	return nil
}

// deliver drains queued snapshots to listeners. A listener that calls back
// into the store queues its own commit behind the one being delivered.
func (s *Store) deliver() {
	s.notifyMu.Lock()
	if s.delivering {
		s.notifyMu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		st := s.pending[0]
		s.pending = s.pending[1:]
		listeners := append([]Listener(nil), s.listeners...)
		s.notifyMu.Unlock()
		for _, l := range listeners {
			l(st)
		}
		s.notifyMu.Lock()
	}
	s.delivering = false
	s.notifyMu.Unlock()
}

func syncSeats(st *models.BookingState, tr *seats.Tracker) {
	if tr == nil {
		for i := range st.Passengers {
			st.Passengers[i].Seat = models.SeatLabel{}
		}
		return
	}
	for i := range st.Passengers {
		st.Passengers[i].Seat = tr.Seat(i)
	}
}

// CriteriaPatch carries the search fields to merge; nil fields are left alone.
type CriteriaPatch struct {
	Origin      *string `json:"origin,omitempty"`
	Destination *string `json:"destination,omitempty"`
	Date        *string `json:"date,omitempty"`
	RoundTrip   *bool   `json:"roundTrip,omitempty"`
	ReturnDate  *string `json:"returnDate,omitempty"`
	Adults      *int    `json:"adults,omitempty"`
	Children    *int    `json:"children,omitempty"`
	Infants     *int    `json:"infants,omitempty"`
}

// SetSearchCriteria merges the patch into the criteria. When a roster already
// exists and the passenger counts change, the roster is resized to match.
func (s *Store) SetSearchCriteria(p CriteriaPatch) error {
	return s.update(func(next *models.BookingState, tr **seats.Tracker) error {
		if next.Step >= models.StepPayment {
			return stepError("search criteria cannot change in step %s; go back first", next.Step)
		}

		c := next.Criteria
		if p.Origin != nil {
			c.Origin = strings.ToUpper(strings.TrimSpace(*p.Origin))
		}
		if p.Destination != nil {
			c.Destination = strings.ToUpper(strings.TrimSpace(*p.Destination))
		}
		if p.Date != nil {
			c.Date = strings.TrimSpace(*p.Date)
		}
		if p.RoundTrip != nil {
			c.RoundTrip = *p.RoundTrip
		}
		if p.ReturnDate != nil {
			c.ReturnDate = strings.TrimSpace(*p.ReturnDate)
		}
		if p.Adults != nil {
			c.Passengers.Adults = *p.Adults
		}
		if p.Children != nil {
			c.Passengers.Children = *p.Children
		}
		if p.Infants != nil {
			c.Passengers.Infants = *p.Infants
		}

		var fields []apperr.FieldError
		fields = append(fields, countFields(c.Passengers)...)
		fields = append(fields, dateFields(c)...)
		if len(fields) > 0 {
			return apperr.Validation(ErrIncomplete, fields...)
		}

		old := next.Criteria
		routeChanged := c.Origin != old.Origin || c.Destination != old.Destination ||
			c.Date != old.Date || c.RoundTrip != old.RoundTrip || c.ReturnDate != old.ReturnDate
		countsChanged := c.Passengers != old.Passengers
		next.Criteria = c

		if routeChanged {
			if next.Step == models.StepPassenger {
				return stepError("route and dates cannot change in step %s; go back first", next.Step)
			}
			// The old candidates no longer answer the criteria.
			next.Step = models.StepSearch
			next.Schedules = nil
			next.ChosenSchedule = nil
			next.Passengers = []models.PassengerSlot{}
			*tr = nil
			return nil
		}
		if countsChanged && next.ChosenSchedule != nil {
			return resizeRoster(next, *tr)
		}
		return nil
	})
}

// ResizePassengers changes the requested counts and resizes the roster.
func (s *Store) ResizePassengers(counts models.PassengerCounts) error {
	return s.SetSearchCriteria(CriteriaPatch{
		Adults:   &counts.Adults,
		Children: &counts.Children,
		Infants:  &counts.Infants,
	})
}

// resizeRoster re-derives the roster from the current counts. Slots stay
// grouped by type: each type keeps its first slots with name, identity and
// seat, a shrinking type loses its last slots and their seats, and a growing
// type gets new empty slots priced for it.
func resizeRoster(next *models.BookingState, tr *seats.Tracker) error {
	sched := next.ChosenSchedule
	types := next.Criteria.Passengers.Expand()
	if len(types) > sched.SeatsAvailable {
		return apperr.Validation(ErrIncomplete,
			apperr.Field("criteria.passengers", "only %d seats available on this schedule", sched.SeatsAvailable))
	}

	byType := make(map[models.PassengerType][]int)
	for i, p := range next.Passengers {
		byType[p.Type] = append(byType[p.Type], i)
	}

	roster := make([]models.PassengerSlot, len(types))
	from := make([]int, len(types))
	for i, typ := range types {
		if kept := byType[typ]; len(kept) > 0 {
			from[i] = kept[0]
			byType[typ] = kept[1:]
			roster[i] = next.Passengers[kept[0]]
			continue
		}
		price, err := pricing.ComputePrice(sched.BaseFare, typ)
		if err != nil {
			return err
		}
		from[i] = -1
		roster[i] = models.PassengerSlot{Type: typ, Price: price}
	}

	if tr != nil {
		tr.Reorder(from)
	}
	next.Passengers = roster
	return nil
}

// SetSchedules stores the result of a search run for criteria and moves a
// booking still on SEARCH to SELECT. The result is rejected with
// ErrStaleSnapshot when the criteria changed while the search ran.
func (s *Store) SetSchedules(criteria models.SearchCriteria, list []models.Schedule) error {
	return s.update(func(next *models.BookingState, _ **seats.Tracker) error {
		if next.Criteria != criteria {
			return fmt.Errorf("%w: search criteria changed while searching", ErrStaleSnapshot)
		}
		if next.Step > models.StepSelect {
			return stepError("search results only apply before a schedule is chosen")
		}
		next.Schedules = append([]models.Schedule(nil), list...)
		if next.Step == models.StepSearch {
			if fields := SearchFields(next.Criteria); len(fields) > 0 {
				return apperr.Validation(ErrIncomplete, fields...)
			}
			next.Step = models.StepSelect
		}
		return nil
	})
}

// SelectSchedule records the chosen schedule, builds one priced slot per
// requested passenger (adults, then children, then infants) and moves to the
// PASSENGER step. occupied are the seats already taken by other bookings;
// they are in place before any seat can be picked.
func (s *Store) SelectSchedule(schedule models.Schedule, occupied ...models.SeatLabel) error {
	return s.update(func(next *models.BookingState, tr **seats.Tracker) error {
		if next.Step != models.StepSelect {
			return stepError("a schedule can only be chosen in step %s", models.StepSelect)
		}
		if strings.TrimSpace(schedule.ID) == "" {
			return apperr.Validation(ErrNoSchedule, apperr.Field("schedule.id", "is required"))
		}
		if schedule.BaseFare < 0 {
			return apperr.Validation(pricing.ErrNegativeFare, apperr.Field("schedule.baseFare", "must not be negative"))
		}
		if fields := countFields(next.Criteria.Passengers); len(fields) > 0 {
			return apperr.Validation(ErrIncomplete, fields...)
		}

		types := next.Criteria.Passengers.Expand()
		if len(types) > schedule.SeatsAvailable {
			return apperr.Validation(ErrIncomplete,
				apperr.Field("criteria.passengers", "only %d seats available on this schedule", schedule.SeatsAvailable))
		}

		roster := make([]models.PassengerSlot, len(types))
		for i, typ := range types {
			price, err := pricing.ComputePrice(schedule.BaseFare, typ)
			if err != nil {
				return err
			}
			roster[i] = models.PassengerSlot{Type: typ, Price: price}
		}

		layout := seatmap.LayoutFor(schedule.Train.Category)
		*tr = seats.NewTracker(layout, layout.CoachCount(schedule.Train.Capacity), len(roster))
		(*tr).SetOccupied(occupied)

		chosen := schedule
		chosen.Train.Facilities = append([]string(nil), schedule.Train.Facilities...)
		next.ChosenSchedule = &chosen
		next.Passengers = roster
		next.Order = nil
		next.Step = models.StepPassenger
		return nil
	})
}

// PassengerPatch carries the slot fields to merge; nil fields are left alone.
// A zero Seat clears the slot's seat.
type PassengerPatch struct {
	Name           *string           `json:"name,omitempty"`
	IdentityNumber *string           `json:"identityNumber,omitempty"`
	Seat           *models.SeatLabel `json:"seat,omitempty"`
}

// UpdatePassenger changes one slot. An index outside the roster is reported
// as a validation error.
func (s *Store) UpdatePassenger(index int, p PassengerPatch) error {
	return s.update(func(next *models.BookingState, tr **seats.Tracker) error {
		if next.Step != models.StepPassenger {
			return stepError("passengers can only be edited in step %s", models.StepPassenger)
		}
		if index < 0 || index >= len(next.Passengers) {
			return apperr.Validation(seats.ErrIndexOutOfRange,
				apperr.Field("passengers", "index %d out of range [0,%d)", index, len(next.Passengers)))
		}

		slot := &next.Passengers[index]
		if p.Name != nil {
			slot.Name = *p.Name
		}
		if p.IdentityNumber != nil {
			slot.IdentityNumber = *p.IdentityNumber
		}
		if p.Seat != nil {
			return (*tr).Apply(seats.Change{Index: index, Seat: *p.Seat})
		}
		return nil
	})
}

// PickSeats applies seat changes as one commit; see seats.Tracker.Apply.
func (s *Store) PickSeats(changes ...seats.Change) error {
	return s.update(func(next *models.BookingState, tr **seats.Tracker) error {
		if next.Step != models.StepPassenger {
			return stepError("seats can only be picked in step %s", models.StepPassenger)
		}
		return (*tr).Apply(changes...)
	})
}

// ClearSeat removes the seat of one passenger.
func (s *Store) ClearSeat(index int) error {
	return s.PickSeats(seats.Change{Index: index})
}

// SetOccupied replaces the set of seats taken by other bookings and returns
// the passengers that lost their seat. A booking waiting in PAYMENT whose seat
// is taken falls back to PASSENGER so the seat can be repicked.
func (s *Store) SetOccupied(labels []models.SeatLabel) ([]int, error) {
	return s.occupy(func(tr *seats.Tracker) []int { return tr.SetOccupied(labels) })
}

// MarkOccupied adds seats to the occupied set; see SetOccupied.
func (s *Store) MarkOccupied(labels ...models.SeatLabel) ([]int, error) {
	return s.occupy(func(tr *seats.Tracker) []int { return tr.MarkOccupied(labels...) })
}

func (s *Store) occupy(apply func(*seats.Tracker) []int) ([]int, error) {
	var cleared []int
	err := s.update(func(next *models.BookingState, tr **seats.Tracker) error {
		if *tr == nil || next.Step == models.StepConfirmation {
			return nil
		}
		cleared = apply(*tr)
		if len(cleared) > 0 && next.Step == models.StepPayment {
			next.Step = models.StepPassenger
			next.Order = nil
		}
		return nil
	})
	return cleared, err
}

// ContactPatch carries the contact fields to merge; nil fields are left alone.
type ContactPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func (s *Store) SetContactInfo(p ContactPatch) error {
	return s.update(func(next *models.BookingState, _ **seats.Tracker) error {
		if next.Step >= models.StepPayment {
			return stepError("contact cannot change in step %s; go back first", next.Step)
		}
		if p.Name != nil {
			next.Contact.Name = strings.TrimSpace(*p.Name)
		}
		if p.Email != nil {
			next.Contact.Email = strings.TrimSpace(*p.Email)
		}
		if p.Phone != nil {
			next.Contact.Phone = strings.TrimSpace(*p.Phone)
		}
		return nil
	})
}

// AdvanceStep moves to the next step if the current step is complete. A
// failing predicate returns a ValidationError naming the incomplete fields.
func (s *Store) AdvanceStep(to models.Step) error {
	return s.update(func(next *models.BookingState, _ **seats.Tracker) error {
		if next.Step == models.StepConfirmation || to != next.Step.Next() {
			return stepError("cannot advance from %s to %s", next.Step, to)
		}
		if fields := MissingFields(*next, s.validate); len(fields) > 0 {
			return apperr.Validation(ErrIncomplete, fields...)
		}
		next.Step = to
		return nil
	})
}

// GoBack returns to an earlier step keeping everything entered so far. An
// order submitted from PAYMENT is forgotten; the caller cancels it.
func (s *Store) GoBack(to models.Step) error {
	return s.update(func(next *models.BookingState, _ **seats.Tracker) error {
		if next.Step == models.StepConfirmation {
			return stepError("a confirmed booking can only be reset")
		}
		if !to.Valid() || to >= next.Step {
			return stepError("cannot go back from %s to %s", next.Step, to)
		}
		if next.Step == models.StepPayment {
			next.Order = nil
		}
		next.Step = to
		return nil
	})
}

// RecordOrder stores the receipt of a submission made from the state with
// the given version. It fails with ErrStaleSnapshot if the booking changed
// in the meantime.
func (s *Store) RecordOrder(version uint64, receipt models.OrderReceipt) error {
	return s.update(func(next *models.BookingState, _ **seats.Tracker) error {
		if next.Version != version {
			return ErrStaleSnapshot
		}
		if next.Step != models.StepPayment {
			return stepError("orders can only be recorded in step %s", models.StepPayment)
		}
		r := receipt
		next.Order = &r
		return nil
	})
}

// UpdatePaymentStatus records the payment outcome of the current order. A
// paid order moves the booking to CONFIRMATION.
func (s *Store) UpdatePaymentStatus(orderID string, status models.TransactionStatus, confirmationCode string) error {
	return s.update(func(next *models.BookingState, _ **seats.Tracker) error {
		if next.Order == nil || next.Order.OrderID != orderID {
			return apperr.NotFoundError{Resource: "order", ID: orderID}
		}
		next.Order.Status = status
		if confirmationCode != "" {
			next.Order.ConfirmationCode = confirmationCode
		}
		if status == models.TransactionPaid && next.Step == models.StepPayment {
			next.Step = models.StepConfirmation
		}
		return nil
	})
}

// Reset discards everything and starts over at SEARCH with default criteria.
func (s *Store) Reset() error {
	return s.update(func(next *models.BookingState, tr **seats.Tracker) error {
		*next = s.initialState()
		*tr = nil
		return nil
	})
}

func stepError(format string, args ...any) error {
	return apperr.Validation(ErrInvalidTransition, apperr.Field("step", format, args...))
}
