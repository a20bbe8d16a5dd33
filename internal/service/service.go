// Package service hosts booking sessions and exposes them to the HTTP layer.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/booking"
	"github.com/cx-tal-miterani/train-booking-system/internal/catalog"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/order"
	"github.com/cx-tal-miterani/train-booking-system/internal/seatmap"
	"github.com/cx-tal-miterani/train-booking-system/internal/seats"
	"github.com/cx-tal-miterani/train-booking-system/internal/ticket"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// Seat update statuses sent to websocket watchers
const (
	SeatStatusHeld     = "held"
	SeatStatusBooked   = "booked"
	SeatStatusReleased = "available"
)

// SessionView is what clients see of a session.
type SessionView struct {
	ID        string              `json:"id"`
	State     models.BookingState `json:"state"`
	Missing   []apperr.FieldError `json:"missing,omitempty"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// BookingService defines the booking service interface
type BookingService interface {
	ListStations(ctx context.Context) ([]models.Station, error)
	FindSchedules(ctx context.Context, q catalog.Query) ([]models.Schedule, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	SeatOccupancy(ctx context.Context, scheduleID string) ([]models.SeatLabel, error)

	CreateSession(ctx context.Context) (*SessionView, error)
	GetSession(ctx context.Context, id string) (*SessionView, error)
	DeleteSession(ctx context.Context, id string) error

	UpdateCriteria(ctx context.Context, id string, patch booking.CriteriaPatch) (*SessionView, error)
	Search(ctx context.Context, id string) (*SessionView, error)
	SelectSchedule(ctx context.Context, id, scheduleID string) (*SessionView, error)
	UpdatePassenger(ctx context.Context, id string, index int, patch booking.PassengerPatch) (*SessionView, error)
	ResizePassengers(ctx context.Context, id string, counts models.PassengerCounts) (*SessionView, error)
	PickSeats(ctx context.Context, id string, changes []seats.Change) (*SessionView, error)
	ClearSeat(ctx context.Context, id string, index int) (*SessionView, error)
	SeatMap(ctx context.Context, id string) (*booking.SeatMap, error)
	UpdateContact(ctx context.Context, id string, patch booking.ContactPatch) (*SessionView, error)
	Advance(ctx context.Context, id string, to models.Step) (*SessionView, error)
	GoBack(ctx context.Context, id string, to models.Step) (*SessionView, error)
	Reset(ctx context.Context, id string) (*SessionView, error)

	SubmitOrder(ctx context.Context, id string) (*SessionView, error)
	PaymentStatus(ctx context.Context, id string) (*order.PaymentStatus, error)
	Ticket(ctx context.Context, id string) ([]byte, error)

	PaymentCallback(ctx context.Context, orderID, paymentCode string) error
	CancelPayment(ctx context.Context, orderID string) error
}

// OrderGateway is the order side the service drives.
type OrderGateway interface {
	order.Gateway
	SubmitPayment(ctx context.Context, orderID, paymentCode string) error
}

// SeatBroadcaster tells watchers of a schedule that seats changed hands.
type SeatBroadcaster interface {
	BroadcastSeatUpdate(scheduleID, orderID string, seats []models.SeatLabel, status string)
}

type Options struct {
	SessionTTL     time.Duration
	SearchDebounce time.Duration
	Location       *time.Location
	Now            func() time.Time
}

// Service implements BookingService over in-memory sessions.
type Service struct {
	catalog   catalog.Gateway
	occupancy *catalog.Occupancy
	orders    OrderGateway
	submitter *order.Submitter
	hub       SeatBroadcaster
	log       *logger.Logger

	validate *validator.Validate
	layouts  *seatmap.Cache
	sessions *registry
	opts     Options
}

// NewBookingService creates a new BookingService
func NewBookingService(gw catalog.Gateway, occ *catalog.Occupancy, orders OrderGateway, hub SeatBroadcaster, log *logger.Logger, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v := validator.New()
	return &Service{
		catalog:   gw,
		occupancy: occ,
		orders:    orders,
		submitter: order.NewSubmitter(orders, v, log),
		hub:       hub,
		log:       log,
		validate:  v,
		layouts:   seatmap.NewCache(),
		sessions:  newRegistry(),
		opts:      opts,
	}
}

var _ BookingService = (*Service)(nil)

func (s *Service) ListStations(ctx context.Context) ([]models.Station, error) {
	return s.catalog.ListStations(ctx)
}

func (s *Service) FindSchedules(ctx context.Context, q catalog.Query) ([]models.Schedule, error) {
	return s.catalog.FindSchedules(ctx, q)
}

func (s *Service) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	return s.catalog.ListTickets(ctx)
}

func (s *Service) SeatOccupancy(ctx context.Context, scheduleID string) ([]models.SeatLabel, error) {
	return s.occupancy.Seats(ctx, scheduleID)
}

func (s *Service) CreateSession(ctx context.Context) (*SessionView, error) {
	now := s.opts.Now()
	sess := &session{
		id: uuid.NewString(),
		store: booking.NewStore(
			booking.WithClock(func() time.Time { return s.opts.Now().In(s.opts.Location) }),
			booking.WithLayoutCache(s.layouts),
			booking.WithValidator(s.validate),
		),
		searcher: catalog.NewSearcher(s.catalog, s.opts.SearchDebounce),
		lastSeen: now,
	}

	last := sess.store.Snapshot().Step
	sess.store.Subscribe(func(st models.BookingState) {
		if st.Step != last {
			s.log.LogStepAdvanced(sess.id, last, st.Step)
			last = st.Step
		}
	})

	s.sessions.add(sess)
	s.log.LogSessionCreated(sess.id)
	return s.view(sess), nil
}

func (s *Service) session(id string) (*session, error) {
	sess, ok := s.sessions.get(id)
	if !ok {
		return nil, apperr.NotFoundError{Resource: "session", ID: id}
	}
	sess.touch(s.opts.Now())
	return sess, nil
}

func (s *Service) view(sess *session) *SessionView {
	st := sess.store.Snapshot()
	return &SessionView{
		ID:        sess.id,
		State:     st,
		Missing:   booking.MissingFields(st, s.validate),
		ExpiresAt: sess.idleSince().Add(s.opts.SessionTTL),
	}
}

// apply runs one store operation and returns the resulting view.
func (s *Service) apply(id string, op func(*session) error) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := op(sess); err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*SessionView, error) {
	return s.apply(id, func(*session) error { return nil })
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	sess, ok := s.sessions.remove(id)
	if !ok {
		return apperr.NotFoundError{Resource: "session", ID: id}
	}
	s.dropOrder(ctx, sess)
	return nil
}

// dropOrder cancels a pending order of a session going away.
func (s *Service) dropOrder(ctx context.Context, sess *session) {
	if err := s.cancelPending(ctx, sess); err != nil {
		s.log.WithSession(sess.id).WithError(err).Warn("Failed to cancel order of closed session")
	}
}

// cancelPending cancels the session's pending order, if any, and keeps its
// seats counted as the session's own until the hold is released.
func (s *Service) cancelPending(ctx context.Context, sess *session) error {
	o := sess.store.Snapshot().Order
	if o == nil || o.Status != models.TransactionPending {
		return nil
	}
	if err := s.orders.CancelOrder(ctx, o.OrderID); err != nil {
		return err
	}
	sess.abandon(o.OrderID)
	return nil
}

func (s *Service) UpdateCriteria(ctx context.Context, id string, patch booking.CriteriaPatch) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.SetSearchCriteria(patch) })
}

// Search runs the latest-only schedule search for the session's criteria and
// moves a booking still on SEARCH to SELECT. A result that arrives after the
// criteria changed is dropped with booking.ErrStaleSnapshot.
func (s *Service) Search(ctx context.Context, id string) (*SessionView, error) {
	return s.apply(id, func(sess *session) error {
		st := sess.store.Snapshot()
		if st.Step > models.StepSelect {
			return apperr.Validation(booking.ErrInvalidTransition, apperr.Field("step", "search is only possible before a schedule is chosen; go back first"))
		}
		if fields := booking.SearchFields(st.Criteria); len(fields) > 0 {
			return apperr.Validation(booking.ErrIncomplete, fields...)
		}

		list, err := sess.searcher.Search(ctx, catalog.QueryFor(st.Criteria))
		if err != nil {
			return err
		}
		return sess.store.SetSchedules(st.Criteria, list)
	})
}

// SelectSchedule loads the schedule fresh, so the seats-available check uses
// current numbers, and commits it together with its occupancy.
func (s *Service) SelectSchedule(ctx context.Context, id, scheduleID string) (*SessionView, error) {
	return s.apply(id, func(sess *session) error {
		sc, err := s.catalog.GetSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		occupied, err := s.occupancy.Seats(ctx, sc.ID, sess.ownOrders()...)
		if err != nil {
			return err
		}
		return sess.store.SelectSchedule(sc, occupied...)
	})
}

func (s *Service) UpdatePassenger(ctx context.Context, id string, index int, patch booking.PassengerPatch) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.UpdatePassenger(index, patch) })
}

func (s *Service) ResizePassengers(ctx context.Context, id string, counts models.PassengerCounts) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.ResizePassengers(counts) })
}

func (s *Service) PickSeats(ctx context.Context, id string, changes []seats.Change) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.PickSeats(changes...) })
}

func (s *Service) ClearSeat(ctx context.Context, id string, index int) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.ClearSeat(index) })
}

// SeatMap refreshes occupancy and returns the seat map of the chosen schedule.
func (s *Service) SeatMap(ctx context.Context, id string) (*booking.SeatMap, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := s.refreshOccupancy(ctx, sess); err != nil {
		return nil, err
	}
	m, ok := sess.store.SeatMap()
	if !ok {
		return nil, apperr.NotFoundError{Resource: "seat map", Err: booking.ErrNoSchedule}
	}
	return &m, nil
}

func (s *Service) UpdateContact(ctx context.Context, id string, patch booking.ContactPatch) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.SetContactInfo(patch) })
}

func (s *Service) Advance(ctx context.Context, id string, to models.Step) (*SessionView, error) {
	return s.apply(id, func(sess *session) error { return sess.store.AdvanceStep(to) })
}

// GoBack returns to an earlier step. Leaving PAYMENT cancels the pending
// order first; if that fails the booking stays where it is.
func (s *Service) GoBack(ctx context.Context, id string, to models.Step) (*SessionView, error) {
	return s.apply(id, func(sess *session) error {
		if sess.store.Snapshot().Step == models.StepPayment && to.Valid() && to < models.StepPayment {
			if err := s.cancelPending(ctx, sess); err != nil {
				return err
			}
		}
		return sess.store.GoBack(to)
	})
}

func (s *Service) Reset(ctx context.Context, id string) (*SessionView, error) {
	return s.apply(id, func(sess *session) error {
		s.dropOrder(ctx, sess)
		return sess.store.Reset()
	})
}

// SubmitOrder sends the booking to the order gateway and tells watchers of
// the schedule that its seats are now held.
func (s *Service) SubmitOrder(ctx context.Context, id string) (*SessionView, error) {
	return s.apply(id, func(sess *session) error {
		receipt, err := s.submitter.Submit(ctx, sess.store, sess.id)
		if err != nil {
			if apperr.IsConflict(err) {
				if rerr := s.refreshOccupancy(ctx, sess); rerr != nil {
					s.log.WithSession(sess.id).WithError(rerr).Warn("Failed to refresh occupancy after conflict")
				}
			}
			return err
		}
		st := sess.store.Snapshot()
		s.log.LogOrderSubmitted(sess.id, receipt, st.Total)
		s.broadcast(st, receipt.OrderID, SeatStatusHeld)
		return nil
	})
}

// PaymentStatus polls the order's payment and records it on the booking.
// When the order reaches a final state the schedule's watchers are told.
func (s *Service) PaymentStatus(ctx context.Context, id string) (*order.PaymentStatus, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	before := sess.store.Snapshot()

	status, err := s.submitter.Refresh(ctx, sess.store)
	if err != nil {
		return nil, err
	}

	if before.Order != nil && before.Order.Status != status.Status {
		switch status.Status {
		case models.TransactionPaid:
			s.broadcast(before, status.OrderID, SeatStatusBooked)
		case models.TransactionFailed, models.TransactionExpired, models.TransactionCancelled:
			s.broadcast(before, status.OrderID, SeatStatusReleased)
		}
	}
	return &status, nil
}

func (s *Service) Ticket(ctx context.Context, id string) ([]byte, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	out, err := ticket.Render(sess.store.Snapshot(), s.opts.Location)
	if errors.Is(err, ticket.ErrNotConfirmed) {
		return nil, apperr.Validation(err, apperr.Field("step", "tickets are only available in step %s", models.StepConfirmation))
	}
	return out, err
}

func (s *Service) PaymentCallback(ctx context.Context, orderID, paymentCode string) error {
	return s.orders.SubmitPayment(ctx, orderID, paymentCode)
}

func (s *Service) CancelPayment(ctx context.Context, orderID string) error {
	return s.orders.CancelOrder(ctx, orderID)
}

func (s *Service) broadcast(st models.BookingState, orderID, status string) {
	if s.hub == nil || st.ChosenSchedule == nil {
		return
	}
	labels := make([]models.SeatLabel, 0, len(st.Passengers))
	for _, p := range st.Passengers {
		if !p.Seat.IsZero() {
			labels = append(labels, p.Seat)
		}
	}
	s.hub.BroadcastSeatUpdate(st.ChosenSchedule.ID, orderID, labels, status)
}

// refreshOccupancy replaces the session's occupied seats with the current
// sold and held seats of its schedule.
func (s *Service) refreshOccupancy(ctx context.Context, sess *session) error {
	st := sess.store.Snapshot()
	if st.ChosenSchedule == nil || st.Step == models.StepConfirmation {
		return nil
	}
	occupied, err := s.occupancy.Seats(ctx, st.ChosenSchedule.ID, sess.ownOrders()...)
	if err != nil {
		return err
	}
	_, err = sess.store.SetOccupied(occupied)
	return err
}

// RefreshOccupancy updates every session booking the schedule. It is hooked
// to the websocket hub so seats taken elsewhere disappear from open bookings.
func (s *Service) RefreshOccupancy(ctx context.Context, scheduleID string) {
	for _, sess := range s.sessions.all() {
		st := sess.store.Snapshot()
		if st.ChosenSchedule == nil || st.ChosenSchedule.ID != scheduleID {
			continue
		}
		if err := s.refreshOccupancy(ctx, sess); err != nil {
			s.log.WithSession(sess.id).WithError(err).Warn("Failed to refresh occupancy", "schedule_id", scheduleID)
		}
	}
}

// Sweep drops sessions idle for longer than the session TTL and returns how
// many were removed.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.opts.Now()
	removed := 0
	for _, sess := range s.sessions.all() {
		idle := now.Sub(sess.idleSince())
		if idle <= s.opts.SessionTTL {
			continue
		}
		if _, ok := s.sessions.remove(sess.id); ok {
			s.dropOrder(ctx, sess)
			s.log.LogSessionExpired(sess.id, idle)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps idle sessions until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	return s.sessions.len()
}
