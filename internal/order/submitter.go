package order

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/booking"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var (
	ErrNotInPayment = errors.New("booking is not in the payment step")
	ErrNoOrder      = errors.New("booking has no submitted order")
)

// Submitter sends finished bookings to a Gateway. The store is never
// locked while the gateway is called: the request is built from a snapshot
// and the receipt is only recorded if that snapshot is still current.
type Submitter struct {
	gw       Gateway
	validate *validator.Validate
	log      *logger.Logger
}

func NewSubmitter(gw Gateway, v *validator.Validate, log *logger.Logger) *Submitter {
	if v == nil {
		v = validator.New()
	}
	return &Submitter{gw: gw, validate: v, log: log}
}

// Submit sends the booking held by store and records the receipt. A booking
// that already carries a live order gets that order back. On a seat
// conflict the conflicting seats are marked occupied, which clears them
// from their passengers so they can be repicked.
func (s *Submitter) Submit(ctx context.Context, store *booking.Store, userID string) (models.OrderReceipt, error) {
	snap := store.Snapshot()
	if snap.Step != models.StepPayment {
		return models.OrderReceipt{}, apperr.Validation(ErrNotInPayment, apperr.Field("step", "orders can only be submitted in step %s", models.StepPayment))
	}
	if snap.Order != nil && snap.Order.Status == models.TransactionPending {
		return *snap.Order, nil
	}
	if err := booking.CheckInvariants(snap); err != nil {
		return models.OrderReceipt{}, apperr.Validation(err)
	}
	if fields := booking.OrderFields(snap, s.validate); len(fields) > 0 {
		return models.OrderReceipt{}, apperr.Validation(booking.ErrIncomplete, fields...)
	}

	req := BuildRequest(snap, userID)
	if err := s.validate.Struct(req); err != nil {
		return models.OrderReceipt{}, apperr.Validation(err)
	}

	receipt, err := s.gw.SubmitOrder(ctx, req)
	if err != nil {
		if seats := apperr.ConflictingSeats(err); len(seats) > 0 {
			cleared, markErr := store.MarkOccupied(seats...)
			if markErr != nil {
				s.log.WithSession(userID).WithError(markErr).Warn("Failed to mark conflicting seats")
			}
			s.log.WithSession(userID).Info("Order rejected, seats taken", "seats", models.SeatStrings(seats), "cleared_passengers", cleared)
		}
		return models.OrderReceipt{}, err
	}

	if err := store.RecordOrder(snap.Version, receipt); err != nil {
		// The booking changed while the order was in flight. Drop the order
		// so its seats are released, and let the caller submit again.
		if cancelErr := s.gw.CancelOrder(context.WithoutCancel(ctx), receipt.OrderID); cancelErr != nil {
			s.log.WithSession(userID).WithError(cancelErr).Warn("Failed to cancel superseded order", "order_id", receipt.OrderID)
		}
		return models.OrderReceipt{}, err
	}
	return receipt, nil
}

// Refresh asks the gateway for the payment status of the booking's order and
// records it. A paid order moves the booking to CONFIRMATION; seats lost to
// another booking are marked occupied.
func (s *Submitter) Refresh(ctx context.Context, store *booking.Store) (PaymentStatus, error) {
	snap := store.Snapshot()
	if snap.Order == nil {
		return PaymentStatus{}, apperr.NotFoundError{Resource: "order", Err: ErrNoOrder}
	}

	status, err := s.gw.CheckPaymentStatus(ctx, snap.Order.OrderID)
	if err != nil {
		return PaymentStatus{}, err
	}

	if err := store.UpdatePaymentStatus(snap.Order.OrderID, status.Status, status.ConfirmationCode); err != nil {
		return status, err
	}
	if len(status.ConflictingSeats) > 0 {
		if _, err := store.MarkOccupied(status.ConflictingSeats...); err != nil {
			return status, err
		}
	}
	return status, nil
}

// Cancel drops the booking's pending order.
func (s *Submitter) Cancel(ctx context.Context, store *booking.Store) error {
	snap := store.Snapshot()
	if snap.Order == nil {
		return apperr.NotFoundError{Resource: "order", Err: ErrNoOrder}
	}
	return s.gw.CancelOrder(ctx, snap.Order.OrderID)
}
