// Package activities holds the side effects of the order workflow: the
// order record, seat holds, the payment check, the final booking and the
// confirmation event.
package activities

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/database"
	"github.com/cx-tal-miterani/train-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/train-booking-system/internal/notify"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

const (
	DefaultPaymentFailureRate = 0.15
	DefaultPaymentDelay       = 500 * time.Millisecond
)

// Activity names as registered on the worker.
const (
	RecordOrderName       = "RecordOrder"
	ReserveSeatsName      = "ReserveSeats"
	ReleaseSeatsName      = "ReleaseSeats"
	ValidatePaymentName   = "ValidatePayment"
	ConfirmBookingName    = "ConfirmBooking"
	UpdateOrderStatusName = "UpdateOrderStatus"
	SendConfirmationName  = "SendConfirmation"
)

// OrderStore persists orders and booked seats.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, failureReason string) error
	UpdateOrderPayment(ctx context.Context, id string, attempts int, failureReason string) error
	ConfirmOrder(ctx context.Context, id, confirmationCode string) error
}

type Option func(*Activities)

// WithPaymentFailureRate sets the share of well formed payment codes the
// simulated provider declines.
func WithPaymentFailureRate(rate float64) Option {
	return func(a *Activities) { a.failureRate = rate }
}

func WithPaymentDelay(d time.Duration) Option {
	return func(a *Activities) { a.delay = d }
}

// WithRandSource makes the simulated declines reproducible.
func WithRandSource(src rand.Source) Option {
	return func(a *Activities) { a.rnd = rand.New(src) }
}

func WithClock(now func() time.Time) Option {
	return func(a *Activities) { a.now = now }
}

type Activities struct {
	store     OrderStore
	holder    inventory.Holder
	publisher notify.Publisher

	failureRate float64
	delay       time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

func New(store OrderStore, holder inventory.Holder, publisher notify.Publisher, opts ...Option) *Activities {
	a := &Activities{
		store:       store,
		holder:      holder,
		publisher:   publisher,
		failureRate: DefaultPaymentFailureRate,
		delay:       DefaultPaymentDelay,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordOrder stores the submitted order as pending. A retried call that
// finds the order already stored succeeds.
func (a *Activities) RecordOrder(ctx context.Context, in models.OrderWorkflowInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Recording order", "orderID", in.OrderID, "scheduleID", in.ScheduleID)

	now := a.now()
	order := &models.Order{
		ID:          in.OrderID,
		ScheduleID:  in.ScheduleID,
		UserID:      in.UserID,
		Contact:     in.Contact,
		Passengers:  in.Passengers,
		Status:      models.OrderStatusPending,
		TotalAmount: in.TotalAmount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, database.ErrOrderExists) {
			logger.Info("Order already recorded", "orderID", in.OrderID)
			return nil
		}
		return fmt.Errorf("record order %s: %w", in.OrderID, err)
	}
	return nil
}

// ReserveSeats holds the order's seats. Seats held by another order come
// back in the result rather than as an error so the workflow can fail the
// order without retrying.
func (a *Activities) ReserveSeats(ctx context.Context, in models.ReserveSeatsInput) (*models.ReserveSeatsResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Reserving seats", "orderID", in.OrderID, "seats", models.SeatStrings(in.Seats))

	ttl := in.HoldFor
	if ttl <= 0 {
		ttl = inventory.DefaultHoldDuration
	}

	expiry, err := a.holder.Hold(ctx, in.ScheduleID, in.OrderID, in.Seats, ttl)
	if err != nil {
		if apperr.IsConflict(err) {
			conflicts := apperr.ConflictingSeats(err)
			logger.Warn("Seats not available", "orderID", in.OrderID, "conflicts", models.SeatStrings(conflicts))
			return &models.ReserveSeatsResult{
				Success:   false,
				Conflicts: conflicts,
				Error:     err.Error(),
			}, nil
		}
		return nil, err
	}

	logger.Info("Seats reserved successfully", "orderID", in.OrderID, "expiry", expiry)
	return &models.ReserveSeatsResult{
		Success:    true,
		Seats:      in.Seats,
		HoldExpiry: expiry,
	}, nil
}

// ReleaseSeats drops the order's holds. Releasing twice is harmless.
func (a *Activities) ReleaseSeats(ctx context.Context, in models.ReleaseSeatsInput) error {
	activity.GetLogger(ctx).Info("Releasing seats", "orderID", in.OrderID, "reason", in.Reason)
	return a.holder.Release(ctx, in.ScheduleID, in.OrderID)
}

// ValidatePayment checks the code format and asks the simulated provider.
func (a *Activities) ValidatePayment(ctx context.Context, in models.ValidatePaymentInput) (*models.ValidatePaymentResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Validating payment", "orderID", in.OrderID, "amount", in.Amount, "attempt", in.Attempt)

	if msg := checkPaymentCode(in.PaymentCode); msg != "" {
		return &models.ValidatePaymentResult{Success: false, Error: msg, CanRetry: false}, nil
	}

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if a.decline() {
		logger.Warn("Payment failed (simulated)", "orderID", in.OrderID)
		return &models.ValidatePaymentResult{
			Success:  false,
			Error:    "Payment declined by provider",
			CanRetry: true,
		}, nil
	}

	logger.Info("Payment validated successfully", "orderID", in.OrderID)
	return &models.ValidatePaymentResult{
		Success:       true,
		TransactionID: "TX-" + strings.ToUpper(uuid.NewString()[:8]),
	}, nil
}

func checkPaymentCode(code string) string {
	if len(code) != 5 {
		return "Payment code must be 5 digits"
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return "Payment code must contain only digits"
		}
	}
	return ""
}

func (a *Activities) decline() bool {
	a.rndMu.Lock()
	defer a.rndMu.Unlock()
	return a.rnd.Float64() < a.failureRate
}

// ConfirmBooking books the seats in the database and marks the order
// confirmed. Seats sold to someone else are reported in the result.
func (a *Activities) ConfirmBooking(ctx context.Context, in models.ConfirmBookingInput) (*models.ConfirmBookingResult, error) {
	logger := activity.GetLogger(ctx)
	orderID := in.Order.OrderID
	logger.Info("Confirming booking", "orderID", orderID, "seats", models.SeatStrings(in.Order.Seats()))

	code := ConfirmationCode(orderID)
	err := a.store.ConfirmOrder(ctx, orderID, code)
	switch {
	case err == nil:
	case apperr.IsConflict(err):
		conflicts := apperr.ConflictingSeats(err)
		logger.Warn("Seats already booked", "orderID", orderID, "conflicts", models.SeatStrings(conflicts))
		return &models.ConfirmBookingResult{Success: false, Conflicts: conflicts, Error: err.Error()}, nil
	case errors.Is(err, database.ErrOrderNotConfirmed), errors.Is(err, database.ErrNotFound):
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "OrderNotConfirmable", err)
	default:
		return nil, err
	}

	logger.Info("Booking confirmed", "orderID", orderID, "confirmation", code)
	return &models.ConfirmBookingResult{Success: true, ConfirmationCode: code}, nil
}

// ConfirmationCode derives a stable code from the order ID, so a retried
// confirmation writes the same value.
func ConfirmationCode(orderID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(orderID)).String()
	return "TRN-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}

// UpdateOrderStatus mirrors the workflow state into the order record.
func (a *Activities) UpdateOrderStatus(ctx context.Context, in models.UpdateOrderStatusInput) error {
	activity.GetLogger(ctx).Info("Updating order status", "orderID", in.OrderID, "status", in.Status)

	if in.PaymentAttempts > 0 {
		if err := a.store.UpdateOrderPayment(ctx, in.OrderID, in.PaymentAttempts, in.FailureReason); err != nil {
			return err
		}
	}
	err := a.store.UpdateOrderStatus(ctx, in.OrderID, in.Status, in.FailureReason)
	if errors.Is(err, database.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "OrderNotFound", err)
	}
	return err
}

// SendConfirmation publishes the outcome of the order.
func (a *Activities) SendConfirmation(ctx context.Context, in models.SendConfirmationInput) error {
	logger := activity.GetLogger(ctx)

	eventType := notify.EventBookingConfirmed
	if in.Status != models.OrderStatusConfirmed {
		eventType = notify.EventBookingFailed
	}
	err := a.publisher.Publish(ctx, notify.Event{
		ID:               uuid.NewString(),
		Type:             eventType,
		OrderID:          in.OrderID,
		ScheduleID:       in.ScheduleID,
		Contact:          in.Contact,
		Seats:            in.Seats,
		TotalAmount:      in.TotalAmount,
		ConfirmationCode: in.ConfirmationCode,
		Status:           in.Status,
		FailureReason:    in.FailureReason,
		OccurredAt:       a.now(),
	})
	if err != nil {
		logger.Error("Failed to send confirmation", "orderID", in.OrderID, "error", err)
		return err
	}
	logger.Info("Confirmation sent", "orderID", in.OrderID, "type", eventType)
	return nil
}
