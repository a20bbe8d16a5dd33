package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cx-tal-miterani/train-booking-system/internal/activities"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

const (
	// SeatHoldDuration is how long seats are held while waiting for payment
	SeatHoldDuration = 15 * time.Minute
	// PaymentTimeout bounds a single payment validation
	PaymentTimeout = 10 * time.Second
	// MaxPaymentAttempts is the number of payment codes accepted before the order fails
	MaxPaymentAttempts = 3
)

// WorkflowID is the Temporal workflow ID used for an order.
func WorkflowID(orderID string) string {
	return "order-" + orderID
}

type orderRun struct {
	input  models.OrderWorkflowInput
	state  *models.OrderWorkflowState
	logger log.Logger
}

// OrderWorkflow holds the order's seats, waits for the payment callback and
// books the seats once the payment clears. It ends confirmed, failed,
// cancelled or expired; seats are released in every case.
func OrderWorkflow(ctx workflow.Context, input models.OrderWorkflowInput) (*models.OrderWorkflowState, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Order workflow started", "orderId", input.OrderID, "scheduleId", input.ScheduleID)

	holdFor := input.HoldFor
	if holdFor <= 0 {
		holdFor = SeatHoldDuration
	}
	maxAttempts := input.MaxPaymentAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxPaymentAttempts
	}

	run := &orderRun{
		input:  input,
		logger: logger,
		state: &models.OrderWorkflowState{
			OrderID:     input.OrderID,
			Status:      models.OrderStatusPending,
			Seats:       input.Seats(),
			TotalAmount: input.TotalAmount,
			LastUpdated: workflow.Now(ctx),
		},
	}

	if err := workflow.SetQueryHandler(ctx, models.QueryGetState, func() (*models.OrderWorkflowState, error) {
		return run.state, nil
	}); err != nil {
		return nil, err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	// Payment activity with shorter timeout and no automatic retries
	paymentCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: PaymentTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	if err := workflow.ExecuteActivity(ctx, activities.RecordOrderName, input).Get(ctx, nil); err != nil {
		logger.Error("Failed to record order", "error", err)
		run.set(ctx, models.OrderStatusFailed, models.FailureRecord)
		return run.state, err
	}

	var reserved models.ReserveSeatsResult
	err := workflow.ExecuteActivity(ctx, activities.ReserveSeatsName, models.ReserveSeatsInput{
		OrderID:    input.OrderID,
		ScheduleID: input.ScheduleID,
		Seats:      input.Seats(),
		HoldFor:    holdFor,
	}).Get(ctx, &reserved)
	if err != nil {
		logger.Error("Failed to reserve seats", "error", err)
		return run.finish(ctx, models.OrderStatusFailed, models.FailureReservation), nil
	}
	if !reserved.Success {
		logger.Info("Seats not available", "conflicts", models.SeatStrings(reserved.Conflicts))
		run.state.ConflictingSeats = reserved.Conflicts
		return run.finish(ctx, models.OrderStatusFailed, models.FailureSeatConflict), nil
	}

	run.state.SeatHoldExpiry = reserved.HoldExpiry
	run.set(ctx, models.OrderStatusAwaitingPayment, "")
	run.persist(ctx)

	paymentCh := workflow.GetSignalChannel(ctx, models.SignalSubmitPayment)
	cancelCh := workflow.GetSignalChannel(ctx, models.SignalCancelOrder)

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	holdTimer := workflow.NewTimer(timerCtx, holdFor)

	for !run.state.Status.Terminal() {
		selector := workflow.NewSelector(ctx)

		selector.AddReceive(paymentCh, func(c workflow.ReceiveChannel, more bool) {
			var signal models.SubmitPaymentSignal
			c.Receive(ctx, &signal)
			run.pay(ctx, paymentCtx, signal, maxAttempts)
		})

		selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
			var ignored interface{}
			c.Receive(ctx, &ignored)
			logger.Info("Order cancelled", "orderId", input.OrderID)
			run.set(ctx, models.OrderStatusCancelled, models.FailureCancelled)
		})

		selector.AddFuture(holdTimer, func(f workflow.Future) {
			if err := f.Get(ctx, nil); err != nil {
				var canceled *temporal.CanceledError
				if errors.As(err, &canceled) {
					run.set(ctx, models.OrderStatusCancelled, models.FailureCancelled)
				}
				return
			}
			logger.Info("Seat hold expired", "orderId", input.OrderID)
			run.set(ctx, models.OrderStatusExpired, models.FailureExpired)
		})

		selector.Select(ctx)

		if ctx.Err() != nil && !run.state.Status.Terminal() {
			run.set(ctx, models.OrderStatusCancelled, models.FailureCancelled)
		}
	}

	return run.finish(ctx, run.state.Status, run.state.FailureReason), nil
}

// pay validates one payment code and, when it clears, books the seats.
func (r *orderRun) pay(ctx, paymentCtx workflow.Context, signal models.SubmitPaymentSignal, maxAttempts int) {
	r.state.PaymentAttempts++
	r.logger.Info("Payment submitted", "attempt", r.state.PaymentAttempts, "maxAttempts", maxAttempts)
	r.set(ctx, models.OrderStatusProcessing, "")

	var result models.ValidatePaymentResult
	err := workflow.ExecuteActivity(paymentCtx, activities.ValidatePaymentName, models.ValidatePaymentInput{
		OrderID:     r.input.OrderID,
		PaymentCode: signal.PaymentCode,
		Amount:      r.input.TotalAmount,
		Attempt:     r.state.PaymentAttempts,
	}).Get(ctx, &result)
	if err != nil {
		r.logger.Error("Payment activity failed", "error", err)
		result = models.ValidatePaymentResult{Success: false, Error: err.Error(), CanRetry: true}
	}

	if !result.Success {
		r.logger.Info("Payment failed", "attempt", r.state.PaymentAttempts, "error", result.Error)
		if r.state.PaymentAttempts >= maxAttempts {
			r.set(ctx, models.OrderStatusFailed, models.FailurePaymentFailed)
			return
		}
		r.set(ctx, models.OrderStatusAwaitingPayment, result.Error)
		r.persist(ctx)
		return
	}

	var confirmed models.ConfirmBookingResult
	err = workflow.ExecuteActivity(ctx, activities.ConfirmBookingName, models.ConfirmBookingInput{
		Order: r.input,
	}).Get(ctx, &confirmed)
	if err != nil {
		r.logger.Error("Failed to confirm booking", "error", err)
		r.set(ctx, models.OrderStatusFailed, err.Error())
		return
	}
	if !confirmed.Success {
		r.state.ConflictingSeats = confirmed.Conflicts
		r.set(ctx, models.OrderStatusFailed, models.FailureSeatConflict)
		return
	}

	r.logger.Info("Booking confirmed", "confirmationCode", confirmed.ConfirmationCode)
	r.state.ConfirmationCode = confirmed.ConfirmationCode
	r.set(ctx, models.OrderStatusConfirmed, "")
}

func (r *orderRun) set(ctx workflow.Context, status models.OrderStatus, reason string) {
	r.state.Status = status
	r.state.FailureReason = reason
	r.state.LastUpdated = workflow.Now(ctx)
}

// persist mirrors the state into the order record. Failures only get logged.
func (r *orderRun) persist(ctx workflow.Context) {
	err := workflow.ExecuteActivity(ctx, activities.UpdateOrderStatusName, models.UpdateOrderStatusInput{
		OrderID:         r.input.OrderID,
		Status:          r.state.Status,
		FailureReason:   r.state.FailureReason,
		PaymentAttempts: r.state.PaymentAttempts,
	}).Get(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to update order status", "error", err)
	}
}

// finish releases the hold, records the final status and publishes the
// outcome. It runs on a disconnected context so it also completes after the
// workflow was cancelled.
func (r *orderRun) finish(ctx workflow.Context, status models.OrderStatus, reason string) *models.OrderWorkflowState {
	ctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()

	r.set(ctx, status, reason)

	err := workflow.ExecuteActivity(ctx, activities.ReleaseSeatsName, models.ReleaseSeatsInput{
		OrderID:    r.input.OrderID,
		ScheduleID: r.input.ScheduleID,
		Reason:     string(status),
	}).Get(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to release seats", "error", err)
	}

	r.persist(ctx)

	err = workflow.ExecuteActivity(ctx, activities.SendConfirmationName, models.SendConfirmationInput{
		OrderID:          r.input.OrderID,
		ScheduleID:       r.input.ScheduleID,
		Contact:          r.input.Contact,
		Seats:            r.state.Seats,
		TotalAmount:      r.input.TotalAmount,
		ConfirmationCode: r.state.ConfirmationCode,
		Status:           status,
		FailureReason:    reason,
	}).Get(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to send confirmation", "error", err)
	}

	r.logger.Info("Order workflow finished", "orderId", r.input.OrderID, "status", status)
	return r.state
}
