package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/workflows"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

const TaskQueue = "train-booking-queue"

// PaymentStatus is the gateway's view of an order's payment.
type PaymentStatus struct {
	OrderID          string                   `json:"orderId"`
	Status           models.TransactionStatus `json:"status"`
	OrderStatus      models.OrderStatus       `json:"orderStatus"`
	ConfirmationCode string                   `json:"confirmationCode,omitempty"`
	ConflictingSeats []models.SeatLabel       `json:"conflictingSeats,omitempty"`
	FailureReason    string                   `json:"failureReason,omitempty"`
	PaymentAttempts  int                      `json:"paymentAttempts"`
	SeatHoldExpiry   time.Time                `json:"seatHoldExpiry"`
}

// Gateway is the remote side of order submission.
type Gateway interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error)
	CheckPaymentStatus(ctx context.Context, orderID string) (PaymentStatus, error)
	CancelOrder(ctx context.Context, orderID string) error
}

type TemporalConfig struct {
	TaskQueue          string
	PaymentBaseURL     string
	HoldFor            time.Duration
	MaxPaymentAttempts int
	// SubmitWait bounds how long SubmitOrder waits for the seat hold outcome.
	SubmitWait   time.Duration
	PollInterval time.Duration
}

// TemporalGateway runs every order as an OrderWorkflow.
type TemporalGateway struct {
	client client.Client
	cfg    TemporalConfig
	newID  func() string
}

func NewTemporalGateway(c client.Client, cfg TemporalConfig) *TemporalGateway {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = TaskQueue
	}
	if cfg.SubmitWait <= 0 {
		cfg.SubmitWait = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &TemporalGateway{client: c, cfg: cfg, newID: uuid.NewString}
}

// PaymentRedirect is where the user is sent to pay for an order.
func (g *TemporalGateway) PaymentRedirect(orderID string) string {
	return strings.TrimRight(g.cfg.PaymentBaseURL, "/") + "/" + orderID
}

// SubmitOrder starts the order workflow and waits briefly for the seat hold,
// so a seat taken by another booking is reported right away as a
// ConflictError.
func (g *TemporalGateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	orderID := g.newID()
	input := WorkflowInput(orderID, req)
	input.HoldFor = g.cfg.HoldFor
	input.MaxPaymentAttempts = g.cfg.MaxPaymentAttempts

	opts := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(orderID),
		TaskQueue: g.cfg.TaskQueue,
	}
	if _, err := g.client.ExecuteWorkflow(ctx, opts, workflows.OrderWorkflow, input); err != nil {
		return models.OrderReceipt{}, apperr.TransportError{Op: "submit order", Err: fmt.Errorf("failed to start workflow: %w", err)}
	}

	receipt := models.OrderReceipt{
		OrderID:         orderID,
		PaymentRedirect: g.PaymentRedirect(orderID),
		Status:          models.TransactionPending,
	}

	state, ok := g.awaitHold(ctx, orderID)
	if !ok {
		return receipt, nil
	}
	if state.Status == models.OrderStatusFailed {
		if state.FailureReason == models.FailureSeatConflict {
			return models.OrderReceipt{}, apperr.ConflictError{
				Resource: "seats",
				Seats:    state.ConflictingSeats,
				Msg:      "are no longer available",
			}
		}
		return models.OrderReceipt{}, apperr.TransportError{Op: "submit order", Err: fmt.Errorf("order %s failed: %s", orderID, state.FailureReason)}
	}
	receipt.Status = state.Status.TransactionStatus()
	return receipt, nil
}

// awaitHold polls the workflow until it left the pending state. It gives up
// quietly after SubmitWait.
func (g *TemporalGateway) awaitHold(ctx context.Context, orderID string) (models.OrderWorkflowState, bool) {
	deadline := time.NewTimer(g.cfg.SubmitWait)
	defer deadline.Stop()
	tick := time.NewTicker(g.cfg.PollInterval)
	defer tick.Stop()

	for {
		state, err := g.query(ctx, orderID)
		if err == nil && state.Status != models.OrderStatusPending {
			return state, true
		}
		select {
		case <-ctx.Done():
			return models.OrderWorkflowState{}, false
		case <-deadline.C:
			return models.OrderWorkflowState{}, false
		case <-tick.C:
		}
	}
}

func (g *TemporalGateway) query(ctx context.Context, orderID string) (models.OrderWorkflowState, error) {
	var state models.OrderWorkflowState
	response, err := g.client.QueryWorkflow(ctx, workflows.WorkflowID(orderID), "", models.QueryGetState)
	if err != nil {
		return state, fmt.Errorf("failed to query workflow: %w", err)
	}
	if err := response.Get(&state); err != nil {
		return state, fmt.Errorf("failed to decode workflow state: %w", err)
	}
	return state, nil
}

func (g *TemporalGateway) CheckPaymentStatus(ctx context.Context, orderID string) (PaymentStatus, error) {
	state, err := g.query(ctx, orderID)
	if err != nil {
		return PaymentStatus{}, apperr.TransportError{Op: "check payment status", Err: err}
	}
	return PaymentStatus{
		OrderID:          orderID,
		Status:           state.Status.TransactionStatus(),
		OrderStatus:      state.Status,
		ConfirmationCode: state.ConfirmationCode,
		ConflictingSeats: state.ConflictingSeats,
		FailureReason:    state.FailureReason,
		PaymentAttempts:  state.PaymentAttempts,
		SeatHoldExpiry:   state.SeatHoldExpiry,
	}, nil
}

// SubmitPayment forwards a payment callback to the order workflow.
func (g *TemporalGateway) SubmitPayment(ctx context.Context, orderID, paymentCode string) error {
	signal := models.SubmitPaymentSignal{PaymentCode: paymentCode}
	if err := g.client.SignalWorkflow(ctx, workflows.WorkflowID(orderID), "", models.SignalSubmitPayment, signal); err != nil {
		return apperr.TransportError{Op: "submit payment", Err: err}
	}
	return nil
}

func (g *TemporalGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.client.SignalWorkflow(ctx, workflows.WorkflowID(orderID), "", models.SignalCancelOrder, nil); err != nil {
		return apperr.TransportError{Op: "cancel order", Err: err}
	}
	return nil
}
