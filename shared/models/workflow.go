package models

import "time"

// OrderWorkflowInput represents input for the order workflow
type OrderWorkflowInput struct {
	OrderID     string           `json:"orderId"`
	ScheduleID  string           `json:"scheduleId"`
	UserID      string           `json:"userId"`
	Contact     Contact          `json:"contact"`
	Passengers  []OrderPassenger `json:"passengers"`
	TotalAmount Money            `json:"totalAmount"`

	// Zero values fall back to the workflow defaults.
	HoldFor            time.Duration `json:"holdFor,omitempty"`
	MaxPaymentAttempts int           `json:"maxPaymentAttempts,omitempty"`
}

// Seats returns the seat of every passenger in roster order.
func (in OrderWorkflowInput) Seats() []SeatLabel {
	seats := make([]SeatLabel, len(in.Passengers))
	for i, p := range in.Passengers {
		seats[i] = p.Seat
	}
	return seats
}

// OrderWorkflowState represents the current state of the order workflow
type OrderWorkflowState struct {
	OrderID          string      `json:"orderId"`
	Status           OrderStatus `json:"status"`
	Seats            []SeatLabel `json:"seats"`
	ConflictingSeats []SeatLabel `json:"conflictingSeats,omitempty"`
	SeatHoldExpiry   time.Time   `json:"seatHoldExpiry"`
	PaymentAttempts  int         `json:"paymentAttempts"`
	TotalAmount      Money       `json:"totalAmount"`
	ConfirmationCode string      `json:"confirmationCode,omitempty"`
	FailureReason    string      `json:"failureReason,omitempty"`
	LastUpdated      time.Time   `json:"lastUpdated"`
}

// Signals for workflow communication
const (
	SignalSubmitPayment = "submit_payment"
	SignalCancelOrder   = "cancel_order"
)

// SubmitPaymentSignal is sent when the payment gateway calls back with a code
type SubmitPaymentSignal struct {
	PaymentCode string `json:"paymentCode"`
}

// Queries for workflow state
const (
	QueryGetState = "get_state"
)

// Failure reasons recorded on the workflow state
const (
	FailureSeatConflict  = "seat_conflict"
	FailurePaymentFailed = "payment_failed"
	FailureExpired       = "expired"
	FailureCancelled     = "cancelled"
	FailureReservation   = "reservation_failed"
	FailureRecord        = "record_failed"
)

// Activity inputs and results

type ReserveSeatsInput struct {
	OrderID    string        `json:"orderId"`
	ScheduleID string        `json:"scheduleId"`
	Seats      []SeatLabel   `json:"seats"`
	HoldFor    time.Duration `json:"holdFor"`
}

type ReserveSeatsResult struct {
	Success    bool        `json:"success"`
	Seats      []SeatLabel `json:"seats"`
	Conflicts  []SeatLabel `json:"conflicts,omitempty"`
	HoldExpiry time.Time   `json:"holdExpiry"`
	Error      string      `json:"error,omitempty"`
}

type ReleaseSeatsInput struct {
	OrderID    string `json:"orderId"`
	ScheduleID string `json:"scheduleId"`
	Reason     string `json:"reason"`
}

type ValidatePaymentInput struct {
	OrderID     string `json:"orderId"`
	PaymentCode string `json:"paymentCode"`
	Amount      Money  `json:"amount"`
	Attempt     int    `json:"attempt"`
}

type ValidatePaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
	CanRetry      bool   `json:"canRetry"`
}

type ConfirmBookingInput struct {
	Order OrderWorkflowInput `json:"order"`
}

type ConfirmBookingResult struct {
	Success          bool        `json:"success"`
	ConfirmationCode string      `json:"confirmationCode,omitempty"`
	Conflicts        []SeatLabel `json:"conflicts,omitempty"`
	Error            string      `json:"error,omitempty"`
}

type UpdateOrderStatusInput struct {
	OrderID         string      `json:"orderId"`
	Status          OrderStatus `json:"status"`
	FailureReason   string      `json:"failureReason,omitempty"`
	PaymentAttempts int         `json:"paymentAttempts"`
}

type SendConfirmationInput struct {
	OrderID          string      `json:"orderId"`
	ScheduleID       string      `json:"scheduleId"`
	Contact          Contact     `json:"contact"`
	Seats            []SeatLabel `json:"seats"`
	TotalAmount      Money       `json:"totalAmount"`
	ConfirmationCode string      `json:"confirmationCode"`
	Status           OrderStatus `json:"status"`
	FailureReason    string      `json:"failureReason,omitempty"`
}
