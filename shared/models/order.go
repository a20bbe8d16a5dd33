package models

import "time"

// Order represents a submitted train booking order
type Order struct {
	ID               string           `json:"id"`
	ScheduleID       string           `json:"scheduleId"`
	UserID           string           `json:"userId"`
	Contact          Contact          `json:"contact"`
	Passengers       []OrderPassenger `json:"passengers"`
	Status           OrderStatus      `json:"status"`
	TotalAmount      Money            `json:"totalAmount"`
	PaymentAttempts  int              `json:"paymentAttempts"`
	SeatHoldExpiry   time.Time        `json:"seatHoldExpiry"`
	ConfirmationCode string           `json:"confirmationCode,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	ConfirmedAt      *time.Time       `json:"confirmedAt,omitempty"`
	FailureReason    string           `json:"failureReason,omitempty"`
}

// OrderPassenger is one passenger line of an order
type OrderPassenger struct {
	Type           PassengerType `json:"type"`
	Name           string        `json:"name"`
	IdentityNumber string        `json:"identityNumber"`
	Seat           SeatLabel     `json:"seat"`
	Price          Money         `json:"price"`
}

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusFailed          OrderStatus = "failed"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether no further transition can happen.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// TransactionStatus maps the order lifecycle onto the payment status exposed to sessions.
func (s OrderStatus) TransactionStatus() TransactionStatus {
	switch s {
	case OrderStatusConfirmed:
		return TransactionPaid
	case OrderStatusFailed:
		return TransactionFailed
	case OrderStatusExpired:
		return TransactionExpired
	case OrderStatusCancelled:
		return TransactionCancelled
	default:
		return TransactionPending
	}
}

// OrderRequest is the flat request serialized from a finished booking
type OrderRequest struct {
	UserID         string           `json:"userId"`
	TicketID       string           `json:"ticketId" validate:"required"`
	PassengerCount int              `json:"passengerCount" validate:"min=1"`
	TotalPrice     Money            `json:"totalPrice" validate:"min=0"`
	PassengerTypes []PassengerType  `json:"passengerTypes"`
	SeatLabels     []SeatLabel      `json:"seatLabels"`
	Passengers     []OrderPassenger `json:"passengers"`
	Contact        Contact          `json:"contact"`
}

// PaymentRequest represents a payment gateway callback
type PaymentRequest struct {
	PaymentCode string `json:"paymentCode" validate:"required,len=5,numeric"`
}
