package models

import (
	"fmt"
	"strings"
)

// Step is a stage of the booking wizard
type Step uint8

const (
	StepSearch Step = iota + 1
	StepSelect
	StepPassenger
	StepPayment
	StepConfirmation
)

var stepNames = [...]string{
	StepSearch:       "SEARCH",
	StepSelect:       "SELECT",
	StepPassenger:    "PASSENGER",
	StepPayment:      "PAYMENT",
	StepConfirmation: "CONFIRMATION",
}

func (s Step) Valid() bool {
	return s >= StepSearch && s <= StepConfirmation
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Step(%d)", uint8(s))
	}
	return stepNames[s]
}

// Next returns the step that follows s, or s itself for the last step.
func (s Step) Next() Step {
	if s >= StepConfirmation {
		return StepConfirmation
	}
	return s + 1
}

func ParseStep(v string) (Step, error) {
	name := strings.ToUpper(strings.TrimSpace(v))
	for s := StepSearch; s <= StepConfirmation; s++ {
		if stepNames[s] == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", v)
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid step %d", uint8(s))
	}
	return []byte(stepNames[s]), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SearchCriteria is what the user asked for on the search step
type SearchCriteria struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Date        string          `json:"date"`
	RoundTrip   bool            `json:"roundTrip"`
	ReturnDate  string          `json:"returnDate,omitempty"`
	Passengers  PassengerCounts `json:"passengers"`
}

// Contact is the person the booking confirmation is sent to
type Contact struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

// PassengerSlot is one seat's worth of passenger data
type PassengerSlot struct {
	Type           PassengerType `json:"type"`
	Name           string        `json:"name"`
	IdentityNumber string        `json:"identityNumber"`
	Seat           SeatLabel     `json:"seat"`
	Price          Money         `json:"price"`
}

// TransactionStatus is the payment state reported by the order gateway
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionPaid      TransactionStatus = "PAID"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionExpired   TransactionStatus = "EXPIRED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// OrderReceipt is what the order gateway hands back after a submission
type OrderReceipt struct {
	OrderID          string            `json:"orderId"`
	PaymentRedirect  string            `json:"paymentRedirect"`
	Status           TransactionStatus `json:"status"`
	ConfirmationCode string            `json:"confirmationCode,omitempty"`
}

// BookingState is the aggregate owned by one booking session
type BookingState struct {
	Version        uint64          `json:"version"`
	Step           Step            `json:"step"`
	Criteria       SearchCriteria  `json:"criteria"`
	Schedules      []Schedule      `json:"schedules"`
	ChosenSchedule *Schedule       `json:"chosenSchedule,omitempty"`
	Passengers     []PassengerSlot `json:"passengers"`
	Contact        Contact         `json:"contact"`
	Total          Money           `json:"total"`
	Order          *OrderReceipt   `json:"order,omitempty"`
}

// Clone returns a deep copy safe to hand outside the owning store.
func (s BookingState) Clone() BookingState {
	out := s
	if s.Schedules != nil {
		out.Schedules = make([]Schedule, len(s.Schedules))
		for i, sc := range s.Schedules {
			out.Schedules[i] = sc.clone()
		}
	}
	if s.ChosenSchedule != nil {
		sc := s.ChosenSchedule.clone()
		out.ChosenSchedule = &sc
	}
	if s.Passengers != nil {
		out.Passengers = append([]PassengerSlot(nil), s.Passengers...)
	}
	if s.Order != nil {
		o := *s.Order
		out.Order = &o
	}
	return out
}

func (s Schedule) clone() Schedule {
	out := s
	if s.Train.Facilities != nil {
		out.Train.Facilities = append([]string(nil), s.Train.Facilities...)
	}
	return out
}
