package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

func countFields(c models.PassengerCounts) []apperr.FieldError {
	var fields []apperr.FieldError
	if c.Adults < 1 {
		fields = append(fields, apperr.Field("criteria.passengers.adults", "at least one adult is required"))
	}
	if c.Children < 0 {
		fields = append(fields, apperr.Field("criteria.passengers.children", "must not be negative"))
	}
	if c.Infants < 0 {
		fields = append(fields, apperr.Field("criteria.passengers.infants", "must not be negative"))
	}
	return fields
}

// dateFields checks the dates that are set; emptiness is checked on advance.
func dateFields(c models.SearchCriteria) []apperr.FieldError {
	var fields []apperr.FieldError
	var depart time.Time
	if c.Date != "" {
		d, err := time.Parse(models.DateLayout, c.Date)
		if err != nil {
			fields = append(fields, apperr.Field("criteria.date", "must be a date in YYYY-MM-DD form"))
		}
		depart = d
	}
	if c.RoundTrip && c.ReturnDate != "" {
		r, err := time.Parse(models.DateLayout, c.ReturnDate)
		switch {
		case err != nil:
			fields = append(fields, apperr.Field("criteria.returnDate", "must be a date in YYYY-MM-DD form"))
		case !depart.IsZero() && r.Before(depart):
			fields = append(fields, apperr.Field("criteria.returnDate", "must not be before the departure date"))
		}
	}
	return fields
}

// SearchFields lists what is missing before a search can run.
func SearchFields(c models.SearchCriteria) []apperr.FieldError {
	var fields []apperr.FieldError
	if c.Origin == "" {
		fields = append(fields, apperr.Field("criteria.origin", "is required"))
	}
	if c.Destination == "" {
		fields = append(fields, apperr.Field("criteria.destination", "is required"))
	}
	if c.Origin != "" && c.Origin == c.Destination {
		fields = append(fields, apperr.Field("criteria.destination", "must differ from origin"))
	}
	if c.Date == "" {
		fields = append(fields, apperr.Field("criteria.date", "is required"))
	}
	if c.RoundTrip && c.ReturnDate == "" {
		fields = append(fields, apperr.Field("criteria.returnDate", "is required for a round trip"))
	}
	fields = append(fields, dateFields(c)...)
	fields = append(fields, countFields(c.Passengers)...)
	return fields
}

// OrderFields lists what is missing before an order can be placed: every
// passenger named, identified and seated, and a reachable contact.
func OrderFields(st models.BookingState, v *validator.Validate) []apperr.FieldError {
	var fields []apperr.FieldError
	for i, p := range st.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			fields = append(fields, apperr.Field(fmt.Sprintf("passengers[%d].name", i), "is required"))
		}
		if strings.TrimSpace(p.IdentityNumber) == "" {
			fields = append(fields, apperr.Field(fmt.Sprintf("passengers[%d].identityNumber", i), "is required"))
		}
		if p.Seat.IsZero() {
			fields = append(fields, apperr.Field(fmt.Sprintf("passengers[%d].seat", i), "must be selected"))
		}
	}

	if st.Contact.Name == "" {
		fields = append(fields, apperr.Field("contact.name", "is required"))
	}
	switch {
	case st.Contact.Email == "":
		fields = append(fields, apperr.Field("contact.email", "is required"))
	case v.Var(st.Contact.Email, "email") != nil:
		fields = append(fields, apperr.Field("contact.email", "is not a valid email address"))
	}
	if st.Contact.Phone == "" {
		fields = append(fields, apperr.Field("contact.phone", "is required"))
	}
	return fields
}

// MissingFields lists what keeps the booking from leaving its current step.
func MissingFields(st models.BookingState, v *validator.Validate) []apperr.FieldError {
	switch st.Step {
	case models.StepSearch:
		return SearchFields(st.Criteria)
	case models.StepSelect:
		if st.ChosenSchedule == nil {
			return []apperr.FieldError{apperr.Field("schedule", "must be chosen")}
		}
		if len(st.Passengers) != st.Criteria.Passengers.Total() {
			return []apperr.FieldError{apperr.Field("passengers", "roster does not match the requested counts")}
		}
		return nil
	case models.StepPassenger:
		return OrderFields(st, v)
	case models.StepPayment:
		if st.Order == nil {
			return []apperr.FieldError{apperr.Field("order", "must be submitted")}
		}
		if st.Order.Status != models.TransactionPaid {
			return []apperr.FieldError{apperr.Field("order.status", "payment is %s", st.Order.Status)}
		}
		return nil
	default:
		return []apperr.FieldError{apperr.Field("step", "no step follows %s", st.Step)}
	}
}

// CheckInvariants verifies the structural rules every committed state obeys.
func CheckInvariants(st models.BookingState) error {
	if !st.Step.Valid() {
		return fmt.Errorf("%w: step %d", ErrInvariant, st.Step)
	}
	if st.Step >= models.StepPassenger && st.ChosenSchedule == nil {
		return fmt.Errorf("%w: step %s without a chosen schedule", ErrInvariant, st.Step)
	}
	if st.ChosenSchedule != nil && len(st.Passengers) != st.Criteria.Passengers.Total() {
		return fmt.Errorf("%w: %d passengers for %d requested",
			ErrInvariant, len(st.Passengers), st.Criteria.Passengers.Total())
	}

	seen := make(map[models.SeatLabel]int, len(st.Passengers))
	var sum models.Money
	for i, p := range st.Passengers {
		sum += p.Price
		if p.Seat.IsZero() {
			continue
		}
		if first, ok := seen[p.Seat]; ok {
			return fmt.Errorf("%w: seat %s held by passengers %d and %d", ErrInvariant, p.Seat, first, i)
		}
		seen[p.Seat] = i
	}
	if sum != st.Total {
		return fmt.Errorf("%w: total %d does not match passenger prices %d", ErrInvariant, st.Total, sum)
	}
	return nil
}
