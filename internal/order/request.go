// Package order submits finished bookings and follows their payment.
package order

import (
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// BuildRequest flattens a booking into the request the order gateway takes.
func BuildRequest(st models.BookingState, userID string) models.OrderRequest {
	req := models.OrderRequest{
		UserID:         userID,
		PassengerCount: len(st.Passengers),
		TotalPrice:     st.Total,
		PassengerTypes: make([]models.PassengerType, len(st.Passengers)),
		SeatLabels:     make([]models.SeatLabel, len(st.Passengers)),
		Passengers:     make([]models.OrderPassenger, len(st.Passengers)),
		Contact:        st.Contact,
	}
	if st.ChosenSchedule != nil {
		req.TicketID = st.ChosenSchedule.ID
	}
	for i, p := range st.Passengers {
		req.PassengerTypes[i] = p.Type
		req.SeatLabels[i] = p.Seat
		req.Passengers[i] = models.OrderPassenger{
			Type:           p.Type,
			Name:           p.Name,
			IdentityNumber: p.IdentityNumber,
			Seat:           p.Seat,
			Price:          p.Price,
		}
	}
	return req
}

// WorkflowInput turns a request into the order workflow's input.
func WorkflowInput(orderID string, req models.OrderRequest) models.OrderWorkflowInput {
	return models.OrderWorkflowInput{
		OrderID:     orderID,
		ScheduleID:  req.TicketID,
		UserID:      req.UserID,
		Contact:     req.Contact,
		Passengers:  append([]models.OrderPassenger(nil), req.Passengers...),
		TotalAmount: req.TotalPrice,
	}
}
