// Package ticket renders e-tickets for confirmed bookings.
package ticket

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var ErrNotConfirmed = errors.New("booking is not confirmed")

// Render builds a PDF with one page per passenger. Times are printed in loc.
func Render(st models.BookingState, loc *time.Location) ([]byte, error) {
	if st.Step != models.StepConfirmation || st.Order == nil || st.ChosenSchedule == nil {
		return nil, ErrNotConfirmed
	}
	if loc == nil {
		loc = time.UTC
	}
	sc := st.ChosenSchedule

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+st.Order.ConfirmationCode, false)

	for i, p := range st.Passengers {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 18)
		pdf.Cell(0, 10, "E-TICKET")
		pdf.Ln(12)

		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 7, "Booking code: "+safe(st.Order.ConfirmationCode, st.Order.OrderID))
		pdf.Ln(10)

		pdf.SetFont("Helvetica", "", 12)
		lines := []string{
			fmt.Sprintf("Train       : %s (%s) - %s", sc.Train.Name, sc.Train.Number, sc.Train.Category),
			fmt.Sprintf("From        : %s (%s)", sc.Origin.Name, sc.Origin.Code),
			fmt.Sprintf("To          : %s (%s)", sc.Destination.Name, sc.Destination.Code),
			"Departure   : " + sc.DepartureTime.In(loc).Format("Mon, 02 Jan 2006 15:04"),
			"Arrival     : " + sc.ArrivalTime.In(loc).Format("Mon, 02 Jan 2006 15:04"),
			"",
			fmt.Sprintf("Passenger %d of %d", i+1, len(st.Passengers)),
			"Name        : " + safe(p.Name, "-"),
			"ID number   : " + safe(p.IdentityNumber, "-"),
			"Type        : " + p.Type.Label(),
			"Seat        : " + safe(p.Seat.String(), "-"),
			"Price       : " + p.Price.String(),
		}
		for _, s := range lines {
			pdf.Cell(0, 7, s)
			pdf.Ln(7)
		}

		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, fmt.Sprintf("Total paid for this booking: %s. Contact: %s <%s>. Show this ticket and your ID at boarding.",
			st.Total, st.Contact.Name, st.Contact.Email), "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render ticket: %w", err)
	}
	return buf.Bytes(), nil
}

func safe(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
