// Package inventory holds seats for orders that are waiting for payment.
//
// A hold is temporary: it expires on its own unless the order is confirmed,
// at which point the booked seats live in the database and the hold is
// released.
package inventory

import (
	"context"
	"slices"
	"time"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

const DefaultHoldDuration = 15 * time.Minute

// Holder reserves seats of a schedule for an order.
type Holder interface {
	// Hold reserves all seats for the order or none of them. Seats already
	// held by the same order are refreshed. On a clash it returns an
	// apperr.ConflictError listing every seat held by someone else.
	Hold(ctx context.Context, scheduleID, orderID string, seats []models.SeatLabel, ttl time.Duration) (time.Time, error)
	// Release drops every hold of the order on the schedule.
	Release(ctx context.Context, scheduleID, orderID string) error
	// Held maps each currently held seat of the schedule to its order.
	Held(ctx context.Context, scheduleID string) (map[models.SeatLabel]string, error)
}

// HeldByOthers lists the seats of a schedule held by orders other than the
// excepted ones.
func HeldByOthers(ctx context.Context, h Holder, scheduleID string, exceptOrders ...string) ([]models.SeatLabel, error) {
	held, err := h.Held(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	out := make([]models.SeatLabel, 0, len(held))
	for seat, order := range held {
		if !slices.Contains(exceptOrders, order) {
			out = append(out, seat)
		}
	}
	return out, nil
}
