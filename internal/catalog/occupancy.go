package catalog

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cx-tal-miterani/train-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// Occupancy combines sold seats with seats held by pending orders.
type Occupancy struct {
	gw     Gateway
	holder inventory.Holder
}

func NewOccupancy(gw Gateway, holder inventory.Holder) *Occupancy {
	return &Occupancy{gw: gw, holder: holder}
}

// Seats returns every seat of the schedule unavailable to the excepted
// orders: sold seats plus seats held by any other order. Sold seats and holds
// are read concurrently. A session that has not submitted passes no orders.
func (o *Occupancy) Seats(ctx context.Context, scheduleID string, exceptOrders ...string) ([]models.SeatLabel, error) {
	var booked, held []models.SeatLabel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		booked, err = o.gw.BookedSeats(gctx, scheduleID)
		return err
	})
	if o.holder != nil {
		g.Go(func() error {
			var err error
			held, err = inventory.HeldByOthers(gctx, o.holder, scheduleID, exceptOrders...)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[models.SeatLabel]struct{}, len(booked)+len(held))
	out := make([]models.SeatLabel, 0, len(booked)+len(held))
	for _, list := range [][]models.SeatLabel{booked, held} {
		for _, s := range list {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
