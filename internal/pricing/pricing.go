// Package pricing derives per-passenger fares from a schedule's base fare.
//
// Child fares are rounded half-up to the whole rupiah, the same rule the
// amounts are displayed with.
package pricing

import (
	"errors"
	"fmt"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var (
	ErrUnknownPassengerType = errors.New("unknown passenger type")
	ErrNegativeFare         = errors.New("base fare must not be negative")
)

// ComputePrice returns the amount charged for one passenger of type t.
func ComputePrice(baseFare models.Money, t models.PassengerType) (models.Money, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownPassengerType, uint8(t))
	}
	if baseFare < 0 {
		return 0, ErrNegativeFare
	}
	return applyPercent(baseFare, t.FarePercent()), nil
}

// ComputeTotal sums the stored price of every slot. It never recomputes from
// type and fare, so the total matches what was shown when the slots were created.
func ComputeTotal(passengers []models.PassengerSlot) models.Money {
	var total models.Money
	for _, p := range passengers {
		total += p.Price
	}
	return total
}

// Line is one row of a fare breakdown
type Line struct {
	Type      models.PassengerType `json:"type"`
	Label     string               `json:"label"`
	Count     int                  `json:"count"`
	UnitPrice models.Money         `json:"unitPrice"`
	Subtotal  models.Money         `json:"subtotal"`
}

// Quote is the fare breakdown shown before a schedule is chosen
type Quote struct {
	Lines []Line       `json:"lines"`
	Total models.Money `json:"total"`
}

// QuoteFor prices the requested counts against a base fare. Types with a zero
// count are left out.
func QuoteFor(baseFare models.Money, counts models.PassengerCounts) (Quote, error) {
	perType := map[models.PassengerType]int{
		models.PassengerAdult:  counts.Adults,
		models.PassengerChild:  counts.Children,
		models.PassengerInfant: counts.Infants,
	}

	var q Quote
	for _, t := range models.PassengerTypes() {
		n := perType[t]
		if n <= 0 {
			continue
		}
		unit, err := ComputePrice(baseFare, t)
		if err != nil {
			return Quote{}, err
		}
		line := Line{
			Type:      t,
			Label:     t.Label(),
			Count:     n,
			UnitPrice: unit,
			Subtotal:  unit * models.Money(n),
		}
		q.Lines = append(q.Lines, line)
		q.Total += line.Subtotal
	}
	return q, nil
}

func applyPercent(amount models.Money, percent int64) models.Money {
	return models.Money((int64(amount)*percent + 50) / 100)
}
