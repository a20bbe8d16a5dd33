package pricing

import (
	"testing"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePrice(t *testing.T) {
	tests := []struct {
		name     string
		baseFare models.Money
		typ      models.PassengerType
		expected models.Money
	}{
		{name: "adult pays base fare", baseFare: 150000, typ: models.PassengerAdult, expected: 150000},
		{name: "child pays seventy percent", baseFare: 150000, typ: models.PassengerChild, expected: 105000},
		{name: "infant travels free", baseFare: 150000, typ: models.PassengerInfant, expected: 0},
		{name: "child rounds half up", baseFare: 5, typ: models.PassengerChild, expected: 4},
		{name: "child rounds down below half", baseFare: 3, typ: models.PassengerChild, expected: 2},
		{name: "zero fare", baseFare: 0, typ: models.PassengerChild, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := ComputePrice(tt.baseFare, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, price)
		})
	}
}

func TestComputePrice_Rejects(t *testing.T) {
	_, err := ComputePrice(100, models.PassengerType(0))
	assert.ErrorIs(t, err, ErrUnknownPassengerType)

	_, err = ComputePrice(-1, models.PassengerAdult)
	assert.ErrorIs(t, err, ErrNegativeFare)
}

func TestComputeTotal_UsesStoredPrices(t *testing.T) {
	slots := []models.PassengerSlot{
		{Type: models.PassengerAdult, Price: 150000},
		{Type: models.PassengerAdult, Price: 150000},
		{Type: models.PassengerChild, Price: 105000},
	}
	assert.Equal(t, models.Money(405000), ComputeTotal(slots))

	// A slot priced under an older fare keeps that price.
	slots[0].Price = 90000
	assert.Equal(t, models.Money(345000), ComputeTotal(slots))
	assert.Equal(t, models.Money(0), ComputeTotal(nil))
}

func TestQuoteFor(t *testing.T) {
	q, err := QuoteFor(150000, models.PassengerCounts{Adults: 2, Children: 1})
	require.NoError(t, err)

	require.Len(t, q.Lines, 2)
	assert.Equal(t, models.PassengerAdult, q.Lines[0].Type)
	assert.Equal(t, "Adult", q.Lines[0].Label)
	assert.Equal(t, models.Money(300000), q.Lines[0].Subtotal)
	assert.Equal(t, models.PassengerChild, q.Lines[1].Type)
	assert.Equal(t, models.Money(105000), q.Lines[1].UnitPrice)
	assert.Equal(t, models.Money(405000), q.Total)
}
