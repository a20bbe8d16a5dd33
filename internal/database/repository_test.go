package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

func TestScheduleFilter_DayBounds(t *testing.T) {
	f := ScheduleFilter{Date: time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC), Location: jakarta}
	start, end := f.dayBounds()
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, jakarta), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	start, end = ScheduleFilter{}.dayBounds()
	assert.True(t, start.IsZero())
	assert.True(t, end.IsZero())
}

func TestScheduleRow_ToModel(t *testing.T) {
	dep := time.Date(2024, 6, 1, 6, 0, 0, 0, jakarta)
	row := scheduleRow{
		schedule: models.Schedule{ID: "s1", DepartureTime: dep, ArrivalTime: dep.Add(3*time.Hour + 15*time.Minute)},
		category: "executive",
		baseFare: 150000,
		capacity: 48,
		booked:   50,
	}
	s := row.toModel()
	assert.Equal(t, models.CategoryExecutive, s.Train.Category)
	assert.Equal(t, models.Money(150000), s.BaseFare)
	assert.Equal(t, 195, s.DurationMinutes)
	assert.Equal(t, 0, s.SeatsAvailable)
	assert.NotNil(t, s.Train.Facilities)
}

func TestSeedSchedules(t *testing.T) {
	from := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC) // already June 2nd in Jakarta
	list := seedSchedules(from, 2, jakarta)
	require.Len(t, list, 2*len(seedRoutes))

	first := list[0]
	assert.Equal(t, time.Date(2024, 6, 2, 6, 0, 0, 0, jakarta), first.departure)
	assert.True(t, first.arrival.After(first.departure))

	// IDs are stable so reseeding is idempotent.
	again := seedSchedules(from, 2, jakarta)
	assert.Equal(t, first.id, again[0].id)

	ids := map[string]bool{}
	for _, s := range list {
		assert.False(t, ids[s.id], "duplicate schedule id %s", s.id)
		ids[s.id] = true
		assert.NotEqual(t, s.origin, s.destination)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

// The tests below run against a real Postgres when TEST_DATABASE_URL is set.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	_, err = repo.Seed(ctx, time.Now().Add(24*time.Hour), 1, jakarta)
	require.NoError(t, err)
	return repo
}

func testOrder(scheduleID string, seats ...string) *models.Order {
	o := &models.Order{
		ID:          uuid.NewString(),
		ScheduleID:  scheduleID,
		Contact:     models.Contact{Name: "Budi", Email: "budi@example.com", Phone: "0812"},
		Status:      models.OrderStatusAwaitingPayment,
		TotalAmount: models.Money(150000 * len(seats)),
	}
	for _, s := range seats {
		label, _ := models.ParseSeatLabel(s)
		o.Passengers = append(o.Passengers, models.OrderPassenger{
			Type: models.PassengerAdult, Name: "Budi", IdentityNumber: "1", Seat: label, Price: 150000,
		})
	}
	return o
}

func TestRepository_ConfirmOrderRejectsDoubleBooking(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	schedules, err := repo.FindSchedules(ctx, ScheduleFilter{OriginCode: "GMR", DestinationCode: "BDO"})
	require.NoError(t, err)
	require.NotEmpty(t, schedules)
	sched := schedules[len(schedules)-1]

	seat := fmt.Sprintf("%dA1", 1+time.Now().Nanosecond()%9)
	first := testOrder(sched.ID, seat)
	second := testOrder(sched.ID, seat)
	require.NoError(t, repo.CreateOrder(ctx, first))
	require.NoError(t, repo.CreateOrder(ctx, second))

	require.NoError(t, repo.ConfirmOrder(ctx, first.ID, "TRN-1"))
	err = repo.ConfirmOrder(ctx, second.ID, "TRN-2")
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	got, err := repo.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	require.Len(t, got.Passengers, 1)

	booked, err := repo.BookedSeats(ctx, sched.ID)
	require.NoError(t, err)
	assert.Contains(t, booked, got.Passengers[0].Seat)

	assert.True(t, apperr.IsConflict(repo.CreateOrder(ctx, first)))
}
