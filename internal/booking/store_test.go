package booking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/seats"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var fixedNow = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func seat(s string) models.SeatLabel {
	l, err := models.ParseSeatLabel(s)
	if err != nil {
		panic(err)
	}
	return l
}

func testSchedule() models.Schedule {
	return models.Schedule{
		ID: "sch-1",
		Train: models.Train{
			Name:     "Argo Parahyangan",
			Number:   "KA-20",
			Category: models.CategoryExecutive,
			Capacity: 48,
		},
		Origin:         models.Station{Code: "GMR", Name: "Gambir"},
		Destination:    models.Station{Code: "BDO", Name: "Bandung"},
		BaseFare:       150000,
		SeatsAvailable: 40,
	}
}

func newTestStore() *Store {
	return NewStore(WithClock(func() time.Time { return fixedNow }))
}

// storeAtPassenger walks a fresh store to PASSENGER with 2 adults and 1 child.
func storeAtPassenger(t *testing.T) *Store {
	t.Helper()
	s := newTestStore()
	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{
		Origin:      ptr("GMR"),
		Destination: ptr("BDO"),
		Date:        ptr("2024-06-01"),
		Adults:      ptr(2),
		Children:    ptr(1),
	}))
	require.NoError(t, s.SetSchedules(s.Snapshot().Criteria, []models.Schedule{testSchedule()}))
	require.NoError(t, s.SelectSchedule(testSchedule()))
	return s
}

func fillPassengers(t *testing.T, s *Store) {
	t.Helper()
	for i, l := range []string{"1A1", "1A2", "1B1"} {
		require.NoError(t, s.UpdatePassenger(i, PassengerPatch{
			Name:           ptr("Passenger"),
			IdentityNumber: ptr("3201000000000001"),
			Seat:           ptr(seat(l)),
		}))
	}
	require.NoError(t, s.SetContactInfo(ContactPatch{
		Name:  ptr("Budi"),
		Email: ptr("budi@example.com"),
		Phone: ptr("08123456789"),
	}))
}

func TestNewStore_Defaults(t *testing.T) {
	st := newTestStore().Snapshot()

	assert.Equal(t, models.StepSearch, st.Step)
	assert.Equal(t, "2024-05-20", st.Criteria.Date)
	assert.Equal(t, models.PassengerCounts{Adults: 1}, st.Criteria.Passengers)
	assert.Empty(t, st.Passengers)
	assert.Equal(t, models.Money(0), st.Total)
	assert.NoError(t, CheckInvariants(st))
}

func TestSelectSchedule_BuildsPricedRoster(t *testing.T) {
	s := storeAtPassenger(t)
	st := s.Snapshot()

	assert.Equal(t, models.StepPassenger, st.Step)
	require.Len(t, st.Passengers, 3)
	assert.Equal(t, []models.PassengerType{models.PassengerAdult, models.PassengerAdult, models.PassengerChild},
		[]models.PassengerType{st.Passengers[0].Type, st.Passengers[1].Type, st.Passengers[2].Type})
	assert.Equal(t, []models.Money{150000, 150000, 105000},
		[]models.Money{st.Passengers[0].Price, st.Passengers[1].Price, st.Passengers[2].Price})
	assert.Equal(t, models.Money(405000), st.Total)
	require.NotNil(t, st.ChosenSchedule)
	assert.Equal(t, "sch-1", st.ChosenSchedule.ID)
}

func TestSelectSchedule_Rejections(t *testing.T) {
	t.Run("wrong step", func(t *testing.T) {
		s := newTestStore()
		err := s.SelectSchedule(testSchedule())
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, models.StepSearch, s.Snapshot().Step)
	})

	t.Run("not enough seats", func(t *testing.T) {
		s := newTestStore()
		require.NoError(t, s.SetSearchCriteria(CriteriaPatch{
			Origin: ptr("GMR"), Destination: ptr("BDO"), Adults: ptr(3),
		}))
		require.NoError(t, s.AdvanceStep(models.StepSelect))

		sch := testSchedule()
		sch.SeatsAvailable = 2
		err := s.SelectSchedule(sch)
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
		assert.Equal(t, models.StepSelect, s.Snapshot().Step)
	})

	t.Run("negative fare", func(t *testing.T) {
		s := newTestStore()
		require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("GMR"), Destination: ptr("BDO")}))
		require.NoError(t, s.AdvanceStep(models.StepSelect))

		sch := testSchedule()
		sch.BaseFare = -1
		assert.True(t, apperr.IsValidation(s.SelectSchedule(sch)))
	})
}

func TestAdvanceStep_IncompleteIsNoOp(t *testing.T) {
	s := newTestStore()
	before := s.Snapshot()

	err := s.AdvanceStep(models.StepSelect)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncomplete)

	fields := apperr.Fields(err)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Field
	}
	assert.Contains(t, names, "criteria.origin")
	assert.Contains(t, names, "criteria.destination")

	after := s.Snapshot()
	assert.Equal(t, before, after)
}

func TestAdvanceStep_CannotSkip(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("GMR"), Destination: ptr("BDO")}))

	assert.ErrorIs(t, s.AdvanceStep(models.StepPassenger), ErrInvalidTransition)
	assert.ErrorIs(t, s.AdvanceStep(models.StepSearch), ErrInvalidTransition)
	require.NoError(t, s.AdvanceStep(models.StepSelect))

	// SELECT needs a chosen schedule before PASSENGER.
	assert.ErrorIs(t, s.AdvanceStep(models.StepPassenger), ErrIncomplete)
}

func TestAdvanceStep_SameOriginAndDestination(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("gmr"), Destination: ptr("GMR")}))

	err := s.AdvanceStep(models.StepSelect)
	require.Error(t, err)
	assert.Equal(t, "criteria.destination", apperr.Fields(err)[0].Field)
}

func TestPassengerStep_ReportsEveryMissingField(t *testing.T) {
	s := storeAtPassenger(t)
	require.NoError(t, s.UpdatePassenger(0, PassengerPatch{Name: ptr("Ani"), IdentityNumber: ptr("1"), Seat: ptr(seat("1A1"))}))
	require.NoError(t, s.SetContactInfo(ContactPatch{Name: ptr("Ani"), Email: ptr("not-an-email"), Phone: ptr("0812")}))

	err := s.AdvanceStep(models.StepPayment)
	require.Error(t, err)

	got := map[string]bool{}
	for _, f := range apperr.Fields(err) {
		got[f.Field] = true
	}
	assert.True(t, got["passengers[1].name"])
	assert.True(t, got["passengers[2].seat"])
	assert.True(t, got["contact.email"])
	assert.False(t, got["passengers[0].name"])
	assert.Equal(t, models.StepPassenger, s.Snapshot().Step)
}

func TestFullFlow_ToConfirmation(t *testing.T) {
	s := storeAtPassenger(t)
	fillPassengers(t, s)
	require.NoError(t, s.AdvanceStep(models.StepPayment))

	st := s.Snapshot()
	assert.ErrorIs(t, s.AdvanceStep(models.StepConfirmation), ErrIncomplete)

	require.NoError(t, s.RecordOrder(st.Version, models.OrderReceipt{
		OrderID:         "ord-1",
		PaymentRedirect: "http://pay.local/ord-1",
		Status:          models.TransactionPending,
	}))
	require.NoError(t, s.UpdatePaymentStatus("ord-1", models.TransactionPaid, "TRN-ABC123"))

	final := s.Snapshot()
	assert.Equal(t, models.StepConfirmation, final.Step)
	assert.Equal(t, "TRN-ABC123", final.Order.ConfirmationCode)
	assert.ErrorIs(t, s.GoBack(models.StepPassenger), ErrInvalidTransition)
}

func TestRecordOrder_StaleSnapshot(t *testing.T) {
	s := storeAtPassenger(t)
	fillPassengers(t, s)
	require.NoError(t, s.AdvanceStep(models.StepPayment))

	st := s.Snapshot()
	_, err := s.MarkOccupied(seat("9Z9"))
	require.NoError(t, err)

	err = s.RecordOrder(st.Version, models.OrderReceipt{OrderID: "ord-1"})
	assert.ErrorIs(t, err, ErrStaleSnapshot)
	assert.Nil(t, s.Snapshot().Order)
}

func TestUpdatePassenger_OutOfRange(t *testing.T) {
	s := storeAtPassenger(t)
	before := s.Snapshot()

	err := s.UpdatePassenger(3, PassengerPatch{Name: ptr("X")})
	assert.ErrorIs(t, err, seats.ErrIndexOutOfRange)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, before, s.Snapshot())
}

func TestPickSeats_DuplicateRejected(t *testing.T) {
	s := storeAtPassenger(t)
	require.NoError(t, s.PickSeats(seats.Change{Index: 0, Seat: seat("2A1")}))

	err := s.PickSeats(seats.Change{Index: 1, Seat: seat("2A1")})
	assert.ErrorIs(t, err, seats.ErrSeatTaken)

	st := s.Snapshot()
	assert.Equal(t, seat("2A1"), st.Passengers[0].Seat)
	assert.True(t, st.Passengers[1].Seat.IsZero())
}

func TestPickSeats_Swap(t *testing.T) {
	s := storeAtPassenger(t)
	require.NoError(t, s.PickSeats(
		seats.Change{Index: 0, Seat: seat("1A1")},
		seats.Change{Index: 1, Seat: seat("1A2")},
	))
	require.NoError(t, s.PickSeats(
		seats.Change{Index: 0, Seat: seat("1A2")},
		seats.Change{Index: 1, Seat: seat("1A1")},
	))

	st := s.Snapshot()
	assert.Equal(t, seat("1A2"), st.Passengers[0].Seat)
	assert.Equal(t, seat("1A1"), st.Passengers[1].Seat)
}

func TestResizePassengers(t *testing.T) {
	s := storeAtPassenger(t)
	require.NoError(t, s.UpdatePassenger(0, PassengerPatch{Name: ptr("Ani"), Seat: ptr(seat("1A1"))}))
	require.NoError(t, s.UpdatePassenger(2, PassengerPatch{Name: ptr("Cici"), Seat: ptr(seat("1B1"))}))

	// Shrink to 2 adults: the child slot and its seat are gone.
	require.NoError(t, s.ResizePassengers(models.PassengerCounts{Adults: 2}))
	st := s.Snapshot()
	require.Len(t, st.Passengers, 2)
	assert.Equal(t, "Ani", st.Passengers[0].Name)
	assert.Equal(t, seat("1A1"), st.Passengers[0].Seat)
	assert.Equal(t, models.Money(300000), st.Total)
	assert.NoError(t, CheckInvariants(st))

	// Grow again: new slots are empty and priced for their type.
	require.NoError(t, s.ResizePassengers(models.PassengerCounts{Adults: 2, Infants: 1}))
	st = s.Snapshot()
	require.Len(t, st.Passengers, 3)
	assert.Equal(t, models.PassengerInfant, st.Passengers[2].Type)
	assert.Empty(t, st.Passengers[2].Name)
	assert.True(t, st.Passengers[2].Seat.IsZero())
	assert.Equal(t, models.Money(0), st.Passengers[2].Price)
	assert.Equal(t, models.Money(300000), st.Total)

	// The dropped seat is free for anyone.
	require.NoError(t, s.PickSeats(seats.Change{Index: 1, Seat: seat("1B1")}))

	// At least one adult is always required.
	err := s.ResizePassengers(models.PassengerCounts{Children: 2})
	assert.True(t, apperr.IsValidation(err))
	assert.Len(t, s.Snapshot().Passengers, 3)
}

func TestResizePassengers_ShrinksWithinTypeBlock(t *testing.T) {
	s := storeAtPassenger(t) // adult, adult, child
	require.NoError(t, s.UpdatePassenger(0, PassengerPatch{Name: ptr("Ani"), Seat: ptr(seat("1A1"))}))
	require.NoError(t, s.UpdatePassenger(1, PassengerPatch{Name: ptr("Bayu"), Seat: ptr(seat("1A2"))}))
	require.NoError(t, s.UpdatePassenger(2, PassengerPatch{Name: ptr("Cici"), Seat: ptr(seat("1B1"))}))

	require.NoError(t, s.ResizePassengers(models.PassengerCounts{Adults: 1, Children: 1}))
	st := s.Snapshot()
	require.Len(t, st.Passengers, 2)
	assert.Equal(t, "Ani", st.Passengers[0].Name)
	assert.Equal(t, models.PassengerAdult, st.Passengers[0].Type)
	assert.Equal(t, seat("1A1"), st.Passengers[0].Seat)
	assert.Equal(t, "Cici", st.Passengers[1].Name)
	assert.Equal(t, models.PassengerChild, st.Passengers[1].Type)
	assert.Equal(t, seat("1B1"), st.Passengers[1].Seat)
	assert.Equal(t, models.Money(255000), st.Total)
	assert.NoError(t, CheckInvariants(st))

	// A new child is appended after Cici; Bayu's seat is free again.
	require.NoError(t, s.ResizePassengers(models.PassengerCounts{Adults: 1, Children: 2}))
	st = s.Snapshot()
	require.Len(t, st.Passengers, 3)
	assert.Equal(t, "Cici", st.Passengers[1].Name)
	assert.Equal(t, models.PassengerChild, st.Passengers[2].Type)
	assert.Empty(t, st.Passengers[2].Name)
	assert.Equal(t, models.Money(105000), st.Passengers[2].Price)
	assert.Equal(t, models.Money(360000), st.Total)
	require.NoError(t, s.PickSeats(seats.Change{Index: 2, Seat: seat("1A2")}))
}

func TestSetSchedules_RejectsResultForOldCriteria(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("GMR"), Destination: ptr("BDO")}))
	searched := s.Snapshot().Criteria

	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Destination: ptr("SBY")}))
	err := s.SetSchedules(searched, []models.Schedule{testSchedule()})
	assert.ErrorIs(t, err, ErrStaleSnapshot)

	st := s.Snapshot()
	assert.Equal(t, models.StepSearch, st.Step)
	assert.Empty(t, st.Schedules)
	assert.Equal(t, "SBY", st.Criteria.Destination)
}

func TestSelectSchedule_AppliesOccupiedSeats(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("GMR"), Destination: ptr("BDO")}))
	require.NoError(t, s.SetSchedules(s.Snapshot().Criteria, []models.Schedule{testSchedule()}))
	require.NoError(t, s.SelectSchedule(testSchedule(), seat("1A1")))

	err := s.PickSeats(seats.Change{Index: 0, Seat: seat("1A1")})
	assert.ErrorIs(t, err, seats.ErrSeatOccupied)
	assert.True(t, s.Snapshot().Passengers[0].Seat.IsZero())
}

func TestSetSearchCriteria_RouteChangeDropsSchedule(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("GMR"), Destination: ptr("BDO")}))
	require.NoError(t, s.SetSchedules(s.Snapshot().Criteria, []models.Schedule{testSchedule()}))

	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Destination: ptr("YK")}))
	st := s.Snapshot()
	assert.Equal(t, models.StepSearch, st.Step)
	assert.Empty(t, st.Schedules)
}

func TestSetSearchCriteria_InvalidDateIsRejected(t *testing.T) {
	s := newTestStore()
	err := s.SetSearchCriteria(CriteriaPatch{Date: ptr("01/06/2024")})
	require.Error(t, err)
	assert.Equal(t, "criteria.date", apperr.Fields(err)[0].Field)
	assert.Equal(t, "2024-05-20", s.Snapshot().Criteria.Date)
}

func TestOccupancy_ClearsPassengersAndFallsBackFromPayment(t *testing.T) {
	s := storeAtPassenger(t)
	fillPassengers(t, s)
	require.NoError(t, s.AdvanceStep(models.StepPayment))

	cleared, err := s.SetOccupied([]models.SeatLabel{seat("1A2")})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, cleared)

	st := s.Snapshot()
	assert.Equal(t, models.StepPassenger, st.Step)
	assert.True(t, st.Passengers[1].Seat.IsZero())
	assert.ErrorIs(t, s.PickSeats(seats.Change{Index: 1, Seat: seat("1A2")}), seats.ErrSeatOccupied)
}

func TestGoBack_KeepsEnteredData(t *testing.T) {
	s := storeAtPassenger(t)
	fillPassengers(t, s)
	require.NoError(t, s.AdvanceStep(models.StepPayment))
	require.NoError(t, s.RecordOrder(s.Snapshot().Version, models.OrderReceipt{OrderID: "ord-1"}))

	require.NoError(t, s.GoBack(models.StepPassenger))
	st := s.Snapshot()
	assert.Equal(t, models.StepPassenger, st.Step)
	assert.Nil(t, st.Order)
	assert.Equal(t, "budi@example.com", st.Contact.Email)
	assert.Equal(t, seat("1B1"), st.Passengers[2].Seat)

	assert.ErrorIs(t, s.GoBack(models.StepPayment), ErrInvalidTransition)
}

func TestReset(t *testing.T) {
	s := storeAtPassenger(t)
	fillPassengers(t, s)
	v := s.Snapshot().Version

	require.NoError(t, s.Reset())
	st := s.Snapshot()
	assert.Equal(t, models.StepSearch, st.Step)
	assert.Equal(t, DefaultCriteria(fixedNow), st.Criteria)
	assert.Empty(t, st.Passengers)
	assert.Nil(t, st.ChosenSchedule)
	assert.Equal(t, models.Contact{}, st.Contact)
	assert.Greater(t, st.Version, v)

	_, ok := s.SeatMap()
	assert.False(t, ok)
}

func TestSeatMap(t *testing.T) {
	s := storeAtPassenger(t)
	require.NoError(t, s.PickSeats(seats.Change{Index: 2, Seat: seat("2A1")}))
	_, err := s.MarkOccupied(seat("1A1"))
	require.NoError(t, err)

	m, ok := s.SeatMap()
	require.True(t, ok)
	require.Len(t, m.Coaches, 2) // 48 seats, 24 per executive coach
	assert.Len(t, m.Coaches[0].Seats, 24)

	first := m.Coaches[0].Seats[0]
	assert.Equal(t, seat("1A1"), first.Label)
	assert.True(t, first.Occupied)

	held := m.Coaches[1].Seats[0]
	require.NotNil(t, held.Passenger)
	assert.Equal(t, 2, *held.Passenger)
}

func TestListeners_SeeCommitsInOrder(t *testing.T) {
	s := newTestStore()

	var versions []uint64
	s.Subscribe(func(st models.BookingState) {
		versions = append(versions, st.Version)
		// A nested commit runs after the one being delivered.
		if st.Version == 1 {
			require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Destination: ptr("BDO")}))
			assert.Equal(t, []uint64{1}, versions)
		}
	})

	require.NoError(t, s.SetSearchCriteria(CriteriaPatch{Origin: ptr("GMR")}))
	assert.Equal(t, []uint64{1, 2}, versions)

	// Failed operations do not notify.
	require.Error(t, s.AdvanceStep(models.StepPayment))
	assert.Len(t, versions, 2)
}

func TestStore_ConcurrentPicksNeverDuplicate(t *testing.T) {
	s := storeAtPassenger(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				_ = s.PickSeats(seats.Change{Index: idx, Seat: seat("1A1")})
				_ = s.ClearSeat(idx)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, CheckInvariants(s.Snapshot()))
}
