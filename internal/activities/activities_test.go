package activities

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/database"
	"github.com/cx-tal-miterani/train-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/notify"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, failureReason string) error {
	return m.Called(ctx, id, status, failureReason).Error(0)
}

func (m *mockStore) UpdateOrderPayment(ctx context.Context, id string, attempts int, failureReason string) error {
	return m.Called(ctx, id, attempts, failureReason).Error(0)
}

func (m *mockStore) ConfirmOrder(ctx context.Context, id, confirmationCode string) error {
	return m.Called(ctx, id, confirmationCode).Error(0)
}

func seat(s string) models.SeatLabel {
	l, err := models.ParseSeatLabel(s)
	if err != nil {
		panic(err)
	}
	return l
}

func testOrder() models.OrderWorkflowInput {
	return models.OrderWorkflowInput{
		OrderID:    "order-1",
		ScheduleID: "sch-1",
		UserID:     "user-1",
		Contact:    models.Contact{Name: "Budi", Email: "budi@example.com", Phone: "0812"},
		Passengers: []models.OrderPassenger{
			{Type: models.PassengerAdult, Name: "Budi", IdentityNumber: "317", Seat: seat("1A1"), Price: 150000},
			{Type: models.PassengerChild, Name: "Sari", IdentityNumber: "318", Seat: seat("1A2"), Price: 105000},
		},
		TotalAmount: 255000,
	}
}

type ActivitiesTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env       *testsuite.TestActivityEnvironment
	store     *mockStore
	holder    *inventory.MemoryHolder
	publisher *notify.LogPublisher
	acts      *Activities
}

func (s *ActivitiesTestSuite) SetupTest() {
	s.env = s.NewTestActivityEnvironment()
	s.store = &mockStore{}
	s.holder = inventory.NewMemoryHolder()
	s.publisher = notify.NewLogPublisher(logger.NewWithWriter(io.Discard, "info"))
	s.acts = New(s.store, s.holder, s.publisher,
		WithPaymentDelay(0),
		WithPaymentFailureRate(0),
	)
	s.env.RegisterActivity(s.acts)
}

func (s *ActivitiesTestSuite) AfterTest(suiteName, testName string) {
	s.store.AssertExpectations(s.T())
}

func TestActivitiesTestSuite(t *testing.T) {
	suite.Run(t, new(ActivitiesTestSuite))
}

func (s *ActivitiesTestSuite) TestRecordOrder_StoresPendingOrder() {
	s.store.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.ID == "order-1" && o.Status == models.OrderStatusPending && len(o.Passengers) == 2 && o.TotalAmount == 255000
	})).Return(nil)

	_, err := s.env.ExecuteActivity(s.acts.RecordOrder, testOrder())
	s.NoError(err)
}

func (s *ActivitiesTestSuite) TestRecordOrder_AlreadyStored() {
	s.store.On("CreateOrder", mock.Anything, mock.Anything).
		Return(apperr.ConflictError{Resource: "order", Err: database.ErrOrderExists})

	_, err := s.env.ExecuteActivity(s.acts.RecordOrder, testOrder())
	s.NoError(err)
}

func (s *ActivitiesTestSuite) TestRecordOrder_StoreFailure() {
	s.store.On("CreateOrder", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := s.env.ExecuteActivity(s.acts.RecordOrder, testOrder())
	s.Error(err)
}

func (s *ActivitiesTestSuite) TestReserveSeats_Success() {
	in := models.ReserveSeatsInput{OrderID: "order-1", ScheduleID: "sch-1", Seats: []models.SeatLabel{seat("1A1"), seat("1A2")}}

	val, err := s.env.ExecuteActivity(s.acts.ReserveSeats, in)
	s.Require().NoError(err)

	var res models.ReserveSeatsResult
	s.Require().NoError(val.Get(&res))
	s.True(res.Success)
	s.Equal(in.Seats, res.Seats)
	s.False(res.HoldExpiry.IsZero())

	held, err := s.holder.Held(context.Background(), "sch-1")
	s.Require().NoError(err)
	s.Equal("order-1", held[seat("1A1")])
	s.Equal("order-1", held[seat("1A2")])
}

func (s *ActivitiesTestSuite) TestReserveSeats_Conflict() {
	_, err := s.holder.Hold(context.Background(), "sch-1", "order-2", []models.SeatLabel{seat("1A2")}, time.Minute)
	s.Require().NoError(err)

	in := models.ReserveSeatsInput{OrderID: "order-1", ScheduleID: "sch-1", Seats: []models.SeatLabel{seat("1A1"), seat("1A2")}}
	val, err := s.env.ExecuteActivity(s.acts.ReserveSeats, in)
	s.Require().NoError(err)

	var res models.ReserveSeatsResult
	s.Require().NoError(val.Get(&res))
	s.False(res.Success)
	s.Equal([]models.SeatLabel{seat("1A2")}, res.Conflicts)

	held, _ := s.holder.Held(context.Background(), "sch-1")
	_, ok := held[seat("1A1")]
	s.False(ok, "nothing is held on conflict")
}

func (s *ActivitiesTestSuite) TestReleaseSeats() {
	_, err := s.holder.Hold(context.Background(), "sch-1", "order-1", []models.SeatLabel{seat("1A1")}, time.Minute)
	s.Require().NoError(err)

	_, err = s.env.ExecuteActivity(s.acts.ReleaseSeats, models.ReleaseSeatsInput{OrderID: "order-1", ScheduleID: "sch-1", Reason: "cancelled"})
	s.Require().NoError(err)

	held, _ := s.holder.Held(context.Background(), "sch-1")
	s.Empty(held)
}

func (s *ActivitiesTestSuite) TestValidatePayment_InvalidCodes() {
	for _, code := range []string{"1234", "123456", "12a45", ""} {
		val, err := s.env.ExecuteActivity(s.acts.ValidatePayment, models.ValidatePaymentInput{OrderID: "order-1", PaymentCode: code})
		s.Require().NoError(err)

		var res models.ValidatePaymentResult
		s.Require().NoError(val.Get(&res))
		s.False(res.Success, code)
		s.False(res.CanRetry, code)
	}
}

func (s *ActivitiesTestSuite) TestValidatePayment_Success() {
	val, err := s.env.ExecuteActivity(s.acts.ValidatePayment, models.ValidatePaymentInput{OrderID: "order-1", PaymentCode: "12345", Amount: 255000})
	s.Require().NoError(err)

	var res models.ValidatePaymentResult
	s.Require().NoError(val.Get(&res))
	s.True(res.Success)
	s.NotEmpty(res.TransactionID)
}

func (s *ActivitiesTestSuite) TestValidatePayment_Declined() {
	acts := New(s.store, s.holder, s.publisher, WithPaymentDelay(0), WithPaymentFailureRate(1))
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.ValidatePayment, models.ValidatePaymentInput{OrderID: "order-1", PaymentCode: "12345"})
	s.Require().NoError(err)

	var res models.ValidatePaymentResult
	s.Require().NoError(val.Get(&res))
	s.False(res.Success)
	s.True(res.CanRetry)
}

func (s *ActivitiesTestSuite) TestConfirmBooking_Success() {
	code := ConfirmationCode("order-1")
	s.store.On("ConfirmOrder", mock.Anything, "order-1", code).Return(nil)

	val, err := s.env.ExecuteActivity(s.acts.ConfirmBooking, models.ConfirmBookingInput{Order: testOrder()})
	s.Require().NoError(err)

	var res models.ConfirmBookingResult
	s.Require().NoError(val.Get(&res))
	s.True(res.Success)
	s.Equal(code, res.ConfirmationCode)
}

func (s *ActivitiesTestSuite) TestConfirmBooking_SeatsTaken() {
	s.store.On("ConfirmOrder", mock.Anything, "order-1", mock.Anything).
		Return(apperr.ConflictError{Resource: "seats", Seats: []models.SeatLabel{seat("1A2")}, Err: database.ErrSeatNotAvailable})

	val, err := s.env.ExecuteActivity(s.acts.ConfirmBooking, models.ConfirmBookingInput{Order: testOrder()})
	s.Require().NoError(err)

	var res models.ConfirmBookingResult
	s.Require().NoError(val.Get(&res))
	s.False(res.Success)
	s.Equal([]models.SeatLabel{seat("1A2")}, res.Conflicts)
}

func (s *ActivitiesTestSuite) TestConfirmBooking_TerminalOrder() {
	s.store.On("ConfirmOrder", mock.Anything, "order-1", mock.Anything).Return(database.ErrOrderNotConfirmed)

	_, err := s.env.ExecuteActivity(s.acts.ConfirmBooking, models.ConfirmBookingInput{Order: testOrder()})
	s.Error(err)
}

func (s *ActivitiesTestSuite) TestUpdateOrderStatus() {
	s.store.On("UpdateOrderPayment", mock.Anything, "order-1", 2, "").Return(nil)
	s.store.On("UpdateOrderStatus", mock.Anything, "order-1", models.OrderStatusConfirmed, "").Return(nil)

	_, err := s.env.ExecuteActivity(s.acts.UpdateOrderStatus, models.UpdateOrderStatusInput{
		OrderID: "order-1", Status: models.OrderStatusConfirmed, PaymentAttempts: 2,
	})
	s.NoError(err)
}

func (s *ActivitiesTestSuite) TestUpdateOrderStatus_WithoutAttempts() {
	s.store.On("UpdateOrderStatus", mock.Anything, "order-1", models.OrderStatusExpired, models.FailureExpired).Return(nil)

	_, err := s.env.ExecuteActivity(s.acts.UpdateOrderStatus, models.UpdateOrderStatusInput{
		OrderID: "order-1", Status: models.OrderStatusExpired, FailureReason: models.FailureExpired,
	})
	s.NoError(err)
}

func (s *ActivitiesTestSuite) TestSendConfirmation() {
	in := testOrder()
	_, err := s.env.ExecuteActivity(s.acts.SendConfirmation, models.SendConfirmationInput{
		OrderID:          in.OrderID,
		ScheduleID:       in.ScheduleID,
		Contact:          in.Contact,
		Seats:            in.Seats(),
		TotalAmount:      in.TotalAmount,
		ConfirmationCode: "TRN-ABCDEF12",
		Status:           models.OrderStatusConfirmed,
	})
	s.Require().NoError(err)

	events := s.publisher.Events()
	s.Require().Len(events, 1)
	s.Equal(notify.EventBookingConfirmed, events[0].Type)
	s.Equal("TRN-ABCDEF12", events[0].ConfirmationCode)
}

func (s *ActivitiesTestSuite) TestSendConfirmation_Failed() {
	_, err := s.env.ExecuteActivity(s.acts.SendConfirmation, models.SendConfirmationInput{
		OrderID:       "order-1",
		Status:        models.OrderStatusFailed,
		FailureReason: models.FailurePaymentFailed,
	})
	s.Require().NoError(err)

	events := s.publisher.Events()
	s.Require().Len(events, 1)
	s.Equal(notify.EventBookingFailed, events[0].Type)
}

func TestConfirmationCode_Stable(t *testing.T) {
	a := ConfirmationCode("order-1")
	assert.Equal(t, a, ConfirmationCode("order-1"))
	assert.NotEqual(t, a, ConfirmationCode("order-2"))
	assert.Len(t, a, len("TRN-")+8)
}

func TestCheckPaymentCode(t *testing.T) {
	assert.Empty(t, checkPaymentCode("00000"))
	assert.Contains(t, checkPaymentCode("1234"), "5 digits")
	assert.Contains(t, checkPaymentCode("1234x"), "only digits")
}

func TestDecline_Deterministic(t *testing.T) {
	a := New(nil, nil, nil, WithPaymentFailureRate(0.5), WithRandSource(rand.NewSource(1)))
	b := New(nil, nil, nil, WithPaymentFailureRate(0.5), WithRandSource(rand.NewSource(1)))
	for i := 0; i < 10; i++ {
		require.Equal(t, a.decline(), b.decline())
	}
}
