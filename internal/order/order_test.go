package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/mocks"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/booking"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

func testLogger() *logger.Logger { return logger.NewWithWriter(io.Discard, "info") }

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.OrderReceipt), args.Error(1)
}

func (m *mockGateway) CheckPaymentStatus(ctx context.Context, orderID string) (PaymentStatus, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(PaymentStatus), args.Error(1)
}

func (m *mockGateway) CancelOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

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

// storeAtPayment walks a booking for 2 adults and 1 child to PAYMENT.
func storeAtPayment(t *testing.T) *booking.Store {
	t.Helper()
	s := booking.NewStore(booking.WithClock(func() time.Time {
		return time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, s.SetSearchCriteria(booking.CriteriaPatch{
		Origin:      ptr("GMR"),
		Destination: ptr("BDO"),
		Date:        ptr("2024-06-01"),
		Adults:      ptr(2),
		Children:    ptr(1),
	}))
	require.NoError(t, s.SetSchedules(s.Snapshot().Criteria, []models.Schedule{testSchedule()}))
	require.NoError(t, s.SelectSchedule(testSchedule()))
	for i, l := range []string{"1A1", "1A2", "1B1"} {
		require.NoError(t, s.UpdatePassenger(i, booking.PassengerPatch{
			Name:           ptr("Passenger"),
			IdentityNumber: ptr("3201000000000001"),
			Seat:           ptr(seat(l)),
		}))
	}
	require.NoError(t, s.SetContactInfo(booking.ContactPatch{
		Name:  ptr("Budi"),
		Email: ptr("budi@example.com"),
		Phone: ptr("08123456789"),
	}))
	require.NoError(t, s.AdvanceStep(models.StepPayment))
	return s
}

func TestBuildRequest(t *testing.T) {
	s := storeAtPayment(t)
	req := BuildRequest(s.Snapshot(), "user-1")

	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, "sch-1", req.TicketID)
	assert.Equal(t, 3, req.PassengerCount)
	assert.Equal(t, models.Money(405000), req.TotalPrice)
	assert.Equal(t, []models.PassengerType{models.PassengerAdult, models.PassengerAdult, models.PassengerChild}, req.PassengerTypes)
	assert.Equal(t, []models.SeatLabel{seat("1A1"), seat("1A2"), seat("1B1")}, req.SeatLabels)
	assert.Equal(t, "budi@example.com", req.Contact.Email)

	in := WorkflowInput("ord-1", req)
	assert.Equal(t, "sch-1", in.ScheduleID)
	assert.Equal(t, req.SeatLabels, in.Seats())
}

func TestSubmit_RecordsReceipt(t *testing.T) {
	s := storeAtPayment(t)
	gw := &mockGateway{}
	receipt := models.OrderReceipt{OrderID: "ord-1", PaymentRedirect: "http://pay.local/ord-1", Status: models.TransactionPending}
	gw.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(r models.OrderRequest) bool {
		return r.TicketID == "sch-1" && r.PassengerCount == 3
	})).Return(receipt, nil).Once()

	sub := NewSubmitter(gw, nil, testLogger())
	got, err := sub.Submit(context.Background(), s, "user-1")
	require.NoError(t, err)
	assert.Equal(t, receipt, got)
	assert.Equal(t, &receipt, s.Snapshot().Order)

	// A second submit returns the live order without calling the gateway.
	again, err := sub.Submit(context.Background(), s, "user-1")
	require.NoError(t, err)
	assert.Equal(t, receipt, again)
	gw.AssertExpectations(t)
}

func TestSubmit_RequiresPaymentStep(t *testing.T) {
	s := booking.NewStore()
	gw := &mockGateway{}

	_, err := NewSubmitter(gw, nil, testLogger()).Submit(context.Background(), s, "user-1")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.ErrorIs(t, err, ErrNotInPayment)
	gw.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestSubmit_TransportErrorLeavesStateUntouched(t *testing.T) {
	s := storeAtPayment(t)
	before := s.Snapshot()
	gw := &mockGateway{}
	gw.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(models.OrderReceipt{}, apperr.TransportError{Op: "submit order", Err: errors.New("connection refused")})

	_, err := NewSubmitter(gw, nil, testLogger()).Submit(context.Background(), s, "user-1")
	assert.True(t, apperr.IsTransport(err))
	assert.Equal(t, before, s.Snapshot())
}

func TestSubmit_ConflictClearsSeats(t *testing.T) {
	s := storeAtPayment(t)
	gw := &mockGateway{}
	gw.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(models.OrderReceipt{}, apperr.ConflictError{Resource: "seats", Seats: []models.SeatLabel{seat("1A2")}})

	_, err := NewSubmitter(gw, nil, testLogger()).Submit(context.Background(), s, "user-1")
	assert.True(t, apperr.IsConflict(err))

	st := s.Snapshot()
	assert.Equal(t, models.StepPassenger, st.Step)
	assert.True(t, st.Passengers[1].Seat.IsZero())
	assert.Equal(t, seat("1A1"), st.Passengers[0].Seat)
	assert.Nil(t, st.Order)
}

func TestSubmit_StaleSnapshotCancelsOrder(t *testing.T) {
	s := storeAtPayment(t)
	gw := &mockGateway{}
	gw.On("SubmitOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, err := s.MarkOccupied(seat("2D4"))
			require.NoError(t, err)
		}).
		Return(models.OrderReceipt{OrderID: "ord-1", Status: models.TransactionPending}, nil)
	gw.On("CancelOrder", mock.Anything, "ord-1").Return(nil).Once()

	_, err := NewSubmitter(gw, nil, testLogger()).Submit(context.Background(), s, "user-1")
	assert.ErrorIs(t, err, booking.ErrStaleSnapshot)
	assert.Nil(t, s.Snapshot().Order)
	gw.AssertExpectations(t)
}

func TestRefresh_PaidMovesToConfirmation(t *testing.T) {
	s := storeAtPayment(t)
	require.NoError(t, s.RecordOrder(s.Snapshot().Version, models.OrderReceipt{OrderID: "ord-1", Status: models.TransactionPending}))

	gw := &mockGateway{}
	gw.On("CheckPaymentStatus", mock.Anything, "ord-1").Return(PaymentStatus{
		OrderID:          "ord-1",
		Status:           models.TransactionPaid,
		ConfirmationCode: "TRN-ABC12345",
	}, nil)

	status, err := NewSubmitter(gw, nil, testLogger()).Refresh(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPaid, status.Status)

	st := s.Snapshot()
	assert.Equal(t, models.StepConfirmation, st.Step)
	assert.Equal(t, "TRN-ABC12345", st.Order.ConfirmationCode)
}

func TestRefresh_NoOrder(t *testing.T) {
	s := storeAtPayment(t)
	_, err := NewSubmitter(&mockGateway{}, nil, testLogger()).Refresh(context.Background(), s)
	assert.True(t, apperr.IsNotFound(err))
}

// encodedState stands in for a Temporal query result.
type encodedState struct {
	state models.OrderWorkflowState
}

func (e encodedState) HasValue() bool { return true }

func (e encodedState) Get(valuePtr interface{}) error {
	raw, err := json.Marshal(e.state)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, valuePtr)
}

func newTestGateway(c *mocks.Client) *TemporalGateway {
	g := NewTemporalGateway(c, TemporalConfig{
		PaymentBaseURL: "http://pay.local/",
		SubmitWait:     50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
	g.newID = func() string { return "ord-1" }
	return g
}

func TestTemporalGateway_SubmitOrder(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(in models.OrderWorkflowInput) bool {
		return in.OrderID == "ord-1" && in.ScheduleID == "sch-1"
	})).Return(&mocks.WorkflowRun{}, nil).Once()
	c.On("QueryWorkflow", mock.Anything, "order-ord-1", "", models.QueryGetState).
		Return(encodedState{models.OrderWorkflowState{OrderID: "ord-1", Status: models.OrderStatusAwaitingPayment}}, nil)

	receipt, err := newTestGateway(c).SubmitOrder(context.Background(), models.OrderRequest{TicketID: "sch-1"})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", receipt.OrderID)
	assert.Equal(t, "http://pay.local/ord-1", receipt.PaymentRedirect)
	assert.Equal(t, models.TransactionPending, receipt.Status)
	c.AssertExpectations(t)
}

func TestTemporalGateway_SubmitOrderConflict(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&mocks.WorkflowRun{}, nil)
	c.On("QueryWorkflow", mock.Anything, "order-ord-1", "", models.QueryGetState).
		Return(encodedState{models.OrderWorkflowState{
			OrderID:          "ord-1",
			Status:           models.OrderStatusFailed,
			FailureReason:    models.FailureSeatConflict,
			ConflictingSeats: []models.SeatLabel{seat("1A2")},
		}}, nil)

	_, err := newTestGateway(c).SubmitOrder(context.Background(), models.OrderRequest{TicketID: "sch-1"})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, []models.SeatLabel{seat("1A2")}, apperr.ConflictingSeats(err))
}

func TestTemporalGateway_SubmitOrderStartFails(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal unavailable"))

	_, err := newTestGateway(c).SubmitOrder(context.Background(), models.OrderRequest{TicketID: "sch-1"})
	assert.True(t, apperr.IsTransport(err))
}

func TestTemporalGateway_SubmitOrderPendingAfterWait(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&mocks.WorkflowRun{}, nil)
	c.On("QueryWorkflow", mock.Anything, "order-ord-1", "", models.QueryGetState).
		Return(nil, errors.New("query handler not registered yet"))

	receipt, err := newTestGateway(c).SubmitOrder(context.Background(), models.OrderRequest{TicketID: "sch-1"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, receipt.Status)
}

func TestTemporalGateway_CheckPaymentStatus(t *testing.T) {
	c := &mocks.Client{}
	c.On("QueryWorkflow", mock.Anything, "order-ord-1", "", models.QueryGetState).
		Return(encodedState{models.OrderWorkflowState{
			OrderID:          "ord-1",
			Status:           models.OrderStatusConfirmed,
			ConfirmationCode: "TRN-ABC12345",
			PaymentAttempts:  1,
		}}, nil)

	status, err := newTestGateway(c).CheckPaymentStatus(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPaid, status.Status)
	assert.Equal(t, "TRN-ABC12345", status.ConfirmationCode)
}

func TestTemporalGateway_Signals(t *testing.T) {
	c := &mocks.Client{}
	c.On("SignalWorkflow", mock.Anything, "order-ord-1", "", models.SignalSubmitPayment, models.SubmitPaymentSignal{PaymentCode: "12345"}).
		Return(nil).Once()
	c.On("SignalWorkflow", mock.Anything, "order-ord-1", "", models.SignalCancelOrder, nil).
		Return(errors.New("workflow not found")).Once()

	g := newTestGateway(c)
	require.NoError(t, g.SubmitPayment(context.Background(), "ord-1", "12345"))
	assert.True(t, apperr.IsTransport(g.CancelOrder(context.Background(), "ord-1")))
	c.AssertExpectations(t)
}
