package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cx-tal-miterani/train-booking-system/internal/booking"
	"github.com/cx-tal-miterani/train-booking-system/internal/catalog"
	"github.com/cx-tal-miterani/train-booking-system/internal/order"
	"github.com/cx-tal-miterani/train-booking-system/internal/seats"
	"github.com/cx-tal-miterani/train-booking-system/internal/service"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// MockBookingService is a mock implementation of BookingService
type MockBookingService struct {
	mock.Mock
}

var _ service.BookingService = (*MockBookingService)(nil)

func (m *MockBookingService) view(args mock.Arguments) (*service.SessionView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SessionView), args.Error(1)
}

func (m *MockBookingService) ListStations(ctx context.Context) ([]models.Station, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Station), args.Error(1)
}

func (m *MockBookingService) FindSchedules(ctx context.Context, q catalog.Query) ([]models.Schedule, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Schedule), args.Error(1)
}

func (m *MockBookingService) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockBookingService) SeatOccupancy(ctx context.Context, scheduleID string) ([]models.SeatLabel, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SeatLabel), args.Error(1)
}

func (m *MockBookingService) CreateSession(ctx context.Context) (*service.SessionView, error) {
	return m.view(m.Called(ctx))
}

func (m *MockBookingService) GetSession(ctx context.Context, id string) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id))
}

func (m *MockBookingService) DeleteSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookingService) UpdateCriteria(ctx context.Context, id string, patch booking.CriteriaPatch) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, patch))
}

func (m *MockBookingService) Search(ctx context.Context, id string) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id))
}

func (m *MockBookingService) SelectSchedule(ctx context.Context, id, scheduleID string) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, scheduleID))
}

func (m *MockBookingService) UpdatePassenger(ctx context.Context, id string, index int, patch booking.PassengerPatch) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, index, patch))
}

func (m *MockBookingService) ResizePassengers(ctx context.Context, id string, counts models.PassengerCounts) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, counts))
}

func (m *MockBookingService) PickSeats(ctx context.Context, id string, changes []seats.Change) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, changes))
}

func (m *MockBookingService) ClearSeat(ctx context.Context, id string, index int) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, index))
}

func (m *MockBookingService) SeatMap(ctx context.Context, id string) (*booking.SeatMap, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.SeatMap), args.Error(1)
}

func (m *MockBookingService) UpdateContact(ctx context.Context, id string, patch booking.ContactPatch) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, patch))
}

func (m *MockBookingService) Advance(ctx context.Context, id string, to models.Step) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, to))
}

func (m *MockBookingService) GoBack(ctx context.Context, id string, to models.Step) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id, to))
}

func (m *MockBookingService) Reset(ctx context.Context, id string) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id))
}

func (m *MockBookingService) SubmitOrder(ctx context.Context, id string) (*service.SessionView, error) {
	return m.view(m.Called(ctx, id))
}

func (m *MockBookingService) PaymentStatus(ctx context.Context, id string) (*order.PaymentStatus, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.PaymentStatus), args.Error(1)
}

func (m *MockBookingService) Ticket(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBookingService) PaymentCallback(ctx context.Context, orderID, paymentCode string) error {
	return m.Called(ctx, orderID, paymentCode).Error(0)
}

func (m *MockBookingService) CancelPayment(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}
