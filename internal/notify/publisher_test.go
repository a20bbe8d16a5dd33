package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

func testEvent() Event {
	return Event{
		ID:               "evt-1",
		Type:             EventBookingConfirmed,
		OrderID:          "ord-1",
		ScheduleID:       "sch-1",
		Contact:          models.Contact{Name: "Budi", Email: "budi@example.com", Phone: "0812"},
		Seats:            []models.SeatLabel{{Coach: 2, Row: "A", Column: 1}},
		TotalAmount:      405000,
		ConfirmationCode: "TRN-ABC123",
		Status:           models.OrderStatusConfirmed,
		OccurredAt:       time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "bookings" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "ord-1" {
			return errors.New("wrong key " + string(key))
		}
		raw, _ := msg.Value.Encode()
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		if e.Seats[0].String() != "2A1" || e.TotalAmount != 405000 {
			return errors.New("unexpected body " + string(raw))
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "bookings", logger.NewWithWriter(io.Discard, "info"))
	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "bookings", logger.NewWithWriter(io.Discard, "info"))
	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	p := NewKafkaPublisherWithProducer(producer, "bookings", logger.NewWithWriter(io.Discard, "info"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, testEvent()), context.Canceled)
	require.NoError(t, p.Close())
}

func TestLogPublisher_KeepsEvents(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(logger.NewWithWriter(&buf, "info"))
	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Len(t, p.Events(), 1)
	assert.Contains(t, buf.String(), `"msg":"Booking event"`)
}
