package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSeatNotAvailable  = errors.New("seat not available")
	ErrOrderExists       = errors.New("order already exists")
	ErrOrderNotConfirmed = errors.New("order cannot be confirmed")
)

const uniqueViolation = "23505"

// Repository handles all database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Catalog Operations ---

// ListStations returns every station ordered by city
func (r *Repository) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, city
		FROM stations
		ORDER BY city, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	stations := []models.Station{}
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.City); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

const scheduleSelect = `
	SELECT s.id, s.departure_time, s.arrival_time, s.base_fare,
	       t.name, t.number, t.category, t.capacity, t.facilities,
	       o.id, o.code, o.name, o.city,
	       d.id, d.code, d.name, d.city,
	       (SELECT COUNT(*) FROM booked_seats b WHERE b.schedule_id = s.id)
	FROM schedules s
	JOIN trains t ON t.id = s.train_id
	JOIN stations o ON o.id = s.origin_id
	JOIN stations d ON d.id = s.destination_id
`

func scanSchedule(row pgx.Row) (models.Schedule, error) {
	var r scheduleRow
	s := &r.schedule
	err := row.Scan(
		&s.ID, &s.DepartureTime, &s.ArrivalTime, &r.baseFare,
		&s.Train.Name, &s.Train.Number, &r.category, &r.capacity, &s.Train.Facilities,
		&s.Origin.ID, &s.Origin.Code, &s.Origin.Name, &s.Origin.City,
		&s.Destination.ID, &s.Destination.Code, &s.Destination.Name, &s.Destination.City,
		&r.booked,
	)
	if err != nil {
		return models.Schedule{}, err
	}
	return r.toModel(), nil
}

// FindSchedules returns the departures matching the filter, earliest first
func (r *Repository) FindSchedules(ctx context.Context, f ScheduleFilter) ([]models.Schedule, error) {
	start, end := f.dayBounds()
	query := scheduleSelect + `
		WHERE ($1 = '' OR o.code = $1)
		  AND ($2 = '' OR d.code = $2)
		  AND ($3::timestamptz IS NULL OR s.departure_time >= $3)
		  AND ($4::timestamptz IS NULL OR s.departure_time < $4)
		ORDER BY s.departure_time ASC
	`

	var from, to *time.Time
	if !start.IsZero() {
		from, to = &start, &end
	}

	rows, err := r.pool.Query(ctx, query, f.OriginCode, f.DestinationCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// GetSchedule returns one schedule by ID
func (r *Repository) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	s, err := scanSchedule(r.pool.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &s, nil
}

// ListTickets flattens upcoming schedules into catalog rows
func (r *Repository) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	rows, err := r.pool.Query(ctx, scheduleSelect+`
		WHERE s.departure_time > NOW()
		ORDER BY s.departure_time ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, models.Ticket{
			ID:              s.ID,
			ScheduleID:      s.ID,
			TrainName:       s.Train.Name,
			TrainNumber:     s.Train.Number,
			Category:        s.Train.Category,
			OriginCode:      s.Origin.Code,
			DestinationCode: s.Destination.Code,
			DepartureTime:   s.DepartureTime,
			ArrivalTime:     s.ArrivalTime,
			Price:           s.BaseFare,
			SeatsAvailable:  s.SeatsAvailable,
		})
	}
	return tickets, rows.Err()
}

// BookedSeats returns the sold seats of a schedule
func (r *Repository) BookedSeats(ctx context.Context, scheduleID string) ([]models.SeatLabel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seat_label FROM booked_seats WHERE schedule_id = $1 ORDER BY seat_label
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booked seats: %w", err)
	}
	defer rows.Close()

	seats := []models.SeatLabel{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan seat label: %w", err)
		}
		label, err := models.ParseSeatLabel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid seat label %q in booked_seats: %w", raw, err)
		}
		seats = append(seats, label)
	}
	return seats, rows.Err()
}

// --- Order Operations ---

// CreateOrder stores a new order with its passengers
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var holdExpiry *time.Time
	if !order.SeatHoldExpiry.IsZero() {
		holdExpiry = &order.SeatHoldExpiry
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, schedule_id, user_id, contact_name, contact_email, contact_phone,
		                    status, total_amount, seat_hold_expiry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, order.ID, order.ScheduleID, order.UserID,
		order.Contact.Name, order.Contact.Email, order.Contact.Phone,
		string(order.Status), int64(order.TotalAmount), holdExpiry,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ConflictError{Resource: "order", Msg: order.ID + " already exists", Err: ErrOrderExists}
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i, p := range order.Passengers {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_passengers (order_id, position, passenger_type, name, identity_number, seat_label, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, order.ID, i, p.Type.String(), p.Name, p.IdentityNumber, p.Seat.String(), int64(p.Price))
		if err != nil {
			return fmt.Errorf("failed to add order passenger: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetOrder returns an order by ID with its passengers
func (r *Repository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var (
		o      models.Order
		status string
		total  int64
		expiry *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, schedule_id, user_id, contact_name, contact_email, contact_phone,
		       status, total_amount, payment_attempts, seat_hold_expiry,
		       confirmation_code, failure_reason, created_at, updated_at, confirmed_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&o.ID, &o.ScheduleID, &o.UserID, &o.Contact.Name, &o.Contact.Email, &o.Contact.Phone,
		&status, &total, &o.PaymentAttempts, &expiry,
		&o.ConfirmationCode, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	o.Status = models.OrderStatus(status)
	o.TotalAmount = models.Money(total)
	if expiry != nil {
		o.SeatHoldExpiry = *expiry
	}

	rows, err := r.pool.Query(ctx, `
		SELECT passenger_type, name, identity_number, seat_label, price
		FROM order_passengers
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order passengers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         models.OrderPassenger
			typ, seat string
			price     int64
		)
		if err := rows.Scan(&typ, &p.Name, &p.IdentityNumber, &seat, &price); err != nil {
			return nil, fmt.Errorf("failed to scan order passenger: %w", err)
		}
		if p.Type, err = models.ParsePassengerType(typ); err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		if p.Seat, err = models.ParseSeatLabel(seat); err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		p.Price = models.Money(price)
		o.Passengers = append(o.Passengers, p)
	}
	return &o, rows.Err()
}

// UpdateOrderStatus updates the status of an order
func (r *Repository) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, failureReason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3
	`, string(status), failureReason, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOrderPayment records the number of payment attempts
func (r *Repository) UpdateOrderPayment(ctx context.Context, id string, attempts int, failureReason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orders SET payment_attempts = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3
	`, attempts, failureReason, id)
	if err != nil {
		return fmt.Errorf("failed to update order payment: %w", err)
	}
	return nil
}

// ConfirmOrder books the order's seats and marks it confirmed in one
// transaction. Seats sold to another order in the meantime are returned in
// an apperr.ConflictError and nothing is written.
func (r *Repository) ConfirmOrder(ctx context.Context, id, confirmationCode string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var scheduleID, status string
	err = tx.QueryRow(ctx, `SELECT schedule_id, status FROM orders WHERE id = $1 FOR UPDATE`, id).
		Scan(&scheduleID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock order: %w", err)
	}
	if models.OrderStatus(status).Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotConfirmed, id, status)
	}

	rows, err := tx.Query(ctx, `SELECT seat_label FROM order_passengers WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return fmt.Errorf("failed to query order seats: %w", err)
	}
	labels, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to scan order seats: %w", err)
	}

	var conflicts []models.SeatLabel
	for _, label := range labels {
		tag, err := tx.Exec(ctx, `
			INSERT INTO booked_seats (schedule_id, seat_label, order_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (schedule_id, seat_label) DO NOTHING
		`, scheduleID, label, id)
		if err != nil {
			return fmt.Errorf("failed to book seat %s: %w", label, err)
		}
		if tag.RowsAffected() == 0 {
			seat, _ := models.ParseSeatLabel(label)
			conflicts = append(conflicts, seat)
		}
	}
	if len(conflicts) > 0 {
		return apperr.ConflictError{Resource: "seats", Seats: conflicts, Msg: "are already booked", Err: ErrSeatNotAvailable}
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, confirmation_code = $2, confirmed_at = NOW(), updated_at = NOW(), failure_reason = ''
		WHERE id = $3
	`, string(models.OrderStatusConfirmed), confirmationCode, id)
	if err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}

	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
