// Package catalog reads stations, schedules and seat occupancy.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/internal/database"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// Query selects departures between two stations on one day.
type Query struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
}

func QueryFor(c models.SearchCriteria) Query {
	return Query{Origin: c.Origin, Destination: c.Destination, Date: c.Date}
}

// Gateway is the read side of the train catalog.
type Gateway interface {
	ListStations(ctx context.Context) ([]models.Station, error)
	FindSchedules(ctx context.Context, q Query) ([]models.Schedule, error)
	GetSchedule(ctx context.Context, id string) (models.Schedule, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	BookedSeats(ctx context.Context, scheduleID string) ([]models.SeatLabel, error)
}

// Repository is the part of database.Repository the catalog reads from.
type Repository interface {
	ListStations(ctx context.Context) ([]models.Station, error)
	FindSchedules(ctx context.Context, f database.ScheduleFilter) ([]models.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	BookedSeats(ctx context.Context, scheduleID string) ([]models.SeatLabel, error)
}

// DBGateway serves the catalog straight from Postgres.
type DBGateway struct {
	repo Repository
	loc  *time.Location
}

func NewDBGateway(repo Repository, loc *time.Location) *DBGateway {
	if loc == nil {
		loc = time.UTC
	}
	return &DBGateway{repo: repo, loc: loc}
}

func (g *DBGateway) ListStations(ctx context.Context) ([]models.Station, error) {
	out, err := g.repo.ListStations(ctx)
	if err != nil {
		return nil, apperr.TransportError{Op: "list stations", Err: err}
	}
	return out, nil
}

func (g *DBGateway) FindSchedules(ctx context.Context, q Query) ([]models.Schedule, error) {
	f := database.ScheduleFilter{
		OriginCode:      strings.ToUpper(strings.TrimSpace(q.Origin)),
		DestinationCode: strings.ToUpper(strings.TrimSpace(q.Destination)),
		Location:        g.loc,
	}
	if q.Date != "" {
		d, err := time.ParseInLocation(models.DateLayout, q.Date, g.loc)
		if err != nil {
			return nil, apperr.Validation(err, apperr.Field("date", "must be a date in YYYY-MM-DD form"))
		}
		f.Date = d
	}

	out, err := g.repo.FindSchedules(ctx, f)
	if err != nil {
		return nil, apperr.TransportError{Op: "find schedules", Err: err}
	}
	return out, nil
}

func (g *DBGateway) GetSchedule(ctx context.Context, id string) (models.Schedule, error) {
	s, err := g.repo.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.Schedule{}, apperr.NotFoundError{Resource: "schedule", ID: id, Err: err}
		}
		return models.Schedule{}, apperr.TransportError{Op: "get schedule", Err: err}
	}
	return *s, nil
}

func (g *DBGateway) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	out, err := g.repo.ListTickets(ctx)
	if err != nil {
		return nil, apperr.TransportError{Op: "list tickets", Err: err}
	}
	return out, nil
}

func (g *DBGateway) BookedSeats(ctx context.Context, scheduleID string) ([]models.SeatLabel, error) {
	out, err := g.repo.BookedSeats(ctx, scheduleID)
	if err != nil {
		return nil, apperr.TransportError{Op: "list booked seats", Err: err}
	}
	return out, nil
}
