package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

type seedTrain struct {
	id         string
	number     string
	name       string
	category   models.TrainCategory
	capacity   int
	facilities []string
}

type seedRoute struct {
	train       string
	origin      string
	destination string
	departAt    time.Duration // offset from midnight
	travel      time.Duration
	baseFare    models.Money
}

var seedStations = []models.Station{
	{ID: "st-gmr", Code: "GMR", Name: "Gambir", City: "Jakarta"},
	{ID: "st-bdo", Code: "BDO", Name: "Bandung", City: "Bandung"},
	{ID: "st-yk", Code: "YK", Name: "Yogyakarta", City: "Yogyakarta"},
	{ID: "st-smt", Code: "SMT", Name: "Semarang Tawang", City: "Semarang"},
	{ID: "st-sgu", Code: "SGU", Name: "Surabaya Gubeng", City: "Surabaya"},
}

var seedTrains = []seedTrain{
	{id: "tr-20", number: "KA-20", name: "Argo Parahyangan", category: models.CategoryExecutive, capacity: 240, facilities: []string{"AC", "Power outlet", "Meal"}},
	{id: "tr-7", number: "KA-7", name: "Taksaka", category: models.CategoryLuxury, capacity: 72, facilities: []string{"AC", "Recliner", "Meal", "Wi-Fi"}},
	{id: "tr-112", number: "KA-112", name: "Jayakarta", category: models.CategoryEconomy, capacity: 400, facilities: []string{"AC"}},
	{id: "tr-34", number: "KA-34", name: "Argo Bromo Anggrek", category: models.CategoryBusiness, capacity: 320, facilities: []string{"AC", "Power outlet"}},
	{id: "tr-1", number: "KA-1", name: "Panoramic", category: models.CategoryPriority, capacity: 18, facilities: []string{"AC", "Panorama window", "Meal", "Lounge"}},
}

var seedRoutes = []seedRoute{
	{train: "tr-20", origin: "st-gmr", destination: "st-bdo", departAt: 6 * time.Hour, travel: 3 * time.Hour, baseFare: 150000},
	{train: "tr-20", origin: "st-bdo", destination: "st-gmr", departAt: 14 * time.Hour, travel: 3 * time.Hour, baseFare: 150000},
	{train: "tr-7", origin: "st-gmr", destination: "st-yk", departAt: 8*time.Hour + 30*time.Minute, travel: 7 * time.Hour, baseFare: 620000},
	{train: "tr-112", origin: "st-gmr", destination: "st-sgu", departAt: 10 * time.Hour, travel: 12 * time.Hour, baseFare: 245000},
	{train: "tr-34", origin: "st-gmr", destination: "st-smt", departAt: 20 * time.Hour, travel: 6 * time.Hour, baseFare: 480000},
	{train: "tr-1", origin: "st-gmr", destination: "st-bdo", departAt: 9 * time.Hour, travel: 3*time.Hour + 20*time.Minute, baseFare: 850000},
}

// seedSchedules expands the route table into concrete departures for the
// given number of days starting at the day of `from` in loc.
func seedSchedules(from time.Time, days int, loc *time.Location) []seedSchedule {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := from.In(loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	out := make([]seedSchedule, 0, days*len(seedRoutes))
	for day := 0; day < days; day++ {
		base := midnight.AddDate(0, 0, day)
		for _, r := range seedRoutes {
			depart := base.Add(r.departAt)
			out = append(out, seedSchedule{
				id:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%s/%s/%s", r.train, r.origin, r.destination, depart.Format(time.RFC3339)))).String(),
				train:       r.train,
				origin:      r.origin,
				destination: r.destination,
				departure:   depart,
				arrival:     depart.Add(r.travel),
				baseFare:    r.baseFare,
			})
		}
	}
	return out
}

type seedSchedule struct {
	id          string
	train       string
	origin      string
	destination string
	departure   time.Time
	arrival     time.Time
	baseFare    models.Money
}

// Seed fills an empty catalog with sample stations, trains and departures.
// Re-running it only adds departures that do not exist yet.
func (r *Repository) Seed(ctx context.Context, from time.Time, days int, loc *time.Location) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range seedStations {
		_, err := tx.Exec(ctx, `
			INSERT INTO stations (id, code, name, city) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.Code, s.Name, s.City)
		if err != nil {
			return 0, fmt.Errorf("failed to seed station %s: %w", s.Code, err)
		}
	}

	for _, t := range seedTrains {
		_, err := tx.Exec(ctx, `
			INSERT INTO trains (id, number, name, category, capacity, facilities) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, t.id, t.number, t.name, string(t.category), t.capacity, t.facilities)
		if err != nil {
			return 0, fmt.Errorf("failed to seed train %s: %w", t.number, err)
		}
	}

	inserted := 0
	for _, s := range seedSchedules(from, days, loc) {
		tag, err := tx.Exec(ctx, `
			INSERT INTO schedules (id, train_id, origin_id, destination_id, departure_time, arrival_time, base_fare)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, s.id, s.train, s.origin, s.destination, s.departure, s.arrival, int64(s.baseFare))
		if err != nil {
			return 0, fmt.Errorf("failed to seed schedule: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit seed: %w", err)
	}
	return inserted, nil
}
