package database

import (
	"time"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// ScheduleFilter narrows a schedule search. Empty fields match everything.
type ScheduleFilter struct {
	OriginCode      string
	DestinationCode string
	// Date selects departures on that calendar day in Location.
	Date     time.Time
	Location *time.Location
}

// dayBounds returns [start, end) of the filter day, or zero times when no
// date is set.
func (f ScheduleFilter) dayBounds() (time.Time, time.Time) {
	if f.Date.IsZero() {
		return time.Time{}, time.Time{}
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := f.Date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// scheduleRow is what a schedules join scans into before the money and
// category columns are converted.
type scheduleRow struct {
	schedule models.Schedule
	category string
	baseFare int64
	capacity int
	booked   int
}

func (r scheduleRow) toModel() models.Schedule {
	s := r.schedule
	s.Train.Category = models.TrainCategory(r.category).Normalize()
	s.Train.Capacity = r.capacity
	s.BaseFare = models.Money(r.baseFare)
	s.DurationMinutes = int(s.ArrivalTime.Sub(s.DepartureTime).Minutes())
	s.SeatsAvailable = r.capacity - r.booked
	if s.SeatsAvailable < 0 {
		s.SeatsAvailable = 0
	}
	if s.Train.Facilities == nil {
		s.Train.Facilities = []string{}
	}
	return s
}
