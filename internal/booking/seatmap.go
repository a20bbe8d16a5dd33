package booking

import (
	"github.com/cx-tal-miterani/train-booking-system/internal/seatmap"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// SeatState is one seat as the picker shows it.
type SeatState struct {
	seatmap.Seat
	Occupied  bool `json:"occupied"`
	Passenger *int `json:"passenger,omitempty"`
}

type CoachMap struct {
	Coach int         `json:"coach"`
	Seats []SeatState `json:"seats"`
}

type SeatMap struct {
	Layout  seatmap.Layout `json:"layout"`
	Coaches []CoachMap     `json:"coaches"`
}

// SeatMap renders every coach of the chosen schedule with occupancy and the
// passenger sitting on each seat. ok is false before a schedule is chosen.
func (s *Store) SeatMap() (SeatMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker == nil {
		return SeatMap{}, false
	}
	tr := s.tracker
	layout := tr.Layout()

	holders := make(map[models.SeatLabel]int, tr.Len())
	for i, l := range tr.Assignments() {
		if !l.IsZero() {
			holders[l] = i
		}
	}

	out := SeatMap{Layout: layout, Coaches: make([]CoachMap, 0, tr.Coaches())}
	for coach := 1; coach <= tr.Coaches(); coach++ {
		base := s.layouts.Coach(layout.Category, coach)
		cm := CoachMap{Coach: coach, Seats: make([]SeatState, len(base))}
		for i, seat := range base {
			st := SeatState{Seat: seat, Occupied: tr.IsOccupied(seat.Label)}
			if idx, ok := holders[seat.Label]; ok {
				idx := idx
				st.Passenger = &idx
			}
			cm.Seats[i] = st
		}
		out.Coaches = append(out.Coaches, cm)
	}
	return out, true
}

// OccupiedSeats lists the seats currently known to be taken by other bookings.
func (s *Store) OccupiedSeats() []models.SeatLabel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return nil
	}
	return s.tracker.Occupied()
}
