package seatmap

import (
	"sync"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// Layout is the seat geometry of one coach for a train category
type Layout struct {
	Category        models.TrainCategory `json:"category"`
	Rows            int                  `json:"rows"`
	Columns         int                  `json:"columns"`
	RowLabels       []string             `json:"rowLabels"`
	LeftBlock       int                  `json:"leftBlock"`
	RightBlock      int                  `json:"rightBlock"`
	HasCentralAisle bool                 `json:"hasCentralAisle"`
}

type geometry struct {
	rows, left, right int
}

// Category geometry is fixed policy. Unknown categories use the business layout.
var geometries = map[models.TrainCategory]geometry{
	models.CategoryExecutive: {rows: 6, left: 2, right: 2},
	models.CategoryBusiness:  {rows: 8, left: 2, right: 2},
	models.CategoryEconomy:   {rows: 10, left: 2, right: 2},
	models.CategoryLuxury:    {rows: 6, left: 1, right: 1},
	models.CategoryPriority:  {rows: 3, left: 1, right: 1},
}

// LayoutFor returns the coach layout for a train category.
func LayoutFor(category models.TrainCategory) Layout {
	category = category.Normalize()
	g, ok := geometries[category]
	if !ok {
		category = models.CategoryBusiness
		g = geometries[category]
	}

	labels := make([]string, g.rows)
	for i := range labels {
		labels[i] = string(rune('A' + i))
	}

	return Layout{
		Category:        category,
		Rows:            g.rows,
		Columns:         g.left + g.right,
		RowLabels:       labels,
		LeftBlock:       g.left,
		RightBlock:      g.right,
		HasCentralAisle: true,
	}
}

func (l Layout) SeatsPerCoach() int {
	return l.Rows * l.Columns
}

// CoachCount is how many coaches of this layout carry the given capacity.
func (l Layout) CoachCount(capacity int) int {
	per := l.SeatsPerCoach()
	if per == 0 || capacity <= per {
		return 1
	}
	return (capacity + per - 1) / per
}

func (l Layout) rowIndex(row string) int {
	for i, r := range l.RowLabels {
		if r == row {
			return i
		}
	}
	return -1
}

// Contains reports whether the label names a seat of this layout within the
// first `coaches` coaches.
func (l Layout) Contains(label models.SeatLabel, coaches int) bool {
	if label.Coach < 1 || label.Coach > coaches {
		return false
	}
	if label.Column < 1 || label.Column > l.Columns {
		return false
	}
	return l.rowIndex(label.Row) >= 0
}

// Seat is a seat position with its presentational metadata
type Seat struct {
	Label models.SeatLabel `json:"label"`
	// Window and Aisle follow the column parity convention: odd columns are
	// window seats, even columns sit by the aisle.
	Window bool `json:"window"`
	Aisle  bool `json:"aisle"`
	// AisleAfter marks the last seat of the left block.
	AisleAfter bool `json:"aisleAfter"`
}

// Coach lists every seat of one coach, row by row, left to right.
func (l Layout) Coach(coach int) []Seat {
	seats := make([]Seat, 0, l.SeatsPerCoach())
	for _, row := range l.RowLabels {
		for col := 1; col <= l.Columns; col++ {
			seats = append(seats, Seat{
				Label:      models.SeatLabel{Coach: coach, Row: row, Column: col},
				Window:     col%2 == 1,
				Aisle:      col%2 == 0,
				AisleAfter: l.HasCentralAisle && col == l.LeftBlock,
			})
		}
	}
	return seats
}

type cacheKey struct {
	category models.TrainCategory
	coach    int
}

// Cache memoizes coach seat lists per (category, coach) pair.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey][]Seat
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]Seat)}
}

// Coach returns the seats of a coach for the category, generating them once.
// Callers must not modify the returned slice.
func (c *Cache) Coach(category models.TrainCategory, coach int) []Seat {
	layout := LayoutFor(category)
	key := cacheKey{category: layout.Category, coach: coach}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seats, ok := c.entries[key]; ok {
		return seats
	}
	seats := layout.Coach(coach)
	c.entries[key] = seats
	return seats
}

// Len is the number of cached coaches.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
