package models

import (
	"strings"
	"time"
)

// DateLayout is the wire format of travel dates.
const DateLayout = "2006-01-02"

// Station is a departure or arrival point
type Station struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	City string `json:"city"`
}

// TrainCategory selects the seat geometry of a train
type TrainCategory string

const (
	CategoryExecutive TrainCategory = "EXECUTIVE"
	CategoryBusiness  TrainCategory = "BUSINESS"
	CategoryEconomy   TrainCategory = "ECONOMY"
	CategoryLuxury    TrainCategory = "LUXURY"
	CategoryPriority  TrainCategory = "PRIORITY"
)

// Normalize upper-cases the category so "luxury" and "LUXURY" select the same layout.
func (c TrainCategory) Normalize() TrainCategory {
	return TrainCategory(strings.ToUpper(strings.TrimSpace(string(c))))
}

// Train describes the rolling stock serving a schedule
type Train struct {
	Name       string        `json:"name"`
	Number     string        `json:"number"`
	Category   TrainCategory `json:"category"`
	Facilities []string      `json:"facilities"`
	Capacity   int           `json:"capacity"`
}

// Schedule is one concrete departure of a train between two stations
type Schedule struct {
	ID              string    `json:"id"`
	Train           Train     `json:"train"`
	Origin          Station   `json:"origin"`
	Destination     Station   `json:"destination"`
	DepartureTime   time.Time `json:"departureTime"`
	ArrivalTime     time.Time `json:"arrivalTime"`
	DurationMinutes int       `json:"durationMinutes"`
	BaseFare        Money     `json:"baseFare"`
	SeatsAvailable  int       `json:"seatsAvailable"`
}

// Ticket is a flattened schedule row used by the catalog-style booking page
type Ticket struct {
	ID              string        `json:"id"`
	ScheduleID      string        `json:"scheduleId"`
	TrainName       string        `json:"trainName"`
	TrainNumber     string        `json:"trainNumber"`
	Category        TrainCategory `json:"category"`
	OriginCode      string        `json:"originCode"`
	DestinationCode string        `json:"destinationCode"`
	DepartureTime   time.Time     `json:"departureTime"`
	ArrivalTime     time.Time     `json:"arrivalTime"`
	Price           Money         `json:"price"`
	SeatsAvailable  int           `json:"seatsAvailable"`
}
