package models

import (
	"fmt"
	"strings"
)

// PassengerType is the closed set of fare categories a passenger can travel under.
type PassengerType uint8

const (
	PassengerAdult PassengerType = iota + 1
	PassengerChild
	PassengerInfant
)

// passengerTypes is the single lookup table for every PassengerType property.
// FarePercent is the share of the base fare charged for the type.
var passengerTypes = [...]struct {
	code        string
	label       string
	farePercent int64
}{
	PassengerAdult:  {code: "ADULT", label: "Adult", farePercent: 100},
	PassengerChild:  {code: "CHILD", label: "Child", farePercent: 70},
	PassengerInfant: {code: "INFANT", label: "Infant", farePercent: 0},
}

// PassengerTypes lists every type in roster order: adults, then children, then infants.
func PassengerTypes() []PassengerType {
	return []PassengerType{PassengerAdult, PassengerChild, PassengerInfant}
}

func (t PassengerType) Valid() bool {
	return t >= PassengerAdult && t <= PassengerInfant
}

func (t PassengerType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("PassengerType(%d)", uint8(t))
	}
	return passengerTypes[t].code
}

// Label is the human readable name shown next to a passenger.
func (t PassengerType) Label() string {
	if !t.Valid() {
		return ""
	}
	return passengerTypes[t].label
}

// FarePercent is the percentage of the base fare charged for this type.
func (t PassengerType) FarePercent() int64 {
	if !t.Valid() {
		return 0
	}
	return passengerTypes[t].farePercent
}

// ParsePassengerType accepts the wire code of a type, case-insensitively.
func ParsePassengerType(s string) (PassengerType, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	for _, t := range PassengerTypes() {
		if passengerTypes[t].code == code {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown passenger type %q", s)
}

func (t PassengerType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid passenger type %d", uint8(t))
	}
	return []byte(passengerTypes[t].code), nil
}

func (t *PassengerType) UnmarshalText(text []byte) error {
	parsed, err := ParsePassengerType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PassengerCounts is the requested number of passengers per type.
type PassengerCounts struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

func (c PassengerCounts) Total() int {
	return c.Adults + c.Children + c.Infants
}

// Expand returns one type per passenger in roster order.
func (c PassengerCounts) Expand() []PassengerType {
	types := make([]PassengerType, 0, c.Total())
	for i := 0; i < c.Adults; i++ {
		types = append(types, PassengerAdult)
	}
	for i := 0; i < c.Children; i++ {
		types = append(types, PassengerChild)
	}
	for i := 0; i < c.Infants; i++ {
		types = append(types, PassengerInfant)
	}
	return types
}
