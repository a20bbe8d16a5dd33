package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SeatLabel identifies one physical seat: coach number, row letter, column number.
// The zero value means "no seat".
// It travels on the wire in its compact text form.
type SeatLabel struct {
	Coach  int
	Row    string
	Column int
}

func (l SeatLabel) IsZero() bool {
	return l == SeatLabel{}
}

// String renders the compact form used on tickets, e.g. "2A1".
func (l SeatLabel) String() string {
	if l.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d%s%d", l.Coach, l.Row, l.Column)
}

// ParseSeatLabel parses the compact "<coach><row letter><column>" form.
func ParseSeatLabel(s string) (SeatLabel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return SeatLabel{}, nil
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return SeatLabel{}, fmt.Errorf("invalid seat label %q", s)
	}
	coach, err := strconv.Atoi(s[:i])
	if err != nil || coach < 1 {
		return SeatLabel{}, fmt.Errorf("invalid coach in seat label %q", s)
	}

	row := s[i]
	if row < 'A' || row > 'Z' {
		return SeatLabel{}, fmt.Errorf("invalid row in seat label %q", s)
	}

	column, err := strconv.Atoi(s[i+1:])
	if err != nil || column < 1 {
		return SeatLabel{}, fmt.Errorf("invalid column in seat label %q", s)
	}

	return SeatLabel{Coach: coach, Row: string(row), Column: column}, nil
}

func (l SeatLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *SeatLabel) UnmarshalText(text []byte) error {
	parsed, err := ParseSeatLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// SeatStrings renders labels in their compact form.
func SeatStrings(labels []SeatLabel) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.String()
	}
	return out
}
