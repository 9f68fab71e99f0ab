// Package incident records user-reported safety incidents in an append-only
// log and serves the set that is still inside the retention window.
package incident

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aegis_router/pkg/geo"
)

var (
	// ErrInvalidSeverity is returned for severities outside low, medium, high.
	ErrInvalidSeverity = errors.New("invalid severity")
	// ErrNotFound is returned when no incident has the requested ID.
	ErrNotFound = errors.New("incident not found")
)

// Severity ranks how dangerous an incident is. The zero value is invalid.
type Severity uint8

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "Severity(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityHigh
}

// ParseSeverity accepts "low", "medium" or "high" in any case, and the
// numeric 1-5 scale used by older clients (1-2 low, 3 medium, 4-5 high).
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "1", "2":
		return SeverityLow, nil
	case "medium", "3":
		return SeverityMedium, nil
	case "high", "4", "5":
		return SeverityHigh, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeverity, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Incident is an immutable report. ReportedAt is assigned by the Store and
// is strictly increasing in creation order.
type Incident struct {
	ID          string
	Coord       geo.Coordinate
	Severity    Severity
	ReportedAt  time.Time
	Description string
}

// Age returns how long before asOf the incident was reported. Incidents
// stamped after asOf have age zero.
func (i Incident) Age(asOf time.Time) time.Duration {
	age := asOf.Sub(i.ReportedAt)
	if age < 0 {
		return 0
	}
	return age
}

// ActiveAt reports whether the incident is still within retention at asOf.
// A non-positive retention keeps every incident active.
func (i Incident) ActiveAt(asOf time.Time, retention time.Duration) bool {
	return retention <= 0 || i.Age(asOf) <= retention
}
