package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aegis_router/pkg/engine"
	"aegis_router/pkg/geo"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/risk"
	"aegis_router/pkg/routing"
)

// Location is a request location: a place name, a [lat, lng] array or a
// {"lat": .., "lng": ..} object.
type Location struct {
	loc engine.Location
	set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Location) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = Location{}
		return nil
	}
	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("location name is empty")
		}
		*l = Location{loc: engine.Named(name), set: true}
	case '[':
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return errors.New("location array must hold two numbers")
		}
		if len(pair) != 2 {
			return fmt.Errorf("location array must be [lat, lng], got %d values", len(pair))
		}
		*l = Location{loc: engine.At(geo.Coordinate{Lat: pair[0], Lng: pair[1]}), set: true}
	case '{':
		var obj struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Lat == nil || obj.Lng == nil {
			return errors.New("location object needs lat and lng")
		}
		*l = Location{loc: engine.At(geo.Coordinate{Lat: *obj.Lat, Lng: *obj.Lng}), set: true}
	default:
		return errors.New("location must be a name, [lat, lng] or {lat, lng}")
	}
	return nil
}

// validate checks a required location.
func (l Location) validate(field string) error {
	if !l.set {
		return &ValidationError{Field: field, Msg: "required"}
	}
	if l.loc.ByCoord {
		if err := l.loc.Coord.Validate(); err != nil {
			return &ValidationError{Field: field, Msg: err.Error()}
		}
	}
	return nil
}

// RouteRequest is the JSON body for POST /api/route.
type RouteRequest struct {
	Start Location `json:"start"`
	End   Location `json:"end"`
	Alpha *float64 `json:"alpha,omitempty"`
	Beta  *float64 `json:"beta,omitempty"`
}

// AlternativesRequest is the JSON body for POST /api/route/alternatives.
type AlternativesRequest struct {
	RouteRequest
	Count int `json:"count,omitempty"`
}

// RouteJSON is one planned route.
type RouteJSON struct {
	Route          [][2]float64 `json:"route"`
	DistanceMeters float64      `json:"distanceMeters"`
	RiskCost       float64      `json:"riskCost"`
	Cost           float64      `json:"cost"`
	Risk           risk.Level   `json:"risk"`
}

func newRouteJSON(r *routing.Route) RouteJSON {
	path := make([][2]float64, len(r.Path))
	for i, c := range r.Path {
		path[i] = [2]float64{c.Lat, c.Lng}
	}
	return RouteJSON{
		Route:          path,
		DistanceMeters: r.BaseCost,
		RiskCost:       r.RiskCost,
		Cost:           r.Cost,
		Risk:           r.Risk,
	}
}

// AlternativesResponse is the JSON response for POST /api/route/alternatives.
type AlternativesResponse struct {
	Routes []RouteJSON `json:"routes"`
}

// Severity accepts a level name or a number.
type Severity struct {
	incident.Severity
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Severity) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	sev, err := incident.ParseSeverity(raw)
	if err != nil {
		return err
	}
	s.Severity = sev
	return nil
}

// IncidentRequest is the JSON body for POST /api/incidents.
type IncidentRequest struct {
	Lat         *float64  `json:"lat"`
	Lng         *float64  `json:"lng"`
	Severity    *Severity `json:"severity"`
	Description string    `json:"description"`
}

const maxDescription = 1000

func (r IncidentRequest) validate() (geo.Coordinate, error) {
	if r.Lat == nil {
		return geo.Coordinate{}, &ValidationError{Field: "lat", Msg: "required"}
	}
	if r.Lng == nil {
		return geo.Coordinate{}, &ValidationError{Field: "lng", Msg: "required"}
	}
	c := geo.Coordinate{Lat: *r.Lat, Lng: *r.Lng}
	if err := c.Validate(); err != nil {
		return c, &ValidationError{Field: "lat", Msg: err.Error()}
	}
	if r.Severity == nil {
		return c, &ValidationError{Field: "severity", Msg: "required"}
	}
	if len(r.Description) > maxDescription {
		return c, &ValidationError{Field: "description", Msg: fmt.Sprintf("longer than %d bytes", maxDescription)}
	}
	return c, nil
}

// IncidentJSON is a stored incident.
type IncidentJSON struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Lat         float64           `json:"lat"`
	Lng         float64           `json:"lng"`
	Severity    incident.Severity `json:"severity"`
	ReportedAt  time.Time         `json:"reportedAt"`
}

func newIncidentJSON(inc incident.Incident) IncidentJSON {
	return IncidentJSON{
		ID:          inc.ID,
		Description: inc.Description,
		Lat:         inc.Coord.Lat,
		Lng:         inc.Coord.Lng,
		Severity:    inc.Severity,
		ReportedAt:  inc.ReportedAt,
	}
}

// SOSRequest is the JSON body for POST /api/sos.
type SOSRequest struct {
	Timestamp *time.Time `json:"timestamp"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Message   string     `json:"message"`
	Contacts  []string   `json:"contacts,omitempty"`
}

// SOSResponse acknowledges a forwarded alert.
type SOSResponse struct {
	Status string `json:"status"`
}

// SafetyResponse is the JSON response for GET /api/safety.
type SafetyResponse struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Risk      float64    `json:"risk"`
	Level     risk.Level `json:"level"`
	Incidents int        `json:"incidents"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	NumNodes        uint32  `json:"numNodes"`
	NumEdges        uint32  `json:"numEdges"`
	NamedNodes      int     `json:"namedNodes"`
	GraphVersion    uint64  `json:"graphVersion"`
	RiskVersion     uint64  `json:"riskVersion"`
	Incidents       int     `json:"incidents"`
	ActiveIncidents int     `json:"activeIncidents"`
	RiskyEdges      int     `json:"riskyEdges"`
	MaxEdgeRisk     float64 `json:"maxEdgeRisk"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}
