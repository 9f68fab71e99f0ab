package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"

	"aegis_router/pkg/engine"
	"aegis_router/pkg/geo"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/notify"
	"aegis_router/pkg/risk"
	"aegis_router/pkg/routing"
)

// Service is the engine surface the handlers need. *engine.Engine
// satisfies it.
type Service interface {
	Route(ctx context.Context, q engine.RouteQuery) (*routing.Route, error)
	Alternatives(ctx context.Context, q engine.RouteQuery, k int) ([]*routing.Route, error)
	ReportIncident(ctx context.Context, c geo.Coordinate, sev incident.Severity, description string) (incident.Incident, error)
	Incidents(ctx context.Context) ([]incident.Incident, error)
	AllIncidents() []incident.Incident
	IncidentsNear(ctx context.Context, c geo.Coordinate, radius float64) ([]incident.Incident, error)
	Incident(id string) (incident.Incident, error)
	Safety(ctx context.Context, c geo.Coordinate) (risk.PointScore, error)
	SOS(ctx context.Context, sos notify.SOS) error
	Stats(ctx context.Context) (engine.Stats, error)
}

const (
	maxBody         = 8 << 10
	defaultRadius   = 1000.0
	maxRadius       = 50000.0
	maxAlternatives = 10
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	svc       Service
	weighting routing.Weighting
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewHandlers creates handlers. weighting fills in alpha or beta when a
// request sets only one of them; limiter may be nil.
func NewHandlers(svc Service, weighting routing.Weighting, limiter *RateLimiter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, weighting: weighting, limiter: limiter, logger: logger}
}

// HandleRoute handles POST /api/route.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.query(req)
	if err != nil {
		h.fail(w, err)
		return
	}
	route, err := h.svc.Route(r.Context(), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRouteJSON(route))
}

// HandleAlternatives handles POST /api/route/alternatives.
func (h *Handlers) HandleAlternatives(w http.ResponseWriter, r *http.Request) {
	var req AlternativesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Count < 0 || req.Count > maxAlternatives {
		h.fail(w, &ValidationError{Field: "count", Msg: "must be between 0 and " + strconv.Itoa(maxAlternatives) + ", 0 selects the default"})
		return
	}
	q, err := h.query(req.RouteRequest)
	if err != nil {
		h.fail(w, err)
		return
	}
	routes, err := h.svc.Alternatives(r.Context(), q, req.Count)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := AlternativesResponse{Routes: make([]RouteJSON, len(routes))}
	for i, rt := range routes {
		resp.Routes[i] = newRouteJSON(rt)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) query(req RouteRequest) (engine.RouteQuery, error) {
	if err := req.Start.validate("start"); err != nil {
		return engine.RouteQuery{}, err
	}
	if err := req.End.validate("end"); err != nil {
		return engine.RouteQuery{}, err
	}
	q := engine.RouteQuery{Start: req.Start.loc, End: req.End.loc}
	if req.Alpha != nil || req.Beta != nil {
		wt := h.weighting
		if req.Alpha != nil {
			wt.Alpha = *req.Alpha
		}
		if req.Beta != nil {
			wt.Beta = *req.Beta
		}
		if err := wt.Validate(); err != nil {
			return engine.RouteQuery{}, err
		}
		q.Weighting = &wt
	}
	return q, nil
}

// HandleListIncidents handles GET /api/incidents. With lat and lng it
// returns incidents within radius meters of that point; include=expired
// lists everything still stored.
func (h *Handlers) HandleListIncidents(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	var (
		incs []incident.Incident
		err  error
	)
	if qs.Has("lat") || qs.Has("lng") {
		c, verr := parsePoint(qs.Get("lat"), qs.Get("lng"))
		if verr != nil {
			h.fail(w, verr)
			return
		}
		radius := defaultRadius
		if s := qs.Get("radius"); s != "" {
			radius, err = strconv.ParseFloat(s, 64)
			if err != nil || !(radius > 0) || radius > maxRadius {
				h.fail(w, &ValidationError{Field: "radius", Msg: "must be between 0 and 50000 meters"})
				return
			}
		}
		incs, err = h.svc.IncidentsNear(r.Context(), c, radius)
	} else if qs.Get("include") == "expired" {
		incs = h.svc.AllIncidents()
	} else {
		incs, err = h.svc.Incidents(r.Context())
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]IncidentJSON, len(incs))
	for i, inc := range incs {
		out[i] = newIncidentJSON(inc)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetIncident handles GET /api/incidents/{id}.
func (h *Handlers) HandleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.Incident(r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newIncidentJSON(inc))
}

// HandleReportIncident handles POST /api/incidents.
func (h *Handlers) HandleReportIncident(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientKey(r)) {
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "rate_limited", "", "")
		return
	}
	var req IncidentRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := req.validate()
	if err != nil {
		h.fail(w, err)
		return
	}
	inc, err := h.svc.ReportIncident(r.Context(), c, req.Severity.Severity, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/incidents/"+inc.ID)
	writeJSON(w, http.StatusCreated, newIncidentJSON(inc))
}

// HandleSOS handles POST /api/sos.
func (h *Handlers) HandleSOS(w http.ResponseWriter, r *http.Request) {
	var req SOSRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		h.fail(w, &ValidationError{Field: "latitude", Msg: "latitude and longitude are required"})
		return
	}
	c := geo.Coordinate{Lat: *req.Latitude, Lng: *req.Longitude}
	if err := c.Validate(); err != nil {
		h.fail(w, &ValidationError{Field: "latitude", Msg: err.Error()})
		return
	}
	sos := notify.SOS{Coord: c, Message: req.Message, Contacts: req.Contacts}
	if req.Timestamp != nil {
		sos.Timestamp = *req.Timestamp
	}
	if err := h.svc.SOS(r.Context(), sos); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SOSResponse{Status: "forwarded"})
}

// HandleSafety handles GET /api/safety?lat=..&lng=...
func (h *Handlers) HandleSafety(w http.ResponseWriter, r *http.Request) {
	c, err := parsePoint(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		h.fail(w, err)
		return
	}
	score, err := h.svc.Safety(r.Context(), c)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SafetyResponse{
		Lat:       c.Lat,
		Lng:       c.Lng,
		Risk:      score.Risk,
		Level:     score.Level,
		Incidents: score.Incidents,
	})
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		NumNodes:        st.Nodes,
		NumEdges:        st.Edges,
		NamedNodes:      st.Named,
		GraphVersion:    st.GraphVersion,
		RiskVersion:     st.RiskVersion,
		Incidents:       st.Incidents,
		ActiveIncidents: st.ActiveIncidents,
		RiskyEdges:      st.RiskyEdges,
		MaxEdgeRisk:     st.MaxEdgeRisk,
		UptimeSeconds:   math.Round(st.Uptime.Seconds()),
	})
}

// decode enforces a JSON content type and a size limit, then decodes the
// body into dst. It writes the error response itself and reports success.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "", "content type must be application/json")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		if errors.Is(err, incident.ErrInvalidSeverity) {
			writeError(w, http.StatusBadRequest, "invalid_severity", "severity", err.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "", err.Error())
		return false
	}
	return true
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	field := ""
	var ve *ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "err", err)
		if status == http.StatusInternalServerError {
			msg = ""
		}
	}
	writeError(w, status, code, field, msg)
}

func parsePoint(lat, lng string) (geo.Coordinate, error) {
	if lat == "" || lng == "" {
		return geo.Coordinate{}, &ValidationError{Field: "lat", Msg: "lat and lng are required"}
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return geo.Coordinate{}, &ValidationError{Field: "lat", Msg: "lat and lng must be numbers"}
	}
	c := geo.Coordinate{Lat: la, Lng: lo}
	if err := c.Validate(); err != nil {
		return c, &ValidationError{Field: "lat", Msg: err.Error()}
	}
	return c, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field, Message: msg})
}
