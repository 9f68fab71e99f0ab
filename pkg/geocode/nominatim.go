package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/metrics"
)

// NominatimOptions configures the Nominatim client.
type NominatimOptions struct {
	// BaseURL defaults to the public OpenStreetMap instance.
	BaseURL string
	// UserAgent is required by the Nominatim usage policy.
	UserAgent string
	// Suffix is appended to every query, for example ", Bangalore, India".
	Suffix  string
	Timeout time.Duration
	Client  *http.Client
}

// Nominatim resolves names with the OpenStreetMap Nominatim search API.
type Nominatim struct {
	client    *http.Client
	endpoint  string
	userAgent string
	suffix    string
}

// NewNominatim creates a client from opts.
func NewNominatim(opts NominatimOptions) *Nominatim {
	base := opts.BaseURL
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "aegis-router/1.0"
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Nominatim{
		client:    client,
		endpoint:  strings.TrimRight(base, "/") + "/search",
		userAgent: ua,
		suffix:    opts.Suffix,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Resolve(ctx context.Context, name string) (geo.Coordinate, error) {
	coord, err := n.resolve(ctx, name)
	switch {
	case err == nil:
		metrics.GeocodeLookups.WithLabelValues("nominatim", "hit").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.GeocodeLookups.WithLabelValues("nominatim", "miss").Inc()
	default:
		metrics.GeocodeLookups.WithLabelValues("nominatim", "error").Inc()
	}
	return coord, err
}

func (n *Nominatim) resolve(ctx context.Context, name string) (geo.Coordinate, error) {
	q := url.Values{}
	q.Set("q", name+n.suffix)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return geo.Coordinate{}, fmt.Errorf("%w: nominatim returned %s", ErrUnavailable, resp.Status)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(places) == 0 {
		return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	lat, err1 := strconv.ParseFloat(places[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(places[0].Lon, 64)
	c := geo.Coordinate{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || c.Validate() != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: bad coordinates %q,%q", ErrUnavailable, places[0].Lat, places[0].Lon)
	}
	return c, nil
}
