package incident

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"aegis_router/pkg/geo"
)

// Options configures a Store.
type Options struct {
	// Retention is how long an incident stays active. Zero keeps incidents
	// forever.
	Retention time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// Store is the in-memory view over a Log. Writers are serialized by wmu and
// hold it across the durable log write; mu only guards the in-memory view,
// so readers never wait on the log. Iteration works on a snapshot of the
// slice taken under mu.
type Store struct {
	log       Log
	retention time.Duration
	clock     func() time.Time
	logger    *slog.Logger

	wmu  sync.Mutex
	last time.Time // ReportedAt of the newest incident; guarded by wmu

	mu        sync.RWMutex
	incidents []Incident // ReportedAt order
	byID      map[string]Incident
}

// Open replays log into a new Store.
func Open(ctx context.Context, log Log, opts Options) (*Store, error) {
	s := &Store{
		log:       log,
		retention: opts.Retention,
		clock:     opts.Clock,
		logger:    opts.Logger,
		byID:      make(map[string]Incident),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	for inc, err := range log.Scan(ctx) {
		if err != nil {
			return nil, fmt.Errorf("replay incident log: %w", err)
		}
		if !inc.ReportedAt.After(s.last) && len(s.incidents) > 0 {
			return nil, fmt.Errorf("replay incident log: %s out of order", inc.ID)
		}
		s.incidents = append(s.incidents, inc)
		s.byID[inc.ID] = inc
		s.last = inc.ReportedAt
	}
	s.logger.Info("incident log replayed", "incidents", len(s.incidents))
	return s, nil
}

// Retention returns the configured retention window.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// Report validates and appends a new incident. The timestamp is taken from
// the clock and bumped by a nanosecond when needed so that timestamps stay
// strictly increasing.
func (s *Store) Report(ctx context.Context, coord geo.Coordinate, sev Severity, description string) (Incident, error) {
	if err := coord.Validate(); err != nil {
		return Incident{}, err
	}
	if !sev.Valid() {
		return Incident{}, fmt.Errorf("%w: %d", ErrInvalidSeverity, uint8(sev))
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	ts := time.Unix(0, s.clock().UnixNano()).UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	inc := Incident{
		ID:          uuid.NewString(),
		Coord:       coord,
		Severity:    sev,
		ReportedAt:  ts,
		Description: description,
	}
	if err := s.log.Append(ctx, inc); err != nil {
		return Incident{}, fmt.Errorf("append incident: %w", err)
	}
	s.last = ts

	s.mu.Lock()
	s.incidents = append(s.incidents, inc)
	s.byID[inc.ID] = inc
	s.mu.Unlock()
	return inc, nil
}

func (s *Store) view() []Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incidents[:len(s.incidents):len(s.incidents)]
}

// ListActive yields incidents still within retention at asOf, in ReportedAt
// order. Each iteration reads a fresh snapshot, so the sequence can be
// ranged over more than once.
func (s *Store) ListActive(ctx context.Context, asOf time.Time) iter.Seq2[Incident, error] {
	return func(yield func(Incident, error) bool) {
		for _, inc := range s.view() {
			if err := ctx.Err(); err != nil {
				yield(Incident{}, err)
				return
			}
			if !inc.ActiveAt(asOf, s.retention) {
				continue
			}
			if !yield(inc, nil) {
				return
			}
		}
	}
}

// Near returns active incidents within radius meters of c.
func (s *Store) Near(ctx context.Context, c geo.Coordinate, radius float64, asOf time.Time) ([]Incident, error) {
	var out []Incident
	for inc, err := range s.ListActive(ctx, asOf) {
		if err != nil {
			return nil, err
		}
		if c.DistanceTo(inc.Coord) <= radius {
			out = append(out, inc)
		}
	}
	return out, nil
}

// Get returns the incident with the given ID, expired or not.
func (s *Store) Get(id string) (Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.byID[id]
	if !ok {
		return Incident{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inc, nil
}

// All returns every stored incident including expired ones not yet purged.
func (s *Store) All() []Incident {
	return slices.Clone(s.view())
}

// Len returns the number of stored incidents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// PurgeExpired removes incidents older than the retention window from the
// log and the in-memory view. The view is only changed once the log delete
// succeeds.
func (s *Store) PurgeExpired(ctx context.Context, asOf time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	current := s.view()
	var expired []Incident
	kept := make([]Incident, 0, len(current))
	for _, inc := range current {
		if inc.ActiveAt(asOf, s.retention) {
			kept = append(kept, inc)
		} else {
			expired = append(expired, inc)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := s.log.Delete(ctx, expired); err != nil {
		return 0, fmt.Errorf("purge incidents: %w", err)
	}

	s.mu.Lock()
	for _, inc := range expired {
		delete(s.byID, inc.ID)
	}
	s.incidents = kept
	s.mu.Unlock()
	s.logger.Info("purged expired incidents", "count", len(expired), "remaining", len(kept))
	return len(expired), nil
}

// Close closes the underlying log.
func (s *Store) Close() error {
	return s.log.Close()
}
