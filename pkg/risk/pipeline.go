package risk

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/metrics"
)

// Purger removes expired incidents. *incident.Store satisfies it.
type Purger interface {
	PurgeExpired(ctx context.Context, asOf time.Time) (int, error)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// RefreshInterval is how often the whole table is recomputed so that
	// decay is reflected. Zero disables periodic refresh.
	RefreshInterval time.Duration
	// PurgeInterval is how often expired incidents are removed. Zero
	// disables purging. Purger must be set when non-zero.
	PurgeInterval time.Duration
	Purger        Purger
	// Buffer is the capacity of the event queue.
	Buffer int
	// BatchLimit is the coalesced batch size above which a full recompute
	// replaces per-incident updates.
	BatchLimit int
	Clock      func() time.Time
	Logger     *slog.Logger
}

type event struct {
	inc  incident.Incident
	sync chan struct{}
}

// Pipeline is the single writer of risk values. One goroutine (Run)
// consumes incident events, coalesces bursts, and runs periodic refresh and
// purge, so recomputations never overlap.
type Pipeline struct {
	agg    *Aggregator
	opts   PipelineOptions
	events chan event
	full   atomic.Bool
	kick   chan struct{}
}

// NewPipeline creates a pipeline around agg.
func NewPipeline(agg *Aggregator, opts PipelineOptions) *Pipeline {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 64
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		agg:    agg,
		opts:   opts,
		events: make(chan event, opts.Buffer),
		kick:   make(chan struct{}, 1),
	}
}

// Notify queues inc for recomputation without blocking. When the queue is
// full the next cycle runs a full recompute instead.
func (p *Pipeline) Notify(inc incident.Incident) {
	select {
	case p.events <- event{inc: inc}:
	default:
		p.RequestFull()
	}
}

// RequestFull schedules a full recompute, for example after a queue overflow.
func (p *Pipeline) RequestFull() {
	p.full.Store(true)
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Sync blocks until every event queued before the call has been applied.
func (p *Pipeline) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.events <- event{sync: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled. It starts with a full
// recompute so risk reflects incidents loaded from storage.
func (p *Pipeline) Run(ctx context.Context) error {
	p.recomputeAll(ctx)

	var refresh, purge <-chan time.Time
	if p.opts.RefreshInterval > 0 {
		t := time.NewTicker(p.opts.RefreshInterval)
		defer t.Stop()
		refresh = t.C
	}
	if p.opts.PurgeInterval > 0 && p.opts.Purger != nil {
		t := time.NewTicker(p.opts.PurgeInterval)
		defer t.Stop()
		purge = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			p.handle(ctx, p.drain(ev))
		case <-p.kick:
			p.handle(ctx, nil)
		case <-refresh:
			p.full.Store(true)
			p.handle(ctx, nil)
		case <-purge:
			p.purge(ctx)
		}
	}
}

// drain collects ev and everything already queued behind it.
func (p *Pipeline) drain(ev event) []event {
	batch := []event{ev}
	for {
		select {
		case next := <-p.events:
			batch = append(batch, next)
		default:
			return batch
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, batch []event) {
	var incs []incident.Incident
	var waiters []chan struct{}
	for _, ev := range batch {
		if ev.sync != nil {
			waiters = append(waiters, ev.sync)
			continue
		}
		incs = append(incs, ev.inc)
	}
	defer func() {
		for _, w := range waiters {
			close(w)
		}
	}()

	if len(incs) > p.opts.BatchLimit {
		p.full.Store(true)
	}
	if p.full.Swap(false) {
		p.recomputeAll(ctx)
		return
	}

	asOf := p.opts.Clock()
	for _, inc := range incs {
		_, err := p.agg.OnIncidentReported(ctx, inc, asOf)
		if err == nil {
			continue
		}
		if errors.Is(err, graph.ErrStaleGraph) {
			p.recomputeAll(ctx)
			return
		}
		// Prior values stay in place; the next cycle repairs them.
		p.opts.Logger.Error("incident risk update failed", "incident", inc.ID, "err", err)
		p.full.Store(true)
	}
}

func (p *Pipeline) recomputeAll(ctx context.Context) {
	if err := p.agg.RecomputeAll(ctx, p.opts.Clock()); err != nil {
		p.opts.Logger.Error("risk recompute failed", "err", err)
		if ctx.Err() == nil {
			p.full.Store(true)
		}
	}
}

func (p *Pipeline) purge(ctx context.Context) {
	n, err := p.opts.Purger.PurgeExpired(ctx, p.opts.Clock())
	if err != nil {
		p.opts.Logger.Error("incident purge failed", "err", err)
		return
	}
	metrics.IncidentsPurged.Add(float64(n))
}
