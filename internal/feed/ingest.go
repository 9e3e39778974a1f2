package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cycleforge/flasharb/internal/graph"
	"github.com/cycleforge/flasharb/internal/venue"
)

// updateBuffer absorbs bursts from several venue streams without blocking
// their read loops.
const updateBuffer = 256

// Pauser reports whether quoting is hard-stopped. The chain manager
// implements it.
type Pauser interface {
	Paused() bool
}

// Ingestor is the single ingestion worker: it fans all venue streams into
// one channel and applies the resulting edges to the graph from exactly one
// goroutine, so graph writes never race.
type Ingestor struct {
	graph    *graph.Graph
	registry *venue.Registry
	pauser   Pauser
	streams  []*VenueStream
	updates  chan venue.PairUpdate
	logger   *slog.Logger
}

// NewIngestor wires one stream per (venueID, feedURL) pair into the graph.
func NewIngestor(g *graph.Graph, reg *venue.Registry, pauser Pauser, feeds map[string]string, logger *slog.Logger) *Ingestor {
	ing := &Ingestor{
		graph:    g,
		registry: reg,
		pauser:   pauser,
		updates:  make(chan venue.PairUpdate, updateBuffer),
		logger:   logger.With(slog.String("component", "ingestor")),
	}
	for venueID, url := range feeds {
		if url == "" {
			continue
		}
		ing.streams = append(ing.streams, NewVenueStream(venueID, url, ing.enqueue, logger))
	}
	return ing
}

// Run starts every venue stream plus the apply loop and blocks until ctx is
// cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range i.streams {
		g.Go(func() error { return s.Run(ctx) })
	}
	g.Go(func() error { return i.applyLoop(ctx) })
	return g.Wait()
}

func (i *Ingestor) enqueue(u venue.PairUpdate) {
	select {
	case i.updates <- u:
	default:
		// A full buffer means the apply loop is behind; this observation is
		// superseded by the next one for the same pair anyway.
		i.logger.Warn("update buffer full, dropping observation",
			slog.String("venue", u.VenueID))
	}
}

func (i *Ingestor) applyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-i.updates:
			i.apply(u)
		}
	}
}

// apply routes one observation through its venue adapter and upserts the
// resulting directed edges. Updates are dropped while the chain manager is
// hard-stopped: quotes cannot be trusted without a live endpoint.
func (i *Ingestor) apply(u venue.PairUpdate) {
	if i.pauser != nil && i.pauser.Paused() {
		return
	}

	adapter, err := i.registry.Adapter(u.VenueID)
	if err != nil {
		i.logger.Warn("update for unregistered venue", slog.String("venue", u.VenueID))
		return
	}
	edges, err := adapter.Update(u)
	if err != nil {
		i.logger.Warn("venue adapter rejected update",
			slog.String("venue", u.VenueID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := i.graph.ApplyAll(edges); err != nil {
		i.logger.Debug("graph rejected edges",
			slog.String("venue", u.VenueID),
			slog.String("error", err.Error()),
		)
	}
	if u.Block > 0 {
		i.graph.SetBlock(u.Block)
	}
}
