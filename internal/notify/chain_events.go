package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cycleforge/flasharb/internal/domain"
)

// ChainEvents bridges the connection manager's callbacks onto the notifier so
// RPC failovers and hard stops reach operator channels. Callbacks fire from
// the manager's run loop, so dispatch uses a short background context rather
// than blocking the loop on a slow channel.
type ChainEvents struct {
	notifier *Notifier
}

// NewChainEvents wraps the notifier for use as the chain manager's event sink.
func NewChainEvents(n *Notifier) *ChainEvents {
	return &ChainEvents{notifier: n}
}

func (e *ChainEvents) EndpointFailover(from, to string) {
	e.send(domain.EventEndpointFailover, "RPC Failover",
		fmt.Sprintf("Switched endpoint: %s -> %s", from, to))
}

func (e *ChainEvents) EndpointRecovered(url string) {
	e.send(domain.EventEndpointFailover, "RPC Endpoint Active",
		fmt.Sprintf("Now streaming heads from %s", url))
}

func (e *ChainEvents) AllEndpointsDown(downFor time.Duration) {
	e.send(domain.EventAllEndpointsDown, "All RPC Endpoints Down",
		fmt.Sprintf("No endpoint reachable for %s; execution paused until one recovers", downFor.Round(time.Second)))
}

func (e *ChainEvents) send(event, title, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Delivery failures are already logged by the notifier.
	_ = e.notifier.Notify(ctx, event, title, message)
}
