package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
)

// HeadEvent is a new chain head from the active endpoint. The manager keeps
// only the latest unconsumed head: the scan loop wants the newest block, not
// a backlog.
type HeadEvent struct {
	Number uint64
	Hash   common.Hash
	Time   time.Time
}

// Events receives operational notifications from the manager. The notify
// package adapts these onto the configured channels.
type Events interface {
	EndpointFailover(from, to string)
	EndpointRecovered(url string)
	AllEndpointsDown(downFor time.Duration)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) EndpointFailover(string, string) {}
func (NopEvents) EndpointRecovered(string)        {}
func (NopEvents) AllEndpointsDown(time.Duration)  {}

// errPreferredRecovered signals the stream loop that a higher-priority
// endpoint passed its re-probe, forcing a reconnect from the top of the list.
var errPreferredRecovered = errors.New("preferred endpoint recovered")

// Manager owns the ordered endpoint list and the single active connection.
// It surfaces new heads through Heads() and delegates RPC calls to whichever
// endpoint is currently active.
type Manager struct {
	urls   []string
	dial   Dialer
	cfg    config.ChainConfig
	events Events
	logger *slog.Logger

	heads chan HeadEvent

	mu        sync.RWMutex
	active    Endpoint
	activeURL string
	lastURL   string // survives disconnects, for failover attribution
	paused    bool
}

// NewManager builds a Manager over [primary, backups...] in priority order.
// dial may be nil, in which case the go-ethereum Dial is used.
func NewManager(cfg config.ChainConfig, dial Dialer, events Events, logger *slog.Logger) *Manager {
	if dial == nil {
		dial = Dial
	}
	if events == nil {
		events = NopEvents{}
	}
	urls := append([]string{cfg.PrimaryRPC}, cfg.BackupRPCs...)
	return &Manager{
		urls:   urls,
		dial:   dial,
		cfg:    cfg,
		events: events,
		logger: logger.With(slog.String("component", "chain_manager")),
		heads:  make(chan HeadEvent, 1),
	}
}

// Heads returns the new-head channel. Only the most recent head is retained
// when the consumer falls behind.
func (m *Manager) Heads() <-chan HeadEvent { return m.heads }

// Paused reports whether the hard-stop window has elapsed with every endpoint
// down. While paused the engine must not trust quotes or start new attempts;
// in-flight attempts are left to finish.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// ActiveURL returns the URL of the active endpoint, or "" when none is up.
func (m *Manager) ActiveURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeURL
}

// Run connects and keeps streaming heads until ctx is cancelled. On endpoint
// failure it fails over to the next endpoint in order; downed higher-priority
// endpoints are re-probed in the background and reclaimed when healthy.
func (m *Manager) Run(ctx context.Context) error {
	var downSince time.Time

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ep, idx, err := m.connect(ctx)
		if err != nil {
			if downSince.IsZero() {
				downSince = time.Now()
			}
			m.markDown(downSince)
			m.logger.Error("no endpoint reachable",
				slog.String("error", err.Error()),
				slog.Duration("down_for", time.Since(downSince)),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.ReprobeInterval.Duration):
			}
			continue
		}
		downSince = time.Time{}
		m.setActive(ep)

		err = m.stream(ctx, ep, idx)
		m.clearActive(ep)
		ep.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errPreferredRecovered) {
			m.logger.Info("switching back to higher-priority endpoint",
				slog.String("from", ep.URL()))
			continue
		}
		m.logger.Warn("active endpoint lost",
			slog.String("endpoint", ep.URL()),
			slog.String("error", err.Error()),
		)
	}
}

// connect tries each endpoint in priority order and returns the first one
// that dials, matches the configured chain ID, and answers a block-number
// probe. Emits the failover event when the winner differs from the previous
// active endpoint.
func (m *Manager) connect(ctx context.Context) (Endpoint, int, error) {
	m.mu.RLock()
	prev := m.lastURL
	m.mu.RUnlock()

	var lastErr error
	for i, url := range m.urls {
		ep, err := m.dial(ctx, url)
		if err != nil {
			lastErr = &domain.NetworkError{Endpoint: url, Err: err}
			m.logger.Warn("endpoint dial failed", slog.String("endpoint", url), slog.String("error", err.Error()))
			continue
		}
		if err := m.verify(ctx, ep); err != nil {
			lastErr = err
			ep.Close()
			m.logger.Warn("endpoint probe failed", slog.String("endpoint", url), slog.String("error", err.Error()))
			continue
		}
		if prev != "" && prev != url {
			m.events.EndpointFailover(prev, url)
		}
		m.logger.Info("endpoint active", slog.String("endpoint", url), slog.Int("priority", i))
		return ep, i, nil
	}
	if lastErr == nil {
		lastErr = domain.ErrAllEndpointsDown
	}
	return nil, 0, fmt.Errorf("%w: %v", domain.ErrAllEndpointsDown, lastErr)
}

// verify checks the endpoint is alive and on the expected chain.
func (m *Manager) verify(ctx context.Context, ep Endpoint) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckInterval.Duration)
	defer cancel()

	id, err := ep.ChainID(probeCtx)
	if err != nil {
		return &domain.NetworkError{Endpoint: ep.URL(), Err: err}
	}
	if id.Int64() != m.cfg.ChainID {
		return &domain.NetworkError{
			Endpoint: ep.URL(),
			Err:      fmt.Errorf("chain id mismatch: endpoint reports %s, want %d", id, m.cfg.ChainID),
		}
	}
	if _, err := ep.BlockNumber(probeCtx); err != nil {
		return &domain.NetworkError{Endpoint: ep.URL(), Err: err}
	}
	return nil
}

// stream subscribes to new heads on the active endpoint and forwards them
// until the subscription errors, the heartbeat lapses, or a higher-priority
// endpoint recovers.
func (m *Manager) stream(ctx context.Context, ep Endpoint, idx int) error {
	headerCh := make(chan *types.Header, 16)
	sub, err := ep.SubscribeNewHead(ctx, headerCh)
	if err != nil {
		return &domain.NetworkError{Endpoint: ep.URL(), Err: err}
	}
	defer sub.Unsubscribe()

	heartbeat := time.NewTimer(m.cfg.HeartbeatTimeout.Duration)
	defer heartbeat.Stop()

	reprobe := time.NewTicker(m.cfg.ReprobeInterval.Duration)
	defer reprobe.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-sub.Err():
			return &domain.NetworkError{Endpoint: ep.URL(), Err: err}

		case h := <-headerCh:
			if h == nil {
				continue
			}
			if !heartbeat.Stop() {
				<-heartbeat.C
			}
			heartbeat.Reset(m.cfg.HeartbeatTimeout.Duration)
			m.publish(HeadEvent{
				Number: h.Number.Uint64(),
				Hash:   h.Hash(),
				Time:   time.Now(),
			})

		case <-heartbeat.C:
			return &domain.NetworkError{
				Endpoint: ep.URL(),
				Err:      fmt.Errorf("no head within heartbeat timeout %s", m.cfg.HeartbeatTimeout.Duration),
			}

		case <-reprobe.C:
			if idx > 0 && m.probeHigher(ctx, idx) {
				return errPreferredRecovered
			}
		}
	}
}

// probeHigher checks whether any endpoint ranked above idx is healthy again.
func (m *Manager) probeHigher(ctx context.Context, idx int) bool {
	for _, url := range m.urls[:idx] {
		ep, err := m.dial(ctx, url)
		if err != nil {
			continue
		}
		healthy := m.verify(ctx, ep) == nil
		ep.Close()
		if healthy {
			return true
		}
	}
	return false
}

// publish delivers a head with latest-wins semantics: if the consumer has not
// drained the previous head, it is replaced.
func (m *Manager) publish(ev HeadEvent) {
	for {
		select {
		case m.heads <- ev:
			return
		default:
		}
		select {
		case <-m.heads:
		default:
		}
	}
}

func (m *Manager) setActive(ep Endpoint) {
	m.mu.Lock()
	wasPaused := m.paused
	m.active = ep
	m.activeURL = ep.URL()
	m.lastURL = ep.URL()
	m.paused = false
	m.mu.Unlock()

	if wasPaused {
		m.events.EndpointRecovered(ep.URL())
	}
}

func (m *Manager) clearActive(ep Endpoint) {
	m.mu.Lock()
	if m.active == ep {
		m.active = nil
		m.activeURL = ""
	}
	m.mu.Unlock()
}

// markDown records an all-endpoints-down condition and, once the hard-stop
// window elapses, pauses the engine and raises the operational alert.
func (m *Manager) markDown(since time.Time) {
	downFor := time.Since(since)
	if downFor < m.cfg.HardStopWindow.Duration {
		return
	}
	m.mu.Lock()
	alreadyPaused := m.paused
	m.paused = true
	m.mu.Unlock()

	if !alreadyPaused {
		m.logger.Error("hard stop: all endpoints down beyond window",
			slog.Duration("down_for", downFor),
			slog.Duration("window", m.cfg.HardStopWindow.Duration),
		)
		m.events.AllEndpointsDown(downFor)
	}
}

func (m *Manager) endpoint() (Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, domain.ErrNoActiveEndpoint
	}
	return m.active, nil
}

// BlockNumber returns the active endpoint's latest block number.
func (m *Manager) BlockNumber(ctx context.Context) (uint64, error) {
	ep, err := m.endpoint()
	if err != nil {
		return 0, err
	}
	return ep.BlockNumber(ctx)
}

// SuggestGasPrice returns the active endpoint's gas price estimate.
func (m *Manager) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ep, err := m.endpoint()
	if err != nil {
		return nil, err
	}
	return ep.SuggestGasPrice(ctx)
}

// SendTransaction submits a signed transaction through the active endpoint
// and returns the endpoint URL it used, so the caller can attribute the
// submission when the active endpoint changes between retries.
func (m *Manager) SendTransaction(ctx context.Context, tx *types.Transaction) (string, error) {
	ep, err := m.endpoint()
	if err != nil {
		return "", err
	}
	if err := ep.SendTransaction(ctx, tx); err != nil {
		return ep.URL(), &domain.NetworkError{Endpoint: ep.URL(), Err: err}
	}
	return ep.URL(), nil
}

// TransactionReceipt fetches a receipt from the active endpoint.
func (m *Manager) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ep, err := m.endpoint()
	if err != nil {
		return nil, err
	}
	return ep.TransactionReceipt(ctx, txHash)
}
