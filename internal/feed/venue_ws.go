// Package feed streams live reserve and rate observations from venue
// websocket endpoints into the market graph. One stream runs per venue; a
// single ingestion worker applies all updates so the graph keeps its
// single-writer discipline.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/cycleforge/flasharb/internal/venue"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// UpdateHandler receives each parsed pair observation.
type UpdateHandler func(update venue.PairUpdate)

// VenueStream maintains the websocket connection to one venue's quote feed.
// Venue feeds push unsolicited pair updates; there is no subscription
// handshake. The stream reconnects with exponential backoff on disconnect.
type VenueStream struct {
	venueID  string
	wsURL    string
	onUpdate UpdateHandler
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewVenueStream creates a stream for one venue feed URL.
func NewVenueStream(venueID, wsURL string, onUpdate UpdateHandler, logger *slog.Logger) *VenueStream {
	return &VenueStream{
		venueID:  venueID,
		wsURL:    wsURL,
		onUpdate: onUpdate,
		logger: logger.With(
			slog.String("component", "venue_stream"),
			slog.String("venue", venueID),
		),
		done: make(chan struct{}),
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with backoff on
// disconnect.
func (s *VenueStream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Warn("venue feed disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", delay),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the stream.
func (s *VenueStream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *VenueStream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.pingLoop(ctx, conn)
	s.logger.Info("venue feed connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		update, ok := s.parse(message)
		if !ok {
			continue
		}
		s.onUpdate(update)
	}
}

func (s *VenueStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wireUpdate is the feed's JSON pair-update envelope. Amounts arrive as
// base-10 strings since they overflow float64.
type wireUpdate struct {
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Reserve0  string `json:"reserve0,omitempty"`
	Reserve1  string `json:"reserve1,omitempty"`
	RateNum   string `json:"rate_num,omitempty"`
	RateDen   string `json:"rate_den,omitempty"`
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"ts"` // unix seconds
}

// parse converts a raw message into a PairUpdate. Unparseable messages are
// dropped silently, matching the rest of the pipeline's tolerance for noisy
// feeds.
func (s *VenueStream) parse(raw []byte) (venue.PairUpdate, bool) {
	var w wireUpdate
	if err := json.Unmarshal(raw, &w); err != nil {
		return venue.PairUpdate{}, false
	}
	if !common.IsHexAddress(w.Token0) || !common.IsHexAddress(w.Token1) {
		return venue.PairUpdate{}, false
	}

	u := venue.PairUpdate{
		VenueID:   s.venueID,
		Token0:    common.HexToAddress(w.Token0),
		Token1:    common.HexToAddress(w.Token1),
		Block:     w.Block,
		Timestamp: time.Unix(w.Timestamp, 0).UTC(),
	}
	if w.Timestamp == 0 {
		u.Timestamp = time.Now().UTC()
	}

	var ok bool
	if w.Reserve0 != "" || w.Reserve1 != "" {
		if u.Reserve0, ok = new(big.Int).SetString(w.Reserve0, 10); !ok {
			return venue.PairUpdate{}, false
		}
		if u.Reserve1, ok = new(big.Int).SetString(w.Reserve1, 10); !ok {
			return venue.PairUpdate{}, false
		}
	}
	if w.RateNum != "" || w.RateDen != "" {
		if u.RateNum, ok = new(big.Int).SetString(w.RateNum, 10); !ok {
			return venue.PairUpdate{}, false
		}
		if u.RateDen, ok = new(big.Int).SetString(w.RateDen, 10); !ok {
			return venue.PairUpdate{}, false
		}
	}
	if u.Reserve0 == nil && u.RateNum == nil {
		return venue.PairUpdate{}, false
	}
	return u, true
}
