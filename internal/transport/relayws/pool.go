// Package relayws is the websocket relay transport. A pool keeps one
// connection per relay endpoint and multiplexes subscriptions over it using
// the standard relay wire protocol (REQ / EVENT / EOSE / CLOSE).
package relayws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	eventBuffer         = 256
)

// Pool manages relay connections and implements subscription and publish.
type Pool struct {
	mu     sync.Mutex
	conns  map[string]*conn
	closed bool

	dialTimeout time.Duration
	logger      *zap.Logger
}

// NewPool creates a connection pool. Connections are dialed lazily on first
// use and redialed on the next use after a failure.
func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		conns:       make(map[string]*conn),
		dialTimeout: defaultDialTimeout,
		logger:      logger,
	}
}

// Subscribe opens the plan on every relay in opts and merges the streams
// into one subscription. Relays that cannot be reached are skipped; the
// subscription fails only when no relay is reachable at all.
func (p *Pool) Subscribe(ctx context.Context, plan filter.Plan, opts relay.SubscribeOptions) (relay.Subscription, error) {
	if len(opts.Relays) == 0 {
		return nil, domain.ErrNoRelays
	}

	// CloseOnEOSE subscriptions close themselves once every relay has drained
	// its stored backlog, ending the consumer's range loop.
	merged := newSubscription(len(opts.Relays), opts.CloseOnEOSE)
	opened := 0
	for _, url := range opts.Relays {
		c, err := p.connFor(ctx, url)
		if err != nil {
			p.logger.Debug("Relay unreachable", zap.String("relay", url), zap.Error(err))
			merged.relayDone()
			continue
		}
		if err := c.open(plan, opts.CloseOnEOSE, merged); err != nil {
			p.logger.Debug("Subscribe failed", zap.String("relay", url), zap.Error(err))
			merged.relayDone()
			continue
		}
		opened++
	}
	if opened == 0 {
		merged.Close()
		return nil, fmt.Errorf("subscribe: %w", domain.ErrNoRelays)
	}
	return merged, nil
}

// Publish sends the event to every relay, returning the first send error
// after trying them all.
func (p *Pool) Publish(ctx context.Context, ev *domain.Event, relays []string) error {
	if len(relays) == 0 {
		return domain.ErrNoRelays
	}
	var firstErr error
	sent := 0
	for _, url := range relays {
		c, err := p.connFor(ctx, url)
		if err == nil {
			err = c.send([]any{"EVENT", ev})
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish to %s: %w", url, err)
			}
			continue
		}
		sent++
	}
	if sent == 0 {
		return firstErr
	}
	return nil
}

// Close tears down every connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, c := range p.conns {
		c.close()
	}
	p.conns = make(map[string]*conn)
}

func (p *Pool) connFor(ctx context.Context, url string) (*conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("pool closed")
	}
	if c, ok := p.conns[url]; ok && !c.isClosed() {
		return c, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := newConn(url, ws, p.logger)
	p.conns[url] = c
	return c, nil
}

func newSubID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
