package relayws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
)

// conn is one relay connection with its multiplexed subscriptions.
type conn struct {
	url    string
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*connSub
	closed bool
}

type connSub struct {
	target      *subscription
	closeOnEOSE bool
	doneOnce    sync.Once
}

// markDone reports end-of-stored to the merged subscription exactly once,
// whether it came from an EOSE marker, a CLOSED notice, or a dropped
// connection.
func (cs *connSub) markDone() {
	cs.doneOnce.Do(cs.target.relayDone)
}

func newConn(url string, ws *websocket.Conn, logger *zap.Logger) *conn {
	c := &conn{
		url:    url,
		ws:     ws,
		logger: logger,
		subs:   make(map[string]*connSub),
	}
	go c.readLoop()
	return c
}

// open starts one subscription on this connection, feeding target.
func (c *conn) open(plan filter.Plan, closeOnEOSE bool, target *subscription) error {
	subID := newSubID()
	cs := &connSub{target: target, closeOnEOSE: closeOnEOSE}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connection closed")
	}
	c.subs[subID] = cs
	c.mu.Unlock()

	msg := make([]any, 0, 2+len(plan))
	msg = append(msg, "REQ", subID)
	for _, f := range plan {
		msg = append(msg, f)
	}
	if err := c.send(msg); err != nil {
		c.unregister(subID)
		cs.markDone()
		return err
	}

	target.registerCleanup(func() { c.closeSub(subID, cs) })
	return nil
}

func (c *conn) send(msg []any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.dropAll(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *conn) handleFrame(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 1 {
		return
	}
	var kind string
	if err := json.Unmarshal(frame[0], &kind); err != nil {
		return
	}

	switch kind {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var ev domain.Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			c.logger.Debug("Bad event frame", zap.String("relay", c.url), zap.Error(err))
			return
		}
		if cs := c.lookup(subID); cs != nil {
			cs.target.deliver(&ev, c.url)
		}
	case "EOSE":
		if len(frame) < 2 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		if cs := c.lookup(subID); cs != nil {
			cs.markDone()
			if cs.closeOnEOSE {
				c.closeSub(subID, cs)
			}
		}
	case "CLOSED":
		if len(frame) < 2 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		if cs := c.lookup(subID); cs != nil {
			cs.markDone()
			c.unregister(subID)
		}
	case "NOTICE":
		c.logger.Debug("Relay notice", zap.String("relay", c.url), zap.ByteString("frame", data))
	case "OK":
		// Publish acknowledgement; nothing waits on it.
	}
}

func (c *conn) lookup(subID string) *connSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[subID]
}

func (c *conn) unregister(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, subID)
}

// closeSub tells the relay to stop the subscription and forgets it. The CLOSE
// frame goes out only when the subscription was still registered, so the EOSE
// teardown and the consumer's Close cleanup cannot both send one.
func (c *conn) closeSub(subID string, cs *connSub) {
	c.mu.Lock()
	_, registered := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()

	cs.markDone()
	if registered {
		_ = c.send([]any{"CLOSE", subID})
	}
}

// dropAll tears down every subscription after a connection failure. Each one
// gets its end-of-stored mark so aggregation never hangs on a dead relay.
func (c *conn) dropAll(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]*connSub)
	c.mu.Unlock()

	c.logger.Debug("Relay connection lost", zap.String("relay", c.url), zap.Error(cause))
	for _, cs := range subs {
		cs.markDone()
	}
	_ = c.ws.Close()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) close() {
	c.dropAll(fmt.Errorf("pool closed"))
}
