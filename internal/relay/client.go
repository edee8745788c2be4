// Package relay drives WebSocket connections to Nostr relays: dialing,
// subscribing to profile and contact-list events, and streaming them into
// the index.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moww20/nostr-relay/internal/apierr"
	"github.com/moww20/nostr-relay/internal/index"
	"github.com/moww20/nostr-relay/internal/protocol"
	"github.com/moww20/nostr-relay/internal/storage"
)

// State names the relay client's position in its connection lifecycle.
type State int

const (
	StateDialing State = iota
	StateSubscribing
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDialing:
		return "dialing"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	dialTimeout    = 10 * time.Second
	profilesSubID  = "profiles"
	contactsSubID  = "contacts"
	subscribeLimit = 1000
)

// Limits bounds what the client accepts from a relay, mirroring
// config.LimitsConfig without importing the config package directly.
type Limits struct {
	MaxEventSize int
}

// Client manages one relay connection's lifecycle: dial, subscribe, stream,
// and reconnect with backoff on any non-shutdown termination.
type Client struct {
	url     string
	store   *index.Store
	mirror  *storage.Mirror
	limits  Limits
	backoff *Backoff
	debug   bool

	state State
	conn  *websocket.Conn

	// eventsSeen is read from the API goroutine via EventsSeen while this
	// client's own goroutine writes it, so all access goes through
	// sync/atomic.
	eventsSeen int64
}

// NewClient builds a relay client for url. store and mirror may be shared
// across every client the manager supervises; mirror may be nil-backed
// (disabled) without changing client behavior.
func NewClient(url string, store *index.Store, mirror *storage.Mirror, limits Limits, debug bool) *Client {
	return &Client{
		url:     url,
		store:   store,
		mirror:  mirror,
		limits:  limits,
		backoff: NewBackoff(),
		debug:   debug,
		state:   StateDialing,
	}
}

// URL returns the relay URL this client connects to.
func (c *Client) URL() string {
	return c.url
}

// EventsSeen returns the number of events this client has validated and
// handed to the index since it was created.
func (c *Client) EventsSeen() int64 {
	return atomic.LoadInt64(&c.eventsSeen)
}

// Run drives the client's state machine until ctx is canceled. On any
// connection error it backs off and re-dials; it never returns except on
// context cancellation, since the outer manager always wants this relay
// retried.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.state = StateClosed
			return
		}

		c.state = StateDialing
		if err := c.dial(ctx); err != nil {
			log.Printf("[Relay] %s: dial failed: %v", c.url, err)
			c.sleepBackoff(ctx)
			continue
		}
		c.backoff.Reset()

		c.state = StateSubscribing
		if err := c.subscribe(); err != nil {
			log.Printf("[Relay] %s: subscribe failed: %v", c.url, err)
			c.closeConn()
			c.sleepBackoff(ctx)
			continue
		}

		c.state = StateStreaming
		c.stream(ctx)

		c.state = StateDraining
		c.closeConn()

		if ctx.Err() != nil {
			c.state = StateClosed
			return
		}
		c.sleepBackoff(ctx)
	}
}

func (c *Client) sleepBackoff(ctx context.Context) {
	select {
	case <-time.After(c.backoff.Next()):
	case <-ctx.Done():
	}
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return apierr.Network("relay dial failed", err)
	}
	c.conn = conn
	return nil
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) subscribe() error {
	profilesFilter := map[string]any{"kinds": []int{int(protocol.KindProfile)}, "limit": subscribeLimit}
	if err := c.sendREQ(profilesSubID, profilesFilter); err != nil {
		return err
	}

	contactsFilter := map[string]any{"kinds": []int{int(protocol.KindContacts)}, "limit": subscribeLimit}
	if err := c.sendREQ(contactsSubID, contactsFilter); err != nil {
		return err
	}
	return nil
}

func (c *Client) sendREQ(subID string, filter map[string]any) error {
	frame := []any{"REQ", subID, filter}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("relay: marshal REQ: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// stream reads frames until the connection errors, closes, or ctx is
// canceled. Replies to Ping come from gorilla/websocket's default ping
// handler; Binary frames are logged and ignored. Canceling ctx sends a Close
// frame and closes the socket, which unblocks a pending read.
func (c *Client) stream(ctx context.Context) {
	conn := c.conn
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Relay] %s: read error: %v", c.url, err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			log.Printf("[Relay] %s: ignoring binary frame", c.url)
			continue
		}
		c.handleFrame(message)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("[Relay] %s: malformed frame: %v", c.url, err)
		return
	}
	if len(frame) == 0 {
		return
	}

	var frameType string
	if err := json.Unmarshal(frame[0], &frameType); err != nil {
		log.Printf("[Relay] %s: malformed frame type: %v", c.url, err)
		return
	}

	switch frameType {
	case "EVENT":
		if len(frame) < 3 {
			log.Printf("[Relay] %s: EVENT frame missing payload", c.url)
			return
		}
		c.handleEvent(frame[2])
	case "EOSE":
	case "NOTICE":
		var msg string
		if len(frame) > 1 {
			json.Unmarshal(frame[1], &msg)
		}
		log.Printf("[Relay] %s: NOTICE: %s", c.url, msg)
	default:
		if c.debug {
			log.Printf("[Relay] %s: unhandled frame type %q", c.url, frameType)
		}
	}
}

func (c *Client) handleEvent(raw json.RawMessage) {
	var e protocol.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Printf("[Relay] %s: malformed event: %v", c.url, err)
		return
	}

	if err := protocol.Validate(&e, protocol.Limits{MaxEventSize: c.limits.MaxEventSize}, time.Now()); err != nil {
		if c.debug {
			log.Printf("[Relay] %s: invalid event %s: %v", c.url, e.ID, err)
		}
		return
	}

	switch e.Kind {
	case protocol.KindProfile:
		p, err := protocol.DecodeProfile(&e)
		if err != nil {
			if c.debug {
				log.Printf("[Relay] %s: profile decode failed: %v", c.url, err)
			}
			return
		}
		c.store.UpsertProfile(*p, c.url)
		if record, ok := c.store.GetProfile(p.PubKey); ok && c.mirror != nil {
			c.mirror.EnqueueProfile(record)
		}
	case protocol.KindContacts:
		edges := protocol.DecodeContacts(&e)
		c.store.ReplaceEdges(e.PubKey, e.CreatedAt, edges, c.url)
		if c.mirror != nil {
			if stored, err := c.store.FolloweesOf(e.PubKey, 0); err == nil {
				c.mirror.EnqueueEdges(e.PubKey, stored)
			}
		}
	default:
		return
	}

	atomic.AddInt64(&c.eventsSeen, 1)
}
