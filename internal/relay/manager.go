package relay

import (
	"context"
	"log"
	"sync"

	"github.com/moww20/nostr-relay/internal/index"
	"github.com/moww20/nostr-relay/internal/storage"
)

// Manager supervises one Client per configured relay URL. A panic inside a
// client's goroutine is recovered and treated as a transient failure; it
// never brings down the other clients or the manager itself.
type Manager struct {
	clients []*Client
	wg      sync.WaitGroup
}

// NewManager builds a Manager with one Client per URL, sharing store and
// mirror across all of them.
func NewManager(urls []string, store *index.Store, mirror *storage.Mirror, limits Limits, debug bool) *Manager {
	m := &Manager{}
	for _, url := range urls {
		m.clients = append(m.clients, NewClient(url, store, mirror, limits, debug))
	}
	return m
}

// Run spawns every client's supervised goroutine and blocks until ctx is
// canceled and all clients have finished draining.
func (m *Manager) Run(ctx context.Context) {
	for _, c := range m.clients {
		m.wg.Add(1)
		go m.supervise(ctx, c)
	}
	m.wg.Wait()
}

// supervise runs c.Run(ctx) and, if it panics, backs off and restarts it,
// so a bug in one relay's frame handling degrades to a reconnect rather than
// taking down that relay's goroutine for the life of the process.
func (m *Manager) supervise(ctx context.Context, c *Client) {
	defer m.wg.Done()

	for ctx.Err() == nil {
		if runOnce(ctx, c) {
			return
		}
		c.sleepBackoff(ctx)
	}
}

func runOnce(ctx context.Context, c *Client) (returned bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Relay] %s: recovered from panic: %v", c.url, r)
			returned = false
		}
	}()
	c.Run(ctx)
	return true
}

// Clients returns the managed clients, for stats reporting.
func (m *Manager) Clients() []*Client {
	return m.clients
}

// TotalEventsSeen sums EventsSeen across every managed client.
func (m *Manager) TotalEventsSeen() int64 {
	var total int64
	for _, c := range m.clients {
		total += c.EventsSeen()
	}
	return total
}
