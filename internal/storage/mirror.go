// Package storage mirrors the in-memory index to Turso (libSQL) for
// durability across restarts. Writes never block ingestion: they are
// handed to a bounded channel and applied by a single writer goroutine.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/libsql/libsql-client-go/libsql"

	"github.com/moww20/nostr-relay/internal/identity"
	"github.com/moww20/nostr-relay/internal/index"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	pubkey TEXT PRIMARY KEY,
	npub TEXT NOT NULL,
	name TEXT,
	display_name TEXT,
	about TEXT,
	picture TEXT,
	banner TEXT,
	website TEXT,
	lud16 TEXT,
	nip05 TEXT,
	created_at INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	search_vector TEXT
);
CREATE TABLE IF NOT EXISTS relationships (
	follower_pubkey TEXT NOT NULL,
	following_pubkey TEXT NOT NULL,
	follower_npub TEXT NOT NULL,
	following_npub TEXT NOT NULL,
	relay TEXT,
	petname TEXT,
	created_at INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	PRIMARY KEY (follower_pubkey, following_pubkey)
);
CREATE TABLE IF NOT EXISTS search_index (
	term TEXT NOT NULL,
	pubkey TEXT NOT NULL,
	field_type TEXT NOT NULL,
	PRIMARY KEY (term, pubkey, field_type)
);
`

// queueDepth bounds the pending-write channel. A full channel means the
// writer goroutine is falling behind the in-memory index; rather than block
// ingestion, the write is dropped and DroppedWrites is bumped.
const queueDepth = 1024

type writeJob struct {
	profile *profileJob
	edges   *edgesJob
}

type profileJob struct {
	record index.ProfileRecord
}

type edgesJob struct {
	follower string
	edges    []index.Edge
}

// Mirror is a write-through persistence layer over Turso. A Mirror built
// with no database configured is a no-op sink: EnqueueProfile and
// EnqueueEdges return immediately and nothing is written, so ingestion throughput never depends on a SQL
// connection being reachable.
type Mirror struct {
	db      *sqlx.DB
	queue   chan writeJob
	done    chan struct{}
	dropped int64
}

// New opens (or no-ops on) a Turso connection. url and authToken come from
// TURSO_DATABASE_URL/TURSO_AUTH_TOKEN; an empty url disables the mirror.
func New(ctx context.Context, url, authToken string) (*Mirror, error) {
	if url == "" {
		return &Mirror{}, nil
	}

	dsn := url
	if authToken != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = fmt.Sprintf("%s%sauthToken=%s", dsn, sep, authToken)
	}

	sqlDB, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open turso: %w", err)
	}
	db := sqlx.NewDb(sqlDB, "libsql")

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping turso: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ensure schema: %w", err)
	}

	m := &Mirror{
		db:    db,
		queue: make(chan writeJob, queueDepth),
		done:  make(chan struct{}),
	}
	go m.run(ctx)
	return m, nil
}

// Enabled reports whether this Mirror is backed by a real connection.
func (m *Mirror) Enabled() bool {
	return m.db != nil
}

// DroppedWrites returns the number of writes discarded because the queue
// was full.
func (m *Mirror) DroppedWrites() int64 {
	return atomic.LoadInt64(&m.dropped)
}

// EnqueueProfile hands a profile write to the writer goroutine. No-op when
// the mirror is disabled.
func (m *Mirror) EnqueueProfile(record index.ProfileRecord) {
	if !m.Enabled() {
		return
	}
	m.send(writeJob{profile: &profileJob{record: record}})
}

// EnqueueEdges hands a contact-list snapshot write to the writer goroutine.
// No-op when the mirror is disabled.
func (m *Mirror) EnqueueEdges(follower string, edges []index.Edge) {
	if !m.Enabled() {
		return
	}
	m.send(writeJob{edges: &edgesJob{follower: follower, edges: edges}})
}

func (m *Mirror) send(job writeJob) {
	select {
	case m.queue <- job:
	default:
		dropped := atomic.AddInt64(&m.dropped, 1)
		log.Printf("[Mirror] queue full, dropping write (total dropped: %d)", dropped)
	}
}

// Close stops the writer goroutine and closes the underlying connection.
// No-op when the mirror is disabled.
func (m *Mirror) Close() error {
	if !m.Enabled() {
		return nil
	}
	close(m.queue)
	<-m.done
	return m.db.Close()
}

func (m *Mirror) run(ctx context.Context) {
	defer close(m.done)
	for job := range m.queue {
		if job.profile != nil {
			if err := m.writeProfile(ctx, job.profile.record); err != nil {
				log.Printf("[Mirror] profile write failed: %v", err)
			}
		}
		if job.edges != nil {
			if err := m.writeEdges(ctx, job.edges.follower, job.edges.edges); err != nil {
				log.Printf("[Mirror] edges write failed: %v", err)
			}
		}
	}
}

func (m *Mirror) writeProfile(ctx context.Context, r index.ProfileRecord) error {
	npub, err := identity.ToBech32(r.PubKey, "npub")
	if err != nil {
		return fmt.Errorf("encode npub: %w", err)
	}

	searchVector := strings.ToLower(strings.Join([]string{r.Name, r.DisplayName, r.About}, " "))

	_, err = m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO profiles
			(pubkey, npub, name, display_name, about, picture, banner, website, lud16, nip05, created_at, indexed_at, search_vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PubKey, npub, r.Name, r.DisplayName, r.About, r.Picture, r.Banner, r.Website, r.Lud16, r.Nip05,
		r.CreatedAt, r.IndexedAt.Unix(), searchVector,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM search_index WHERE pubkey = ?`, r.PubKey); err != nil {
		return fmt.Errorf("clear search_index: %w", err)
	}
	for _, term := range r.SearchTerms {
		if _, err := m.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO search_index (term, pubkey, field_type) VALUES (?, ?, 'profile')`,
			term, r.PubKey,
		); err != nil {
			return fmt.Errorf("insert search_index term %q: %w", term, err)
		}
	}
	return nil
}

func (m *Mirror) writeEdges(ctx context.Context, follower string, edges []index.Edge) error {
	followerNpub, err := identity.ToBech32(follower, "npub")
	if err != nil {
		return fmt.Errorf("encode follower npub: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM relationships WHERE follower_pubkey = ?`, follower); err != nil {
		return fmt.Errorf("clear relationships: %w", err)
	}

	for _, e := range edges {
		followeeNpub, err := identity.ToBech32(e.Followee, "npub")
		if err != nil {
			continue
		}
		_, err = m.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO relationships
				(follower_pubkey, following_pubkey, follower_npub, following_npub, relay, petname, created_at, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			follower, e.Followee, followerNpub, followeeNpub, e.Relay, e.Petname, e.CreatedAt, e.IndexedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert relationship to %s: %w", e.Followee, err)
		}
	}
	return nil
}
