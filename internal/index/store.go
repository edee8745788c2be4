// Package index holds the in-memory social graph: profiles, contact edges,
// and an inverted token index over profile text, all kept consistent under
// concurrent ingestion from many relays and concurrent reads from the API.
package index

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/moww20/nostr-relay/internal/identity"
	"github.com/moww20/nostr-relay/internal/protocol"
)

// stripes is the width of the per-pubkey lock used to make the
// remove-old-tokens/replace-profile/insert-new-tokens sequence atomic from a
// reader's perspective without serializing writers on unrelated pubkeys.
const stripes = 16

// ProfileRecord is the stored form of a profile, plus the bookkeeping the
// store needs: which relays reported it and when the stored version was
// indexed.
type ProfileRecord struct {
	protocol.Profile
	RelaySources map[string]struct{}
	IndexedAt    time.Time
}

// Edge is a stored contact relationship plus the time it was indexed. The
// relay that delivered the contact list is not recorded.
type Edge struct {
	protocol.ContactEdge
	IndexedAt time.Time
}

// Stats is a point-in-time snapshot of store-wide counters.
type Stats struct {
	ProfilesCount      int
	RelationshipsCount int
	TokenIndexSize     int
	LastIndexedAt      time.Time
}

// SearchResult is one page of a Search call.
type SearchResult struct {
	Results    []ProfileRecord
	TotalCount int
	Page       int
	PerPage    int
}

// Store is the indexer's in-memory social graph. All exported methods are
// safe for concurrent use.
type Store struct {
	profilesMu sync.RWMutex
	profiles   map[string]*ProfileRecord

	edgesMu  sync.RWMutex
	edges    map[string][]Edge // keyed by follower
	edgeSnap map[string]int64  // created_at of the stored snapshot, keyed by follower

	tokenMu sync.RWMutex
	tokens  map[string]map[string]struct{} // token -> set of pubkeys

	followerCountMu sync.RWMutex
	followerCount   map[string]int // followee -> number of followers

	stripe [stripes]sync.Mutex

	lastIndexedMu sync.RWMutex
	lastIndexedAt time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		profiles:      make(map[string]*ProfileRecord),
		edges:         make(map[string][]Edge),
		edgeSnap:      make(map[string]int64),
		tokens:        make(map[string]map[string]struct{}),
		followerCount: make(map[string]int),
	}
}

func (s *Store) lockPubkey(pubkey string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(pubkey))
	return &s.stripe[h.Sum32()%stripes]
}

func (s *Store) touchLastIndexed() {
	s.lastIndexedMu.Lock()
	s.lastIndexedAt = time.Now()
	s.lastIndexedMu.Unlock()
}

// UpsertProfile applies the newest-wins rule for kind-0 profile records.
// Strict improvement in created_at replaces the stored record and rebuilds
// its token membership atomically; a tie or older event only unions
// relaySource into the existing record's RelaySources.
func (s *Store) UpsertProfile(p protocol.Profile, relaySource string) {
	lock := s.lockPubkey(p.PubKey)
	lock.Lock()
	defer lock.Unlock()

	s.profilesMu.Lock()
	existing, ok := s.profiles[p.PubKey]
	s.profilesMu.Unlock()

	if ok && p.CreatedAt <= existing.CreatedAt {
		if relaySource != "" {
			s.profilesMu.Lock()
			if _, seen := existing.RelaySources[relaySource]; !seen {
				updated := make(map[string]struct{}, len(existing.RelaySources)+1)
				for src := range existing.RelaySources {
					updated[src] = struct{}{}
				}
				updated[relaySource] = struct{}{}
				existing.RelaySources = updated
			}
			s.profilesMu.Unlock()
		}
		return
	}

	var oldTerms []string
	if ok {
		oldTerms = existing.SearchTerms
	}

	record := &ProfileRecord{
		Profile:      p,
		RelaySources: make(map[string]struct{}),
		IndexedAt:    time.Now(),
	}
	if ok {
		for src := range existing.RelaySources {
			record.RelaySources[src] = struct{}{}
		}
	}
	if relaySource != "" {
		record.RelaySources[relaySource] = struct{}{}
	}

	s.tokenMu.Lock()
	for _, tok := range oldTerms {
		if set, ok := s.tokens[tok]; ok {
			delete(set, p.PubKey)
			if len(set) == 0 {
				delete(s.tokens, tok)
			}
		}
	}
	for _, tok := range p.SearchTerms {
		set, ok := s.tokens[tok]
		if !ok {
			set = make(map[string]struct{})
			s.tokens[tok] = set
		}
		set[p.PubKey] = struct{}{}
	}
	s.tokenMu.Unlock()

	s.profilesMu.Lock()
	s.profiles[p.PubKey] = record
	s.profilesMu.Unlock()

	s.touchLastIndexed()
}

// ReplaceEdges applies the newest-wins snapshot rule for kind-3 contact
// lists: if the follower already has a strictly newer snapshot, the
// incoming set is dropped; otherwise the follower's entire edge set is
// replaced atomically.
func (s *Store) ReplaceEdges(follower string, createdAt int64, incoming []protocol.ContactEdge, relaySource string) {
	lock := s.lockPubkey(follower)
	lock.Lock()
	defer lock.Unlock()

	s.edgesMu.RLock()
	existingCreatedAt, ok := s.edgeSnap[follower]
	s.edgesMu.RUnlock()
	if ok && existingCreatedAt >= createdAt {
		return
	}

	now := time.Now()
	newEdges := make([]Edge, 0, len(incoming))
	for _, e := range incoming {
		newEdges = append(newEdges, Edge{ContactEdge: e, IndexedAt: now})
	}

	s.edgesMu.Lock()
	oldEdges := s.edges[follower]
	s.edges[follower] = newEdges
	s.edgeSnap[follower] = createdAt
	s.edgesMu.Unlock()

	s.followerCountMu.Lock()
	for _, e := range oldEdges {
		s.followerCount[e.Followee]--
		if s.followerCount[e.Followee] <= 0 {
			delete(s.followerCount, e.Followee)
		}
	}
	for _, e := range newEdges {
		s.followerCount[e.Followee]++
	}
	s.followerCountMu.Unlock()

	s.touchLastIndexed()
}

// GetProfile looks up a profile by hex or bech32 key.
func (s *Store) GetProfile(key string) (ProfileRecord, bool) {
	hexKey, err := identity.Normalize(key)
	if err != nil {
		return ProfileRecord{}, false
	}

	s.profilesMu.RLock()
	defer s.profilesMu.RUnlock()
	record, ok := s.profiles[hexKey]
	if !ok {
		return ProfileRecord{}, false
	}

	out := *record
	out.RelaySources = make(map[string]struct{}, len(record.RelaySources))
	for src := range record.RelaySources {
		out.RelaySources[src] = struct{}{}
	}
	return out, true
}

// Search tokenizes query the same way profile text is tokenized, unions the
// pubkey sets of every matching token (OR semantics), and returns a page of
// results sorted by created_at descending, ties broken by pubkey.
func (s *Store) Search(query string, page, perPage int) SearchResult {
	if page < 0 {
		page = 0
	}
	if perPage <= 0 {
		perPage = 20
	}

	candidates := make(map[string]struct{})
	s.tokenMu.RLock()
	for _, tok := range protocol.Tokenize(query) {
		for pubkey := range s.tokens[tok] {
			candidates[pubkey] = struct{}{}
		}
	}
	s.tokenMu.RUnlock()

	s.profilesMu.RLock()
	records := make([]ProfileRecord, 0, len(candidates))
	for pubkey := range candidates {
		if record, ok := s.profiles[pubkey]; ok {
			records = append(records, *record)
		}
	}
	s.profilesMu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].PubKey < records[j].PubKey
	})

	total := len(records)
	start := page * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return SearchResult{
		Results:    records[start:end],
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
	}
}

// FolloweesOf returns up to limit edges where key is the follower, newest
// first.
func (s *Store) FolloweesOf(key string, limit int) ([]Edge, error) {
	hexKey, err := identity.Normalize(key)
	if err != nil {
		return nil, err
	}

	s.edgesMu.RLock()
	edges := append([]Edge(nil), s.edges[hexKey]...)
	s.edgesMu.RUnlock()

	sort.Slice(edges, func(i, j int) bool { return edges[i].CreatedAt > edges[j].CreatedAt })
	if limit > 0 && limit < len(edges) {
		edges = edges[:limit]
	}
	return edges, nil
}

// FollowersOf returns up to limit edges where key is the followee, newest
// first. Unlike FolloweesOf this requires a scan since edges are indexed by
// follower, not followee.
func (s *Store) FollowersOf(key string, limit int) ([]Edge, error) {
	hexKey, err := identity.Normalize(key)
	if err != nil {
		return nil, err
	}

	var followers []Edge
	s.edgesMu.RLock()
	for _, edges := range s.edges {
		for _, e := range edges {
			if e.Followee == hexKey {
				followers = append(followers, e)
			}
		}
	}
	s.edgesMu.RUnlock()

	sort.Slice(followers, func(i, j int) bool { return followers[i].CreatedAt > followers[j].CreatedAt })
	if limit > 0 && limit < len(followers) {
		followers = followers[:limit]
	}
	return followers, nil
}

// Counts returns the followee count (len of key's own edge list) and the
// follower count (maintained as an O(1) auxiliary counter) for key.
func (s *Store) Counts(key string) (followees int, followers int, err error) {
	hexKey, err := identity.Normalize(key)
	if err != nil {
		return 0, 0, err
	}

	s.edgesMu.RLock()
	followees = len(s.edges[hexKey])
	s.edgesMu.RUnlock()

	s.followerCountMu.RLock()
	followers = s.followerCount[hexKey]
	s.followerCountMu.RUnlock()

	return followees, followers, nil
}

// Stats returns a snapshot of store-wide counters.
func (s *Store) Stats() Stats {
	s.profilesMu.RLock()
	profilesCount := len(s.profiles)
	s.profilesMu.RUnlock()

	s.edgesMu.RLock()
	relationships := 0
	for _, edges := range s.edges {
		relationships += len(edges)
	}
	s.edgesMu.RUnlock()

	s.tokenMu.RLock()
	tokenIndexSize := len(s.tokens)
	s.tokenMu.RUnlock()

	s.lastIndexedMu.RLock()
	lastIndexedAt := s.lastIndexedAt
	s.lastIndexedMu.RUnlock()

	return Stats{
		ProfilesCount:      profilesCount,
		RelationshipsCount: relationships,
		TokenIndexSize:     tokenIndexSize,
		LastIndexedAt:      lastIndexedAt,
	}
}

// Clear removes all state. Used by tests and by operators resetting a
// running indexer.
func (s *Store) Clear() {
	s.profilesMu.Lock()
	s.profiles = make(map[string]*ProfileRecord)
	s.profilesMu.Unlock()

	s.edgesMu.Lock()
	s.edges = make(map[string][]Edge)
	s.edgeSnap = make(map[string]int64)
	s.edgesMu.Unlock()

	s.tokenMu.Lock()
	s.tokens = make(map[string]map[string]struct{})
	s.tokenMu.Unlock()

	s.followerCountMu.Lock()
	s.followerCount = make(map[string]int)
	s.followerCountMu.Unlock()

	s.lastIndexedMu.Lock()
	s.lastIndexedAt = time.Time{}
	s.lastIndexedMu.Unlock()
}
