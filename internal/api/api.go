// Package api serves the read-only HTTP surface over the in-memory index:
// profile lookup, search, and the social graph.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/moww20/nostr-relay/internal/apierr"
	"github.com/moww20/nostr-relay/internal/identity"
	"github.com/moww20/nostr-relay/internal/index"
	"github.com/moww20/nostr-relay/internal/relay"
)

const (
	defaultPage    = 0
	defaultPerPage = 20
	defaultLimit   = 100
)

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// API holds the handlers backing the HTTP surface.
type API struct {
	store   *index.Store
	manager *relay.Manager
}

// New creates an API bound to store and manager. manager may be nil if the
// indexer-stats endpoint should report zero relay activity (tests).
func New(store *index.Store, manager *relay.Manager) *API {
	return &API{store: store, manager: manager}
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if apierr.As(err, &apiErr) {
		switch apiErr.Kind {
		case apierr.KindNotFound:
			writeJSON(w, http.StatusNotFound, Response{Error: apiErr.Client})
			return
		case apierr.KindInternal:
			writeJSON(w, http.StatusInternalServerError, Response{Error: apiErr.Client})
			return
		default:
			writeJSON(w, http.StatusBadRequest, Response{Error: apiErr.Client})
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
}

// HandleHealth always returns {success:true, data:"OK"}.
func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "OK")
}

// HandleSearch serves GET /api/search?q=&page=&per_page=.
func (a *API) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	page := queryInt(r, "page", defaultPage)
	perPage := queryInt(r, "per_page", defaultPerPage)

	result := a.store.Search(query, page, perPage)
	writeSuccess(w, result)
}

// HandleProfile serves GET /api/profile/{key}.
func (a *API) HandleProfile(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "/api/profile/")
	if _, err := identity.Normalize(key); err != nil {
		writeError(w, apierr.New(apierr.KindProtocol, "invalid key", err))
		return
	}
	record, ok := a.store.GetProfile(key)
	if !ok {
		writeError(w, apierr.NotFound("profile not found"))
		return
	}
	writeSuccess(w, record)
}

// HandleFollowing serves GET /api/following/{key}?limit=.
func (a *API) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "/api/following/")
	limit := queryInt(r, "limit", defaultLimit)

	edges, err := a.store.FolloweesOf(key, limit)
	if err != nil {
		writeError(w, apierr.New(apierr.KindProtocol, "invalid key", err))
		return
	}
	writeSuccess(w, edges)
}

// HandleFollowers serves GET /api/followers/{key}?limit=.
func (a *API) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "/api/followers/")
	limit := queryInt(r, "limit", defaultLimit)

	edges, err := a.store.FollowersOf(key, limit)
	if err != nil {
		writeError(w, apierr.New(apierr.KindProtocol, "invalid key", err))
		return
	}
	writeSuccess(w, edges)
}

// HandleStats serves GET /api/stats/{key}.
func (a *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "/api/stats/")
	followees, followers, err := a.store.Counts(key)
	if err != nil {
		writeError(w, apierr.New(apierr.KindProtocol, "invalid key", err))
		return
	}
	writeSuccess(w, map[string]int{"followees": followees, "followers": followers})
}

// HandleIndexerStats serves GET /api/indexer-stats.
func (a *API) HandleIndexerStats(w http.ResponseWriter, r *http.Request) {
	stats := a.store.Stats()

	relaysConnected := 0
	var eventsSeen int64
	if a.manager != nil {
		relaysConnected = len(a.manager.Clients())
		eventsSeen = a.manager.TotalEventsSeen()
	}

	writeSuccess(w, map[string]any{
		"profiles_count":      stats.ProfilesCount,
		"relationships_count": stats.RelationshipsCount,
		"token_index_size":    stats.TokenIndexSize,
		"last_indexed_at":     stats.LastIndexedAt,
		"relays_connected":    relaysConnected,
		"events_seen":         eventsSeen,
	})
}

func pathParam(r *http.Request, prefix string) string {
	return strings.TrimPrefix(r.URL.Path, prefix)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
