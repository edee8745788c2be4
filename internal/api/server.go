package api

import (
	"context"
	"log"
	"net/http"
	"time"
)

// Server wraps the route table in an *http.Server with CORS enabled for
// every origin, matching the public read-only nature of this API.
type Server struct {
	httpServer *http.Server
}

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// NewServer builds a Server bound to addr, serving api's handlers.
func NewServer(addr string, api *API) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", api.HandleHealth)
	mux.HandleFunc("/api/search", api.HandleSearch)
	mux.HandleFunc("/api/profile/", api.HandleProfile)
	mux.HandleFunc("/api/following/", api.HandleFollowing)
	mux.HandleFunc("/api/followers/", api.HandleFollowers)
	mux.HandleFunc("/api/stats/", api.HandleStats)
	mux.HandleFunc("/api/indexer-stats", api.HandleIndexerStats)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           withCORS(mux),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.Printf("[API] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "content-type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
