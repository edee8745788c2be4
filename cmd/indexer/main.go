// Command indexer runs the Nostr social-graph indexer: it connects to a set
// of relays, ingests profile and contact-list events into an in-memory
// store, optionally mirrors them to Turso, and serves the result over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/moww20/nostr-relay/internal/api"
	"github.com/moww20/nostr-relay/internal/config"
	"github.com/moww20/nostr-relay/internal/index"
	"github.com/moww20/nostr-relay/internal/relay"
	"github.com/moww20/nostr-relay/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	debug := flag.Bool("debug", false, "log unhandled relay frame types")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("Nostr social-graph indexer")
	log.Println("==========================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down...")
		cancel()
	}()

	store := index.New()

	mirror, err := storage.New(ctx, cfg.TursoDatabaseURL, cfg.TursoAuthToken)
	if err != nil {
		log.Fatalf("Failed to initialize Turso mirror: %v", err)
	}
	if mirror.Enabled() {
		log.Println("[Mirror] Turso persistence enabled")
	} else {
		log.Println("[Mirror] no TURSO_DATABASE_URL set, running in-memory only")
	}

	limits := relay.Limits{MaxEventSize: cfg.Limits.MaxEventSize}
	manager := relay.NewManager(cfg.Indexer.RelayURLs, store, mirror, limits, *debug)
	log.Printf("[Relays] connecting to %v", cfg.Indexer.RelayURLs)

	go manager.Run(ctx)

	httpAPI := api.New(store, manager)
	server := api.NewServer(cfg.Addr(), httpAPI)

	log.Printf("[API] http://%s", cfg.Addr())
	log.Println()
	log.Println("ready")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[API] server error: %v", err)
		}
		cancel()
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("[API] shutdown error: %v", err)
		}
	}

	if err := mirror.Close(); err != nil {
		log.Printf("[Mirror] close error: %v", err)
	}
	log.Println("shutdown complete")
}
