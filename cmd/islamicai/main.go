package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	islamicaiwebui "github.com/sohal70760/islamicai-webui"
	"github.com/sohal70760/islamicai-webui/internal/chat"
	"github.com/sohal70760/islamicai-webui/internal/handlers"
	"github.com/sohal70760/islamicai-webui/internal/services"
)

func main() {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "islamicai")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfg, err := loadConfig(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := services.NewBoltStore(filepath.Join(cfgPath, "store.db"), cfg.MaxSessions, logger)
	if err != nil {
		panic(err)
	}

	client := services.NewClient(cfg.BackendURL, logger)

	ctrl := chat.NewController(client, store, chat.Options{
		Logger:          logger,
		Streaming:       cfg.streamingOptions(),
		Advanced:        cfg.advancedFeatures(),
		ManualIP:        cfg.ManualIP,
		ExchangeTimeout: cfg.exchangeTimeout(),
	})
	ctrl.LoadLatest(context.Background())

	m, err := handlers.NewMain(ctrl, logger)
	if err != nil {
		panic(err)
	}
	ctrl.SetNotifier(m)

	healthCtx, stopHealth := context.WithCancel(context.Background())
	go watchBackendHealth(healthCtx, client, logger)

	// Serve static files
	staticFS, err := fs.Sub(islamicaiwebui.StaticFS, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/messages/regenerate", m.HandleRegenerate)
	mux.HandleFunc("/messages/edit", m.HandleEdit)
	mux.HandleFunc("/sessions/new", m.HandleNewSession)
	mux.HandleFunc("/sessions/select", m.HandleSelectSession)
	mux.HandleFunc("/sessions/delete", m.HandleDeleteSession)
	mux.HandleFunc("/sse", m.HandleSSE)

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		stopHealth()
		ctrl.Close()

		if err := m.Shutdown(context.Background()); err != nil {
			log.Printf("Failed to shutdown sse server: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Println("Server starting on :" + cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		log.Printf("Server error: %v", err)

	case sig := <-shutdown:
		log.Printf("Start shutdown, signal: %v", sig)

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("Forcing server close: %v", err)
			}
		}
	}
}

// watchBackendHealth probes the backend once at startup and retries while it
// reports unreachable, so the operator sees connectivity problems early. It
// returns when the backend answers or ctx is canceled.
func watchBackendHealth(ctx context.Context, client *services.Client, logger *slog.Logger) {
	for {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		health, err := client.CheckHealth(probeCtx)
		cancel()
		if err == nil {
			logger.Info("Backend reachable", slog.String("status", health.Status))
			return
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Backend health check failed", slog.String("err", err.Error()))

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}
