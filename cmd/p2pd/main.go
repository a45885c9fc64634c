package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"wifip2p/internal/config"
	"wifip2p/internal/httpapi"
	"wifip2p/internal/hub"
	"wifip2p/internal/store"
	"wifip2p/internal/watcher"
	"wifip2p/p2p"
	"wifip2p/supplicant"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "config file path")
	dbPath := flag.String("db", "", "peer inventory database path (overrides config)")
	ifaceName := flag.String("interface", "", "wireless interface name (overrides config)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	loadConfig := func() (*config.Config, string, error) {
		var cfg *config.Config
		var path string
		var err error
		if *configPath != "" {
			cfg, path, err = config.LoadFromPath(*configPath)
		} else {
			cfg, path, err = config.Load()
		}
		if err != nil {
			return nil, path, err
		}
		if *addr != "" {
			cfg.Listen = *addr
		}
		if *dbPath != "" {
			cfg.Database.Path = *dbPath
		}
		if *ifaceName != "" {
			cfg.Interface = *ifaceName
		}
		if err := cfg.Validate(); err != nil {
			return nil, path, err
		}
		return cfg, path, nil
	}

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	peerStore, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open peer inventory", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer peerStore.Close()
	logger.Info("peer inventory opened", "path", cfg.Database.Path)

	conn, err := dbus.SystemBus()
	if err != nil {
		logger.Error("failed to connect to system bus", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	sseHub := hub.New(logger)
	go sseHub.Run(rootCtx)

	api := httpapi.New(peerStore, sseHub, logger)

	sup := &supervisor{
		conn:   conn,
		store:  peerStore,
		hub:    sseHub,
		api:    api,
		log:    logger,
		reload: make(chan struct{}, 1),
	}

	if err := sup.start(rootCtx, cfg); err != nil {
		logger.Error("failed to start manager", "error", err, "interface", cfg.Interface)
		os.Exit(1)
	}

	go func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-sup.reload:
				newCfg, _, err := loadConfig()
				if err != nil {
					logger.Error("config reload failed, keeping current config", "error", err)
					continue
				}
				sup.stop()
				if err := sup.start(rootCtx, newCfg); err != nil {
					logger.Error("failed to restart manager after reload", "error", err)
				}
			}
		}
	}()

	if cfgPath != "" {
		w := watcher.New(cfgPath, func() {
			select {
			case sup.reload <- struct{}{}:
			default:
			}
		}, logger)
		go func() {
			if err := w.Watch(rootCtx); err != nil && err != context.Canceled {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	rootCancel()
	sup.stop()

	logger.Info("stopped")
}

// supervisor owns the current manager generation. A config reload
// tears the generation down and starts a fresh one; the HTTP server
// and SSE hub stay up across the swap.
type supervisor struct {
	conn   *dbus.Conn
	store  *store.Store
	hub    *hub.Hub
	api    *httpapi.Server
	log    *slog.Logger
	reload chan struct{}

	mu     sync.Mutex
	mgr    *p2p.Manager
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *supervisor) start(ctx context.Context, cfg *config.Config) error {
	backend, err := supplicant.New(ctx, s.conn, cfg.Interface)
	if err != nil {
		return err
	}

	mgr := p2p.NewManager(backend,
		p2p.WithLogger(s.log),
		p2p.WithQueueCapacity(cfg.Actor.QueueCapacity),
		p2p.WithSubscriberBuffer(cfg.Actor.SubscriberBuffer),
	)
	ch := mgr.Start()
	s.api.SetChannel(ch)

	genCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	sub := ch.SubscribeEvents()
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			s.hub.Broadcast(ev)
			if ev.Type == p2p.EventPeerFound && ev.Device != nil {
				if err := s.store.Upsert(genCtx, *ev.Device); err != nil {
					s.log.Warn("failed to record peer", "error", err, "address", ev.Device.Address)
				}
			}
		}
	}()

	sw := supplicant.NewSignalWatcher(s.conn, backend.InterfacePath(), ch.EmitPeerFound, s.log)
	go func() {
		if err := sw.Run(genCtx); err != nil && genCtx.Err() == nil {
			s.log.Error("signal watcher stopped", "error", err)
		}
	}()

	s.mu.Lock()
	s.mgr = mgr
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.log.Info("manager started", "interface", cfg.Interface)
	return nil
}

func (s *supervisor) stop() {
	s.mu.Lock()
	mgr, cancel, done := s.mgr, s.cancel, s.done
	s.mgr, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if mgr == nil {
		return
	}

	s.api.SetChannel(nil)
	cancel()
	mgr.Close()
	<-done
	s.log.Info("manager stopped")
}
