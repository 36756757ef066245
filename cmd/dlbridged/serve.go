package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/dlbridge/dlbridge/internal/btrpc"
	"github.com/dlbridge/dlbridge/internal/category"
	"github.com/dlbridge/dlbridge/internal/clientmgr"
	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/ed2k"
	"github.com/dlbridge/dlbridge/internal/hashstore"
	"github.com/dlbridge/dlbridge/internal/history"
	_ "github.com/dlbridge/dlbridge/internal/history/mysql"
	"github.com/dlbridge/dlbridge/internal/model"
	"github.com/dlbridge/dlbridge/internal/notify"
	"github.com/dlbridge/dlbridge/internal/qbittorrent"
	"github.com/dlbridge/dlbridge/internal/resolver"
	"github.com/dlbridge/dlbridge/internal/server"
	"github.com/dlbridge/dlbridge/internal/torznab"
	"github.com/dlbridge/dlbridge/internal/unified"
	"github.com/dlbridge/dlbridge/internal/wsbroadcast"
)

var (
	configPath string
	logLevel   string
)

func init() {
	serveCommand.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; env vars and defaults still apply)")
	serveCommand.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge's HTTP server and both back-end sessions",
	Run:   serveRun,
}

func serveRun(cmd *cobra.Command, args []string) {
	if lvl, err := log.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create data directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hashes, err := hashstore.Open(cfg.DataDir + "/hashes.json")
	if err != nil {
		log.WithError(err).Fatal("failed to open hash store")
	}

	var resolverOpts []resolver.Option
	if cfg.Resolver.RedisAddr != "" {
		log.WithField("addr", cfg.Resolver.RedisAddr).Info("resolver: using shared redis cache")
		resolverOpts = append(resolverOpts, resolver.WithRedisCache(resolver.NewRedisCache(cfg.Resolver.RedisAddr)))
	}
	res, err := resolver.New(cfg.Resolver.MaxCacheSize, cfg.Resolver.TTL, cfg.Resolver.FailedTTL, cfg.Resolver.LookupTimeout, resolverOpts...)
	if err != nil {
		log.WithError(err).Fatal("failed to build hostname resolver")
	}

	catMgr := category.New(nil)

	var sources []unified.Source
	var ed2kDispatch qbittorrent.Ed2kDispatcher
	var btDispatch qbittorrent.BTDispatcher
	var ed2kSession *ed2k.Session
	var btAdapter *btrpc.Adapter

	if cfg.Amule.Enabled {
		sess := ed2k.New(amuleAddr(cfg), cfg.Amule.Password, hashes)
		mgr := clientmgr.New("amule", sess)
		catMgr.RegisterMirror(sess)
		sources = append(sources, sess)
		ed2kDispatch = sess
		ed2kSession = sess
		mgr.Enable(ctx)
	}

	if cfg.RTorrent.Enabled {
		client := btrpc.New(rtorrentAddr(cfg), cfg.RTorrent.Concurrency)
		adapter := btrpc.NewAdapter(client)
		mgr := clientmgr.New("rtorrent", adapter)
		catMgr.RegisterMirror(adapter)
		sources = append(sources, adapter)
		btDispatch = adapter
		btAdapter = adapter
		mgr.Enable(ctx)
	}

	plane := unified.New(sources, catMgr, cfg.SnapshotInterval)
	go plane.Run(ctx)

	catCache := qbittorrent.NewCategoryCache(catMgr)
	catCache.StartSafetyTimer()
	go syncCategoriesLoop(ctx, catCache, cfg.CategorySyncInterval)

	notifyDispatcher := notify.New(notify.Config{
		AppriseBinary:  cfg.Notify.AppriseBinary,
		AppriseTargets: cfg.Notify.AppriseTargets,
		ScriptPath:     cfg.Notify.ScriptPath,
		ScriptTimeout:  cfg.Notify.ScriptTimeout,
	})
	defer notifyDispatcher.Close()

	backend := buildHistoryBackend(cfg)
	recorder, err := history.NewRecorder(backend)
	if err != nil {
		log.WithError(err).Fatal("failed to open history recorder")
	}
	go observeHistoryLoop(ctx, recorder, plane, cfg.SnapshotInterval)
	go notifyTransitionsLoop(ctx, notifyDispatcher, plane, cfg.SnapshotInterval)

	qbAdapter := qbittorrent.New(qbittorrent.Config{
		Plane:        plane,
		Categories:   catCache,
		CategoryMgr:  catMgr,
		Hashes:       hashes,
		Ed2k:         ed2kDispatch,
		BT:           btDispatch,
		AuthPassword: cfg.Auth.Password,
		SavePath:     cfg.SavePath,
		TempPath:     cfg.TempPath,
		WebUIPort:    webUIPort(cfg.ListenAddr),
	})

	actionHandler := newActionHandler(hashes, qbAdapter, catMgr, ed2kSession, btAdapter, plane)
	broadcaster := wsbroadcast.New(actionHandler)
	go broadcastLoop(ctx, broadcaster, plane)

	var torznabAdapter *torznab.Adapter
	if cfg.Prowlarr.BaseURL != "" {
		torznabAdapter = torznab.New(torznab.Config{
			Source:   torznab.NewProwlarrPassthrough(cfg.Prowlarr.BaseURL, cfg.Prowlarr.APIKey),
			APIKey:   cfg.Auth.Password,
			BaseLink: cfg.ListenAddr,
		})
	}

	engine := server.New(server.Config{
		Categories:  catMgr,
		QBittorrent: qbAdapter,
		Torznab:     torznabAdapter,
		Broadcaster: broadcaster,
		Resolver:    res,
		Clients:     enabledClients(cfg),
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: engine}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	waitForShutdown(cancel, httpServer)
}

func waitForShutdown(cancel context.CancelFunc, httpServer *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown did not complete in time")
	}
}

func amuleAddr(cfg *config.Config) string {
	return hostPort(cfg.Amule.Host, cfg.Amule.Port)
}

func rtorrentAddr(cfg *config.Config) string {
	return hostPort(cfg.RTorrent.Host, cfg.RTorrent.Port)
}

func hostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// webUIPort extracts the numeric port the bridge itself listens on, for the
// qBittorrent preferences snapshot's web_ui_port field.
func webUIPort(listenAddr string) int {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 8080
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 8080
	}
	return port
}

func enabledClients(cfg *config.Config) []model.ClientKind {
	var out []model.ClientKind
	if cfg.Amule.Enabled {
		out = append(out, model.ClientAmule)
	}
	if cfg.RTorrent.Enabled {
		out = append(out, model.ClientRTorrent)
	}
	return out
}

func buildHistoryBackend(cfg *config.Config) history.Backend {
	if cfg.History.Backend == "mysql" {
		backend, err := history.Open("mysql", cfg.History.MySQLDSN)
		if err != nil {
			log.WithError(err).Fatal("failed to open mysql history backend")
		}
		return backend
	}
	os.MkdirAll(cfg.History.DataDir, 0o755)
	return history.NewJSONBackend(cfg.History.DataDir + "/history.json")
}

func syncCategoriesLoop(ctx context.Context, cache *qbittorrent.CategoryCache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := cache.Sync(ctx); err != nil {
			log.WithError(err).Warn("category sync failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func observeHistoryLoop(ctx context.Context, recorder *history.Recorder, plane *unified.Plane, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := recorder.Observe(plane.Items()); err != nil {
				log.WithError(err).Warn("history observe failed")
			}
		}
	}
}

// notifyTransitionsLoop watches the unified plane for additions and
// completions and hands each off to the notify dispatcher; it never blocks
// on a fired event, matching the fire-and-forget contract Emit provides.
func notifyTransitionsLoop(ctx context.Context, d *notify.Dispatcher, plane *unified.Plane, interval time.Duration) {
	seen := make(map[string]model.Status)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			live := make(map[string]bool)
			for _, item := range plane.Items() {
				live[item.Hash] = true
				prevStatus, known := seen[item.Hash]
				seen[item.Hash] = item.Status
				if !known {
					d.Emit(notify.Event{Type: notify.EventDownloadAdded, Hash: item.Hash, FileName: item.Name, ClientType: string(item.Client)})
					continue
				}
				if prevStatus != model.StatusCompleted && item.Status == model.StatusCompleted {
					d.Emit(notify.Event{Type: notify.EventDownloadFinished, Hash: item.Hash, FileName: item.Name, ClientType: string(item.Client)})
				}
			}
			for hash := range seen {
				if !live[hash] {
					delete(seen, hash)
				}
			}
		}
	}
}

func broadcastLoop(ctx context.Context, b *wsbroadcast.Broadcaster, plane *unified.Plane) {
	sub := plane.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub:
			b.BroadcastSnapshot(plane.Items())
		}
	}
}
