// Package runapp wires every component this service owns — config,
// storage, venue adapters, pollers, the detector, the session registry,
// the query facade, and the periodic scheduler — into one running
// process, and tears them down in reverse order on shutdown.
package runapp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"candlecore/internal/config"
	"candlecore/internal/detector"
	"candlecore/internal/history"
	"candlecore/internal/httpclient"
	"candlecore/internal/kline"
	"candlecore/internal/logger"
	"candlecore/internal/query"
	"candlecore/internal/runtime"
	"candlecore/internal/scheduler"
	"candlecore/internal/session"
	"candlecore/internal/store"
	"candlecore/internal/ui"
	"candlecore/internal/venue"
)

// WriteDefaultConfig writes a starter INI file to path.
func WriteDefaultConfig(path string) error {
	return config.WriteDefault(path)
}

// Run loads configPath and runs the service until it receives SIGINT or
// SIGTERM.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("runapp: load config: %w", err)
	}

	log := logger.New(cfg.System.LogLevel)

	ui.PrintBanner()
	ui.PrintSuccess("configuration loaded")

	ui.PrintSection("STORAGE")
	userStore, err := store.NewPostgresUserStore(cfg.DatabaseConnectionString())
	if err != nil {
		return fmt.Errorf("runapp: connect to database: %w", err)
	}
	defer userStore.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = userStore.Initialize(initCtx)
	initCancel()
	if err != nil {
		return fmt.Errorf("runapp: initialize schema: %w", err)
	}
	ui.PrintSuccess("database connected and schema initialized")

	proxies, err := buildProxyURLs(cfg.Proxies)
	if err != nil {
		return fmt.Errorf("runapp: invalid proxy configuration: %w", err)
	}
	httpClient := httpclient.New(log, httpclient.WithProxies(proxies))

	idx := history.NewIndex()
	registry := session.New(userStore, log, venueNames(cfg.StockExchanges), idx)
	detectorEngine := detector.New(log, idx, registry, detectorShardCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("runapp: shutdown signal received")
		cancel()
	}()

	go detectorEngine.Run(ctx)

	ui.PrintSection("VENUES")
	supervisors := make([]*runtime.Supervisor, 0, len(cfg.StockExchanges))
	summaries := make([]ui.VenueSummary, 0, len(cfg.StockExchanges))
	for _, sc := range cfg.StockExchanges {
		adapter, err := venue.New(sc.Type, httpClient, nil)
		if err != nil {
			return fmt.Errorf("runapp: build venue adapter: %w", err)
		}
		sup := runtime.New(sc, adapter, idx, detectorEngine.OnCandle, log)
		if err := sup.Rediscover(ctx); err != nil {
			log.Warn("runapp: initial discovery failed", "venue", sc.Type, "error", err)
		}
		supervisors = append(supervisors, sup)
		summaries = append(summaries, ui.VenueSummary{
			Name:        sc.Type,
			Intervals:   intervalNames(sc.KLineTypes),
			Instruments: sup.Count(),
		})
	}
	ui.PrintVenueSummary(summaries)

	sched := scheduler.New(log)
	if err := sched.IdleSweep(registry.SweepIdle); err != nil {
		return fmt.Errorf("runapp: register idle sweep: %w", err)
	}
	if err := sched.UserFlush(registry.FlushActivity); err != nil {
		return fmt.Errorf("runapp: register user flush: %w", err)
	}
	if err := sched.Rediscover(func(ctx context.Context) error {
		for _, sup := range supervisors {
			if err := sup.Rediscover(ctx); err != nil {
				log.Warn("runapp: rediscovery failed", "error", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("runapp: register rediscovery: %w", err)
	}
	sched.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	ui.PrintServerSummary(addr, cfg.Server.MaxUsers)
	facade := query.NewServer(registry, log, cfg.Server.Name, serviceVersion)

	serveErr := facade.Run(ctx, addr)

	log.Info("runapp: shutting down")
	sched.Stop()
	for _, sup := range supervisors {
		sup.Stop()
	}
	cancel()

	if serveErr != nil {
		return fmt.Errorf("runapp: query facade: %w", serveErr)
	}
	log.Info("runapp: shutdown complete")
	return nil
}

const (
	detectorShardCount = 8
	serviceVersion     = "1.0.0"
)

func venueNames(scs []config.StockExchangeConfig) []string {
	out := make([]string, len(scs))
	for i, sc := range scs {
		out[i] = sc.Type
	}
	return out
}

func intervalNames(intervals []kline.Interval) []string {
	out := make([]string, len(intervals))
	for i, iv := range intervals {
		out[i] = string(iv)
	}
	return out
}

func buildProxyURLs(proxies []config.ProxyConfig) ([]*url.URL, error) {
	out := make([]*url.URL, 0, len(proxies))
	for _, p := range proxies {
		if p.Host == "" {
			continue
		}
		u := &url.URL{
			Scheme: "http",
			Host:   p.Host + ":" + strconv.Itoa(p.Port),
		}
		if p.User != "" {
			u.User = url.UserPassword(p.User, p.Password)
		}
		out = append(out, u)
	}
	return out, nil
}
