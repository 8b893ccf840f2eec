package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bili_bot/internal/bilibili"
	"bili_bot/internal/bot"
	"bili_bot/internal/classifier"
	"bili_bot/internal/config"
	"bili_bot/internal/dispatch"
	"bili_bot/internal/model"
	"bili_bot/internal/render"
	"bili_bot/internal/rsshub"
	"bili_bot/internal/scheduler"
	"bili_bot/internal/storage"
)

// platform is what both the poll loop and the command handlers need.
type platform interface {
	LatestFeed(ctx context.Context, creatorID int64) (*model.FeedPage, error)
	LiveInfo(ctx context.Context, creatorID int64) (*model.LiveInfo, error)
	Profile(ctx context.Context, creatorID int64) (*model.Profile, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		log.Error("open storage", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	bili := bilibili.New(httpClient, cfg.BilibiliSESSDATA, bilibili.WithTimeout(cfg.HTTPTimeout))

	var src platform = bili
	switch {
	case bili.HasCredential():
	case cfg.RSSHubURL != "":
		log.Info("no bilibili credential, reading feeds from rsshub", "url", cfg.RSSHubURL)
		src = rsshub.New(httpClient, cfg.RSSHubURL, bili, cfg.HTTPTimeout)
	default:
		log.Warn("neither BILIBILI_SESSDATA nor RSSHUB_URL is set, dynamics will not be polled")
	}

	var renderer render.Renderer
	if cfg.RenderURL != "" {
		client, err := render.NewClient(&http.Client{}, cfg.RenderURL, cfg.RenderDir, cfg.RenderTimeout)
		if err != nil {
			log.Error("create renderer", "error", err)
			os.Exit(1)
		}
		renderer = render.NewRetrying(client, cfg.RenderAttempts, cfg.RenderRetryDelay, log)
	} else {
		log.Info("RENDER_URL not set, updates are sent as plain text")
	}

	api, err := bot.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Renderer:         renderer,
		Transport:        bot.NewTransport(api, log),
		RenderImagePosts: cfg.RenderImages,
		BotName:          cfg.BotName,
		QR:               render.QRDataURI,
		Log:              log,
	})
	cls := classifier.New(log, render.QRDataURI)

	b := bot.New(api, store, cfg, bot.Services{
		Platform:   src,
		Videos:     bili,
		Classifier: cls,
		Dispatcher: dispatcher,
	}, log)

	sched := scheduler.New(store, src, cls, dispatcher, log)
	sched.SetTickInterval(cfg.PollInterval)
	sched.SetConcurrency(cfg.PollConcurrency)
	sched.SetTimeouts(cfg.HTTPTimeout, dispatchTimeout(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot",
		"backend", cfg.StoreBackend,
		"poll_interval", cfg.PollInterval,
		"poll_concurrency", cfg.PollConcurrency)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})
	g.Go(func() error {
		b.Run(ctx)
		return nil
	})
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, g, cfg.MetricsAddr, log)
	}

	if err := g.Wait(); err != nil {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func openStore(cfg *config.Config) (storage.Storage, error) {
	path := cfg.DatabasePath
	if cfg.StoreBackend == config.BackendJSON {
		path = cfg.DataPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	if cfg.StoreBackend == config.BackendJSON {
		return storage.NewJSONFile(path)
	}
	return storage.NewSQLite(path)
}

// dispatchTimeout bounds one delivery: every render attempt plus the send.
func dispatchTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.RenderAttempts)*(cfg.RenderTimeout+cfg.RenderRetryDelay) + 2*time.Minute
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
