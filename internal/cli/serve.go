package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kubilitics/kubeluma/internal/api"
	"github.com/kubilitics/kubeluma/internal/api/rest"
	"github.com/kubilitics/kubeluma/internal/api/websocket"
	"github.com/kubilitics/kubeluma/internal/config"
	"github.com/kubilitics/kubeluma/internal/k8s"
	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/logger"
	"github.com/kubilitics/kubeluma/internal/pkg/tracing"
	"github.com/kubilitics/kubeluma/internal/service"
)

// serveFlags maps command-line flags to config keys.
var serveFlags = map[string]string{
	"pod":              "pod_pattern",
	"namespace":        "namespace",
	"kubeconfig":       "kubeconfig",
	"context":          "context",
	"host":             "host",
	"port":             "port",
	"metrics-interval": "metrics_interval_sec",
	"log-level":        "log_level",
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pod viewer",
		Long: `Serve the live pod viewer. Pods whose names match the pattern are listed to
connected viewers; set or change the pattern at runtime with POST /api/set_pattern.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringP("pod", "p", "", "initial pod name regex (optional)")
	f.StringP("namespace", "n", "", "namespace to watch (default all)")
	f.String("kubeconfig", "", "path to the kubeconfig file")
	f.String("context", "", "kubeconfig context to use")
	f.String("host", "localhost", "listen host")
	f.Int("port", 8080, "listen port")
	f.Float64("metrics-interval", 5, "metrics sampling interval in seconds")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	for flag, key := range serveFlags {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

// loadServeConfig loads the configuration and rejects an invalid initial pattern up front.
func loadServeConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if cfg.PodPattern != "" {
		if _, err := service.CompilePattern(cfg.PodPattern); err != nil {
			return nil, fmt.Errorf("--pod: %w", err)
		}
	}
	return cfg, nil
}

// Serve runs the viewer until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	defer log.Sync()

	shutdownTracing, err := tracing.Init(ctx, "kubeluma", cfg.OTelEndpoint, cfg.OTelSamplingRate)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	client, err := k8s.NewClient(cfg.Kubeconfig, cfg.Context)
	if err != nil {
		return fmt.Errorf("connect to cluster: %w", err)
	}
	client.SetTimeout(cfg.K8sTimeout())
	client.SetLogger(log.Named("k8s"))
	if cfg.K8sRateLimitPerSec > 0 {
		burst := cfg.K8sRateLimitBurst
		if burst < 1 {
			burst = 1
		}
		client.SetLimiter(rate.NewLimiter(rate.Limit(cfg.K8sRateLimitPerSec), burst))
	}

	hub := websocket.NewHub(ctx, log.Named("hub"))
	go hub.Run()
	defer hub.Stop()

	engine := service.NewEngine(client, hub, service.Options{
		Namespace:           cfg.Namespace,
		InitialPattern:      cfg.PodPattern,
		PodRefresh:          cfg.PodRefreshInterval(),
		DetailRefresh:       cfg.DetailRefreshInterval(),
		MetricsInterval:     cfg.MetricsInterval(),
		EventsInterval:      cfg.EventsInterval(),
		Thresholds:          models.Thresholds{CPULimitRed: cfg.CPULimitRedPct, MemLimitRed: cfg.MemLimitRedPct},
		LogTailLines:        cfg.LogTailLines,
		EventBufferCapacity: cfg.EventBufferCapacity,
		SeenEventsMax:       cfg.SeenEventsMax,
		SeenEventsTTL:       cfg.SeenEventsTTL(),
		Logger:              log.Named("engine"),
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(api.Deps{
			Admin:          rest.NewHandler(engine, log.Named("rest")),
			Health:         rest.NewHealthzHandler(client),
			Viewer:         websocket.NewHandler(ctx, hub, engine, cfg.AllowedOrigins),
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("ws", fmt.Sprintf("ws://%s/ws", srv.Addr)),
			zap.String("namespace", cfg.Namespace),
			zap.String("pattern", cfg.PodPattern))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		hub.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server forced to shutdown", zap.Error(err))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	if err == nil {
		log.Info("server exited gracefully")
	}
	return err
}
