package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"adapterd/internal/clock"
	"adapterd/internal/common/fsutil"
	"adapterd/internal/compose"
	"adapterd/internal/config"
	"adapterd/internal/engine"
	"adapterd/internal/experiment"
	"adapterd/internal/httpapi"
	"adapterd/internal/metrics"
	"adapterd/internal/registry"
	"adapterd/internal/router"
	"adapterd/pkg/types"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		addr        string
		adaptersDir string
		engineKind  string
		logLevel    string
	)

	root := &cobra.Command{
		Use:           "adapterd",
		Short:         "Adapter federation and real-time composition daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("ADAPTERD_CONFIG", ""), "Path to config file (.yaml, .json or .toml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("adapters-dir") || cfg.AdaptersDir == "" {
				cfg.AdaptersDir = adaptersDir
			}
			if cmd.Flags().Changed("engine") || cfg.Engine == "" {
				cfg.Engine = engineKind
			}
			if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
				cfg.LogLevel = logLevel
			}
			return runServe(cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", envOr("ADAPTERD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	serve.Flags().StringVar(&adaptersDir, "adapters-dir", envOr("ADAPTERD_ADAPTERS_DIR", "~/adapters"), "Directory to scan for adapter manifests")
	serve.Flags().StringVar(&engineKind, "engine", envOr("ADAPTERD_ENGINE", "memory"), "Composition engine: memory|llama")
	serve.Flags().StringVar(&logLevel, "log-level", envOr("ADAPTERD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error|off")
	root.AddCommand(serve)

	validate := &cobra.Command{
		Use:   "validate-config",
		Short: "Parse the config file and report errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return fmt.Errorf("--config is required")
			}
			if _, err := config.Load(cfgPath); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	root.AddCommand(validate)

	return root
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func runServe(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)
	clk := clock.Real()

	reg := registry.New(clk)
	if cfg.AdaptersDir != "" {
		descs, err := registry.LoadDir(cfg.AdaptersDir)
		if err != nil {
			return fmt.Errorf("load adapters: %w", err)
		}
		for _, d := range descs {
			if err := reg.Register(d, false); err != nil {
				log.Warn().Err(err).Str("adapter", d.ID).Msg("skipping manifest")
			}
		}
		log.Info().Int("adapters", reg.Count()).Str("dir", cfg.AdaptersDir).Msg("registry loaded")
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	var store experiment.Store
	if cfg.ExperimentsDB != "" {
		dbPath, err := fsutil.ExpandHome(cfg.ExperimentsDB)
		if err != nil {
			return fmt.Errorf("experiments db path: %w", err)
		}
		if err := fsutil.EnsureDir(dbPath); err != nil {
			return fmt.Errorf("experiments db dir: %w", err)
		}
		s, err := experiment.OpenSQLite(dbPath)
		if err != nil {
			return fmt.Errorf("open experiments db: %w", err)
		}
		store = s
	} else {
		store = experiment.NewMemoryStore()
	}
	defer store.Close()

	assign, err := experiment.New(store, clk, log)
	if err != nil {
		return fmt.Errorf("load experiments: %w", err)
	}

	comp := compose.New(reg, eng, compose.Config{
		CacheCapacity: cfg.CacheCapacity,
		CacheTTL:      time.Duration(cfg.CacheTTLSec) * time.Second,
		BuildTimeout:  time.Duration(cfg.BuildTimeoutSec) * time.Second,
		QueueDepth:    cfg.QueueDepth,
		Workers:       cfg.Workers,
		Clock:         clk,
		Logger:        log,
	})
	defer comp.Close()
	reg.SetUsageChecker(comp.Cache())

	collector := metrics.NewCollector(clk)
	rt := router.New(reg, comp, assign, collector, clk, log)

	for _, w := range cfg.WarmList {
		if err := rt.Prefetch(w.AdapterIDs, types.Strategy(w.Strategy)); err != nil {
			log.Warn().Err(err).Strs("adapters", w.AdapterIDs).Msg("warm list prefetch rejected")
		}
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{"GET", "POST", "DELETE", "OPTIONS"},
		[]string{"Accept", "Content-Type", "X-Log-Level"})

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(rt)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("engine", comp.EngineKind()).Msg("adapterd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

func buildEngine(cfg config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case "", "memory":
		return engine.NewMemoryEngine(), nil
	case "llama":
		if cfg.BaseModelPath == "" {
			return nil, fmt.Errorf("llama engine requires base_model_path")
		}
		base, err := fsutil.ExpandHome(cfg.BaseModelPath)
		if err != nil {
			return nil, fmt.Errorf("base model path: %w", err)
		}
		if !fsutil.PathExists(base) {
			return nil, fmt.Errorf("base model not found: %s", base)
		}
		return engine.NewLlamaEngine(base, cfg.LlamaCtx, cfg.LlamaThreads), nil
	default:
		return nil, fmt.Errorf("unknown engine: %q", cfg.Engine)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
}
