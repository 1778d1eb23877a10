// Command skribent runs the dictation correction server: it drains the
// dictation queue on a timer, transcribes and corrects each item, and serves
// health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skribent/skribent/internal/config"
	"github.com/skribent/skribent/internal/correct"
	"github.com/skribent/skribent/internal/dictionary"
	"github.com/skribent/skribent/internal/health"
	"github.com/skribent/skribent/internal/observe"
	"github.com/skribent/skribent/internal/pipeline"
	"github.com/skribent/skribent/internal/reconcile"
	"github.com/skribent/skribent/internal/resilience"
	"github.com/skribent/skribent/internal/store/postgres"
	"github.com/skribent/skribent/pkg/provider/asr"
	asropenai "github.com/skribent/skribent/pkg/provider/asr/openai"
	"github.com/skribent/skribent/pkg/provider/asr/whisperx"
	"github.com/skribent/skribent/pkg/provider/llm"
	"github.com/skribent/skribent/pkg/provider/llm/anyllm"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	level := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		d := config.Diff(old, updated)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config sections changed that need a restart to apply",
				"sections", d.RestartRequired)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "skribent: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "skribent: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("skribent starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry before anything that records metrics.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "skribent"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	store, err := postgres.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		return 1
	}
	defer store.Close()

	var dict dictionary.Provider
	if cfg.Dictionary.Path != "" {
		fp, err := dictionary.NewFileProvider(cfg.Dictionary.Path)
		if err != nil {
			slog.Error("failed to load dictionary", "path", cfg.Dictionary.Path, "err", err)
			return 1
		}
		dict = fp
		if cfg.Dictionary.Watch {
			go watchDictionary(ctx, fp, cfg.Dictionary.Path)
		}
	}

	workerOpts := []pipeline.WorkerOption{
		pipeline.WithLanguage(cfg.Providers.ASR.Language),
		pipeline.WithWorkerMetrics(metrics),
	}
	if providers.Secondary != nil {
		workerOpts = append(workerOpts, pipeline.WithSecondaryASR(providers.Secondary))
	}
	if providers.Merge != nil {
		workerOpts = append(workerOpts, pipeline.WithReconciler(
			reconcile.New(providers.Merge, reconcile.WithTemperature(cfg.Correction.Temperature))))
	}
	if dict != nil {
		workerOpts = append(workerOpts, pipeline.WithDictionary(dict))
	}
	if cfg.Correction.Mode == config.CorrectionModeTerminology {
		workerOpts = append(workerOpts, pipeline.WithTerminologyOnly())
	}

	engine := correct.New(providers.Correction,
		correct.WithTemperature(cfg.Correction.Temperature),
		correct.WithGuard(correct.Guard{
			MinJaccard:     cfg.Correction.Guard.MinJaccard,
			MinLengthRatio: cfg.Correction.Guard.MinLengthRatio,
			MaxLengthRatio: cfg.Correction.Guard.MaxLengthRatio,
		}),
	)

	worker := pipeline.NewWorker(store, store.Log(), providers.ASR, engine, workerOpts...)
	dispatcher := pipeline.NewDispatcher(store, worker,
		pipeline.WithBatchSize(cfg.Queue.BatchSize),
		pipeline.WithDispatcherMetrics(metrics),
	)

	srv := newHTTPServer(cfg, store, providers)
	go func() {
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			stop()
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down",
		"interval", cfg.Queue.Interval, "batch_size", cfg.Queue.BatchSize)

	dispatcher.Run(ctx, cfg.Queue.Interval)

	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// builtProviders holds the instantiated backends the pipeline consumes.
type builtProviders struct {
	// ASR is the primary transcription backend, wrapped in the fallback
	// group when a secondary is configured.
	ASR asr.Provider

	// Secondary is the second transcription engine, nil when not configured.
	Secondary asr.Provider

	// Merge reconciles dual transcriptions, nil when not configured.
	Merge llm.Provider

	// Correction runs the final correction pass.
	Correction llm.Provider

	// WhisperX is set when the primary is a WhisperX backend, for readiness
	// probing.
	WhisperX *whisperx.Provider
}

// anyllmBackends lists the any-llm backend names accepted for merge and
// correction providers. ollama and the llama.cpp family use BaseURL instead
// of an API key.
var anyllmBackends = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterASR("whisperx", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisperx.Option
		if mode := optString(entry.Options, "speed_mode"); mode != "" {
			opts = append(opts, whisperx.WithSpeedMode(mode))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperx.WithLanguage(lang))
		}
		return whisperx.New(entry.BaseURL, opts...)
	})

	reg.RegisterASR("openai", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []asropenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, asropenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, asropenai.WithLanguage(lang))
		}
		return asropenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, backendName := range anyllmBackends {
		reg.RegisterLLM(backendName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backendName, entry.Model, opts)
		})
	}
}

// buildProviders instantiates the backends named in cfg. The primary ASR is
// wrapped in a circuit-breaker fallback group when a secondary exists, so a
// dead primary fails over instead of failing the batch. Rejected audio is
// final and never fails over.
func buildProviders(cfg *config.Config, reg *config.Registry) (*builtProviders, error) {
	ps := &builtProviders{}

	primary, err := reg.CreateASR(cfg.Providers.ASR.Primary)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Primary.Name, err)
	}
	if wx, ok := primary.(*whisperx.Provider); ok {
		ps.WhisperX = wx
	}
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Primary.Name)

	if cfg.Providers.ASR.Secondary.Name != "" {
		secondary, err := reg.CreateASR(cfg.Providers.ASR.Secondary)
		if err != nil {
			return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Secondary.Name, err)
		}
		ps.Secondary = secondary
		slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Secondary.Name)

		group := resilience.NewASRFallback(primary, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{Name: "asr"},
		})
		group.AddFallback(secondary)
		ps.ASR = group
	} else {
		ps.ASR = primary
	}

	if cfg.Providers.Merge.Name != "" {
		p, err := reg.CreateLLM(cfg.Providers.Merge)
		if err != nil {
			return nil, fmt.Errorf("create merge provider %q: %w", cfg.Providers.Merge.Name, err)
		}
		ps.Merge = p
		slog.Info("provider created", "kind", "merge", "name", cfg.Providers.Merge.Name, "model", cfg.Providers.Merge.Model)
	}

	p, err := reg.CreateLLM(cfg.Providers.Correction)
	if err != nil {
		return nil, fmt.Errorf("create correction provider %q: %w", cfg.Providers.Correction.Name, err)
	}
	ps.Correction = p
	slog.Info("provider created", "kind", "correction", "name", cfg.Providers.Correction.Name, "model", cfg.Providers.Correction.Model)

	return ps, nil
}

// newHTTPServer assembles the operational endpoints: /metrics for Prometheus
// scraping and /healthz + /readyz for probes.
func newHTTPServer(cfg *config.Config, store *postgres.Store, providers *builtProviders) *http.Server {
	checkers := []health.Checker{health.Database(store)}
	if providers.WhisperX != nil {
		checkers = append(checkers, health.Transcriber("whisperx", providers.WhisperX.Health))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// watchDictionary reloads the dictionary file on a timer so entry edits take
// effect without a restart.
func watchDictionary(ctx context.Context, fp *dictionary.FileProvider, path string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fp.Reload(); err != nil {
				slog.Warn("dictionary reload failed", "path", path, "err", err)
			}
		}
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
