package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatd/internal/chat"
	"chatd/internal/common/fsutil"
	"chatd/internal/config"
	"chatd/internal/engine"
	"chatd/internal/httpapi"
	"chatd/internal/store"
	"chatd/pkg/types"
)

const (
	modeStandalone = "standalone"
	modeProduction = "production"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath   string
		addr      string
		dbPath    string
		modelsDir string
		mode      string
		logLevel  string

		threads     int
		gateWaitSec int
		genTimeout  int
		maxBody     int64

		corsEnabled bool
		corsOrigins string

		modelName string
		modelPath string
	)

	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Chat session server over a single local LLM engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags override file values.
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("db") || cfg.DBPath == "" {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("models-dir") || cfg.ModelsDir == "" {
				cfg.ModelsDir = modelsDir
			}
			if cmd.Flags().Changed("mode") || cfg.Mode == "" {
				cfg.Mode = mode
			}
			if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("threads") || cfg.Threads == 0 {
				cfg.Threads = threads
			}
			if cmd.Flags().Changed("gate-max-wait") {
				cfg.GateMaxWaitSeconds = gateWaitSec
			}
			if cmd.Flags().Changed("generate-timeout") {
				cfg.GenerateTimeoutSeconds = genTimeout
			}
			if cmd.Flags().Changed("max-body-bytes") {
				cfg.MaxBodyBytes = int(maxBody)
			}
			if cmd.Flags().Changed("cors") {
				cfg.CORSEnabled = corsEnabled
			}
			if cmd.Flags().Changed("cors-origins") {
				cfg.CORSOrigins = splitCSV(corsOrigins)
			}
			if modelName != "" && modelPath != "" && cfg.Model == nil {
				cfg.Model = &types.ModelConfig{Name: modelName, ModelPath: modelPath}
			}
			return serve(cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", os.Getenv("CHATD_CONFIG"), "Path to a yaml/json/toml config file")
	f.StringVar(&addr, "addr", envStr("CHATD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	f.StringVar(&dbPath, "db", envStr("CHATD_DB", "chatd.db"), "Path to the SQLite database file")
	f.StringVar(&modelsDir, "models-dir", os.Getenv("CHATD_MODELS_DIR"), "Directory to scan for *.gguf model files")
	f.StringVar(&mode, "mode", envStr("CHATD_MODE", modeStandalone), "Deployment mode: standalone|production")
	f.StringVar(&logLevel, "log-level", envStr("CHATD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	f.IntVar(&threads, "threads", 0, "Engine threads (0 = runtime default)")
	f.IntVar(&gateWaitSec, "gate-max-wait", 0, "Max seconds to wait for the inference gate (0 = wait indefinitely)")
	f.IntVar(&genTimeout, "generate-timeout", 0, "Max seconds for one generation (0 = unbounded)")
	f.Int64Var(&maxBody, "max-body-bytes", 0, "Max request body size in bytes (0 = default 1MiB)")
	f.BoolVar(&corsEnabled, "cors", false, "Enable CORS middleware")
	f.StringVar(&corsOrigins, "cors-origins", "*", "Comma-separated allowed CORS origins")
	f.StringVar(&modelName, "model", "", "Model config name to load at startup")
	f.StringVar(&modelPath, "model-path", "", "Path to model weights to load at startup")
	return root
}

func serve(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	if cfg.Mode != modeStandalone && cfg.Mode != modeProduction {
		return fmt.Errorf("unknown mode %q (want standalone or production)", cfg.Mode)
	}
	if cfg.Mode == modeProduction && cfg.Model == nil {
		return fmt.Errorf("production mode requires a model config")
	}

	dbPath, err := fsutil.ExpandHome(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	st, err := store.Open(dbPath, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	engines := engine.NewManager(engine.ManagerConfig{
		Runtime:         engine.NewLlamaRuntime(cfg.Threads),
		GenerateTimeout: time.Duration(cfg.GenerateTimeoutSeconds) * time.Second,
		Logger:          log,
	})
	defer engines.Unload()

	if cfg.Model != nil {
		if mp, err := fsutil.ExpandHome(cfg.Model.ModelPath); err == nil {
			cfg.Model.ModelPath = mp
		}
		if _, err := engines.Load(*cfg.Model); err != nil {
			return fmt.Errorf("preload model %q: %w", cfg.Model.Name, err)
		}
		if err := st.SaveModelConfig(context.Background(), *cfg.Model); err != nil {
			return fmt.Errorf("persist model config: %w", err)
		}
	}

	gate := engine.NewGate(time.Duration(cfg.GateMaxWaitSeconds) * time.Second)
	sessions := chat.NewManager(st, engines, gate, log)

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(int64(cfg.MaxBodyBytes))
	if cfg.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
	}

	// Base context canceled on shutdown so in-flight generations stop.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(&httpapi.App{
		Sessions:   sessions,
		Engines:    engines,
		Users:      st,
		Management: cfg.Mode == modeStandalone,
		ModelsDir:  cfg.ModelsDir,
		StartedAt:  time.Now(),
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("mode", cfg.Mode).Str("db", cfg.DBPath).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
