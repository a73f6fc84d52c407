package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/dggchat"
	"github.com/rickgao/dggchat/internal/archive"
	"github.com/rickgao/dggchat/internal/config"
	"github.com/rickgao/dggchat/internal/database"
	"github.com/rickgao/dggchat/internal/metrics"
	"github.com/rickgao/dggchat/internal/version"
)

const shutdownTimeout = 10 * time.Second

// runFlags override values from the config file.
type runFlags struct {
	configPath  string
	url         string
	sessionID   string
	authToken   string
	noReconnect bool
	stdin       bool
	logLevel    string
}

func runCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and stay connected",
		Long: `Connect to the chat server and keep the session open until
interrupted. With --stdin every input line is sent as a chat message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			var input io.Reader
			if f.stdin {
				input = cmd.InOrStdin()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger, cmd.OutOrStdout(), input)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "path to config file")
	flags.StringVar(&f.url, "url", "", "chat WebSocket URL")
	flags.StringVar(&f.sessionID, "sid", "", "session id cookie")
	flags.StringVar(&f.authToken, "auth-token", "", "login token")
	flags.BoolVar(&f.noReconnect, "no-reconnect", false, "do not reconnect after the connection closes")
	flags.BoolVar(&f.stdin, "stdin", false, "send each line read from stdin")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f runFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadWithDefaults(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.url != "" {
		cfg.Chat.URL = f.url
	}
	if f.sessionID != "" {
		cfg.Chat.SessionID = f.sessionID
		cfg.Chat.AuthToken = ""
	}
	if f.authToken != "" {
		cfg.Chat.AuthToken = f.authToken
		if f.sessionID == "" {
			cfg.Chat.SessionID = ""
		}
	}
	if f.noReconnect {
		reconnect := false
		cfg.Chat.AutoReconnect = &reconnect
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// sessionOptions maps the chat config onto session options.
func sessionOptions(cfg config.ChatConfig) []dggchat.Option {
	return []dggchat.Option{
		dggchat.WithURL(cfg.URL),
		dggchat.WithSessionID(cfg.SessionID),
		dggchat.WithAuthToken(cfg.AuthToken),
		dggchat.WithLivenessTimeout(cfg.LivenessTimeout),
		dggchat.WithAutoReconnect(cfg.Reconnect()),
		dggchat.WithReconnectBackoff(cfg.ReconnectBaseWait, cfg.ReconnectMaxWait),
		dggchat.WithTimeouts(cfg.HandshakeTimeout, cfg.WriteTimeout, cfg.CloseTimeout),
		dggchat.WithEventBuffer(cfg.EventBufferSize),
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, input io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting dggchat",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Chat.URL,
		"authenticated", cfg.Chat.SessionID != "" || cfg.Chat.AuthToken != "",
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(sessionOptions(cfg.Chat),
		dggchat.WithLogger(logger),
		dggchat.WithRegisterer(reg),
	)
	session, err := dggchat.New(opts...)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	// Archive
	var writer *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			return fmt.Errorf("connect archive database: %w", err)
		}
		defer pool.Close()

		mcfg := metrics.DefaultConfig()
		mcfg.Registerer = reg
		writer = archive.NewWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, metrics.New(mcfg), logger.With("component", "archive"))
		logger.Info("archiving messages", "run_id", writer.RunID())

		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start archive writer: %w", err)
		}
	}

	if err := startSession(ctx, session, writer, logger); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	consumed := make(chan struct{})

	// Without auto-reconnect the first close ends the run.
	var onClose func()
	if !cfg.Chat.Reconnect() {
		onClose = cancel
	}

	g.Go(func() error {
		defer close(consumed)
		consumeEvents(session.Events(), writer, out, logger, onClose)
		return nil
	})

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = metricsServer(cfg.Metrics, reg, session)
		g.Go(func() error {
			logger.Info("starting metrics server", "addr", server.Addr, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if input != nil {
		// Not supervised: a read on stdin cannot be interrupted.
		go relayInput(gctx, input, session, logger)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := session.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop session: %w", err))
		}
		<-consumed

		if writer != nil {
			if err := writer.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop archive: %w", err))
			}
		}
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	err = g.Wait()

	stats := session.Stats()
	logger.Info("dggchat stopped",
		"connects", stats.Connects,
		"reconnects", stats.Reconnects,
		"frames", stats.FramesReceived,
	)
	return err
}

// startSession starts the session. If it cannot, the already running
// archive writer is stopped.
func startSession(ctx context.Context, session *dggchat.Session, writer *archive.Writer, logger *slog.Logger) error {
	err := session.Start(ctx)
	if err == nil || writer == nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := writer.Stop(stopCtx); serr != nil {
		logger.Warn("failed to stop archive writer", "error", serr)
	}
	return err
}

// metricsServer serves /metrics and a /health summary of the session.
func metricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, session *dggchat.Session) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", healthHandler(session))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
