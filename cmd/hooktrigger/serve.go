package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hooktrigger/internal"
	"hooktrigger/pkg/api"
	"hooktrigger/pkg/storage"
	"hooktrigger/webhook"
)

func newServeCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, state.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg internal.Config) error {
	logger := internal.NewLogger("server")

	store, err := internal.OpenPipelineStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline store: %w", err)
	}
	defer store.Close()

	publisher, err := internal.NewPublisher(cfg.Watermill)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	defer publisher.Close()

	dispatcher, err := newDispatcher(cfg, store, publisher, logger)
	if err != nil {
		return err
	}
	mux, err := newMux(cfg, dispatcher, store, logger)
	if err != nil {
		return err
	}

	var handler http.Handler = mux
	if cfg.Server.RateLimitRPS > 0 {
		handler = internal.NewRateLimitHandler(mux, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 0)
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       millis(cfg.Server.ReadTimeoutMS),
		WriteTimeout:      millis(cfg.Server.WriteTimeoutMS),
		IdleTimeout:       millis(cfg.Server.IdleTimeoutMS),
		ReadHeaderTimeout: millis(cfg.Server.ReadHeaderMS),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
	}
	return nil
}

func newDispatcher(cfg internal.Config, store storage.PipelineStore, publisher internal.Publisher, logger zerolog.Logger) (*internal.Dispatcher, error) {
	engine, err := internal.NewEngine(cfg.Engine, internal.NewLogObserver(internal.NewLogger("engine")))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return internal.NewDispatcher(engine, store, publisher, cfg.Watermill.Topic, millis(cfg.Engine.TimeoutMS), logger), nil
}

// newMux mounts one handler per enabled provider, the admin endpoints and
// the metrics endpoint.
func newMux(cfg internal.Config, dispatcher *internal.Dispatcher, store storage.PipelineStore, logger zerolog.Logger) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	opts := func(p internal.ProviderConfig, name string) webhook.Options {
		return webhook.Options{
			Secret:      p.Secret,
			MaxBody:     cfg.Server.MaxBodyBytes,
			DebugEvents: cfg.Server.DebugEvents,
			Logger:      logger.With().Str("provider", name).Logger(),
		}
	}

	if p := cfg.Providers.GitHub; p.Enabled {
		h, err := webhook.NewGitHubHandler(dispatcher, opts(p, "github"))
		if err != nil {
			return nil, fmt.Errorf("github handler: %w", err)
		}
		mux.Handle(p.Path, h)
		logger.Info().Str("path", p.Path).Msg("github webhook enabled")
	}
	if p := cfg.Providers.GitLab; p.Enabled {
		h, err := webhook.NewGitLabHandler(dispatcher, opts(p, "gitlab"))
		if err != nil {
			return nil, fmt.Errorf("gitlab handler: %w", err)
		}
		mux.Handle(p.Path, h)
		logger.Info().Str("path", p.Path).Msg("gitlab webhook enabled")
	}
	if p := cfg.Providers.Bitbucket; p.Enabled {
		h, err := webhook.NewBitbucketHandler(dispatcher, opts(p, "bitbucket"))
		if err != nil {
			return nil, fmt.Errorf("bitbucket handler: %w", err)
		}
		mux.Handle(p.Path, h)
		logger.Info().Str("path", p.Path).Msg("bitbucket webhook enabled")
	}
	if cfg.Server.AdminEnabled {
		base := strings.TrimSuffix(cfg.Server.AdminPath, "/")
		adminLogger := logger.With().Str("component", "hooktrigger/api").Logger()
		mux.Handle(base+"/pipelines", &api.PipelinesHandler{Store: store, Logger: adminLogger})
		mux.Handle(base+"/match", &api.MatchHandler{
			Dispatcher: internal.NewDispatcher(dispatcher.Engine(), store, nil, cfg.Watermill.Topic, millis(cfg.Engine.TimeoutMS), adminLogger),
			MaxBody:    cfg.Server.MaxBodyBytes,
			Logger:     adminLogger,
		})
		logger.Info().Str("path", base).Msg("admin api enabled")
	}
	if cfg.Server.MetricsEnabled {
		mux.Handle(cfg.Server.MetricsPath, expvar.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux, nil
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
