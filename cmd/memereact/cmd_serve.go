package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/memereact/internal/api"
	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/commands"
	"github.com/ajitpratap0/memereact/internal/metrics"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/telegram"
	"github.com/ajitpratap0/memereact/internal/weights"
)

const (
	shutdownTimeout = 10 * time.Second
	respawnNotice   = "I have respawned."
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: HTTP API, Telegram polling, catalog watcher and weight flusher",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			cat, err := buildCatalog(logger)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			metrics.CatalogEntries.Set(float64(cat.Len()))

			store, snap, err := loadWeights(ctx, logger)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = snap.Close() }()

			flusher := weights.NewFlusher(store, snap, weights.FlusherOptions{Interval: cfg.Persistence.Interval}, logger)
			if err := flusher.Start(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			var (
				transport reactor.Transport
				tg        *telegram.Client
			)
			if cfg.Telegram.Enabled {
				tg, err = telegram.NewClient(cfg.Telegram.Token, "", time.Duration(cfg.Telegram.PollTimeout)*time.Second, logger)
				if err != nil {
					_ = flusher.Stop(context.Background())
					return fmt.Errorf("serve: %w", err)
				}
				transport = tg
			} else {
				logger.Warn("telegram disabled; posts and replies are only logged")
				transport = reactor.NewLogPoster(logger)
			}

			rx, err := newReactor(cat, store, transport, logger)
			if err != nil {
				_ = flusher.Stop(context.Background())
				return fmt.Errorf("serve: %w", err)
			}
			bot := reactor.NewBot(rx, commands.NewRegistry(cfg.Commands.Markers, logger), transport)

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()
			var wg sync.WaitGroup

			if cfg.Catalog.Watch {
				w, werr := catalog.NewWatcher(cfg.Catalog.Root, catalogOptions(logger), cfg.Catalog.Debounce, rx.SwapCatalog, logger)
				if werr != nil {
					logger.Warn("catalog watcher unavailable; changes need a restart", "error", werr)
				} else {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if runErr := w.Run(runCtx); runErr != nil {
							logger.Error("catalog watcher stopped", "error", runErr)
						}
					}()
				}
			}

			if tg != nil {
				poller := telegram.NewPoller(tg, bot, cfg.Telegram.PollTimeout)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if runErr := poller.Run(runCtx); runErr != nil {
						logger.Error("telegram poller stopped", "error", runErr)
					}
				}()
				if cfg.Telegram.LogChatID != "" {
					if nerr := tg.Reply(ctx, cfg.Telegram.LogChatID, respawnNotice); nerr != nil {
						logger.Warn("sending startup notice failed", "error", nerr)
					}
				}
			}

			srv := api.NewServer(bot, store, logger, cfg.API.AuthToken, cfg.API.Channel)
			if cfg.API.AuthToken == "" {
				logger.Warn("HTTP API: auth is DISABLED; set MEMEREACT_API_AUTH_TOKEN or api.auth_token for production use")
			}

			httpSrv := &http.Server{
				Addr:              cfg.API.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API server starting", "addr", cfg.API.ListenAddr)
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case runErr = <-errCh:
			}

			if shutdownErr := api.Shutdown(httpSrv, shutdownTimeout); shutdownErr != nil {
				logger.Error("HTTP graceful shutdown failed", "error", shutdownErr)
			}
			cancelRun()
			wg.Wait()

			closeCtx, cancelClose := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelClose()
			if closeErr := rx.Close(closeCtx); closeErr != nil {
				logger.Warn("posts still in flight at shutdown", "error", closeErr)
			}
			if stopErr := flusher.Stop(closeCtx); stopErr != nil {
				return fmt.Errorf("serve: %w", stopErr)
			}

			// Drain the errCh in case ListenAndServe returned after Shutdown.
			if runErr == nil {
				runErr = <-errCh
			}
			return runErr
		},
	}
	return cmd
}
