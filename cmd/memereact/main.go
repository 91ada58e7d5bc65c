package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/config"
	"github.com/ajitpratap0/memereact/internal/policy"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/selector"
	"github.com/ajitpratap0/memereact/internal/tracker"
	"github.com/ajitpratap0/memereact/internal/weights"
	"github.com/ajitpratap0/memereact/pkg/randsrc"
)

var (
	cfg     *config.Config
	cfgFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "memereact",
		Short: "memereact: a chat bot that answers messages with memes and learns from reactions",
		Long: "memereact watches chat messages for keywords of catalogued meme images, posts a matching meme " +
			"with a probability learned from emoji reactions, and persists what it learned across restarts.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadFile(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.memereact/config.yaml)")

	rootCmd.AddCommand(
		serveCmd(),
		catalogCmd(),
		matchCmd(),
		weightsCmd(),
		mcpCmd(),
		healthCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch strings.ToLower(cfg.Logging.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func catalogOptions(logger *slog.Logger) catalog.Options {
	return catalog.Options{
		Contributors: cfg.Contributors(),
		AliasFile:    cfg.Catalog.AliasFile,
		MaxDepth:     cfg.Catalog.MaxDepth,
		Logger:       logger,
	}
}

func buildCatalog(logger *slog.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.Build(cfg.Catalog.Root, catalogOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	return cat, nil
}

func newSnapshotter(logger *slog.Logger) (weights.Snapshotter, error) {
	switch cfg.Persistence.Backend {
	case config.BackendSQLite:
		return weights.NewSQLiteSnapshotter(cfg.Persistence.Path)
	case config.BackendMemory:
		return weights.NewMemorySnapshotter(nil), nil
	default:
		return weights.NewFileSnapshotter(cfg.Persistence.Path, logger), nil
	}
}

// loadWeights opens the configured snapshot backend and restores the store from it.
func loadWeights(ctx context.Context, logger *slog.Logger) (*weights.Store, weights.Snapshotter, error) {
	snap, err := newSnapshotter(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening weight snapshot: %w", err)
	}
	store := weights.NewStore()
	if err := store.LoadSnapshot(ctx, snap); err != nil {
		_ = snap.Close()
		return nil, nil, err
	}
	logger.Info("weights loaded", "backend", cfg.Persistence.Backend, "entries", store.Len())
	return store, snap, nil
}

func policyParams() policy.Params {
	return policy.Params{
		DefaultChance: cfg.Policy.DefaultChance,
		MinChance:     cfg.Policy.MinChance,
		Growth:        cfg.Policy.Growth,
	}
}

func newReactor(cat *catalog.Catalog, store *weights.Store, poster reactor.Poster, logger *slog.Logger) (*reactor.Reactor, error) {
	params := policyParams()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	tr, err := tracker.New(cfg.Tracker.Capacity, store, tracker.ScoreTable(cfg.ReactionScores()))
	if err != nil {
		return nil, err
	}
	rng := randsrc.Global()
	rx := reactor.New(reactor.Options{
		Selector:   selector.New(cat, rng),
		Policy:     policy.New(store, rng, params),
		Tracker:    tr,
		Poster:     poster,
		Memeifiers: cfg.MemeifierFolders(),
		Catalog:    catalogOptions(logger),
		Logger:     logger,
	})
	return rx, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
