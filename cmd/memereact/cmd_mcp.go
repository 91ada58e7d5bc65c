package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	reactmcp "github.com/ajitpratap0/memereact/internal/mcp"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/telegram"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  match      - dry-run selection for a message
  weights    - learned weights and post rates
  catalog    - catalogued memes and keywords
  post_meme  - post a meme, ignoring the posting chance

Posts go to Telegram when telegram.enabled is set. Otherwise post_meme is
advertised to clients as a dry run and posts are only logged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			cat, err := buildCatalog(logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			store, snap, err := loadWeights(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer func() { _ = snap.Close() }()

			var poster reactor.Poster = reactor.NewLogPoster(logger)
			dryRun := true
			if cfg.Telegram.Enabled {
				tg, tgErr := telegram.NewClient(cfg.Telegram.Token, "", time.Duration(cfg.Telegram.PollTimeout)*time.Second, logger)
				if tgErr != nil {
					return fmt.Errorf("mcp: %w", tgErr)
				}
				poster, dryRun = tg, false
			}

			rx, err := newReactor(cat, store, poster, logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer func() { _ = rx.Close(context.Background()) }()

			srv := reactmcp.NewServer(rx, store, cfg.API.Channel, dryRun, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: memereact MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
