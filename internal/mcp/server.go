// Package mcp implements the Model Context Protocol server for memereact.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/weights"
)

// defaultWeightsLimit is the default number of entries returned by weights.
const defaultWeightsLimit = 50

// Server wraps an MCPServer with memereact dependencies.
type Server struct {
	mcp     *mcpserver.MCPServer
	rx      *reactor.Reactor
	weights *weights.Store
	channel string
	dryRun  bool
	logger  *slog.Logger
}

// NewServer creates a new MCP server. channel is where post_meme posts when
// the call names no channel. dryRun marks a reactor whose poster only logs;
// post_meme then describes and reports itself as a dry run.
func NewServer(rx *reactor.Reactor, ws *weights.Store, channel string, dryRun bool, logger *slog.Logger) *Server {
	s := &Server{
		rx:      rx,
		weights: ws,
		channel: channel,
		dryRun:  dryRun,
		logger:  logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"memereact",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildMatchTool(), s.handleMatch)
	mcpSrv.AddTool(buildWeightsTool(), s.handleWeights)
	mcpSrv.AddTool(buildCatalogTool(), s.handleCatalog)
	mcpSrv.AddTool(buildPostMemeTool(dryRun), s.handlePostMeme)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleMatch is the exported handler for the "match" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleMatch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleMatch(ctx, req)
}

// HandleWeights is the exported handler for the "weights" tool.
func (s *Server) HandleWeights(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleWeights(ctx, req)
}

// HandleCatalog is the exported handler for the "catalog" tool.
func (s *Server) HandleCatalog(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCatalog(ctx, req)
}

// HandlePostMeme is the exported handler for the "post_meme" tool.
func (s *Server) HandlePostMeme(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handlePostMeme(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildMatchTool() mcpgo.Tool {
	return mcpgo.NewTool("match",
		mcpgo.WithDescription("Dry run: show which meme a chat message would trigger and its current post chance. Nothing is posted."),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("The chat message text"),
		),
	)
}

func buildWeightsTool() mcpgo.Tool {
	return mcpgo.NewTool("weights",
		mcpgo.WithDescription("List learned meme weights with their effective post rate, highest weight first."),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of entries (default: 50)"),
		),
	)
}

func buildCatalogTool() mcpgo.Tool {
	return mcpgo.NewTool("catalog",
		mcpgo.WithDescription("List catalogued memes and their keywords, optionally only those carrying a keyword."),
		mcpgo.WithString("keyword",
			mcpgo.Description("Only list memes carrying this exact keyword"),
		),
	)
}

func buildPostMemeTool(dryRun bool) mcpgo.Tool {
	desc := "Post the meme matching text to a chat, ignoring the posting chance."
	if dryRun {
		desc = "Dry run: select the meme matching text as if posting it, ignoring the posting chance. " +
			"No chat transport is configured, so the post is only logged."
	}
	return mcpgo.NewTool("post_meme",
		mcpgo.WithDescription(desc),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("Text to match a meme against"),
		),
		mcpgo.WithString("channel_id",
			mcpgo.Description("Target channel (default: the configured API channel)"),
		),
	)
}

// --- tool handlers ---

func (s *Server) handleMatch(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcpgo.NewToolResultError("text is required and must not be empty"), nil
	}

	m, ok := s.rx.Preview(text)
	if !ok {
		return toolResultJSON(map[string]any{"matched": false})
	}
	info := s.rx.Policy().Info(m.Entry.ID)
	return toolResultJSON(map[string]any{
		"matched":     true,
		"entry":       m.Entry,
		"exact":       m.Exact,
		"keywords":    m.Keywords,
		"candidates":  m.Candidates,
		"weight":      info.Weight,
		"probability": info.Probability,
	})
}

func (s *Server) handleWeights(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	limit := req.GetInt("limit", defaultWeightsLimit)
	if limit <= 0 {
		limit = defaultWeightsLimit
	}

	pol := s.rx.Policy()
	snap := s.weights.Snapshot()
	out := make([]models.WeightInfo, 0, len(snap))
	for id := range snap {
		out = append(out, pol.Info(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].EntryID < out[j].EntryID
	})
	total := len(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return toolResultJSON(map[string]any{"weights": out, "total": total})
}

func (s *Server) handleCatalog(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	cat := s.rx.Catalog()
	entries := cat.Entries()
	if kw := strings.ToLower(strings.TrimSpace(req.GetString("keyword", ""))); kw != "" {
		entries = cat.LookupExact(kw)
	}
	return toolResultJSON(map[string]any{
		"entries":  entries,
		"count":    len(entries),
		"keywords": len(cat.Keywords()),
	})
}

func (s *Server) handlePostMeme(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcpgo.NewToolResultError("text is required and must not be empty"), nil
	}
	channel := req.GetString("channel_id", s.channel)
	if channel == "" {
		return mcpgo.NewToolResultError("channel_id is required when no default channel is configured"), nil
	}

	d := s.rx.PostMeme(channel, text)
	if !d.Matched {
		return mcpgo.NewToolResultErrorf("no meme matches %q", text), nil
	}
	s.logger.Info("mcp: post_meme", "entry", d.Match.Entry.ID, "channel", channel, "posted", d.Posted, "dry_run", s.dryRun)
	return toolResultJSON(map[string]any{
		"entry_id": d.Match.Entry.ID,
		"posted":   d.Posted,
		"dry_run":  s.dryRun,
	})
}
