package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/weights"
)

const maxBody = 1 << 20 // 1 MB limit

// Server is an HTTP API that feeds chat traffic to the bot and exposes its state.
type Server struct {
	bot       *reactor.Bot
	weights   *weights.Store
	logger    *slog.Logger
	authToken string // empty = no auth required
	channel   string

	// messages are handled one at a time, like a chat transport loop.
	msgMu sync.Mutex
}

// NewServer creates a new Server. channel is used for posts when a request names none.
func NewServer(bot *reactor.Bot, ws *weights.Store, logger *slog.Logger, authToken, channel string) *Server {
	return &Server{
		bot:       bot,
		weights:   ws,
		logger:    logger,
		authToken: authToken,
		channel:   channel,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics: no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/messages", s.auth(s.handleMessage))
	mux.HandleFunc("POST /v1/reactions", s.auth(s.handleReaction))
	mux.HandleFunc("POST /v1/memes/post", s.auth(s.handlePostMeme))
	mux.HandleFunc("POST /v1/aliases", s.auth(s.handleAliases))
	mux.HandleFunc("POST /v1/match", s.auth(s.handleMatch))
	mux.HandleFunc("GET /v1/weights", s.auth(s.handleWeights))
	mux.HandleFunc("GET /v1/catalog", s.auth(s.handleCatalog))

	return s.requestID(mux)
}

// --- middleware ---

// requestID tags every request with an X-Request-ID, generating one when absent.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"entries": s.bot.Reactor().Catalog().Len(),
	})
}

// messageResponse is returned by POST /v1/messages.
type messageResponse struct {
	Handled bool   `json:"handled"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
	Matched bool   `json:"matched"`
	EntryID string `json:"entry_id,omitempty"`
	Exact   bool   `json:"exact,omitempty"`
	Posted  bool   `json:"posted"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if !s.decode(w, r, &msg) {
		return
	}
	if msg.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if msg.ChannelID == "" {
		msg.ChannelID = s.channel
	}

	s.msgMu.Lock()
	in := s.bot.HandleMessage(r.Context(), msg)
	s.msgMu.Unlock()

	resp := messageResponse{
		Handled: in.Command.Handled,
		Command: in.Command.Command,
		Matched: in.Decision.Matched,
		Posted:  in.Decision.Posted,
	}
	if in.Command.Err != nil {
		resp.Error = in.Command.Err.Error()
	}
	if in.Decision.Matched {
		resp.EntryID = in.Decision.Match.Entry.ID
		resp.Exact = in.Decision.Match.Exact
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// reactionResponse is returned by POST /v1/reactions.
type reactionResponse struct {
	Applied bool   `json:"applied"`
	Outcome string `json:"outcome"`
	EntryID string `json:"entry_id,omitempty"`
	Delta   int64  `json:"delta"`
	Weight  int64  `json:"weight"`
}

func (s *Server) handleReaction(w http.ResponseWriter, r *http.Request) {
	var ev models.ReactionEvent
	if !s.decode(w, r, &ev) {
		return
	}
	if ev.PostID == "" || ev.Emote == "" {
		s.writeError(w, http.StatusBadRequest, "post_id and emote are required")
		return
	}
	if !ev.Factor.IsValid() {
		s.writeError(w, http.StatusBadRequest, "factor must be 1 or -1")
		return
	}

	fb, applied := s.bot.HandleReaction(ev)
	s.writeJSON(w, http.StatusOK, reactionResponse{
		Applied: applied,
		Outcome: string(fb.Outcome),
		EntryID: fb.EntryID,
		Delta:   fb.Delta,
		Weight:  fb.Weight,
	})
}

// postRequest is the body accepted by POST /v1/memes/post.
type postRequest struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

func (s *Server) handlePostMeme(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.ChannelID == "" {
		req.ChannelID = s.channel
	}

	d := s.bot.Reactor().PostMeme(req.ChannelID, req.Text)
	if !d.Matched {
		s.writeError(w, http.StatusNotFound, "no meme matches text")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"entry_id": d.Match.Entry.ID,
		"posted":   d.Posted,
	})
}

// aliasRequest is the body accepted by POST /v1/aliases.
type aliasRequest struct {
	AuthorID string `json:"author_id"`
	File     string `json:"file"`
	Aliases  string `json:"aliases"`
}

func (s *Server) handleAliases(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AuthorID == "" || req.File == "" || req.Aliases == "" {
		s.writeError(w, http.StatusBadRequest, "author_id, file and aliases are required")
		return
	}

	line, err := s.bot.Reactor().Memeify(req.AuthorID, req.File, req.Aliases)
	switch {
	case errors.Is(err, reactor.ErrNotMemeifier):
		s.writeError(w, http.StatusForbidden, "not a memeifier")
		return
	case errors.Is(err, catalog.ErrNotInContributor):
		s.writeError(w, http.StatusNotFound, "meme file not found in your folder")
		return
	case errors.Is(err, catalog.ErrMalformedAlias):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("memeify failed", "author_id", req.AuthorID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to add aliases")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"line": line})
}

// matchResponse is returned by POST /v1/match.
type matchResponse struct {
	Matched     bool          `json:"matched"`
	Entry       *models.Entry `json:"entry,omitempty"`
	Exact       bool          `json:"exact"`
	Keywords    []string      `json:"keywords,omitempty"`
	Candidates  int           `json:"candidates"`
	Weight      int64         `json:"weight"`
	Probability float64       `json:"probability"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	rx := s.bot.Reactor()
	m, ok := rx.Preview(req.Text)
	if !ok {
		s.writeJSON(w, http.StatusOK, matchResponse{})
		return
	}
	info := rx.Policy().Info(m.Entry.ID)
	s.writeJSON(w, http.StatusOK, matchResponse{
		Matched:     true,
		Entry:       m.Entry,
		Exact:       m.Exact,
		Keywords:    m.Keywords,
		Candidates:  m.Candidates,
		Weight:      info.Weight,
		Probability: info.Probability,
	})
}

func (s *Server) handleWeights(w http.ResponseWriter, _ *http.Request) {
	snap := s.weights.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pol := s.bot.Reactor().Policy()
	out := make([]models.WeightInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, pol.Info(id))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"weights": out})
}

// catalogEntry is one element of GET /v1/catalog.
type catalogEntry struct {
	*models.Entry
	Weight      int64   `json:"weight"`
	Probability float64 `json:"probability"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	rx := s.bot.Reactor()
	cat := rx.Catalog()
	pol := rx.Policy()

	entries := cat.Entries()
	out := make([]catalogEntry, 0, len(entries))
	for _, e := range entries {
		info := pol.Info(e.ID)
		out = append(out, catalogEntry{Entry: e, Weight: info.Weight, Probability: info.Probability})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries":  out,
		"keywords": len(cat.Keywords()),
	})
}

// --- helpers ---

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
