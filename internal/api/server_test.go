package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/commands"
	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/policy"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/selector"
	"github.com/ajitpratap0/memereact/internal/tracker"
	"github.com/ajitpratap0/memereact/internal/weights"
	"github.com/ajitpratap0/memereact/pkg/randsrc"
)

type recordingTransport struct {
	mu      sync.Mutex
	posts   []string
	replies []string
}

func (r *recordingTransport) Post(_ context.Context, channelID string, e *models.Entry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, channelID+"|"+e.ID)
	return fmt.Sprintf("post-%d", len(r.posts)), nil
}

func (r *recordingTransport) Reply(_ context.Context, _, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return nil
}

type env struct {
	srv       *httptest.Server
	rx        *reactor.Reactor
	store     *weights.Store
	transport *recordingTransport
}

func newEnv(t *testing.T, token string) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()
	for _, rel := range []string{"alice/cat.jpg", "bob/dog.png"} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("img"), 0o644))
	}
	opts := catalog.Options{Logger: logger}
	cat, err := catalog.Build(root, opts)
	require.NoError(t, err)

	rng := randsrc.Fixed{}
	store := weights.NewStore()
	tr, err := tracker.New(10, store, tracker.ScoreTable{"up": 1, "down": -2})
	require.NoError(t, err)
	transport := &recordingTransport{}
	rx := reactor.New(reactor.Options{
		Selector:   selector.New(cat, rng),
		Policy:     policy.New(store, rng, policy.DefaultParams()),
		Tracker:    tr,
		Poster:     transport,
		Memeifiers: map[string]string{"42": "alice"},
		Catalog:    opts,
		Logger:     logger,
	})
	bot := reactor.NewBot(rx, commands.NewRegistry(nil, logger), transport)

	srv := httptest.NewServer(NewServer(bot, store, logger, token, "general").Handler())
	t.Cleanup(srv.Close)
	return &env{srv: srv, rx: rx, store: store, transport: transport}
}

func (e *env) do(t *testing.T, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, e.rx.Close(context.Background()))
}

func TestHealthzAndMetricsNeedNoAuth(t *testing.T) {
	e := newEnv(t, "secret")

	resp, body := e.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["entries"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = e.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	e := newEnv(t, "secret")

	resp, _ := e.do(t, http.MethodGet, "/v1/weights", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/v1/weights", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/v1/weights", nil, "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMessageThenReaction(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.do(t, http.MethodPost, "/v1/messages", map[string]string{"text": "my cat is sleeping"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["handled"])
	assert.Equal(t, true, body["matched"])
	assert.Equal(t, true, body["posted"])
	assert.Equal(t, "alice/cat.jpg", body["entry_id"])
	e.drain(t)
	assert.Equal(t, []string{"general|alice/cat.jpg"}, e.transport.posts)

	resp, body = e.do(t, http.MethodPost, "/v1/reactions", map[string]any{"post_id": "post-1", "emote": "down", "factor": 1}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, float64(-2), body["delta"])
	assert.Equal(t, float64(-2), body["weight"])
	assert.Equal(t, int64(-2), e.store.Get("alice/cat.jpg"))

	resp, body = e.do(t, http.MethodPost, "/v1/reactions", map[string]any{"post_id": "post-7", "emote": "up", "factor": 1}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["applied"])
	assert.Equal(t, "unresolved", body["outcome"])
}

func TestMessageCommand(t *testing.T) {
	e := newEnv(t, "")
	resp, body := e.do(t, http.MethodPost, "/v1/messages", map[string]string{"channel_id": "c9", "text": "!nope"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["handled"])
	assert.Equal(t, "nope", body["command"])
	assert.Contains(t, body["error"], "unknown command")
	e.drain(t)
	assert.Len(t, e.transport.replies, 1)
}

func TestValidation(t *testing.T) {
	e := newEnv(t, "")
	cases := []struct {
		path string
		body any
	}{
		{"/v1/messages", map[string]string{}},
		{"/v1/reactions", map[string]any{"post_id": "p", "emote": "up", "factor": 3}},
		{"/v1/reactions", map[string]any{"emote": "up", "factor": 1}},
		{"/v1/memes/post", map[string]string{}},
		{"/v1/aliases", map[string]string{"author_id": "42"}},
		{"/v1/match", map[string]string{}},
	}
	for _, tc := range cases {
		resp, _ := e.do(t, http.MethodPost, tc.path, tc.body, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tc.path)
	}

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/messages", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostMeme(t *testing.T) {
	e := newEnv(t, "")
	e.store.GetAndAdd("bob/dog.png", -500)

	resp, body := e.do(t, http.MethodPost, "/v1/memes/post", map[string]string{"channel_id": "c", "text": "dog"}, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "bob/dog.png", body["entry_id"])

	resp, _ = e.do(t, http.MethodPost, "/v1/memes/post", map[string]string{"text": "unicorn"}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	e.drain(t)
	assert.Equal(t, []string{"c|bob/dog.png"}, e.transport.posts)
}

func TestAliases(t *testing.T) {
	e := newEnv(t, "")

	resp, _ := e.do(t, http.MethodPost, "/v1/aliases", map[string]string{"author_id": "7", "file": "cat.jpg", "aliases": "kitty"}, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/v1/aliases", map[string]string{"author_id": "42", "file": "dog.png", "aliases": "pup"}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/v1/aliases", map[string]string{"author_id": "42", "file": "cat.jpg", "aliases": "k1tty"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/v1/aliases", map[string]string{"author_id": "42", "file": "cat.jpg", "aliases": "kitty, feline"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cat.jpg: kitty, feline", body["line"])

	resp, body = e.do(t, http.MethodPost, "/v1/match", map[string]string{"text": "feline"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["matched"])
	assert.Equal(t, true, body["exact"])
}

func TestMatchWeightsAndCatalog(t *testing.T) {
	e := newEnv(t, "")
	e.store.GetAndAdd("bob/dog.png", 5)

	resp, body := e.do(t, http.MethodPost, "/v1/match", map[string]string{"text": "hot dog stand"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["matched"])
	assert.Equal(t, false, body["exact"])
	assert.Equal(t, float64(5), body["weight"])
	assert.Equal(t, float64(1), body["probability"], "display rate is capped at 1")

	resp, body = e.do(t, http.MethodPost, "/v1/match", map[string]string{"text": "nothing"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["matched"])

	resp, body = e.do(t, http.MethodGet, "/v1/weights", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ws := body["weights"].([]any)
	require.Len(t, ws, 1)
	assert.Equal(t, "bob/dog.png", ws[0].(map[string]any)["entry_id"])

	resp, body = e.do(t, http.MethodGet, "/v1/catalog", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "alice/cat.jpg", first["id"])
	assert.InDelta(t, 0.9, first["probability"], 1e-9)
}
