package reactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/commands"
	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/policy"
	"github.com/ajitpratap0/memereact/internal/selector"
	"github.com/ajitpratap0/memereact/internal/tracker"
	"github.com/ajitpratap0/memereact/internal/weights"
	"github.com/ajitpratap0/memereact/pkg/randsrc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport records posts and replies and numbers post IDs.
type fakeTransport struct {
	mu      sync.Mutex
	posts   []string
	replies []string
	fail    error
}

func (f *fakeTransport) Post(_ context.Context, channelID string, entry *models.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.posts = append(f.posts, channelID+"|"+entry.ID)
	return fmt.Sprintf("post-%d", len(f.posts)), nil
}

func (f *fakeTransport) Reply(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeTransport) postsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func (f *fakeTransport) repliesSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}

type fixture struct {
	root      string
	store     *weights.Store
	transport *fakeTransport
	reactor   *Reactor
}

// newFixture builds a reactor over a small catalog. draw is the value every
// policy draw returns.
func newFixture(t *testing.T, draw float64) *fixture {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{"alice/cat.jpg", "alice/grumpy_cat2.png", "bob/dog.png"} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	}
	opts := catalog.Options{Contributors: []string{"alice", "bob"}, Logger: testLogger()}
	cat, err := catalog.Build(root, opts)
	require.NoError(t, err)

	rng := randsrc.Fixed{F: draw}
	store := weights.NewStore()
	tr, err := tracker.New(10, store, tracker.ScoreTable{"upvote": 1, "downvote": 2})
	require.NoError(t, err)
	transport := &fakeTransport{}

	r := New(Options{
		Selector:   selector.New(cat, rng),
		Policy:     policy.New(store, rng, policy.DefaultParams()),
		Tracker:    tr,
		Poster:     transport,
		Memeifiers: map[string]string{"u-alice": "alice"},
		Catalog:    opts,
		Logger:     testLogger(),
	})
	return &fixture{root: root, store: store, transport: transport, reactor: r}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.reactor.Close(context.Background()))
}

func TestHandleMessage_ExactMatchPostsAndTracks(t *testing.T) {
	f := newFixture(t, 0)
	d := f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "dog"})
	require.True(t, d.Matched)
	assert.True(t, d.Match.Exact)
	assert.True(t, d.Posted)
	f.drain(t)

	assert.Equal(t, []string{"c|bob/dog.png"}, f.transport.postsSnapshot())
	e, ok := f.reactor.Tracker().Resolve("post-1")
	require.True(t, ok)
	assert.Equal(t, "bob/dog.png", e.ID)
}

func TestHandleMessage_PartialMatch(t *testing.T) {
	f := newFixture(t, 0)
	d := f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "My DOG ate it"})
	require.True(t, d.Matched)
	assert.False(t, d.Match.Exact)
	assert.Equal(t, "bob/dog.png", d.Match.Entry.ID)
	f.drain(t)
}

func TestHandleMessage_PolicyDeclines(t *testing.T) {
	f := newFixture(t, 0.95)
	d := f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "dog"})
	assert.True(t, d.Matched, "a match is reported even when nothing is posted")
	assert.False(t, d.Posted)
	f.drain(t)
	assert.Empty(t, f.transport.postsSnapshot())
}

func TestHandleMessage_NoMatch(t *testing.T) {
	f := newFixture(t, 0)
	d := f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "nothing here"})
	assert.Equal(t, Decision{}, d)
	f.drain(t)
	assert.Empty(t, f.transport.postsSnapshot())
}

func TestPostMeme_BypassesPolicy(t *testing.T) {
	f := newFixture(t, 0.999)
	f.store.GetAndAdd("bob/dog.png", -1000)

	d := f.reactor.PostMeme("c", "dog")
	assert.True(t, d.Posted)
	f.drain(t)
	assert.Equal(t, []string{"c|bob/dog.png"}, f.transport.postsSnapshot())
}

func TestHandleReaction_AdjustsWeight(t *testing.T) {
	f := newFixture(t, 0)
	f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "dog"})
	f.drain(t)

	before := f.reactor.Policy().Probability("bob/dog.png")
	fb, ok := f.reactor.HandleReaction(models.ReactionEvent{PostID: "post-1", Emote: "downvote", Factor: models.ReactionRemoved})
	require.True(t, ok)
	assert.Equal(t, int64(-2), fb.Delta)
	assert.Equal(t, int64(-2), f.store.Get("bob/dog.png"))
	assert.Less(t, f.reactor.Policy().Probability("bob/dog.png"), before)

	_, ok = f.reactor.HandleReaction(models.ReactionEvent{PostID: "post-99", Emote: "upvote", Factor: 1})
	assert.False(t, ok)
}

func TestPostFailureIsNotTracked(t *testing.T) {
	f := newFixture(t, 0)
	f.transport.fail = errors.New("boom")
	d := f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "dog"})
	assert.True(t, d.Posted)
	f.drain(t)
	assert.Equal(t, 0, f.reactor.Tracker().Len())
}

func TestClose_RejectsNewPosts(t *testing.T) {
	f := newFixture(t, 0)
	f.drain(t)
	d := f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "dog"})
	assert.True(t, d.Matched)
	assert.False(t, d.Posted)
}

func TestMemeify(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.reactor.Memeify("u-bob", "dog.png", "puppy")
	assert.ErrorIs(t, err, ErrNotMemeifier)

	_, err = f.reactor.Memeify("u-alice", "dog.png:", "puppy")
	assert.ErrorIs(t, err, catalog.ErrNotInContributor)

	_, err = f.reactor.Memeify("u-alice", "cat.jpg:", "k1tty")
	assert.ErrorIs(t, err, catalog.ErrMalformedAlias)

	line, err := f.reactor.Memeify("u-alice", "cat.jpg:", "Kitty, feline")
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg: kitty, feline", line)

	data, err := os.ReadFile(filepath.Join(f.root, "alice", catalog.DefaultAliasFile))
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg: kitty, feline\n", string(data))

	m, ok := f.reactor.Preview("kitty")
	require.True(t, ok)
	assert.True(t, m.Exact)
	assert.Equal(t, "alice/cat.jpg", m.Entry.ID)
	f.drain(t)
}

func newBot(f *fixture) *Bot {
	return NewBot(f.reactor, commands.NewRegistry(nil, testLogger()), f.transport)
}

func TestBot_CommandsShortCircuitReactor(t *testing.T) {
	f := newFixture(t, 0)
	b := newBot(f)

	in := b.HandleMessage(context.Background(), models.Message{ChannelID: "c", Text: "!help dog"})
	assert.True(t, in.Command.Handled)
	assert.False(t, in.Decision.Matched)

	in = b.HandleMessage(context.Background(), models.Message{ChannelID: "c", Text: "!help"})
	require.NoError(t, in.Command.Err)
	f.drain(t)

	assert.Empty(t, f.transport.postsSnapshot())
	replies := f.transport.repliesSnapshot()
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "Could not resolve command")
	assert.Contains(t, replies[1], "meme(text text): posts a requested meme")
	assert.Contains(t, replies[1], "memeify(file string, aliases text)")
}

func TestBot_MemeCommand(t *testing.T) {
	f := newFixture(t, 0.999)
	b := newBot(f)

	in := b.HandleMessage(context.Background(), models.Message{ChannelID: "c", Text: "sudo meme dog"})
	require.True(t, in.Command.Handled)
	require.NoError(t, in.Command.Err)

	in = b.HandleMessage(context.Background(), models.Message{ChannelID: "c", Text: "!meme unicorn"})
	require.NoError(t, in.Command.Err)
	f.drain(t)

	assert.Equal(t, []string{"c|bob/dog.png"}, f.transport.postsSnapshot())
	replies := f.transport.repliesSnapshot()
	require.Len(t, replies, 1)
	assert.Equal(t, `No meme matches "unicorn"`, replies[0])
}

func TestBot_MemeifyCommand(t *testing.T) {
	f := newFixture(t, 0)
	b := newBot(f)
	ctx := context.Background()

	in := b.HandleMessage(ctx, models.Message{ChannelID: "c", AuthorID: "u-bob", Text: "!memeify dog.png: puppy"})
	assert.ErrorIs(t, in.Command.Err, ErrNotMemeifier)

	in = b.HandleMessage(ctx, models.Message{ChannelID: "c", AuthorID: "u-alice", Text: "!memeify cat.jpg: tabby, moggy"})
	require.NoError(t, in.Command.Err)

	in = b.HandleMessage(ctx, models.Message{ChannelID: "c", AuthorID: "u-alice", Text: "look a moggy"})
	assert.True(t, in.Decision.Matched)
	assert.Equal(t, "alice/cat.jpg", in.Decision.Match.Entry.ID)
	f.drain(t)

	replies := f.transport.repliesSnapshot()
	require.Len(t, replies, 2)
	assert.Equal(t, "you are not a meme master!", replies[0])
	assert.True(t, strings.HasPrefix(replies[1], "Added cat.jpg: tabby, moggy"))
}

func TestBot_ConcurrentReactions(t *testing.T) {
	f := newFixture(t, 0)
	b := newBot(f)
	b.HandleMessage(context.Background(), models.Message{ChannelID: "c", Text: "dog"})
	f.drain(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.HandleReaction(models.ReactionEvent{PostID: "post-1", Emote: "upvote", Factor: models.ReactionAdded})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), f.store.Get("bob/dog.png"))
}

func TestLogPoster(t *testing.T) {
	p := NewLogPoster(testLogger())
	a, err := p.Post(context.Background(), "c", &models.Entry{ID: "x"})
	require.NoError(t, err)
	b, err := p.Post(context.Background(), "c", &models.Entry{ID: "x"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NoError(t, p.Reply(context.Background(), "c", "hi"))
}

func TestClose_TimesOut(t *testing.T) {
	f := newFixture(t, 0)
	block := make(chan struct{})
	f.reactor.poster = posterFunc(func(ctx context.Context) (string, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return "", ctx.Err()
	})
	f.reactor.HandleMessage(models.Message{ChannelID: "c", Text: "dog"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.reactor.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

type posterFunc func(ctx context.Context) (string, error)

func (p posterFunc) Post(ctx context.Context, _ string, _ *models.Entry) (string, error) { return p(ctx) }
