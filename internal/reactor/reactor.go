// Package reactor ties selection, the posting policy and feedback tracking
// together: it decides whether to answer a message with a meme, posts it, and
// credits later reactions to the meme that was shown.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/metrics"
	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/policy"
	"github.com/ajitpratap0/memereact/internal/selector"
	"github.com/ajitpratap0/memereact/internal/tracker"
)

// ErrNotMemeifier is returned when someone outside the memeifier list tries to
// add aliases.
var ErrNotMemeifier = errors.New("not a meme master")

const defaultPostTimeout = 30 * time.Second

// Poster delivers a meme image to a channel and returns the ID of the
// resulting post, which later reaction events refer to.
type Poster interface {
	Post(ctx context.Context, channelID string, entry *models.Entry) (string, error)
}

// Options wires a Reactor.
type Options struct {
	Selector *selector.Selector
	Policy   *policy.Policy
	Tracker  *tracker.Tracker
	Poster   Poster
	// Memeifiers maps an author ID to the contributor folder they may add aliases to.
	Memeifiers map[string]string
	// Catalog is used to rebuild the catalog after a memeify.
	Catalog     catalog.Options
	PostTimeout time.Duration
	Logger      *slog.Logger
}

// Decision is what the reactor did with one piece of text.
type Decision struct {
	Matched bool           `json:"matched"`
	Match   selector.Match `json:"match"`
	// Posted is true when a post was started. Delivery happens asynchronously.
	Posted bool `json:"posted"`
}

// Reactor handles messages, explicit meme requests and reactions.
type Reactor struct {
	sel        *selector.Selector
	pol        *policy.Policy
	tr         *tracker.Tracker
	poster     Poster
	memeifiers map[string]string
	catOpts    catalog.Options
	timeout    time.Duration
	logger     *slog.Logger

	memeifyMu sync.Mutex
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancel    context.CancelFunc
}

// New creates a reactor.
func New(opts Options) *Reactor {
	if opts.PostTimeout <= 0 {
		opts.PostTimeout = defaultPostTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		sel:        opts.Selector,
		pol:        opts.Policy,
		tr:         opts.Tracker,
		poster:     opts.Poster,
		memeifiers: opts.Memeifiers,
		catOpts:    opts.Catalog,
		timeout:    opts.PostTimeout,
		logger:     opts.Logger,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// HandleMessage selects a meme for msg and posts it if the policy allows.
// The returned decision reports whether a meme matched, even when the policy
// declined to post it.
func (r *Reactor) HandleMessage(msg models.Message) Decision {
	metrics.MessagesTotal.Inc()
	return r.react(msg.ChannelID, msg.Text, false)
}

// PostMeme selects a meme for text and always posts it.
func (r *Reactor) PostMeme(channelID, text string) Decision {
	return r.react(channelID, text, true)
}

// Preview selects a meme for text without posting it.
func (r *Reactor) Preview(text string) (selector.Match, bool) {
	return r.sel.Select(text)
}

func (r *Reactor) react(channelID, text string, bypass bool) Decision {
	m, ok := r.sel.Select(text)
	if !ok {
		return Decision{}
	}
	kind := "partial"
	if m.Exact {
		kind = "exact"
	}
	metrics.MatchesTotal.WithLabelValues(kind).Inc()

	d := Decision{Matched: true, Match: m}
	if !r.pol.ShouldPost(m.Entry, bypass) {
		metrics.PostsSkipped.Inc()
		r.logger.Debug("meme matched but not posted", "entry", m.Entry.ID, "probability", r.pol.Probability(m.Entry.ID))
		return d
	}

	postKind := models.PostAuto
	if bypass {
		postKind = models.PostExplicit
	}
	d.Posted = r.post(channelID, m.Entry, postKind)
	return d
}

// post sends entry in the background and records the post for feedback once
// the transport returns its ID.
func (r *Reactor) post(channelID string, entry *models.Entry, kind models.PostKind) bool {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
		defer cancel()

		postID, err := r.poster.Post(ctx, channelID, entry)
		if err != nil {
			metrics.PostFailures.Inc()
			r.logger.Warn("posting meme failed", "entry", entry.ID, "channel", channelID, "error", err)
			return
		}
		r.tr.RecordPost(postID, entry)
		metrics.PostsTotal.WithLabelValues(string(kind)).Inc()
		r.logger.Info("meme posted", "entry", entry.ID, "post_id", postID, "kind", kind)
	}()
	return true
}

// HandleReaction credits a reaction to the meme its post showed.
func (r *Reactor) HandleReaction(ev models.ReactionEvent) (tracker.Feedback, bool) {
	fb, ok := r.tr.Apply(ev)
	if ok {
		r.logger.Debug("reaction applied", "entry", fb.EntryID, "emote", ev.Emote, "delta", fb.Delta, "weight", fb.Weight)
	}
	return fb, ok
}

// Memeify appends aliases for file to the author's alias file and swaps in a
// rebuilt catalog. It returns the alias line that was written.
func (r *Reactor) Memeify(authorID, file, aliases string) (string, error) {
	folder, ok := r.memeifiers[authorID]
	if !ok {
		return "", ErrNotMemeifier
	}
	list, err := catalog.NormalizeAliases(aliases)
	if err != nil {
		return "", fmt.Errorf("memeify: %w", err)
	}

	r.memeifyMu.Lock()
	defer r.memeifyMu.Unlock()

	cat := r.sel.Catalog()
	line, err := catalog.AppendAlias(cat.Root(), cat.AliasFile(), folder, file, list)
	if err != nil {
		return "", fmt.Errorf("memeify: %w", err)
	}
	rebuilt, err := catalog.Build(cat.Root(), r.catOpts)
	if err != nil {
		return line, fmt.Errorf("memeify: rebuilding catalog: %w", err)
	}
	r.SwapCatalog(rebuilt)
	r.logger.Info("aliases added", "author_id", authorID, "line", line)
	return line, nil
}

// SwapCatalog puts cat into service.
func (r *Reactor) SwapCatalog(cat *catalog.Catalog) {
	r.sel.Swap(cat)
	metrics.CatalogEntries.Set(float64(cat.Len()))
	metrics.CatalogReloads.Inc()
}

// Catalog returns the catalog in service.
func (r *Reactor) Catalog() *catalog.Catalog { return r.sel.Catalog() }

// Policy returns the posting policy.
func (r *Reactor) Policy() *policy.Policy { return r.pol }

// Tracker returns the feedback tracker.
func (r *Reactor) Tracker() *tracker.Tracker { return r.tr }

// Close stops accepting posts and waits for posts in flight. When ctx expires
// first, in-flight posts are cancelled.
func (r *Reactor) Close(ctx context.Context) error {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("reactor: waiting for posts: %w", ctx.Err())
	}
}
