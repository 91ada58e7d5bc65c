// Package tracker remembers which meme each recent post showed so that later
// reactions on the post can be credited to the right entry.
package tracker

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ajitpratap0/memereact/internal/metrics"
	"github.com/ajitpratap0/memereact/internal/models"
)

// DefaultCapacity is the number of posts kept for attribution.
const DefaultCapacity = 100

// Adder is the part of the weight store the tracker updates.
type Adder interface {
	GetAndAdd(id string, delta int64) int64
}

// ScoreTable maps an emote name to its score. Names are case sensitive and
// absent emotes score 0.
type ScoreTable map[string]int64

// Score returns the score for emote.
func (s ScoreTable) Score(emote string) int64 { return s[emote] }

// Outcome describes what Apply did with a reaction.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeUnscored   Outcome = "unscored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeInvalid    Outcome = "invalid"
)

// Feedback is the result of applying one reaction.
type Feedback struct {
	Outcome Outcome       `json:"outcome"`
	Entry   *models.Entry `json:"-"`
	EntryID string        `json:"entry_id,omitempty"`
	Delta   int64         `json:"delta"`
	// Weight is the entry's counter after the update.
	Weight int64 `json:"weight"`
}

// Tracker is a bounded post ID → entry map with insertion order eviction.
// Lookups never refresh an entry, so the oldest recorded post always goes
// first once capacity is reached.
type Tracker struct {
	posts   *lru.Cache[string, *models.Entry]
	weights Adder
	scores  ScoreTable
}

// New creates a tracker holding up to capacity posts.
func New(capacity int, weights Adder, scores ScoreTable) (*Tracker, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, *models.Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("tracker: creating cache: %w", err)
	}
	if scores == nil {
		scores = ScoreTable{}
	}
	return &Tracker{posts: cache, weights: weights, scores: scores}, nil
}

// RecordPost remembers that postID showed entry and reports whether it was
// recorded. An ID already held keeps its first attribution and position.
func (t *Tracker) RecordPost(postID string, entry *models.Entry) bool {
	if postID == "" || entry == nil {
		return false
	}
	if found, _ := t.posts.ContainsOrAdd(postID, entry); found {
		return false
	}
	metrics.TrackerSize.Set(float64(t.posts.Len()))
	return true
}

// Resolve returns the entry shown by postID without changing eviction order.
func (t *Tracker) Resolve(postID string) (*models.Entry, bool) {
	return t.posts.Peek(postID)
}

// Len returns the number of posts held.
func (t *Tracker) Len() int { return t.posts.Len() }

// Apply credits a reaction to the entry its post showed. Reactions on unknown
// posts and emotes without a score are ignored.
func (t *Tracker) Apply(ev models.ReactionEvent) (Feedback, bool) {
	if !ev.Factor.IsValid() {
		metrics.ReactionsTotal.WithLabelValues(string(OutcomeInvalid)).Inc()
		return Feedback{Outcome: OutcomeInvalid}, false
	}
	entry, ok := t.Resolve(ev.PostID)
	if !ok {
		metrics.ReactionsTotal.WithLabelValues(string(OutcomeUnresolved)).Inc()
		return Feedback{Outcome: OutcomeUnresolved}, false
	}
	delta := t.scores.Score(ev.Emote) * int64(ev.Factor)
	if delta == 0 {
		metrics.ReactionsTotal.WithLabelValues(string(OutcomeUnscored)).Inc()
		return Feedback{Outcome: OutcomeUnscored, Entry: entry, EntryID: entry.ID}, false
	}
	weight := t.weights.GetAndAdd(entry.ID, delta)
	metrics.ReactionsTotal.WithLabelValues(string(OutcomeApplied)).Inc()
	return Feedback{
		Outcome: OutcomeApplied,
		Entry:   entry,
		EntryID: entry.ID,
		Delta:   delta,
		Weight:  weight,
	}, true
}
