// Package policy decides whether a selected meme is posted, based on the
// feedback weight the audience has given it.
package policy

import (
	"fmt"
	"math"

	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/pkg/randsrc"
)

const (
	// DefaultChance is the post chance of a meme with weight 0.
	DefaultChance = 0.9

	// MinChance is the smallest chance a meme can have to be posted.
	MinChance = 0.01

	// DefaultGrowth is the exponent applied per unit of weight.
	DefaultGrowth = 0.1
)

// WeightReader reads learned weights.
type WeightReader interface {
	Get(entryID string) int64
}

// Params tunes the weight function.
type Params struct {
	DefaultChance float64 `json:"default_chance" mapstructure:"default_chance"`
	MinChance     float64 `json:"min_chance" mapstructure:"min_chance"`
	Growth        float64 `json:"growth" mapstructure:"growth"`
}

// DefaultParams returns the standard weight function parameters.
func DefaultParams() Params {
	return Params{
		DefaultChance: DefaultChance,
		MinChance:     MinChance,
		Growth:        DefaultGrowth,
	}
}

// Validate checks that the parameters describe a usable chance function.
func (p Params) Validate() error {
	if p.DefaultChance <= 0 || p.DefaultChance > 1 {
		return fmt.Errorf("default_chance must be in (0, 1]")
	}
	if p.MinChance <= 0 || p.MinChance > p.DefaultChance {
		return fmt.Errorf("min_chance must be in (0, default_chance]")
	}
	if p.Growth < 0 {
		return fmt.Errorf("growth must be >= 0")
	}
	return nil
}

// Policy turns weights into posting decisions.
type Policy struct {
	params  Params
	weights WeightReader
	rng     randsrc.Source
}

// New creates a policy reading weights from w and drawing from rng.
func New(w WeightReader, rng randsrc.Source, params Params) *Policy {
	if rng == nil {
		rng = randsrc.Global()
	}
	return &Policy{params: params, weights: w, rng: rng}
}

// Chance returns max(MinChance, DefaultChance * exp(Growth * w)). The value
// is not capped at 1; once it reaches 1 every draw posts.
func (p *Policy) Chance(w int64) float64 {
	return math.Max(p.params.MinChance, p.params.DefaultChance*math.Exp(p.params.Growth*float64(w)))
}

// Probability returns the current chance for the entry.
func (p *Policy) Probability(entryID string) float64 {
	return p.Chance(p.weights.Get(entryID))
}

// EffectiveRate returns the chance clamped to 1, for display.
func (p *Policy) EffectiveRate(entryID string) float64 {
	return math.Min(1, p.Probability(entryID))
}

// Info reports the weight and effective post rate of an entry.
func (p *Policy) Info(entryID string) models.WeightInfo {
	w := p.weights.Get(entryID)
	return models.WeightInfo{
		EntryID:     entryID,
		Weight:      w,
		Probability: math.Min(1, p.Chance(w)),
	}
}

// ShouldPost reports whether the entry should be posted. Explicit requests
// (bypass) always post.
func (p *Policy) ShouldPost(entry *models.Entry, bypass bool) bool {
	if bypass {
		return true
	}
	return p.rng.Float64() <= p.Probability(entry.ID)
}
