package reactor

import (
	"context"
	"errors"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/commands"
	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/tracker"
)

// Transport is a chat backend that can post memes and send text.
type Transport interface {
	Poster
	commands.Replier
}

// Inbound is the outcome of handling one chat message.
type Inbound struct {
	Command  commands.Result `json:"command"`
	Decision Decision        `json:"decision"`
}

// Bot routes inbound chat traffic: commands first, then the reactor.
type Bot struct {
	reactor  *Reactor
	registry *commands.Registry
	replier  commands.Replier
}

// NewBot registers the meme commands on registry and returns a bot answering
// through replier.
func NewBot(r *Reactor, registry *commands.Registry, replier commands.Replier) *Bot {
	b := &Bot{reactor: r, registry: registry, replier: replier}
	registry.MustRegister(commands.Command{
		Name:        "meme",
		Description: "posts a requested meme",
		Params:      []commands.Param{{Name: "text", Kind: commands.ParamRest}},
		Handler:     b.memeCommand,
	})
	registry.MustRegister(commands.Command{
		Name:        "memeify",
		Description: "adds aliases to one of your memes, e.g. memeify cat.jpg: kitty, feline",
		Params: []commands.Param{
			{Name: "file", Kind: commands.ParamString},
			{Name: "aliases", Kind: commands.ParamRest},
		},
		Handler: b.memeifyCommand,
	})
	return b
}

// Reactor returns the underlying reactor.
func (b *Bot) Reactor() *Reactor { return b.reactor }

// HandleMessage processes a new or edited message. Messages are expected to
// arrive one at a time from the transport loop.
func (b *Bot) HandleMessage(ctx context.Context, msg models.Message) Inbound {
	if res := b.registry.Dispatch(ctx, msg, b.replier); res.Handled {
		return Inbound{Command: res}
	}
	return Inbound{Decision: b.reactor.HandleMessage(msg)}
}

// HandleReaction processes a reaction event. Safe for concurrent use.
func (b *Bot) HandleReaction(ev models.ReactionEvent) (tracker.Feedback, bool) {
	return b.reactor.HandleReaction(ev)
}

func (b *Bot) memeCommand(ctx context.Context, inv *commands.Invocation) error {
	d := b.reactor.PostMeme(inv.Message.ChannelID, inv.Args.String(0))
	if !d.Matched {
		return inv.Reply(ctx, "No meme matches %q", inv.Args.String(0))
	}
	return nil
}

func (b *Bot) memeifyCommand(ctx context.Context, inv *commands.Invocation) error {
	line, err := b.reactor.Memeify(inv.Message.AuthorID, inv.Args.String(0), inv.Args.String(1))
	switch {
	case errors.Is(err, ErrNotMemeifier):
		_ = inv.Reply(ctx, "you are not a meme master!")
		return err
	case errors.Is(err, catalog.ErrNotInContributor), errors.Is(err, catalog.ErrMalformedAlias):
		_ = inv.Reply(ctx, "your memeify request is malformed")
		return err
	case err != nil:
		_ = inv.Reply(ctx, "memeify failed")
		return err
	}
	return inv.Reply(ctx, "Added %s", line)
}
