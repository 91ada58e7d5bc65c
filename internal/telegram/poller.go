package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/internal/reactor"
	"github.com/ajitpratap0/memereact/internal/tracker"
)

// Handler receives decoded chat traffic. reactor.Bot implements it.
type Handler interface {
	HandleMessage(ctx context.Context, msg models.Message) reactor.Inbound
	HandleReaction(ev models.ReactionEvent) (tracker.Feedback, bool)
}

// update is a getUpdates element. tgbotapi.Update predates reaction updates,
// so the reaction payload is decoded here.
type update struct {
	UpdateID        int                    `json:"update_id"`
	Message         *tgbotapi.Message      `json:"message,omitempty"`
	EditedMessage   *tgbotapi.Message      `json:"edited_message,omitempty"`
	MessageReaction *messageReactionUpdate `json:"message_reaction,omitempty"`
}

type messageReactionUpdate struct {
	Chat        tgbotapi.Chat  `json:"chat"`
	MessageID   int            `json:"message_id"`
	User        *tgbotapi.User `json:"user,omitempty"`
	OldReaction []reactionType `json:"old_reaction"`
	NewReaction []reactionType `json:"new_reaction"`
}

type reactionType struct {
	Type          string `json:"type"`
	Emoji         string `json:"emoji,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

func (r reactionType) name() string {
	if r.Type == "custom_emoji" {
		return r.CustomEmojiID
	}
	return r.Emoji
}

// Poller long-polls getUpdates. Messages are handled in order on the polling
// goroutine; each reaction is handled on its own goroutine.
type Poller struct {
	client  *Client
	handler Handler
	timeout int
	retry   time.Duration
	offset  int
	wg      sync.WaitGroup
}

// NewPoller creates a poller. pollTimeout is the long-poll timeout in seconds.
func NewPoller(client *Client, handler Handler, pollTimeout int) *Poller {
	return &Poller{client: client, handler: handler, timeout: pollTimeout, retry: 2 * time.Second}
}

// Run polls until ctx is cancelled, then waits for reactions in flight.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()
	logger := p.client.logger
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("telegram poll failed", "error", err)
			select {
			case <-time.After(p.retry):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, u update) {
	switch {
	case u.Message != nil:
		p.handleMessage(ctx, u.Message)
	case u.EditedMessage != nil:
		p.handleMessage(ctx, u.EditedMessage)
	case u.MessageReaction != nil:
		events := reactionEvents(u.MessageReaction)
		for _, ev := range events {
			p.wg.Add(1)
			go func(ev models.ReactionEvent) {
				defer p.wg.Done()
				p.handler.HandleReaction(ev)
			}(ev)
		}
	}
}

func (p *Poller) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil || m.From == nil || m.From.IsBot {
		return
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return
	}
	name := m.From.UserName
	if name == "" {
		name = m.From.FirstName
	}
	p.handler.HandleMessage(ctx, models.Message{
		ChannelID:  strconv.FormatInt(m.Chat.ID, 10),
		AuthorID:   strconv.FormatInt(m.From.ID, 10),
		AuthorName: name,
		Text:       text,
	})
}

// reactionEvents turns a reaction change into one event per emote added (+1)
// or removed (-1).
func reactionEvents(r *messageReactionUpdate) []models.ReactionEvent {
	postID := PostID(r.Chat.ID, r.MessageID)
	userID := ""
	if r.User != nil {
		userID = strconv.FormatInt(r.User.ID, 10)
	}
	old := make(map[string]bool, len(r.OldReaction))
	for _, rt := range r.OldReaction {
		old[rt.name()] = true
	}
	now := make(map[string]bool, len(r.NewReaction))
	for _, rt := range r.NewReaction {
		now[rt.name()] = true
	}

	var events []models.ReactionEvent
	for _, rt := range r.OldReaction {
		if n := rt.name(); n != "" && !now[n] {
			events = append(events, models.ReactionEvent{PostID: postID, Emote: n, Factor: models.ReactionRemoved, UserID: userID})
		}
	}
	for _, rt := range r.NewReaction {
		if n := rt.name(); n != "" && !old[n] {
			events = append(events, models.ReactionEvent{PostID: postID, Emote: n, Factor: models.ReactionAdded, UserID: userID})
		}
	}
	return events
}

func (p *Poller) getUpdates(ctx context.Context) ([]update, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(p.offset))
	q.Set("timeout", strconv.Itoa(p.timeout))
	q.Set("allowed_updates", `["message","edited_message","message_reaction"]`)
	u := methodURL(p.client.endpoint, p.client.api.Token, "getUpdates") + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building getUpdates request: %w", err)
	}
	resp, err := p.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var apiResp tgbotapi.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding getUpdates: %w", err)
	}
	if !apiResp.Ok {
		return nil, fmt.Errorf("getUpdates: %s", apiResp.Description)
	}
	var updates []update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	return updates, nil
}
