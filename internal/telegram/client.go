// Package telegram connects the bot to Telegram: it posts memes as photos,
// sends replies, and long-polls for messages, edits and reactions.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ajitpratap0/memereact/internal/models"
)

// Client sends photos and messages through the Bot API.
type Client struct {
	api      *tgbotapi.BotAPI
	http     *http.Client
	endpoint string
	logger   *slog.Logger
}

// NewClient connects to the Bot API. endpoint is a format string taking the
// token and method name; empty means tgbotapi.APIEndpoint.
func NewClient(token, endpoint string, pollTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: token required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	hc := &http.Client{Timeout: pollTimeout + 30*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram: connecting: %w", err)
	}
	logger.Info("telegram connected", "bot", api.Self.UserName)
	return &Client{api: api, http: hc, endpoint: endpoint, logger: logger}, nil
}

// Username returns the bot's user name.
func (c *Client) Username() string { return c.api.Self.UserName }

// Post uploads the entry's image to the chat and returns the post ID.
func (c *Client) Post(_ context.Context, channelID string, entry *models.Entry) (string, error) {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return "", err
	}
	sent, err := c.api.Send(tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(entry.Path)))
	if err != nil {
		return "", fmt.Errorf("telegram: sending photo %s: %w", entry.ID, err)
	}
	return PostID(chatID, sent.MessageID), nil
}

// Reply sends a text message to the chat.
func (c *Client) Reply(_ context.Context, channelID, text string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: sending message: %w", err)
	}
	return nil
}

// PostID identifies a message. Telegram message IDs are only unique per chat.
func PostID(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func parseChatID(channelID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(channelID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q", channelID)
	}
	return id, nil
}

func methodURL(endpoint, token, method string) string {
	return fmt.Sprintf(endpoint, token, method)
}
