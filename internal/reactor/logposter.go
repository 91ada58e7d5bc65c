package reactor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ajitpratap0/memereact/internal/models"
)

// LogPoster is a dry run transport: it logs posts and replies instead of
// sending them and hands out random post IDs.
type LogPoster struct {
	logger *slog.Logger
}

// NewLogPoster creates a LogPoster.
func NewLogPoster(logger *slog.Logger) *LogPoster {
	return &LogPoster{logger: logger}
}

// Post logs the post and returns a fresh UUID as its ID.
func (p *LogPoster) Post(_ context.Context, channelID string, entry *models.Entry) (string, error) {
	id := uuid.New().String()
	p.logger.Info("dry run post", "channel", channelID, "entry", entry.ID, "post_id", id)
	return id, nil
}

// Reply logs the reply.
func (p *LogPoster) Reply(_ context.Context, channelID, text string) error {
	p.logger.Info("dry run reply", "channel", channelID, "text", text)
	return nil
}
