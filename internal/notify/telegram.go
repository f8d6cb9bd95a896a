package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/matchpulse/odds-engine/internal/pkg/config"
)

// Notifier pushes operational alerts to a Telegram chat. A nil Notifier is
// valid and silently drops everything, so callers never need to branch on
// whether alerting is configured.
type Notifier struct {
	chatID   int64
	cooldown time.Duration
	log      *slog.Logger

	send func(text string) error
	now  func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New builds a Notifier, or returns (nil, nil) when no bot token is
// configured.
func New(cfg *config.AlertsConfig, log *slog.Logger) (*Notifier, error) {
	if cfg.TelegramBotToken == "" {
		log.Info("telegram alerts disabled, no bot token configured")
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	n := &Notifier{
		chatID:   cfg.TelegramChatID,
		cooldown: cfg.Cooldown,
		log:      log,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
	n.send = func(text string) error {
		_, err := bot.Send(tgbotapi.NewMessage(n.chatID, text))
		return err
	}
	log.Info("telegram alerts enabled", "chatId", cfg.TelegramChatID)
	return n, nil
}

// Alert sends a message unless the same key fired within the cooldown window.
// Delivery is fire-and-forget; a telegram outage never blocks the pipeline.
func (n *Notifier) Alert(key, text string) {
	if n == nil {
		return
	}

	n.mu.Lock()
	last, seen := n.lastSent[key]
	now := n.now()
	if seen && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent[key] = now
	n.mu.Unlock()

	go func() {
		if err := n.send(text); err != nil {
			n.log.Error("failed to send telegram alert", "key", key, "error", err)
		}
	}()
}
