// Package telegram feeds Telegram updates into the chat router.
package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/chat"
)

const defaultPollTimeout = 60

// Updater is the long-polling part of *tgbotapi.BotAPI.
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler consumes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg chat.Message) error
}

// Poller long-polls the Bot API and hands text messages to a Handler.
type Poller struct {
	bot         Updater
	handler     Handler
	pollTimeout int
	logger      *zap.Logger
}

// NewPoller returns a Poller. pollTimeout is in seconds; zero uses 60.
func NewPoller(bot Updater, handler Handler, pollTimeout int, logger *zap.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{bot: bot, handler: handler, pollTimeout: pollTimeout, logger: logger.Named("telegram_poller")}
}

// Run processes updates until ctx is done or the update channel closes.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.pollTimeout
	cfg.AllowedUpdates = []string{"message"}
	updates := p.bot.GetUpdatesChan(cfg)
	p.logger.Info("polling for updates")
	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := toMessage(upd)
			if !ok {
				continue
			}
			if err := p.handler.Handle(ctx, msg); err != nil {
				p.logger.Warn("handle message failed", zap.String("user_id", msg.UserID), zap.Error(err))
			}
		}
	}
}

func toMessage(upd tgbotapi.Update) (chat.Message, bool) {
	m := upd.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return chat.Message{}, false
	}
	out := chat.Message{UserID: strconv.FormatInt(m.Chat.ID, 10), Text: m.Text}
	if m.From != nil {
		out.Name = m.From.FirstName
	}
	return out, true
}
