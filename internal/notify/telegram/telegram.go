// Package telegram delivers job cards and plain messages to Telegram chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	"github.com/tejaschuahan/job-scraper-bot/internal/notify"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

const (
	defaultMessagesPerSecond = 1.0
	descriptionPreview       = 200
	maxMessageRunes          = 4096
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config controls formatting and pacing.
type Config struct {
	MessagesPerSecond float64
	DisablePreview    bool
	ShowJobType       bool
	ShowDescription   bool
}

// Notifier implements scraper.Notifier over the Telegram Bot API.
type Notifier struct {
	bot     Sender
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
}

// NewBot connects to the Bot API with token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return bot, nil
}

// New returns a Notifier sending through bot.
func New(bot Sender, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if bot == nil {
		return nil, errors.New("telegram sender is required")
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = defaultMessagesPerSecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), 1),
		cfg:     cfg,
		logger:  logger.Named("telegram"),
	}, nil
}

// Deliver sends the job card for record.
func (n *Notifier) Deliver(ctx context.Context, userID string, record scraper.JobRecord) error {
	return n.DeliverEnriched(ctx, userID, record, "")
}

// DeliverEnriched sends the job card with summary in place of the
// description preview.
func (n *Notifier) DeliverEnriched(ctx context.Context, userID string, record scraper.JobRecord, summary string) error {
	chatID, err := ParseChatID(userID)
	if err != nil {
		metrics.ObserveDelivery("error")
		return &scraper.DeliveryError{UserID: userID, URL: record.URL, Err: err}
	}
	msg := tgbotapi.NewMessage(chatID, FormatJob(record, summary, n.cfg))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = n.cfg.DisablePreview
	if err := n.send(ctx, msg); err != nil {
		metrics.ObserveDelivery("error")
		return &scraper.DeliveryError{UserID: userID, URL: record.URL, Err: err}
	}
	metrics.ObserveDelivery("ok")
	return nil
}

// SendText sends text without markup.
func (n *Notifier) SendText(ctx context.Context, userID, text string) error {
	chatID, err := ParseChatID(userID)
	if err != nil {
		return err
	}
	return n.send(ctx, tgbotapi.NewMessage(chatID, truncate(text, maxMessageRunes)))
}

func (n *Notifier) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn("send failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// ParseChatID converts a user id to a Telegram chat id.
func ParseChatID(userID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", userID, err)
	}
	return id, nil
}

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
	")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
	"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
	"}", "\\}", ".", "\\.", "!", "\\!",
)

var linkEscaper = strings.NewReplacer("\\", "\\\\", ")", "\\)")

// EscapeMarkdown escapes text for MarkdownV2.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// FormatJob renders the MarkdownV2 job card.
func FormatJob(r scraper.JobRecord, summary string, cfg Config) string {
	var b strings.Builder
	b.WriteString("🔔 *New Job Alert\\!*\n\n")
	fmt.Fprintf(&b, "*Title:* %s\n", EscapeMarkdown(r.Title))
	fmt.Fprintf(&b, "*Company:* %s\n", EscapeMarkdown(r.Company))
	if r.Location != "" {
		fmt.Fprintf(&b, "📍 *Location:* %s\n", EscapeMarkdown(r.Location))
	}
	if s := notify.FormatSalary(r.Salary); s != "" {
		fmt.Fprintf(&b, "💰 *Salary:* %s\n", EscapeMarkdown(s))
	}
	if cfg.ShowJobType && r.JobType != "" {
		fmt.Fprintf(&b, "📋 *Type:* %s\n", EscapeMarkdown(r.JobType))
	}
	fmt.Fprintf(&b, "*Site:* %s\n", EscapeMarkdown(string(r.Source)))
	switch {
	case summary != "":
		b.WriteString("\n✨ *Summary:*\n")
		for _, line := range strings.Split(summary, "\n") {
			if strings.TrimSpace(line) != "" {
				b.WriteString(EscapeMarkdown(line))
				b.WriteByte('\n')
			}
		}
	case cfg.ShowDescription && r.Description != "":
		desc := r.Description
		if utf8.RuneCountInString(desc) > descriptionPreview {
			desc = truncate(desc, descriptionPreview) + "..."
		}
		fmt.Fprintf(&b, "\n%s\n", EscapeMarkdown(desc))
	}
	fmt.Fprintf(&b, "\n🔗 [Apply Here](%s)", linkEscaper.Replace(r.URL))
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
