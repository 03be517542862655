package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func sampleRecord() scraper.JobRecord {
	return scraper.JobRecord{
		Title:       "Sr. Data Analyst (Remote)",
		Company:     "Acme_Corp",
		Location:    "Remote - US",
		URL:         "https://jobs.example.com/view?id=1",
		Description: "Build dashboards.",
		Salary:      &scraper.SalaryRange{Min: 90000, Max: 120000},
		JobType:     "full-time",
		Source:      "remotive",
	}
}

func TestEscapeMarkdown(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `Sr\. Data\_Analyst \(US\)\!`, EscapeMarkdown("Sr. Data_Analyst (US)!"))
	assert.Equal(t, `a\\b`, EscapeMarkdown(`a\b`))
}

func TestFormatJob(t *testing.T) {
	t.Parallel()

	card := FormatJob(sampleRecord(), "", Config{ShowJobType: true, ShowDescription: true})
	assert.Contains(t, card, "*Title:* Sr\\. Data Analyst \\(Remote\\)")
	assert.Contains(t, card, "*Company:* Acme\\_Corp")
	assert.Contains(t, card, "💰 *Salary:* $90,000 \\- $120,000")
	assert.Contains(t, card, "📋 *Type:* full\\-time")
	assert.Contains(t, card, "Build dashboards\\.")
	assert.Contains(t, card, "[Apply Here](https://jobs.example.com/view?id=1)")

	enriched := FormatJob(sampleRecord(), "• SQL\n\n• Tableau", Config{ShowDescription: true})
	assert.Contains(t, enriched, "✨ *Summary:*\n• SQL\n• Tableau\n")
	assert.NotContains(t, enriched, "Build dashboards")
	assert.NotContains(t, enriched, "*Type:*")
}

func TestDeliver(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n, err := New(sender, Config{MessagesPerSecond: 1000, DisablePreview: true}, nil)
	require.NoError(t, err)

	require.NoError(t, n.Deliver(context.Background(), "12345", sampleRecord()))
	require.NoError(t, n.SendText(context.Background(), "12345", "status"))

	require.Len(t, sender.sent, 2)
	card := sender.sent[0]
	assert.Equal(t, int64(12345), card.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, card.ParseMode)
	assert.True(t, card.DisableWebPagePreview)
	assert.Equal(t, "status", sender.sent[1].Text)
	assert.Empty(t, sender.sent[1].ParseMode)
}

func TestDeliverFailures(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: errors.New("bad request")}
	n, err := New(sender, Config{MessagesPerSecond: 1000}, nil)
	require.NoError(t, err)

	err = n.Deliver(context.Background(), "12345", sampleRecord())
	var derr *scraper.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "12345", derr.UserID)
	assert.Equal(t, sampleRecord().URL, derr.URL)

	err = n.Deliver(context.Background(), "not-a-chat", sampleRecord())
	require.ErrorAs(t, err, &derr)

	_, err = New(nil, Config{}, nil)
	require.Error(t, err)
}

func TestDeliverHonoursContext(t *testing.T) {
	t.Parallel()

	n, err := New(&fakeSender{}, Config{MessagesPerSecond: 0.001}, nil)
	require.NoError(t, err)
	require.NoError(t, n.SendText(context.Background(), "1", "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, n.SendText(ctx, "1", "second"))
}
