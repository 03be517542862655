package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/chat"
)

type fakeUpdater struct {
	ch      chan tgbotapi.Update
	mu      sync.Mutex
	cfg     tgbotapi.UpdateConfig
	stopped bool
}

func (f *fakeUpdater) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	return f.ch
}

func (f *fakeUpdater) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type collector struct {
	mu   sync.Mutex
	msgs []chat.Message
	err  error
}

func (c *collector) Handle(_ context.Context, msg chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestPollerDispatchesTextMessages(t *testing.T) {
	t.Parallel()

	up := &fakeUpdater{ch: make(chan tgbotapi.Update, 4)}
	h := &collector{err: errors.New("reply failed")}
	p := NewPoller(up, h, 0, nil)

	up.ch <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "/search data analyst",
		Chat: &tgbotapi.Chat{ID: 12345},
		From: &tgbotapi.User{FirstName: "Asha"},
	}}
	up.ch <- tgbotapi.Update{}
	up.ch <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}}
	up.ch <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "yes", Chat: &tgbotapi.Chat{ID: 12345}}}
	close(up.ch)

	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, 2, h.count())
	assert.Equal(t, chat.Message{UserID: "12345", Name: "Asha", Text: "/search data analyst"}, h.msgs[0])
	assert.Equal(t, "yes", h.msgs[1].Text)
	assert.Equal(t, 60, up.cfg.Timeout)
	assert.Equal(t, []string{"message"}, up.cfg.AllowedUpdates)
}

func TestPollerStopsOnContext(t *testing.T) {
	t.Parallel()

	up := &fakeUpdater{ch: make(chan tgbotapi.Update)}
	p := NewPoller(up, &collector{}, 5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	assert.True(t, up.stopped)
	assert.Equal(t, 5, up.cfg.Timeout)
}
