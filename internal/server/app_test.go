package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tejaschuahan/job-scraper-bot/internal/config"
	"github.com/tejaschuahan/job-scraper-bot/internal/storage/local"
)

type fakeBot struct {
	updates chan tgbotapi.Update
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 4)}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), b.sent...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Enabled = false
	cfg.Progress.Prometheus = false
	cfg.Dedup.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "jobs.db")
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.BaseDir = t.TempDir()
	return &cfg
}

func TestBuildWiresDefaults(t *testing.T) {
	cfg := testConfig(t)
	app, err := build(context.Background(), cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })

	assert.Nil(t, app.poller, "no poller without telegram")
	assert.NotNil(t, app.sqlite)
	assert.Contains(t, app.readyChecks, "sqlite")

	srv := httptest.NewServer(app.apiServer.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/sessions")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildRejectsUnknownSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Enabled = []string{"monster"}

	_, err := build(context.Background(), cfg, zaptest.NewLogger(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.enabled")
}

func TestBuildRejectsUnwritableStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.BaseDir = ""

	_, err := build(context.Background(), cfg, zaptest.NewLogger(t), nil)
	require.Error(t, err)
	_, localErr := local.New(local.Config{})
	assert.Contains(t, err.Error(), localErr.Error())
}

func TestRunRoutesTelegramCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = "123:test"
	cfg.Telegram.MessagesPerSecond = 1000
	bot := newFakeBot()

	app, err := build(context.Background(), cfg, zaptest.NewLogger(t), bot)
	require.NoError(t, err)
	require.NotNil(t, app.poller)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "/search data analyst",
		Chat: &tgbotapi.Chat{ID: 42},
		From: &tgbotapi.User{ID: 42, FirstName: "Ana"},
	}}

	require.Eventually(t, func() bool {
		return len(bot.messages()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	msg := bot.messages()[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "Data Analyst")

	snap, err := app.sessions.Status("42")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_confirmation", snap.State.String())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, func() bool { bot.mu.Lock(); defer bot.mu.Unlock(); return bot.stopped }())
	assert.Equal(t, 0, app.sessions.Active())
}

func TestNewAppRequiresConfig(t *testing.T) {
	t.Parallel()
	_, err := NewApp(nil, nil)
	require.Error(t, err)
}
