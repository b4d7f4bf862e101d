package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chgk-poll-bot/internal/config"
	"chgk-poll-bot/internal/metrics"
)

type fakeBot struct {
	mu       sync.Mutex
	updates  []string
	sweeps   int
	webhooks int

	SweepErr   error
	WebhookErr error
}

func (f *fakeBot) HandleUpdate(_ context.Context, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, string(body))
}

func (f *fakeBot) Sweep(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return f.SweepErr
}

func (f *fakeBot) EnsureWebhook(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks++
	return f.WebhookErr
}

func newRouter(bot Bot) http.Handler {
	logger, _ := test.NewNullLogger()
	cfg := config.Config{ObfuscationToken: "s3cret", Mode: config.ModeWebhook}
	return Router(cfg, bot, metrics.New(), logger)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestCommand_RequiresToken(t *testing.T) {
	bot := &fakeBot{}
	h := newRouter(bot)

	rec := do(h, http.MethodPost, "/commands3cret", `{"update_id": 1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(h, http.MethodPost, "/commandwrong", `{"update_id": 2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/commands3cret", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	require.Len(t, bot.updates, 1)
	assert.Equal(t, `{"update_id": 1}`, bot.updates[0])
}

func TestSystemTic_AlwaysOK(t *testing.T) {
	bot := &fakeBot{SweepErr: errors.New("store down")}
	h := newRouter(bot)

	rec := do(h, http.MethodGet, "/systemtic", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 1, bot.sweeps)
}

func TestSetWebhook(t *testing.T) {
	bot := &fakeBot{}
	h := newRouter(bot)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/setwebhook", "").Code)

	bot.WebhookErr = errors.New("telegram down")
	assert.Equal(t, http.StatusBadGateway, do(h, http.MethodGet, "/setwebhook", "").Code)
	assert.Equal(t, 2, bot.webhooks)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newRouter(&fakeBot{})

	rec := do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
