package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braydio/Rufus/internal/ai"
	"github.com/braydio/Rufus/internal/config"
	"github.com/braydio/Rufus/internal/lifecycle"
	"github.com/braydio/Rufus/internal/mcserver"
	"github.com/braydio/Rufus/internal/models"
	"github.com/braydio/Rufus/internal/relay"
	"github.com/braydio/Rufus/internal/session"
	"github.com/braydio/Rufus/internal/watchlist"
)

type replies struct {
	sent   []string
	images int
}

func (r *replies) text(s string)  { r.sent = append(r.sent, s) }
func (r *replies) image(_ []byte) { r.images++ }
func (r *replies) joined() string { return strings.Join(r.sent, "\n") }

func newTestDispatcher(t *testing.T, apiURL string) (*Dispatcher, *watchlist.Manager, *session.Tracker) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		WatchlistPath: filepath.Join(dir, "watchlist.json"),
		AuditLogPath:  filepath.Join(dir, "audit.json"),
		SessionPath:   filepath.Join(dir, "sessions.json"),
	}
	watch := watchlist.NewManager(cfg.WatchlistPath, cfg.AuditLogPath)
	sessions := session.NewTracker(cfg.SessionPath)
	chat := ai.New(apiURL, "gpt-4")
	engine := lifecycle.NewEngine(watch, sessions, chat, 0)
	chatRelay := relay.New(chat, "sys", "re", "sum")
	mc := mcserver.NewController("/opt/mc/start.sh", "/opt/mc/start-alt.sh", 25565, "", "")
	return NewDispatcher(cfg, watch, sessions, engine, chatRelay, chat, mc), watch, sessions
}

func TestRouteSplitDateAddsTicker(t *testing.T) {
	d, watch, _ := newTestDispatcher(t, "http://127.0.0.1:1")
	var out replies

	d.route(context.Background(), "u1", "Bray",
		"Added to watchlist: **| FRGT** split date 2025-09-15", out.text, out.image, nil)

	assert.Contains(t, watch.Tickers(), "FRGT")
	require.Len(t, out.sent, 1)
	assert.Contains(t, out.sent[0], "Tracking `FRGT`")
}

func TestRouteSessionFlow(t *testing.T) {
	d, _, sessions := newTestDispatcher(t, "http://127.0.0.1:1")
	var out replies
	ctx := context.Background()

	d.route(ctx, "u1", "Bray", "!rsa", out.text, out.image, nil)
	assert.True(t, sessions.Active("u1"))
	assert.Contains(t, out.joined(), "Tracking this RSA session")

	d.route(ctx, "u1", "Bray", "all schwab transactions complete", out.text, out.image, nil)
	assert.Contains(t, sessions.Status("u1"), "schwab")
}

func TestRoutePlainChatterFeedsActiveSession(t *testing.T) {
	d, _, sessions := newTestDispatcher(t, "http://127.0.0.1:1")
	var out replies
	ctx := context.Background()

	d.route(ctx, "u1", "Bray", "!rsa", out.text, out.image, nil)
	d.route(ctx, "u1", "Bray", "just placed the orders manually", out.text, out.image, nil)

	dump, ok := sessions.Dump("u1")
	require.True(t, ok)
	require.Len(t, dump.Messages, 1)
	assert.Equal(t, "just placed the orders manually", dump.Messages[0].Content)
}

func TestRouteLifecycleCommand(t *testing.T) {
	d, watch, _ := newTestDispatcher(t, "http://127.0.0.1:1")
	var out replies
	ctx := context.Background()

	d.route(ctx, "u1", "Bray", "..lifecycle", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "Usage")

	d.route(ctx, "u1", "Bray", "..lifecycle FRGT", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "not on the watchlist")

	watch.Add("FRGT", "2025-09-15")
	watch.UpdateLifecycle("FRGT", "bbae", "1", models.StatusHolding, "bbae:1")
	out = replies{}
	d.route(ctx, "u1", "Bray", "..lifecycle frgt", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "Lifecycle state for **FRGT**")
	assert.Contains(t, out.joined(), "holding")
}

func TestRouteStatusCommand(t *testing.T) {
	d, watch, _ := newTestDispatcher(t, "http://127.0.0.1:1")
	watch.Add("FRGT", "2025-09-15")
	var out replies
	ctx := context.Background()

	d.route(ctx, "u1", "Bray", "..status", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "Usage")

	out = replies{}
	d.route(ctx, "u1", "Bray", "..status frgt", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "**FRGT** split date: 2025-09-15")

	out = replies{}
	d.route(ctx, "u1", "Bray", "..status ZZZZ", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "No tracking info")
}

func TestRouteSessionDump(t *testing.T) {
	d, _, sessions := newTestDispatcher(t, "http://127.0.0.1:1")
	var out replies
	ctx := context.Background()

	d.route(ctx, "u1", "Bray", "..sessiondump", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "No session found")

	sessions.StartSession("u1", lifecycle.DefaultBrokers)
	for i := 0; i < 12; i++ {
		sessions.AppendMessage("u1", "msg")
	}
	out = replies{}
	d.route(ctx, "u1", "Bray", "..sessiondump", out.text, out.image, nil)
	assert.Contains(t, out.joined(), "Last 10 messages")
	assert.Equal(t, 10, strings.Count(out.joined(), "- msg"))
}

func TestRouteWatchlistSummary(t *testing.T) {
	d, watch, _ := newTestDispatcher(t, "http://127.0.0.1:1")
	watch.Add("FRGT", "2025-09-15")
	var out replies

	d.route(context.Background(), "u1", "Bray", "..watchlist", out.text, out.image, nil)
	require.Len(t, out.sent, 1)
	assert.Contains(t, out.sent[0], "📊")
	assert.Contains(t, out.sent[0], "FRGT")
}

func TestRouteWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"found it"}}]}`))
	}))
	defer srv.Close()

	d, _, _ := newTestDispatcher(t, srv.URL)
	var out replies
	d.route(context.Background(), "u1", "Bray", "!web surf report", out.text, out.image, nil)
	require.Len(t, out.sent, 1)
	assert.Equal(t, "found it", out.sent[0])
}

func TestRouteAIQueryRepliesAndRemembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"gnarly"}}]}`))
	}))
	defer srv.Close()

	d, _, _ := newTestDispatcher(t, srv.URL)
	var out replies
	d.route(context.Background(), "u1", "Bray", "..ai how's the surf?", out.text, out.image, nil)
	require.NotEmpty(t, out.sent)
	assert.Equal(t, "gnarly", out.sent[len(out.sent)-1])

	var empty replies
	d.route(context.Background(), "u1", "Bray", "..ai", empty.text, empty.image, nil)
	assert.Contains(t, empty.joined(), "Ask me something")
}

func TestRouteAIFailureApologizes(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "http://127.0.0.1:1")
	var out replies
	d.route(context.Background(), "u1", "Bray", "..ai hello?", out.text, out.image, nil)
	require.NotEmpty(t, out.sent)
	assert.Equal(t, ai.FallbackReply, out.sent[len(out.sent)-1])
}
