package lifecycle

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braydio/Rufus/internal/models"
	"github.com/braydio/Rufus/internal/session"
	"github.com/braydio/Rufus/internal/watchlist"
)

type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
	prompts [][]models.ChatMessage
}

func (f *fakeCompleter) ChatCompletion(_ context.Context, messages []models.ChatMessage, _ float64, _ int) (string, error) {
	f.prompts = append(f.prompts, messages)
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	reply := ""
	if idx < len(f.replies) {
		reply = f.replies[idx]
	}
	return reply, err
}

type notifyLog struct {
	sent []string
}

func (n *notifyLog) notify(text string) {
	n.sent = append(n.sent, text)
}

func (n *notifyLog) containing(substr string) []string {
	var out []string
	for _, msg := range n.sent {
		if strings.Contains(msg, substr) {
			out = append(out, msg)
		}
	}
	return out
}

func newTestEngine(t *testing.T, completer Completer) (*Engine, *watchlist.Manager, *session.Tracker) {
	t.Helper()
	dir := t.TempDir()
	watch := watchlist.NewManager(filepath.Join(dir, "watchlist.json"), filepath.Join(dir, "audit.json"))
	tracker := session.NewTracker(filepath.Join(dir, "sessions.json"))
	return NewEngine(watch, tracker, completer, 0), watch, tracker
}

func TestApplySplitDateAdd(t *testing.T) {
	engine, watch, _ := newTestEngine(t, &fakeCompleter{})
	var log notifyLog

	ev, ok := Classify("Added to watchlist: **| FRGT** split date 2025-07-15")
	require.True(t, ok)
	engine.Apply(context.Background(), "u1", ev, log.notify)

	assert.Contains(t, watch.Tickers(), "FRGT")
	require.Len(t, log.sent, 1)
	assert.Equal(t, "👀 Tracking `FRGT` for 2025-07-15 split.", log.sent[0])
}

func TestApplyFillRequiresArmedTrade(t *testing.T) {
	engine, watch, _ := newTestEngine(t, &fakeCompleter{})
	var log notifyLog

	fill, _ := Classify("Schwab 2: buying 1 share of FRGT")
	engine.Apply(context.Background(), "u1", fill, log.notify)
	assert.Empty(t, watch.BrokerState("FRGT", "schwab", "2").Status, "unarmed fill must be ignored")

	arm, _ := Classify("!rsa buy 1 FRGT")
	engine.Apply(context.Background(), "u1", arm, log.notify)
	engine.Apply(context.Background(), "u1", fill, log.notify)

	state := watch.BrokerState("FRGT", "schwab", "2")
	assert.Equal(t, models.StatusHolding, state.Status)
	assert.Equal(t, "schwab:2", state.Account)
}

func TestApplyBrokerCompleteClosesArmedTrades(t *testing.T) {
	engine, watch, tracker := newTestEngine(t, &fakeCompleter{})
	var log notifyLog
	ctx := context.Background()

	engine.Apply(ctx, "u1", Event{Kind: KindStartSession}, log.notify)
	arm, _ := Classify("!rsa buy 1 FRGT")
	engine.Apply(ctx, "u1", arm, log.notify)

	done, _ := Classify("all schwab transactions complete")
	engine.Apply(ctx, "u1", done, log.notify)

	assert.Equal(t, models.StatusClosed, watch.BrokerState("FRGT", "schwab", "?").Status)
	assert.Empty(t, engine.ArmedTickers())
	assert.Contains(t, tracker.Status("u1"), "schwab")
	require.NotEmpty(t, log.containing("Closeout activity logged"))
}

func TestArmedTradeExpires(t *testing.T) {
	engine, _, _ := newTestEngine(t, &fakeCompleter{})
	var log notifyLog

	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return base })

	arm, _ := Classify("!rsa buy 1 FRGT")
	engine.Apply(context.Background(), "u1", arm, log.notify)
	require.Equal(t, []string{"FRGT"}, engine.ArmedTickers())

	engine.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	assert.Empty(t, engine.ArmedTickers())
}

func TestReconcileNotifiesOnlyOnTransition(t *testing.T) {
	reply := `{"FRGT": {"webull": {"1": {"status": "closed", "account": "webull:1"}}}}`
	completer := &fakeCompleter{replies: []string{reply, reply}}
	engine, watch, tracker := newTestEngine(t, completer)
	ctx := context.Background()

	watch.Add("FRGT", "2025-07-15")
	watch.UpdateLifecycle("FRGT", "webull", "1", models.StatusHolding, "webull:1")
	tracker.StartSession("u1", DefaultBrokers)
	tracker.AppendMessage("u1", "webull 1: order filled for FRGT")

	var first notifyLog
	engine.ReconcileFromAI(ctx, "u1", first.notify)
	require.Len(t, first.containing("has closed out"), 1)

	// same payload again: status unchanged, no second notification
	var second notifyLog
	engine.ReconcileFromAI(ctx, "u1", second.notify)
	assert.Empty(t, second.containing("has closed out"))
}

func TestReconcileAwaitingSellNotification(t *testing.T) {
	reply := `{"FRGT": {"bbae": {"1": {"status": "awaiting_sell", "account": "4365"}}}}`
	engine, watch, tracker := newTestEngine(t, &fakeCompleter{replies: []string{reply}})

	watch.Add("FRGT", "2025-07-15")
	tracker.StartSession("u1", DefaultBrokers)
	tracker.AppendMessage("u1", "bbae 1: buying 1 share of FRGT")

	var log notifyLog
	engine.ReconcileFromAI(context.Background(), "u1", log.notify)

	alerts := log.containing("awaiting_sell")
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "`bbae 1`")
	assert.Contains(t, alerts[0], "`4365`")
	assert.Equal(t, models.StatusAwaitingSell, watch.BrokerState("FRGT", "bbae", "1").Status)
}

func TestReconcileBadChunkContinues(t *testing.T) {
	good := `{"FRGT": {"bbae": {"1": {"status": "closed", "account": "4365"}}}}`
	completer := &fakeCompleter{replies: []string{"this is not json", good}}
	engine, watch, tracker := newTestEngine(t, completer)

	watch.Add("FRGT", "2025-07-15")
	tracker.StartSession("u1", DefaultBrokers)
	// two chunks at chunk size 1500
	tracker.AppendMessage("u1", strings.Repeat("x", 1600))

	var log notifyLog
	engine.ReconcileFromAI(context.Background(), "u1", log.notify)

	require.Len(t, log.containing("❌ Failed to process lifecycle update"), 1)
	assert.Equal(t, models.StatusClosed, watch.BrokerState("FRGT", "bbae", "1").Status)
}

func TestReconcileStripsCodeFences(t *testing.T) {
	fenced := "```json\n{\"FRGT\": {\"bbae\": {\"1\": {\"status\": \"closed\", \"account\": \"4365\"}}}}\n```"
	engine, watch, tracker := newTestEngine(t, &fakeCompleter{replies: []string{fenced}})

	watch.Add("FRGT", "2025-07-15")
	tracker.StartSession("u1", DefaultBrokers)
	tracker.AppendMessage("u1", "bbae closed it out")

	var log notifyLog
	engine.ReconcileFromAI(context.Background(), "u1", log.notify)
	assert.Equal(t, models.StatusClosed, watch.BrokerState("FRGT", "bbae", "1").Status)
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "aaa✅", truncate("aaa✅ done", 4))
	assert.Equal(t, "✅✅", truncate("✅✅✅", 2))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("冲", 10), 7)))
	assert.Equal(t, "short", truncate("short", 1800))
}

func TestReconcileEmptySessionIsNoop(t *testing.T) {
	completer := &fakeCompleter{}
	engine, _, _ := newTestEngine(t, completer)

	var log notifyLog
	engine.ReconcileFromAI(context.Background(), "nobody", log.notify)
	assert.Zero(t, completer.calls)
	assert.Empty(t, log.sent)
}
