package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/braydio/Rufus/internal/models"
	"github.com/braydio/Rufus/internal/session"
	"github.com/braydio/Rufus/internal/watchlist"
)

// DefaultBrokers is the broker roster expected to confirm during a
// reverse-split processing session.
var DefaultBrokers = []string{"bbae", "dspac", "fennel", "public", "schwab", "sofi", "vanguard", "webull"}

// DefaultTradeTTL bounds how long an armed ticker keeps matching fills.
const DefaultTradeTTL = 60 * time.Minute

const reconcileSystemPrompt = "You are an assistant helping manage broker positions " +
	"on a stock watchlist. A stock goes through lifecycle stages: " +
	"`planned`, `holding`, `awaiting_sell`, `closed`."

// Completer is the slice of the chat API the engine needs for batch
// reconciliation.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []models.ChatMessage, temperature float64, maxTokens int) (string, error)
}

// Notify delivers one message back to the originating channel.
type Notify func(text string)

// Engine applies classified chat events to the watchlist and session stores
// and runs the batch AI reconciliation pass at session end.
type Engine struct {
	watch     *watchlist.Manager
	sessions  *session.Tracker
	ai        Completer
	chunkSize int

	activeTrades map[string]time.Time
	tradeTTL     time.Duration
	now          func() time.Time
}

// NewEngine wires the engine to its stores. chunkSize <= 0 uses the session
// tracker's default.
func NewEngine(watch *watchlist.Manager, sessions *session.Tracker, completer Completer, chunkSize int) *Engine {
	if chunkSize <= 0 {
		chunkSize = session.DefaultChunkSize
	}
	return &Engine{
		watch:        watch,
		sessions:     sessions,
		ai:           completer,
		chunkSize:    chunkSize,
		activeTrades: make(map[string]time.Time),
		tradeTTL:     DefaultTradeTTL,
		now:          time.Now,
	}
}

// SetClock replaces the engine's clock, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Apply runs one classified event against the stores. Replies go through
// notify; nothing here returns an error because every failure path is a
// user-visible message instead.
func (e *Engine) Apply(ctx context.Context, userID string, ev Event, notify Notify) {
	switch ev.Kind {
	case KindSplitDateAdd:
		if e.watch.Add(ev.Ticker, ev.SplitDate) {
			notify(fmt.Sprintf("👀 Tracking `%s` for %s split.", strings.ToUpper(ev.Ticker), ev.SplitDate))
		}

	case KindArmTrade:
		e.pruneTrades()
		e.activeTrades[ev.Ticker] = e.now()
		notify(fmt.Sprintf("🟢 Monitoring broker fills for `%s`.", ev.Ticker))

	case KindStartSession:
		e.sessions.StartSession(userID, DefaultBrokers)
		notify("📍 Tracking this RSA session.")

	case KindBrokerFill:
		e.pruneTrades()
		if _, armed := e.activeTrades[ev.Ticker]; armed {
			account := fmt.Sprintf("%s:%s", ev.Broker, ev.Number)
			e.watch.UpdateLifecycle(ev.Ticker, ev.Broker, ev.Number, models.StatusHolding, account)
		}

	case KindBrokerComplete:
		e.sessions.MarkBrokerComplete(userID, ev.Broker)
		e.pruneTrades()
		for ticker := range e.activeTrades {
			e.watch.UpdateLifecycle(ticker, ev.Broker, "?", models.StatusClosed, "")
			delete(e.activeTrades, ticker)
			notify(fmt.Sprintf("✅ Closeout activity logged for `%s`.", ticker))
		}

	case KindAllComplete:
		e.sessions.MarkAllDone(userID)
		notify(fmt.Sprintf("📊 RSA session summary:\n```\n%s\n```", e.sessions.Status(userID)))
		e.ReconcileFromAI(ctx, userID, notify)

	case KindBrokerError:
		e.sessions.MarkError(userID, ev.Broker, ev.Raw)
	}
}

// ArmedTickers returns the tickers currently being monitored for fills, with
// expired entries pruned.
func (e *Engine) ArmedTickers() []string {
	e.pruneTrades()
	tickers := make([]string, 0, len(e.activeTrades))
	for ticker := range e.activeTrades {
		tickers = append(tickers, ticker)
	}
	return tickers
}

func (e *Engine) pruneTrades() {
	cutoff := e.now().Add(-e.tradeTTL)
	for ticker, armedAt := range e.activeTrades {
		if armedAt.Before(cutoff) {
			slog.Info("armed trade expired", "ticker", ticker)
			delete(e.activeTrades, ticker)
		}
	}
}

// brokerUpdate is one extracted lifecycle tuple from the AI payload, keyed
// ticker → broker → number.
type brokerUpdate struct {
	Status  string `json:"status"`
	Account string `json:"account"`
}

// ReconcileFromAI partitions the user's session log into chunks, asks the
// chat API to extract lifecycle transitions from each, and applies them.
// Notifications fire only on actual status changes. A bad chunk is reported
// and the loop keeps going.
func (e *Engine) ReconcileFromAI(ctx context.Context, userID string, notify Notify) {
	chunks := e.sessions.MessageChunks(userID, e.chunkSize)
	if len(chunks) == 0 {
		return
	}
	summary := strings.Join(e.watch.AllStatuses(), "\n")
	tickers := strings.Join(e.watch.Tickers(), ", ")

	for idx, chunk := range chunks {
		notify("📤 Sending the following messages to AI:\n" + truncate(chunk, 1800))

		prompt := []models.ChatMessage{
			{Role: "system", Content: reconcileSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(
				"Watchlist:\n%s\n\nSplit dates and broker status:\n%s\n\n"+
					"Here are recent broker activity logs:\n%s\n\n"+
					"Based on these messages, tell me for each stock which brokers "+
					"have entered a new lifecycle stage (like just purchased, or just sold). "+
					"Return JSON like:\n"+
					`{"FRGT": {"BBAE": {"1": {"status": "holding", "account": "4365"}}}}`,
				tickers, summary, chunk)},
		}

		response, err := e.ai.ChatCompletion(ctx, prompt, 0.2, 800)
		if err != nil {
			notify(fmt.Sprintf("❌ Failed to process lifecycle update: %v", err))
			continue
		}

		var updates map[string]map[string]map[string]brokerUpdate
		if err := json.Unmarshal([]byte(stripCodeFences(response)), &updates); err != nil {
			slog.Warn("lifecycle payload parse failed", "chunk", idx, "error", err)
			notify(fmt.Sprintf("❌ Failed to process lifecycle update: %v", err))
			continue
		}

		e.applyUpdates(updates, notify)
	}
}

func (e *Engine) applyUpdates(updates map[string]map[string]map[string]brokerUpdate, notify Notify) {
	for ticker, brokers := range updates {
		for broker, accounts := range brokers {
			for number, info := range accounts {
				prev := e.watch.BrokerState(ticker, broker, number).Status
				e.watch.UpdateLifecycle(ticker, broker, number, info.Status, info.Account)

				switch {
				case info.Status == models.StatusAwaitingSell && prev != models.StatusAwaitingSell:
					notify(fmt.Sprintf(
						"🔔 `%s %s` is now `awaiting_sell` for `%s`.\nPlease check account `%s` for return of stock after split.",
						broker, number, strings.ToUpper(ticker), info.Account))
				case info.Status == models.StatusClosed && prev != models.StatusClosed:
					notify(fmt.Sprintf("✅ `%s %s` has closed out `%s`.", broker, number, strings.ToUpper(ticker)))
				}
			}
		}
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
