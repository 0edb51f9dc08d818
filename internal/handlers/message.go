// Package handlers routes incoming chat messages to the watchlist, session,
// relay, and server-control components.
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/eatmoreapple/openwechat"

	"github.com/braydio/Rufus/internal/ai"
	"github.com/braydio/Rufus/internal/config"
	"github.com/braydio/Rufus/internal/lifecycle"
	"github.com/braydio/Rufus/internal/mcserver"
	"github.com/braydio/Rufus/internal/relay"
	"github.com/braydio/Rufus/internal/render"
	"github.com/braydio/Rufus/internal/session"
	"github.com/braydio/Rufus/internal/watchlist"
)

// Dispatcher owns one of everything and fans incoming text out to it.
type Dispatcher struct {
	cfg      *config.Config
	watch    *watchlist.Manager
	sessions *session.Tracker
	engine   *lifecycle.Engine
	relay    *relay.Relay
	chat     *ai.Client
	mc       *mcserver.Controller
}

// NewDispatcher wires the dispatcher to its components.
func NewDispatcher(cfg *config.Config, watch *watchlist.Manager, sessions *session.Tracker,
	engine *lifecycle.Engine, chatRelay *relay.Relay, chat *ai.Client, mc *mcserver.Controller) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		watch:    watch,
		sessions: sessions,
		engine:   engine,
		relay:    chatRelay,
		chat:     chat,
		mc:       mc,
	}
}

// HandleMessage is the platform entry point.
func (d *Dispatcher) HandleMessage(msg *openwechat.Message) {
	if !msg.IsText() {
		return
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	userID := "unknown"
	displayName := "unknown"
	if sender, err := msg.Sender(); err == nil && sender != nil {
		userID = sender.ID()
		displayName = sender.NickName
	}
	if msg.IsSendByGroup() {
		if speaker, err := msg.SenderInGroup(); err == nil && speaker != nil {
			userID = speaker.ID()
			displayName = speaker.NickName
		}
	}

	slog.Info("message received", "user", displayName, "preview", preview(content, 80))

	reply := func(text string) {
		if _, err := msg.ReplyText(text); err != nil {
			slog.Error("reply failed", "error", err)
		}
	}
	replyImage := func(png []byte) {
		if _, err := msg.ReplyImage(bytes.NewReader(png)); err != nil {
			slog.Error("image reply failed", "error", err)
		}
	}

	// one message at a time per handler call; thinking indicator is managed
	// inside the AI branch
	d.route(context.Background(), userID, displayName, content, reply, replyImage, msg)
}

func (d *Dispatcher) route(ctx context.Context, userID, displayName, content string,
	reply func(string), replyImage func([]byte), msg *openwechat.Message) {
	lower := strings.ToLower(content)

	switch {
	case strings.HasPrefix(lower, "..watchlist") || strings.HasPrefix(lower, "..summary") || strings.HasPrefix(lower, "..all"):
		d.watch.SyncPurchasesFromLifecycle()
		for _, summary := range d.watch.LogAndGetSummary() {
			reply("📊 " + summary)
		}
		return

	case strings.HasPrefix(lower, "..overview"):
		rows := d.watch.OverviewRows()
		png, err := render.OverviewPNG("Rufus Watchlist", rows, time.Now().Format("2006-01-02 15:04"))
		if err != nil {
			slog.Error("overview render failed", "error", err)
			reply("⚠️ Could not render the watchlist image.")
			return
		}
		replyImage(png)
		return

	case strings.HasPrefix(lower, "!web "):
		reply(d.chat.WebSearch(ctx, strings.TrimSpace(content[len("!web "):])))
		return

	case strings.HasPrefix(lower, "..status"):
		parts := strings.Fields(content)
		if len(parts) < 2 {
			reply("Usage: `..status TICKER`")
			return
		}
		reply(d.watch.Status(parts[1]))
		return

	case strings.HasPrefix(lower, "..lifecycle"):
		parts := strings.Fields(content)
		if len(parts) < 2 {
			reply("Usage: `..lifecycle TICKER`")
			return
		}
		ticker := strings.ToUpper(parts[1])
		report, ok := d.watch.LifecycleReport(ticker)
		if !ok {
			reply(fmt.Sprintf("⚠️ `%s` is not on the watchlist.", ticker))
			return
		}
		reply(report)
		return

	case strings.HasPrefix(lower, "..sessiondump"):
		dump, ok := d.sessions.Dump(userID)
		if !ok {
			reply("⚠️ No session found for your user.")
			return
		}
		logs := dump.Messages
		if len(logs) > 10 {
			logs = logs[len(logs)-10:]
		}
		lines := make([]string, 0, len(logs))
		for _, m := range logs {
			lines = append(lines, "- "+m.Content)
		}
		output := strings.Join(lines, "\n")
		if output == "" {
			output = "(empty)"
		}
		reply(fmt.Sprintf("🧾 Last 10 messages in session:\n```\n%s\n```", output))
		return

	case strings.HasPrefix(lower, "..startserver"):
		d.handleStartServer(lower, reply)
		return

	case strings.HasPrefix(lower, "..stopserver"):
		target := mcserver.ParseStopTarget(content, "..stopserver")
		script, err := d.mc.Stop(target)
		if err != nil {
			reply(fmt.Sprintf("⚠️ %v", err))
			return
		}
		reply(fmt.Sprintf("🛑 Stopping server (%s).", script))
		return

	case strings.HasPrefix(lower, "..serverstatus"):
		reply(d.mc.FormatStatus(d.mc.Snapshot()))
		return

	case strings.HasPrefix(lower, "..ai"):
		d.handleAIQuery(ctx, userID, displayName, content, reply, msg)
		return
	}

	// raw broker chatter feeds the session log for the batch analysis pass
	if d.sessions.Active(userID) {
		d.sessions.AppendMessage(userID, content)
	}

	if ev, ok := lifecycle.Classify(content); ok {
		d.engine.Apply(ctx, userID, ev, reply)
	}
}

func (d *Dispatcher) handleStartServer(lower string, reply func(string)) {
	if strings.Contains(lower, "alt") || strings.Contains(lower, "opticraft") {
		if err := d.mc.StartAlt(); err != nil {
			reply(fmt.Sprintf("⚠️ %v", err))
			return
		}
		reply("🚀 Starting the alt server.")
		return
	}
	if err := d.mc.StartMain(); err != nil {
		reply(fmt.Sprintf("⚠️ %v", err))
		return
	}
	reply("🚀 Starting the main server.")
}

func (d *Dispatcher) handleAIQuery(ctx context.Context, userID, displayName, content string,
	reply func(string), msg *openwechat.Message) {
	query := strings.TrimSpace(content[len("..ai"):])
	if query == "" {
		reply("Ask me something after `..ai`.")
		return
	}

	// the platform has no message editing, so the indicator is a single
	// phrase revoked once the reply lands
	var indicator *openwechat.SentMessage
	if msg != nil {
		phrase := relay.ThinkingPhrases[rand.Intn(len(relay.ThinkingPhrases))]
		if sent, err := msg.ReplyText(phrase); err == nil {
			indicator = sent
		}
	}

	chunks := d.relay.Respond(ctx, userID, displayName, query)

	if indicator != nil {
		if err := indicator.Revoke(); err != nil {
			slog.Debug("indicator revoke failed", "error", err)
		}
	}
	for _, chunk := range chunks {
		reply(chunk)
	}
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
