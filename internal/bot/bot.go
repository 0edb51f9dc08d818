// Package bot boots the messaging client, wires the dispatcher in, and runs
// the scheduled watchlist broadcasts.
package bot

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/eatmoreapple/openwechat"

	"github.com/braydio/Rufus/internal/config"
	"github.com/braydio/Rufus/internal/handlers"
	"github.com/braydio/Rufus/internal/render"
	"github.com/braydio/Rufus/internal/session"
	"github.com/braydio/Rufus/internal/watchlist"
)

const readyAnnouncement = "🤖 Rufus is online and ready to go! Type `..ai` to ask me anything."

// Run logs the bot in, announces itself, starts the background schedules,
// and blocks until the client exits.
func Run(cfg *config.Config, dispatcher *handlers.Dispatcher, watch *watchlist.Manager, sessions *session.Tracker) error {
	bot := openwechat.DefaultBot(openwechat.Desktop)
	bot.UUIDCallback = openwechat.PrintlnQrcodeUrl

	reloadStorage := openwechat.NewFileHotReloadStorage(cfg.HotLoginPath)
	defer reloadStorage.Close()

	if err := bot.HotLogin(reloadStorage, openwechat.NewRetryLoginOption()); err != nil {
		return fmt.Errorf("hot login: %w", err)
	}

	bot.MessageHandler = dispatcher.HandleMessage

	announce(bot, cfg.AnnounceGroup, readyAnnouncement)
	startSummarySchedule(bot, cfg, watch)
	startSessionSweep(sessions, cfg.SessionTTL)

	return bot.Block()
}

// announce sends one message to the configured group; failures are logged
// and ignored.
func announce(bot *openwechat.Bot, groupName, text string) {
	if groupName == "" {
		return
	}
	group, err := findGroup(bot, groupName)
	if err != nil {
		slog.Warn("announce group not found", "group", groupName, "error", err)
		return
	}
	if _, err := group.SendText(text); err != nil {
		slog.Warn("announce failed", "group", groupName, "error", err)
	}
}

func findGroup(bot *openwechat.Bot, name string) (*openwechat.Group, error) {
	self, err := bot.GetCurrentUser()
	if err != nil {
		return nil, err
	}
	groups, err := self.Groups()
	if err != nil {
		return nil, err
	}
	results := groups.SearchByNickName(1, name)
	if results.Count() == 0 {
		return nil, fmt.Errorf("no group named %q", name)
	}
	return results.First(), nil
}

// startSummarySchedule pushes the watchlist summary at each configured
// clock time, once per day per slot.
func startSummarySchedule(bot *openwechat.Bot, cfg *config.Config, watch *watchlist.Manager) {
	if cfg.AnnounceGroup == "" || len(cfg.SummaryTimes) == 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		pushed := make(map[string]string) // slot -> date last pushed
		for range ticker.C {
			now := time.Now()
			clock := now.Format("15:04")
			date := now.Format("2006-01-02")
			for _, slot := range cfg.SummaryTimes {
				if clock != slot || pushed[slot] == date {
					continue
				}
				pushed[slot] = date
				pushSummary(bot, cfg.AnnounceGroup, watch, now)
			}
		}
	}()
}

// pushSummary sends the watchlist overview image to the group, falling back
// to the text summaries when rendering fails.
func pushSummary(bot *openwechat.Bot, groupName string, watch *watchlist.Manager, now time.Time) {
	group, err := findGroup(bot, groupName)
	if err != nil {
		slog.Warn("summary group not found", "group", groupName, "error", err)
		return
	}
	image, err := render.OverviewPNG("Rufus Watchlist", watch.OverviewRows(), now.Format("2006-01-02 15:04"))
	if err == nil {
		if _, err := group.SendImage(bytes.NewReader(image)); err == nil {
			return
		}
	} else {
		slog.Warn("overview render failed, sending text", "error", err)
	}
	for _, summary := range watch.LogAndGetSummary() {
		if _, err := group.SendText("📊 " + summary); err != nil {
			slog.Warn("summary push failed", "error", err)
			return
		}
	}
}

// startSessionSweep prunes expired sessions in the background since nothing
// else triggers cleanup on a quiet channel.
func startSessionSweep(sessions *session.Tracker, ttl time.Duration) {
	ticker := time.NewTicker(10 * time.Minute)
	go func() {
		defer ticker.Stop()
		for range ticker.C {
			if removed := sessions.CleanupExpiredSessions(ttl); removed > 0 {
				slog.Info("expired sessions pruned", "count", removed)
			}
		}
	}()
}
