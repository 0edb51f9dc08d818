package main

import (
	"log/slog"
	"os"

	"github.com/braydio/Rufus/internal/ai"
	"github.com/braydio/Rufus/internal/bot"
	"github.com/braydio/Rufus/internal/config"
	"github.com/braydio/Rufus/internal/handlers"
	"github.com/braydio/Rufus/internal/lifecycle"
	"github.com/braydio/Rufus/internal/mcserver"
	"github.com/braydio/Rufus/internal/relay"
	"github.com/braydio/Rufus/internal/session"
	"github.com/braydio/Rufus/internal/watchlist"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	watch := watchlist.NewManager(cfg.WatchlistPath, cfg.AuditLogPath)
	sessions := session.NewTracker(cfg.SessionPath)
	chat := ai.New(cfg.APIURL, cfg.Model)
	engine := lifecycle.NewEngine(watch, sessions, chat, session.DefaultChunkSize)

	chatRelay := relay.New(chat, cfg.SystemPrompt, cfg.ReformatPrompt, cfg.SummaryPrompt)
	if cfg.LogToFile {
		chatRelay.EnableTranscriptLog(cfg.LogFilePath)
	}

	mc := mcserver.NewController(cfg.MinecraftScript, cfg.MinecraftAltScript,
		cfg.MinecraftPort, cfg.NgrokAPIURL, cfg.CloudflaredURL)

	dispatcher := handlers.NewDispatcher(cfg, watch, sessions, engine, chatRelay, chat, mc)

	if err := bot.Run(cfg, dispatcher, watch, sessions); err != nil {
		slog.Error("bot exited", "error", err)
		os.Exit(1)
	}
}
