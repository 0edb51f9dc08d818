// Package config provides application configuration loaded from the
// environment (and an optional .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultSystemPrompt = "You are Rufus, an upbeat surf coach turned AI companion. " +
	"You respond with encouragement, helpful details, and beachy enthusiasm without going overboard."

const defaultReformatPrompt = "Rewrite the user's question as a single clear, specific " +
	"question. Keep the original intent. Reply with the rewritten question only."

const defaultSummaryPrompt = "Summarize the following assistant reply in two sentences " +
	"or fewer so it can be kept as conversation memory."

// Config holds all application configuration.
type Config struct {
	APIURL        string
	Model         string
	AnnounceGroup string

	WatchlistPath string
	AuditLogPath  string
	SessionPath   string
	HotLoginPath  string

	SessionTTL   time.Duration
	SummaryTimes []string // "15:04" clock times for the scheduled broadcast

	SystemPrompt   string
	ReformatPrompt string
	SummaryPrompt  string

	LogToFile   bool
	LogFilePath string

	MinecraftScript    string
	MinecraftAltScript string
	MinecraftPort      int
	NgrokAPIURL        string
	CloudflaredURL     string
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:        getEnv("API_URL", "http://localhost:5051/v1/chat/completions"),
		Model:         getEnv("MODEL", "gpt-4"),
		AnnounceGroup: getEnv("ANNOUNCE_GROUP", ""),

		WatchlistPath: getEnv("WATCHLIST_PATH", "watchlist_store.json"),
		AuditLogPath:  getEnv("AUDIT_LOG_PATH", "watchlist_audit.json"),
		SessionPath:   getEnv("SESSION_PATH", "rsa_sessions.json"),
		HotLoginPath:  getEnv("HOT_LOGIN_PATH", "storage.json"),

		SessionTTL:   time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
		SummaryTimes: splitList(getEnv("SUMMARY_TIMES", "08:45,16:30")),

		SystemPrompt:   promptFromFile("SYSTEM_PROMPT_FILE", defaultSystemPrompt),
		ReformatPrompt: promptFromFile("REFORMAT_PROMPT_FILE", defaultReformatPrompt),
		SummaryPrompt:  promptFromFile("SUMMARY_PROMPT_FILE", defaultSummaryPrompt),

		LogToFile:   getEnvBool("LOG_TO_FILE", false),
		LogFilePath: getEnv("LOG_FILE_PATH", "chat_logs.txt"),

		MinecraftScript:    getEnv("MINECRAFT_SCRIPT", ""),
		MinecraftAltScript: getEnv("MINECRAFT_ALT_SCRIPT", ""),
		MinecraftPort:      getEnvInt("MINECRAFT_PORT", 25565),
		NgrokAPIURL:        getEnv("NGROK_API_URL", "http://127.0.0.1:4040"),
		CloudflaredURL:     getEnv("CLOUDFLARED_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set and well-formed.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API_URL cannot be empty")
	}
	if c.WatchlistPath == "" || c.SessionPath == "" {
		return fmt.Errorf("store paths cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be > 0")
	}
	for _, at := range c.SummaryTimes {
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("bad SUMMARY_TIMES entry %q: %w", at, err)
		}
	}
	return nil
}

// promptFromFile loads a prompt from the file named by the env var, falling
// back to the built-in default when unset or unreadable.
func promptFromFile(key, fallback string) string {
	path := os.Getenv(key)
	if path == "" {
		return fallback
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return fallback
}
