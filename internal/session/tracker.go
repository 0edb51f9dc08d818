// Package session tracks per-user reverse-split confirmation sessions: which
// brokers have reported completion, which errored, and the raw message log
// kept for the batch AI lifecycle analysis.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/braydio/Rufus/internal/models"
)

// DefaultChunkSize is the character window used when slicing the session
// message log for batch analysis.
const DefaultChunkSize = 1500

// Tracker owns the ephemeral session store. Sessions live until an explicit
// cleanup call removes the expired ones; there is no background sweep.
type Tracker struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	storagePath string
	now         func() time.Time
}

// NewTracker loads any persisted sessions from the given path. A missing or
// unreadable file leaves the store empty.
func NewTracker(storagePath string) *Tracker {
	t := &Tracker{
		sessions:    make(map[string]*models.Session),
		storagePath: storagePath,
		now:         time.Now,
	}
	t.load()
	return t
}

// StartSession begins (or restarts) a session for the user with the given
// expected broker set. Broker names are lowercased on the way in.
func (t *Tracker) StartSession(userID string, expectedBrokers []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	expected := make(map[string]bool, len(expectedBrokers))
	for _, broker := range expectedBrokers {
		expected[strings.ToLower(broker)] = true
	}
	t.sessions[userID] = &models.Session{
		StartedAt:        t.now().UTC(),
		ExpectedBrokers:  expected,
		CompletedBrokers: make(map[string]bool),
	}
	t.save()
}

// MarkBrokerComplete records one broker as done. Re-marking an already
// completed broker is a no-op. Unknown users are ignored.
func (t *Tracker) MarkBrokerComplete(userID, broker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok {
		return
	}
	session.CompletedBrokers[strings.ToLower(broker)] = true
	t.save()
}

// MarkError appends a broker error with the raw message that reported it.
func (t *Tracker) MarkError(userID, broker, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok {
		return
	}
	session.Errors = append(session.Errors, models.SessionError{Broker: broker, Message: message})
	t.save()
}

// MarkAllDone flags the session as fully confirmed. Terminal.
func (t *Tracker) MarkAllDone(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok {
		return
	}
	session.ConfirmedAll = true
	t.save()
}

// AppendMessage adds one raw message to the session log.
func (t *Tracker) AppendMessage(userID, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok {
		return
	}
	session.Messages = append(session.Messages, models.SessionMessage{
		Timestamp: t.now().UTC(),
		Content:   content,
	})
	t.save()
}

// MessageChunks joins the session's message log with newlines and slices it
// into fixed-size character windows. The split is a pure offset slice, not
// message-boundary aware.
func (t *Tracker) MessageChunks(userID string, chunkSize int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok || len(session.Messages) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	parts := make([]string, 0, len(session.Messages))
	for _, msg := range session.Messages {
		parts = append(parts, msg.Content)
	}
	text := []rune(strings.Join(parts, "\n"))

	var chunks []string
	for i := 0; i < len(text); i += chunkSize {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, string(text[i:end]))
	}
	return chunks
}

// Status renders the completed / missing / error report for a user's session.
func (t *Tracker) Status(userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok {
		return "No active RSA session for this user."
	}

	completed := sortedSet(session.CompletedBrokers)
	var missing []string
	for broker := range session.ExpectedBrokers {
		if !session.CompletedBrokers[broker] {
			missing = append(missing, broker)
		}
	}
	sort.Strings(missing)

	var b strings.Builder
	fmt.Fprintf(&b, "Brokers complete: %s\n", strings.Join(completed, ", "))
	if len(missing) > 0 {
		fmt.Fprintf(&b, "⚠️ Missing: %s\n", strings.Join(missing, ", "))
	}
	if len(session.Errors) > 0 {
		b.WriteString("❌ Errors:\n")
		for _, sessionErr := range session.Errors {
			fmt.Fprintf(&b, "  - %s: %s\n", sessionErr.Broker, sessionErr.Message)
		}
	}
	if session.ConfirmedAll {
		b.WriteString("✅ All brokers marked complete.")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Dump returns a copy of the user's session for debug commands, or ok=false
// when none exists.
func (t *Tracker) Dump(userID string) (models.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[userID]
	if !ok {
		return models.Session{}, false
	}
	copied := *session
	copied.Messages = append([]models.SessionMessage(nil), session.Messages...)
	copied.Errors = append([]models.SessionError(nil), session.Errors...)
	return copied, true
}

// Active reports whether the user currently has a session.
func (t *Tracker) Active(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[userID]
	return ok
}

// CleanupExpiredSessions drops every session older than the TTL, measured
// from its start, and returns how many were removed.
func (t *Tracker) CleanupExpiredSessions(ttl time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().UTC().Add(-ttl)
	removed := 0
	for userID, session := range t.sessions {
		if session.StartedAt.Before(cutoff) {
			delete(t.sessions, userID)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("expired RSA sessions removed", "count", removed)
		t.save()
	}
	return removed
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *Tracker) save() {
	data, err := json.MarshalIndent(t.sessions, "", "  ")
	if err == nil {
		err = os.WriteFile(t.storagePath, data, 0644)
	}
	if err != nil {
		slog.Error("failed to save RSA sessions", "path", t.storagePath, "error", err)
	}
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.storagePath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read RSA sessions", "path", t.storagePath, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &t.sessions); err != nil {
		slog.Error("failed to parse RSA sessions", "path", t.storagePath, "error", err)
		t.sessions = make(map[string]*models.Session)
	}
}

func sortedSet(set map[string]bool) []string {
	values := make([]string, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}
