// Package relay carries the conversational side of the bot: per-user memory
// buffers, the reformat and summarize passes around each chat query, and
// chunking long replies down to the platform message limit.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/braydio/Rufus/internal/ai"
	"github.com/braydio/Rufus/internal/models"
)

const (
	// MaxMemoryLength bounds the per-user memory buffer, in messages.
	MaxMemoryLength = 40
	// MaxMessageLength is the platform's outbound message size limit.
	MaxMessageLength = 2000
)

// ThinkingPhrases cycle while a completion call is in flight.
var ThinkingPhrases = []string{"Heh...", "Well erm...", "Okay so...", "Hold on...", "Uhh...", "Thinking..."}

// ChatClient is the slice of the completion client the relay uses.
type ChatClient interface {
	Query(ctx context.Context, messages []models.ChatMessage) string
	Reformat(ctx context.Context, reformatPrompt, input string) string
	Summarize(ctx context.Context, summaryPrompt, text string) string
}

// Relay holds conversation memory and the prompt set for one bot instance.
type Relay struct {
	mu     sync.Mutex
	client ChatClient
	memory map[string][]models.ChatMessage

	systemPrompt   string
	reformatPrompt string
	summaryPrompt  string

	logToFile bool
	logPath   string
}

// New builds a relay around the given client and prompt set.
func New(client ChatClient, systemPrompt, reformatPrompt, summaryPrompt string) *Relay {
	return &Relay{
		client:         client,
		memory:         make(map[string][]models.ChatMessage),
		systemPrompt:   systemPrompt,
		reformatPrompt: reformatPrompt,
		summaryPrompt:  summaryPrompt,
	}
}

// EnableTranscriptLog appends every successful exchange to the given file.
func (r *Relay) EnableTranscriptLog(path string) {
	r.logToFile = true
	r.logPath = path
}

// Respond answers a user query with memory context and returns the reply
// pre-chunked to the platform limit. A failed completion returns the
// fallback apology and leaves memory untouched.
func (r *Relay) Respond(ctx context.Context, userID, displayName, query string) []string {
	reformatted := r.client.Reformat(ctx, r.reformatPrompt, query)

	r.mu.Lock()
	history := make([]models.ChatMessage, 0, len(r.memory[userID])+2)
	history = append(history, models.ChatMessage{Role: "system", Content: r.systemPrompt})
	history = append(history, r.memory[userID]...)
	history = append(history, models.ChatMessage{Role: "user", Content: query})
	r.mu.Unlock()

	response := r.client.Query(ctx, history)

	if response != ai.FallbackReply {
		r.logTranscript(displayName, reformatted, response, "Final Response")

		summary := r.client.Summarize(ctx, r.summaryPrompt, response)
		r.remember(userID, query, summary)
		r.logTranscript("SYSTEM", "Summary Prompt", summary, "Memory Summary")
	}

	return ChunkMessage(response, MaxMessageLength)
}

// remember appends the exchange to the user's buffer and trims it to the
// most recent MaxMemoryLength messages.
func (r *Relay) remember(userID, query, summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := append(r.memory[userID],
		models.ChatMessage{Role: "user", Content: query},
		models.ChatMessage{Role: "assistant", Content: summary},
	)
	if len(buf) > MaxMemoryLength {
		buf = buf[len(buf)-MaxMemoryLength:]
	}
	r.memory[userID] = buf
}

// MemoryLen reports the current buffer size for a user.
func (r *Relay) MemoryLen(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memory[userID])
}

// ForgetUser drops a user's memory buffer.
func (r *Relay) ForgetUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.memory, userID)
}

func (r *Relay) logTranscript(user, prompt, response, note string) {
	if !r.logToFile {
		return
	}
	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("transcript log open failed", "path", r.logPath, "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "\n---\nUser: %s\n", user)
	if note != "" {
		fmt.Fprintf(f, "Note: %s\n", note)
	}
	fmt.Fprintf(f, "Prompt: %s\nResponse: %s\n", prompt, response)
}

// ChunkMessage splits text into fixed-size character windows. The windows
// are counted in runes so a multi-byte character never straddles a chunk
// boundary. Short text comes back as a single chunk; empty text yields nil.
func ChunkMessage(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
