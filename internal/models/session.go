package models

import (
	"encoding/json"
	"sort"
	"time"
)

// SessionError records one broker error observed during a session, paired
// with the raw chat message that reported it.
type SessionError struct {
	Broker  string `json:"broker"`
	Message string `json:"message"`
}

// SessionMessage is one raw message fed into a session, kept for the batch
// AI lifecycle analysis after the session completes.
type SessionMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Session tracks one user's reverse-split confirmation workflow across a
// fixed set of brokers. The broker fields are sets in memory and sorted
// lists on disk.
type Session struct {
	StartedAt        time.Time        `json:"started_at"`
	ExpectedBrokers  map[string]bool  `json:"expected_brokers"`
	CompletedBrokers map[string]bool  `json:"completed_brokers"`
	ConfirmedAll     bool             `json:"confirmed_all"`
	Errors           []SessionError   `json:"errors"`
	Messages         []SessionMessage `json:"messages"`
}

type sessionJSON struct {
	StartedAt        time.Time        `json:"started_at"`
	ExpectedBrokers  []string         `json:"expected_brokers"`
	CompletedBrokers []string         `json:"completed_brokers"`
	ConfirmedAll     bool             `json:"confirmed_all"`
	Errors           []SessionError   `json:"errors"`
	Messages         []SessionMessage `json:"messages"`
}

// MarshalJSON serializes the broker sets as sorted lists.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		StartedAt:        s.StartedAt,
		ExpectedBrokers:  sortedKeys(s.ExpectedBrokers),
		CompletedBrokers: sortedKeys(s.CompletedBrokers),
		ConfirmedAll:     s.ConfirmedAll,
		Errors:           s.Errors,
		Messages:         s.Messages,
	})
}

// UnmarshalJSON re-hydrates the broker lists back into sets.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.StartedAt = raw.StartedAt
	s.ExpectedBrokers = setOf(raw.ExpectedBrokers)
	s.CompletedBrokers = setOf(raw.CompletedBrokers)
	s.ConfirmedAll = raw.ConfirmedAll
	s.Errors = raw.Errors
	s.Messages = raw.Messages
	return nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func setOf(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
