// Package lifecycle turns free-text broker chatter into watchlist state
// transitions. Pattern matching lives in a pure classifier so the transition
// engine can be tested independently of message wording.
package lifecycle

import (
	"regexp"
	"strings"
)

// EventKind identifies which chat pattern a message matched.
type EventKind int

const (
	KindNone EventKind = iota
	KindSplitDateAdd
	KindArmTrade
	KindStartSession
	KindBrokerFill
	KindAllComplete
	KindBrokerComplete
	KindBrokerError
)

// Event is one classified chat message. Only the fields relevant to the
// kind are populated.
type Event struct {
	Kind      EventKind
	Ticker    string
	SplitDate string
	Broker    string
	Number    string
	Action    string
	Quantity  string
	Raw       string
}

var (
	splitDatePattern = regexp.MustCompile(`\*\*\|\s*([A-Z]+)\*\*.*?(\d{4}-\d{2}-\d{2})`)
	armTradePattern  = regexp.MustCompile(`(?i)^!rsa (buy|sell) (\d+)? ?([A-Za-z]+)`)
	fillPattern      = regexp.MustCompile(`(?i)(\w+)\s+(\d): buying .* of ([A-Za-z]+)`)
	completePattern  = regexp.MustCompile(`(?i)^all (\w+) transactions complete`)
	errorPattern     = regexp.MustCompile(`(?i)(?:error.*order.*(?:for|on)) (\w+)`)
)

// Classify matches text against the broker chat patterns in priority order
// and returns the event plus whether anything matched. Armed-trade commands
// are checked before the bare session-start trigger so "!rsa buy 1 FRGT"
// never degrades into a session restart.
func Classify(text string) (Event, bool) {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "split date") && strings.Contains(lower, "watchlist") {
		if m := splitDatePattern.FindStringSubmatch(text); m != nil {
			return Event{Kind: KindSplitDateAdd, Ticker: m[1], SplitDate: m[2], Raw: text}, true
		}
		return Event{}, false
	}

	if m := armTradePattern.FindStringSubmatch(text); m != nil {
		return Event{
			Kind:     KindArmTrade,
			Action:   strings.ToLower(m[1]),
			Quantity: m[2],
			Ticker:   strings.ToUpper(m[3]),
			Raw:      text,
		}, true
	}

	if strings.HasPrefix(lower, "!rsa") {
		return Event{Kind: KindStartSession, Raw: text}, true
	}

	if m := fillPattern.FindStringSubmatch(text); m != nil {
		return Event{
			Kind:   KindBrokerFill,
			Broker: strings.ToLower(m[1]),
			Number: m[2],
			Ticker: strings.ToUpper(m[3]),
			Raw:    text,
		}, true
	}

	if strings.Contains(lower, "all commands complete in all brokers") {
		return Event{Kind: KindAllComplete, Raw: text}, true
	}

	if m := completePattern.FindStringSubmatch(text); m != nil {
		return Event{Kind: KindBrokerComplete, Broker: strings.ToLower(m[1]), Raw: text}, true
	}

	if m := errorPattern.FindStringSubmatch(text); m != nil {
		return Event{Kind: KindBrokerError, Broker: strings.ToLower(m[1]), Raw: text}, true
	}

	return Event{}, false
}
