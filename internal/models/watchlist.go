package models

// Lifecycle statuses a broker account moves through for a tracked ticker.
// The intended order is planned -> holding -> awaiting_sell -> closed, but
// the update engine never enforces it; any status may overwrite any other.
const (
	StatusPlanned      = "planned"
	StatusHolding      = "holding"
	StatusAwaitingSell = "awaiting_sell"
	StatusClosed       = "closed"
)

// SplitDateLayout is the calendar format used for split dates everywhere.
const SplitDateLayout = "2006-01-02"

// SentinelSplitDate marks tickers created by a purchase before any split
// date announcement arrived.
const SentinelSplitDate = "9999-01-01"

// BrokerState is the lifecycle record for one broker account on a ticker.
type BrokerState struct {
	Status   string `json:"status"`
	Account  string `json:"account"`
	LastSeen string `json:"last_seen"`
}

// WatchlistEntry tracks one ticker through a reverse split. Brokers maps
// broker name -> account number -> state. Purchases and Closeouts are the
// legacy flat counters keyed by "broker:number" strings; the watchlist
// manager keeps them in sync with Brokers.
type WatchlistEntry struct {
	SplitDate string                             `json:"split_date"`
	Brokers   map[string]map[string]*BrokerState `json:"brokers,omitempty"`
	Purchases map[string]int                     `json:"purchases"`
	Closeouts map[string]int                     `json:"closeouts"`
	Tags      []string                           `json:"tags"`
	Notes     string                             `json:"notes"`
}

// AuditRecord is one line of the watchlist audit log.
type AuditRecord struct {
	Timestamp string         `json:"timestamp"`
	Ticker    string         `json:"ticker"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
}
