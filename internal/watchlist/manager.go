// Package watchlist maintains the persistent ticker watchlist: split dates,
// per-broker lifecycle state, the legacy purchase/closeout counters, and the
// audit log. Every mutation is written back to disk immediately.
package watchlist

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

// Manager owns the watchlist mapping and its audit log. All methods are safe
// for concurrent use; mutations persist synchronously, so the in-memory state
// and the files move together.
type Manager struct {
	mu          sync.Mutex
	entries     map[string]*models.WatchlistEntry
	audit       []models.AuditRecord
	storagePath string
	auditPath   string
	now         func() time.Time
}

// NewManager loads the watchlist and audit log from the given paths. Missing
// files mean a fresh start; unreadable files are logged and skipped so the
// bot still comes up.
func NewManager(storagePath, auditPath string) *Manager {
	m := &Manager{
		entries:     make(map[string]*models.WatchlistEntry),
		storagePath: storagePath,
		auditPath:   auditPath,
		now:         time.Now,
	}
	m.load()
	return m
}

// Add inserts or updates a ticker with the given split date. It returns false
// without touching the store when the date does not parse.
func (m *Manager) Add(ticker, splitDate string) bool {
	parsed, err := time.Parse(models.SplitDateLayout, splitDate)
	if err != nil {
		slog.Warn("invalid split date", "ticker", ticker, "date", splitDate)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = strings.ToUpper(ticker)
	entry := m.ensureEntry(ticker, parsed.Format(models.SplitDateLayout))
	entry.SplitDate = parsed.Format(models.SplitDateLayout)
	m.logAction("add_or_update", ticker, map[string]any{"split_date": splitDate})
	m.save()
	return true
}

// MarkPurchase increments the purchase counter for a broker account, creating
// the ticker with a sentinel split date if it is not tracked yet.
func (m *Manager) MarkPurchase(ticker, brokerAccount string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = strings.ToUpper(ticker)
	entry := m.ensureEntry(ticker, models.SentinelSplitDate)
	entry.Purchases[brokerAccount] += quantity
	m.logAction("purchase", ticker, map[string]any{"account": brokerAccount, "quantity": quantity})
	m.save()
}

// MarkCloseout increments the closeout counter for a broker account, creating
// the ticker on demand like MarkPurchase.
func (m *Manager) MarkCloseout(ticker, brokerAccount string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = strings.ToUpper(ticker)
	entry := m.ensureEntry(ticker, models.SentinelSplitDate)
	entry.Closeouts[brokerAccount] += quantity
	m.logAction("closeout", ticker, map[string]any{"account": brokerAccount, "quantity": quantity})
	m.save()
}

// UpdateLifecycle upserts the nested broker/number record. The status
// overwrites whatever was there before; backwards moves in the nominal order
// are applied anyway but logged as anomalies.
func (m *Manager) UpdateLifecycle(ticker, broker, brokerNumber, status, account string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = strings.ToUpper(ticker)
	entry := m.ensureEntry(ticker, models.SentinelSplitDate)
	if entry.Brokers == nil {
		entry.Brokers = make(map[string]map[string]*models.BrokerState)
	}
	accounts := entry.Brokers[broker]
	if accounts == nil {
		accounts = make(map[string]*models.BrokerState)
		entry.Brokers[broker] = accounts
	}
	prev := accounts[brokerNumber]
	if prev != nil && statusRank(status) < statusRank(prev.Status) {
		slog.Warn("lifecycle status moved backwards",
			"ticker", ticker, "broker", broker, "number", brokerNumber,
			"from", prev.Status, "to", status)
	}
	accounts[brokerNumber] = &models.BrokerState{
		Status:   status,
		Account:  account,
		LastSeen: m.now().UTC().Format(time.RFC3339),
	}
	m.logAction("lifecycle", ticker, map[string]any{
		"broker": broker, "number": brokerNumber, "status": status, "account": account,
	})
	m.save()
}

// BrokerState returns the current state for a broker/number pair, or a zero
// value when no record exists yet.
func (m *Manager) BrokerState(ticker, broker, brokerNumber string) models.BrokerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[strings.ToUpper(ticker)]
	if !ok || entry.Brokers == nil {
		return models.BrokerState{}
	}
	if state, ok := entry.Brokers[broker][brokerNumber]; ok {
		return *state
	}
	return models.BrokerState{}
}

// Tickers returns the tracked tickers in sorted order.
func (m *Manager) Tickers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickersLocked()
}

// Status renders the human-readable summary for one ticker. Unknown tickers
// and unparsable stored dates come back as message strings, never errors.
func (m *Manager) Status(ticker string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(strings.ToUpper(ticker))
}

// AllStatuses renders the summary for every tracked ticker.
func (m *Manager) AllStatuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	summaries := make([]string, 0, len(m.entries))
	for _, ticker := range m.tickersLocked() {
		summaries = append(summaries, m.statusLocked(ticker))
	}
	return summaries
}

// LogAndGetSummary writes every summary line to the log and returns them;
// used by the scheduled broadcast and the manual summary commands.
func (m *Manager) LogAndGetSummary() []string {
	summaries := m.AllStatuses()
	slog.Info("watchlist summary", "tickers", len(summaries))
	for _, summary := range summaries {
		slog.Info(summary)
	}
	return summaries
}

// LifecycleReport renders the per-broker lifecycle dump for one ticker, or
// ok=false when the ticker is not tracked.
func (m *Manager) LifecycleReport(ticker string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = strings.ToUpper(ticker)
	entry, ok := m.entries[ticker]
	if !ok {
		return "", false
	}

	passed := "⏳ upcoming"
	if date, err := time.Parse(models.SplitDateLayout, entry.SplitDate); err == nil {
		if !m.today().Before(date) {
			passed = "✅ passed"
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Lifecycle state for **%s** (split %s, %s):\n", ticker, entry.SplitDate, passed)
	for _, broker := range sortedKeys(entry.Brokers) {
		accounts := entry.Brokers[broker]
		for _, number := range sortedKeys(accounts) {
			state := accounts[number]
			fmt.Fprintf(&b, "  • %s %s [%s] → `%s` (last seen %s)\n",
				broker, number, state.Account, state.Status, state.LastSeen)
		}
	}
	return b.String(), true
}

// SyncPurchasesFromLifecycle makes sure every account in holding status also
// appears in the legacy purchases counters, and every closed account in the
// closeouts. Legacy consumers still read those.
func (m *Manager) SyncPurchasesFromLifecycle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := false
	for ticker, entry := range m.entries {
		for broker, accounts := range entry.Brokers {
			for number, state := range accounts {
				acct := fmt.Sprintf("%s:%s", broker, number)
				switch state.Status {
				case models.StatusHolding:
					if entry.Purchases[acct] == 0 {
						entry.Purchases[acct] = 1
						updated = true
						slog.Info("synced purchase from lifecycle", "ticker", ticker, "account", acct)
					}
				case models.StatusClosed:
					if entry.Closeouts[acct] == 0 {
						entry.Closeouts[acct] = 1
						updated = true
						slog.Info("synced closeout from lifecycle", "ticker", ticker, "account", acct)
					}
				}
			}
		}
	}
	if updated {
		m.save()
	}
}

// SetClock overrides the time source; tests use it to pin "today".
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) statusLocked(ticker string) string {
	entry, ok := m.entries[ticker]
	if !ok {
		return fmt.Sprintf("No tracking info for `%s`.", ticker)
	}
	splitDate, err := time.Parse(models.SplitDateLayout, entry.SplitDate)
	if err != nil {
		return fmt.Sprintf("Invalid split date stored for `%s`.", ticker)
	}

	today := m.today()
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **%s** split date: %s", ticker, entry.SplitDate)
	if !today.Before(splitDate) {
		b.WriteString(" (✅ passed)\n")
	} else {
		days := int(splitDate.Sub(today).Hours() / 24)
		fmt.Fprintf(&b, " (⏳ %d day(s) left)\n", days)
	}
	fmt.Fprintf(&b, "💳 Purchases: %s\n", formatCounters(entry.Purchases))
	fmt.Fprintf(&b, "📤 Closeouts: %s\n", formatCounters(entry.Closeouts))

	open := openPositions(entry)
	if len(open) > 0 {
		fmt.Fprintf(&b, "⚠️ Still open: %s", formatCounters(open))
	} else {
		b.WriteString("✅ All positions closed.")
	}
	return b.String()
}

// today is the clock's current date truncated to midnight, pinned to UTC so
// day subtraction against parsed split dates stays exact.
func (m *Manager) today() time.Time {
	now := m.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (m *Manager) tickersLocked() []string {
	tickers := make([]string, 0, len(m.entries))
	for ticker := range m.entries {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

func (m *Manager) ensureEntry(ticker, splitDate string) *models.WatchlistEntry {
	entry, ok := m.entries[ticker]
	if !ok {
		entry = &models.WatchlistEntry{
			SplitDate: splitDate,
			Purchases: make(map[string]int),
			Closeouts: make(map[string]int),
			Tags:      []string{},
		}
		m.entries[ticker] = entry
	}
	if entry.Purchases == nil {
		entry.Purchases = make(map[string]int)
	}
	if entry.Closeouts == nil {
		entry.Closeouts = make(map[string]int)
	}
	return entry
}

func (m *Manager) logAction(action, ticker string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	m.audit = append(m.audit, models.AuditRecord{
		Timestamp: m.now().UTC().Format(time.RFC3339),
		Ticker:    ticker,
		Action:    action,
		Metadata:  metadata,
	})
}

// save writes the full watchlist and audit log. Failures are logged and the
// in-memory state stays authoritative until the next successful write.
func (m *Manager) save() {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err == nil {
		err = os.WriteFile(m.storagePath, data, 0644)
	}
	if err != nil {
		slog.Error("failed to save watchlist", "path", m.storagePath, "error", err)
		return
	}
	auditData, err := json.MarshalIndent(m.audit, "", "  ")
	if err == nil {
		err = os.WriteFile(m.auditPath, auditData, 0644)
	}
	if err != nil {
		slog.Error("failed to save audit log", "path", m.auditPath, "error", err)
	}
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.storagePath)
	switch {
	case os.IsNotExist(err):
		slog.Info("no watchlist store found, starting fresh", "path", m.storagePath)
	case err != nil:
		slog.Error("failed to read watchlist", "path", m.storagePath, "error", err)
	default:
		if err := json.Unmarshal(data, &m.entries); err != nil {
			slog.Error("failed to parse watchlist", "path", m.storagePath, "error", err)
			m.entries = make(map[string]*models.WatchlistEntry)
		}
	}

	auditData, err := os.ReadFile(m.auditPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read audit log", "path", m.auditPath, "error", err)
		}
		return
	}
	if err := json.Unmarshal(auditData, &m.audit); err != nil {
		slog.Warn("failed to parse audit log", "path", m.auditPath, "error", err)
		m.audit = nil
	}
}

func statusRank(status string) int {
	switch status {
	case models.StatusPlanned:
		return 0
	case models.StatusHolding:
		return 1
	case models.StatusAwaitingSell:
		return 2
	case models.StatusClosed:
		return 3
	}
	return 0
}

func formatCounters(counters map[string]int) string {
	if len(counters) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(counters))
	for _, acct := range sortedKeys(counters) {
		parts = append(parts, fmt.Sprintf("%s x%d", acct, counters[acct]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
