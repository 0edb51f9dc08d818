package watchlist

import (
	"fmt"
	"time"

	"github.com/braydio/Rufus/internal/models"
	"github.com/braydio/Rufus/internal/render"
)

// OverviewRows builds the table rows for the rendered watchlist image, one
// per ticker in sorted order.
func (m *Manager) OverviewRows() []render.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.today()
	rows := make([]render.Row, 0, len(m.entries))
	for _, ticker := range m.tickersLocked() {
		entry := m.entries[ticker]
		row := render.Row{
			Ticker:    ticker,
			SplitDate: entry.SplitDate,
			Open:      formatCounters(openPositions(entry)),
			Closed:    formatCounters(entry.Closeouts),
		}
		date, err := time.Parse(models.SplitDateLayout, entry.SplitDate)
		switch {
		case err != nil:
			row.Countdown = "no date"
			row.Class = "flat"
		case !today.Before(date):
			row.Countdown = "passed"
			row.Class = "due"
		default:
			days := int(date.Sub(today).Hours() / 24)
			row.Countdown = fmt.Sprintf("%d day(s) left", days)
			row.Class = "upcoming"
		}
		rows = append(rows, row)
	}
	return rows
}

func openPositions(entry *models.WatchlistEntry) map[string]int {
	open := make(map[string]int)
	for acct, qty := range entry.Purchases {
		if qty > entry.Closeouts[acct] {
			open[acct] = qty - entry.Closeouts[acct]
		}
	}
	return open
}

