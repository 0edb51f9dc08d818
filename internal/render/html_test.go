package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOverviewHTML(t *testing.T) {
	html, err := renderOverviewHTML(overviewView{
		Title:     "Rufus Watchlist",
		Timestamp: "2025-07-01 08:45",
		Rows: []Row{
			{Ticker: "FRGT", SplitDate: "2025-07-15", Countdown: "14 day(s) left", Open: "bbae:1 x1", Closed: "None", Class: "upcoming"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Rufus Watchlist")
	assert.Contains(t, html, "FRGT")
	assert.Contains(t, html, "2025-07-15")
	assert.Contains(t, html, `class="upcoming"`)
	assert.Contains(t, html, "Updated: 2025-07-01 08:45")
}

func TestRenderOverviewHTMLEmpty(t *testing.T) {
	html, err := renderOverviewHTML(overviewView{Title: "Rufus Watchlist"})
	require.NoError(t, err)
	assert.Contains(t, html, "Nothing on the watchlist yet")
}

func TestEstimateOverviewHeightGrowsWithRows(t *testing.T) {
	one := estimateOverviewHeight(1)
	ten := estimateOverviewHeight(10)
	assert.Greater(t, ten, one)
	assert.Equal(t, one, estimateOverviewHeight(0), "zero rows still reserves one row")
}
