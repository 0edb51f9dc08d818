package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySplitDateAdd(t *testing.T) {
	ev, ok := Classify("Added to watchlist: **| FRGT** split date 2025-07-15")
	require.True(t, ok)
	assert.Equal(t, KindSplitDateAdd, ev.Kind)
	assert.Equal(t, "FRGT", ev.Ticker)
	assert.Equal(t, "2025-07-15", ev.SplitDate)
}

func TestClassifySplitDateRequiresBothKeywords(t *testing.T) {
	_, ok := Classify("**| FRGT** 2025-07-15 split date soon")
	assert.False(t, ok, "missing the watchlist keyword should not match")
}

func TestClassifyArmTradeBeatsSessionStart(t *testing.T) {
	ev, ok := Classify("!rsa buy 1 FRGT")
	require.True(t, ok)
	assert.Equal(t, KindArmTrade, ev.Kind)
	assert.Equal(t, "buy", ev.Action)
	assert.Equal(t, "1", ev.Quantity)
	assert.Equal(t, "FRGT", ev.Ticker)
}

func TestClassifyArmTradeWithoutQuantity(t *testing.T) {
	ev, ok := Classify("!rsa sell frgt")
	require.True(t, ok)
	assert.Equal(t, KindArmTrade, ev.Kind)
	assert.Equal(t, "sell", ev.Action)
	assert.Equal(t, "FRGT", ev.Ticker)
}

func TestClassifyBareSessionStart(t *testing.T) {
	ev, ok := Classify("!rsa")
	require.True(t, ok)
	assert.Equal(t, KindStartSession, ev.Kind)
}

func TestClassifyBrokerFill(t *testing.T) {
	ev, ok := Classify("Schwab 2: buying 1 share of FRGT")
	require.True(t, ok)
	assert.Equal(t, KindBrokerFill, ev.Kind)
	assert.Equal(t, "schwab", ev.Broker)
	assert.Equal(t, "2", ev.Number)
	assert.Equal(t, "FRGT", ev.Ticker)
}

func TestClassifyBrokerComplete(t *testing.T) {
	ev, ok := Classify("all schwab transactions complete")
	require.True(t, ok)
	assert.Equal(t, KindBrokerComplete, ev.Kind)
	assert.Equal(t, "schwab", ev.Broker)
}

func TestClassifyAllComplete(t *testing.T) {
	ev, ok := Classify("All commands complete in all brokers")
	require.True(t, ok)
	assert.Equal(t, KindAllComplete, ev.Kind)
}

func TestClassifyBrokerError(t *testing.T) {
	ev, ok := Classify("Error placing order for webull: insufficient funds")
	require.True(t, ok)
	assert.Equal(t, KindBrokerError, ev.Kind)
	assert.Equal(t, "webull", ev.Broker)
}

func TestClassifyPlainChatter(t *testing.T) {
	_, ok := Classify("good morning everyone")
	assert.False(t, ok)
}
