package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptimizeCommand(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	earliest := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	cmd, err := ParseOptimizeCommand("/optimize@PortfolioBot aapl, goog MSFT 2y 0.3", now, earliest)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, cmd.Tickers)
	assert.Equal(t, "2y", cmd.Window)
	require.NotNil(t, cmd.RiskAversion)
	assert.Equal(t, 0.3, *cmd.RiskAversion)
	assert.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), cmd.Start)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), cmd.End)

	cmd, err = ParseOptimizeCommand("/optimize SPY,TLT", now, earliest)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "TLT"}, cmd.Tickers)
	assert.Equal(t, "1y", cmd.Window)
	assert.Nil(t, cmd.RiskAversion)

	cmd, err = ParseOptimizeCommand("/optimize spy spy qqq max", now, earliest)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "QQQ"}, cmd.Tickers)
	assert.Equal(t, earliest, cmd.Start)
}

func TestParseOptimizeCommand_Errors(t *testing.T) {
	now := time.Now()
	earliest := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"/optimize", "/optimize 1y", "/optimize AAPL 1.5", "/optimize AAPL -0.2"} {
		_, err := ParseOptimizeCommand(in, now, earliest)
		assert.Error(t, err, in)
	}
}
