package csvstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
)

func sampleBar(y int, m time.Month, d int, close string) bar.DailyBar {
	c, _ := decimal.NewFromString(close)
	return bar.DailyBar{
		Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Open: c, High: c, Low: c, Close: c, AdjClose: c, Volume: 1000,
	}
}

func TestReadExistingMissingFile(t *testing.T) {
	bars, err := ReadExisting(filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestMergeAndWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AAPL.csv")
	bars := []bar.DailyBar{
		sampleBar(2024, 1, 2, "185.5"),
		sampleBar(2024, 1, 3, "186.1"),
	}
	require.NoError(t, MergeAndWrite(path, bars))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), header)

	roundTripped, err := ReadExisting(path)
	require.NoError(t, err)
	require.Len(t, roundTripped, 2)
	// Descending by date.
	assert.True(t, roundTripped[0].Date.After(roundTripped[1].Date))
}

func TestMergeAndWriteOverwritesOnDateConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AAPL.csv")
	require.NoError(t, MergeAndWrite(path, []bar.DailyBar{sampleBar(2024, 1, 2, "100")}))
	require.NoError(t, MergeAndWrite(path, []bar.DailyBar{sampleBar(2024, 1, 2, "200")}))

	bars, err := ReadExisting(path)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("200")))
}

func TestMergeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AAPL.csv")
	newBars := []bar.DailyBar{sampleBar(2024, 1, 2, "100"), sampleBar(2024, 1, 3, "101")}
	require.NoError(t, MergeAndWrite(path, newBars))
	first, err := ReadExisting(path)
	require.NoError(t, err)

	require.NoError(t, MergeAndWrite(path, newBars))
	second, err := ReadExisting(path)
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second))
}

func TestWriteEmptyCreatesHeaderOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "XYZQ.csv")
	require.NoError(t, WriteEmpty(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, header+"\n", string(content))

	bars, err := ReadExisting(path)
	require.NoError(t, err)
	assert.Empty(t, bars)
}
