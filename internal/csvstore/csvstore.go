// Package csvstore reads and writes per-symbol daily-bar CSV files, merging
// new bars with whatever is already on disk and persisting with a
// write-to-temp-then-rename sequence so a crash mid-write never leaves a
// corrupt or partial file behind.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
)

const header = "Date,Open,High,Low,Close,AdjClose,Volume"
const dateFormat = "20060102"

// ReadExisting parses the CSV at path, returning an empty slice (not an
// error) when the file does not exist.
func ReadExisting(path string) ([]bar.DailyBar, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	bars := make([]bar.DailyBar, 0, len(rows)-1)
	for _, row := range rows[1:] { // skip header
		if len(row) != 7 {
			continue
		}
		b, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse row in %s: %w", path, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseRow(row []string) (bar.DailyBar, error) {
	date, err := time.Parse(dateFormat, row[0])
	if err != nil {
		return bar.DailyBar{}, err
	}
	open, err := decimal.NewFromString(row[1])
	if err != nil {
		return bar.DailyBar{}, err
	}
	high, err := decimal.NewFromString(row[2])
	if err != nil {
		return bar.DailyBar{}, err
	}
	low, err := decimal.NewFromString(row[3])
	if err != nil {
		return bar.DailyBar{}, err
	}
	closePrice, err := decimal.NewFromString(row[4])
	if err != nil {
		return bar.DailyBar{}, err
	}
	adjClose, err := decimal.NewFromString(row[5])
	if err != nil {
		return bar.DailyBar{}, err
	}
	volume, err := strconv.ParseInt(row[6], 10, 64)
	if err != nil {
		return bar.DailyBar{}, err
	}
	return bar.DailyBar{
		Date: date, Open: open, High: high, Low: low, Close: closePrice, AdjClose: adjClose, Volume: volume,
	}, nil
}

// MergeAndWrite reads whatever is already at path, unions it with newBars by
// date (new bars overwrite old on a date conflict), sorts the result
// descending by date, and writes it back atomically.
func MergeAndWrite(path string, newBars []bar.DailyBar) error {
	existing, err := ReadExisting(path)
	if err != nil {
		return err
	}

	merged := mergeByDate(existing, newBars)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.After(merged[j].Date) })

	return writeAtomic(path, merged)
}

func mergeByDate(existing, next []bar.DailyBar) []bar.DailyBar {
	byDate := make(map[int64]bar.DailyBar, len(existing)+len(next))
	for _, b := range existing {
		byDate[b.Date.Unix()] = b
	}
	for _, b := range next {
		byDate[b.Date.Unix()] = b
	}
	out := make([]bar.DailyBar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	return out
}

// WriteEmpty creates a header-only file, used to record a delisted symbol's
// negative result without losing the fact that it was attempted.
func WriteEmpty(path string) error {
	return writeAtomic(path, nil)
}

// writeAtomic writes bars to a temp file in the same directory as path,
// fsyncs it, renames it into place, then fsyncs the parent directory — the
// write-then-rename sequence from the component contract, grounded on the
// teacher's JSON storage layer.
func writeAtomic(path string, bars []bar.DailyBar) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".csvstore-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := writeCSV(tmp, bars); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	cleanup = false

	if err := syncParentDir(dir); err != nil {
		return fmt.Errorf("failed to fsync output directory: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, bars []bar.DailyBar) error {
	if _, err := io.WriteString(w, header+"\n"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	for _, b := range bars {
		record := []string{
			b.Date.Format(dateFormat),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.AdjClose.String(),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func syncParentDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
