package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"session-trader/internal/market"
)

// Accepted timestamp layouts for the first CSV column. Unix epoch
// seconds and milliseconds are also accepted.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadBarsCSV reads an OHLCV bar series from a CSV file. The expected
// columns are time, open, high, low, close and an optional volume; a
// header row is detected and skipped. Bars come back sorted ascending
// by time.
func LoadBarsCSV(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return bars, nil
}

// ReadBars parses CSV bar rows from r.
func ReadBars(r io.Reader) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var bars []market.Bar
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		if len(record) < 5 {
			return nil, fmt.Errorf("line %d: expected at least 5 columns, got %d", line, len(record))
		}
		if line == 1 && isHeader(record) {
			continue
		}

		bar, err := parseBar(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseBar(record []string) (market.Bar, error) {
	t, err := parseTime(record[0])
	if err != nil {
		return market.Bar{}, err
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}

	var volume float64
	if len(record) > 5 && strings.TrimSpace(record[5]) != "" {
		volume, err = strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("column 6: %w", err)
		}
	}

	bar := market.Bar{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: volume,
	}
	if bar.High < bar.Low {
		return market.Bar{}, fmt.Errorf("high %.4f below low %.4f", bar.High, bar.Low)
	}
	return bar, nil
}

func parseTime(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	if epoch, err := strconv.ParseInt(field, 10, 64); err == nil {
		if epoch > 1e12 {
			return time.UnixMilli(epoch).UTC(), nil
		}
		return time.Unix(epoch, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, field); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", field)
}

func isHeader(record []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	return err != nil
}
