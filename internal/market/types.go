package market

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV candle. Time marks the bar's open.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Body returns the open/close extremes of the bar.
func (b Bar) Body() (high, low float64) {
	if b.Open >= b.Close {
		return b.Open, b.Close
	}
	return b.Close, b.Open
}

// Range returns high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Quote is a top-of-book bid/ask snapshot.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Timeframe identifies a bar interval.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1Min"
	Timeframe5Min  Timeframe = "5Min"
	Timeframe15Min Timeframe = "15Min"
	Timeframe1Hour Timeframe = "1Hour"
	Timeframe1Day  Timeframe = "1Day"
)

var timeframeSeconds = map[Timeframe]int{
	Timeframe1Min:  60,
	Timeframe5Min:  300,
	Timeframe15Min: 900,
	Timeframe1Hour: 3600,
	Timeframe1Day:  86400,
}

// Default fetch depth per timeframe, sized to cover one trading day
// of 1Min bars down to a month of dailies.
var timeframeBarLimit = map[Timeframe]int{
	Timeframe1Min:  390,
	Timeframe5Min:  200,
	Timeframe15Min: 100,
	Timeframe1Hour: 50,
	Timeframe1Day:  30,
}

// Duration returns the bar interval as a time.Duration.
func (tf Timeframe) Duration() (time.Duration, error) {
	secs, ok := timeframeSeconds[tf]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
	return time.Duration(secs) * time.Second, nil
}

// BarLimit returns the default number of bars to fetch for this timeframe.
func (tf Timeframe) BarLimit() int {
	if n, ok := timeframeBarLimit[tf]; ok {
		return n
	}
	return 100
}

// Valid reports whether the timeframe is one of the supported intervals.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeSeconds[tf]
	return ok
}

// DayKey maps an instant to its calendar date in the given location,
// the key under which per-day session state is held.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
