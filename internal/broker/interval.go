package broker

import (
	"fmt"
	"time"
)

// Interval is the candle timeframe. The polling robot also derives its
// cycle cadence from it.
type Interval string

const (
	Interval1Min  Interval = "1min"
	Interval5Min  Interval = "5min"
	Interval15Min Interval = "15min"
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
)

// Duration converts the interval to its wall-clock length.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1Min:
		return time.Minute, nil
	case Interval5Min:
		return 5 * time.Minute, nil
	case Interval15Min:
		return 15 * time.Minute, nil
	case IntervalHour:
		return time.Hour, nil
	case IntervalDay:
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid candle interval %q", string(i))
	}
}

// TruncateTime drops sub-interval precision from a bar timestamp so
// duplicate and partial bars from the stream compare equal. Minute
// granularity for intervals of a minute and above, second below.
func (i Interval) TruncateTime(t time.Time) time.Time {
	d, err := i.Duration()
	if err == nil && d >= time.Minute {
		return t.Truncate(time.Minute)
	}
	return t.Truncate(time.Second)
}
