package candles

import (
	"fmt"
)

// Resample aggregates candles from a finer cadence into targetMs
// buckets aligned to the epoch: open from the first bar, close from the
// last, high/low from the extremes, volume summed. Input must be sorted
// by timestamp; targetMs must be a multiple of the source cadence.
// Partial trailing buckets are emitted as-is.
func Resample(cs []Candle, sourceMs, targetMs int64) ([]Candle, error) {
	if sourceMs <= 0 || targetMs <= 0 {
		return nil, fmt.Errorf("cadences must be positive")
	}
	if targetMs%sourceMs != 0 {
		return nil, fmt.Errorf("target cadence %dms is not a multiple of source %dms", targetMs, sourceMs)
	}
	if targetMs == sourceMs || len(cs) == 0 {
		return cs, nil
	}

	out := make([]Candle, 0, len(cs)/int(targetMs/sourceMs)+1)
	var cur Candle
	var curBucket int64 = -1

	for _, c := range cs {
		bucket := c.Timestamp - c.Timestamp%targetMs
		if bucket != curBucket {
			if curBucket >= 0 {
				out = append(out, cur)
			}
			curBucket = bucket
			cur = Candle{
				Timestamp: bucket,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			continue
		}
		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume = cur.Volume.Add(c.Volume)
	}
	out = append(out, cur)
	return out, nil
}
