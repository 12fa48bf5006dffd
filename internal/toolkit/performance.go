package toolkit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/port/database"
)

// Sample summarizes repeated timed executions of one SQL statement.
// Valid only for the run that produced it; never reused across SQL texts.
type Sample struct {
	Runs     int       `json:"runs"`
	TimesMS  []float64 `json:"times_ms"`
	MinMS    float64   `json:"min_ms"`
	MaxMS    float64   `json:"max_ms"`
	AvgMS    float64   `json:"avg_ms"`
	MedianMS float64   `json:"median_ms"`
}

// measure executes the statement sequentially runs times on the session,
// recording wall-clock duration per run. No warm-up run. A failing run
// aborts the whole measurement; partial timings are never reported.
func measure(ctx context.Context, session database.Session, sql string, runs int) (*Sample, error) {
	times := make([]float64, 0, runs)
	for i := 0; i < runs; i++ {
		start := time.Now()
		if _, err := session.Execute(ctx, sql); err != nil {
			return nil, fmt.Errorf("run %d of %d: %w", i+1, runs, err)
		}
		times = append(times, float64(time.Since(start).Microseconds())/1000.0)
	}
	return summarize(times), nil
}

// summarize derives min, max, mean, and median from the raw timings.
// Median is the value at index len/2 of the ascending-sorted sample; for
// even counts this is one of the two middle values, not their average.
func summarize(times []float64) *Sample {
	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	min, max := sorted[0], sorted[len(sorted)-1]
	var sum float64
	for _, t := range sorted {
		sum += t
	}

	return &Sample{
		Runs:     len(times),
		TimesMS:  times,
		MinMS:    min,
		MaxMS:    max,
		AvgMS:    sum / float64(len(sorted)),
		MedianMS: sorted[len(sorted)/2],
	}
}
