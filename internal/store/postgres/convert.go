package postgres

import "time"

func durationSeconds(d time.Duration) float64 { return d.Seconds() }

func secondsToDuration(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func durationsToSeconds(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.Seconds()
	}
	return out
}

func secondsToDurations(ss []float64) []time.Duration {
	out := make([]time.Duration, len(ss))
	for i, s := range ss {
		out[i] = secondsToDuration(s)
	}
	return out
}
