package monitor

import "strings"

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders data as one row of width block characters. Values in
// 0..100 are scaled against that fixed range; anything else is scaled
// against its own min and max.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo >= 0 && hi <= 100 {
		lo, hi = 0, 100
	}

	var b strings.Builder
	top := len(sparkBlocks) - 1
	for _, v := range resample(data, width) {
		level := 0.5
		if hi > lo {
			level = (v - lo) / (hi - lo)
		}
		idx := min(max(int(level*float64(top)), 0), top)
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

// resample stretches or squeezes data to n points. Squeezing keeps the
// maximum of each bucket so spikes survive; stretching repeats the nearest
// earlier point.
func resample(data []float64, n int) []float64 {
	if len(data) == n {
		return data
	}
	out := make([]float64, n)
	if len(data) > n {
		bucket := float64(len(data)) / float64(n)
		for i := range out {
			start := int(float64(i) * bucket)
			end := min(max(int(float64(i+1)*bucket), start+1), len(data))
			peak := data[start]
			for _, v := range data[start:end] {
				peak = max(peak, v)
			}
			out[i] = peak
		}
		return out
	}
	for i := range out {
		out[i] = data[i*len(data)/n]
	}
	return out
}
