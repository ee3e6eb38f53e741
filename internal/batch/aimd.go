package batch

import "context"

// AIMDProvider grows the batch size linearly while the recent success
// frequency stays high, and shrinks it multiplicatively once it drops too
// far — grounded on AIMDTaskBatchProvider. The 0.85/0.7 thresholds and the
// additive-increase/multiplicative-decrease shape are carried over
// unchanged from the Python source.
type AIMDProvider struct {
	selector Selector
	metrics  MetricsSource

	Delta   int
	Beta    float64
	Min     float64
	Max     float64
	current float64
}

func NewAIMDProvider(selector Selector, metrics MetricsSource, delta int, beta float64, base, min, max float64) *AIMDProvider {
	return &AIMDProvider{
		selector: selector,
		metrics:  metrics,
		Delta:    delta,
		Beta:     beta,
		Min:      min,
		Max:      max,
		current:  base,
	}
}

func (p *AIMDProvider) NextBatch(ctx context.Context) ([]string, error) {
	m, err := p.metrics.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	total := m.SuccessCount + m.ErrorCount
	var successFrequency float64
	if total > 0 {
		successFrequency = float64(m.SuccessCount) / float64(total)
	}

	switch {
	case successFrequency >= 0.85:
		p.current += float64(p.Delta)
	case successFrequency < 0.7:
		p.current *= p.Beta
	}
	p.current = clip(p.current, p.Min, p.Max)

	return p.selector.SelectWaiting(ctx, int(p.current))
}

// clip mirrors the Python source's clip(): a zero bound is treated as
// "unset", not as an actual limit of zero.
func clip(value, min, max float64) float64 {
	if min == 0 && max == 0 {
		return value
	}
	if max != 0 && value > max {
		return max
	}
	if min != 0 && value < min {
		return min
	}
	return value
}
