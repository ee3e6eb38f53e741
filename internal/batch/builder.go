package batch

import (
	"fmt"
	"time"

	"github.com/MatweyL/Potok/internal/store"
)

// Kind names a batch provider variant, mirroring TaskBatchProviderType.
type Kind string

const (
	KindConstant Kind = "constant"
	KindAIMD     Kind = "aimd"
	KindPID      Kind = "pid"
)

// Config configures whichever Kind is selected; fields irrelevant to the
// chosen Kind are ignored. Grounded on TaskBatchProviderBuilder.build's
// params dict, flattened into one struct per Go config-struct convention
// (internal/config).
type Config struct {
	Kind Kind

	ConstantSize int

	AIMDDelta   int
	AIMDBeta    float64
	AIMDBase    float64
	AIMDMin     float64
	AIMDMax     float64

	PIDTargetUtilization float64
	PIDTickInterval      time.Duration
	PIDKp, PIDKi, PIDKd  float64

	MetricsPeriod   time.Duration
	QueueCapacity   int64
}

// Build constructs the Provider named by cfg.Kind, wiring it to runs for
// both waiting-run selection and (for AIMD/PID) metrics.
func Build(cfg Config, runs store.RunStore) (Provider, error) {
	selector := NewStoreSelector(runs)

	switch cfg.Kind {
	case KindConstant:
		return NewConstantProvider(selector, cfg.ConstantSize), nil

	case KindAIMD:
		metrics := NewStoreMetricsSource(runs, cfg.MetricsPeriod, cfg.QueueCapacity)
		return NewAIMDProvider(selector, metrics, cfg.AIMDDelta, cfg.AIMDBeta, cfg.AIMDBase, cfg.AIMDMin, cfg.AIMDMax), nil

	case KindPID:
		metrics := NewStoreMetricsSource(runs, cfg.MetricsPeriod, cfg.QueueCapacity)
		controller := NewAdaptiveBatchController(cfg.PIDTargetUtilization,
			PIDParams{Kp: cfg.PIDKp, Ki: cfg.PIDKi, Kd: cfg.PIDKd},
			StrategicParams{})
		tick := cfg.PIDTickInterval.Seconds()
		return NewPIDProvider(selector, metrics, controller, tick), nil

	default:
		return nil, fmt.Errorf("batch: unknown provider kind %q", cfg.Kind)
	}
}
