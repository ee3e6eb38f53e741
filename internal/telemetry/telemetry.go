// Package telemetry implements the metric collector (C10): periodic
// snapshots of queue/duration/frequency metrics, kept as an in-memory
// history and exported as Prometheus gauges, with a JSON run-report
// flushed on shutdown. Grounded on
// original_source/imitation_modelling/metric_collector.py
// (MetricCollector.collect) and repo.py's TaskRunMetricProvider, whose
// get_*_count/get_*_frequency methods map directly onto internal/store's
// CountWithStatus/WindowCount/AverageDurationInStatus.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store"
)

// Snapshot mirrors MetricCollector.collect's dict, renamed to Go field
// conventions.
type Snapshot struct {
	Time                  time.Time
	SecondsSinceStart     int64
	ExecutionCount        int64
	QueuedCount           int64
	WaitingCount          int64
	QueuedAvgDuration     time.Duration
	ExecutionAvgDuration  time.Duration
	ReturnFrequency       float64
	SucceedFrequency      float64
	Completed             int64
	Total                 int64
}

// Collector snapshots run-store state every Period and appends each
// snapshot to an in-memory history that is never trimmed, the same two-part role (metrics_history + Prometheus
// gauges) as the source's MetricCollector plus the rest of the pack's
// prometheus/client_golang wiring (enrich from the rest of the pack, per
// SPEC_FULL.md §4.10).
type Collector struct {
	runs   store.RunStore
	period time.Duration
	start  time.Time
	now    func() time.Time

	mu      sync.Mutex
	history []Snapshot

	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge

	// RunName labels the JSON run-report file, mirroring
	// SimulationParams.run_name.
	RunName string
	// OutputDir is where the run-report is written on Flush.
	OutputDir string
}

func New(runs store.RunStore, period time.Duration, registry *prometheus.Registry, runName, outputDir string) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		runs:      runs,
		period:    period,
		now:       time.Now,
		registry:  registry,
		RunName:   runName,
		OutputDir: outputDir,
	}
	c.start = c.now()
	c.gauges = c.registerGauges()
	return c
}

func (c *Collector) registerGauges() map[string]prometheus.Gauge {
	names := []string{
		"execution_count", "queued_count", "waiting_count",
		"queued_avg_duration_seconds", "execution_avg_duration_seconds",
		"return_frequency", "succeed_frequency", "completed_total", "total",
	}
	gauges := make(map[string]prometheus.Gauge, len(names))
	for _, name := range names {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "potok",
			Subsystem: "scheduler",
			Name:      name,
		})
		c.registry.MustRegister(g)
		gauges[name] = g
	}
	return gauges
}

// Registry exposes the Prometheus registry for an HTTP /metrics handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Collect takes one Snapshot and appends it to history, updating the
// Prometheus gauges in lockstep.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	now := c.now()
	since := now.Add(-c.period)

	execCount, err := c.runs.CountWithStatus(ctx, domain.RunExecution)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: execution count: %w", err)
	}
	queuedCount, err := c.runs.CountWithStatus(ctx, domain.RunQueued)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: queued count: %w", err)
	}
	waiting, err := c.runs.CountWithStatus(ctx, domain.RunWaiting)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: waiting count: %w", err)
	}
	interrupted, err := c.runs.CountWithStatus(ctx, domain.RunInterrupted)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: interrupted count: %w", err)
	}
	tempError, err := c.runs.CountWithStatus(ctx, domain.RunTempError)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: temp_error count: %w", err)
	}
	succeed, err := c.runs.CountWithStatus(ctx, domain.RunSucceed)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: succeed count: %w", err)
	}
	errored, err := c.runs.CountWithStatus(ctx, domain.RunError)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: error count: %w", err)
	}

	queuedAvg, err := c.runs.AverageDurationInStatus(ctx, domain.RunQueued, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: queued avg duration: %w", err)
	}
	executionAvg, err := c.runs.AverageDurationInStatus(ctx, domain.RunExecution, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: execution avg duration: %w", err)
	}

	returned, err := c.runs.WindowCount(ctx, domain.RunInterrupted, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: return window count: %w", err)
	}
	returnedTemp, err := c.runs.WindowCount(ctx, domain.RunTempError, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: return window count: %w", err)
	}
	succeedWindow, err := c.runs.WindowCount(ctx, domain.RunSucceed, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: succeed window count: %w", err)
	}
	errorWindow, err := c.runs.WindowCount(ctx, domain.RunError, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: error window count: %w", err)
	}

	periodSeconds := c.period.Seconds()
	returnFrequency, succeedFrequency := 0.0, 0.0
	if periodSeconds > 0 {
		returnFrequency = float64(returned+returnedTemp) / periodSeconds
		succeedFrequency = float64(succeedWindow+errorWindow) / periodSeconds
	}

	snap := Snapshot{
		Time:                 now,
		SecondsSinceStart:    int64(now.Sub(c.start).Seconds()),
		ExecutionCount:       execCount,
		QueuedCount:          queuedCount,
		WaitingCount:         waiting + interrupted + tempError,
		QueuedAvgDuration:    queuedAvg,
		ExecutionAvgDuration: executionAvg,
		ReturnFrequency:      returnFrequency,
		SucceedFrequency:     succeedFrequency,
		Completed:            succeed + errored,
		Total:                execCount + queuedCount + waiting + interrupted + tempError + succeed + errored,
	}

	c.mu.Lock()
	c.history = append(c.history, snap)
	c.mu.Unlock()

	c.gauges["execution_count"].Set(float64(snap.ExecutionCount))
	c.gauges["queued_count"].Set(float64(snap.QueuedCount))
	c.gauges["waiting_count"].Set(float64(snap.WaitingCount))
	c.gauges["queued_avg_duration_seconds"].Set(snap.QueuedAvgDuration.Seconds())
	c.gauges["execution_avg_duration_seconds"].Set(snap.ExecutionAvgDuration.Seconds())
	c.gauges["return_frequency"].Set(snap.ReturnFrequency)
	c.gauges["succeed_frequency"].Set(snap.SucceedFrequency)
	c.gauges["completed_total"].Set(float64(snap.Completed))
	c.gauges["total"].Set(float64(snap.Total))

	return snap, nil
}

// History returns a copy of every Snapshot collected so far.
func (c *Collector) History() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snapshot, len(c.history))
	copy(out, c.history)
	return out
}

type runReport struct {
	History  []Snapshot    `json:"history"`
	Duration time.Duration `json:"duration"`
	RunName  string        `json:"run_name"`
}

// Flush writes the accumulated history to a JSON run-report, mirroring
// MetricCollector.save. Called once on clean shutdown.
func (c *Collector) Flush() error {
	c.mu.Lock()
	history := make([]Snapshot, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("telemetry: create output dir: %w", err)
	}

	report := runReport{History: history, Duration: c.now().Sub(c.start), RunName: c.RunName}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("telemetry: marshal run report: %w", err)
	}

	path := filepath.Join(c.OutputDir, c.RunName+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("telemetry: write run report: %w", err)
	}
	return nil
}
