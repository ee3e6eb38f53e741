package batch

import (
	"context"
	"math"
)

// Phase mirrors ControllerPhase: the two-tier controller's lifecycle.
type Phase string

const (
	PhaseColdStart   Phase = "cold_start"
	PhaseCalibration Phase = "calibration"
	PhaseOperational Phase = "operational"
)

// ColdStartProber implements the exponential-probing startup phase:
// grounded on ColdStartProber. It doubles the batch size each tick as long
// as latency and error rate stay within bounds of the first observed
// baseline, then calibrates a steady-state [min, max] range from the last
// size it tried.
type ColdStartProber struct {
	n                   int
	MaxErrorRate        float64
	MaxLatencyMultiplier float64
	baselineLatency     float64
	haveBaseline        bool
	calibrated          bool
	rangeMin, rangeMax  int
}

func NewColdStartProber(initialBatch int) *ColdStartProber {
	return &ColdStartProber{
		n:                    initialBatch,
		MaxErrorRate:         0.2,
		MaxLatencyMultiplier: 2.0,
	}
}

func (c *ColdStartProber) NextBatchSize(m Metrics) int {
	if c.calibrated {
		return c.rangeMax
	}

	latencySeconds := m.AvgLatency.Seconds()
	if !c.haveBaseline {
		c.baselineLatency = latencySeconds
		c.haveBaseline = true
		return c.n
	}

	latencyOK := latencySeconds < c.baselineLatency*c.MaxLatencyMultiplier
	errorsOK := m.ErrorRate < c.MaxErrorRate

	if latencyOK && errorsOK && m.SuccessCount > 0 {
		c.n *= 2
		return c.n
	}

	c.rangeMin = maxInt(10, c.n/4)
	c.rangeMax = c.n / 2
	c.calibrated = true
	return c.rangeMax
}

func (c *ColdStartProber) IsReady() bool       { return c.calibrated }
func (c *ColdStartProber) Range() (int, int)   { return c.rangeMin, c.rangeMax }

// pidInfo is the diagnostic output of one TacticalPIDController.compute call.
type pidInfo struct {
	error          float64
	u              float64
	integral       float64
	derivative     float64
	saturated      bool
	saturationType string // "max", "min", or ""
}

// TacticalPIDController holds the queue-utilization setpoint at Target by
// adjusting the next batch size around a base value. Grounded on
// TacticalPIDController: standard PID with anti-windup clamping on the
// integral term and a +/-0.5 clamp on the control signal before it's
// applied multiplicatively to Bbase.
type TacticalPIDController struct {
	Kp, Ki, Kd      float64
	Target          float64
	AntiWindupLimit float64

	integral  float64
	prevError float64

	Bmin, Bmax int
	Bbase      float64
}

func NewTacticalPIDController(kp, ki, kd, targetUtilization float64) *TacticalPIDController {
	c := &TacticalPIDController{
		Kp: kp, Ki: ki, Kd: kd,
		Target:          targetUtilization,
		AntiWindupLimit: 1.0,
		Bmin:            100,
		Bmax:            1000,
	}
	c.Bbase = float64(c.Bmin+c.Bmax) / 2
	return c
}

// SetBoundaries is invoked by the strategic level to rescale the PID's
// working range.
func (c *TacticalPIDController) SetBoundaries(bmin, bmax int) {
	c.Bmin = maxInt(10, bmin)
	c.Bmax = maxInt(c.Bmin+10, bmax)
	c.Bbase = float64(c.Bmin+c.Bmax) / 2
}

func (c *TacticalPIDController) compute(utilization, dt float64) (int, pidInfo) {
	errVal := c.Target - utilization

	c.integral += errVal * dt
	c.integral = clampFloat(c.integral, -c.AntiWindupLimit, c.AntiWindupLimit)

	derivative := 0.0
	if dt > 0 {
		derivative = (errVal - c.prevError) / dt
	}
	c.prevError = errVal

	u := c.Kp*errVal + c.Ki*c.integral + c.Kd*derivative
	u = clampFloat(u, -0.5, 0.5)

	batchSize := int(clampFloat(c.Bbase*(1+u), float64(c.Bmin), float64(c.Bmax)))

	saturationType := ""
	if batchSize == c.Bmax {
		saturationType = "max"
	} else if batchSize == c.Bmin {
		saturationType = "min"
	}

	return batchSize, pidInfo{
		error:          errVal,
		u:              u,
		integral:       c.integral,
		derivative:     derivative,
		saturated:      saturationType != "",
		saturationType: saturationType,
	}
}

func (c *TacticalPIDController) Reset() {
	c.integral = 0
	c.prevError = 0
}

// StrategicBoundaryAdapter watches the tactical controller's recent
// behavior and periodically widens or narrows its [Bmin, Bmax] range.
// Grounded on StrategicBoundaryAdapter, including the four rules in the
// priority order the Python source checks them (capacity growth, error
// degradation, underutilization, emergency).
type StrategicBoundaryAdapter struct {
	Period               int
	StabilityThreshold   float64
	ErrorRateThreshold   float64

	throughputHistory    []float64
	errorRateHistory     []float64
	saturationHistory    []bool
	saturationTypeHistory []string

	batchCounter int
	pid          *TacticalPIDController
}

func NewStrategicBoundaryAdapter(period int, stabilityThreshold, errorRateThreshold float64) *StrategicBoundaryAdapter {
	return &StrategicBoundaryAdapter{
		Period:             period,
		StabilityThreshold: stabilityThreshold,
		ErrorRateThreshold: errorRateThreshold,
	}
}

func (a *StrategicBoundaryAdapter) update(throughput, errorRate float64, pidSaturated bool, saturationType string) {
	a.throughputHistory = append(a.throughputHistory, throughput)
	a.errorRateHistory = append(a.errorRateHistory, errorRate)
	a.saturationHistory = append(a.saturationHistory, pidSaturated)
	a.saturationTypeHistory = append(a.saturationTypeHistory, saturationType)

	a.batchCounter++
	if a.batchCounter >= a.Period {
		a.adaptBoundaries()
		a.batchCounter = 0
	}
}

func (a *StrategicBoundaryAdapter) adaptBoundaries() {
	if a.pid == nil {
		return
	}

	window := a.Period
	if len(a.throughputHistory) < window {
		window = len(a.throughputHistory)
	}
	if window < 3 {
		return
	}

	recentThroughput := a.throughputHistory[len(a.throughputHistory)-window:]
	recentErrors := a.errorRateHistory[len(a.errorRateHistory)-window:]
	recentSatTypes := a.saturationTypeHistory[len(a.saturationTypeHistory)-window:]

	throughputMean, throughputStd := meanStd(recentThroughput)
	throughputCV := 0.0
	if throughputMean > 0 {
		throughputCV = throughputStd / throughputMean
	}
	errorMean, _ := meanStd(recentErrors)

	maxSaturationCount := countEqual(recentSatTypes, "max")
	minSaturationCount := countEqual(recentSatTypes, "min")
	isStable := throughputCV < a.StabilityThreshold

	errorTrend := linearTrend(recentErrors)
	throughputTrend := linearTrend(recentThroughput)

	pid := a.pid
	currentBmax := pid.Bmax
	currentBmin := pid.Bmin

	// Rule 1: capacity growth — stable, saturating high, low errors.
	if isStable && float64(maxSaturationCount) > float64(window)*0.7 && errorMean < a.ErrorRateThreshold {
		newBmax := int(float64(currentBmax) * 1.05)
		pid.SetBoundaries(currentBmin, newBmax)
		a.resetHistory()
		return
	}

	// Rule 2: degradation — rising errors, falling throughput.
	if errorTrend > 0.01 && throughputTrend < 0 {
		newBmax := int(float64(currentBmax) * 0.9)
		pid.SetBoundaries(currentBmin, newBmax)
		pid.Reset()
		a.resetHistory()
		return
	}

	// Rule 3: underutilization — saturating low.
	if float64(minSaturationCount) > float64(window)*0.7 {
		newBmax := int(float64(currentBmax) * 0.95)
		newBmin := int(float64(currentBmin) * 0.9)
		pid.SetBoundaries(newBmin, newBmax)
		a.resetHistory()
		return
	}

	// Rule 4: emergency — critical error rate.
	if errorMean > 0.5 {
		newBmax := int(float64(currentBmax) * 0.7)
		newBmin := int(float64(currentBmin) * 0.8)
		pid.SetBoundaries(newBmin, newBmax)
		pid.Reset()
		a.resetHistory()
		return
	}
}

func (a *StrategicBoundaryAdapter) resetHistory() {
	keep := func(s []float64) []float64 {
		if len(s) > 2 {
			return append([]float64(nil), s[len(s)-2:]...)
		}
		return s
	}
	keepBool := func(s []bool) []bool {
		if len(s) > 2 {
			return append([]bool(nil), s[len(s)-2:]...)
		}
		return s
	}
	keepStr := func(s []string) []string {
		if len(s) > 2 {
			return append([]string(nil), s[len(s)-2:]...)
		}
		return s
	}
	a.throughputHistory = keep(a.throughputHistory)
	a.errorRateHistory = keep(a.errorRateHistory)
	a.saturationHistory = keepBool(a.saturationHistory)
	a.saturationTypeHistory = keepStr(a.saturationTypeHistory)
	a.batchCounter = 0
}

// State mirrors ControllerState: one diagnostic snapshot per tick.
type State struct {
	Phase          Phase
	BatchSize      int
	Bmin, Bmax     int
	Utilization    float64
	PIDError       float64
	PIDSignal      float64
	QualityMetric  float64
	IsStable       bool
}

// AdaptiveBatchController is the two-tier controller: ColdStartProber for
// a safe ramp-up, then TacticalPIDController for fast utilization control,
// with StrategicBoundaryAdapter periodically re-tuning the PID's working
// range. Grounded on AdaptiveBatchController end to end.
type AdaptiveBatchController struct {
	phase     Phase
	coldStart *ColdStartProber
	tactical  *TacticalPIDController
	strategic *StrategicBoundaryAdapter

	iteration    int
	lastDt       float64
	stateHistory []State
}

// PIDParams and StrategicParams override the defaults the Python
// constructor accepts as optional dicts.
type PIDParams struct{ Kp, Ki, Kd float64 }
type StrategicParams struct {
	Period             int
	Stability          float64
	ErrorThreshold     float64
}

func NewAdaptiveBatchController(targetUtilization float64, pid PIDParams, strategic StrategicParams) *AdaptiveBatchController {
	if pid.Kp == 0 && pid.Ki == 0 && pid.Kd == 0 {
		pid = PIDParams{Kp: 0.5, Ki: 0.1, Kd: 0.2}
	}
	if strategic.Period == 0 {
		strategic.Period = 10
	}
	if strategic.Stability == 0 {
		strategic.Stability = 0.1
	}
	if strategic.ErrorThreshold == 0 {
		strategic.ErrorThreshold = 0.2
	}

	tactical := NewTacticalPIDController(pid.Kp, pid.Ki, pid.Kd, targetUtilization)
	strategicAdapter := NewStrategicBoundaryAdapter(strategic.Period, strategic.Stability, strategic.ErrorThreshold)
	strategicAdapter.pid = tactical

	return &AdaptiveBatchController{
		phase:     PhaseColdStart,
		coldStart: NewColdStartProber(10),
		tactical:  tactical,
		strategic: strategicAdapter,
	}
}

// NextBatchSize computes the next tick's batch size and its diagnostic
// State, given dt (the elapsed time since the previous call) and the
// current system Metrics.
func (c *AdaptiveBatchController) NextBatchSize(m Metrics, dt float64) (int, State) {
	c.iteration++

	if c.phase == PhaseColdStart {
		batchSize := c.coldStart.NextBatchSize(m)
		if c.coldStart.IsReady() {
			c.phase = PhaseCalibration
			bmin, bmax := c.coldStart.Range()
			c.tactical.SetBoundaries(bmin, bmax)
		}
		state := State{Phase: c.phase, BatchSize: batchSize}
		c.pushState(state)
		return batchSize, state
	}

	utilization := m.Utilization()
	batchSize, info := c.tactical.compute(utilization, dt)

	if c.phase == PhaseCalibration && c.iteration > 5 {
		c.phase = PhaseOperational
	}

	if c.phase == PhaseOperational {
		c.strategic.update(m.Throughput, m.ErrorRate, info.saturated, info.saturationType)
	}

	quality := c.qualityMetric(m)
	isStable := c.checkStability(10)

	state := State{
		Phase:         c.phase,
		BatchSize:     batchSize,
		Bmin:          c.tactical.Bmin,
		Bmax:          c.tactical.Bmax,
		Utilization:   utilization,
		PIDError:      info.error,
		PIDSignal:     info.u,
		QualityMetric: quality,
		IsStable:      isStable,
	}
	c.pushState(state)
	return batchSize, state
}

func (c *AdaptiveBatchController) pushState(s State) {
	c.stateHistory = append(c.stateHistory, s)
	if len(c.stateHistory) > 100 {
		c.stateHistory = c.stateHistory[len(c.stateHistory)-100:]
	}
}

// qualityMetric mirrors _compute_quality_metric's weighted blend of
// throughput, success rate, latency, and queue headroom, plus a quadratic
// penalty once error_rate exceeds 0.2.
func (c *AdaptiveBatchController) qualityMetric(m Metrics) float64 {
	window := c.stateHistory
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	maxThroughput := 1.0
	for _, s := range window {
		if s.QualityMetric > maxThroughput {
			maxThroughput = s.QualityMetric
		}
	}

	throughputNorm := math.Min(m.Throughput/math.Max(maxThroughput, 1.0), 1.0)
	successNorm := 1.0 - m.ErrorRate

	const baselineLatency = 1.0
	latencyNorm := math.Max(0, 1-m.AvgLatency.Seconds()/(baselineLatency*3))

	queueNorm := 1.0
	if m.QueueCapacity > 0 {
		queueNorm = 1 - math.Min(float64(m.QueueDepth)/float64(m.QueueCapacity), 1.0)
	}

	quality := 0.4*throughputNorm + 0.3*successNorm + 0.2*latencyNorm + 0.1*queueNorm

	if m.ErrorRate > 0.2 {
		factor := (1.0 - m.ErrorRate) / 0.8
		quality *= factor * factor
	}

	return clampFloat(quality, 0, 1)
}

// checkStability mirrors _check_stability: the coefficient of variation of
// recent quality scores must stay under 10%.
func (c *AdaptiveBatchController) checkStability(window int) bool {
	if len(c.stateHistory) < window {
		return false
	}
	recent := c.stateHistory[len(c.stateHistory)-window:]
	quality := make([]float64, len(recent))
	for i, s := range recent {
		quality[i] = s.QualityMetric
	}
	mean, std := meanStd(quality)
	if mean == 0 {
		return false
	}
	return std/mean < 0.1
}

// Diagnostics mirrors get_diagnostics: the latest controller state, as
// exposed by PIDProvider.Diagnostics.
func (c *AdaptiveBatchController) Diagnostics() map[string]interface{} {
	if len(c.stateHistory) == 0 {
		return map[string]interface{}{}
	}
	recent := c.stateHistory
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	last := recent[len(recent)-1]
	return map[string]interface{}{
		"phase":               string(c.phase),
		"iteration":           c.iteration,
		"current_batch_size":  last.BatchSize,
		"Bmin":                c.tactical.Bmin,
		"Bmax":                c.tactical.Bmax,
		"Bbase":               c.tactical.Bbase,
		"target_utilization":  c.tactical.Target,
		"is_stable":           last.IsStable,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func countEqual(values []string, target string) int {
	count := 0
	for _, v := range values {
		if v == target {
			count++
		}
	}
	return count
}

// linearTrend returns the slope of the least-squares line through
// (0, values[0]), (1, values[1]), ... — mirroring np.polyfit(range(n), y, 1)[0].
func linearTrend(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}

// PIDProvider wraps AdaptiveBatchController as a Provider, pulling the
// current Metrics snapshot each tick and tracking dt itself.
type PIDProvider struct {
	selector   Selector
	metrics    MetricsSource
	controller *AdaptiveBatchController

	lastState State
	tick       func() float64
}

func NewPIDProvider(selector Selector, metrics MetricsSource, controller *AdaptiveBatchController, tickInterval float64) *PIDProvider {
	return &PIDProvider{
		selector:   selector,
		metrics:    metrics,
		controller: controller,
		tick:       func() float64 { return tickInterval },
	}
}

func (p *PIDProvider) NextBatch(ctx context.Context) ([]string, error) {
	m, err := p.metrics.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	size, state := p.controller.NextBatchSize(m, p.tick())
	p.lastState = state
	return p.selector.SelectWaiting(ctx, size)
}

// LastState returns the diagnostic State from the most recent NextBatch call.
func (p *PIDProvider) LastState() State { return p.lastState }

// Diagnostics exposes the wrapped controller's diagnostics for telemetry.
func (p *PIDProvider) Diagnostics() map[string]interface{} { return p.controller.Diagnostics() }
