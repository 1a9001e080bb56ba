package chaos

import (
	"context"
	"errors"
	"sync"
	"time"

	"coffeemaker/internal/platform/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSteadyStateInvalid aborts an experiment before any fault is injected.
var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// Experiment is a hypothesis about the system checked by injecting a fault and
// watching metrics.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	// Probes are sampled during observation only.
	Probes     []Metric
	Method     []Action
	Rollback   []Action
	Validation []Assertion
	Duration   time.Duration
}

// Metric is a measurable property of the running system.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Action is a fault injection or a recovery step.
type Action struct {
	Type       string
	Target     string
	Parameters map[string]interface{}
	Execute    func(context.Context) error
}

// Assertion checks the last observed value of a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

type ExperimentResult struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine runs experiments one at a time.
type Engine struct {
	tracer         trace.Tracer
	log            *logger.Logger
	sampleInterval time.Duration
	pause          time.Duration

	mu          sync.Mutex
	experiments []Experiment
	results     []ExperimentResult
}

type Option func(*Engine)

// WithSampleInterval sets how often metrics are sampled while observing. Default 1s.
func WithSampleInterval(d time.Duration) Option {
	return func(e *Engine) { e.sampleInterval = d }
}

// WithPause sets the wait between game day experiments. Default 30s.
func WithPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

func NewEngine(log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		tracer:         otel.Tracer("coffeemaker/chaos"),
		log:            log,
		sampleInterval: time.Second,
		pause:          30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns a copy of the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Experiment, len(e.experiments))
	copy(out, e.experiments)
	return out
}

// Results returns a copy of every completed run.
func (e *Engine) Results() []ExperimentResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExperimentResult, len(e.results))
	copy(out, e.results)
	return out
}

// RunExperiment validates the steady state, injects the method, observes the metrics
// for the experiment's duration, rolls back and evaluates the assertions.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*ExperimentResult, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &ExperimentResult{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	span.AddEvent("validating_steady_state")
	if valid, violations := e.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.FailedAssertions = validateAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

func (r *ExperimentResult) recordError(component string, err error) {
	r.ErrorEvents = append(r.ErrorEvents, ErrorEvent{
		Timestamp: time.Now(),
		Error:     err.Error(),
		Component: component,
	})
}

// observe samples every metric at the sample interval until the duration ends. One
// final sample is always taken so assertions have a value to check.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *ExperimentResult) {
	metrics := append(append([]Metric{}, exp.SteadyState...), exp.Probes...)

	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(e.sampleInterval)
	defer ticker.Stop()

	var recoveryStart time.Time
	recovered := false
	sample := func() {
		for _, metric := range metrics {
			value, err := metric.Query(ctx)
			if err != nil {
				result.recordError(metric.Name, err)
				continue
			}
			now := time.Now()
			result.Observations[metric.Name] = append(result.Observations[metric.Name], DataPoint{Timestamp: now, Value: value})

			if !metric.Threshold.Holds(value) {
				if recoveryStart.IsZero() {
					recoveryStart = now
				}
				result.Violations = append(result.Violations, MetricViolation{
					MetricName: metric.Name,
					Expected:   metric.Threshold.Value,
					Actual:     value,
					Timestamp:  now,
				})
			} else if !recoveryStart.IsZero() && !recovered {
				mttr := now.Sub(recoveryStart)
				result.MTTR = &mttr
				recovered = true
			}
		}
	}

	for {
		select {
		case <-observationCtx.Done():
			sample()
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	var violations []MetricViolation
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			e.log.Warn("steady state query failed", "metric", metric.Name, "error", err)
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     -1,
				Timestamp:  time.Now(),
			})
			continue
		}
		if !metric.Threshold.Holds(value) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return len(violations) == 0, violations
}

func validateAssertions(assertions []Assertion, result *ExperimentResult) []string {
	var failed []string
	for _, assertion := range assertions {
		observations := result.Observations[assertion.Metric]
		if len(observations) == 0 {
			failed = append(failed, assertion.Message+" (no observations)")
			continue
		}
		if !assertion.Condition(observations[len(observations)-1].Value) {
			failed = append(failed, assertion.Message)
		}
	}
	return failed
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
}

// ExecuteGameDay runs every scenario in order and returns the results of those that ran.
// It stops early when ctx is cancelled.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) ([]ExperimentResult, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	e.log.Info("starting game day", "name", gameDay.Name, "date", gameDay.Date.Format(time.RFC3339), "experiments", len(gameDay.Scenarios))

	var results []ExperimentResult
	for i, scenario := range gameDay.Scenarios {
		log := e.log.With("experiment", scenario.Name, "index", i+1, "of", len(gameDay.Scenarios))
		log.Info("running experiment", "hypothesis", scenario.Hypothesis)

		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			log.Error("experiment failed", "error", err)
		} else {
			e.report(log, result)
			results = append(results, *result)
		}

		if i == len(gameDay.Scenarios)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-time.After(e.pause):
		}
	}
	return results, nil
}

func (e *Engine) report(log *logger.Logger, result *ExperimentResult) {
	if result.HypothesisHeld {
		log.Info("hypothesis held", "duration", result.Duration)
	} else {
		log.Warn("hypothesis violated", "duration", result.Duration, "failed_assertions", result.FailedAssertions)
	}
	for _, v := range result.Violations {
		log.Warn("violation", "metric", v.MetricName, "expected", v.Expected, "actual", v.Actual)
	}
	if result.MTTR != nil {
		log.Info("recovered", "mttr", *result.MTTR)
	}
}
