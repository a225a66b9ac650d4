// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package inference

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
	"github.com/AdityaChandel11/predictive-pdm-platform/sensor"
)

const (
	// DefaultThreshold is the raw-value anomaly threshold used when no model
	// is loaded.
	DefaultThreshold = 2.5

	// DefaultMaxMagnitude is the largest valid reading: the ADC full-scale
	// voltage.
	DefaultMaxMagnitude = 5.0
)

type (
	// Engine classifies samples with a loaded model, or with a fixed
	// threshold when none is loaded. All scratch memory lives in a single
	// arena reserved at construction; Classify does not allocate.
	Engine struct {
		mu    sync.Mutex
		arena *Arena
		model *Model

		// Workspace bytes required by the loaded model, checked per pass.
		required int
		width    int

		threshold    float64
		maxMagnitude float64

		log log.Logger
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithArenaSize sets the reserved workspace in bytes.
func WithArenaSize(size int) Option {
	return func(e *Engine) {
		e.arena = NewArena(size)
	}
}

// WithThreshold sets the raw-value threshold used without a model.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// WithMaxMagnitude sets the largest valid sample value.
func WithMaxMagnitude(magnitude float64) Option {
	return func(e *Engine) {
		e.maxMagnitude = magnitude
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log.Wrap(logger)
	}
}

// New creates an engine with no model loaded.
func New(opts ...Option) *Engine {
	e := &Engine{
		threshold:    DefaultThreshold,
		maxMagnitude: DefaultMaxMagnitude,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.arena == nil {
		e.arena = NewArena(DefaultArenaSize)
	}
	return e
}

// Load creates an engine and loads the model into it. On error the returned
// engine is still usable in heuristic mode.
func Load(data []byte, opts ...Option) (*Engine, error) {
	e := New(opts...)
	return e, e.Load(data)
}

// Load parses the model and binds it to the engine. A model is loaded at most
// once; a failed load leaves the engine without a model.
func (e *Engine) Load(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model != nil {
		return &LoadError{Kind: AlreadyLoaded}
	}

	m, err := ParseModel(data)
	if err != nil {
		return err
	}

	required := m.Workspace()
	if !e.arena.Fits(required) {
		return &LoadError{
			Kind:     ArenaTooSmall,
			Required: required,
			Capacity: e.arena.Cap(),
		}
	}

	e.model = m
	e.required = required
	e.width = required / 8

	e.log.Info(context.Background(), "model loaded",
		slog.Int("layers", len(m.Layers)),
		slog.Int("workspace_bytes", required),
		slog.Int("arena_bytes", e.arena.Cap()),
	)
	return nil
}

// Loaded reports whether a model is bound.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model != nil
}

// Arena exposes the workspace for inspection.
func (e *Engine) Arena() *Arena {
	return e.arena
}

// Classify produces a verdict for one sample. Without a model the verdict is
// Anomaly = value > threshold with a confidence of 1 or 0.
func (e *Engine) Classify(s sensor.RawSample) (Verdict, error) {
	v := s.Value
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > e.maxMagnitude {
		return Verdict{}, &InferError{Kind: InvalidInput, Value: v}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil {
		// Confidence is the probability of an anomaly, which the threshold
		// rule decides outright.
		verdict := Verdict{Origin: OriginHeuristic}
		if v > e.threshold {
			verdict.Anomaly = true
			verdict.Confidence = 1
		}
		return verdict, nil
	}

	if !e.arena.Fits(e.required) {
		return Verdict{}, &InferError{Kind: WorkspaceExhausted, Value: v}
	}
	x, y, ok := e.arena.pair(e.width)
	if !ok {
		return Verdict{}, &InferError{Kind: WorkspaceExhausted, Value: v}
	}

	m := e.model
	x[0] = (float32(v) - m.InputMean) / m.InputScale
	for i := range m.Layers {
		forward(&m.Layers[i], x, y)
		x, y = y, x
	}

	p := float64(x[0])
	if math.IsNaN(p) {
		return Verdict{}, &InferError{Kind: NonFiniteOutput, Value: v}
	}
	p = min(max(p, 0), 1)

	return Verdict{
		Anomaly:    p >= float64(m.DecisionThreshold),
		Confidence: p,
		Origin:     OriginModel,
	}, nil
}

// forward computes y = act(W·x + b) for one dense layer.
func forward(l *Layer, x, y []float32) {
	for o := range l.Out {
		sum := l.Bias[o]
		row := l.Weights[o*l.In : (o+1)*l.In]
		for i, w := range row {
			sum += w * x[i]
		}
		y[o] = activate(l.Activation, sum)
	}
}

func activate(a Activation, v float32) float32 {
	switch a {
	case ReLU:
		return max(v, 0)
	case Sigmoid:
		return float32(1 / (1 + math.Exp(-float64(v))))
	default:
		return v
	}
}
