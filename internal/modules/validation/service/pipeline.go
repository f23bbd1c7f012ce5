package service

import (
	"fmt"

	"trade_agent/internal/metrics"
	"trade_agent/internal/models"

	"go.uber.org/zap"
)

// Pipeline runs checkers in registration order and stops at the first failure.
type Pipeline struct {
	log      *zap.Logger
	stage    string
	failSafe bool
	// mandatory checkers fail closed on panic even with failSafe set
	mandatory map[string]bool
	checkers  []Checker
}

type Option func(p *Pipeline)

// WithFailSafe turns a panicking checker into a logged pass.
func WithFailSafe(on bool) Option {
	return func(p *Pipeline) { p.failSafe = on }
}

// WithMandatory marks checkers that can be neither disabled nor bypassed by fail-safe.
func WithMandatory(names ...string) Option {
	return func(p *Pipeline) {
		for _, n := range names {
			p.mandatory[n] = true
		}
	}
}

// WithDisabled drops the named checkers, except mandatory ones.
func WithDisabled(names ...string) Option {
	return func(p *Pipeline) {
		off := make(map[string]bool, len(names))
		for _, n := range names {
			off[n] = true
		}
		kept := p.checkers[:0:0]
		for _, c := range p.checkers {
			if off[c.Name()] && !p.mandatory[c.Name()] {
				continue
			}
			if off[c.Name()] {
				p.log.Warn("checker cannot be disabled", zap.String("stage", p.stage), zap.String("checker", c.Name()))
			}
			kept = append(kept, c)
		}
		p.checkers = kept
	}
}

// NewPipeline applies options in order; put WithMandatory before WithDisabled.
func NewPipeline(log *zap.Logger, stage string, checkers []Checker, opts ...Option) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		log:       log,
		stage:     stage,
		mandatory: map[string]bool{},
		checkers:  append([]Checker(nil), checkers...),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) Stage() string { return p.stage }

func (p *Pipeline) Names() []string {
	out := make([]string, len(p.checkers))
	for i, c := range p.checkers {
		out[i] = c.Name()
	}
	return out
}

// Run evaluates in order. The returned list ends at the first failure.
func (p *Pipeline) Run(in Input) (bool, []models.CheckResult) {
	results := make([]models.CheckResult, 0, len(p.checkers))
	for _, c := range p.checkers {
		res := p.evaluate(c, in)
		results = append(results, res)
		if !res.Passed {
			metrics.RejectionsTotal.WithLabelValues(p.stage, c.Name()).Inc()
			return false, results
		}
	}
	return true, results
}

func (p *Pipeline) evaluate(c Checker, in Input) (res models.CheckResult) {
	name := c.Name()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if p.failSafe && !p.mandatory[name] {
			p.log.Warn("checker panicked, fail-safe pass",
				zap.String("stage", p.stage),
				zap.String("checker", name),
				zap.String("inst", in.Signal.InstID),
				zap.Any("panic", r),
			)
			metrics.FailSafePasses.WithLabelValues(name).Inc()
			res = models.Pass(name, fmt.Sprintf("fail-safe: %v", r))
			return
		}
		p.log.Error("checker panicked",
			zap.String("stage", p.stage),
			zap.String("checker", name),
			zap.String("inst", in.Signal.InstID),
			zap.Any("panic", r),
		)
		res = models.Fail(name, fmt.Sprintf("checker error: %v", r))
	}()
	res = c.Evaluate(in)
	res.Checker = name
	return res
}
