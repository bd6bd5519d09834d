// Package handlers provides attachable observers for an [ignis.Engine]:
// structured progress logging and Prometheus instrumentation.
//
// Each observer registers ordinary event handlers and keeps the returned
// removal handles, so Detach unregisters everything it added.
package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ignis-ml/ignis"
)

// ProgressLogger logs run, epoch, and iteration progress through a zerolog
// logger.
//
//	pl := handlers.NewProgressLogger(logger).WithIterationInterval(100)
//	if err := pl.Attach(engine); err != nil { ... }
//	defer pl.Detach()
type ProgressLogger struct {
	logger zerolog.Logger

	// every controls iteration logging; 0 disables it.
	every int

	// diff enables logging a state diff on each completed epoch.
	diff       bool
	prevRender string

	handles []*ignis.RemovableHandle
}

// NewProgressLogger creates a ProgressLogger writing to logger. By default
// it logs run and epoch milestones only.
func NewProgressLogger(logger zerolog.Logger) *ProgressLogger {
	return &ProgressLogger{logger: logger}
}

// WithIterationInterval also logs every nth completed iteration.
// Returns the logger for chaining.
func (p *ProgressLogger) WithIterationInterval(n int) *ProgressLogger {
	p.every = n
	return p
}

// WithStateDiff also logs a unified diff of the state rendering on each
// completed epoch. Returns the logger for chaining.
func (p *ProgressLogger) WithStateDiff() *ProgressLogger {
	p.diff = true
	return p
}

// Attach registers the logging handlers on e. Call Detach to remove them.
func (p *ProgressLogger) Attach(e *ignis.Engine) error {
	if err := p.on(e, ignis.Started, "run started", p.onStarted); err != nil {
		return err
	}
	if err := p.on(e, ignis.EpochCompleted, "epoch completed", p.onEpochCompleted); err != nil {
		return err
	}
	if err := p.on(e, ignis.Completed, "run completed", p.onCompleted); err != nil {
		return err
	}
	if p.every > 0 {
		ev, err := ignis.IterationCompleted.Every(p.every)
		if err != nil {
			return err
		}
		handle, err := e.AddEventHandler(ev, ignis.NewHandler(
			"progress_logger:iteration", p.onIterationCompleted,
		))
		if err != nil {
			return err
		}
		p.handles = append(p.handles, handle)
	}
	return nil
}

func (p *ProgressLogger) on(
	e *ignis.Engine,
	kind ignis.EventKind,
	name string,
	fn ignis.HandlerFunc,
) error {
	handle, err := e.AddEventHandler(kind, ignis.NewHandler("progress_logger:"+name, fn))
	if err != nil {
		return err
	}
	p.handles = append(p.handles, handle)
	return nil
}

// Detach removes every handler Attach registered. Safe to call more than
// once.
func (p *ProgressLogger) Detach() {
	for _, h := range p.handles {
		h.Remove()
	}
	p.handles = nil
}

func (p *ProgressLogger) onStarted(ctx context.Context, e *ignis.Engine) error {
	s := e.State()
	p.prevRender = s.String()
	ev := p.logger.Info()
	if s.MaxEpochs != nil {
		ev = ev.Int("max_epochs", *s.MaxEpochs)
	}
	ev.Msg("run started")
	return nil
}

func (p *ProgressLogger) onEpochCompleted(ctx context.Context, e *ignis.Engine) error {
	s := e.State()
	ev := p.logger.Info().
		Int("epoch", s.Epoch).
		Int("iteration", s.Iteration)
	if took, ok := s.Times[string(ignis.EpochCompleted)]; ok {
		ev = ev.Dur("took", took)
	}
	ev.Msg("epoch completed")

	if p.diff {
		render := s.String()
		if d := ignis.DiffRenderings(p.prevRender, render); d != "" {
			p.logger.Debug().Str("diff", d).Msg("state changed")
		}
		p.prevRender = render
	}
	return nil
}

func (p *ProgressLogger) onIterationCompleted(ctx context.Context, e *ignis.Engine) error {
	p.logger.Debug().Int("iteration", e.State().Iteration).Msg("iteration completed")
	return nil
}

func (p *ProgressLogger) onCompleted(ctx context.Context, e *ignis.Engine) error {
	s := e.State()
	ev := p.logger.Info().
		Int("epochs", s.Epoch).
		Int("iterations", s.Iteration)
	if took, ok := s.Times[string(ignis.Completed)]; ok {
		ev = ev.Dur("took", took)
	}
	ev.Msg("run completed")
	return nil
}
