package ignis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ProcessFunc consumes one batch and produces the iteration's output. It is
// the unit of work the engine repeats across epochs and iterations.
type ProcessFunc func(ctx context.Context, e *Engine, batch any) (any, error)

// HandlerFunc is the callback signature for event handlers. Handlers read
// and may mutate the engine's [State]; an error aborts the current dispatch
// and the run.
type HandlerFunc func(ctx context.Context, e *Engine) error

// Handler is a registrable event callback. Handlers have pointer identity:
// the same *Handler registered against several events is recognized as one
// handler by HasEventHandler and RemoveEventHandler.
type Handler struct {
	name string
	fn   HandlerFunc
}

// NewHandler creates a named Handler. The name appears in logs and error
// messages only; identity is the pointer.
func NewHandler(name string, fn HandlerFunc) *Handler {
	return &Handler{name: name, fn: fn}
}

// Name returns the handler's display name.
func (h *Handler) Name() string { return h.name }

// registration binds a handler to the filter it was registered with. The
// filter lives on the registration, not on the table key: all filtered
// variants of a kind share one key, and dispatch evaluates each
// registration's own filter.
type registration struct {
	handler *Handler
	filter  EventFilter
}

// Engine drives the iterative loop: repeat "get batch, process batch"
// across epochs, firing the [EventKind] milestones as it goes.
//
// # Event Flow
//
// Run fires Started once, then per epoch: EpochStarted, then per iteration
// GetBatchStarted, GetBatchCompleted, IterationStarted, the process
// function, IterationCompleted; then EpochCompleted. After the final epoch
// it fires Completed. Any error on the way is offered to ExceptionRaised
// handlers; with none registered the error propagates out of Run unchanged.
//
// # Handler Ordering
//
// For a single firing, handlers run in registration order and each
// registration is invoked at most once, even when several equal-by-kind
// filtered variants were used to register.
//
// # Thread Safety
//
// Engine is not safe for concurrent use. There is one logical thread of
// control: the loop driver. Register handlers before calling Run, or from
// within handlers.
type Engine struct {
	process  ProcessFunc
	handlers map[EventKind][]*registration
	state    *State
	logger   zerolog.Logger
	clock    Clock
	lastErr  error
}

// New creates an Engine around the given process function.
func New(process ProcessFunc) *Engine {
	return &Engine{
		process:  process,
		handlers: make(map[EventKind][]*registration),
		logger:   zerolog.Nop(),
		clock:    NewDefaultClock(),
	}
}

// WithLogger sets the engine's structured logger. Returns the engine for
// chaining.
func (e *Engine) WithLogger(logger zerolog.Logger) *Engine {
	e.logger = logger
	return e
}

// WithClock sets the engine's time source. Returns the engine for chaining.
func (e *Engine) WithClock(clock Clock) *Engine {
	e.clock = clock
	return e
}

// State returns the current run's State. It is nil before the first Run.
func (e *Engine) State() *State { return e.state }

// LastError returns the error most recently offered to ExceptionRaised
// handlers, for handlers that need to inspect it. Nil when no error has
// occurred.
func (e *Engine) LastError() error { return e.lastErr }

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// AddEventHandler registers handler against ev, which may be an
// [EventKind], a [FilteredEvent], or an [*EventGroup]. Registering against
// a group registers the handler once per member, in group order, and the
// returned handle covers every member.
//
// The returned [RemovableHandle] holds the handler and engine weakly: it
// can remove the registration later without extending either object's
// lifetime.
func (e *Engine) AddEventHandler(ev any, handler *Handler) (*RemovableHandle, error) {
	if handler == nil || handler.fn == nil {
		return nil, fmt.Errorf("%w: handler must be non-nil with a callback", ErrInvalidArgument)
	}

	var events []FilteredEvent
	switch v := ev.(type) {
	case *EventGroup:
		events = v.Events()
	default:
		fe, err := toFilteredEvent(ev)
		if err != nil {
			return nil, err
		}
		events = []FilteredEvent{fe}
	}

	for _, fe := range events {
		e.handlers[fe.Kind()] = append(e.handlers[fe.Kind()], &registration{
			handler: handler,
			filter:  fe.Filter(),
		})
		e.logger.Debug().
			Str("handler", handler.name).
			Stringer("event", fe.Kind()).
			Msg("handler registered")
	}

	return newRemovableHandle(events, handler, e), nil
}

// HasEventHandler reports whether handler is registered for ev's kind.
func (e *Engine) HasEventHandler(handler *Handler, ev Event) bool {
	for _, reg := range e.handlers[ev.Kind()] {
		if reg.handler == handler {
			return true
		}
	}
	return false
}

// RemoveEventHandler removes every registration of handler for ev's kind.
// It fails with [ErrInvalidArgument] when handler is not registered there;
// use HasEventHandler first when absence is expected.
func (e *Engine) RemoveEventHandler(handler *Handler, ev Event) error {
	regs := e.handlers[ev.Kind()]
	kept := regs[:0]
	for _, reg := range regs {
		if reg.handler != handler {
			kept = append(kept, reg)
		}
	}
	if len(kept) == len(regs) {
		return fmt.Errorf(
			"%w: handler %q is not registered for %q", ErrInvalidArgument, handler.name, ev.Kind(),
		)
	}
	e.handlers[ev.Kind()] = kept
	e.logger.Debug().
		Str("handler", handler.name).
		Stringer("event", ev.Kind()).
		Msg("handler removed")
	return nil
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// FireEvent dispatches an event kind to its registered handlers. Each
// registration's filter is evaluated against the kind's current progress
// counter (0 for kinds without one); handlers whose filter returns true run
// in registration order. The first handler error aborts the dispatch.
//
// Run calls this for every milestone; external drivers may also fire kinds
// directly.
func (e *Engine) FireEvent(ctx context.Context, kind EventKind) error {
	counter := 0
	if _, ok := eventToAttr[kind]; ok && e.state != nil {
		counter, _ = e.state.GetEventAttribValue(kind)
	}

	// Snapshot: a handler may remove itself (or others) mid-dispatch.
	regs := append([]*registration(nil), e.handlers[kind]...)
	for _, reg := range regs {
		if reg.filter != nil && !reg.filter(e, counter) {
			continue
		}
		if err := reg.handler.fn(ctx, e); err != nil {
			return fmt.Errorf("handler %q failed on %q: %w", reg.handler.name, kind, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Run Loop
// -----------------------------------------------------------------------------

// RunOptions configures a single run.
type RunOptions struct {
	// MaxEpochs is the number of epochs to run. Zero means 1.
	MaxEpochs int

	// EpochLength is the number of iterations per epoch. Zero means one
	// pass over the supplied data.
	EpochLength int

	// Seed, when set, is recorded on the run's State.
	Seed *int64
}

// DefaultRunOptions returns options for a single one-epoch pass.
func DefaultRunOptions() RunOptions {
	return RunOptions{MaxEpochs: 1}
}

// Run executes the loop over data and returns the final State. A fresh
// State is created per run; its Dataloader field holds data. Batches wrap
// around data when EpochLength exceeds its length.
//
// Cancellation of ctx stops the loop between iterations and is surfaced as
// the context's error through the ExceptionRaised path like any other
// failure.
func (e *Engine) Run(ctx context.Context, data []any, opts RunOptions) (*State, error) {
	if e.process == nil {
		return nil, fmt.Errorf("%w: engine has no process function", ErrInvalidArgument)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: run requires at least one batch", ErrInvalidArgument)
	}

	maxEpochs := opts.MaxEpochs
	if maxEpochs == 0 {
		maxEpochs = 1
	}
	epochLength := opts.EpochLength
	if epochLength == 0 {
		epochLength = len(data)
	}

	cfg := map[string]any{
		"max_epochs":   maxEpochs,
		"epoch_length": epochLength,
	}
	if opts.Seed != nil {
		cfg["seed"] = int(*opts.Seed)
	}
	state, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	state.Dataloader = data
	e.state = state
	e.lastErr = nil

	e.logger.Info().
		Int("max_epochs", maxEpochs).
		Int("epoch_length", epochLength).
		Msg("run starting")

	if err := e.runLoop(ctx, data, maxEpochs, epochLength); err != nil {
		return e.state, e.handleException(ctx, err)
	}
	return e.state, nil
}

func (e *Engine) runLoop(ctx context.Context, data []any, maxEpochs, epochLength int) error {
	runStart := e.clock.Now()
	if err := e.FireEvent(ctx, Started); err != nil {
		return err
	}

	for e.state.Epoch < maxEpochs {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.state.Epoch++
		epochStart := e.clock.Now()
		if err := e.FireEvent(ctx, EpochStarted); err != nil {
			return err
		}

		for i := 0; i < epochLength; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.state.Iteration++

			if err := e.FireEvent(ctx, GetBatchStarted); err != nil {
				return err
			}
			e.state.Batch = data[i%len(data)]
			if err := e.FireEvent(ctx, GetBatchCompleted); err != nil {
				return err
			}

			if err := e.FireEvent(ctx, IterationStarted); err != nil {
				return err
			}
			out, err := e.process(ctx, e, e.state.Batch)
			if err != nil {
				return err
			}
			e.state.Output = out
			if err := e.FireEvent(ctx, IterationCompleted); err != nil {
				return err
			}
		}

		e.state.Times[string(EpochCompleted)] = e.clock.Since(epochStart)
		if err := e.FireEvent(ctx, EpochCompleted); err != nil {
			return err
		}
		e.logger.Debug().
			Int("epoch", e.state.Epoch).
			Dur("took", e.state.Times[string(EpochCompleted)]).
			Msg("epoch completed")
	}

	e.state.Times[string(Completed)] = e.clock.Since(runStart)
	if err := e.FireEvent(ctx, Completed); err != nil {
		return err
	}
	e.logger.Info().
		Int("epochs", e.state.Epoch).
		Int("iterations", e.state.Iteration).
		Dur("took", e.state.Times[string(Completed)]).
		Msg("run completed")
	return nil
}

// handleException offers err to ExceptionRaised handlers. With no handlers
// registered the error propagates unchanged; with handlers, err is
// considered handled unless a handler itself fails.
func (e *Engine) handleException(ctx context.Context, err error) error {
	e.lastErr = err
	e.logger.Error().Err(err).Msg("run failed")
	if len(e.handlers[ExceptionRaised]) == 0 {
		return err
	}
	return e.FireEvent(ctx, ExceptionRaised)
}
