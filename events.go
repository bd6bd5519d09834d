package ignis

import (
	"fmt"
	"reflect"
)

// EventKind identifies a named milestone fired by the [Engine] during a run.
//
// The set of kinds is closed: the ten constants below are the only milestones
// the engine fires, and identity is the name string. Kinds are comparable and
// usable as map keys; a [FilteredEvent] derived from a kind compares equal to
// the bare kind, so registration tables are always keyed by kind.
//
// # Naming Convention
//
// Kind names mirror the loop structure: the run, its epochs, its iterations,
// and batch fetching each get a started/completed pair. ExceptionRaised is
// the single unpaired kind, fired when the loop observes an error.
type EventKind string

const (
	// Run lifecycle
	Started   EventKind = "started"
	Completed EventKind = "completed"

	// Epoch lifecycle
	EpochStarted   EventKind = "epoch_started"
	EpochCompleted EventKind = "epoch_completed"

	// Iteration lifecycle
	IterationStarted   EventKind = "iteration_started"
	IterationCompleted EventKind = "iteration_completed"

	// Batch fetching
	GetBatchStarted   EventKind = "get_batch_started"
	GetBatchCompleted EventKind = "get_batch_completed"

	// Errors
	ExceptionRaised EventKind = "exception_raised"
)

// Event is implemented by anything that resolves to a single [EventKind]:
// a bare kind or a [FilteredEvent]. Groups are not Events; they are handled
// member by member at registration time.
type Event interface {
	Kind() EventKind
}

// Kind returns the kind itself, making EventKind satisfy [Event].
func (k EventKind) Kind() EventKind { return k }

func (k EventKind) String() string { return string(k) }

// -----------------------------------------------------------------------------
// Filters
// -----------------------------------------------------------------------------

// EventFilter decides whether a given firing of an event kind should invoke
// handlers. It receives the firing engine and the current value of the
// event's progress counter (iteration or epoch, see the [State] event
// mapping).
//
// Filters must be pure: they read the engine and counter and return a
// boolean. A filter runs once per registered handler entry on every firing
// of its kind, so side effects would multiply unpredictably.
type EventFilter func(e *Engine, counter int) bool

// FilterSpec selects exactly one filtering strategy when deriving a
// [FilteredEvent] from an [EventKind].
//
// Exactly one of the three fields must be set. Supplying zero or more than
// one fails with [ErrInvalidArgument].
type FilterSpec struct {
	// Filter is a custom predicate. It must be an [EventFilter] or a
	// function of the shape func(*Engine, int) bool; any other value fails
	// with [ErrInvalidCallable].
	Filter any

	// Every fires the event on counters divisible by Every. Must be
	// positive. Every == 1 is a no-op: the result carries no filter and is
	// equivalent to the bare kind.
	Every int

	// Once fires the event exactly when the counter equals Once. Must be
	// positive.
	Once int
}

// Filtered derives a [FilteredEvent] from k according to spec.
//
//	// fire every 10th iteration
//	ev, err := ignis.IterationStarted.Filtered(ignis.FilterSpec{Every: 10})
//
//	// fire exactly on the 50th iteration
//	ev, err := ignis.IterationStarted.Filtered(ignis.FilterSpec{Once: 50})
//
//	// custom predicate
//	ev, err := ignis.IterationStarted.Filtered(ignis.FilterSpec{
//	    Filter: func(e *ignis.Engine, counter int) bool {
//	        return counter == 1 || counter == 100
//	    },
//	})
func (k EventKind) Filtered(spec FilterSpec) (FilteredEvent, error) {
	set := 0
	if spec.Filter != nil {
		set++
	}
	if spec.Every != 0 {
		set++
	}
	if spec.Once != 0 {
		set++
	}
	if set != 1 {
		return FilteredEvent{}, fmt.Errorf(
			"%w: exactly one of Filter, Every, Once must be set for %q (got %d)",
			ErrInvalidArgument, k, set,
		)
	}

	switch {
	case spec.Filter != nil:
		fn, err := coerceFilter(spec.Filter)
		if err != nil {
			return FilteredEvent{}, err
		}
		return FilteredEvent{kind: k, filter: fn}, nil

	case spec.Every != 0:
		if spec.Every < 0 {
			return FilteredEvent{}, fmt.Errorf(
				"%w: Every must be a positive integer, got %d", ErrInvalidArgument, spec.Every,
			)
		}
		if spec.Every == 1 {
			// Equivalent to the unfiltered kind.
			return FilteredEvent{kind: k}, nil
		}
		every := spec.Every
		return FilteredEvent{kind: k, filter: func(e *Engine, counter int) bool {
			return counter%every == 0
		}}, nil

	default:
		if spec.Once < 0 {
			return FilteredEvent{}, fmt.Errorf(
				"%w: Once must be a positive integer, got %d", ErrInvalidArgument, spec.Once,
			)
		}
		once := spec.Once
		return FilteredEvent{kind: k, filter: func(e *Engine, counter int) bool {
			return counter == once
		}}, nil
	}
}

// Every is shorthand for Filtered(FilterSpec{Every: n}).
func (k EventKind) Every(n int) (FilteredEvent, error) {
	return k.Filtered(FilterSpec{Every: n})
}

// Once is shorthand for Filtered(FilterSpec{Once: n}).
func (k EventKind) Once(n int) (FilteredEvent, error) {
	return k.Filtered(FilterSpec{Once: n})
}

// When is shorthand for Filtered(FilterSpec{Filter: f}).
func (k EventKind) When(f EventFilter) (FilteredEvent, error) {
	if f == nil {
		return FilteredEvent{}, fmt.Errorf(
			"%w: exactly one of Filter, Every, Once must be set for %q (got 0)",
			ErrInvalidArgument, k,
		)
	}
	return k.Filtered(FilterSpec{Filter: f})
}

// coerceFilter accepts the small family of callables a FilterSpec.Filter may
// hold and normalizes them to EventFilter. Reflection is used only to
// produce a precise diagnostic for near-miss function shapes.
func coerceFilter(f any) (EventFilter, error) {
	switch fn := f.(type) {
	case EventFilter:
		if fn == nil {
			return nil, fmt.Errorf("%w: got a nil EventFilter", ErrInvalidCallable)
		}
		return fn, nil
	case func(*Engine, int) bool:
		if fn == nil {
			return nil, fmt.Errorf("%w: got a nil filter function", ErrInvalidCallable)
		}
		return EventFilter(fn), nil
	}

	t := reflect.TypeOf(f)
	if t != nil && t.Kind() == reflect.Func {
		return nil, fmt.Errorf(
			"%w: filter has signature %s, want func(*Engine, int) bool",
			ErrInvalidCallable, t,
		)
	}
	return nil, fmt.Errorf("%w: got %T", ErrInvalidCallable, f)
}

// -----------------------------------------------------------------------------
// FilteredEvent
// -----------------------------------------------------------------------------

// FilteredEvent is an [EventKind] bound to an [EventFilter].
//
// Equality collapses to the underlying kind name: two filtered variants of
// the same kind are interchangeable as registration keys regardless of their
// filters. Dispatch therefore keeps the filter on each registered handler
// entry and evaluates it independently per entry; filters never participate
// in identity.
//
// The zero value is invalid; derive instances with [EventKind.Filtered] or
// the Every/Once/When shorthands.
type FilteredEvent struct {
	kind   EventKind
	filter EventFilter
}

// Kind returns the underlying event kind.
func (f FilteredEvent) Kind() EventKind { return f.kind }

// Filter returns the attached filter, or nil for an unfiltered variant.
func (f FilteredEvent) Filter() EventFilter { return f.filter }

func (f FilteredEvent) String() string {
	if f.filter == nil {
		return fmt.Sprintf("<event=%s>", f.kind)
	}
	return fmt.Sprintf("<event=%s, filtered>", f.kind)
}

// Matches reports whether other denotes the same event kind. It accepts an
// [EventKind], another [FilteredEvent], or a plain name string; filters are
// ignored. Comparing against any other type is a programming error and
// fails with [ErrIncomparableType] rather than silently returning false.
func (f FilteredEvent) Matches(other any) (bool, error) {
	switch o := other.(type) {
	case EventKind:
		return f.kind == o, nil
	case FilteredEvent:
		return f.kind == o.kind, nil
	case string:
		return string(f.kind) == o, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrIncomparableType, other)
	}
}

// -----------------------------------------------------------------------------
// EventGroup
// -----------------------------------------------------------------------------

// EventGroup is an ordered, append-only sequence of events used to register
// one handler against several events at once.
//
//	g, err := ignis.Group(ignis.Started, ignis.Completed)
//	g, err = g.Then(everyThird) // [Started, Completed, everyThird]
//
// Duplicates are permitted and insertion order is preserved. A group is a
// registration-time convenience only: registering a handler against a group
// registers it once per member, in group order.
type EventGroup struct {
	events []FilteredEvent
}

// Group builds an EventGroup from the given events. Each argument must be an
// [EventKind] or a [FilteredEvent]; anything else fails with
// [ErrInvalidArgument].
func Group(evs ...any) (*EventGroup, error) {
	g := &EventGroup{events: make([]FilteredEvent, 0, len(evs))}
	for _, ev := range evs {
		if _, err := g.Then(ev); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Then appends ev to the group and returns the group for chaining. Combining
// is left-associative: a.Then(b) followed by .Then(c) yields [a, b, c].
func (g *EventGroup) Then(ev any) (*EventGroup, error) {
	fe, err := toFilteredEvent(ev)
	if err != nil {
		return nil, err
	}
	g.events = append(g.events, fe)
	return g, nil
}

// Then starts a group with k as the first member and ev as the second.
func (k EventKind) Then(ev any) (*EventGroup, error) {
	return Group(k, ev)
}

// Then starts a group with f as the first member and ev as the second.
func (f FilteredEvent) Then(ev any) (*EventGroup, error) {
	return Group(f, ev)
}

// Len returns the number of members.
func (g *EventGroup) Len() int { return len(g.events) }

// At returns the member at index i in insertion order.
func (g *EventGroup) At(i int) FilteredEvent { return g.events[i] }

// Events returns the members in insertion order. The returned slice is a
// copy; the group itself is append-only.
func (g *EventGroup) Events() []FilteredEvent {
	out := make([]FilteredEvent, len(g.events))
	copy(out, g.events)
	return out
}

// toFilteredEvent normalizes a bare kind or filtered event into the
// FilteredEvent representation used by registration tables and groups.
func toFilteredEvent(ev any) (FilteredEvent, error) {
	switch e := ev.(type) {
	case EventKind:
		return FilteredEvent{kind: e}, nil
	case FilteredEvent:
		return e, nil
	default:
		return FilteredEvent{}, fmt.Errorf(
			"%w: event must be an EventKind or FilteredEvent, got %T", ErrInvalidArgument, ev,
		)
	}
}
