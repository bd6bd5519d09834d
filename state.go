package ignis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// State is the shared, mutable progress record for a run. It is advanced by
// the [Engine] loop and read by filters and handlers.
//
//	state.Iteration   // 1-based once running, 0 before
//	state.Epoch       // 1-based once running, 0 before
//	state.Batch       // batch passed to the process function
//	state.Output      // output of the process function for this iteration
//	state.Metrics     // named metric values, written by handlers
//	state.Times       // elapsed durations, keyed by the epoch_completed
//	                  // and completed kind names
//
// State is an open record: construction accepts a string-keyed configuration
// map, recognized keys set the corresponding fields, and unrecognized keys
// land in Extra for caller-defined run-scoped data. Code reading unknown
// fields must go through Extra, never reflection.
type State struct {
	Iteration   int
	Epoch       int
	EpochLength *int
	MaxEpochs   *int
	Batch       any
	Output      any
	Metrics     map[string]any
	Dataloader  any
	Seed        *int64

	// Times records elapsed durations for completed epochs and the whole
	// run. Keys are the EpochCompleted and Completed kind names; a key is
	// absent until the corresponding milestone has fired.
	Times map[string]time.Duration

	// Extra holds configuration keys that are not recognized State fields.
	Extra map[string]any
}

// eventToAttr maps every counter-carrying event kind to the State field that
// holds its current value. ExceptionRaised carries no counter and is absent.
var eventToAttr = map[EventKind]string{
	GetBatchStarted:    "iteration",
	GetBatchCompleted:  "iteration",
	IterationStarted:   "iteration",
	IterationCompleted: "iteration",
	EpochStarted:       "epoch",
	EpochCompleted:     "epoch",
	Started:            "epoch",
	Completed:          "epoch",
}

// NewState builds a State from a configuration map. Recognized keys:
//
//	iteration, epoch            int
//	epoch_length, max_epochs    int (positive)
//	seed                        int
//	batch, output, dataloader   any
//	metrics                     map[string]any
//
// The map is validated against the state configuration schema first (see
// [ValidateStateConfig]); unrecognized keys pass validation and are stored
// in Extra. Counter fields named by the event mapping default to 0 when not
// supplied. A nil map yields a fresh zero-progress State.
func NewState(cfg map[string]any) (*State, error) {
	if err := ValidateStateConfig(cfg); err != nil {
		return nil, err
	}

	s := &State{
		Metrics: make(map[string]any),
		Times:   make(map[string]time.Duration),
		Extra:   make(map[string]any),
	}

	for key, val := range cfg {
		switch key {
		case "iteration":
			n, err := asInt(key, val)
			if err != nil {
				return nil, err
			}
			s.Iteration = n
		case "epoch":
			n, err := asInt(key, val)
			if err != nil {
				return nil, err
			}
			s.Epoch = n
		case "epoch_length":
			n, err := asInt(key, val)
			if err != nil {
				return nil, err
			}
			s.EpochLength = &n
		case "max_epochs":
			n, err := asInt(key, val)
			if err != nil {
				return nil, err
			}
			s.MaxEpochs = &n
		case "seed":
			n, err := asInt(key, val)
			if err != nil {
				return nil, err
			}
			seed := int64(n)
			s.Seed = &seed
		case "batch":
			s.Batch = val
		case "output":
			s.Output = val
		case "dataloader":
			s.Dataloader = val
		case "metrics":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf(
					"%w: metrics must be a map[string]any, got %T", ErrInvalidArgument, val,
				)
			}
			s.Metrics = m
		default:
			s.Extra[key] = val
		}
	}

	return s, nil
}

// NewStateFromYAML builds a State from a YAML document holding the same
// string-keyed configuration map NewState accepts.
func NewStateFromYAML(data []byte) (*State, error) {
	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid YAML state config: %v", ErrInvalidArgument, err)
	}
	return NewState(cfg)
}

// asInt coerces the integral value shapes a config map can carry. YAML and
// callers hand over int; JSON decoding hands over float64.
func asInt(key string, val any) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidArgument, key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidArgument, key, val)
	}
}

// GetEventAttribValue returns the current value of the progress counter the
// given event is measured against: Iteration for iteration and batch events,
// Epoch for run and epoch events. Kinds without a counter (ExceptionRaised)
// fail with [ErrUnknownEvent].
func (s *State) GetEventAttribValue(ev Event) (int, error) {
	attr, ok := eventToAttr[ev.Kind()]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no progress counter", ErrUnknownEvent, ev.Kind())
	}
	switch attr {
	case "iteration":
		return s.Iteration, nil
	default:
		return s.Epoch, nil
	}
}

// String renders the state for diagnostics. Scalar and string fields are
// shown by value; opaque handles and mappings are shown by type name only,
// so large objects never end up in logs.
func (s *State) String() string {
	var b strings.Builder
	b.WriteString("State:\n")
	writeField(&b, "iteration", s.Iteration)
	writeField(&b, "epoch", s.Epoch)
	writeOptField(&b, "epoch_length", s.EpochLength)
	writeOptField(&b, "max_epochs", s.MaxEpochs)
	writeOptField(&b, "seed", s.Seed)
	writeField(&b, "batch", s.Batch)
	writeField(&b, "output", s.Output)
	writeField(&b, "metrics", s.Metrics)
	writeField(&b, "dataloader", s.Dataloader)
	writeField(&b, "times", s.Times)

	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(&b, k, s.Extra[k])
	}
	return b.String()
}

func writeField(b *strings.Builder, name string, val any) {
	switch v := val.(type) {
	case nil:
		fmt.Fprintf(b, "\t%s: <nil>\n", name)
	case int, int64, float64, bool, string:
		fmt.Fprintf(b, "\t%s: %v\n", name, v)
	default:
		fmt.Fprintf(b, "\t%s: %T\n", name, v)
	}
}

func writeOptField[T any](b *strings.Builder, name string, val *T) {
	if val == nil {
		fmt.Fprintf(b, "\t%s: <nil>\n", name)
		return
	}
	writeField(b, name, *val)
}

// Diff returns a unified diff from prev's rendering to s's rendering. Useful
// for logging what changed between two points of a run.
func (s *State) Diff(prev *State) string {
	return DiffRenderings(prev.String(), s.String())
}

// DiffRenderings returns a unified diff between two state renderings, or ""
// when they are identical.
func DiffRenderings(before, after string) string {
	if before == after {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}
