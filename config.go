package ignis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// stateConfigSchema constrains the typed keys a state configuration map may
// carry. Unrecognized keys are deliberately allowed (the State is an open
// record); only the fields the engine itself interprets are pinned down.
var stateConfigSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"iteration":    map[string]any{"type": "integer", "minimum": 0},
		"epoch":        map[string]any{"type": "integer", "minimum": 0},
		"epoch_length": map[string]any{"type": "integer", "minimum": 1},
		"max_epochs":   map[string]any{"type": "integer", "minimum": 1},
		"seed":         map[string]any{"type": "integer"},
	},
	"additionalProperties": true,
}

var (
	compileStateSchema sync.Once
	compiledStateCfg   *jsonschema.Schema
	stateSchemaErr     error
)

// ValidateStateConfig validates a configuration map against the state
// configuration schema. Only the typed keys the engine interprets are
// examined; everything else may hold arbitrary, even non-serializable,
// values. A nil map is valid. Validation failures are reported as
// [ErrInvalidArgument].
func ValidateStateConfig(cfg map[string]any) error {
	if cfg == nil {
		return nil
	}

	compileStateSchema.Do(func() {
		compiledStateCfg, stateSchemaErr = compileSchema(stateConfigSchema)
	})
	if stateSchemaErr != nil {
		return stateSchemaErr
	}

	typed := make(map[string]any)
	for _, key := range []string{"iteration", "epoch", "epoch_length", "max_epochs", "seed"} {
		if v, ok := cfg[key]; ok {
			typed[key] = v
		}
	}
	if len(typed) == 0 {
		return nil
	}

	// Round-trip through JSON so the validator sees canonical value types
	// regardless of whether the map came from YAML, JSON, or Go literals.
	doc, err := json.Marshal(typed)
	if err != nil {
		return fmt.Errorf("%w: config is not serializable: %v", ErrInvalidArgument, err)
	}
	val, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := compiledStateCfg.Validate(val); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func compileSchema(raw map[string]any) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("state_config.json", data); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := c.Compile("state_config.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}
