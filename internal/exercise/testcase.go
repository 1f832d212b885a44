// Package exercise holds coding-exercise test cases, the sandbox contract
// that runs them, and the gate that unlocks project blocks in order.
package exercise

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// InputKind tags how a test input is passed to the function under test.
type InputKind string

const (
	// InputScalar is passed as the single argument.
	InputScalar InputKind = "scalar"
	// InputArray is spread as positional arguments.
	InputArray InputKind = "array"
	// InputNamedArgs is passed as keyword arguments.
	InputNamedArgs InputKind = "named_args"
)

// ErrInvalidInput is returned for inputs that cannot be resolved.
var ErrInvalidInput = errors.New("invalid test input")

// Input is a resolved test input. Exactly one of the value fields is set,
// according to Kind.
type Input struct {
	Kind   InputKind
	Scalar any
	Array  []any
	Named  map[string]any
}

type taggedInput struct {
	Kind  InputKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// ParseInput resolves raw JSON into an Input. The tagged form
// {"kind": ..., "value": ...} is taken as is; otherwise an array becomes
// positional arguments, an object becomes named arguments and anything else
// a scalar.
func ParseInput(raw json.RawMessage) (Input, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Input{}, fmt.Errorf("%w: empty", ErrInvalidInput)
	}

	if raw[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return Input{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		_, hasKind := probe["kind"]
		_, hasValue := probe["value"]
		if hasKind && hasValue && len(probe) == 2 {
			var t taggedInput
			if err := json.Unmarshal(raw, &t); err != nil {
				return Input{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return resolve(t.Kind, t.Value)
		}
		return resolve(InputNamedArgs, raw)
	}
	if raw[0] == '[' {
		return resolve(InputArray, raw)
	}
	return resolve(InputScalar, raw)
}

func resolve(kind InputKind, value json.RawMessage) (Input, error) {
	in := Input{Kind: kind}
	var err error
	switch kind {
	case InputScalar:
		err = json.Unmarshal(value, &in.Scalar)
	case InputArray:
		err = json.Unmarshal(value, &in.Array)
		if err == nil && in.Array == nil {
			in.Array = []any{}
		}
	case InputNamedArgs:
		err = json.Unmarshal(value, &in.Named)
		if err == nil && in.Named == nil {
			err = errors.New("named_args value must be an object")
		}
	default:
		return Input{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	if err != nil {
		return Input{}, fmt.Errorf("%w: %s: %v", ErrInvalidInput, kind, err)
	}
	return in, nil
}

// Args returns the positional arguments for the call.
func (in Input) Args() []any {
	switch in.Kind {
	case InputScalar:
		return []any{in.Scalar}
	case InputArray:
		return in.Array
	}
	return nil
}

// MarshalJSON always writes the tagged form.
func (in Input) MarshalJSON() ([]byte, error) {
	var value any
	switch in.Kind {
	case InputScalar:
		value = in.Scalar
	case InputArray:
		value = in.Array
	case InputNamedArgs:
		value = in.Named
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}
	return json.Marshal(struct {
		Kind  InputKind `json:"kind"`
		Value any       `json:"value"`
	}{in.Kind, value})
}

// UnmarshalJSON resolves the input once, when the test case is defined.
func (in *Input) UnmarshalJSON(data []byte) error {
	parsed, err := ParseInput(data)
	if err != nil {
		return err
	}
	*in = parsed
	return nil
}

// TestCase is one check of a coding exercise.
type TestCase struct {
	Name     string `json:"name,omitempty"`
	Input    Input  `json:"input"`
	Expected any    `json:"expected"`
	// Tolerance applies to numeric results; nil means exact.
	Tolerance *float64 `json:"tolerance,omitempty"`
}
