package bind

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// Serializer converts a value to and from the plain data stored in the
// persisted document (maps, slices, strings, numbers, booleans and nil).
type Serializer[T any] interface {
	Serialize(v T) (any, error)
	Deserialize(data any) (T, error)
}

// JSONSerializer is the default Serializer. Values round-trip through their
// JSON representation, so struct tags apply.
type JSONSerializer[T any] struct{}

// Serialize converts v to plain data.
func (JSONSerializer[T]) Serialize(v T) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Deserialize converts plain data back into a T.
func (JSONSerializer[T]) Deserialize(data any) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return out, nil
}

// StructSerializer persists struct records as keyed fields and validates
// them with go-playground/validator tags in both directions. A record that
// fails validation is never written and never restored.
type StructSerializer[T any] struct {
	JSONSerializer[T]
}

// Serialize validates v and converts it to plain data.
func (s StructSerializer[T]) Serialize(v T) (any, error) {
	if err := validateRecord(v); err != nil {
		return nil, err
	}
	return s.JSONSerializer.Serialize(v)
}

// Deserialize converts plain data into a T and validates the result.
func (s StructSerializer[T]) Deserialize(data any) (T, error) {
	out, err := s.JSONSerializer.Deserialize(data)
	if err != nil {
		return out, err
	}
	if err := validateRecord(out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Validator is implemented by records with checks beyond struct tags.
type Validator interface {
	Validate() error
}

func validateRecord(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if vv, ok := v.(Validator); ok {
		if err := vv.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// SerializerFuncs builds a Serializer from a pair of functions.
type SerializerFuncs[T any] struct {
	To   func(T) (any, error)
	From func(any) (T, error)
}

// Serialize calls To.
func (s SerializerFuncs[T]) Serialize(v T) (any, error) {
	return s.To(v)
}

// Deserialize calls From.
func (s SerializerFuncs[T]) Deserialize(data any) (T, error) {
	return s.From(data)
}

var (
	_ Serializer[int]      = JSONSerializer[int]{}
	_ Serializer[struct{}] = StructSerializer[struct{}]{}
	_ Serializer[int]      = SerializerFuncs[int]{}
)
