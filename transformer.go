package bind

import "fmt"

// Transformer converts between a domain value and the representation a
// widget displays or reports. Implementations must be pure.
type Transformer[T any] interface {
	// ToWidget converts a domain value for display.
	ToWidget(v T) (any, error)

	// FromWidget converts a value read from a widget back to the domain type.
	FromWidget(w any) (T, error)
}

// ToWidgetFunc is a one-way Transformer used on targets. FromWidget falls
// back to a plain type assertion.
type ToWidgetFunc[T, W any] func(T) W

// ToWidget calls f.
func (f ToWidgetFunc[T, W]) ToWidget(v T) (any, error) {
	return f(v), nil
}

// FromWidget asserts w to T.
func (f ToWidgetFunc[T, W]) FromWidget(w any) (T, error) {
	return assertTo[T](w)
}

// FromWidgetFunc is a one-way Transformer used on sources. ToWidget passes
// the domain value through unchanged.
type FromWidgetFunc[T, W any] func(W) (T, error)

// ToWidget returns v unchanged.
func (f FromWidgetFunc[T, W]) ToWidget(v T) (any, error) {
	return v, nil
}

// FromWidget asserts w to W and calls f.
func (f FromWidgetFunc[T, W]) FromWidget(w any) (T, error) {
	raw, err := assertTo[W](w)
	if err != nil {
		var zero T
		return zero, err
	}
	return f(raw)
}

// Converter pairs both directions of a conversion.
type Converter[T, W any] struct {
	To   func(T) (W, error)
	From func(W) (T, error)
}

// ToWidget calls c.To, or passes v through when To is nil.
func (c Converter[T, W]) ToWidget(v T) (any, error) {
	if c.To == nil {
		return v, nil
	}
	return c.To(v)
}

// FromWidget calls c.From, or asserts w to T when From is nil.
func (c Converter[T, W]) FromWidget(w any) (T, error) {
	if c.From == nil {
		return assertTo[T](w)
	}
	raw, err := assertTo[W](w)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.From(raw)
}

// assertTo converts an opaque widget value to T. A nil interface yields the
// zero value.
func assertTo[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, zero, v)
	}
	return t, nil
}

var (
	_ Transformer[int] = ToWidgetFunc[int, string](nil)
	_ Transformer[int] = FromWidgetFunc[int, string](nil)
	_ Transformer[int] = Converter[int, string]{}
)
