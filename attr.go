package bind

import (
	"context"
	"fmt"
	"reflect"
)

var errorType = reflect.TypeFor[error]()

// SetAttr returns a Sink assigning to the named attribute of obj. A method
// Set<name>(v) takes precedence over an exported struct field <name>.
// Numeric values are converted to the attribute's numeric type.
func SetAttr(obj any, name string) Sink {
	return func(_ context.Context, v any) error {
		return setAttr(obj, name, v)
	}
}

// GetAttr returns a Getter reading the named attribute of obj: a method
// <name>() or Get<name>() when present, otherwise an exported struct field.
func GetAttr(obj any, name string) Getter {
	return func(_ context.Context) (any, error) {
		return getAttr(obj, name)
	}
}

func setAttr(obj any, name string, v any) error {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return fmt.Errorf("%w: %s on nil object", ErrAttrNotFound, name)
	}

	if m := rv.MethodByName("Set" + name); m.IsValid() && m.Type().NumIn() == 1 {
		arg, err := coerce(v, m.Type().In(0))
		if err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		return callError(m.Call([]reflect.Value{arg}))
	}

	f, err := field(rv, name)
	if err != nil {
		return err
	}
	if !f.CanSet() {
		return fmt.Errorf("%w: %s on %T is not settable", ErrAttrNotFound, name, obj)
	}
	arg, err := coerce(v, f.Type())
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	f.Set(arg)
	return nil
}

func getAttr(obj any, name string) (any, error) {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: %s on nil object", ErrAttrNotFound, name)
	}

	for _, method := range []string{name, "Get" + name} {
		m := rv.MethodByName(method)
		if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() == 0 {
			continue
		}
		out := m.Call(nil)
		if err := callError(out[1:]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}

	f, err := field(rv, name)
	if err != nil {
		return nil, err
	}
	if !f.CanInterface() {
		return nil, fmt.Errorf("%w: %s on %T is unexported", ErrAttrNotFound, name, obj)
	}
	return f.Interface(), nil
}

func field(rv reflect.Value, name string) (reflect.Value, error) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %s on nil object", ErrAttrNotFound, name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s on %s", ErrAttrNotFound, name, rv.Type())
	}
	f := rv.FieldByName(name)
	if !f.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %s on %s", ErrAttrNotFound, name, rv.Type())
	}
	return f, nil
}

func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot assign %s to %s", ErrTypeMismatch, rv.Type(), t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// callError extracts a trailing error result.
func callError(out []reflect.Value) error {
	if len(out) == 0 {
		return nil
	}
	last := out[len(out)-1]
	if last.Type() != errorType || last.IsNil() {
		return nil
	}
	return last.Interface().(error) //nolint:errcheck,forcetypeassert // type checked above
}

// sameOwner compares target owners without panicking on uncomparable types.
func sameOwner(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
