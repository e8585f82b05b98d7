package hubconn

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/HMasataka/hubconn/hub"
)

// HandlerProvider lets a subscriber resolve its handlers itself instead of
// exposing them as methods.
type HandlerProvider interface {
	Handler(name string) (hub.HandlerFunc, bool)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// resolveHandler finds the handler called name on instance. Methods may take
// a leading context.Context, then one parameter per event argument decoded
// from JSON, and may return an error.
func resolveHandler(instance any, name string) (hub.HandlerFunc, error) {
	if hp, ok := instance.(HandlerProvider); ok {
		if fn, ok := hp.Handler(name); ok && fn != nil {
			return fn, nil
		}
	}

	v := reflect.ValueOf(instance)
	m := v.MethodByName(name)
	if !m.IsValid() {
		m = v.MethodByName(exported(name))
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%T has no method %q", instance, name)
	}
	return adaptMethod(m, name)
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func adaptMethod(m reflect.Value, name string) (hub.HandlerFunc, error) {
	mt := m.Type()
	if mt.IsVariadic() {
		return nil, fmt.Errorf("method %q is variadic", name)
	}

	switch mt.NumOut() {
	case 0:
	case 1:
		if mt.Out(0) != errorType {
			return nil, fmt.Errorf("method %q must return nothing or error", name)
		}
	default:
		return nil, fmt.Errorf("method %q must return nothing or error", name)
	}

	withCtx := mt.NumIn() > 0 && mt.In(0) == contextType
	first := 0
	if withCtx {
		first = 1
	}
	params := make([]reflect.Type, 0, mt.NumIn()-first)
	for i := first; i < mt.NumIn(); i++ {
		params = append(params, mt.In(i))
	}

	return func(ctx context.Context, args hub.Args) error {
		in := make([]reflect.Value, 0, mt.NumIn())
		if withCtx {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i, pt := range params {
			v := reflect.New(pt)
			if i < len(args) {
				if err := json.Unmarshal(args[i], v.Interface()); err != nil {
					return fmt.Errorf("%s argument %d: %w", name, i, err)
				}
			}
			in = append(in, v.Elem())
		}

		out := m.Call(in)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

func typeName(v any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}
