package entry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/alanyang/ipc-bridge/internal/domain/message"
)

var (
	ctxType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType  = reflect.TypeOf((*error)(nil)).Elem()
	funcType = reflect.TypeOf(Func(nil))
)

// Function adapts an arbitrary Go func into a function entry.
//
// An optional leading context.Context receives the invocation context. The
// remaining parameters are decoded from the positional arguments in order;
// missing arguments stay at their zero value and extra ones are ignored. A
// variadic tail absorbs every remaining argument.
//
// Accepted result shapes are (), (T), (error) and (T, error). Anything else,
// or a non-func value, yields an invalid entry.
func Function(fn any) Entry {
	if fn == nil {
		return Entry{}
	}
	if f, ok := fn.(Func); ok {
		return Handler(f)
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func || v.IsNil() || !resultsSupported(t) {
		return Entry{}
	}
	if t.ConvertibleTo(funcType) {
		return Handler(v.Convert(funcType).Interface().(Func))
	}
	return Entry{Kind: KindFunction, Func: adapt(v, t)}
}

func resultsSupported(t reflect.Type) bool {
	switch t.NumOut() {
	case 0, 1:
		return true
	case 2:
		return t.Out(1) == errType
	default:
		return false
	}
}

func adapt(v reflect.Value, t reflect.Type) Func {
	takesCtx := t.NumIn() > 0 && t.In(0) == ctxType
	return func(ctx context.Context, args message.Args) (any, error) {
		in, err := decodeParams(ctx, t, takesCtx, args)
		if err != nil {
			return nil, err
		}
		return splitResults(t, v.Call(in))
	}
}

func decodeParams(ctx context.Context, t reflect.Type, takesCtx bool, args message.Args) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, t.NumIn())
	offset := 0
	if takesCtx {
		in = append(in, reflect.ValueOf(ctx))
		offset = 1
	}

	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
	}
	for i := offset; i < fixed; i++ {
		val, err := decodeInto(t.In(i), args, i-offset)
		if err != nil {
			return nil, err
		}
		in = append(in, val)
	}
	if t.IsVariadic() {
		elem := t.In(fixed).Elem()
		for ai := fixed - offset; ai < len(args); ai++ {
			val, err := decodeInto(elem, args, ai)
			if err != nil {
				return nil, err
			}
			in = append(in, val)
		}
	}
	return in, nil
}

func decodeInto(pt reflect.Type, args message.Args, i int) (reflect.Value, error) {
	ptr := reflect.New(pt)
	if i < len(args) {
		if err := json.Unmarshal(args[i], ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("decoding argument %d as %s: %w", i, pt, err)
		}
	}
	return ptr.Elem(), nil
}

func splitResults(t reflect.Type, out []reflect.Value) (any, error) {
	switch t.NumOut() {
	case 0:
		return nil, nil
	case 1:
		if t.Out(0) == errType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}
