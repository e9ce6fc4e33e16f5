package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/alanyang/ipc-bridge/internal/domain/future"
)

var ErrShape = errors.New("client: remote shape does not match")

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
	futureType = reflect.TypeOf((*future.Future)(nil))
	eventsType = reflect.TypeOf((*Events)(nil))
)

type callMode int

const (
	modeAsync callMode = iota
	modeErr
	modeValueErr
)

// Connect fills a struct T with live handles into the mirror at namespace ns.
// T describes the host shape from the client's point of view; each exported
// field is matched by its `ipc:"name"` tag or, without one, by its name with
// the first letter lowered. Supported field types:
//
//	func(ctx context.Context, args...) *future.Future  // asynchronous handle
//	func(ctx context.Context, args...) (R, error)      // awaits, decodes into R
//	func(ctx context.Context, args...) error           // awaits, discards result
//	*Events                                            // subscription object
//
// Every callable gets exactly one asynchronous layer: a host function that
// itself replies asynchronously is seen here through its settlement.
func Connect[T any](b *Bridge, ns string) (T, error) {
	var out T
	node := b.Connect(ns)
	if node == nil {
		if b.slot.Load() == nil {
			return out, ErrNotExposed
		}
		return out, fmt.Errorf("%w: namespace %q not discovered", ErrShape, ns)
	}

	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		return out, fmt.Errorf("%w: %s is not a struct", ErrShape, rv.Type())
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("ipc")
		if name == "-" {
			continue
		}
		if name == "" {
			name = lowerFirst(field.Name)
		}

		switch {
		case field.Type == eventsType:
			ev := node.Events(name)
			if ev == nil {
				return out, fmt.Errorf("%w: no event stream %q", ErrShape, name)
			}
			rv.Field(i).Set(reflect.ValueOf(ev))
		case field.Type.Kind() == reflect.Func:
			inv := node.Func(name)
			if inv == nil {
				return out, fmt.Errorf("%w: no function %q", ErrShape, name)
			}
			fn, err := makeCaller(field.Type, inv)
			if err != nil {
				return out, fmt.Errorf("field %s: %w", field.Name, err)
			}
			rv.Field(i).Set(fn)
		default:
			return out, fmt.Errorf("%w: field %s has unsupported type %s", ErrShape, field.Name, field.Type)
		}
	}
	return out, nil
}

func makeCaller(ft reflect.Type, inv *Invoker) (reflect.Value, error) {
	if ft.NumIn() == 0 || ft.In(0) != ctxType {
		return reflect.Value{}, fmt.Errorf("%w: first parameter must be context.Context", ErrShape)
	}

	var mode callMode
	switch {
	case ft.NumOut() == 1 && ft.Out(0) == futureType:
		mode = modeAsync
	case ft.NumOut() == 1 && ft.Out(0) == errType:
		mode = modeErr
	case ft.NumOut() == 2 && ft.Out(1) == errType:
		mode = modeValueErr
	default:
		return reflect.Value{}, fmt.Errorf("%w: unsupported results %s", ErrShape, ft)
	}

	return reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		ctx, _ := in[0].Interface().(context.Context)
		if ctx == nil {
			ctx = context.Background()
		}
		f := inv.Call(ctx, collectArgs(ft, in[1:])...)

		switch mode {
		case modeAsync:
			return []reflect.Value{reflect.ValueOf(f)}
		case modeErr:
			_, err := f.Await(ctx)
			return []reflect.Value{errValue(err)}
		default:
			res := reflect.New(ft.Out(0))
			v, err := f.Await(ctx)
			if err == nil {
				err = decodeResult(v, res.Interface())
			}
			return []reflect.Value{res.Elem(), errValue(err)}
		}
	}), nil
}

func collectArgs(ft reflect.Type, in []reflect.Value) []any {
	args := make([]any, 0, len(in))
	for i, v := range in {
		if ft.IsVariadic() && i == len(in)-1 {
			for j := 0; j < v.Len(); j++ {
				args = append(args, v.Index(j).Interface())
			}
			continue
		}
		args = append(args, v.Interface())
	}
	return args
}

func errValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errType)
	}
	return reflect.ValueOf(&err).Elem()
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
