package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyang/ipc-bridge/internal/domain/entry"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
	"github.com/alanyang/ipc-bridge/internal/service/host"
)

var errDivideByZero = errors.New("divide by zero")

// registerDemo exposes a small surface: a root greeting, a calc namespace and
// a clock stream that ticks every second until ctx ends.
func registerDemo(ctx context.Context, svc *host.Service) error {
	clock := stream.New()

	svc.Register(entry.Set{
		"greet": entry.Function(func(name string) string {
			if name == "" {
				return "hi"
			}
			return "hi " + name
		}),
		"clock": entry.Events(clock),
	})

	if err := svc.RegisterNamespace("calc", entry.Set{
		"add": entry.Function(func(a, b float64) float64 { return a + b }),
		"sum": entry.Function(func(nums ...float64) float64 {
			var total float64
			for _, n := range nums {
				total += n
			}
			return total
		}),
		"divide": entry.Function(func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errDivideByZero
			}
			return a / b, nil
		}),
	}); err != nil {
		return fmt.Errorf("register calc: %w", err)
	}

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				clock.Emit(ctx, "tick", now.UTC().Format(time.RFC3339))
			}
		}
	}()
	return nil
}
