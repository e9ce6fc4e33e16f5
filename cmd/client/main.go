package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pgdb "github.com/alanyang/ipc-bridge/internal/adapter/postgres"
	pgeventbus "github.com/alanyang/ipc-bridge/internal/adapter/postgres/eventbus"
	wsclient "github.com/alanyang/ipc-bridge/internal/adapter/websocket"
	"github.com/alanyang/ipc-bridge/internal/config"
	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/service/client"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	var (
		hostURL = flag.String("url", cfg.HostURL, "host base URL")
		ns      = flag.String("ns", "", "namespace to connect to (root when empty)")
		call    = flag.String("call", "", "function to invoke")
		rawArgs = flag.String("args", "[]", "JSON array of positional arguments")
		listen  = flag.String("listen", "", "subscribe to stream::event and print payloads until interrupted")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *hostURL, *ns, *call, *rawArgs, *listen); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, hostURL, ns, call, rawArgs, listen string) error {
	tr, err := wsclient.Dial(ctx, hostURL)
	if err != nil {
		return err
	}
	defer tr.Close()

	var opts []client.Option
	eventsGone := tr.Done()
	if cfg.DatabaseURL != "" {
		pool, err := pgdb.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		relay := pgeventbus.New(pool)
		if err := relay.Start(ctx); err != nil {
			return err
		}
		defer relay.Close()
		opts = append(opts, client.WithEventSource(relay))
		eventsGone = relay.Done()
	}

	b := client.New(tr, opts...)
	if err := b.Expose(ctx); err != nil {
		return err
	}
	node := b.Connect(ns)
	if node == nil {
		return fmt.Errorf("namespace %q not found", ns)
	}

	switch {
	case call != "":
		return invoke(ctx, node, call, rawArgs)
	case listen != "":
		return subscribe(ctx, node, listen, eventsGone)
	default:
		for _, name := range node.Names() {
			fmt.Println(name)
		}
		return nil
	}
}

func invoke(ctx context.Context, node *client.Node, name, rawArgs string) error {
	fn := node.Func(name)
	if fn == nil {
		return fmt.Errorf("no function %q", name)
	}
	var args []any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return fmt.Errorf("parsing -args: %w", err)
	}
	var out json.RawMessage
	if err := fn.Do(ctx, &out, args...); err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func subscribe(ctx context.Context, node *client.Node, target string, gone <-chan struct{}) error {
	name, sub, ok := channel.SplitEvent(target)
	if !ok {
		return fmt.Errorf("-listen wants stream::event, got %q", target)
	}
	ev := node.Events(name)
	if ev == nil {
		return fmt.Errorf("no event stream %q", name)
	}
	off := ev.On(sub, func(args message.Args) {
		data, _ := json.Marshal(args)
		fmt.Println(string(data))
	})
	defer off()

	select {
	case <-ctx.Done():
	case <-gone:
		return fmt.Errorf("event source lost")
	}
	return nil
}
