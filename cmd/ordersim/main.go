// ordersim fires a batch of concurrent order creations for one vendor and
// prints the resulting report. With --method both it runs the unsafe batch
// first, then the safe one, so the two reports can be compared.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/jdziat/keyed-jobs/pkg/orders"
	"github.com/jdziat/keyed-jobs/pkg/queue"
	"github.com/jdziat/keyed-jobs/pkg/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("ordersim", pflag.ContinueOnError)
	vendor := flags.StringP("vendor", "v", "vendor-123", "vendor id used as the serialization key")
	count := flags.IntP("count", "n", orders.DefaultCount, "number of concurrent orders")
	method := flags.StringP("method", "m", "both", "safe, unsafe or both")
	latency := flags.Duration("latency", orders.DefaultLatency, "simulated work per order")
	asJSON := flags.Bool("json", false, "print reports as JSON")
	verbose := flags.Bool("verbose", false, "log job lifecycle")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var methods []string
	switch *method {
	case "both":
		methods = []string{orders.MethodUnsafe, orders.MethodSafe}
	case orders.MethodSafe, orders.MethodUnsafe:
		methods = []string{*method}
	default:
		return fmt.Errorf("%w: %q", orders.ErrUnknownMethod, *method)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.NewMemoryStorage()
	q := queue.New(store, queue.WithLogger(logger))
	svc := orders.NewService(q, store, orders.WithLatency(*latency))

	for _, m := range methods {
		start := time.Now()
		res, err := svc.Simulate(ctx, orders.SimulateRequest{VendorID: *vendor, Count: *count, Method: m})
		if err != nil {
			return err
		}
		if err := q.Wait(ctx); err != nil {
			return err
		}
		report, err := svc.Report(ctx)
		if err != nil {
			return err
		}
		if err := printReport(out, res, report, time.Since(start), *asJSON); err != nil {
			return err
		}
	}
	return nil
}

func printReport(out io.Writer, res *orders.SimulateResult, r *orders.Report, took time.Duration, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"method": res.Method, "report": r})
	}

	fmt.Fprintf(out, "== %s (%s)\n", res.Method, took.Round(time.Millisecond))
	fmt.Fprintf(out, "%s\n", res.Note)
	for vendor, ids := range r.OrderIDsByVendor {
		fmt.Fprintf(out, "  %s: %v\n", vendor, ids)
		if dups, ok := r.Duplicates[vendor]; ok {
			fmt.Fprintf(out, "  duplicates: %v\n", dups)
		}
	}
	fmt.Fprintf(out, "  %s\n\n", r.Status)
	return nil
}
