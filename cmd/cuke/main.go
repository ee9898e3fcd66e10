package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/internal/app"
	"github.com/a2y-d5l/cuke/internal/cli"
)

// main is the entrypoint for the cuke command.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.Message)
		os.Exit(exitErr.Code)
	}
	if !errors.Is(err, app.ErrRunFailed) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// run holds the main logic, separated from process exit for testing.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	// Use a minimal logger until the full one is configured.
	parseLogger := slog.New(slog.NewTextHandler(errW, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, shouldExit, err := cli.Parse(cuke.WithLogger(ctx, parseLogger), args, errW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	_, err = app.New(outW, cfg).Run(ctx)
	return err
}
