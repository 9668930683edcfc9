package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
)

func main() {
	// SIGINT is left to the shell, which uses it to cancel the question in
	// flight.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var reported *reportedError
	if !errors.As(err, &reported) {
		pterm.Fprintln(os.Stderr, pterm.Red("✗ "+err.Error()))
	}
	os.Exit(1)
}
