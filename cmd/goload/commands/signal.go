package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchSignals cancels on the first signal received from sigCh, then calls
// exit(2) immediately on a second — an operator who wants out faster than
// the current run's graceful shutdown (every User finishing its current
// transaction step and throttle poll before going through OnStop) gets an
// immediate exit instead of waiting. Grounded in the original's double
// ctrl-c hard-exit rule.
func watchSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, exit func(int)) {
	if _, ok := <-sigCh; !ok {
		return
	}
	cancel()

	if _, ok := <-sigCh; !ok {
		return
	}
	exit(2)
}

// gracefulContext returns a context cancelled on the first SIGINT/SIGTERM a
// command receives, with a second one forcing an immediate process exit.
func gracefulContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go watchSignals(sigCh, cancel, os.Exit)

	return ctx, func() {
		cancel()
		signal.Stop(sigCh)
	}
}
