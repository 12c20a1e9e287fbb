package scheduler

import "github.com/teranos/goload/errors"

var (
	errNoScenarios       = errors.New("scheduler: no scenarios registered")
	errHookFailed        = errors.New("scheduler: on_start/on_stop hook reported failure")
	errTransactionFailed = errors.New("scheduler: transaction reported failure")
	errFatalConfig       = errors.New("scheduler: transaction reported fatal configuration error")
)

// ErrCancelled is returned by Run when the population was stopped by a
// parent context cancellation or shutdown signal rather than cfg.RunTime
// elapsing or every scenario completing naturally.
var ErrCancelled = errors.New("scheduler: run cancelled")
