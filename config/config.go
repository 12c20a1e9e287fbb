// Package config defines the validated configuration record shared by the
// scheduler, manager, worker, and requester packages, plus the flag/env/file
// loading that builds one.
package config

import (
	"time"

	"github.com/teranos/goload/errors"
)

// ErrInvalidConfig is wrapped with details describing the specific
// impossible combination that was rejected.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config mirrors the spec's configuration record. It is built once by
// cmd/goload (flag > env > file > default precedence) and then treated as
// immutable by every consumer.
type Config struct {
	Users            int
	HatchRate        float64
	RunTime          time.Duration
	ThrottleRequests int
	MetricsFile      string
	OnlySummary      bool

	Manager         bool
	Worker          bool
	ManagerBindHost string
	ManagerBindPort int
	ExpectWorkers   int
	NoHashCheck     bool

	ManagerHost string // where a Worker dials to reach the Manager

	Host    string
	Timeout time.Duration
}

// Default returns a Config with the spec's documented defaults.
func Default() Config {
	return Config{
		Users:            1,
		HatchRate:        1,
		RunTime:          0, // 0 means run until cancelled
		ThrottleRequests: 0, // 0 means unthrottled
		ManagerBindHost:  "0.0.0.0",
		ManagerBindPort:  5115,
		Timeout:          60 * time.Second,
	}
}

// Validate rejects impossible flag combinations, returning a wrapped
// ErrInvalidConfig with a corrective hint.
func (c Config) Validate() error {
	if c.Manager && c.Worker {
		return errors.WithHint(
			errors.Wrap(ErrInvalidConfig, "--manager and --worker are mutually exclusive"),
			"pass only one of --manager or --worker",
		)
	}

	if c.Worker && c.ExpectWorkers != 0 {
		return errors.WithHint(
			errors.Wrap(ErrInvalidConfig, "--expect-workers is only meaningful with --manager"),
			"remove --expect-workers, or pass --manager instead of --worker",
		)
	}

	if c.Manager && c.ExpectWorkers <= 0 {
		return errors.WithHint(
			errors.Wrap(ErrInvalidConfig, "--manager requires --expect-workers > 0"),
			"set --expect-workers to the number of workers you will start",
		)
	}

	if c.Users < 0 {
		return errors.Wrap(ErrInvalidConfig, "--users must be >= 0")
	}

	if !c.Worker && c.Manager && c.Users == 0 {
		return errors.WithHint(
			errors.Wrap(ErrInvalidConfig, "--manager with zero --users has nothing to distribute"),
			"set --users to the total across all workers",
		)
	}

	if c.HatchRate <= 0 && !c.Worker {
		return errors.Wrap(ErrInvalidConfig, "--hatch-rate must be > 0")
	}

	if c.ThrottleRequests < 0 {
		return errors.Wrap(ErrInvalidConfig, "--throttle-requests must be >= 0")
	}

	if c.Worker && c.ManagerHost == "" {
		return errors.WithHint(
			errors.Wrap(ErrInvalidConfig, "--worker requires a manager host to dial"),
			"pass --manager-host",
		)
	}

	return nil
}
