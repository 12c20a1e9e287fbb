package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: run summary, errors with hints
//	1 (-v)      - + Progress, startup banner, hatch status, scenario/transaction names
//	2 (-vv)     - + Per-request timing, config loaded, throttle state
//	3 (-vvv)    - + Worker/manager gaggle protocol frames, internal scheduler flow
//	4 (-vvvv)   - + Full request/response bodies, wire protocol dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Final run summary, metrics report
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress      // Progress indicators (e.g. hatching users, elapsed time)
	OutputStartup       // Startup banners, config summary
	OutputHatch         // Virtual user hatch/stop events
	OutputOperationInfo // High-level operation summaries
	OutputScenarioInfo  // Scenario/transaction names as they run

	// Level 2 (-vv) - Detailed
	OutputRequestTiming // Per-request timing
	OutputConfig        // Config values loaded/applied
	OutputThrottleState // Throttle token availability/backpressure
	OutputHTTPStatus    // HTTP response status codes
	OutputCadence       // Cadence/coordinated-omission adjustments

	// Level 3 (-vvv) - Debug
	OutputGaggleProtocol // Manager/worker gaggle command frames
	OutputInternalFlow   // Internal scheduler/transaction flow
	OutputWireFrame      // Wire frame send/receive events

	// Level 4 (-vvvv) - Full dump
	OutputHTTPBody     // Full HTTP request/response bodies
	OutputWireBody     // Full wire protocol payload dumps
	OutputDataDump     // Full data structure contents
	OutputMetricsDump  // Full per-request metrics records
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	// Level 0 - Always shown
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	// Level 1 - Informational
	OutputProgress:      VerbosityInfo,
	OutputStartup:       VerbosityInfo,
	OutputHatch:         VerbosityInfo,
	OutputOperationInfo: VerbosityInfo,
	OutputScenarioInfo:  VerbosityInfo,

	// Level 2 - Detailed
	OutputRequestTiming: VerbosityDebug,
	OutputConfig:        VerbosityDebug,
	OutputThrottleState: VerbosityDebug,
	OutputHTTPStatus:    VerbosityDebug,
	OutputCadence:       VerbosityDebug,

	// Level 3 - Debug
	OutputGaggleProtocol: VerbosityTrace,
	OutputInternalFlow:   VerbosityTrace,
	OutputWireFrame:      VerbosityTrace,

	// Level 4 - Full dump
	OutputHTTPBody:    VerbosityAll,
	OutputWireBody:    VerbosityAll,
	OutputDataDump:    VerbosityAll,
	OutputMetricsDump: VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:        "results",
	OutputErrors:         "errors",
	OutputUserStatus:     "status",
	OutputProgress:       "progress",
	OutputStartup:        "startup",
	OutputHatch:          "hatch",
	OutputOperationInfo:  "operation-info",
	OutputScenarioInfo:   "scenario-info",
	OutputRequestTiming:  "request-timing",
	OutputConfig:         "config",
	OutputThrottleState:  "throttle-state",
	OutputHTTPStatus:     "http-status",
	OutputCadence:        "cadence",
	OutputGaggleProtocol: "gaggle-protocol",
	OutputInternalFlow:   "internal-flow",
	OutputWireFrame:      "wire-frame",
	OutputHTTPBody:       "http-body",
	OutputWireBody:       "wire-body",
	OutputDataDump:       "data-dump",
	OutputMetricsDump:    "metrics-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "run summary and errors only"
	case VerbosityInfo:
		return "summary, errors, progress, hatch events, scenario names"
	case VerbosityDebug:
		return "above + request timing, config, throttle state"
	case VerbosityTrace:
		return "above + gaggle protocol frames, internal scheduler flow"
	case VerbosityAll:
		return "above + full bodies, wire dumps, metrics records"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}

// Gaggle (manager/worker) output helpers

// ShouldShowGaggleProtocol returns true if manager/worker command frames should be logged
func ShouldShowGaggleProtocol(verbosity int) bool {
	return ShouldOutput(verbosity, OutputGaggleProtocol)
}

// ShouldShowWireFrame returns true if wire send/receive events should be logged
func ShouldShowWireFrame(verbosity int) bool {
	return ShouldOutput(verbosity, OutputWireFrame)
}

// ShouldShowWireBody returns true if full wire payloads should be dumped
func ShouldShowWireBody(verbosity int) bool {
	return ShouldOutput(verbosity, OutputWireBody)
}

// Timing helpers

// SlowThresholdMS is the threshold in milliseconds above which request timing is always shown
const SlowThresholdMS = 1000

// ShouldShowTiming returns true if timing info should be displayed.
// Shows if: verbosity >= 2 (-vv) OR the request exceeded the slow threshold.
func ShouldShowTiming(verbosity int, durationMS int64) bool {
	if durationMS >= SlowThresholdMS {
		return true // Always surface slow requests
	}
	return ShouldOutput(verbosity, OutputRequestTiming)
}

// ShouldShowTimingAlways returns true if timing should always be shown (slow request)
func ShouldShowTimingAlways(durationMS int64) bool {
	return durationMS >= SlowThresholdMS
}
