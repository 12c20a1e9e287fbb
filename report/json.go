package report

import (
	"encoding/json"
)

// MarshalJSON marshals v as indented JSON for --json output. The
// --metrics-file JSON-lines log is written by logsink, not by this.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
