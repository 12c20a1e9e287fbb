package wire

import (
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
)

// LoadTestHash derives a stable identifier for a set of registered
// scenario names, so a manager can detect a worker that connected running
// a different load test. Because it's computed from deterministic CBOR
// encoding of a sorted name list, it's stable across process restarts as
// long as the scenario set is unchanged, matching the spirit of the
// original implementation's task_sets_hash.
func LoadTestHash(scenarioNames []string) uint32 {
	names := append([]string(nil), scenarioNames...)
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}

	b, err := encMode.Marshal(names)
	if err != nil {
		return 0
	}
	return crc32.ChecksumIEEE(b)
}
