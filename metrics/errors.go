package metrics

import "github.com/teranos/goload/errors"

// ErrChannelClosed is the error a user's logger records if an outcome is
// produced after the aggregator's channel has already been closed (the
// scheduler closing outcomes while a straggling goroutine is still
// reporting one, e.g. a hook that outlives its context).
var ErrChannelClosed = errors.New("metrics: outcome channel closed")
