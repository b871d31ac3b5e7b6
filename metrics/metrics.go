package metrics

import "time"

// Recorder records payment engine events. Labels understood by the
// Prometheus implementation are "token" and "network".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
