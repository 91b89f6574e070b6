package logger

import (
	"strings"
	"sync/atomic"
)

var (
	errorsTotal int64
	warnsTotal  int64
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "supervisor") {
		atomic.AddInt64(&warnsTotal, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "supervisor") {
		atomic.AddInt64(&errorsTotal, 1)
	}
}

// Counters returns the running totals of Warn/Error calls logged through
// components whose name mentions stream or supervisor, for a periodic
// health log line in cmd/marketstream.
func Counters() (warns, errors int64) {
	return atomic.LoadInt64(&warnsTotal), atomic.LoadInt64(&errorsTotal)
}
