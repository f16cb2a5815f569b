package worker

import (
	"log"
	"os"
	"strconv"
)

// dispatcherTrace is switched on with AGRIMATE_WORKER_DEBUG=1 (or true).
var dispatcherTrace = envFlag("AGRIMATE_WORKER_DEBUG")

func envFlag(name string) bool {
	on, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && on
}

func debugLog(format string, args ...interface{}) {
	if dispatcherTrace {
		log.Printf(format, args...)
	}
}
