// Package obs carries the service's observability surface: the shared
// JSON line logger that request logging and audit events write through,
// and the Prometheus metrics for HTTP traffic, issued tokens and denials.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger. Everything structured in this
// service (request logs, audit events) goes through it, one JSON object
// per line on stdout.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one structured JSON line; the caller supplies the
// fields (request id, method, path, status, duration).
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
