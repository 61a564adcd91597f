// Package debug provides lightweight diagnostic logging gated by the
// TMS_DEBUG environment variable. Output goes to stderr so it never mixes
// with --json machine output on stdout.
package debug

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	once    sync.Once
	enabled bool
)

// Enabled reports whether debug logging is on (TMS_DEBUG=1 or TMS_DEBUG=true).
func Enabled() bool {
	once.Do(func() {
		v := os.Getenv("TMS_DEBUG")
		enabled = v == "1" || v == "true"
	})
	return enabled
}

// Logf writes a timestamped debug line to stderr when debugging is enabled.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "[tms %s] %s\n",
		time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
