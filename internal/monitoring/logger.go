package monitoring

import (
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger used by the reduction
// packages. It defaults to log.Printf and may be replaced by SetLogger so
// tests or callers can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Section logs a separator line followed by title, marking the start of a
// processing stage in the console output.
func Section(title string) {
	Logf("%s", strings.Repeat("-", 69))
	Logf("%s", title)
}
