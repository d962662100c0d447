// Package monitoring holds the diagnostic logger shared by the batch engine.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf so
// batch progress lands on stderr with a timestamp. Tests can mute or capture
// it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger and returns the previous one so
// callers can restore it. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	prev := Logf
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return prev
	}
	Logf = f
	return prev
}
