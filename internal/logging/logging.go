// Package logging wraps the standard logger with a VERBOSE_LOGGING-gated
// Debugf, matching the teacher's getenvBool-driven feature-toggle idiom
// rather than introducing a structured logging library.
package logging

import (
	"log"
	"os"
	"strings"
)

var verbose = parseBool(os.Getenv("VERBOSE_LOGGING"))

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// SetVerbose overrides the VERBOSE_LOGGING-derived default; main calls it
// with config.Config's VerboseLogging once the config is loaded.
func SetVerbose(v bool) {
	verbose = v
}

// Debugf logs only when verbose logging is enabled.
func Debugf(format string, args ...interface{}) {
	if !verbose {
		return
	}
	log.Printf(format, args...)
}

// Infof always logs, matching the teacher's plain log.Printf throughout.
func Infof(format string, args ...interface{}) {
	log.Printf(format, args...)
}
