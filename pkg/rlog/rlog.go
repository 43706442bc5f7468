// Package rlog provides the relayer's shared logging convention: every
// long-lived component gets a prefixed *log.Logger, defaulting to stderr
// when the caller doesn't supply one.
package rlog

import (
	"log"
	"os"
)

// New returns a logger prefixed with the given component name, writing to
// stderr with standard timestamp flags. Passing the result (or nil) to a
// constructor is the idiom used throughout the relayer.
func New(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}

// OrDefault returns logger if non-nil, otherwise a fresh logger for
// component. Constructors use this so callers may pass nil.
func OrDefault(logger *log.Logger, component string) *log.Logger {
	if logger != nil {
		return logger
	}
	return New(component)
}
