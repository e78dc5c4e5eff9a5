//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals registers the signals that cancel a simulation between runs.
// Windows has no SIGTERM; only Ctrl+C is delivered.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
