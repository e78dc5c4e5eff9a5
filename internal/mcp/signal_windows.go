//go:build windows

package mcp

import (
	"os"
	"os/signal"
)

// notifySignals registers the signals that stop the stdio server.
// Windows has no SIGTERM; only Ctrl+C is delivered.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
