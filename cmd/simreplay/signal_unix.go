//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals forwards SIGINT and SIGTERM to ch so a running replay is
// cancelled between steps.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
