// Package cmd provides common command line tools for the acmekit binaries.
package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cpu/acmekit/internal/logging"
)

// FailOnError logs err with msg and exits when err is not nil.
func FailOnError(logger *slog.Logger, err error, msg string) {
	// If there wasn't an error, return
	if err == nil {
		return
	}

	// Otherwise, log the error and fail
	logging.Error(logger, msg, err)
	os.Exit(1)
}

var signalToName = map[os.Signal]string{
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGHUP:  "SIGHUP",
}

// CatchSignals catches SIGTERM, SIGINT, SIGHUP and executes a callback
// method before exiting
func CatchSignals(logger *slog.Logger, callback func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info("caught signal", "signal", signalToName[sig])

	if callback != nil {
		callback()
	}

	logger.Info("exiting")
	os.Exit(0)
}
