// Package signal ties process lifetime to SIGINT/SIGTERM.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. Call stop
// to release the signal registration; a second signal then terminates the
// process via the default handler.
func NotifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
