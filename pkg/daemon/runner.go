package daemon

import (
	"context"
	"log/slog"
	"os"
)

// RunLoop runs sup until it finishes or an interrupt arrives, whichever
// comes first. After an interrupt the loop's context is cancelled and the
// loop is still awaited, so its producer is killed before RunLoop returns.
func RunLoop(ctx context.Context, sup *Supervisor, interrupt <-chan os.Signal, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sup.Run(loopCtx)
	}()

	select {
	case err := <-done:
		return err
	case sig := <-interrupt:
		logger.Info("shutting down", "signal", sig)
		cancel()
	}

	// The loop only sees the cancellation between reads, so a producer that
	// prints nothing holds up the exit. Say so when the operator signals again.
	for {
		select {
		case err := <-done:
			return err
		case sig := <-interrupt:
			logger.Warn("still waiting for producer to emit a line before exiting", "signal", sig)
		}
	}
}
