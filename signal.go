package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// shutdownContext is canceled by SIGINT or SIGTERM, which aborts retry sleeps
// and in-flight requests while still letting the session flush the token
// cache. A second signal during that unwinding exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, interruptSignals...)

	go func() {
		<-ctx.Done()

		if parent.Err() != nil {
			stop()
			return
		}

		force := make(chan os.Signal, 1)
		signal.Notify(force, interruptSignals...)
		defer signal.Stop(force)

		stop()
		logger.Info("interrupted, canceling in-flight request")

		select {
		case sig := <-force:
			logger.Warn("interrupted again, exiting", slog.String("signal", sig.String()))
			os.Exit(exitInterrupted)
		case <-parent.Done():
		}
	}()

	return ctx
}
