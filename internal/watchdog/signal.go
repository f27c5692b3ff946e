package watchdog

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Reloader receives the events ListenSignals translates from OS signals.
type Reloader interface {
	RequestReload()
	Shutdown(cause error)
}

// ListenSignals routes reload to r.RequestReload and SIGINT/SIGTERM to
// r.Shutdown(nil) until the returned stop function is called.
//
// Signal delivery never blocks on the control loop: os/signal drops
// deliveries while the buffer is full, and RequestReload only offers to the
// mailbox.
func ListenSignals(log *zap.Logger, r Reloader, reload syscall.Signal) (stop func()) {
	log = log.Named("signals")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, reload, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				if sig == reload {
					log.Info("reload signal received", zap.String("signal", sig.String()))
					r.RequestReload()
					continue
				}
				log.Info("shutdown signal received", zap.String("signal", sig.String()))
				r.Shutdown(nil)
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
		<-exited
	}
}
