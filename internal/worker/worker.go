// Package worker implements the restartable background task runtime
// run the worker, isolate panics, sleep, repeat forever.
package worker

import (
	"runtime/debug"
	"time"

	"lnledger/pkg/logger"

	"go.uber.org/zap"
)

// Worker is a single background loop iteration plus its own backoff.
type Worker interface {
	// Run performs one cycle of work. A returned error is logged by the
	// runtime; it does not stop the worker.
	Run() error
	// Timeout is how long the runtime sleeps after Run returns, whether
	// Run succeeded, failed, or panicked.
	Timeout() time.Duration
	// Name identifies the worker in logs.
	Name() string
}

// Start spawns a goroutine that repeatedly calls w.Run() with panic
// isolation, then sleeps w.Timeout(), forever. There is no graceful
// shutdown; callers that need one should make w.Run() observe ctx
// cancellation internally and return promptly. A panic in Run is
// swallowed and logged here — it must never take the process down, since
// it is the only defense against a malformed node response killing
// settlement forever.
func Start(w Worker) {
	go func() {
		for {
			runIsolated(w)
			time.Sleep(w.Timeout())
		}
	}()
}

func runIsolated(w Worker) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked, isolating and continuing",
				zap.String("worker", w.Name()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := w.Run(); err != nil {
		logger.Error("worker run failed", zap.String("worker", w.Name()), zap.Error(err))
	}
}
