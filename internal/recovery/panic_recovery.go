package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// WithRecoveryNamed runs fn in the current goroutine with a panic guard. A
// crashing producer must not take the whole tracker down.
func WithRecoveryNamed(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			slog.Error("goroutine_panic_recovered",
				slog.String("worker_name", name),
				slog.String("error", fmt.Sprintf("%v", r)),
				slog.String("stack", stack),
			)
		}
	}()
	fn()
}
