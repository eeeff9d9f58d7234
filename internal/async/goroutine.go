// Package async runs background goroutines with panic isolation, so a
// misbehaving summarizer or sweeper cannot take down the process.
package async

import "runtime/debug"

// PanicLogger receives panic reports. logging.Logger satisfies it.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go starts fn on its own goroutine. A panic in fn is logged under name and
// swallowed.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(logger, name, r)
			}
		}()
		fn()
	}()
}

func report(logger PanicLogger, name string, cause any) {
	if logger == nil {
		return
	}
	if name == "" {
		name = "anonymous"
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, cause, debug.Stack())
}
