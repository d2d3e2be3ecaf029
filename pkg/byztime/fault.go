package byztime

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// The source domain implements the consumer read path's fault tolerance
// with a thread-local resumption token and a process-wide SIGBUS handler
// installed by the host application: on entry a token is published, a
// synchronous bus fault reads it and jumps to the scope's failure exit, and
// on normal exit the token is cleared.
//
// Go already gives every goroutine the equivalent of that thread-local slot
// in the form of its own deferred-recover chain, and runtime/debug exposes
// the signal-to-panic conversion directly: SetPanicOnFault(true) turns a
// synchronous SIGSEGV/SIGBUS taken while dereferencing Go-managed memory
// (which is exactly what happens when a consumer reads into a region whose
// backing file was truncated out from under the mapping) into an ordinary
// runtime panic on the faulting goroutine, instead of a fatal crash. A
// deferred recover() in withFaultRecovery is therefore the scope: no global
// handler registration, no thread-local bookkeeping, and faults outside the
// scope or on goroutines that never called it still crash the process, same
// as the source's "asynchronous faults propagate to the previous handler"
// rule. SetPanicOnFault is a per-goroutine setting, so withFaultRecovery
// enables it on the calling goroutine for the duration of fn and restores the
// previous setting on exit.

// withFaultRecovery runs fn inside a page-fault recovery scope. A fault
// raised while fn accesses the mapped region is converted to ErrProtocol.
// A panic that does not originate from a runtime memory fault (a genuine
// programming error) is not a fault this scope is responsible for and is
// re-raised.
func withFaultRecovery[T any](fn func() (T, error)) (result T, err error) {
	prev := debug.SetPanicOnFault(true)

	defer func() {
		debug.SetPanicOnFault(prev)

		r := recover()
		if r == nil {
			return
		}

		// Faults converted by SetPanicOnFault carry the faulting address;
		// other runtime errors (bounds, nil map, ...) do not.
		if _, ok := r.(interface {
			runtime.Error
			Addr() uintptr
		}); ok {
			err = fmt.Errorf("page fault reading region: %w", ErrProtocol)

			return
		}

		panic(r)
	}()

	return fn()
}
