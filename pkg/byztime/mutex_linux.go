package byztime

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Process-shared mutex embedded in the region header at offMutex.
//
// This is a futex-style word rather than a pthread mutex: a single uint32,
// zero meaning unlocked, one meaning locked-uncontended, two meaning
// locked-contended. It needs no initialization beyond zeroing, which lets
// the provider reset it unconditionally on every open_rw (the file lock
// already guarantees no other writer is running, so resetting a mutex a
// crashed writer left held is always safe).
const (
	mutexUnlocked  = 0
	mutexLocked    = 1
	mutexContended = 2
)

func mutexWord(region []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&region[offMutex]))
}

// resetMutex clears the header mutex word. Called by the provider on every
// open_rw; see the package-level note above.
func resetMutex(region []byte) {
	atomic.StoreUint32(mutexWord(region), mutexUnlocked)
}

// lockHeaderMutex acquires the process-shared mutex, spinning briefly before
// falling back to FUTEX_WAIT. Hold time is always tiny (an entry copy plus a
// few comparisons, no syscalls), so contention is expected to be rare.
func lockHeaderMutex(region []byte) {
	word := mutexWord(region)

	for spins := 0; spins < 64; spins++ {
		if atomic.CompareAndSwapUint32(word, mutexUnlocked, mutexLocked) {
			return
		}

		runtime.Gosched()
	}

	for {
		old := atomic.SwapUint32(word, mutexContended)
		if old == mutexUnlocked {
			return
		}

		_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(word)),
			uintptr(unix.FUTEX_WAIT), uintptr(mutexContended), 0, 0, 0)
		if errno != 0 && errno != unix.EAGAIN && errno != unix.EINTR {
			// Unexpected futex failure: fall back to spinning rather than
			// risk a permanently stuck lock.
			runtime.Gosched()
		}
	}
}

// unlockHeaderMutex releases the process-shared mutex, waking one waiter if
// the word indicated contention.
func unlockHeaderMutex(region []byte) {
	word := mutexWord(region)

	if atomic.SwapUint32(word, mutexUnlocked) == mutexContended {
		_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(word)),
			uintptr(unix.FUTEX_WAKE), 1, 0, 0, 0)
	}
}
