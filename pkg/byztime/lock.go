package byztime

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Locking architecture
//
//  1. writerRegistry entry — per dev:inode guard against more than one
//     writer Context in this process for the same region file. The sidecar
//     lock is keyed by path, so a second open_rw that reaches the same file
//     through another path takes a different <path>.lock; the registry
//     still refuses it.
//  2. sidecar file lock — exclusive, non-blocking flock(2) on
//     <path>.lock, mode 0600, the authoritative cross-process exclusion
//     mechanism described by invariant I5.
//  3. header mutex (mutex_linux.go) — serializes concurrent writer
//     threads inside a single writer process; irrelevant to readers.
//
// Lock ordering: sidecar file lock -> writerRegistry -> header mutex.

// writerRegistry tracks file identities with an active in-process writer
// Context, so a second open_rw against the same file from the same process
// fails with ErrBusy even when it names the file by another path.
var writerRegistry sync.Map // map[fileIdentity]*int32 (always 1 while present)

type fileIdentity struct {
	dev uint64
	ino uint64
}

func getFileIdentity(f *os.File) (fileIdentity, error) {
	var stat unix.Stat_t

	if err := unix.Fstat(int(f.Fd()), &stat); err != nil {
		return fileIdentity{}, fmt.Errorf("fstat: %w: %w", ErrIOFailure, err)
	}

	return fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino}, nil
}

func claimWriterIdentity(id fileIdentity) bool {
	var marker int32

	atomic.StoreInt32(&marker, 1)
	_, loaded := writerRegistry.LoadOrStore(id, &marker)

	return !loaded
}

func releaseWriterIdentity(id fileIdentity) {
	writerRegistry.Delete(id)
}

// sidecarLock holds the advisory file lock backing invariant I5.
type sidecarLock struct {
	file *os.File
}

// acquireSidecarLock opens (creating if needed) <path>.lock mode 0600 and
// takes an exclusive, non-blocking advisory lock on it.
func acquireSidecarLock(path string) (*sidecarLock, error) {
	lockPath := path + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w: %w", lockPath, ErrIOFailure, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrBusy
		}

		return nil, fmt.Errorf("flock %s: %w: %w", lockPath, ErrIOFailure, err)
	}

	return &sidecarLock{file: f}, nil
}

// release unlocks and closes the lock file. The lock file itself is left in
// place; its presence without a holder is harmless (§6.2).
func (l *sidecarLock) release() {
	if l == nil || l.file == nil {
		return
	}

	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
}
