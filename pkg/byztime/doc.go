// Package byztime implements the shared-memory IPC protocol between a
// time-synchronization provider and its consumers.
//
// A Provider opens a 4096-byte region file read-write, exclusively, and
// publishes (offset, error, as_of) entries into a ring buffer using a
// single-writer/many-reader seqlock protocol. Any number of Consumers open
// the same file read-only and read the latest entry, turning it into
// bounded (min, est, max) estimates of either the clock offset or the
// current global time.
//
// The region survives reboots: a Provider re-initializes it when the
// host's clock era changes, carrying forward its last known offset to the
// wall clock so the first post-reboot entry is a useful guess before any
// network time sync completes.
//
// Consumers tolerate a region file truncated out from under them by a
// buggy or hostile writer: reads run inside a page-fault recovery scope
// (see fault.go) that converts the resulting fault into ErrProtocol
// instead of crashing the process.
package byztime
