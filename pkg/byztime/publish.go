package byztime

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

func indexWord(region []byte) *int32 {
	return (*int32)(unsafe.Pointer(&region[offIndex]))
}

func loadIndexAcquire(region []byte) int32 {
	return atomic.LoadInt32(indexWord(region))
}

func storeIndexRelease(region []byte, i int32) {
	atomic.StoreInt32(indexWord(region), i)
}

// publish writes e into the next ring slot and advances the writer index,
// per §4.3. Callers must hold the header mutex.
func publish(region []byte, e Entry) {
	i := loadIndexAcquire(region)

	next := (i + 1) % NumEntries

	writeEntryAt(region, next, e)
	storeIndexRelease(region, next)
}

// readEntry loads the entry at the current writer index, validating it per
// the copy-before-validate discipline of §4.3: the index is loaded once,
// the slot is copied in full, and only then are its fields checked. A
// writer that laps the reader mid-copy produces a denormalized or otherwise
// invalid Stamp and is reported as ErrProtocol rather than silently mixing
// two entries.
func readEntry(region []byte) (Entry, error) {
	i := loadIndexAcquire(region)
	if i < 0 || i >= NumEntries {
		return Entry{}, fmt.Errorf("writer index %d out of range [0,%d): %w", i, NumEntries, ErrProtocol)
	}

	e := readEntryAt(region, i)

	if !validStampRange(e.Offset) || !validStampRange(e.Error) || !validStampRange(e.AsOf) {
		return Entry{}, fmt.Errorf("denormalized entry at index %d: %w", i, ErrProtocol)
	}

	return e, nil
}
