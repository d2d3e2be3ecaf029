package byztime

import (
	"fmt"
	"os"
	"sync"

	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

// unknownError is the sentinel "unknown" error bound written on first-time
// and reboot re-initialization: 2^62 seconds, far beyond any real offset
// uncertainty, flagging "no real measurement yet" to callers that inspect
// it directly.
var unknownError = stamp.Stamp{Sec: 1 << 62, Nsec: 0}

// Provider is a writer context opened read-write against a region file. At
// most one Provider may be open against a given path at a time, process-wide
// and machine-wide (invariant I5).
type Provider struct {
	mu sync.Mutex

	clock  Clock
	path   string
	file   *os.File
	region []byte
	lock   *sidecarLock
	ident  fileIdentity
	closed bool
}

// OpenProvider opens or initializes the region at path for writing, using
// clock as the host time source.
func OpenProvider(path string, clock Clock) (*Provider, error) {
	lock, err := acquireSidecarLock(path)
	if err != nil {
		return nil, err
	}

	file, err := ensureRegionFile(path)
	if err != nil {
		lock.release()

		return nil, err
	}

	ident, err := getFileIdentity(file)
	if err != nil {
		_ = file.Close()
		lock.release()

		return nil, err
	}

	if !claimWriterIdentity(ident) {
		_ = file.Close()
		lock.release()

		return nil, fmt.Errorf("provider already open for this file in this process: %w", ErrBusy)
	}

	region, err := mmapRegion(int(file.Fd()), unixProtReadWrite)
	if err != nil {
		releaseWriterIdentity(ident)
		_ = file.Close()
		lock.release()

		return nil, err
	}

	p := &Provider{
		clock:  clock,
		path:   path,
		file:   file,
		region: region,
		lock:   lock,
		ident:  ident,
	}

	if err := p.openInit(); err != nil {
		_ = p.Close()

		return nil, err
	}

	return p, nil
}

// openInit runs first-time init, reboot re-init, or nothing (steady state)
// per §3.3 / §4.4 step 5, then unconditionally resets the header mutex
// (step 6), safe because the sidecar lock just proved no other writer
// exists.
func (p *Provider) openInit() error {
	era, err := p.clock.ClockEra()
	if err != nil {
		return err
	}

	magic := readMagic(p.region)
	index := loadIndexAcquire(p.region)

	switch {
	case magic != Magic || index < 0 || index >= NumEntries:
		if err := p.firstTimeInit(era); err != nil {
			return err
		}
	case readEra(p.region) != era:
		if err := p.rebootReinit(era); err != nil {
			return err
		}
	}

	resetMutex(p.region)

	return nil
}

func (p *Provider) firstTimeInit(era Era) error {
	writeRealOffset(p.region, stamp.Stamp{})

	local, err := p.clock.LocalTime()
	if err != nil {
		return err
	}

	real, err := p.clock.RealTime()
	if err != nil {
		return err
	}

	offset, err := stamp.Sub(real, local)
	if err != nil {
		return fmt.Errorf("first-time init: %w", err)
	}

	storeIndexRelease(p.region, 0)
	writeEntryAt(p.region, 0, Entry{Offset: offset, Error: unknownError, AsOf: local})

	writeEraRelease(p.region, era)
	writeMagicRelease(p.region)

	return msyncRegion(p.region)
}

func (p *Provider) rebootReinit(era Era) error {
	local, err := p.clock.LocalTime()
	if err != nil {
		return err
	}

	real, err := p.clock.RealTime()
	if err != nil {
		return err
	}

	realPlusOffset, err := stamp.Add(real, readRealOffset(p.region))
	if err != nil {
		return fmt.Errorf("reboot reinit: %w", err)
	}

	offset, err := stamp.Sub(realPlusOffset, local)
	if err != nil {
		return fmt.Errorf("reboot reinit: %w", err)
	}

	storeIndexRelease(p.region, 0)
	writeEntryAt(p.region, 0, Entry{Offset: offset, Error: unknownError, AsOf: local})

	writeEraRelease(p.region, era)

	return msyncRegion(p.region)
}

// SetOffset publishes a new entry. If asOf is nil, LocalTime() is read now.
func (p *Provider) SetOffset(offset, errBound stamp.Stamp, asOf *stamp.Stamp) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	var when stamp.Stamp

	if asOf != nil {
		when = *asOf
	} else {
		local, err := p.clock.LocalTime()
		if err != nil {
			return err
		}

		when = local
	}

	lockHeaderMutex(p.region)
	publish(p.region, Entry{Offset: offset, Error: errBound, AsOf: when})
	unlockHeaderMutex(p.region)

	return nil
}

// GetOffsetQuick returns the current entry's offset without taking the
// header mutex, intended for diagnostic or pass-through use inside the writer process.
func (p *Provider) GetOffsetQuick() (stamp.Stamp, error) {
	e, err := p.getOffsetRawEntry()
	if err != nil {
		return stamp.Stamp{}, err
	}

	return e.Offset, nil
}

// GetOffsetRaw returns the current entry unchanged.
func (p *Provider) GetOffsetRaw() (Entry, error) {
	return p.getOffsetRawEntry()
}

func (p *Provider) getOffsetRawEntry() (Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return Entry{}, ErrClosed
	}

	return readEntry(p.region)
}

// UpdateRealOffset recomputes and stores real_offset in the header, so that
// a subsequent reboot re-init has a useful starting guess even before any
// network sync. It computes global time from the current entry directly
// (without going through the slew machinery, which belongs to consumers).
func (p *Provider) UpdateRealOffset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	entry, err := readEntry(p.region)
	if err != nil {
		return err
	}

	local, err := p.clock.LocalTime()
	if err != nil {
		return err
	}

	global, err := stamp.Add(entry.Offset, local)
	if err != nil {
		return fmt.Errorf("update real offset: %w", err)
	}

	real, err := p.clock.RealTime()
	if err != nil {
		return err
	}

	newRealOffset, err := stamp.Sub(global, real)
	if err != nil {
		return fmt.Errorf("update real offset: %w", err)
	}

	lockHeaderMutex(p.region)
	writeRealOffset(p.region, newRealOffset)
	unlockHeaderMutex(p.region)

	return nil
}

// Close syncs and unmaps the region, and releases the writer lock. Close is
// idempotent.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	syncErr := msyncRegion(p.region)
	unmapErr := munmapRegion(p.region)
	closeErr := p.file.Close()

	releaseWriterIdentity(p.ident)
	p.lock.release()

	for _, err := range []error{syncErr, unmapErr, closeErr} {
		if err != nil {
			return err
		}
	}

	return nil
}
