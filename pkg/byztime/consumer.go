package byztime

import (
	"fmt"
	"os"
	"sync"

	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

// DefaultDriftPPB is the assumed worst-case local-clock rate error applied
// when a Consumer is opened, 250 microseconds per second.
const DefaultDriftPPB = 250_000

// Result is a (min, est, max) bound returned by GetOffset and
// GetGlobalTime.
type Result struct {
	Min stamp.Stamp
	Est stamp.Stamp
	Max stamp.Stamp
}

// Consumer is a read-only context opened against a region file.
type Consumer struct {
	mu sync.Mutex

	clock    Clock
	file     *os.File
	region   []byte
	driftPPB int64
	mode     mode
	closed   bool
}

// OpenConsumer opens path read-only and validates it per §4.5. It returns
// ErrEraMismatch if the region's stored era does not match the host's
// current era ("no live provider for this boot"), and ErrProtocol if the
// file is too small or missing the magic.
func OpenConsumer(path string, clock Clock) (*Consumer, error) {
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, ErrIOFailure, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("stat %s: %w: %w", path, ErrIOFailure, err)
	}

	if info.Size() < RegionSize {
		_ = file.Close()

		return nil, fmt.Errorf("region file %s is %d bytes, want >= %d: %w", path, info.Size(), RegionSize, ErrProtocol)
	}

	region, err := mmapRegion(int(file.Fd()), unixProtRead)
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	c := &Consumer{
		clock:    clock,
		file:     file,
		region:   region,
		driftPPB: DefaultDriftPPB,
	}

	if err := c.validate(); err != nil {
		_ = munmapRegion(region)
		_ = file.Close()

		return nil, err
	}

	return c, nil
}

// validate runs the magic/era checks inside the fault-recovery scope, since
// a hostile or buggy writer may have truncated the file between fstat and
// this first touch of the mapping (the TOCTOU noted in the design notes).
func (c *Consumer) validate() error {
	_, err := withFaultRecovery(func() (struct{}, error) {
		if readMagic(c.region) != Magic {
			return struct{}{}, fmt.Errorf("bad magic: %w", ErrProtocol)
		}

		era, err := c.clock.ClockEra()
		if err != nil {
			return struct{}{}, err
		}

		if readEra(c.region) != era {
			return struct{}{}, fmt.Errorf("region era does not match host era: %w", ErrEraMismatch)
		}

		return struct{}{}, nil
	})

	return err
}

// SetDrift sets the assumed worst-case local clock rate error, in parts per
// billion.
func (c *Consumer) SetDrift(ppb int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.driftPPB = ppb
}

// GetDrift returns the current drift setting, in parts per billion.
func (c *Consumer) GetDrift() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.driftPPB
}

// Slew switches the consumer into Slew mode with the given rate envelope.
// If maxerror is non-nil and the freshly read entry's error exceeds it,
// Slew fails with ErrOutOfRange and the consumer's mode is unchanged. Pass
// NoRateBound for maxRate to mean "no upper bound".
func (c *Consumer) Slew(minRatePPB, maxRatePPB int64, maxError *stamp.Stamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if maxError != nil {
		entry, err := c.readEntryLocked()
		if err != nil {
			return err
		}

		if stamp.Compare(entry.Error, *maxError) > 0 {
			return fmt.Errorf("entry error %v exceeds maxerror %v: %w", entry.Error, *maxError, ErrOutOfRange)
		}
	}

	c.mode.slew(minRatePPB, maxRatePPB)

	return nil
}

// Step switches the consumer into Step mode. Always succeeds.
func (c *Consumer) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode.step()
}

func (c *Consumer) readEntryLocked() (Entry, error) {
	return withFaultRecovery(func() (Entry, error) {
		return readEntry(c.region)
	})
}

// GetOffset reads the latest entry and returns bounds on offset = global -
// local, per §4.4.
func (c *Consumer) GetOffset() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Result{}, ErrClosed
	}

	local, err := c.clock.LocalTime()
	if err != nil {
		return Result{}, err
	}

	return c.getOffsetLocked(local)
}

func (c *Consumer) getOffsetLocked(local stamp.Stamp) (Result, error) {
	entry, err := c.readEntryLocked()
	if err != nil {
		return Result{}, err
	}

	age, err := stamp.Sub(local, entry.AsOf)
	if err != nil {
		return Result{}, fmt.Errorf("get offset: %w", err)
	}

	scaledDrift, err := stamp.Scale(age, 2*c.driftPPB)
	if err != nil {
		return Result{}, fmt.Errorf("get offset: %w", err)
	}

	errNow, err := stamp.Add(entry.Error, scaledDrift)
	if err != nil {
		return Result{}, fmt.Errorf("get offset: %w", err)
	}

	min, err := stamp.Sub(entry.Offset, errNow)
	if err != nil {
		return Result{}, fmt.Errorf("get offset: %w", err)
	}

	max, err := stamp.Add(entry.Offset, errNow)
	if err != nil {
		return Result{}, fmt.Errorf("get offset: %w", err)
	}

	est, err := c.mode.estimate(entry, local)
	if err != nil {
		return Result{}, fmt.Errorf("get offset: %w", err)
	}

	return Result{Min: min, Est: est, Max: max}, nil
}

// GetGlobalTime is GetOffset with a single local-time reading added to each
// bound, so min/est/max are all relative to the same instant.
func (c *Consumer) GetGlobalTime() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Result{}, ErrClosed
	}

	local, err := c.clock.LocalTime()
	if err != nil {
		return Result{}, err
	}

	offsetResult, err := c.getOffsetLocked(local)
	if err != nil {
		return Result{}, err
	}

	min, err := stamp.Add(offsetResult.Min, local)
	if err != nil {
		return Result{}, fmt.Errorf("get global time: %w", err)
	}

	est, err := stamp.Add(offsetResult.Est, local)
	if err != nil {
		return Result{}, fmt.Errorf("get global time: %w", err)
	}

	max, err := stamp.Add(offsetResult.Max, local)
	if err != nil {
		return Result{}, fmt.Errorf("get global time: %w", err)
	}

	return Result{Min: min, Est: est, Max: max}, nil
}

// Close unmaps the region and closes the file descriptor. Close is
// idempotent.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	unmapErr := munmapRegion(c.region)
	closeErr := c.file.Close()

	if unmapErr != nil {
		return unmapErr
	}

	return closeErr
}
