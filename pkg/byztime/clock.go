package byztime

import "github.com/akamai-contrib/libbyztime/pkg/stamp"

// Clock is the host-supplied time source. The network protocol that
// populates the offset, clock-era discovery, and local/real clock reading
// are external collaborators; Clock is the seam the core depends on instead
// of reading the OS clock directly, which keeps the protocol and
// estimation logic testable against fakes.
type Clock interface {
	// LocalTime returns the current reading of a strictly monotonic,
	// non-decreasing clock (CLOCK_MONOTONIC_RAW quality). Comparable to
	// other LocalTime readings only while ClockEra stays constant.
	LocalTime() (stamp.Stamp, error)

	// RealTime returns the current wall-clock reading, seconds since the
	// POSIX epoch.
	RealTime() (stamp.Stamp, error)

	// ClockEra returns the current local-clock continuity epoch. It
	// changes iff LocalTime readings taken before and after become
	// incomparable (e.g. a reboot).
	ClockEra() (Era, error)
}
