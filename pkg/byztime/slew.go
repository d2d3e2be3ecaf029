package byztime

import (
	"fmt"
	"math"

	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

// Mode is a two-case tagged union: a consumer is either in Step mode or
// Slew mode. It is modeled as one struct with a discriminant field, not an
// interface hierarchy, since the two cases share no behavior worth
// abstracting over and Go's zero value (modeStep) is exactly the documented
// initial state.
type slewKind int

const (
	modeStep slewKind = iota
	modeSlew
)

// NoRateBound is the max_rate sentinel meaning "no upper bound", mirroring
// INT64_MAX in the source domain.
const NoRateBound = math.MaxInt64

type slewPrev struct {
	local  stamp.Stamp
	offset stamp.Stamp
}

// mode holds the slew state machine for a single consumer Context. It is
// not safe for concurrent use by multiple goroutines sharing one Context,
// matching §5's "consumer-side state is private to the caller" policy.
type mode struct {
	kind    slewKind
	minRate int64
	maxRate int64
	prev    *slewPrev
}

// step resets the consumer to Step mode. Always succeeds.
func (m *mode) step() {
	*m = mode{kind: modeStep}
}

// slew enters Slew mode with a fresh rate envelope and an empty prev, so the
// next read performs a single one-time step jump before clamping begins.
// Calling slew while already in Slew is equivalent to Step then Slew.
func (m *mode) slew(minRate, maxRate int64) {
	*m = mode{kind: modeSlew, minRate: minRate, maxRate: maxRate}
}

// estimate computes est for a freshly read entry at the given local time,
// applying the Step passthrough or the Slew clamp per §4.6.
func (m *mode) estimate(entry Entry, localNow stamp.Stamp) (stamp.Stamp, error) {
	if m.kind == modeStep {
		return entry.Offset, nil
	}

	if m.prev == nil {
		m.prev = &slewPrev{local: localNow, offset: entry.Offset}

		return entry.Offset, nil
	}

	dl, err := stamp.Sub(localNow, m.prev.local)
	if err != nil {
		return stamp.Stamp{}, fmt.Errorf("slew: local delta: %w", err)
	}

	do, err := stamp.Sub(entry.Offset, m.prev.offset)
	if err != nil {
		return stamp.Stamp{}, fmt.Errorf("slew: offset delta: %w", err)
	}

	dg, err := stamp.Add(dl, do)
	if err != nil {
		return stamp.Stamp{}, fmt.Errorf("slew: global delta: %w", err)
	}

	// The envelope bounds how far global time may advance per unit of
	// elapsed *local* time, i.e. dl*rate, not dg*rate: the ratio
	// min_rate <= dg/dl <= max_rate rearranges to dl*min_rate <= dg <=
	// dl*max_rate.
	dgMin, err := stamp.Scale(dl, m.minRate)
	if err != nil {
		return stamp.Stamp{}, fmt.Errorf("slew: min-rate envelope: %w", err)
	}

	var est stamp.Stamp

	switch {
	case stamp.Compare(dg, dgMin) < 0:
		shortfall, err := stamp.Sub(dgMin, dg)
		if err != nil {
			return stamp.Stamp{}, fmt.Errorf("slew: shortfall: %w", err)
		}

		est, err = stamp.Add(entry.Offset, shortfall)
		if err != nil {
			return stamp.Stamp{}, fmt.Errorf("slew: clamp up: %w", err)
		}

	case m.maxRate < NoRateBound:
		dgMax, err := stamp.Scale(dl, m.maxRate)
		if err != nil {
			return stamp.Stamp{}, fmt.Errorf("slew: max-rate envelope: %w", err)
		}

		if stamp.Compare(dg, dgMax) > 0 {
			excess, err := stamp.Sub(dg, dgMax)
			if err != nil {
				return stamp.Stamp{}, fmt.Errorf("slew: excess: %w", err)
			}

			est, err = stamp.Sub(entry.Offset, excess)
			if err != nil {
				return stamp.Stamp{}, fmt.Errorf("slew: clamp down: %w", err)
			}
		} else {
			est = entry.Offset
		}

	default:
		est = entry.Offset
	}

	m.prev = &slewPrev{local: localNow, offset: est}

	return est, nil
}
