// Package stamp implements fixed-point (seconds, nanoseconds) arithmetic for
// the byztime shared-memory protocol.
//
// A Stamp represents a signed duration or instant as whole seconds plus a
// nanosecond remainder. Normalized form requires 0 <= Nsec < 1e9; negative
// totals are represented by a negative Sec with a non-negative, normalized
// Nsec (e.g. -4.7s is Stamp{Sec: -5, Nsec: 300_000_000}).
//
// Every operation that can exceed the range of int64 reports it via
// ErrOverflow. The returned Stamp is still populated in that case, using
// two's-complement wraparound, so callers that only care about approximate
// magnitude are not forced to special-case the error.
package stamp

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrOverflow is returned when an arithmetic operation exceeds the range of
// int64. The accompanying Stamp is the wrapped (two's-complement) result.
var ErrOverflow = errors.New("stamp: overflow")

// Nanosecond is the number of nanoseconds per second, used throughout this
// package as the normalization modulus.
const Nanosecond = 1_000_000_000

// Stamp is a (seconds, nanoseconds) fixed-point value.
type Stamp struct {
	Sec  int64
	Nsec int64
}

// String formats s per the source domain's convention: normalized decimal
// seconds with a 9-digit nanosecond fraction. Negative totals are printed as
// a single signed decimal, e.g. Stamp{-5, 300_000_000} prints "-4.700000000".
func (s Stamp) String() string {
	n, _ := Normalize(s)
	if n.Sec < 0 && n.Nsec != 0 {
		if n.Sec == -1 {
			return fmt.Sprintf("-0.%09d", Nanosecond-n.Nsec)
		}

		return fmt.Sprintf("%d.%09d", n.Sec+1, Nanosecond-n.Nsec)
	}

	return fmt.Sprintf("%d.%09d", n.Sec, n.Nsec)
}

// addChecked adds a and b, reporting whether the result overflowed int64.
func addChecked(a, b int64) (int64, bool) {
	sum := a + b
	overflowed := ((a ^ sum) & (b ^ sum)) < 0

	return sum, overflowed
}

// subChecked subtracts b from a, reporting whether the result overflowed int64.
func subChecked(a, b int64) (int64, bool) {
	diff := a - b
	overflowed := ((a ^ b) & (a ^ diff)) < 0

	return diff, overflowed
}

// Normalize brings s into the form 0 <= Nsec < 1e9, carrying the remainder
// into Sec. If the carry overflows int64, Normalize returns ErrOverflow
// together with the wrapped result.
func Normalize(s Stamp) (Stamp, error) {
	q := s.Nsec / Nanosecond
	r := s.Nsec % Nanosecond

	sec, overflowed := addChecked(s.Sec, q)

	if r < 0 {
		var o2 bool

		sec, o2 = subChecked(sec, 1)
		overflowed = overflowed || o2
		r += Nanosecond
	}

	out := Stamp{Sec: sec, Nsec: r}
	if overflowed {
		return out, fmt.Errorf("normalize %v: %w", s, ErrOverflow)
	}

	return out, nil
}

// normalizeUnchecked is Normalize without overflow reporting, for internal
// use by operations (Compare, Halve) that are defined not to fail.
func normalizeUnchecked(s Stamp) Stamp {
	n, _ := Normalize(s)

	return n
}

// Add returns the normalized sum of a and b.
//
// On overflow in any intermediate step, Add returns ErrOverflow together
// with a wrapped (two's-complement) result.
func Add(a, b Stamp) (Stamp, error) {
	an, errA := Normalize(a)
	bn, errB := Normalize(b)

	sec, overflowed := addChecked(an.Sec, bn.Sec)
	sum := Stamp{Sec: sec, Nsec: an.Nsec + bn.Nsec}

	out, errN := Normalize(sum)
	overflowed = overflowed || errA != nil || errB != nil || errN != nil

	if overflowed {
		return out, fmt.Errorf("add %v + %v: %w", a, b, ErrOverflow)
	}

	return out, nil
}

// Sub returns the normalized difference a - b.
//
// On overflow in any intermediate step, Sub returns ErrOverflow together
// with a wrapped (two's-complement) result.
func Sub(a, b Stamp) (Stamp, error) {
	an, errA := Normalize(a)
	bn, errB := Normalize(b)

	sec, overflowed := subChecked(an.Sec, bn.Sec)
	diff := Stamp{Sec: sec, Nsec: an.Nsec - bn.Nsec}

	out, errN := Normalize(diff)
	overflowed = overflowed || errA != nil || errB != nil || errN != nil

	if overflowed {
		return out, fmt.Errorf("sub %v - %v: %w", a, b, ErrOverflow)
	}

	return out, nil
}

// Compare returns -1, 0, or 1 according to whether a is less than, equal to,
// or greater than b, treating both as sec*1e9+nsec. Compare cannot fail;
// inputs are normalized with wraparound before comparison.
func Compare(a, b Stamp) int {
	an := normalizeUnchecked(a)
	bn := normalizeUnchecked(b)

	switch {
	case an.Sec != bn.Sec:
		if an.Sec < bn.Sec {
			return -1
		}

		return 1
	case an.Nsec != bn.Nsec:
		if an.Nsec < bn.Nsec {
			return -1
		}

		return 1
	default:
		return 0
	}
}

// Halve returns a/2. It cannot fail (halving a valid int64 can never
// overflow). Non-normalized input may produce non-normalized output; callers
// that need a normalized result should call Normalize afterwards.
//
// The low-order nanosecond bit carried out of Sec is folded into Nsec, and
// the discarded low bit of Nsec is rounded half-to-even (sign-aware) rather
// than always truncated, so that Halve(Add(s, s)) differs from s by at most
// one nanosecond.
func Halve(a Stamp) Stamp {
	sec := a.Sec >> 1

	nsec := a.Nsec >> 1
	if a.Sec&1 != 0 {
		nsec += Nanosecond / 2
	}

	// The bit we just shifted out of Nsec is the tie-breaker: if it was the
	// remainder of an exact half (low two bits of the original Nsec were
	// 0b11), round to even instead of always truncating toward the dropped
	// bit.
	if a.Nsec&3 == 3 && nsec%2 != 0 {
		if a.Nsec < 0 {
			nsec--
		} else {
			nsec++
		}
	}

	return Stamp{Sec: sec, Nsec: nsec}
}

// Scale returns a scaled by ppb/1e9 (parts per billion), rounding the
// discarded sub-nanosecond ("attosecond") residue half-to-even.
//
// Scale(a, 1e9) equals Normalize(a) exactly. Scale(a, 5e8) equals Halve(a)
// up to rounding. On overflow, Scale returns ErrOverflow together with a
// wrapped (two's-complement) result.
func Scale(a Stamp, ppb int64) (Stamp, error) {
	an, errA := Normalize(a)

	billion := big.NewInt(Nanosecond)

	totalNsec := new(big.Int).Mul(big.NewInt(an.Sec), billion)
	totalNsec.Add(totalNsec, big.NewInt(an.Nsec))

	product := new(big.Int).Mul(totalNsec, big.NewInt(ppb))

	quotient, remainder := new(big.Int), new(big.Int)
	quotient.QuoRem(product, billion, remainder)
	quotient = roundHalfEven(quotient, remainder, billion)

	secBig, nsecBig := new(big.Int), new(big.Int)
	secBig.QuoRem(quotient, billion, nsecBig)

	if nsecBig.Sign() < 0 {
		nsecBig.Add(nsecBig, billion)
		secBig.Sub(secBig, big.NewInt(1))
	}

	overflowed := !secBig.IsInt64() || errA != nil

	out := Stamp{Sec: wrapToInt64(secBig), Nsec: nsecBig.Int64()}

	if overflowed {
		return out, fmt.Errorf("scale %v by %d ppb: %w", a, ppb, ErrOverflow)
	}

	return out, nil
}

// roundHalfEven adjusts quotient (the truncated-toward-zero quotient of a
// division by divisor, with the given remainder) to round half-to-even.
func roundHalfEven(quotient, remainder, divisor *big.Int) *big.Int {
	if remainder.Sign() == 0 {
		return quotient
	}

	twiceRem := new(big.Int).Mul(new(big.Int).Abs(remainder), big.NewInt(2))

	cmp := twiceRem.Cmp(divisor)
	if cmp < 0 {
		return quotient
	}

	roundAway := cmp > 0
	if cmp == 0 {
		// Exactly half: round to even.
		roundAway = quotient.Bit(0) == 1
	}

	if !roundAway {
		return quotient
	}

	delta := big.NewInt(1)
	if remainder.Sign() < 0 {
		delta = big.NewInt(-1)
	}

	return quotient.Add(quotient, delta)
}

// wrapToInt64 truncates x to its low 64 bits, interpreted as two's complement.
func wrapToInt64(x *big.Int) int64 {
	mask := new(big.Int).Lsh(big.NewInt(1), 64)
	mask.Sub(mask, big.NewInt(1))

	wrapped := new(big.Int).And(x, mask)

	signBit := new(big.Int).Lsh(big.NewInt(1), 63)
	if wrapped.Cmp(signBit) >= 0 {
		wrapped.Sub(wrapped, new(big.Int).Lsh(big.NewInt(1), 64))
	}

	return wrapped.Int64()
}
