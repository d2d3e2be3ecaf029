package stamp_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   stamp.Stamp
		want stamp.Stamp
	}{
		{"already normal", stamp.Stamp{Sec: 5, Nsec: 300_000_000}, stamp.Stamp{Sec: 5, Nsec: 300_000_000}},
		{"carry positive", stamp.Stamp{Sec: 1, Nsec: 1_500_000_000}, stamp.Stamp{Sec: 2, Nsec: 500_000_000}},
		{"negative nsec", stamp.Stamp{Sec: 0, Nsec: -1}, stamp.Stamp{Sec: -1, Nsec: 999_999_999}},
		{"negative total", stamp.Stamp{Sec: -5, Nsec: -300_000_000}, stamp.Stamp{Sec: -6, Nsec: 700_000_000}},
		{"zero", stamp.Stamp{}, stamp.Stamp{}},
		{"idempotent on already-normal negative", stamp.Stamp{Sec: -6, Nsec: 700_000_000}, stamp.Stamp{Sec: -6, Nsec: 700_000_000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := stamp.Normalize(tc.in)
			if err != nil {
				t.Fatalf("Normalize(%v) returned error: %v", tc.in, err)
			}

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Normalize(%v) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []stamp.Stamp{
		{Sec: 1, Nsec: 2_300_000_000},
		{Sec: -3, Nsec: -400_000_000},
		{Sec: math.MaxInt64, Nsec: 0},
		{Sec: 0, Nsec: 999_999_999},
	}

	for _, in := range inputs {
		once, err := stamp.Normalize(in)
		if err != nil {
			continue
		}

		twice, err := stamp.Normalize(once)
		if err != nil {
			t.Fatalf("second Normalize(%v) returned error: %v", once, err)
		}

		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("Normalize not idempotent for %v (-once +twice):\n%s", in, diff)
		}
	}
}

func TestAddOverflow(t *testing.T) {
	_, err := stamp.Add(stamp.Stamp{Sec: math.MaxInt64}, stamp.Stamp{Sec: 1})
	if !errors.Is(err, stamp.ErrOverflow) {
		t.Fatalf("Add at MaxInt64+1: got err %v, want ErrOverflow", err)
	}
}

func TestSubOverflow(t *testing.T) {
	_, err := stamp.Sub(stamp.Stamp{Sec: math.MinInt64}, stamp.Stamp{Sec: 1})
	if !errors.Is(err, stamp.ErrOverflow) {
		t.Fatalf("Sub at MinInt64-1: got err %v, want ErrOverflow", err)
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := stamp.Stamp{Sec: 100, Nsec: 250_000_000}
	b := stamp.Stamp{Sec: 3, Nsec: 900_000_000}

	sum, err := stamp.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	back, err := stamp.Sub(sum, b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}

	wantA, _ := stamp.Normalize(a)
	if diff := cmp.Diff(wantA, back); diff != "" {
		t.Errorf("Add then Sub round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b stamp.Stamp
		want int
	}{
		{stamp.Stamp{Sec: 1}, stamp.Stamp{Sec: 2}, -1},
		{stamp.Stamp{Sec: 2}, stamp.Stamp{Sec: 1}, 1},
		{stamp.Stamp{Sec: 1, Nsec: 5}, stamp.Stamp{Sec: 1, Nsec: 5}, 0},
		{stamp.Stamp{Sec: 0, Nsec: 1_000_000_001}, stamp.Stamp{Sec: 1, Nsec: 1}, 0},
		{stamp.Stamp{Sec: -1}, stamp.Stamp{Sec: 0}, -1},
	}

	for _, tc := range cases {
		if got := stamp.Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestScaleByOneBillionIsNormalize(t *testing.T) {
	inputs := []stamp.Stamp{
		{Sec: 5, Nsec: 300_000_000},
		{Sec: -5, Nsec: -300_000_000},
		{Sec: 0, Nsec: 0},
		{Sec: 1_000_000, Nsec: 1},
	}

	for _, in := range inputs {
		want, _ := stamp.Normalize(in)

		got, err := stamp.Scale(in, 1_000_000_000)
		if err != nil {
			t.Fatalf("Scale(%v, 1e9): %v", in, err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Scale(%v, 1e9) != Normalize(%v) (-want +got):\n%s", in, in, diff)
		}
	}
}

func TestScaleByHalfBillionMatchesHalve(t *testing.T) {
	inputs := []stamp.Stamp{
		{Sec: 10, Nsec: 0},
		{Sec: 11, Nsec: 0},
		{Sec: 5, Nsec: 300_000_000},
		{Sec: -7, Nsec: 100_000_000},
	}

	for _, in := range inputs {
		scaled, err := stamp.Scale(in, 500_000_000)
		if err != nil {
			t.Fatalf("Scale(%v, 5e8): %v", in, err)
		}

		halved := stamp.Halve(in)
		halvedNorm, _ := stamp.Normalize(halved)

		diffStamp, err := stamp.Sub(scaled, halvedNorm)
		if err != nil {
			t.Fatalf("Sub for comparison: %v", err)
		}

		if diffStamp.Sec != 0 || (diffStamp.Nsec != 0 && diffStamp.Nsec != 1 && diffStamp.Nsec != 999_999_999) {
			t.Errorf("Scale(%v, 5e8) = %v, Halve = %v, differ by more than 1ns", in, scaled, halvedNorm)
		}
	}
}

func TestScaleHalfToEvenRounding(t *testing.T) {
	// 3ns scaled by exactly 500_000_000 ppb is 1.5ns: ties round to even (2).
	got, err := stamp.Scale(stamp.Stamp{Nsec: 3}, 500_000_000)
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}

	if got.Nsec != 2 {
		t.Errorf("Scale(3ns, 0.5) = %dns, want 2ns (round half to even)", got.Nsec)
	}

	// 1ns scaled by 500_000_000 ppb is 0.5ns: ties round to even (0).
	got, err = stamp.Scale(stamp.Stamp{Nsec: 1}, 500_000_000)
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}

	if got.Nsec != 0 {
		t.Errorf("Scale(1ns, 0.5) = %dns, want 0ns (round half to even)", got.Nsec)
	}
}

func TestHalveNeverOverflows(t *testing.T) {
	got := stamp.Halve(stamp.Stamp{Sec: math.MaxInt64, Nsec: 999_999_999})
	if got.Sec < 0 {
		t.Errorf("Halve(MaxInt64) produced negative Sec: %v", got)
	}
}

func TestString(t *testing.T) {
	cases := []struct {
		in   stamp.Stamp
		want string
	}{
		{stamp.Stamp{Sec: 5, Nsec: 300_000_000}, "5.300000000"},
		{stamp.Stamp{Sec: -5, Nsec: 300_000_000}, "-4.700000000"},
		{stamp.Stamp{Sec: 0, Nsec: 0}, "0.000000000"},
		{stamp.Stamp{Sec: -1, Nsec: 0}, "-1.000000000"},
	}

	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("Stamp%v.String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}
