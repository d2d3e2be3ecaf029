package byztime

import (
	"bytes"
	"fmt"
	"os"

	natomic "github.com/natefinch/atomic"
)

// ensureRegionFile makes sure path exists and is at least RegionSize bytes,
// creating it with mode 0644 if necessary (the mode of an existing file is
// left as it is). Creation is atomic (a reader
// opening concurrently either sees no file or a complete, fully zeroed
// page, never a partial one) via a temp-file-plus-rename, matching how the
// interprocess writer lock already serializes providers but giving
// consumers the same guarantee against a half-written first file.
//
// Callers must hold the sidecar writer lock before calling this.
func ensureRegionFile(path string) (*os.File, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w: %w", path, ErrIOFailure, err)
		}

		zeroes := make([]byte, RegionSize)

		if err := natomic.WriteFile(path, bytes.NewReader(zeroes)); err != nil {
			return nil, fmt.Errorf("create region file %s: %w: %w", path, ErrIOFailure, err)
		}

		if err := os.Chmod(path, 0o644); err != nil {
			return nil, fmt.Errorf("chmod region file %s: %w: %w", path, ErrIOFailure, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open region file %s: %w: %w", path, ErrIOFailure, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("stat region file %s: %w: %w", path, ErrIOFailure, err)
	}

	if info.Size() < RegionSize {
		if err := f.Truncate(RegionSize); err != nil {
			_ = f.Close()

			return nil, fmt.Errorf("grow region file %s to %d bytes: %w: %w", path, RegionSize, ErrIOFailure, err)
		}
	}

	return f, nil
}
