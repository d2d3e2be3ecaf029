package byztime

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	unixProtRead      = unix.PROT_READ
	unixProtReadWrite = unix.PROT_READ | unix.PROT_WRITE
)

func mmapRegion(fd int, prot int) ([]byte, error) {
	data, err := unix.Mmap(fd, 0, RegionSize, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w: %w", ErrIOFailure, err)
	}

	return data, nil
}

func munmapRegion(data []byte) error {
	if data == nil {
		return nil
	}

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w: %w", ErrIOFailure, err)
	}

	return nil
}

func msyncRegion(data []byte) error {
	if data == nil {
		return nil
	}

	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w: %w", ErrIOFailure, err)
	}

	return nil
}
