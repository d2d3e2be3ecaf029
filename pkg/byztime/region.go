package byztime

import (
	"encoding/binary"
	"fmt"

	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

// Region binary layout (little-endian), total exactly one page:
//
//	offset  size  field
//	0       12    magic
//	12      4     i: atomic writer index, 0 <= i < NumEntries
//	16      16    era
//	32      16    real_offset: Stamp
//	48      4     futex-style mutex word
//	52      76    reserved padding (zero)
//	128     64*62 entries[0..NumEntries)
//	            +0  offset: Stamp (16 bytes)
//	            +16 error:  Stamp (16 bytes)
//	            +32 as_of:  Stamp (16 bytes)
//	            +48 padding (16 bytes)
//	= 4096 total
const (
	RegionSize = 4096

	headerSize  = 128
	entrySize   = 64
	NumEntries  = (RegionSize - headerSize) / entrySize
	magicSize   = 12
	eraSize     = 16
	stampSize   = 16
	entryStride = entrySize

	offMagic      = 0
	offIndex      = 12
	offEra        = 16
	offRealOffset = 32
	offMutex      = 48
	offEntries    = headerSize

	entryOffOffset = 0
	entryOffError  = 16
	entryOffAsOf   = 32
)

// Magic is the 12-byte constant stored at the start of every region file.
var Magic = [magicSize]byte{'B', 'Y', 'Z', 'T', 'I', 'M', 'E', 0x00, 0xFF, 0xFF, 0xFF, 0xFF}

// Era is a 16-byte opaque clock-continuity identifier.
type Era [eraSize]byte

// Entry is a single published (offset, error, as_of) triple.
type Entry struct {
	Offset stamp.Stamp
	Error  stamp.Stamp
	AsOf   stamp.Stamp
}

func init() {
	if NumEntries != 62 {
		panic(fmt.Sprintf("byztime: layout arithmetic produced %d entries, want 62", NumEntries))
	}
}

func readMagic(region []byte) [magicSize]byte {
	var m [magicSize]byte
	copy(m[:], region[offMagic:offMagic+magicSize])

	return m
}

func writeMagicRelease(region []byte) {
	copy(region[offMagic:offMagic+magicSize], Magic[:])
}

func readEra(region []byte) Era {
	var e Era
	copy(e[:], region[offEra:offEra+eraSize])

	return e
}

func writeEraRelease(region []byte, era Era) {
	copy(region[offEra:offEra+eraSize], era[:])
}

func readStampAt(region []byte, off int) stamp.Stamp {
	sec := int64(binary.LittleEndian.Uint64(region[off : off+8]))
	nsec := int64(binary.LittleEndian.Uint64(region[off+8 : off+16]))

	return stamp.Stamp{Sec: sec, Nsec: nsec}
}

func writeStampAt(region []byte, off int, s stamp.Stamp) {
	binary.LittleEndian.PutUint64(region[off:off+8], uint64(s.Sec))
	binary.LittleEndian.PutUint64(region[off+8:off+16], uint64(s.Nsec))
}

func readRealOffset(region []byte) stamp.Stamp {
	return readStampAt(region, offRealOffset)
}

func writeRealOffset(region []byte, s stamp.Stamp) {
	writeStampAt(region, offRealOffset, s)
}

func entryOffset(index int32) int {
	return offEntries + int(index)*entryStride
}

func readEntryAt(region []byte, index int32) Entry {
	base := entryOffset(index)

	return Entry{
		Offset: readStampAt(region, base+entryOffOffset),
		Error:  readStampAt(region, base+entryOffError),
		AsOf:   readStampAt(region, base+entryOffAsOf),
	}
}

func writeEntryAt(region []byte, index int32, e Entry) {
	base := entryOffset(index)
	writeStampAt(region, base+entryOffOffset, e.Offset)
	writeStampAt(region, base+entryOffError, e.Error)
	writeStampAt(region, base+entryOffAsOf, e.AsOf)
}

// validStampRange reports whether s.Nsec is normalized, per invariant I4.
func validStampRange(s stamp.Stamp) bool {
	return s.Nsec >= 0 && s.Nsec < stamp.Nanosecond
}
