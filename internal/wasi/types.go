package wasi

import (
	"encoding/binary"

	"github.com/nineka/sablewasm/internal/runtime"
)

// ciovecSize and fdstatSize are the on-the-wire sizes of wasi_ciovec_t and
// wasi_fdstat_t: 8 and 24 bytes respectively, little-endian, with the field
// offsets fixed by the WASI ABI (not by Go struct layout — these values are
// read out of guest memory, never off a Go struct).
const (
	ciovecSize = 8
	fdstatSize = 24
)

// ciovec is the host-side decoding of one wasi_ciovec_t: a guest pointer
// and a length, both uint32.
type ciovec struct {
	buf    uint32
	bufLen uint32
}

// readCiovec decodes one ciovec from mem at address, guarding the read
// first.
func readCiovec(mem *runtime.LinearMemory, address uint32) (ciovec, Errno) {
	bytes, err := mem.GetRange(uint64(address), ciovecSize)
	if err != nil {
		return ciovec{}, ErrnoFault
	}
	return ciovec{
		buf:    binary.LittleEndian.Uint32(bytes[0:4]),
		bufLen: binary.LittleEndian.Uint32(bytes[4:8]),
	}, ErrnoSuccess
}

// writeUint32 writes a little-endian uint32 to mem at address, guarding the
// write first.
func writeUint32(mem *runtime.LinearMemory, address uint32, v uint32) Errno {
	bytes, err := mem.GetRange(uint64(address), 4)
	if err != nil {
		return ErrnoFault
	}
	binary.LittleEndian.PutUint32(bytes, v)
	return ErrnoSuccess
}

// writeUint64 writes a little-endian uint64 to mem at address, guarding the
// write first. Used for clock_time_get's nanosecond timestamp.
func writeUint64(mem *runtime.LinearMemory, address uint32, v uint64) Errno {
	bytes, err := mem.GetRange(uint64(address), 8)
	if err != nil {
		return ErrnoFault
	}
	binary.LittleEndian.PutUint64(bytes, v)
	return ErrnoSuccess
}

// writeBytes copies data into mem starting at address, guarding the write
// first.
func writeBytes(mem *runtime.LinearMemory, address uint32, data []byte) Errno {
	dst, err := mem.GetRange(uint64(address), uint64(len(data)))
	if err != nil {
		return ErrnoFault
	}
	copy(dst, data)
	return ErrnoSuccess
}

// Clock IDs, matching the WASI snapshot-preview1 clockid_t enumeration.
const (
	ClockRealtime uint32 = iota
	ClockMonotonic
	ClockProcessCputimeID
	ClockThreadCputimeID
)
