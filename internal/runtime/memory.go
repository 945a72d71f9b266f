package runtime

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// WasmPageSize is the size, in bytes, of one WebAssembly linear memory page.
const WasmPageSize = 64 * 1024

// GrowFailed is the sentinel return value of LinearMemory.Grow on failure,
// matching the `memory.grow` instruction's -1 (as an unsigned 32-bit value).
const GrowFailed uint32 = 0xFFFFFFFF

// Unbounded marks a LinearMemory or Table with no declared maximum.
const Unbounded uint32 = 0xFFFFFFFF

// nativePageSize is the host OS page size, used to size the metadata region
// that precedes every LinearMemory's guest-visible bytes. It is a variable,
// not a constant, so tests can pretend a different page granularity without
// needing root or a different kernel.
var nativePageSize = unix.Getpagesize()

// LinearMemory is a page-granular, growable-in-place WebAssembly linear
// memory. Unlike a plain Go byte slice, it is backed by a single anonymous
// OS mapping with one native page of non-guest-visible metadata immediately
// preceding the guest-visible bytes; growth attempts an in-place OS resize
// and may move the mapping. Instances hold the *LinearMemory itself, which
// stays the same across growth; byte slices obtained earlier from Raw or
// GetRange are not updated and must be fetched again after a Grow.
//
// LinearMemory is not safe for concurrent use — each instance and the
// memories it owns are single-threaded.
type LinearMemory struct {
	mapping  []byte // the full mmap, metadata page + guest bytes
	pages    uint32
	maxPages uint32 // Unbounded if there is no declared maximum

	useSites map[*Instance]struct{}

	log *logrus.Entry
}

// NewLinearMemory allocates a memory of the given initial size with no
// declared maximum.
func NewLinearMemory(initialPages uint32) (*LinearMemory, error) {
	return NewLinearMemoryWithMax(initialPages, Unbounded)
}

// NewLinearMemoryWithMax allocates a memory of the given initial size,
// rejecting growth past maxPages (Unbounded for no limit).
func NewLinearMemoryWithMax(initialPages, maxPages uint32) (*LinearMemory, error) {
	if maxPages != Unbounded && initialPages > maxPages {
		return nil, errorsNewf("initial size %d exceeds max %d", initialPages, maxPages)
	}
	mapping, err := mmapPages(initialPages)
	if err != nil {
		return nil, err
	}
	return &LinearMemory{
		mapping:  mapping,
		pages:    initialPages,
		maxPages: maxPages,
		useSites: make(map[*Instance]struct{}),
	}, nil
}

// mmapPages reserves one native page of metadata plus pages worth of guest
// bytes as a single anonymous, read-write mapping.
func mmapPages(pages uint32) ([]byte, error) {
	size := nativePageSize + int(pages)*WasmPageSize
	mapping, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errorsWrap(err, "mmap linear memory")
	}
	return mapping, nil
}

// data is the guest-visible region: mapping with the metadata page sliced
// off the front.
func (m *LinearMemory) data() []byte {
	return m.mapping[nativePageSize:]
}

// PageSize returns the current size in WebAssembly pages.
func (m *LinearMemory) PageSize() uint32 { return m.pages }

// SizeInBytes returns the current size in bytes (PageSize * WasmPageSize).
func (m *LinearMemory) SizeInBytes() uint64 { return uint64(m.pages) * WasmPageSize }

// HasMax reports whether this memory has a declared maximum
// (Max != Unbounded). Earlier drafts of this check inverted the
// comparison; callers relying on HasMax to gate a Grow call need the
// non-inverted form or every bounded memory looks unbounded.
func (m *LinearMemory) HasMax() bool { return m.maxPages != Unbounded }

// MaxPageSize returns the declared maximum, or Unbounded if none.
func (m *LinearMemory) MaxPageSize() uint32 { return m.maxPages }

// addUseSite registers inst as holding a pointer to this memory, so that a
// subsequent Grow rewrites inst's memory slot. Builder-only; see
// InstanceBuilder and Instance teardown.
func (m *LinearMemory) addUseSite(inst *Instance) {
	m.useSites[inst] = struct{}{}
}

// removeUseSite is the inverse of addUseSite, called during instance
// teardown.
func (m *LinearMemory) removeUseSite(inst *Instance) {
	delete(m.useSites, inst)
}

// Grow attempts to add delta pages in place. On success it returns the
// memory's size (in pages) before growth and calls replaceMemorySlot on
// every instance on the use-site list; their slots hold this same
// *LinearMemory, so they see the new size without being rewritten. On
// failure (growth would exceed the
// declared maximum, or the OS cannot satisfy the resize) it returns
// GrowFailed and leaves the memory unchanged.
func (m *LinearMemory) Grow(delta uint32) uint32 {
	if m.maxPages != Unbounded && m.pages+delta > m.maxPages {
		return GrowFailed
	}
	oldPages := m.pages
	newMapping, err := mremapPages(m.mapping, m.pages, m.pages+delta)
	if err != nil {
		if m.log != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"current_pages": m.pages, "delta": delta,
			}).Warn("linear memory grow failed")
		}
		return GrowFailed
	}
	m.mapping = newMapping
	m.pages += delta
	for inst := range m.useSites {
		inst.replaceMemorySlot(m)
	}
	if m.log != nil {
		m.log.WithFields(logrus.Fields{"from_pages": oldPages, "to_pages": m.pages}).Debug("linear memory grown")
	}
	return oldPages
}

// mremapPages resizes an existing mapping in place when the kernel supports
// it (Linux's MREMAP_MAYMOVE), falling back to an explicit
// allocate-copy-release when it does not — the two have the same observable
// result.
func mremapPages(mapping []byte, oldPages, newPages uint32) ([]byte, error) {
	oldSize := nativePageSize + int(oldPages)*WasmPageSize
	newSize := nativePageSize + int(newPages)*WasmPageSize
	remapped, err := unix.Mremap(mapping[:oldSize], newSize, unix.MREMAP_MAYMOVE)
	if err == nil {
		return remapped, nil
	}
	// Fallback: allocate fresh, copy the old bytes over, release the old
	// mapping. Observably identical to an in-place resize.
	fresh, mmapErr := mmapPages(newPages)
	if mmapErr != nil {
		return nil, errorsWrap(err, "mremap failed and fallback mmap also failed")
	}
	copy(fresh, mapping[:oldSize])
	_ = unix.Munmap(mapping[:oldSize])
	return fresh, nil
}

// Guard succeeds iff offset <= SizeInBytes(); this is the check compiled
// code runs before an unchecked raw access.
func (m *LinearMemory) Guard(offset uint64) error {
	if offset > m.SizeInBytes() {
		return &MemoryAccessOutOfBound{Site: m, AttemptOffset: offset}
	}
	return nil
}

// Get returns a single byte at offset, strictly bounds-checked
// (offset < SizeInBytes()).
func (m *LinearMemory) Get(offset uint64) (byte, error) {
	if offset >= m.SizeInBytes() {
		return 0, &MemoryAccessOutOfBound{Site: m, AttemptOffset: offset}
	}
	return m.data()[offset], nil
}

// GetRange returns a slice view of length bytes starting at offset, strictly
// bounds-checked (offset+length <= SizeInBytes()). The slice aliases the
// underlying mapping: writes through it are visible to guest code and vice
// versa, until the next Grow invalidates it.
func (m *LinearMemory) GetRange(offset, length uint64) ([]byte, error) {
	if offset+length > m.SizeInBytes() || offset+length < offset {
		return nil, &MemoryAccessOutOfBound{Site: m, AttemptOffset: offset}
	}
	return m.data()[offset : offset+length], nil
}

// Raw returns the full unchecked guest-visible byte slice, for codegen-
// emitted accesses that have already been preceded by a Guard call. Callers
// outside generated code should prefer Get/GetRange.
func (m *LinearMemory) Raw() []byte { return m.data() }

// Close releases the backing mapping. The caller must ensure the use-site
// list is empty first — a memory is only destroyed after the last
// referencing instance is destroyed.
func (m *LinearMemory) Close() error {
	if len(m.useSites) != 0 {
		return errorsNewf("cannot close linear memory with %d active use sites", len(m.useSites))
	}
	return unix.Munmap(m.mapping)
}
