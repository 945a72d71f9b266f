package wasi

import (
	"crypto/rand"
	"io"
	"os"
	"time"

	"github.com/nineka/sablewasm/internal/runtime"
	"github.com/sirupsen/logrus"
)

// ExitError is raised (as a panic, per Callee.Invoke's recovery contract)
// by proc_exit: the guest asked to terminate, this is not a fault.
type ExitError struct {
	Code int32
}

func (e *ExitError) Error() string { return "wasi: proc_exit" }

// ExitCode returns the exit code the guest requested.
func (e *ExitError) ExitCode() int32 { return e.Code }

// fd constants for the three standard streams this shim wires up.
const (
	fdStdin  = 0
	fdStdout = 1
	fdStderr = 2
)

// Module is the wasi_snapshot_preview1 host module: an Exporter an
// InstanceBuilder can Import("wasi_snapshot_preview1", module) against.
// Every function that reads or writes guest memory expects to find a memory
// named "memory" on the consuming instance, the standard WASI host-module
// convention; proc_exit, fd_seek, fd_close and fd_fdstat_get do not use it.
type Module struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
	Rand   io.Reader
	Now    func() time.Time

	Log *logrus.Entry
}

// NewModule returns a Module wired to the process's real stdout/stderr,
// crypto/rand and wall clock — the defaults a guest expects unless the
// embedder overrides them for testing or sandboxing.
func NewModule(args []string) *Module {
	return &Module{
		Args:   args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Rand:   rand.Reader,
		Now:    time.Now,
	}
}

// ExportedMemory, ExportedGlobal and ExportedTable exist only to satisfy
// runtime.Exporter; the WASI module exports no memories, globals or
// tables.
func (m *Module) ExportedMemory(string) (*runtime.LinearMemory, bool) { return nil, false }
func (m *Module) ExportedGlobal(string) (*runtime.Global, bool)       { return nil, false }
func (m *Module) ExportedTable(string) (*runtime.Table, bool)         { return nil, false }

// ExportedFunction satisfies runtime.Exporter and always reports false:
// every function of this shim is bound to its calling instance through
// ExportedFunctionFor instead, which the InstanceBuilder prefers whenever
// an Exporter provides it.
func (m *Module) ExportedFunction(name string) (runtime.FunctionSlot, bool) {
	return runtime.FunctionSlot{}, false
}

// ExportedFunctionFor implements runtime.InstanceAwareExporter: it binds
// one of this module's functions to the specific instance that will be
// calling it, so the function can look up that instance's "memory" export.
func (m *Module) ExportedFunctionFor(name string, consumer runtime.InstanceHandle) (runtime.FunctionSlot, bool) {
	sig, handler, ok := m.lookup(name)
	if !ok {
		return runtime.FunctionSlot{}, false
	}
	return runtime.FunctionSlot{
		Signature: sig,
		Invoke: func(args []uint64) ([]uint64, error) {
			return handler(consumer, args)
		},
	}, true
}

type hostFunc func(consumer runtime.InstanceHandle, args []uint64) ([]uint64, error)

// lookup returns the canonical signature and handler for one WASI function
// name, or false if this module doesn't implement it.
func (m *Module) lookup(name string) (signature string, fn hostFunc, ok bool) {
	switch name {
	case "proc_exit":
		return "I:", m.procExit, true
	case "fd_write":
		return "IIII:I", m.fdWrite, true
	case "fd_seek":
		return "IJII:I", m.fdSeek, true
	case "fd_close":
		return "I:I", m.fdClose, true
	case "fd_fdstat_get":
		return "II:I", m.fdFdstatGet, true
	case "args_sizes_get":
		return "II:I", m.argsSizesGet, true
	case "args_get":
		return "II:I", m.argsGet, true
	case "clock_time_get":
		return "IJI:I", m.clockTimeGet, true
	case "random_get":
		return "II:I", m.randomGet, true
	default:
		return "", nil, false
	}
}

func (m *Module) memoryOf(consumer runtime.InstanceHandle) (*runtime.LinearMemory, Errno) {
	inst := runtime.ResolveInstance(consumer)
	if inst == nil {
		return nil, ErrnoFault
	}
	mem, ok := inst.ExportedMemory("memory")
	if !ok {
		return nil, ErrnoFault
	}
	return mem, ErrnoSuccess
}

func (m *Module) procExit(_ runtime.InstanceHandle, args []uint64) ([]uint64, error) {
	panic(&ExitError{Code: int32(uint32(args[0]))})
}

func (m *Module) fdSeek(runtime.InstanceHandle, []uint64) ([]uint64, error) {
	return []uint64{uint64(ErrnoBadF)}, nil
}

func (m *Module) fdClose(runtime.InstanceHandle, []uint64) ([]uint64, error) {
	return []uint64{uint64(ErrnoBadF)}, nil
}

func (m *Module) fdFdstatGet(runtime.InstanceHandle, []uint64) ([]uint64, error) {
	return []uint64{uint64(ErrnoBadF)}, nil
}

// fdWrite implements fd_write for stdout/stderr only; every other file
// descriptor returns ErrnoBadF — there is no guest-visible filesystem.
func (m *Module) fdWrite(consumer runtime.InstanceHandle, args []uint64) ([]uint64, error) {
	mem, errno := m.memoryOf(consumer)
	if errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	fd := int32(uint32(args[0]))
	iovecsAddr := uint32(args[1])
	iovecCount := uint32(args[2])
	resultAddr := uint32(args[3])

	var out io.Writer
	switch fd {
	case fdStdout:
		out = m.Stdout
	case fdStderr:
		out = m.Stderr
	default:
		return []uint64{uint64(ErrnoBadF)}, nil
	}

	var written uint32
	for i := uint32(0); i < iovecCount; i++ {
		vec, errno := readCiovec(mem, iovecsAddr+i*ciovecSize)
		if errno != ErrnoSuccess {
			return []uint64{uint64(errno)}, nil
		}
		data, err := mem.GetRange(uint64(vec.buf), uint64(vec.bufLen))
		if err != nil {
			return []uint64{uint64(ErrnoFault)}, nil
		}
		n, werr := out.Write(data)
		written += uint32(n)
		if werr != nil {
			return []uint64{uint64(ErrnoIO)}, nil
		}
	}
	if errno := writeUint32(mem, resultAddr, written); errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	return []uint64{uint64(ErrnoSuccess)}, nil
}

// argsSizesGet reports the argument count and total buffer size needed for
// m.Args, the way argsGet will lay them out.
func (m *Module) argsSizesGet(consumer runtime.InstanceHandle, args []uint64) ([]uint64, error) {
	mem, errno := m.memoryOf(consumer)
	if errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	numArgsAddr := uint32(args[0])
	bufSizeAddr := uint32(args[1])

	var argc, bufSize uint32
	for _, a := range m.Args {
		argc++
		bufSize += uint32(len(a)) + 1
	}
	if errno := writeUint32(mem, numArgsAddr, argc); errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	if errno := writeUint32(mem, bufSizeAddr, bufSize); errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	return []uint64{uint64(ErrnoSuccess)}, nil
}

// argsGet writes each argument string (NUL-terminated) into the guest
// buffer and the corresponding pointer into the guest pointer array.
func (m *Module) argsGet(consumer runtime.InstanceHandle, args []uint64) ([]uint64, error) {
	mem, errno := m.memoryOf(consumer)
	if errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	argvAddr := uint32(args[0])
	argvBufAddr := uint32(args[1])

	bufCursor := argvBufAddr
	for i, a := range m.Args {
		if errno := writeUint32(mem, argvAddr+uint32(i)*4, bufCursor); errno != ErrnoSuccess {
			return []uint64{uint64(errno)}, nil
		}
		if errno := writeBytes(mem, bufCursor, append([]byte(a), 0)); errno != ErrnoSuccess {
			return []uint64{uint64(errno)}, nil
		}
		bufCursor += uint32(len(a)) + 1
	}
	return []uint64{uint64(ErrnoSuccess)}, nil
}

// clockTimeGet answers realtime, monotonic and the two per-process/thread
// CPU-time clocks with wall-clock time; this engine doesn't track separate
// CPU-time accounting, so all four clocks currently read the same source.
func (m *Module) clockTimeGet(consumer runtime.InstanceHandle, args []uint64) ([]uint64, error) {
	mem, errno := m.memoryOf(consumer)
	if errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	clockID := uint32(args[0])
	resultAddr := uint32(args[2])

	switch clockID {
	case ClockRealtime, ClockMonotonic, ClockProcessCputimeID, ClockThreadCputimeID:
	default:
		return []uint64{uint64(ErrnoInval)}, nil
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	nanos := uint64(now().UnixNano())
	if errno := writeUint64(mem, resultAddr, nanos); errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	return []uint64{uint64(ErrnoSuccess)}, nil
}

// randomGet fills the guest buffer with cryptographically random bytes.
func (m *Module) randomGet(consumer runtime.InstanceHandle, args []uint64) ([]uint64, error) {
	mem, errno := m.memoryOf(consumer)
	if errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	bufAddr := uint32(args[0])
	bufLen := uint32(args[1])

	src := m.Rand
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, bufLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		return []uint64{uint64(ErrnoIO)}, nil
	}
	if errno := writeBytes(mem, bufAddr, buf); errno != ErrnoSuccess {
		return []uint64{uint64(errno)}, nil
	}
	return []uint64{uint64(ErrnoSuccess)}, nil
}
