package wasi

import (
	"bytes"
	"testing"
	"time"

	"github.com/nineka/sablewasm/internal/runtime"
	"github.com/stretchr/testify/require"
)

// buildHostInstance builds a one-memory instance and imports name from mod,
// returning the instance and the bound Callee for name.
func buildHostInstance(t *testing.T, mod *Module, name, signature string) (*runtime.Instance, *runtime.Callee) {
	t.Helper()
	art := &testArtifact{
		metadata: runtime.InstanceMetadata{
			Memories:      []runtime.MemoryMetadata{{Initial: 1, Max: runtime.Unbounded}},
			MemoryExports: map[string]int{"memory": 0},
			Functions: []runtime.FunctionMetadata{{
				Import: &runtime.ImportDescriptor{Module: "wasi_snapshot_preview1", Name: name},
				Signature: signature,
			}},
		},
	}
	inst, err := runtime.NewInstanceBuilder(art, nil).Import("wasi_snapshot_preview1", mod).Build()
	require.NoError(t, err)
	slot := inst.Function(0)
	return inst, runtime.NewCallee(slot, inst.Handle())
}

type testArtifact struct{ metadata runtime.InstanceMetadata }

func (a *testArtifact) Metadata() runtime.InstanceMetadata { return a.metadata }
func (a *testArtifact) Initialize(*runtime.Instance) error { return nil }
func (a *testArtifact) Close() error                       { return nil }

func TestFdWriteToStdout(t *testing.T) {
	var out bytes.Buffer
	mod := NewModule(nil)
	mod.Stdout = &out

	inst, callee := buildHostInstance(t, mod, "fd_write", "IIII:I")
	mem, ok := inst.ExportedMemory("memory")
	require.True(t, ok)

	msg := []byte("hi")
	copy(mem.Raw()[100:], msg)
	// one ciovec at address 0: {buf: 100, buf_len: 2}
	putU32(mem, 0, 100)
	putU32(mem, 4, uint32(len(msg)))

	results, err := callee.Invoke(
		runtime.I32Value(fdStdout),
		runtime.I32Value(0),
		runtime.I32Value(1),
		runtime.I32Value(200),
	)
	require.NoError(t, err)
	require.EqualValues(t, ErrnoSuccess, results[0].I32())
	require.Equal(t, "hi", out.String())

	writtenBytes, getErr := mem.GetRange(200, 4)
	require.NoError(t, getErr)
	require.EqualValues(t, 2, leU32(writtenBytes))
}

func TestFdWriteRejectsBadFD(t *testing.T) {
	mod := NewModule(nil)
	_, callee := buildHostInstance(t, mod, "fd_write", "IIII:I")

	results, err := callee.Invoke(runtime.I32Value(99), runtime.I32Value(0), runtime.I32Value(0), runtime.I32Value(0))
	require.NoError(t, err)
	require.EqualValues(t, ErrnoBadF, results[0].I32())
}

func TestProcExitPanicsWithExitError(t *testing.T) {
	mod := NewModule(nil)
	_, callee := buildHostInstance(t, mod, "proc_exit", "I:")

	_, err := callee.Invoke(runtime.I32Value(7))
	require.Error(t, err)
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	require.EqualValues(t, 7, exit.ExitCode())
}

func TestArgsSizesGetReportsArgCount(t *testing.T) {
	mod := NewModule([]string{"a", "bb"})
	inst, callee := buildHostInstance(t, mod, "args_sizes_get", "II:I")
	mem, _ := inst.ExportedMemory("memory")

	results, err := callee.Invoke(runtime.I32Value(0), runtime.I32Value(4))
	require.NoError(t, err)
	require.EqualValues(t, ErrnoSuccess, results[0].I32())

	argc, _ := mem.GetRange(0, 4)
	bufSize, _ := mem.GetRange(4, 4)
	require.EqualValues(t, 2, leU32(argc))
	require.EqualValues(t, 5, leU32(bufSize)) // "a\0" + "bb\0"
}

func TestClockTimeGetWritesNanoseconds(t *testing.T) {
	mod := NewModule(nil)
	fixed := time.Unix(1000, 0)
	mod.Now = func() time.Time { return fixed }

	inst, callee := buildHostInstance(t, mod, "clock_time_get", "IJI:I")
	mem, _ := inst.ExportedMemory("memory")

	results, err := callee.Invoke(runtime.I32Value(int32(ClockRealtime)), runtime.I64Value(0), runtime.I32Value(0))
	require.NoError(t, err)
	require.EqualValues(t, ErrnoSuccess, results[0].I32())

	raw, _ := mem.GetRange(0, 8)
	var nanos uint64
	for i := 7; i >= 0; i-- {
		nanos = nanos<<8 | uint64(raw[i])
	}
	require.EqualValues(t, fixed.UnixNano(), nanos)
}

func TestClockTimeGetRejectsUnknownClock(t *testing.T) {
	mod := NewModule(nil)
	_, callee := buildHostInstance(t, mod, "clock_time_get", "IJI:I")

	results, err := callee.Invoke(runtime.I32Value(99), runtime.I64Value(0), runtime.I32Value(0))
	require.NoError(t, err)
	require.EqualValues(t, ErrnoInval, results[0].I32())
}

func TestRandomGetFillsBuffer(t *testing.T) {
	mod := NewModule(nil)
	inst, callee := buildHostInstance(t, mod, "random_get", "II:I")
	mem, _ := inst.ExportedMemory("memory")

	results, err := callee.Invoke(runtime.I32Value(0), runtime.I32Value(16))
	require.NoError(t, err)
	require.EqualValues(t, ErrnoSuccess, results[0].I32())

	buf, _ := mem.GetRange(0, 16)
	require.Len(t, buf, 16)
}

func putU32(mem *runtime.LinearMemory, addr uint32, v uint32) {
	b, _ := mem.GetRange(uint64(addr), 4)
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
