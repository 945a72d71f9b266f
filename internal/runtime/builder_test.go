package runtime

import (
	"testing"

	"github.com/nineka/sablewasm/internal/bytecode"
	"github.com/stretchr/testify/require"
)

// fakeArtifact is a hand-built Artifact for tests, standing in for what the
// (out-of-scope) codegen/artifact-loading stage would otherwise produce.
type fakeArtifact struct {
	metadata    InstanceMetadata
	initialized bool
	initErr     error
	closed      bool
	closeErr    error
}

func (f *fakeArtifact) Metadata() InstanceMetadata { return f.metadata }
func (f *fakeArtifact) Initialize(inst *Instance) error {
	f.initialized = true
	return f.initErr
}
func (f *fakeArtifact) Close() error {
	f.closed = true
	return f.closeErr
}

func TestBuilderLinksDefinedMemoryAndExportsIt(t *testing.T) {
	art := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories:      []MemoryMetadata{{Initial: 1, Max: Unbounded}},
			MemoryExports: map[string]int{"mem": 0},
		},
	}
	inst, err := NewInstanceBuilder(art, nil).Build()
	require.NoError(t, err)
	require.True(t, art.initialized)

	mem, ok := inst.ExportedMemory("mem")
	require.True(t, ok)
	require.EqualValues(t, 1, mem.PageSize())
}

func TestBuilderResolvesImportedMemoryFromAnotherInstance(t *testing.T) {
	producerArt := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories:      []MemoryMetadata{{Initial: 2, Max: Unbounded}},
			MemoryExports: map[string]int{"shared": 0},
		},
	}
	producer, err := NewInstanceBuilder(producerArt, nil).Build()
	require.NoError(t, err)

	consumerArt := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories: []MemoryMetadata{{
				Import:  &ImportDescriptor{Module: "env", Name: "shared"},
				Initial: 2, Max: Unbounded,
			}},
		},
	}
	consumer, err := NewInstanceBuilder(consumerArt, nil).Import("env", producer).Build()
	require.NoError(t, err)
	require.Same(t, producer.Memory(0), consumer.Memory(0))
}

func TestBuilderFailsOnMissingImport(t *testing.T) {
	art := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories: []MemoryMetadata{{
				Import: &ImportDescriptor{Module: "env", Name: "missing"}, Initial: 1, Max: Unbounded,
			}},
		},
	}
	_, err := NewInstanceBuilder(art, nil).Build()
	require.Error(t, err)
}

func TestBuilderFailsOnMemoryLimitMismatch(t *testing.T) {
	producerArt := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories:      []MemoryMetadata{{Initial: 1, Max: Unbounded}},
			MemoryExports: map[string]int{"mem": 0},
		},
	}
	producer, err := NewInstanceBuilder(producerArt, nil).Build()
	require.NoError(t, err)

	consumerArt := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories: []MemoryMetadata{{
				Import: &ImportDescriptor{Module: "env", Name: "mem"}, Initial: 1, Max: 4,
			}},
		},
	}
	_, err = NewInstanceBuilder(consumerArt, nil).Import("env", producer).Build()
	require.Error(t, err)
}

func TestBuilderConstructsDefinedGlobalAndFunction(t *testing.T) {
	art := &fakeArtifact{
		metadata: InstanceMetadata{
			Globals:         []GlobalMetadata{{ValueType: bytecode.I32, Mutable: true}},
			Functions:       []FunctionMetadata{{Signature: "I:I"}},
			GlobalExports:   map[string]int{"g": 0},
			FunctionExports: map[string]int{"f": 0},
		},
	}
	inst, err := NewInstanceBuilder(art, nil).Build()
	require.NoError(t, err)

	g, ok := inst.ExportedGlobal("g")
	require.True(t, ok)
	require.Equal(t, bytecode.I32, g.Type())

	f, ok := inst.ExportedFunction("f")
	require.True(t, ok)
	require.Equal(t, "I:I", f.Signature)
}

func TestBuilderPropagatesInitializerError(t *testing.T) {
	art := &fakeArtifact{metadata: InstanceMetadata{}, initErr: errInitBoom}
	_, err := NewInstanceBuilder(art, nil).Build()
	require.ErrorIs(t, err, errInitBoom)
}

func TestInstanceDestroyClosesArtifact(t *testing.T) {
	art := &fakeArtifact{metadata: InstanceMetadata{}}
	inst, err := NewInstanceBuilder(art, nil).Build()
	require.NoError(t, err)

	require.NoError(t, inst.Destroy())
	require.True(t, art.closed)
}

func TestInstanceDestroyStripsUseSiteFromImportedMemoryWithoutClosingIt(t *testing.T) {
	producerArt := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories:      []MemoryMetadata{{Initial: 1, Max: Unbounded}},
			MemoryExports: map[string]int{"shared": 0},
		},
	}
	producer, err := NewInstanceBuilder(producerArt, nil).Build()
	require.NoError(t, err)

	consumerArt := &fakeArtifact{
		metadata: InstanceMetadata{
			Memories: []MemoryMetadata{{
				Import: &ImportDescriptor{Module: "env", Name: "shared"}, Initial: 1, Max: Unbounded,
			}},
		},
	}
	consumer, err := NewInstanceBuilder(consumerArt, nil).Import("env", producer).Build()
	require.NoError(t, err)

	shared := producer.Memory(0)
	require.NoError(t, consumer.Destroy())
	// The imported memory is still open — consumer didn't own it.
	require.EqualValues(t, 1, shared.PageSize())

	// Its use-site must be gone, or producer's own Destroy (which does own
	// and close it) would fail with "active use sites" below.
	require.NoError(t, producer.Destroy())
}

var errInitBoom = requireNewError("initializer exploded")

func requireNewError(msg string) error { return &simpleTestError{msg} }

type simpleTestError struct{ msg string }

func (e *simpleTestError) Error() string { return e.msg }
