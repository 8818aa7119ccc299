package grid

import (
	"bytes"
	"io"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFSM(t *testing.T) *FSM {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFSM(db, nil)
}

func applyCommand(t *testing.T, fsm *FSM, cmd *domain.Command) *domain.CommandResult {
	t.Helper()
	data, err := cmd.Marshal()
	require.NoError(t, err)
	result, ok := fsm.Apply(&raft.Log{Data: data}).(*domain.CommandResult)
	require.True(t, ok)
	return result
}

type memorySink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memorySink) ID() string    { return "test" }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }
func (s *memorySink) Close() error  { return nil }

func TestFSM_Activate(t *testing.T) {
	fsm := newTestFSM(t)

	active, err := fsm.Active()
	require.NoError(t, err)
	assert.False(t, active)

	result := applyCommand(t, fsm, domain.NewActivateCommand(true))
	assert.True(t, result.Success)

	result = applyCommand(t, fsm, domain.NewActivateCommand(true))
	assert.True(t, result.Success)

	active, err = fsm.Active()
	require.NoError(t, err)
	assert.True(t, active)
}

func TestFSM_CreateDatasetIsCreateIfNotExists(t *testing.T) {
	fsm := newTestFSM(t)
	def := domain.DatasetDefinition{Name: "configuration", Mode: domain.DatasetReplicated, CreatedBy: "A"}

	first := applyCommand(t, fsm, domain.NewCreateDatasetCommand(def))
	def.CreatedBy = "B"
	second := applyCommand(t, fsm, domain.NewCreateDatasetCommand(def))

	assert.True(t, first.Success)
	assert.True(t, first.Created)
	assert.True(t, second.Success)
	assert.False(t, second.Created)

	names, err := fsm.DatasetNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"configuration"}, names)
}

func TestFSM_RejectsUnnamedDataset(t *testing.T) {
	fsm := newTestFSM(t)

	result := applyCommand(t, fsm, domain.NewCreateDatasetCommand(domain.DatasetDefinition{}))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "dataset name")
}

func TestFSM_BaselineRevisionMovesOnlyOnChange(t *testing.T) {
	fsm := newTestFSM(t)

	first := applyCommand(t, fsm, domain.NewSetBaselineCommand(domain.NewNodeSet("A")))
	same := applyCommand(t, fsm, domain.NewSetBaselineCommand(domain.NewNodeSet("A")))
	wider := applyCommand(t, fsm, domain.NewSetBaselineCommand(domain.NewNodeSet("B", "A")))

	assert.Equal(t, uint64(1), first.Revision)
	assert.Equal(t, uint64(1), same.Revision)
	assert.Equal(t, uint64(2), wider.Revision)

	baseline, err := fsm.Baseline()
	require.NoError(t, err)
	assert.Equal(t, domain.NewNodeSet("A", "B"), baseline.Nodes)
	assert.Equal(t, uint64(2), baseline.Revision)
}

func TestFSM_RejectsEmptyBaseline(t *testing.T) {
	fsm := newTestFSM(t)

	result := applyCommand(t, fsm, domain.NewSetBaselineCommand(nil))

	assert.False(t, result.Success)
}

func TestFSM_UnknownCommand(t *testing.T) {
	fsm := newTestFSM(t)

	result := applyCommand(t, fsm, &domain.Command{Type: 99})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown command type")
}

func TestFSM_MalformedLogEntry(t *testing.T) {
	fsm := newTestFSM(t)

	result, ok := fsm.Apply(&raft.Log{Data: []byte("{not json")}).(*domain.CommandResult)

	require.True(t, ok)
	assert.False(t, result.Success)
}

func TestFSM_SnapshotRestore(t *testing.T) {
	source := newTestFSM(t)
	applyCommand(t, source, domain.NewActivateCommand(true))
	applyCommand(t, source, domain.NewSetBaselineCommand(domain.NewNodeSet("A", "B")))
	applyCommand(t, source, domain.NewCreateDatasetCommand(domain.DatasetDefinition{Name: "configuration"}))

	snapshot, err := source.Snapshot()
	require.NoError(t, err)

	sink := &memorySink{}
	require.NoError(t, snapshot.Persist(sink))
	assert.False(t, sink.cancelled)

	target := newTestFSM(t)
	applyCommand(t, target, domain.NewCreateDatasetCommand(domain.DatasetDefinition{Name: "stale"}))
	require.NoError(t, target.Restore(io.NopCloser(&sink.Buffer)))

	active, err := target.Active()
	require.NoError(t, err)
	assert.True(t, active)

	names, err := target.DatasetNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"configuration"}, names)

	baseline, err := target.Baseline()
	require.NoError(t, err)
	assert.Equal(t, domain.NewNodeSet("A", "B"), baseline.Nodes)
}
