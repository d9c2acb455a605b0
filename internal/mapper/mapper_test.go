package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	p := Placement{
		1: {VMID: 1, HostID: 10},
		2: {VMID: 2, HostID: 10},
		3: {VMID: 3, HostID: 11},
		4: nil,
	}
	current := map[int]int{1: 10, 3: 12}

	got := Summarize(p, current)
	assert.Equal(t, Stats{Placed: 3, Pending: 1, HostsUsed: 2, Migrations: 1}, got)
}

func TestCriteria_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pack", Pack().String())
	assert.Equal(t, "migration_count", MigrationCount().String())
	assert.Equal(t, "balance(cpu_ratio=1,memory=0.5)",
		Balance(map[string]float64{BalanceMemory: 0.5, BalanceCPURatio: 1}).String())
}

func TestNewInput(t *testing.T) {
	t.Parallel()

	cs := model.ClusterState{
		VMs:              []model.VMRequirements{{ID: 1, State: model.VMRunning}, {ID: 2, State: model.VMPending}},
		Hosts:            []model.HostCapacity{{ID: 5}, {ID: 3}},
		Groups:           []model.VMGroup{{ID: 9, VMIDs: []int{1, 2}}},
		CurrentPlacement: map[int]int{1: 5},
		UsedHostDStores:  []model.HostDStoreBinding{{VMID: 1, ReqID: 0, HostID: 5, DiskID: 2}},
	}

	in := NewInput(cs, Pack())
	assert.Equal(t, []int{1, 2}, in.SortedVMIDs())
	assert.Equal(t, []int{3, 5}, in.SortedHostIDs())
	assert.Equal(t, []int{9}, in.SortedGroupIDs())
	assert.Equal(t, model.HostDisk{HostID: 5, DiskID: 2}, in.UsedHostDStores[model.StorageKey{VMID: 1}])
	assert.False(t, in.AllPending())
	assert.Nil(t, in.AllowedMigrations)

	cs.CurrentPlacement[2] = 3
	assert.NotContains(t, in.CurrentPlacement, 2, "input does not alias the snapshot")
}

func TestInput_Validate(t *testing.T) {
	t.Parallel()

	base := func() Input {
		return Input{
			VMs:    map[int]model.VMRequirements{1: {ID: 1}, 2: {ID: 2}},
			Groups: map[int]model.VMGroup{7: {ID: 7, Affined: true, VMIDs: []int{1, 2}}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Input)
		wantErr error
	}{
		{"valid", func(*Input) {}, nil},
		{"preemptive", func(in *Input) { in.Preemptive = true }, ErrPreemptiveUnsupported},
		{"unknown balance", func(in *Input) {
			in.BalanceConstraints = map[string]float64{"disk": 0.5}
		}, ErrUnknownBalance},
		{"unknown group member", func(in *Input) {
			in.Groups[8] = model.VMGroup{ID: 8, VMIDs: []int{3}}
		}, ErrUnknownVM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := base()
			tt.mutate(&in)
			err := in.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	in := base()
	in.Groups[8] = model.VMGroup{ID: 8, Affined: true, VMIDs: []int{2}}
	assert.Error(t, in.Validate(), "a vm cannot be in two affined groups")
}

func TestApplyOptions(t *testing.T) {
	t.Parallel()

	o := ApplyOptions()
	require.NotNil(t, o.Logger)
	assert.Nil(t, o.Solver)

	solver := milp.NewBranchAndBound(milp.DefaultConfig())
	logger := zaptest.NewLogger(t)
	o = ApplyOptions(WithSolver(solver), WithLogger(logger), WithLogger(nil))
	assert.Same(t, solver, o.Solver)
	assert.NotNil(t, o.Logger, "nil logger falls back to a no-op logger")
}
