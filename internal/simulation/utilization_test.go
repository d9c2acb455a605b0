package simulation

import (
	"math"
	"testing"

	"github.com/guimove/vmplacer/internal/model"
)

func makeHostUtil(mem, cpu, usedMem, usedCPU float64) model.HostUtilization {
	return model.HostUtilization{
		VMIDs:  []int{1},
		Memory: model.Capacity{Total: mem, Usage: usedMem},
		CPU:    model.Capacity{Total: cpu, Usage: usedCPU},
	}
}

func TestUtilization_PerfectBalance(t *testing.T) {
	hosts := []model.HostUtilization{
		makeHostUtil(16, 4, 12.8, 3.2),
		makeHostUtil(16, 4, 12.8, 3.2),
	}

	report := AnalyzeUtilization(hosts, 0)

	// 80% CPU, 80% memory → perfect balance
	if report.BalanceScore < 0.95 {
		t.Errorf("expected high balance score, got %v", report.BalanceScore)
	}
	if report.StrandedCPU != 0 {
		t.Errorf("expected no stranded CPU, got %v", report.StrandedCPU)
	}
	if report.StrandedMemory != 0 {
		t.Errorf("expected no stranded memory, got %v", report.StrandedMemory)
	}
}

func TestUtilization_StrandedMemory(t *testing.T) {
	// 95% CPU, 20% memory → memory is stranded
	report := AnalyzeUtilization([]model.HostUtilization{makeHostUtil(16, 4, 3.2, 3.8)}, 0)
	if math.Abs(report.StrandedMemory-12.8) > 1e-9 {
		t.Errorf("expected 12.8 stranded memory, got %v", report.StrandedMemory)
	}
}

func TestUtilization_StrandedCPU(t *testing.T) {
	// 20% CPU, 95% memory → CPU is stranded
	report := AnalyzeUtilization([]model.HostUtilization{makeHostUtil(16, 4, 15.2, 0.8)}, 0)
	if report.StrandedCPU == 0 {
		t.Error("expected stranded CPU")
	}
}

func TestUtilization_Underutilized(t *testing.T) {
	hosts := []model.HostUtilization{
		makeHostUtil(16, 4, 4, 1),    // 25% CPU, 25% mem
		makeHostUtil(16, 4, 14, 3.2), // 80% CPU, 87% mem
	}

	report := AnalyzeUtilization(hosts, 0)
	if report.UnderutilizedHostFraction != 0.5 {
		t.Errorf("expected 50%% underutilized, got %v", report.UnderutilizedHostFraction)
	}
}

func TestUtilization_NoHosts(t *testing.T) {
	report := AnalyzeUtilization(nil, 0)
	if report.BalanceScore != 1.0 {
		t.Errorf("expected 1.0 balance for no hosts, got %v", report.BalanceScore)
	}
}

func TestUtilization_LowBalance(t *testing.T) {
	// Very imbalanced: 90% CPU, 10% memory
	report := AnalyzeUtilization([]model.HostUtilization{makeHostUtil(16, 4, 1.6, 3.6)}, 0)
	// |0.9 - 0.1| = 0.8 → balance = 1.0 - 0.8 = 0.2
	if math.Abs(report.BalanceScore-0.2) > 0.05 {
		t.Errorf("expected low balance ~0.2, got %v", report.BalanceScore)
	}
}

func TestUtilization_VMSpread(t *testing.T) {
	even := makeHostUtil(16, 4, 8, 2)
	even.VMIDs = []int{1, 2}
	other := makeHostUtil(16, 4, 8, 2)
	other.VMIDs = []int{3, 4}

	report := AnalyzeUtilization([]model.HostUtilization{even, other}, 0)
	if report.VMSpread != 1.0 {
		t.Errorf("expected spread 1.0 for equal VM counts, got %v", report.VMSpread)
	}

	// 1 and 3 VMs: mean 2, population std 1
	other.VMIDs = []int{3, 4, 5}
	even.VMIDs = []int{1}
	report = AnalyzeUtilization([]model.HostUtilization{even, other}, 0)
	if math.Abs(report.VMSpread-0.5) > 1e-9 {
		t.Errorf("expected spread 0.5, got %v", report.VMSpread)
	}
}

func TestUtilization_MigrationHotspot(t *testing.T) {
	a := makeHostUtil(16, 4, 8, 2)
	a.VMIDs = []int{1, 2, 3}
	a.MigratedIn = []int{1, 2, 3}
	b := makeHostUtil(16, 4, 8, 2)
	b.VMIDs = []int{4}
	b.MigratedIn = []int{4}

	report := AnalyzeUtilization([]model.HostUtilization{a, b}, 0)
	if math.Abs(report.MigrationHotspot-0.75) > 1e-9 {
		t.Errorf("expected 3 of 4 migrations on one host, got %v", report.MigrationHotspot)
	}

	a.MigratedIn, b.MigratedIn = nil, nil
	report = AnalyzeUtilization([]model.HostUtilization{a, b}, 0)
	if report.MigrationHotspot != 0 {
		t.Errorf("expected no hotspot without migrations, got %v", report.MigrationHotspot)
	}
}

func TestUtilization_PendingFraction(t *testing.T) {
	h := makeHostUtil(16, 4, 8, 2)
	h.VMIDs = []int{1, 2, 3}

	report := AnalyzeUtilization([]model.HostUtilization{h}, 1)
	if report.PendingFraction != 0.25 {
		t.Errorf("expected 1 of 4 VMs pending, got %v", report.PendingFraction)
	}

	// nothing placed at all
	report = AnalyzeUtilization(nil, 3)
	if report.PendingFraction != 1.0 || report.BalanceScore != 1.0 {
		t.Errorf("expected all pending and neutral balance, got %+v", report)
	}
}
