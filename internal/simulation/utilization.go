package simulation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/guimove/vmplacer/internal/model"
)

// AnalyzeUtilization computes waste and churn metrics over the given (used)
// hosts. pending is the number of VMs the placement left without a host.
func AnalyzeUtilization(hosts []model.HostUtilization, pending int) model.UtilizationReport {
	report := model.UtilizationReport{BalanceScore: 1.0, VMSpread: 1.0}

	var placed, migrations, hottest int
	counts := make([]float64, 0, len(hosts))
	for _, h := range hosts {
		placed += len(h.VMIDs)
		migrations += len(h.MigratedIn)
		hottest = max(hottest, len(h.MigratedIn))
		counts = append(counts, float64(len(h.VMIDs)))
	}
	if total := placed + pending; total > 0 {
		report.PendingFraction = float64(pending) / float64(total)
	}
	if migrations > 0 {
		report.MigrationHotspot = float64(hottest) / float64(migrations)
	}
	if len(hosts) == 0 {
		return report
	}

	// Coefficient of variation of VMs per host, folded into [0, 1].
	if mean, std := stat.PopMeanStdDev(counts, nil); mean > 0 {
		report.VMSpread = math.Max(0, 1-std/mean)
	}

	var underutilized int
	var balance float64
	for i := range hosts {
		h := &hosts[i]
		if h.Memory.Total == 0 || h.CPU.Total == 0 {
			continue
		}

		memUtil := h.Memory.Utilization()
		cpuUtil := h.CPU.Utilization()

		// One dimension nearly full, the other mostly idle.
		if cpuUtil > HighUtilThreshold && memUtil < LowUtilThreshold {
			report.StrandedMemory += h.Memory.Free()
		}
		if memUtil > HighUtilThreshold && cpuUtil < LowUtilThreshold {
			report.StrandedCPU += h.CPU.Free()
		}

		if cpuUtil < LowUtilThreshold || memUtil < LowUtilThreshold {
			underutilized++
		}
		balance += 1.0 - math.Abs(cpuUtil-memUtil)
	}

	n := float64(len(hosts))
	report.UnderutilizedHostFraction = float64(underutilized) / n
	report.BalanceScore = balance / n

	return report
}
