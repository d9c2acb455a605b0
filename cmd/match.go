package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guimove/vmplacer/internal/orchestrator"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show the candidate hosts, devices, storage and networks of every VM",
	Long: `Runs the matching engine alone over a cluster snapshot. Useful for
understanding why a VM stays pending: a VM with no candidate host can never be
placed, whatever the criteria.`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.Bool("unmatched", false, "only show VMs without a candidate host")
	f.String("output-file", "", "write output to file")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator()
	if err != nil {
		return err
	}
	matches, free, err := orch.Match(cmd.Context())
	if err != nil {
		return err
	}

	if only, _ := cmd.Flags().GetBool("unmatched"); only {
		kept := matches[:0]
		for _, m := range matches {
			if len(m.Hosts) == 0 {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	w := cmd.OutOrStdout()
	if outFile, _ := cmd.Flags().GetString("output-file"); outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if cfg.Output.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	view := "total"
	if free {
		view = "free"
	}
	fmt.Fprintf(w, "Snapshot: %s (%s capacity)\n\n", cfg.Input.Path, view)
	fmt.Fprintf(w, "%-6s %-10s %-24s %-20s %-20s %s\n", "VM", "STATE", "HOSTS", "PCI", "STORAGE", "VNETS")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 100))
	for _, m := range matches {
		fmt.Fprintf(w, "%-6d %-10s %-24s %-20s %-20s %s\n",
			m.VMID, m.State,
			truncate(joinInts(m.Hosts), 24),
			truncate(pciSummary(m), 20),
			truncate(storageSummary(m), 20),
			vnetSummary(m))
	}
	return nil
}

func pciSummary(m orchestrator.VMMatch) string {
	perReq := make(map[int]int)
	for _, d := range m.PCI {
		perReq[d.ReqIndex]++
	}
	reqs := make([]int, 0, len(perReq))
	for r := range perReq {
		reqs = append(reqs, r)
	}
	sort.Ints(reqs)
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = fmt.Sprintf("%d:%d", r, perReq[r])
	}
	return strings.Join(parts, " ")
}

func storageSummary(m orchestrator.VMMatch) string {
	ids := make([]int, 0, len(m.Storage))
	for id := range m.Storage {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		dm := m.Storage[id]
		if dm.Requirement.AllowHostDStores {
			parts[i] = fmt.Sprintf("%d:h%d", id, len(dm.HostDStores))
		} else {
			parts[i] = fmt.Sprintf("%d:s%d", id, len(dm.SharedDStores))
		}
	}
	return strings.Join(parts, " ")
}

func vnetSummary(m orchestrator.VMMatch) string {
	nics := make([]int, 0, len(m.VNets))
	for nic := range m.VNets {
		nics = append(nics, nic)
	}
	sort.Ints(nics)
	parts := make([]string, len(nics))
	for i, nic := range nics {
		parts[i] = fmt.Sprintf("%d:[%s]", nic, joinInts(m.VNets[nic]))
	}
	return strings.Join(parts, " ")
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
