package cmd

import (
	"github.com/spf13/cobra"
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Compute a placement for a cluster snapshot",
	Long: `Loads a cluster snapshot, runs the configured mapper (ilp or bfd) with the
configured criteria and prints the resulting allocation of every VM.`,
	RunE: runPlace,
}

func init() {
	f := placeCmd.Flags()
	f.String("strategy", "ilp", "mapper strategy: ilp or bfd")
	f.Int("allowed-migrations", -1, "maximum number of migrations, negative for unlimited")
	f.StringToString("balance-constraints", nil, "upper bounds on host load fractions, e.g. memory=0.8")
	f.String("report", "", "write the mapper's model report to this file")

	rootCmd.AddCommand(placeCmd)
}

func runPlace(cmd *cobra.Command, args []string) error {
	if s, _ := cmd.Flags().GetString("strategy"); cmd.Flags().Changed("strategy") {
		cfg.Mapper.Strategy = s
	}
	if n, _ := cmd.Flags().GetInt("allowed-migrations"); cmd.Flags().Changed("allowed-migrations") {
		cfg.Mapper.AllowedMigrations = n
	}
	if raw, _ := cmd.Flags().GetStringToString("balance-constraints"); cmd.Flags().Changed("balance-constraints") {
		bounds, err := parseWeights(raw)
		if err != nil {
			return err
		}
		cfg.Mapper.BalanceConstraints = bounds
	}
	if p, _ := cmd.Flags().GetString("report"); p != "" {
		cfg.Output.ReportPath = p
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}
	orch.Writer = cmd.OutOrStdout()
	_, err = orch.Place(cmd.Context())
	return err
}
