package cmd

import (
	"github.com/spf13/cobra"
)

var whatifCmd = &cobra.Command{
	Use:   "what-if",
	Short: "Compare placement strategies, criteria and migration budgets side by side",
	Long: `Runs the same snapshot through every combination of the given strategies,
criteria and migration budgets concurrently, then ranks the outcomes by
placement rate, consolidation, stability and balance.`,
	RunE: runWhatIf,
}

func init() {
	f := whatifCmd.Flags()
	f.StringSlice("strategies", nil, "mapper strategies to compare (default: ilp,bfd)")
	f.StringSlice("criteria-set", nil, "criteria to compare (default: pack,migration_count)")
	f.IntSlice("budgets", nil, "migration budgets to compare, negative for unlimited")
	f.Int("parallelism", 0, "scenarios run at once (default: number of CPUs)")
	f.Int("top", 5, "number of recommendations")

	rootCmd.AddCommand(whatifCmd)
}

func runWhatIf(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	if s, _ := f.GetStringSlice("strategies"); f.Changed("strategies") {
		cfg.Mapper.WhatIf.Strategies = s
	}
	if c, _ := f.GetStringSlice("criteria-set"); f.Changed("criteria-set") {
		cfg.Mapper.WhatIf.Criteria = c
	}
	if b, _ := f.GetIntSlice("budgets"); f.Changed("budgets") {
		cfg.Mapper.WhatIf.Budgets = b
	}
	if p, _ := f.GetInt("parallelism"); f.Changed("parallelism") {
		cfg.Mapper.WhatIf.Parallelism = p
	}
	if n, _ := f.GetInt("top"); f.Changed("top") {
		cfg.Output.TopN = n
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}
	orch.Writer = cmd.OutOrStdout()
	_, err = orch.WhatIf(cmd.Context())
	return err
}
