package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/config"
	"github.com/guimove/vmplacer/internal/orchestrator"
	"github.com/guimove/vmplacer/internal/snapshot"
)

var (
	cfgFile string
	cfg     config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "vmplacer",
	Short: "VM placement optimizer for virtualization clusters",
	Long: `vmplacer maps virtual machines onto hosts, local disks, shared datastores
and virtual networks from a cluster snapshot.

It honors capacity, PCI passthrough, affinity and anti-affinity, migration
budgets and balance bounds, and solves the placement either exactly with an
integer linear program or quickly with a best-fit-decreasing heuristic.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return buildLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: vmplacer.yaml)")
	pf.Bool("verbose", false, "enable verbose output")

	// Global flags that map to config
	pf.StringP("input", "i", "", "path to the cluster snapshot (.json, .yaml)")
	pf.String("criteria", defaults.Mapper.Criteria, "optimization criteria: pack, migration_count, or balance")
	pf.StringToString("balance-weights", nil, "balance criteria weights, e.g. memory=1,cpu_ratio=0.5")
	pf.String("output", defaults.Output.Format, "output format: table, json, yaml, markdown")
	pf.String("metrics-file", "", "write solver metrics in Prometheus text format to this file")
	pf.Duration("time-limit", defaults.Solver.TimeLimit, "solver time limit")

	_ = viper.BindPFlag("log.verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("input.path", pf.Lookup("input"))
	_ = viper.BindPFlag("mapper.criteria", pf.Lookup("criteria"))
	_ = viper.BindPFlag("output.format", pf.Lookup("output"))
	_ = viper.BindPFlag("output.metrics_file", pf.Lookup("metrics-file"))
	_ = viper.BindPFlag("solver.time_limit", pf.Lookup("time-limit"))
}

func loadConfig() error {
	// Start with defaults
	cfg = config.Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vmplacer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.vmplacer")
	}

	// Environment variable overrides
	viper.SetEnvPrefix("VMPLACER")
	viper.AutomaticEnv()

	// Read config file (not an error if missing)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	if f := rootCmd.PersistentFlags().Lookup("balance-weights"); f.Changed {
		weights, _ := rootCmd.PersistentFlags().GetStringToString("balance-weights")
		parsed, err := parseWeights(weights)
		if err != nil {
			return err
		}
		cfg.Mapper.BalanceWeights = parsed
	}

	return cfg.Validate()
}

func buildLogger() error {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Log.Verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	logger = l
	return nil
}

// newOrchestrator builds the pipeline over the configured snapshot file.
func newOrchestrator() (*orchestrator.Orchestrator, error) {
	if cfg.Input.Path == "" {
		return nil, errors.New("no snapshot given: set --input or input.path")
	}
	return orchestrator.New(snapshot.NewStaticLoader(cfg.Input.Path), cfg, logger), nil
}
