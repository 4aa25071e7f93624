package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erisproject/eris-sub001/pkg/logging"
	"github.com/erisproject/eris-sub001/pkg/sim"
	"github.com/erisproject/eris-sub001/pkg/sim/simconfig"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "erisim",
		Short: "erisim - multi-stage simulation scheduler demo",
		Long: `erisim runs a demonstration population through the engine's
fixed per-period pipeline: inter-period stages, then intra-period
Reset/Optimize/Reoptimize rounds until every member converges.`,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("erisim version %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demonstration simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			walkers, _ := cmd.Flags().GetInt("walkers")

			cfg := simconfig.Default()
			if cfgPath != "" {
				var err error
				cfg, err = simconfig.Load(cfgPath)
				if err != nil {
					return err
				}
			}

			logger, err := logging.New("erisim", cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			s := sim.New(sim.WithLogger(logger))
			defer s.Close()
			if err := s.SetMaxThreads(cfg.Threads); err != nil {
				return err
			}

			pop, err := seedPopulation(s, walkers)
			if err != nil {
				return err
			}

			for i := 0; i < cfg.Periods; i++ {
				if err := s.Run(); err != nil {
					return fmt.Errorf("period %d: %w", i+1, err)
				}
				logger.Info().
					Uint64("t", uint64(s.T())).
					Int("intraopt_rounds", s.IntraoptCount()).
					Msg("period complete")
			}

			for _, w := range pop {
				logger.Info().
					Uint64("id", uint64(w.ID())).
					Float64("target", w.Target()).
					Float64("root", w.Root()).
					Msg("walker converged")
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "Path to TOML config file")
	cmd.Flags().Int("walkers", 4, "Number of walker agents")
	return cmd
}

func seedPopulation(s *sim.Simulation, n int) ([]*Walker, error) {
	walkers := make([]*Walker, 0, n)
	for i := 0; i < n; i++ {
		w := NewWalker(float64(2 + i*3))
		if _, err := s.Add(w); err != nil {
			return nil, err
		}
		walkers = append(walkers, w)
	}
	return walkers, nil
}
