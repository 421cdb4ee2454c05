package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"xcsgo/internal/config"
	"xcsgo/internal/experiment"
	"xcsgo/internal/stats"
	xcsapi "xcsgo/pkg/xcsgo"
)

// runSelector binds the --run-id and --latest flags shared by the read
// commands.
type runSelector struct {
	runID  string
	latest bool
}

func (s *runSelector) bind(cmd *cobra.Command, verb string) {
	cmd.Flags().StringVar(&s.runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&s.latest, "latest", false, verb+" the most recent run")
	cmd.MarkFlagsMutuallyExclusive("run-id", "latest")
	cmd.MarkFlagsOneRequired("run-id", "latest")
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		configPath   string
		runID        string
		seed         int64
		firstProblem int
	)
	cmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Run the experiments of a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if configPath != "" && configPath != args[0] {
					return errors.New("use either --config or a config argument, not both")
				}
				configPath = args[0]
			}
			if configPath == "" {
				return errors.New("run requires --config")
			}
			return withClient(opts, func(client *xcsapi.Client) error {
				started := time.Now()
				summary, err := client.Run(cmd.Context(), xcsapi.RunRequest{
					ConfigPath:   configPath,
					RunID:        runID,
					Seed:         seed,
					FirstProblem: firstProblem,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range summary.Summaries {
					fmt.Fprintf(out, "experiment=%d problems=%d steps=%d size=%d macro=%d ga=%d covering=%d subsumption=%d\n",
						s.Experiment, s.Problems, s.Steps, s.Size, s.MacroSize, s.GA, s.Covering, s.Subsumption)
				}
				fmt.Fprintf(out, "run completed run_id=%s environment=%s seed=%d problems=%d final_reward=%.4f final_error=%.4f final_size=%.2f elapsed=%s artifacts=%s\n",
					summary.RunID,
					summary.Environment,
					summary.Seed,
					summary.Problems,
					summary.Final.Reward,
					summary.Final.SystemError,
					summary.Final.Size,
					time.Since(started).Round(time.Millisecond),
					summary.ArtifactsDir,
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "experiment configuration (sectioned or .yaml)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id; required with --first-problem")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override the configured random seed")
	cmd.Flags().IntVar(&firstProblem, "first-problem", 0, "resume the run from its last saved state")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func newCheckConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config <config>",
		Short: "Validate a configuration file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(args[0])
			if err != nil {
				return err
			}
			log, err := newLogger(opts.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			m, err := experiment.Build(f, experiment.Options{RunID: "check", Logger: log})
			if err != nil {
				return err
			}
			s := m.Settings()
			params := m.System().Parameters()
			fmt.Fprintf(cmd.OutOrStdout(), "config ok path=%s environment=%s seed=%d population=%d experiments=%d problems=%d exploration=%s\n",
				filepath.Clean(args[0]),
				m.Environment().Name(),
				m.Seed(),
				params.MaxPopulation,
				s.Experiments,
				s.Problems(),
				params.Exploration,
			)
			return nil
		},
	}
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return withClient(opts, func(client *xcsapi.Client) error {
				items, err := client.Runs(cmd.Context(), xcsapi.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(items)
				}
				if len(items) == 0 {
					fmt.Fprintln(out, "no runs found")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(out, "run_id=%s status=%s environment=%s seed=%d experiments=%d final_size=%d final_reward=%.4f finished_at=%s\n",
						item.RunID,
						item.Status,
						item.Environment,
						item.Seed,
						item.Experiments,
						item.FinalSize,
						item.FinalReward,
						item.FinishedAt.Format(time.RFC3339),
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func newPopulationCmd(opts *globalOptions) *cobra.Command {
	var (
		sel     runSelector
		number  int
		problem int
	)
	cmd := &cobra.Command{
		Use:   "population",
		Short: "Print a saved population",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *xcsapi.Client) error {
				snapshot, err := client.Population(cmd.Context(), xcsapi.PopulationRequest{
					RunID:      sel.runID,
					Latest:     sel.latest,
					Experiment: number,
					Problem:    problem,
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), snapshot.Lines)
				return err
			})
		},
	}
	sel.bind(cmd, "show")
	cmd.Flags().IntVar(&number, "experiment", 0, "experiment number")
	cmd.Flags().IntVar(&problem, "problem", 0, "snapshot problem; 0 is the final population")
	return cmd
}

func newPerformanceCmd(opts *globalOptions) *cobra.Command {
	var (
		sel    runSelector
		number int
		window int
	)
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Print averaged testing performance as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if window <= 0 {
				return errors.New("window must be > 0")
			}
			return withClient(opts, func(client *xcsapi.Client) error {
				points, err := client.Performance(cmd.Context(), xcsapi.PerformanceRequest{
					RunID:      sel.runID,
					Latest:     sel.latest,
					Experiment: number,
					Window:     window,
				})
				if err != nil {
					return err
				}
				return stats.WritePerformance(cmd.OutOrStdout(), points)
			})
		},
	}
	sel.bind(cmd, "report")
	cmd.Flags().IntVar(&number, "experiment", -1, "experiment number; negative averages every experiment")
	cmd.Flags().IntVar(&window, "window", stats.DefaultWindow, "testing problems per point")
	return cmd
}

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	var sel runSelector
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the closing summary of every experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *xcsapi.Client) error {
				summaries, err := client.Summaries(cmd.Context(), xcsapi.StatisticsRequest{RunID: sel.runID, Latest: sel.latest})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range summaries {
					fmt.Fprintf(out, "experiment=%d problems=%d steps=%d size=%d macro=%d prediction=%.4f error=%.4f fitness=%.4f elapsed=%s per_problem=%s\n",
						s.Experiment,
						s.Problems,
						s.Steps,
						s.Size,
						s.MacroSize,
						s.AveragePrediction,
						s.AverageError,
						s.AverageFitness,
						s.Elapsed,
						s.AverageProblem,
					)
				}
				return nil
			})
		},
	}
	sel.bind(cmd, "summarize")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		sel    runSelector
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *xcsapi.Client) error {
				exported, err := client.Export(cmd.Context(), xcsapi.ExportRequest{
					RunID:  sel.runID,
					Latest: sel.latest,
					OutDir: outDir,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
				return nil
			})
		},
	}
	sel.bind(cmd, "export")
	cmd.Flags().StringVar(&outDir, "out", "", "export output directory")
	return cmd
}
