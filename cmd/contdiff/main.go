// SPDX-License-Identifier: MIT

// Command contdiff evaluates, simulates and imputes continuous traits on a
// phylogeny described by a YAML scenario.
//
//	contdiff loglik   scenario.yaml [--timing]
//	contdiff simulate scenario.yaml [--seed N]
//	contdiff impute   scenario.yaml [--seed N | --mean]
package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	logLevel string
	timing   bool
	seed     uint64
	useMean  bool

	rootCmd = &cobra.Command{
		Use:           "contdiff",
		Short:         "Continuous-trait diffusion on phylogenies",
		Long:          `Integrates Brownian-diffusion trait likelihoods over a tree, simulates trait data and imputes missing tip values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	loglikCmd = &cobra.Command{
		Use:   "loglik [scenario.yaml]",
		Short: "Print per-trait root log-likelihoods and Wishart statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoglik,
	}
	simulateCmd = &cobra.Command{
		Use:   "simulate [scenario.yaml]",
		Short: "Replace the scenario's tips with values simulated under its model",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
	imputeCmd = &cobra.Command{
		Use:   "impute [scenario.yaml]",
		Short: "Fill missing tip values from their conditional distributions",
		Args:  cobra.ExactArgs(1),
		RunE:  runImpute,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	loglikCmd.Flags().BoolVar(&timing, "timing", false, "Append per-phase timing to the output")
	simulateCmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")
	imputeCmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")
	imputeCmd.Flags().BoolVar(&useMean, "mean", false, "Use conditional means instead of draws")

	rootCmd.AddCommand(loglikCmd, simulateCmd, imputeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "contdiff:", err)
		os.Exit(1)
	}
}

// newLogger builds the stderr text logger for --log-level.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func runLoglik(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	s, err := LoadScenario(args[0])
	if err != nil {
		return err
	}
	res, err := Evaluate(s, logger, timing)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(res)
	if err != nil {
		return err
	}
	if _, err = cmd.OutOrStdout().Write(out); err != nil {
		return err
	}
	if res.Report != "" {
		_, err = io.WriteString(cmd.OutOrStdout(), res.Report)
	}

	return err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	s, err := LoadScenario(args[0])
	if err != nil {
		return err
	}
	tips, err := Simulate(s, rand.NewPCG(seed, seed))
	if err != nil {
		return err
	}

	return writeYAML(cmd.OutOrStdout(), s.withTips(tips))
}

func runImpute(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	s, err := LoadScenario(args[0])
	if err != nil {
		return err
	}
	var src rand.Source
	if !useMean {
		src = rand.NewPCG(seed, seed)
	}
	tips, err := Impute(s, logger, src)
	if err != nil {
		return err
	}

	return writeYAML(cmd.OutOrStdout(), s.withTips(tips))
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}

	return enc.Close()
}
