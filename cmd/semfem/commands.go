package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/notargets/SEMFEM/config"
	"github.com/notargets/SEMFEM/semfem"
)

var (
	configPath  string
	ranksFlag   int
	backendFlag string
	outPath     string
	dumpMetrics bool

	rootCmd = &cobra.Command{
		Use:          "semfem",
		Short:        "Assemble the low-order FEM preconditioner matrix of a spectral element mesh",
		SilenceUsage: true,
	}

	assembleCmd = &cobra.Command{
		Use:   "assemble",
		Short: "Number the DOFs of a box mesh and assemble its low-order stiffness matrix",
		RunE:  runAssemble,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(config.Default())
		},
	}
)

func init() {
	assembleCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (defaults when empty)")
	assembleCmd.Flags().IntVar(&ranksFlag, "ranks", 0, "override the number of ranks")
	assembleCmd.Flags().StringVar(&backendFlag, "backend", "", "override the backend (host or device)")
	assembleCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the assembled entries as text triplets")
	assembleCmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "print the collected metrics when done")

	rootCmd.AddCommand(assembleCmd, configCmd)
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if ranksFlag > 0 {
		cfg.Ranks = ranksFlag
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	results, err := semfem.Run(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	var nnz, rows int64
	for _, d := range results {
		nnz += d.NNZ
		rows += d.RowEnd - d.RowStart + 1
	}
	logger.Info("assembled", "rows", rows, "nnz", nnz, "ranks", len(results), "backend", cfg.Backend)

	if outPath != "" {
		if err = writeTriplets(outPath, results); err != nil {
			return err
		}
	}
	if dumpMetrics {
		return writeMetrics(cmd.OutOrStdout())
	}
	return nil
}

// writeTriplets writes one "row col value" line per entry, rank by rank
func writeTriplets(path string, results []*semfem.Data) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, d := range results {
		for k := range d.Av {
			fmt.Fprintf(w, "%d %d %.17g\n", d.Ai[k], d.Aj[k], d.Av[k])
		}
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}

func writeMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "semfem_") {
			continue
		}
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
