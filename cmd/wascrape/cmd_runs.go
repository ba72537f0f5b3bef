package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/store"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ux"
)

var (
	runsLimit    int
	exportOutput string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived runs",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Re-export an archived run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  exportRun,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "JSON output path (default from config)")
}

func openArchive() (*store.Archive, error) {
	if cfg.Output.ArchivePath == "" {
		return nil, fmt.Errorf("no archive configured (output.archive_path)")
	}
	if _, err := os.Stat(cfg.Output.ArchivePath); err != nil {
		return nil, fmt.Errorf("archive %s: %w", cfg.Output.ArchivePath, err)
	}
	return store.OpenArchive(cfg.Output.ArchivePath)
}

func listRuns(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	runs, err := archive.Runs(context.Background(), runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs archived yet.")
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), ux.Runs(runs))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	path := cfg.Output.JSONPath
	if exportOutput != "" {
		path = exportOutput
	}
	if err := archive.Export(context.Background(), args[0], store.NewJSONExporter(path, cfg.Output.Indent)); err != nil {
		return fmt.Errorf("export run %s: %w", args[0], err)
	}
	logger.Info("Run exported", zap.String("run", args[0]), zap.String("path", path))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
