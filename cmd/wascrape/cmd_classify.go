package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/classify"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/snapshot"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/stall"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

var classifyOutput string

var classifyCmd = &cobra.Command{
	Use:   "classify <chat.html>",
	Short: "Classify the rows of a saved chat pane",
	Long: `Parses an HTML file saved from an open chat (for example with the
browser's "Save page as") and prints the message records it contains, using
the same locators as a live run. Useful for checking locators after a
WhatsApp Web update without driving a browser.`,
	Args: cobra.ExactArgs(1),
	RunE: classifySnapshot,
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyOutput, "output", "o", "", "Write the records to this file instead of stdout")
}

func classifySnapshot(cmd *cobra.Command, args []string) error {
	doc, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}

	site := cfg.Locators.Site
	container, err := doc.Find(site.RowsContainer)
	if err != nil {
		return fmt.Errorf("no message rows in %s: %w", args[0], err)
	}
	rows, err := container.FindAll(site.Rows)
	if err != nil {
		return err
	}

	c := classify.New(cfg.Locators.Rows)
	records := make([]types.MessageRecord, 0, len(rows))
	misses := 0
	for i, row := range rows {
		rec, err := c.Classify(row)
		if err != nil {
			misses++
			logger.Warn("Row partially classified", zap.Int("row", i), zap.Error(err))
		}
		records = append(records, rec)
	}

	diagnosis, err := stall.NewResolver(doc, cfg.StallLocators(), cfg.Banners, nil, 0).Diagnose()
	if err != nil {
		logger.Debug("No stall diagnosis", zap.Error(err))
	}
	logger.Info("Snapshot classified",
		zap.String("file", args[0]),
		zap.Int("rows", len(rows)),
		zap.Int("misses", misses),
		zap.Stringer("banner", diagnosis))

	data, err := json.MarshalIndent(records, "", strings.Repeat(" ", cfg.Output.Indent))
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	data = append(data, '\n')
	if classifyOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(classifyOutput, data, 0o644)
}
