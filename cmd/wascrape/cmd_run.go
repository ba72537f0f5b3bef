package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/browser"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/scrape"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/store"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ux"
)

var (
	onlyContacts  []string
	outputPath    string
	screenshotDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest every private chat",
	Long: `Opens WhatsApp Web, waits for login, enumerates private chats and
exports the full history of each one.

Each contact is written to the archive as soon as it completes; the JSON
export is written when the run ends, including after Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List the private chats in the side panel",
	Args:  cobra.NoArgs,
	RunE:  listContacts,
}

func init() {
	runCmd.Flags().StringSliceVar(&onlyContacts, "contact", nil, "Only harvest these contacts (repeatable)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "JSON output path (default from config)")
	runCmd.Flags().StringVar(&screenshotDir, "screenshots", "", "Save a screenshot for every failed contact in this directory")
}

// commandContext cancels on SIGINT/SIGTERM and after --timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// confirmReady shows the intro and waits for enter unless --yes was given.
func confirmReady(ctx context.Context, cmd *cobra.Command) (bool, error) {
	if assumeYes {
		return true, nil
	}
	intro, err := ux.RenderMarkdown(ux.Intro, 80, "")
	if err != nil {
		logger.Debug("intro rendering failed, using plain text", zap.Error(err))
		intro = ux.Intro
	}
	return ux.AwaitReady(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), intro)
}

// openTab starts (or attaches to) Chrome and opens a blank tab.
func openTab(ctx context.Context) (*browser.Chrome, *browser.Tab, error) {
	chrome := browser.New(cfg.Browser)
	if err := chrome.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	tab, err := chrome.OpenTab(ctx)
	if err != nil {
		_ = chrome.Close()
		return nil, nil, fmt.Errorf("failed to open tab: %w", err)
	}
	logger.Info("Browser ready", zap.String("control_url", chrome.ControlURL()), zap.String("tab", tab.ID()))
	return chrome, tab, nil
}

func closeBrowser(chrome *browser.Chrome) {
	for _, t := range chrome.Tabs() {
		logger.Debug("Closing tab", zap.String("tab", t.ID), zap.String("url", t.URL), zap.Time("opened", t.Opened))
	}
	if err := chrome.Close(); err != nil {
		logger.Warn("browser shutdown failed", zap.Error(err))
	}
}

// openSinks returns the JSON exporter and, when configured, the archive.
// The returned close function releases the archive.
func openSinks() (store.Sink, func(), error) {
	path := cfg.Output.JSONPath
	if outputPath != "" {
		path = outputPath
	}
	sinks := []store.Sink{store.NewJSONExporter(path, cfg.Output.Indent)}
	closeFn := func() {}

	if cfg.Output.ArchivePath != "" {
		archive, err := store.OpenArchive(cfg.Output.ArchivePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, archive)
		closeFn = func() {
			if err := archive.Close(); err != nil {
				logging.StoreError("close archive: %v", err)
			}
		}
	}
	logger.Info("Writing results", zap.String("json", path), zap.String("archive", cfg.Output.ArchivePath))
	return store.NewMultiSink(sinks...), closeFn, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx, cancel := commandContext()
	defer cancel()

	ok, err := confirmReady(ctx, cmd)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	sink, closeSinks, err := openSinks()
	if err != nil {
		return err
	}
	defer closeSinks()

	chrome, tab, err := openTab(ctx)
	if err != nil {
		return err
	}
	defer closeBrowser(chrome)

	opts := scrape.OptionsFromConfig(cfg)
	opts.Only = onlyContacts
	opts.ScreenshotDir = screenshotDir

	report, err := scrape.New(tab, sink, opts, clock.Real{}).Run(ctx)
	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), ux.Summary(report))
		logger.Info("Run finished",
			zap.String("run", report.RunID),
			zap.Int("contacts", len(report.Contacts)),
			zap.Int("failed", report.Failed()),
			zap.Int("messages", report.Messages()),
			zap.Duration("duration", report.Duration()))
	}
	return err
}

func listContacts(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx, cancel := commandContext()
	defer cancel()

	chrome, tab, err := openTab(ctx)
	if err != nil {
		return err
	}
	defer closeBrowser(chrome)

	names, err := scrape.New(tab, nil, scrape.OptionsFromConfig(cfg), clock.Real{}).Contacts(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	logger.Info("Contacts listed", zap.Int("count", len(names)))
	return nil
}
