// Command wascrape exports the one-to-one chats of a WhatsApp Web account.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/config"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	assumeYes  bool
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wascrape",
	Short: "Export WhatsApp Web private chats to JSON",
	Long: `wascrape drives a Chrome window logged into WhatsApp Web, collects every
one-to-one chat from the side panel, scrolls each chat back to its first
message and writes the messages as structured records.

Group chats are skipped. Log in once by scanning the QR code; the Chrome
profile is kept so later runs start logged in.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Logging.Options()); err != nil {
			logger.Warn("diagnostic logs disabled", zap.Error(err))
		} else if err := logging.InitAudit(); err != nil {
			logger.Warn("audit log disabled", zap.Error(err))
		}
		logging.Boot("wascrape %s, config %s", cmd.Name(), configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the ready prompt")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort after this long (0 = no limit)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
