package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/streamchat/internal/app"
	"github.com/vovakirdan/streamchat/internal/config"
	applog "github.com/vovakirdan/streamchat/internal/log"
)

var (
	configPath string
	overrides  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "streamchat-server",
	Short: "Multi-client chat server with whispers and file relay",
	Long: `streamchat-server accepts chat clients over TCP (and optionally WebSocket),
relays chat, whispers and files between them, and keeps a server journal.

Configuration is read from config.yaml (created with defaults if missing),
then STREAMCHAT_* environment variables, then the flags below.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config.yaml")
	flags.StringVar(&overrides.Addr, "addr", "", "TCP chat listen address")
	flags.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP admin/WebSocket listen address")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "log format (console, json)")
	flags.StringVar(&overrides.LogFile, "log-file", "", "server journal file")
	flags.StringVar(&overrides.StorageDir, "storage-dir", "", "directory for uploaded files")
	flags.StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	flags.Int64Var(&overrides.MaxUploadBytes, "max-upload-bytes", 0, "largest accepted upload")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
}

func runServer(cmd *cobra.Command, _ []string) error {
	bootLog := applog.New("info")

	cfg, resolved, err := config.Load(bootLog, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)

	logger := applog.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("config", resolved).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize server")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("http_addr", cfg.HTTPAddr).Msg("starting streamchat server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
