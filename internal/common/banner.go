package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("NYUSHI")
	b.PrintCenteredText("Admissions Document Crawl & Rename Pipeline")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Catalog", config.Storage.SQLite.Path, 15)
	b.PrintKeyValue("Blob store", config.Storage.Blob.Path, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("environment", config.Environment).
		Str("sqlite_path", config.Storage.SQLite.Path).
		Str("blob_path", config.Storage.Blob.Path).
		Msg("Application started")

	logFilePath := ""
	if loggerWithPath, ok := interface{}(logger).(interface{ GetLogFilePath() string }); ok {
		logFilePath = loggerWithPath.GetLogFilePath()
	}

	logger.Info().
		Str("log_file", logFilePath).
		Str("claude_model", config.Claude.Model).
		Int("crawl_workers", config.Crawl.Workers).
		Int("download_workers", config.Download.Workers).
		Int("extract_workers", config.Extract.Workers).
		Int("rename_workers", config.Rename.Workers).
		Msg("Configuration loaded")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the pipeline stages and their worker counts.
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Pipeline stages:\n")
	fmt.Printf("   • Crawl:    %d worker(s), max depth %d\n", config.Crawl.Workers, config.Crawl.MaxDepth)
	fmt.Printf("   • Download: %d worker(s), enabled=%t\n", config.Download.Workers, config.Download.Enabled)
	fmt.Printf("   • Extract:  %d worker(s)\n", config.Extract.Workers)
	fmt.Printf("   • Rename:   %d worker(s), enabled=%t\n", config.Rename.Workers, config.Rename.Enabled)

	logger.Info().
		Int("crawl_workers", config.Crawl.Workers).
		Int("download_workers", config.Download.Workers).
		Int("extract_workers", config.Extract.Workers).
		Int("rename_workers", config.Rename.Workers).
		Bool("download_enabled", config.Download.Enabled).
		Bool("rename_enabled", config.Rename.Enabled).
		Msg("Pipeline stage configuration")
}

// PrintShutdownBanner displays the application shutdown banner
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	// Visual banner to stdout
	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("NYUSHI")
	b.PrintBottomLine()
	fmt.Println()

	// Log shutdown through Arbor
	logger.Info().Msg("Application shutting down")
}

// PrintColorizedMessage prints a message with specified color to stdout; it does not log (logger is unused)
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("✓ %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("✗ %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("⚠ %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("ℹ %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
