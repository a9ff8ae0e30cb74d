package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/khrees2412/coldreach/internal/app"
	"github.com/spf13/cobra"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:   "coldreach",
	Short: "Cold email outreach with guardrails and follow-ups",
	Long: `Coldreach drafts personalized cold emails for job opportunities, sends them only
with your explicit approval and within daily and rate limits, schedules follow-ups on
working days and tracks each opportunity through your hiring pipeline.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		// Initialize app with all dependencies
		a, err := app.NewApp(cmd.Context(), dataDir)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		application = a

		// Store app in command context
		cmd.SetContext(app.SetAppInContext(cmd.Context(), a))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	// Cleanup: close app resources
	if application != nil {
		application.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default $COLDREACH_HOME or ~/.coldreach)")
}
