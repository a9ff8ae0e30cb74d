package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/khrees2412/coldreach/internal/app"
	"github.com/khrees2412/coldreach/internal/outreach"
	"github.com/spf13/cobra"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Run and control outreach campaigns",
}

var runCampaignCmd = &cobra.Command{
	Use:   "run",
	Short: "Draft and send emails for pending jobs in the job list",
	Example: `  coldreach campaign run --limit 5
  coldreach campaign run --file ./jobs.yaml --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		file, _ := cmd.Flags().GetString("file")
		yes, _ := cmd.Flags().GetBool("yes")
		if limit <= 0 {
			limit = a.Config.MaxBatchSize
		}

		report, err := a.Outreach.RunCampaign(cmd.Context(), a.JobSource(file), limit, newPromptApprover(cmd, yes))
		if err != nil {
			return err
		}
		if len(report.Items) == 0 {
			cmd.Println("No pending jobs.")
			return nil
		}

		cmd.Println(titleStyle.Render("Campaign results"))
		printCheck(cmd, report.Batch)
		for _, it := range report.Items {
			line := fmt.Sprintf("%s at %s: %s", it.Job.Role, it.Job.Company, it.Outcome)
			if it.Message != "" {
				line += " (" + it.Message + ")"
			}
			cmd.Printf("  %s %s\n", labelStyle.Render(it.Job.ID), line)
		}
		cmd.Printf("\n%s %d sent, %d declined, %d blocked, %d failed, %d draft only\n", labelStyle.Render("Summary:"),
			report.Count(outreach.OutcomeSent), report.Count(outreach.OutcomeDeclined),
			report.Count(outreach.OutcomeBlocked), report.Count(outreach.OutcomeFailed),
			report.Count(outreach.OutcomeDraftOnly))
		if n := report.Count(outreach.OutcomeNotReached); n > 0 {
			cmd.Printf("%d job(s) left pending for the next run\n", n)
		}
		return nil
	},
}

var pauseCampaignCmd = &cobra.Command{
	Use:   "pause",
	Short: "Stop all outbound email",
	Example: `  coldreach campaign pause --reason "on vacation" --until 2025-03-10
  coldreach campaign pause --until 48h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		rawUntil, _ := cmd.Flags().GetString("until")

		var until *time.Time
		if rawUntil != "" {
			t, err := parseUntil(rawUntil, time.Now())
			if err != nil {
				return err
			}
			until = &t
		}
		if err := a.Outreach.Pause(cmd.Context(), reason, until); err != nil {
			return err
		}
		if until != nil {
			cmd.Printf("✓ Campaigns paused until %s\n", formatTime(until))
		} else {
			cmd.Println("✓ Campaigns paused until 'coldreach campaign resume'")
		}
		return nil
	},
}

var resumeCampaignCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume outbound email",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		if err := a.Outreach.Resume(cmd.Context()); err != nil {
			return err
		}
		cmd.Println("✓ Campaigns resumed")
		return nil
	},
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show limits, pause state and scheduled follow-ups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		st, err := a.Outreach.Status(cmd.Context())
		if err != nil {
			return err
		}

		cmd.Println(titleStyle.Render("Campaign status"))
		if st.Paused {
			reason := st.State.PauseReason
			if st.State.PauseUntil != nil {
				reason += " (until " + formatTime(st.State.PauseUntil) + ")"
			}
			field(cmd, "State:", warnStyle.Render("paused "+reason))
		} else {
			field(cmd, "State:", "active")
		}
		field(cmd, "Sent today:", fmt.Sprintf("%d / %d", st.SentToday, a.Config.MaxDailyEmails))
		field(cmd, "Remaining:", st.RemainingToday)
		field(cmd, "Last send:", formatTime(st.State.LastSendTimestamp))
		if st.NextSendAt != nil {
			field(cmd, "Next send:", formatTime(st.NextSendAt))
		}
		field(cmd, "Follow-ups:", fmt.Sprintf("%d pending, %d due", st.Pending, st.Due))
		field(cmd, "Last heartbeat:", formatTime(st.State.LastRun))
		field(cmd, "Next heartbeat:", formatTime(st.State.NextScheduledRun))

		if n, err := a.Store.StateBackups(cmd.Context()); err == nil && n > 0 {
			cmd.Printf("\n%s\n", warnStyle.Render(fmt.Sprintf("%d corrupt state snapshot(s) were reset and kept as backups", n)))
		}
		return nil
	},
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Run the periodic check for due follow-ups",
	Long: `Record a heartbeat run, lift an expired timed pause and report due follow-ups.
With --send, due follow-ups are drafted and sent after approval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		send, _ := cmd.Flags().GetBool("send")

		hb, err := a.Outreach.Heartbeat(cmd.Context())
		if err != nil {
			return err
		}
		if hb.Resumed {
			cmd.Println("✓ Pause expired, campaigns resumed")
		}
		for _, r := range hb.Replies {
			cmd.Printf("✓ Reply detected: %s at %s (%d follow-up(s) cancelled)\n", r.Entry.RoleTitle, r.Entry.CompanyName, r.Cancelled)
		}
		cmd.Printf("%d follow-up(s) due, %d pending. Next heartbeat %s\n", len(hb.Due), hb.Pending, formatTime(&hb.NextRun))
		if len(hb.Due) == 0 {
			return nil
		}
		printTasks(cmd, hb.Due)
		if !send {
			return nil
		}
		if hb.Paused {
			cmd.Println(warnStyle.Render("Campaigns are paused; nothing sent."))
			return nil
		}
		return runFollowupsCmd.RunE(cmd, nil)
	},
}

// parseUntil accepts a Go duration, a number of days ("3d"), a date or an
// RFC 3339 timestamp
func parseUntil(v string, now time.Time) (time.Time, error) {
	if strings.HasSuffix(v, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(v, "d")); err == nil {
			return now.AddDate(0, 0, days).UTC(), nil
		}
	}
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(d).UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("--until %q: %w", v, app.ErrInvalidArgument)
}

func init() {
	rootCmd.AddCommand(campaignCmd)
	rootCmd.AddCommand(heartbeatCmd)
	campaignCmd.AddCommand(runCampaignCmd)
	campaignCmd.AddCommand(pauseCampaignCmd)
	campaignCmd.AddCommand(resumeCampaignCmd)
	campaignCmd.AddCommand(campaignStatusCmd)

	runCampaignCmd.Flags().Int("limit", 0, "Maximum jobs to process (default max_batch_size)")
	runCampaignCmd.Flags().String("file", "", "Job list (default jobs_file from config)")
	runCampaignCmd.Flags().BoolP("yes", "y", false, "Approve every email without prompting")

	pauseCampaignCmd.Flags().String("reason", "manual pause", "Why campaigns are paused")
	pauseCampaignCmd.Flags().String("until", "", "Resume automatically after a duration (48h, 3d) or date")

	heartbeatCmd.Flags().Bool("send", false, "Send due follow-ups after approval")
	heartbeatCmd.Flags().BoolP("yes", "y", false, "Approve every follow-up without prompting")
}
