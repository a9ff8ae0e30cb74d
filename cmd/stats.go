package cmd

import (
	"fmt"
	"time"

	"github.com/khrees2412/coldreach/pkg/models"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View outreach statistics",
	Long:  "Display daily outreach counts, response rates over a window and the pipeline funnel",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = 7
		}

		today := time.Now().UTC()
		var total models.DailyStats
		cmd.Println(titleStyle.Render(fmt.Sprintf("Outreach, last %d days", days)))
		for i := days - 1; i >= 0; i-- {
			date := models.DateKey(today.AddDate(0, 0, -i))
			s, err := a.Store.DailyStats(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("fetch stats for %s: %w", date, err)
			}
			total.EmailsDrafted += s.EmailsDrafted
			total.EmailsSent += s.EmailsSent
			total.FollowupsSent += s.FollowupsSent
			total.RepliesReceived += s.RepliesReceived
			total.PositiveResponses += s.PositiveResponses
			total.Rejections += s.Rejections
			if s.EmailsDrafted+s.EmailsSent+s.FollowupsSent+s.RepliesReceived == 0 {
				continue
			}
			cmd.Printf("  %s  drafted %d  sent %d  follow-ups %d  replies %d\n",
				labelStyle.Render(date), s.EmailsDrafted, s.EmailsSent, s.FollowupsSent, s.RepliesReceived)
		}

		cmd.Printf("\n%s\n", labelStyle.Render("Overview"))
		cmd.Printf("  Drafted: %d\n", total.EmailsDrafted)
		cmd.Printf("  Sent: %d\n", total.EmailsSent)
		cmd.Printf("  Follow-ups: %d\n", total.FollowupsSent)
		cmd.Printf("  Replies: %d (%d positive, %d rejections)\n", total.RepliesReceived, total.PositiveResponses, total.Rejections)
		if total.EmailsSent > 0 {
			rate := float64(total.RepliesReceived) / float64(total.EmailsSent) * 100
			cmd.Printf("  Response Rate: %.1f%%\n", rate)
		}

		funnel, err := a.Tracker.FunnelStats(cmd.Context())
		if err != nil {
			return err
		}
		if funnel.Total > 0 {
			printFunnel(cmd, funnel)
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log [date]",
	Short: "Show the activity log for a day (default today, UTC)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		date := models.DateKey(time.Now())
		if len(args) == 1 {
			if _, err := time.Parse("2006-01-02", args[0]); err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}
			date = args[0]
		}

		records, err := a.Store.ActivityByDate(cmd.Context(), date)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			cmd.Printf("No activity on %s\n", date)
			return nil
		}
		cmd.Println(titleStyle.Render("Activity " + date))
		for _, r := range records {
			e := r.Snapshot
			cmd.Printf("%s %-9s %s at %s %s\n",
				mutedStyle.Render(r.CreatedAt.Local().Format("15:04")),
				r.Event, e.RoleTitle, e.CompanyName, mutedStyle.Render("["+string(r.Status)+"]"))
			cmd.Printf("      %s %s | %s %s\n",
				labelStyle.Render("To:"), orDash(e.RecipientEmail),
				labelStyle.Render("Subject:"), e.Subject)
			if e.ResponseCategory != "" {
				cmd.Printf("      %s %s\n", labelStyle.Render("Reply:"), e.ResponseCategory)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logCmd)

	statsCmd.Flags().Int("days", 7, "Number of days to include")
}
