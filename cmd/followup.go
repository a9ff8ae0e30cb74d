package cmd

import (
	"github.com/khrees2412/coldreach/internal/outreach"
	"github.com/khrees2412/coldreach/pkg/models"
	"github.com/spf13/cobra"
)

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Manage scheduled follow-ups",
	Long:  "List, send, schedule and cancel the follow-ups scheduled 4, 8 and 10 working days after each email",
}

var dueFollowupsCmd = &cobra.Command{
	Use:   "due",
	Short: "Show follow-ups that are due now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		tasks, err := a.Outreach.DueFollowUps(cmd.Context())
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			cmd.Println("No follow-ups due.")
			return nil
		}
		cmd.Println(titleStyle.Render("Due follow-ups"))
		printTasks(cmd, tasks)
		cmd.Println("\nSend them with 'coldreach followup run'")
		return nil
	},
}

var listFollowupsCmd = &cobra.Command{
	Use:   "list",
	Short: "List every pending follow-up",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		tasks, err := a.Outreach.PendingFollowUps(cmd.Context())
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			cmd.Println("No follow-ups scheduled.")
			return nil
		}
		cmd.Println(titleStyle.Render("Scheduled follow-ups"))
		printTasks(cmd, tasks)
		return nil
	},
}

var runFollowupsCmd = &cobra.Command{
	Use:   "run [task-id]",
	Short: "Draft and send due follow-ups",
	Long:  "Draft each due follow-up in its tone, ask for approval and send it in the original thread",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		approver := newPromptApprover(cmd, yes)

		var results []*outreach.FollowUpResult
		if len(args) == 1 {
			res, err := a.Outreach.SendFollowUp(cmd.Context(), args[0], approver)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			results, err = a.Outreach.SendDueFollowUps(cmd.Context(), approver)
			if err != nil {
				return err
			}
		}

		if len(results) == 0 {
			cmd.Println("No follow-ups due.")
			return nil
		}
		sent := 0
		for _, res := range results {
			switch {
			case res.Sent:
				sent++
				cmd.Printf("✓ %s sent to %s\n", res.Task.Name, res.Task.RecipientEmail)
			case res.Skipped != "":
				cmd.Printf("%s %s for %s dropped: %s\n", mutedStyle.Render("-"), res.Task.Name, res.Task.Company, res.Skipped)
			default:
				cmd.Printf("%s %s for %s: %s\n", errorStyle.Render("✗"), res.Task.Name, res.Task.Company, res.Verdict.Message)
			}
		}
		cmd.Printf("\n%d of %d follow-up(s) sent\n", sent, len(results))
		return nil
	},
}

var scheduleFollowupCmd = &cobra.Command{
	Use:     "schedule <entry-id>",
	Short:   "Schedule one more follow-up for a sent email",
	Example: `  coldreach followup schedule 3f2a... --days 7`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("days")
		res, err := a.Outreach.ScheduleFollowUp(cmd.Context(), args[0], days)
		if err != nil {
			return err
		}
		printCheck(cmd, res.Check)
		if res.Task == nil {
			cmd.Printf("%s %s\n", errorStyle.Render("Not scheduled:"), res.Check.Message)
			return nil
		}
		cmd.Printf("✓ %s to %s due %s\n", res.Task.Name, res.Task.RecipientEmail, formatTime(&res.Task.DueAt))
		return nil
	},
}

var cancelFollowupCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a scheduled follow-up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		task, err := a.Outreach.CancelFollowUp(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("✓ Cancelled %s to %s at %s\n", task.Name, task.RecipientEmail, task.Company)
		return nil
	},
}

func printTasks(cmd *cobra.Command, tasks []models.FollowUpTask) {
	for _, t := range tasks {
		cmd.Printf("%s %s to %s at %s\n", labelStyle.Render(shortID(t.ID)), t.Name, orDash(t.RecipientName), t.Company)
		cmd.Printf("   %s %s | %s %s\n",
			labelStyle.Render("Due:"), t.DueAt.Local().Format("Mon Jan 2, 2006"),
			labelStyle.Render("Email:"), t.RecipientEmail)
	}
}

func init() {
	rootCmd.AddCommand(followupCmd)
	followupCmd.AddCommand(dueFollowupsCmd)
	followupCmd.AddCommand(listFollowupsCmd)
	followupCmd.AddCommand(runFollowupsCmd)
	followupCmd.AddCommand(scheduleFollowupCmd)
	followupCmd.AddCommand(cancelFollowupCmd)

	runFollowupsCmd.Flags().BoolP("yes", "y", false, "Approve without prompting")
	scheduleFollowupCmd.Flags().Int("days", 0, "Days from now (default default_followup_delay_days)")
}
