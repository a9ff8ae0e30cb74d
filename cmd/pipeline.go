package cmd

import (
	"fmt"
	"strings"

	"github.com/khrees2412/coldreach/internal/pipeline"
	"github.com/khrees2412/coldreach/pkg/models"
	"github.com/spf13/cobra"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Track job opportunities through the hiring pipeline",
	Long:  "Add opportunities and move them through stages from identified to accepted",
}

var addOpportunityCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an opportunity",
	Example: `  coldreach pipeline add --company "Acme" --role "SRE" --location Berlin --remote
  coldreach pipeline add --company "Acme" --role "SRE" --notes "Referral from Sam"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		in := pipeline.NewOpportunity{}
		in.CompanyName, _ = cmd.Flags().GetString("company")
		in.RoleTitle, _ = cmd.Flags().GetString("role")
		in.JobDescription, _ = cmd.Flags().GetString("description")
		in.JobURL, _ = cmd.Flags().GetString("url")
		in.SalaryRange, _ = cmd.Flags().GetString("salary")
		in.Location, _ = cmd.Flags().GetString("location")
		in.Notes, _ = cmd.Flags().GetString("notes")
		if cmd.Flags().Changed("remote") {
			remote, _ := cmd.Flags().GetBool("remote")
			in.IsRemote = &remote
		}

		opp, err := a.Tracker.Add(cmd.Context(), in)
		if err != nil {
			return err
		}
		cmd.Printf("✓ Opportunity added: %s at %s (ID: %s)\n", opp.RoleTitle, opp.CompanyName, opp.ID)
		return nil
	},
}

var listOpportunitiesCmd = &cobra.Command{
	Use:   "list",
	Short: "List opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		rawStage, _ := cmd.Flags().GetString("stage")
		all, _ := cmd.Flags().GetBool("all")

		var stage models.PipelineStage
		if rawStage != "" {
			if stage, err = models.ParsePipelineStage(rawStage); err != nil {
				return err
			}
		}
		var opps []*models.JobOpportunity
		if all {
			opps, err = a.Store.ListOpportunities(cmd.Context(), stage, false)
		} else {
			opps, err = a.Tracker.Active(cmd.Context(), stage)
		}
		if err != nil {
			return fmt.Errorf("fetch opportunities: %w", err)
		}
		if len(opps) == 0 {
			cmd.Println("No opportunities found. Add one with 'coldreach pipeline add'")
			return nil
		}

		cmd.Println(titleStyle.Render("Pipeline"))
		for _, opp := range opps {
			cmd.Printf("%s %s at %s %s\n", labelStyle.Render(opp.ID), opp.RoleTitle, opp.CompanyName, mutedStyle.Render("["+string(opp.Stage)+"]"))
			if opp.NextAction != "" {
				cmd.Printf("   %s %s\n", labelStyle.Render("Next:"), opp.NextAction)
			}
		}
		return nil
	},
}

var showOpportunityCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an opportunity with its notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		opp, err := a.Tracker.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		cmd.Println(titleStyle.Render(opp.RoleTitle + " at " + opp.CompanyName))
		info := pipeline.Describe(opp.Stage)
		field(cmd, "Stage:", fmt.Sprintf("%s (%s)", opp.Stage, info.Description))
		field(cmd, "Next action:", orDash(opp.NextAction))
		if opp.NextActionDue != nil {
			field(cmd, "Due:", formatTime(opp.NextActionDue))
		}
		if opp.Location != "" {
			field(cmd, "Location:", opp.Location)
		}
		if opp.IsRemote != nil && *opp.IsRemote {
			field(cmd, "Remote:", "yes")
		}
		if opp.SalaryRange != "" {
			field(cmd, "Salary:", opp.SalaryRange)
		}
		if opp.JobURL != "" {
			field(cmd, "URL:", opp.JobURL)
		}
		if len(opp.OutreachIDs) > 0 {
			field(cmd, "Outreach:", strings.Join(opp.OutreachIDs, ", "))
		}
		if !opp.IsActive {
			field(cmd, "Outcome:", fmt.Sprintf("%s on %s", opp.Outcome, formatTime(opp.OutcomeDate)))
		}
		if len(opp.Notes) > 0 {
			cmd.Printf("\n%s\n", labelStyle.Render("Notes"))
			for _, n := range opp.Notes {
				cmd.Printf("  %s %s\n", mutedStyle.Render(n.Date.Local().Format("Jan 2")), n.Content)
			}
		}
		return nil
	},
}

var advanceOpportunityCmd = &cobra.Command{
	Use:     "advance <id> <stage>",
	Short:   "Move an opportunity to a stage",
	Example: `  coldreach pipeline advance 1b9d... interview --notes "Onsite on Friday"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		notes, _ := cmd.Flags().GetString("notes")
		stage, err := models.ParsePipelineStage(args[1])
		if err != nil {
			return err
		}
		opp, err := a.Tracker.AdvanceStage(cmd.Context(), args[0], stage, notes)
		if err != nil {
			return err
		}
		cmd.Printf("✓ %s at %s is now %s\n", opp.RoleTitle, opp.CompanyName, opp.Stage)
		cmd.Printf("  %s %s\n", labelStyle.Render("Next:"), opp.NextAction)
		return nil
	},
}

var updateOpportunityCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update opportunity details or add a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		var u pipeline.Update
		for flag, dst := range map[string]**string{
			"description": &u.JobDescription,
			"url":         &u.JobURL,
			"salary":      &u.SalaryRange,
			"location":    &u.Location,
			"next-action": &u.NextAction,
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				*dst = &v
			}
		}
		if cmd.Flags().Changed("remote") {
			remote, _ := cmd.Flags().GetBool("remote")
			u.IsRemote = &remote
		}
		u.Note, _ = cmd.Flags().GetString("notes")

		opp, err := a.Tracker.Update(cmd.Context(), args[0], u)
		if err != nil {
			return err
		}
		cmd.Printf("✓ Updated %s at %s\n", opp.RoleTitle, opp.CompanyName)
		return nil
	},
}

var linkOpportunityCmd = &cobra.Command{
	Use:   "link <id> <entry-id>",
	Short: "Link a sent email to an opportunity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		if _, err := a.Store.GetEntry(cmd.Context(), args[1]); err != nil {
			return err
		}
		opp, err := a.Tracker.LinkOutreach(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		cmd.Printf("✓ Linked. %s at %s is %s\n", opp.RoleTitle, opp.CompanyName, opp.Stage)
		return nil
	},
}

var pipelineStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the pipeline funnel",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		stats, err := a.Tracker.FunnelStats(cmd.Context())
		if err != nil {
			return err
		}
		printFunnel(cmd, stats)
		return nil
	},
}

var deleteOpportunityCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an opportunity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		if err := a.Tracker.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Println("✓ Opportunity deleted")
		return nil
	},
}

func printFunnel(cmd *cobra.Command, stats *pipeline.FunnelStats) {
	cmd.Println(titleStyle.Render("Pipeline funnel"))
	for _, stage := range models.AllStages {
		n := stats.ByStage[stage]
		if n == 0 {
			continue
		}
		cmd.Printf("  %-14s %s\n", stage, strings.Repeat("█", n)+" "+fmt.Sprint(n))
	}
	cmd.Printf("\n  %s %d  %s %d  %s %d\n",
		labelStyle.Render("Total:"), stats.Total,
		labelStyle.Render("Active:"), stats.Active,
		labelStyle.Render("Closed:"), stats.Closed)
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(addOpportunityCmd)
	pipelineCmd.AddCommand(listOpportunitiesCmd)
	pipelineCmd.AddCommand(showOpportunityCmd)
	pipelineCmd.AddCommand(advanceOpportunityCmd)
	pipelineCmd.AddCommand(updateOpportunityCmd)
	pipelineCmd.AddCommand(linkOpportunityCmd)
	pipelineCmd.AddCommand(pipelineStatsCmd)
	pipelineCmd.AddCommand(deleteOpportunityCmd)

	for _, c := range []*cobra.Command{addOpportunityCmd, updateOpportunityCmd} {
		c.Flags().String("description", "", "Job description")
		c.Flags().String("url", "", "Job posting URL")
		c.Flags().String("salary", "", "Salary range")
		c.Flags().String("location", "", "Location")
		c.Flags().Bool("remote", false, "Remote role")
		c.Flags().String("notes", "", "Note to add")
	}
	addOpportunityCmd.Flags().String("company", "", "Company name")
	addOpportunityCmd.Flags().String("role", "", "Role title")
	updateOpportunityCmd.Flags().String("next-action", "", "Override the recommended next action")

	listOpportunitiesCmd.Flags().String("stage", "", "Only this stage")
	listOpportunitiesCmd.Flags().Bool("all", false, "Include closed opportunities")

	advanceOpportunityCmd.Flags().String("notes", "", "Context for the stage change")
}
