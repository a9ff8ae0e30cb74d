package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/outreach"
	"github.com/khrees2412/coldreach/pkg/models"
	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft a cold email",
	Example: `  coldreach draft --company "Acme" --role "SRE" --name "Jane Doe" --email jane@acme.io
  coldreach draft --company "Acme" --role "SRE" --description-file job.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}

		company, _ := cmd.Flags().GetString("company")
		role, _ := cmd.Flags().GetString("role")
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		descFile, _ := cmd.Flags().GetString("description-file")
		url, _ := cmd.Flags().GetString("url")

		if company == "" || role == "" {
			return fmt.Errorf("--company and --role are required")
		}
		if descFile != "" {
			raw, err := os.ReadFile(descFile)
			if err != nil {
				return fmt.Errorf("read job description: %w", err)
			}
			description = string(raw)
		}

		cmd.Printf("Drafting email to %s at %s...\n", orDash(name), company)
		res, err := a.Outreach.Draft(cmd.Context(), outreach.DraftRequest{
			Company:        company,
			Role:           role,
			RecipientName:  name,
			RecipientEmail: email,
			RecipientTitle: title,
			JobDescription: description,
			JobURL:         url,
		})
		if err != nil {
			return err
		}

		cmd.Println(titleStyle.Render("Draft " + res.Entry.ID))
		printEmail(cmd, orDash(res.Entry.RecipientEmail), res.Entry.Subject, res.Entry.Body)
		for _, p := range res.Entry.Personalization {
			cmd.Printf("  %s %s\n", mutedStyle.Render("•"), p)
		}
		printCheck(cmd, res.Content)
		cmd.Printf("\nSend it with 'coldreach send %s'\n", res.Entry.ID)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <entry-id>",
	Short: "Send a drafted email after the safety checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		opportunity, _ := cmd.Flags().GetString("opportunity")

		entry, err := a.Store.GetEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if entry.Status != models.StatusDraft && entry.Status != models.StatusScheduled {
			return fmt.Errorf("%s: %w", entry.Status, outreach.ErrAlreadySent)
		}
		approver := newPromptApprover(cmd, yes)
		approved, err := approver.Approve(cmd.Context(), outreach.Preview{
			Kind:    "Email",
			Company: entry.CompanyName,
			Role:    entry.RoleTitle,
			To:      entry.RecipientEmail,
			Subject: entry.Subject,
			Body:    entry.Body,
		})
		if err != nil {
			return err
		}

		res, err := a.Outreach.Send(cmd.Context(), outreach.SendRequest{
			EntryID:       entry.ID,
			Approved:      approved,
			OpportunityID: opportunity,
		})
		if err != nil {
			return err
		}

		cmd.Println(titleStyle.Render("Safety checks"))
		printVerdict(cmd, res.Verdict)
		if !res.Sent {
			cmd.Printf("\n%s %s\n", errorStyle.Render("Not sent:"), res.Verdict.Message)
			return nil
		}
		cmd.Printf("\n✓ Sent to %s\n", res.Entry.RecipientEmail)
		if res.LinkErr != nil {
			cmd.Printf("  %s %v\n", warnStyle.Render("Opportunity not linked:"), res.LinkErr)
		}
		for _, t := range res.FollowUps {
			cmd.Printf("  %s due %s\n", labelStyle.Render(t.Name), t.DueAt.Local().Format("Mon Jan 2"))
		}
		return nil
	},
}

var replyCmd = &cobra.Command{
	Use:     "reply <entry-id>",
	Short:   "Record a reply and cancel pending follow-ups",
	Example: `  coldreach reply 3f2a... --category positive --body "Happy to chat next week"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		rawCategory, _ := cmd.Flags().GetString("category")
		body, _ := cmd.Flags().GetString("body")

		category, err := models.ParseResponseCategory(rawCategory)
		if err != nil {
			return err
		}
		res, err := a.Outreach.RecordReply(cmd.Context(), args[0], category, body)
		if err != nil {
			return err
		}
		cmd.Printf("✓ Reply recorded for %s at %s (%s)\n", orDash(res.Entry.RecipientName), res.Entry.CompanyName, category)
		if res.Cancelled > 0 {
			cmd.Printf("  %d pending follow-up(s) cancelled\n", res.Cancelled)
		}
		return nil
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List outreach entries",
	Example: `  coldreach entries --company Acme
  coldreach entries --status sent --days 14
  coldreach entries --date 2025-03-03`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		company, _ := cmd.Flags().GetString("company")
		rawStatus, _ := cmd.Flags().GetString("status")
		days, _ := cmd.Flags().GetInt("days")
		limit, _ := cmd.Flags().GetInt("limit")
		date, _ := cmd.Flags().GetString("date")

		var entries []*models.OutreachEntry
		if date != "" {
			entries, err = a.Store.EntriesByDate(cmd.Context(), date)
		} else {
			filter := database.EntryFilter{Company: company, Limit: limit}
			if rawStatus != "" {
				if filter.Status, err = models.ParseOutreachStatus(rawStatus); err != nil {
					return err
				}
			}
			if days > 0 {
				since := time.Now().UTC().AddDate(0, 0, -days)
				filter.Since = &since
			}
			entries, err = a.Store.SearchEntries(cmd.Context(), filter)
		}
		if err != nil {
			return fmt.Errorf("fetch entries: %w", err)
		}

		if len(entries) == 0 {
			cmd.Println("No outreach found. Draft one with 'coldreach draft'")
			return nil
		}
		cmd.Println(titleStyle.Render("Outreach"))
		for _, e := range entries {
			cmd.Printf("%s %s at %s %s\n", labelStyle.Render(e.ID), e.RoleTitle, e.CompanyName, mutedStyle.Render("["+string(e.Status)+"]"))
			cmd.Printf("   %s %s | %s %s | %s %d/%d\n",
				labelStyle.Render("To:"), orDash(e.RecipientEmail),
				labelStyle.Render("Sent:"), formatTime(e.SentAt),
				labelStyle.Render("Follow-ups:"), e.FollowupCount, e.MaxFollowups)
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(entriesCmd)

	draftCmd.Flags().String("company", "", "Company name")
	draftCmd.Flags().String("role", "", "Role title")
	draftCmd.Flags().String("name", "", "Recipient name")
	draftCmd.Flags().String("email", "", "Recipient email")
	draftCmd.Flags().String("title", "", "Recipient job title")
	draftCmd.Flags().String("description", "", "Job description")
	draftCmd.Flags().String("description-file", "", "Read the job description from a file")
	draftCmd.Flags().String("url", "", "Job posting URL")

	sendCmd.Flags().BoolP("yes", "y", false, "Approve without prompting")
	sendCmd.Flags().String("opportunity", "", "Pipeline opportunity to link after sending")

	replyCmd.Flags().String("category", "neutral", "positive, neutral, rejection, no-response or needs-reply")
	replyCmd.Flags().String("body", "", "Reply text")

	entriesCmd.Flags().String("company", "", "Filter by company")
	entriesCmd.Flags().String("status", "", "Filter by status")
	entriesCmd.Flags().Int("days", 0, "Only entries created in the last N days")
	entriesCmd.Flags().Int("limit", 50, "Maximum entries to show")
	entriesCmd.Flags().String("date", "", "Entries created on a UTC date (YYYY-MM-DD)")
}
