package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage the do-not-contact list",
}

var blockContactCmd = &cobra.Command{
	Use:   "block <email>",
	Short: "Never email this address again",
	Long:  "Add the address to the do-not-contact list, cancel its follow-ups and close its open outreach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		res, err := a.Outreach.Unsubscribe(cmd.Context(), args[0], reason)
		if err != nil {
			return err
		}
		cmd.Printf("✓ %s added to the do-not-contact list\n", args[0])
		cmd.Printf("  %d follow-up(s) cancelled, %d open email(s) closed\n", res.Cancelled, res.EntriesClosed)
		return nil
	},
}

var unblockContactCmd = &cobra.Command{
	Use:   "unblock <email>",
	Short: "Remove an address from the do-not-contact list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		if err := a.Outreach.Unblock(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("✓ %s removed from the do-not-contact list\n", args[0])
		return nil
	},
}

var listContactsCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the do-not-contact list",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		list, err := a.Store.ListNoContact(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			cmd.Println("The do-not-contact list is empty.")
			return nil
		}
		cmd.Println(titleStyle.Render("Do not contact"))
		for _, c := range list {
			cmd.Printf("  %s %s %s\n", labelStyle.Render(c.Email), orDash(c.Reason), mutedStyle.Render(formatTime(&c.CreatedAt)))
		}
		return nil
	},
}

var companyCmd = &cobra.Command{
	Use:     "company <name>",
	Short:   "Show outreach history for a company",
	Example: `  coldreach company Acme --block "Not hiring this year"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		name := args[0]
		block, _ := cmd.Flags().GetString("block")
		unblock, _ := cmd.Flags().GetBool("unblock")

		switch {
		case block != "" && unblock:
			return fmt.Errorf("--block and --unblock are mutually exclusive")
		case block != "":
			cancelled, err := a.Outreach.BlockCompany(cmd.Context(), name, block)
			if err != nil {
				return err
			}
			cmd.Printf("✓ %s marked do-not-contact, %d follow-up(s) cancelled\n", name, cancelled)
		case unblock:
			if err := a.Outreach.UnblockCompany(cmd.Context(), name); err != nil {
				return err
			}
			cmd.Printf("✓ %s can be contacted again\n", name)
		}

		h, err := a.Store.CompanyHistory(cmd.Context(), name)
		if err != nil {
			return err
		}
		cmd.Println(titleStyle.Render(h.CompanyName))
		field(cmd, "Emails sent:", h.TotalOutreach)
		field(cmd, "Replies:", fmt.Sprintf("%d (%d positive, %d rejections)", h.ResponsesReceived, h.PositiveResponses, h.Rejections))
		field(cmd, "First contact:", formatTime(h.FirstContactDate))
		field(cmd, "Last contact:", formatTime(h.LastContactDate))
		if h.LastStatus != "" {
			field(cmd, "Last status:", h.LastStatus)
		}
		if h.DoNotContact {
			field(cmd, "Do not contact:", errorStyle.Render(orDash(h.DoNotContactReason)))
		}
		for _, id := range h.OutreachIDs {
			cmd.Printf("  %s %s\n", mutedStyle.Render("•"), id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(companyCmd)
	contactCmd.AddCommand(blockContactCmd)
	contactCmd.AddCommand(unblockContactCmd)
	contactCmd.AddCommand(listContactsCmd)

	blockContactCmd.Flags().String("reason", "unsubscribe request", "Why the address is blocked")
	companyCmd.Flags().String("block", "", "Mark the company do-not-contact with this reason")
	companyCmd.Flags().Bool("unblock", false, "Clear the company do-not-contact flag")
}
