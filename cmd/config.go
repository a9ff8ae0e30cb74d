package cmd

import (
	"fmt"

	"github.com/khrees2412/coldreach/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  "View and update configuration settings",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		c := a.Config

		cmd.Println(titleStyle.Render("Configuration"))
		field(cmd, "Config File:", config.GetConfigPath())
		field(cmd, "Data Dir:", c.DataDir)

		cmd.Printf("\n%s\n", labelStyle.Render("Limits"))
		field(cmd, "Max daily emails:", c.MaxDailyEmails)
		field(cmd, "Min interval:", c.MinEmailInterval())
		field(cmd, "Rate limiting:", c.RateLimitingEnabled)
		field(cmd, "Max follow-ups:", c.MaxFollowups)
		field(cmd, "Max batch size:", c.MaxBatchSize)
		field(cmd, "Campaign pace:", c.CampaignPace())
		field(cmd, "Heartbeat:", c.HeartbeatInterval())

		cmd.Printf("\n%s\n", labelStyle.Render("Drafting"))
		field(cmd, "AI Provider:", c.AIProvider)
		field(cmd, "Default Model:", c.DefaultModel)
		// keys are reported as present or missing, never printed
		field(cmd, "OpenAI Key:", configured(c.OpenAIKey))
		field(cmd, "Anthropic Key:", configured(c.AnthropicKey))

		cmd.Printf("\n%s\n", labelStyle.Render("Delivery"))
		field(cmd, "Sender:", c.Sender)
		field(cmd, "Sender email:", orDash(c.SenderEmail))
		field(cmd, "Sender name:", orDash(c.SenderName))
		if c.Sender == "gmail" {
			field(cmd, "Gmail credentials:", configured(c.GmailCredentialsPath))
		}
		field(cmd, "Jobs file:", orDash(c.JobsFile))
		field(cmd, "Log level:", c.LogLevel)
		return nil
	},
}

var setConfigCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Update a configuration value",
	Example: `  coldreach config set max_daily_emails 15
  coldreach config set --key ai_provider --value anthropic
  coldreach config set --key anthropic_key --value sk-ant-...
  coldreach config set --key sender --value gmail`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		key, _ := cmd.Flags().GetString("key")
		value, _ := cmd.Flags().GetString("value")
		if len(args) > 0 {
			key = args[0]
		}
		if len(args) > 1 {
			value = args[1]
		}
		if key == "" || value == "" {
			return fmt.Errorf("both key and value are required")
		}

		if err := config.Set(key, value); err != nil {
			return err
		}
		cmd.Printf("✓ Configuration updated: %s\n", key)

		cfg, err := config.Initialize(a.Config.DataDir)
		if err != nil {
			return fmt.Errorf("reload config: %w", err)
		}
		a.Config = cfg
		return nil
	},
}

func configured(v string) string {
	if v != "" {
		return "✓ Configured"
	}
	return "✗ Not configured"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(setConfigCmd)

	setConfigCmd.Flags().String("key", "", "Configuration key")
	setConfigCmd.Flags().String("value", "", "Configuration value")
}
