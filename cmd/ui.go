package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/khrees2412/coldreach/internal/app"
	"github.com/khrees2412/coldreach/internal/outreach"
	"github.com/khrees2412/coldreach/internal/safety"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	emailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func getApp(cmd *cobra.Command) (*app.App, error) {
	a := app.GetAppFromContext(cmd.Context())
	if a == nil {
		return nil, errors.New("application not initialized")
	}
	return a, nil
}

func field(cmd *cobra.Command, label string, value any) {
	cmd.Printf("%s %s\n", labelStyle.Render(label), valueStyle.Render(fmt.Sprint(value)))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("Jan 2, 2006 15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printCheck(cmd *cobra.Command, c safety.Check) {
	switch {
	case c.Blocking():
		cmd.Printf("  %s %s\n", errorStyle.Render("✗"), c.Message)
	case c.Advisory():
		cmd.Printf("  %s %s\n", warnStyle.Render("!"), c.Message)
	default:
		cmd.Printf("  %s %s\n", labelStyle.Render("✓"), c.Message)
	}
}

func printVerdict(cmd *cobra.Command, v safety.Verdict) {
	for _, c := range v.Checks {
		printCheck(cmd, c)
	}
}

func printEmail(cmd *cobra.Command, to, subject, body string) {
	content := fmt.Sprintf("To: %s\nSubject: %s\n\n%s", to, subject, strings.TrimSpace(body))
	cmd.Println(emailStyle.Render(content))
}

// promptApprover asks on stdin before each send; yes approves everything
type promptApprover struct {
	cmd *cobra.Command
	in  *bufio.Reader
	yes bool
}

func newPromptApprover(cmd *cobra.Command, yes bool) *promptApprover {
	return &promptApprover{cmd: cmd, in: bufio.NewReader(cmd.InOrStdin()), yes: yes}
}

func (p *promptApprover) Approve(ctx context.Context, pv outreach.Preview) (bool, error) {
	p.cmd.Printf("\n%s %s at %s\n", labelStyle.Render(pv.Kind), pv.Role, pv.Company)
	printEmail(p.cmd, pv.To, pv.Subject, pv.Body)
	for _, w := range pv.Warnings {
		printCheck(p.cmd, w)
	}
	if p.yes {
		return true, nil
	}
	return p.confirm("Send this email?")
}

func (p *promptApprover) confirm(question string) (bool, error) {
	p.cmd.Print(labelStyle.Render(question + " [y/N]: "))
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
