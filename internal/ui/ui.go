package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/satishbabariya/scoremigrate/internal/core/migration"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
)

var (
	// Out receives everything except errors, which go to Err.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

func width() int {
	if w := pterm.GetTerminalWidth(); w > 0 && w < 120 {
		return w
	}
	return 80
}

// PrintHeader prints a boxed title.
func PrintHeader(title string, subtitle string) {
	header := lipgloss.NewStyle().
		Width(width()-2).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 2).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Center,
				TitleStyle.Render(title),
				SecondaryStyle.Render(subtitle),
			),
		)
	fmt.Fprintln(Out, header)
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	fmt.Fprintln(Err, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	fmt.Fprintln(Out, InfoStyle.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// PrintTable prints a table using pterm
func PrintTable(headers []string, rows [][]string) error {
	out, err := RenderTable(headers, rows)
	if err != nil {
		return err
	}
	fmt.Fprint(Out, out)
	return nil
}

// RenderTable renders a table with a header row.
func RenderTable(headers []string, rows [][]string) (string, error) {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// RenderMarkdown renders markdown for the terminal. Without a terminal the
// plain style is used.
func RenderMarkdown(content string) (string, error) {
	style := glamour.WithAutoStyle()
	if color.NoColor {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width()))
	if err != nil {
		return "", err
	}
	return r.Render(content)
}

// PrintMarkdown renders markdown content
func PrintMarkdown(content string) error {
	out, err := RenderMarkdown(content)
	if err != nil {
		return err
	}
	fmt.Fprint(Out, out)
	return nil
}

// PrintSpinner creates a spinner and returns it
func PrintSpinner(message string) (*pterm.SpinnerPrinter, error) {
	return pterm.DefaultSpinner.WithWriter(Out).WithRemoveWhenDone(true).Start(message)
}

var outcomeColors = map[migration.Outcome]*color.Color{
	migration.Migrated: color.New(color.FgGreen, color.Bold),
	migration.Skipped:  color.New(color.FgCyan),
	migration.Locked:   color.New(color.FgYellow),
	migration.Failed:   color.New(color.FgRed, color.Bold),
}

var stateColors = map[syscat.GrainState]*color.Color{
	syscat.Ready:     color.New(color.FgGreen),
	syscat.Upgrading: color.New(color.FgCyan),
	syscat.Error:     color.New(color.FgRed, color.Bold),
	syscat.Recover:   color.New(color.FgMagenta),
	syscat.Locked:    color.New(color.FgYellow),
}

func colored(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

// ReportRows are the outcome table rows of a run, one per grain.
func ReportRows(r *migration.Report) [][]string {
	rows := make([][]string, 0, len(r.Grains))
	for _, g := range r.Grains {
		rows = append(rows, []string{
			g.Grain,
			g.Version,
			colored(outcomeColors[g.Outcome], string(g.Outcome)),
			colored(stateColors[g.State], g.State.String()),
			fmt.Sprint(g.Statements),
			g.Elapsed.Round(time.Millisecond).String(),
		})
	}
	return rows
}

// PrintReport prints the outcome table and a one-line summary of the run.
func PrintReport(r *migration.Report) error {
	if err := PrintTable([]string{"Grain", "Version", "Outcome", "State", "DDL", "Elapsed"}, ReportRows(r)); err != nil {
		return err
	}
	summary := fmt.Sprintf("%d migrated, %d skipped, %d locked, %d failed (%d DDL statements)",
		r.Count(migration.Migrated), r.Count(migration.Skipped), r.Count(migration.Locked),
		r.Count(migration.Failed), r.Statements())
	if failed := r.Failed(); len(failed) > 0 {
		for _, f := range failed {
			PrintError("%s: %s", f.Grain, f.Err)
		}
		PrintWarning("%s", summary)
		return nil
	}
	PrintSuccess("%s", summary)
	return nil
}

// GrainRows are the status table rows of the grain registry.
func GrainRows(rows []syscat.GrainRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, g := range rows {
		modified := ""
		if !g.LastModified.IsZero() {
			modified = g.LastModified.Local().Format(time.DateTime)
		}
		out = append(out, []string{
			g.Name,
			g.Version,
			colored(stateColors[g.State], g.State.String()),
			g.Checksum,
			fmt.Sprint(g.Length),
			modified,
			g.Message,
		})
	}
	return out
}

// PrintGrains prints the grain registry.
func PrintGrains(rows []syscat.GrainRow) error {
	return PrintTable([]string{"Grain", "Version", "State", "Checksum", "Length", "Modified", "Message"}, GrainRows(rows))
}
