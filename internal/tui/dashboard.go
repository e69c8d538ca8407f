package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/pingcheck/internal/model"
)

// DashboardData holds data for the live view.
type DashboardData struct {
	Source   string
	Targets  int
	Timeout  int
	Status   string
	Error    string
	Running  bool
	Spinner  string
	Progress string
	Results  []model.ProbeResult
}

// Dashboard is the main view.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(data *DashboardData, width, height int) *Dashboard {
	return &Dashboard{
		data:   data,
		width:  width,
		height: height,
	}
}

// Title is the header text, including the target file name when known.
func (d *Dashboard) Title() string {
	if d.data.Source == "" {
		return "PingCheck"
	}
	return "PingCheck - " + filepath.Base(d.data.Source)
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Copy().Width(d.sectionWidth()).Render(d.Title()))
	sb.WriteString("\n\n")

	sb.WriteString(d.renderControls())
	sb.WriteString("\n")

	sb.WriteString(d.renderResults())
	sb.WriteString("\n")

	sb.WriteString(d.renderStatusBar())
	sb.WriteString("\n")

	help := "s start • x stop • +/- timeout • q quit"
	if d.data.Running {
		help = "x stop • q quit"
	}
	sb.WriteString(HelpStyle.Render(help))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	w := d.width - 4
	if w < 60 {
		w = 60
	}
	return w
}

func (d *Dashboard) renderControls() string {
	content := fmt.Sprintf(
		"%s %s\n%s %s",
		LabelStyle.Render("Targets:"),
		ValueStyle.Render(fmt.Sprintf("%d", d.data.Targets)),
		LabelStyle.Render("Timeout:"),
		ValueStyle.Render(fmt.Sprintf("%d s", d.data.Timeout)),
	)
	if d.data.Progress != "" {
		content += "\n" + LabelStyle.Render("Progress:") + " " + d.data.Progress +
			DimStyle.Render(fmt.Sprintf(" %d/%d", len(d.data.Results), d.data.Targets))
	}
	return SectionStyle.Copy().Width(d.sectionWidth()).Render(content)
}

const rowFormat = "%-16s %-24s %-5s %-22s %-18s %-12s %s"

func (d *Dashboard) renderResults() string {
	if len(d.data.Results) == 0 {
		return SectionStyle.Copy().Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("Results") + "\n" + DimStyle.Render("No results yet"))
	}

	var rows []string
	rows = append(rows, TableHeaderStyle.Render(fmt.Sprintf(rowFormat,
		"Name", "IP", "Port", "Connection State", "Echo", "Port State", "Latency (ms)")))

	// Keep the newest rows visible on short terminals.
	results := d.data.Results
	if limit := d.maxRows(); len(results) > limit {
		rows = append(rows, DimStyle.Render(fmt.Sprintf("... %d earlier rows", len(results)-limit)))
		results = results[len(results)-limit:]
	}

	for _, r := range results {
		rows = append(rows, RenderRow(r.Failed(), formatRow(r)))
	}

	// Rows keep their natural width; wrapping would break the columns.
	return SectionStyle.Copy().UnsetWidth().Render(
		SectionTitleStyle.Render("Results") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) maxRows() int {
	if d.height <= 0 {
		return 20
	}
	// header, controls, borders, status and help
	n := d.height - 20
	if n < 5 {
		n = 5
	}
	return n
}

func formatRow(r model.ProbeResult) string {
	port := "-"
	if r.Target.HasPort() {
		port = r.Target.PortLabel()
	}
	return fmt.Sprintf(rowFormat,
		truncate(r.Target.Name, 16),
		truncate(r.Target.Host, 24),
		port,
		r.Connection.Label(),
		r.Reach.Label(),
		r.PortStateLabel(),
		r.LatencyLabel(),
	)
}

func (d *Dashboard) renderStatusBar() string {
	status := d.data.Status
	if d.data.Spinner != "" {
		status = d.data.Spinner + " " + status
	}
	line := StatusBarStyle.Copy().Width(d.sectionWidth()).Render(status)
	if d.data.Error != "" {
		line += "\n" + ErrorStyle.Render("Error: "+d.data.Error)
	}
	return line
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
