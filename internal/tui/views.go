package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ameen-91/exray/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusActive  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailure = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusNeutral = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("75"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

func (a *App) View() string {
	switch a.view {
	case ViewRunList:
		return a.viewRunList()
	case ViewRunDetail:
		return a.viewRunDetail()
	case ViewHealth:
		return a.viewHealth()
	}
	return ""
}

func (a *App) viewRunList() string {
	title := titleStyle.Render("ExRay Runs")
	if a.registry.Loading() {
		title += "  " + a.spin.View() + dimStyle.Render(" refreshing")
	}
	s := title + "\n\n"

	if errMsg := a.registry.Err(); errMsg != "" {
		s += errStyle.Render("Error: "+errMsg) + "\n\n"
	}

	runs := a.registry.Runs()
	if len(runs) == 0 {
		if a.registry.Loading() {
			s += "Loading runs...\n"
		} else {
			s += "No runs yet. Submit one with 'exray submit'.\n"
		}
	} else {
		for i, run := range runs {
			line := formatRunLine(run)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Terminal() {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	auto := "off"
	if a.registry.AutoRefresh() {
		auto = "on"
	}
	s += "\n" + helpStyle.Render(fmt.Sprintf("[enter] logs  [r] refresh  [a] auto-refresh:%s  [h] health  [q] quit", auto))

	return s
}

func formatRunLine(run models.Run) string {
	phase := formatPhase(run.Status.Phase)
	age := formatAge(run.CreatedTime())
	file := truncate(run.OriginalFilename, 30)
	return fmt.Sprintf("%-8s %-7s %s  %-5s  %s", shortID(run.RunID), run.Workflow, phase, age, file)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatPhase(phase string) string {
	label := models.PhaseLabel(phase)
	switch models.ClassifyPhase(phase) {
	case models.PhaseCategorySuccess:
		return statusSuccess.Render("✓ " + label)
	case models.PhaseCategoryFailure:
		return statusFailure.Render("✗ " + label)
	case models.PhaseCategoryActive:
		return statusActive.Render("● " + label)
	default:
		return statusNeutral.Render("○ " + label)
	}
}

func (a *App) viewRunDetail() string {
	run := a.detailRun
	header := fmt.Sprintf("Run %s", shortID(run.RunID))
	s := titleStyle.Render(header) + "  " + formatPhase(run.Status.Phase) + "\n"
	s += labelStyle.Render("Workflow: ") + string(run.Workflow)
	if run.OriginalFilename != "" {
		s += labelStyle.Render("   File: ") + run.OriginalFilename
	}
	s += "\n"

	if a.resultURL != "" {
		s += labelStyle.Render("Result: ") + a.resultURL + "\n"
	} else if a.resultErr != "" {
		s += errStyle.Render("Result: "+a.resultErr) + "\n"
	}

	if a.session != nil {
		if errMsg := a.session.Err(); errMsg != "" {
			s += errStyle.Render("Logs: "+errMsg) + "\n"
		}
	}

	s += "\n" + a.logView.View() + "\n"

	s += "\n" + helpStyle.Render("[tab] section  [enter] fold  [↑/↓] scroll  [o] result  [esc] back")
	return s
}

// refreshLogContent rebuilds the viewport text from the session's
// current sections and fold state.
func (a *App) refreshLogContent() {
	sections := a.sections()
	if len(sections) == 0 {
		a.logView.SetContent(dimStyle.Render("(no logs yet)"))
		return
	}

	var b strings.Builder
	for i, sec := range sections {
		marker := "▾"
		expanded := a.session.Expanded(sec.PodName)
		if !expanded {
			marker = "▸"
		}
		header := fmt.Sprintf("%s %s [%s] (%s)", marker, sec.DisplayName, sec.PodName, models.PhaseLabel(sec.Phase))
		if i == a.sectionIdx {
			header = selectedStyle.Render(header)
		} else {
			header = sectionHeaderStyle.Render(header)
		}
		b.WriteString(header)
		b.WriteString("\n")
		if expanded && sec.Logs != "" {
			for _, line := range strings.Split(sec.Logs, "\n") {
				b.WriteString("  ")
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	a.logView.SetContent(b.String())
}

func (a *App) viewHealth() string {
	s := titleStyle.Render("Backend Health") + "\n\n"

	switch {
	case a.healthBusy:
		s += a.spin.View() + " checking...\n"
	case a.healthErr != "":
		s += errStyle.Render("Error: "+a.healthErr) + "\n"
	case a.health != nil:
		overall := statusFailure.Render(a.health.OverallStatus)
		if a.health.Healthy() {
			overall = statusSuccess.Render(a.health.OverallStatus)
		}
		s += labelStyle.Render("Overall: ") + overall + "\n\n"
		for name, svc := range a.health.Services {
			badge := statusFailure.Render("✗")
			if svc.Status == "connected" {
				badge = statusSuccess.Render("✓")
			}
			s += fmt.Sprintf("%s %-8s %s", badge, name, svc.Status)
			if svc.Message != "" {
				s += "  " + dimStyle.Render(svc.Message)
			}
			s += "\n"
		}
		if c := a.health.Cluster; c != nil {
			s += "\n" + labelStyle.Render("Cluster: ")
			s += fmt.Sprintf("%d nodes, %.1f/%.1f CPU, %.1f/%.1f GB allocatable\n",
				c.Nodes, c.AllocatableCPU, c.TotalCPU, c.AllocatableMemoryGB, c.TotalMemoryGB)
			for _, node := range c.NodeDetails {
				ready := statusFailure.Render("not ready")
				if node.Ready {
					ready = statusSuccess.Render("ready")
				}
				s += fmt.Sprintf("  %-14s %s  %s\n", node.Name, ready, dimStyle.Render(node.KubeletVersion))
			}
		}
	}

	s += "\n" + helpStyle.Render("[r] re-check  [esc] back  [q] quit")
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
