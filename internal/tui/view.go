package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/fieldwork/internal/domain"
)

var (
	accentColor  = lipgloss.Color("62")
	mutedColor   = lipgloss.Color("241")
	dimColor     = lipgloss.Color("239")
	warnColor    = lipgloss.Color("214")
	dangerColor  = lipgloss.Color("203")
	successColor = lipgloss.Color("78")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle   = lipgloss.NewStyle().Foreground(dimColor)
	mutedStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	warnStyle     = lipgloss.NewStyle().Foreground(warnColor)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	cellStyle     = lipgloss.NewStyle().Background(lipgloss.Color("237")).Bold(true)
)

// View handles view.
func (m Model) View() tea.View {
	if m.err != nil {
		v := tea.NewView("error: " + m.err.Error() + "\n\npress r to retry • q quit\n")
		v.AltScreen = true
		return v
	}
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	var sections []string
	if len(m.activities) == 0 {
		sections = []string{
			titleStyle.Render("fieldwork"),
			"",
			"No activities yet.",
			"Import a snapshot with `fieldwork import <file>`.",
			"Press q to quit.",
		}
	} else {
		sections = m.activitySections()
	}
	if m.status != "" && m.status != "ready" {
		sections = append(sections, "", statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpLine := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(m.help.View(m.keys))
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}

	v := tea.NewView(content + "\n" + helpLine)
	v.AltScreen = true
	return v
}

// activitySections renders the selected activity and any open overlay.
func (m Model) activitySections() []string {
	activity := m.overview.Activity
	header := titleStyle.Render("fieldwork") + "  " + activity.Name
	header += statusStyle.Render(fmt.Sprintf("  [%s]  %d/%d", m.overview.Status.Label(), m.selectedActivity+1, len(m.activities)))

	out := []string{header, m.renderTabs(), ""}
	for _, w := range m.overview.Warnings {
		out = append(out, warnStyle.Render("! "+w.Message))
	}
	if len(m.overview.Warnings) > 0 {
		out = append(out, "")
	}
	for _, totals := range m.overview.Progress {
		out = append(out, renderPhaseProgress(totals))
	}
	out = append(out, "")
	out = append(out, m.renderAssignments()...)

	if m.limit != nil {
		out = append(out, "", m.renderLimit())
	}

	switch m.mode {
	case modeEditStage:
		out = append(out, "", lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1).
			Render(m.status+"\n"+m.input.View()))
	case modeEvents:
		out = append(out, "", m.renderEvents())
	case modeBrief:
		out = append(out, "", m.brief.render(activity, m.currency, m.width-4))
	}
	return out
}

// renderTabs renders one tab per activity with the selection highlighted.
func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(m.activities))
	for i, activity := range m.activities {
		label := truncate(activity.Name, 24)
		if i == m.selectedActivity {
			tabs = append(tabs, lipgloss.NewStyle().Foreground(accentColor).Bold(true).Underline(true).Render(label))
			continue
		}
		tabs = append(tabs, mutedStyle.Render(label))
	}
	return strings.Join(tabs, mutedStyle.Render(" │ "))
}

// renderPhaseProgress renders the terminal-stage share of one phase.
func renderPhaseProgress(totals domain.StageTotals) string {
	pipeline, err := domain.PipelineForPhase(totals.Phase)
	if err != nil {
		return ""
	}
	const barWidth = 20
	ratio := totals.CompletionRatio()
	filled := int(ratio * barWidth)
	bar := lipgloss.NewStyle().Foreground(successColor).Render(strings.Repeat("█", filled)) +
		statusStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("%-28s %s %3.0f%%  %d/%d %s",
		totals.Phase.Label(), bar, ratio*100, totals.Values[domain.StageCount-1], totals.Total, pipeline.Terminal())
}

// renderAssignments renders one row per assignment with every stage bucket.
func (m Model) renderAssignments() []string {
	assignments := m.overview.Activity.Assignments
	if len(assignments) == 0 {
		return []string{mutedStyle.Render("No workers assigned.")}
	}
	out := make([]string, 0, len(assignments))
	for i, a := range assignments {
		pipeline := a.Counters.Pipeline()
		cells := make([]string, 0, domain.StageCount)
		for s, stage := range pipeline {
			cell := fmt.Sprintf("%s %d", stage, a.Counters.Values[s])
			switch {
			case s == 0:
				cell = mutedStyle.Render(cell)
			case i == m.selectedAssignment && s == m.selectedStage:
				cell = cellStyle.Render(cell)
			}
			cells = append(cells, cell)
		}
		name := fmt.Sprintf("%-18s", truncate(a.WorkerName, 18))
		cursor := "  "
		if i == m.selectedAssignment {
			cursor = "> "
			name = selectedStyle.Render(name)
		}
		out = append(out, fmt.Sprintf("%s%s %-16s %s  %s",
			cursor, name, truncate(a.Phase.Label(), 16), strings.Join(cells, "  "),
			mutedStyle.Render(formatAmount(a.Honor())+" "+m.currency)))
	}
	return out
}

// renderLimit renders the last advisory limit check.
func (m Model) renderLimit() string {
	r := m.limit
	line := fmt.Sprintf("honor %s  worker %s: %s existing + %s proposed = %s of %s %s",
		r.Period, r.WorkerID,
		formatAmount(r.ExistingTotal), formatAmount(r.ProposedHonor),
		formatAmount(r.ProjectedTotal), formatAmount(r.Limit), m.currency)
	if r.IsOverLimit {
		return lipgloss.NewStyle().Foreground(dangerColor).Render(line + "  OVER LIMIT")
	}
	return lipgloss.NewStyle().Foreground(successColor).Render(line + "  headroom " + formatAmount(r.Headroom()))
}

// renderEvents renders the progress log overlay.
func (m Model) renderEvents() string {
	names := make(map[string]string, len(m.overview.Activity.Assignments))
	for _, a := range m.overview.Activity.Assignments {
		names[a.ID] = a.WorkerName
	}
	lines := []string{titleStyle.Render("Progress log")}
	if len(m.events) == 0 {
		lines = append(lines, mutedStyle.Render("(no stage edits yet)"))
	}
	for _, e := range m.events {
		who := names[e.AssignmentID]
		if who == "" {
			who = e.AssignmentID
		}
		lines = append(lines, fmt.Sprintf("%s  %-18s %-12s %d → %d  %s",
			e.OccurredAt.Local().Format("2006-01-02 15:04"),
			truncate(who, 18), e.Stage, e.OldValue, e.NewValue, mutedStyle.Render(e.ActorID)))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

// formatAmount groups digits by thousands.
func formatAmount(v int64) string {
	digits := strconv.FormatInt(v, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
