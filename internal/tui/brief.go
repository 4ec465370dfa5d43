package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/hylla/fieldwork/internal/domain"
)

// minBriefWidth is the narrowest wrap width handed to glamour.
const minBriefWidth = 24

// briefRenderer renders the activity brief overlay. The glamour renderer is rebuilt only
// when the wrap width changes and the last output is reused until the activity changes.
type briefRenderer struct {
	width int
	term  *glamour.TermRenderer
	key   string
	out   string
}

func (r *briefRenderer) render(a domain.Activity, currency string, width int) string {
	width = max(width, minBriefWidth)
	key := fmt.Sprintf("%s|%d|%d|%s", a.ID, a.UpdatedAt.UnixNano(), width, currency)
	if r.out != "" && r.key == key {
		return r.out
	}

	md := activityBrief(a, currency)
	if r.term == nil || r.width != width {
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		r.term, r.width = term, width
	}
	rendered, err := r.term.Render(md)
	if err != nil {
		return md
	}
	r.key, r.out = key, strings.TrimRight(rendered, "\n")
	return r.out
}

// activityBrief builds the markdown shown in the brief overlay.
func activityBrief(a domain.Activity, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Name)
	if desc := strings.TrimSpace(a.Description); desc != "" {
		b.WriteString(desc + "\n\n")
	}
	b.WriteString("| Phase | Start | End |\n|---|---|---|\n")
	for _, p := range domain.Phases() {
		r := a.Schedule.Range(p)
		fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Label(), formatDay(r.Start), formatDay(r.End))
	}
	if period, err := domain.ResolvePaymentPeriod(a); err == nil {
		fmt.Fprintf(&b, "\nPaid in **%s**.\n", period)
	} else {
		b.WriteString("\nPayment month unresolved: set a payment period or a data collection start.\n")
	}
	if len(a.HonorariumSettings) > 0 {
		fmt.Fprintf(&b, "\n| Task | Unit | Price (%s) |\n|---|---|---|\n", currency)
		for _, s := range a.HonorariumSettings {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", s.TaskType, s.UnitLabel, formatAmount(s.UnitPrice))
		}
	}
	if a.LastProgressAt != nil {
		fmt.Fprintf(&b, "\nLast progress %s by %s.\n", a.LastProgressAt.Format("2006-01-02 15:04"), a.LastProgressBy)
	}
	return b.String()
}
