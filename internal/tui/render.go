package tui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"go-case-tracker/internal/caselist"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/upload"
)

const (
	tagMuted   = "#8a939f"
	tagAccent  = "#2dd4bf"
	tagSuccess = "#22c55e"
	tagWarning = "#f59e0b"
	tagError   = "#ef4444"
)

var tableHeaders = []string{
	messages.LabelID, messages.LabelCase, messages.LabelDescription, messages.LabelProgress,
	messages.LabelDate, messages.LabelImage, messages.LabelIFC,
}

// headerText renders the counters line above the list.
func headerText(s caselist.Summary, loading bool, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]%s:[-] %d  [%s]%s:[-] %d  [%s]%s:[-] %d",
		tagAccent, messages.LabelCases, s.Total,
		tagAccent, messages.LabelThisMonth, s.ThisMonth,
		tagAccent, messages.LabelLast24h, s.Last24h)
	if loading {
		fmt.Fprintf(&b, "  [%s]%s[-]", tagWarning, messages.Loading)
	}
	if err != nil {
		fmt.Fprintf(&b, "  [%s]%s[-]", tagError, tview.Escape(err.Error()))
	}
	return b.String()
}

// caseRow is the table cells of one populated card.
func caseRow(c models.Case) []string {
	return []string{
		fmt.Sprintf("%d", c.ID),
		truncate(c.Name, 32),
		truncate(c.Description, 48),
		fmt.Sprintf("%.0f%%", c.NormalizedProgress()),
		c.DateLabel(),
		refName(c.ImageRef),
		refName(c.ModelRef),
	}
}

func refName(ref *string) string {
	if ref == nil {
		return "-"
	}
	return helpers.BaseNameFromRef(*ref)
}

// widgetLine renders an attachment slot inside the form.
func widgetLine(label string, s upload.Snapshot) string {
	switch s.State {
	case upload.Dragging:
		return fmt.Sprintf("%s: [%s]%s[-]", label, tagAccent, messages.SlotDropHere)
	case upload.Loading:
		return fmt.Sprintf("%s: %s %s %d%%", label, tview.Escape(s.DisplayName), progressBar(s.Progress, 20), s.Progress)
	case upload.Settled:
		line := fmt.Sprintf("%s: [%s]%s[-]", label, tagSuccess, tview.Escape(s.DisplayName))
		if s.RemoteRef != "" && !s.HasFile {
			line += fmt.Sprintf(" [%s]("+messages.SlotCurrentFmt+")[-]", tagMuted, tview.Escape(s.RemoteRef))
		}
		return line
	default:
		return fmt.Sprintf("%s: [%s]%s[-]", label, tagMuted, messages.SlotEmpty)
	}
}

func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return "|" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "|"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
