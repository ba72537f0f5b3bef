package ux

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/scrape"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

// Summary renders the per-contact table of a run followed by a totals line.
func Summary(r *scrape.Report) string {
	rows := make([][]string, 0, len(r.Contacts))
	for _, c := range r.Contacts {
		status := string(c.Status)
		detail := c.Outcome.String()
		if c.Status == types.ContactFailed {
			detail = c.Err
		}
		rows = append(rows, []string{
			c.Name,
			status,
			strconv.Itoa(c.Messages),
			strconv.Itoa(c.RowErrors),
			strconv.Itoa(c.Stalls),
			c.Duration.Round(time.Second).String(),
			truncate(detail, 48),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers("Contact", "Status", "Messages", "Misses", "Stalls", "Time", "Detail").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			if row >= 0 && row < len(r.Contacts) {
				c := r.Contacts[row]
				switch {
				case c.Status == types.ContactFailed:
					return FailedStyle
				case col == 3 && c.RowErrors > 0:
					return WarnStyle
				}
			}
			return CellStyle
		})

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run " + r.RunID))
	b.WriteString("\n")
	if len(r.Contacts) > 0 {
		b.WriteString(t.Render())
		b.WriteString("\n")
	}
	b.WriteString(Totals(r))
	b.WriteString("\n")
	return b.String()
}

// Totals is the one-line run summary.
func Totals(r *scrape.Report) string {
	line := fmt.Sprintf("%d contacts, %d messages, %d failed in %s",
		len(r.Contacts), r.Messages(), r.Failed(), r.Duration().Round(time.Second))
	if r.Failed() > 0 {
		return FailedStyle.UnsetPadding().Render(line)
	}
	return HintStyle.Render(line)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
