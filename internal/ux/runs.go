package ux

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/store"
)

// Runs renders archived runs, one row each, in the order given.
// Runs that never finished show as interrupted.
func Runs(runs []store.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := "interrupted"
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			took,
			strconv.Itoa(r.Contacts),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Messages),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers("Run", "Started", "Took", "Contacts", "Failed", "Messages").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return HeaderStyle
			case row >= 0 && row < len(runs) && runs[row].FinishedAt.IsZero():
				return WarnStyle
			case row >= 0 && row < len(runs) && col == 4 && runs[row].Failed > 0:
				return FailedStyle
			}
			return CellStyle
		})
	return t.Render() + "\n"
}
