package ux

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/scrape"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/store"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

func TestReadyModel_Update(t *testing.T) {
	tests := []struct {
		name      string
		key       tea.KeyMsg
		confirmed bool
		done      bool
	}{
		{name: "enter confirms", key: tea.KeyMsg{Type: tea.KeyEnter}, confirmed: true, done: true},
		{name: "y confirms", key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}, confirmed: true, done: true},
		{name: "q quits", key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, done: true},
		{name: "esc quits", key: tea.KeyMsg{Type: tea.KeyEsc}, done: true},
		{name: "ctrl+c quits", key: tea.KeyMsg{Type: tea.KeyCtrlC}, done: true},
		{name: "other keys ignored", key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := newReadyModel("intro").Update(tt.key)
			m := next.(readyModel)
			assert.Equal(t, tt.confirmed, m.confirmed)
			assert.Equal(t, tt.done, m.done)
			if tt.done {
				require.NotNil(t, cmd)
				assert.Equal(t, tea.Quit(), cmd())
			} else {
				assert.Nil(t, cmd)
			}
		})
	}
}

func TestReadyModel_View(t *testing.T) {
	m := newReadyModel("Scan the QR code")
	view := m.View()
	assert.Contains(t, view, "Scan the QR code")
	assert.Contains(t, view, "Press enter to start")
	assert.Contains(t, view, "quit")

	next, cmd := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Nil(t, cmd)
	assert.Equal(t, 80, next.(readyModel).help.Width)
	assert.Equal(t, view, next.View())

	m.done = true
	assert.Empty(t, m.View())
}

func TestAwaitReady(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "enter", input: "\r", want: true},
		{name: "quit", input: "q", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			got, err := AwaitReady(ctx, strings.NewReader(tt.input), io.Discard, "intro")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown(Intro, 60, "notty")
	require.NoError(t, err)
	assert.Contains(t, out, "WhatsApp Web scraper")
	assert.Contains(t, out, "Group chats are skipped.")
}

func TestSummary(t *testing.T) {
	start := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	r := &scrape.Report{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Minute),
		Contacts: []scrape.ContactReport{
			{Name: "Thandi", Status: types.ContactDone, Messages: 42, Stalls: 3, Outcome: harvest.RevealTopBanner, Duration: 95 * time.Second},
			{Name: "Lerato", Status: types.ContactFailed, Err: "whatsapp: contact not found", Duration: 12 * time.Second},
		},
	}

	out := Summary(r)
	for _, want := range []string{"run-1", "Thandi", "Lerato", "42", "top_banner", "contact not found", "Messages"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, Totals(r), "2 contacts, 42 messages, 1 failed in 3m0s")
}

func TestSummary_Empty(t *testing.T) {
	out := Summary(&scrape.Report{RunID: "run-2"})
	assert.Contains(t, out, "0 contacts, 0 messages, 0 failed")
	assert.NotContains(t, out, "Contact")
}

func TestRuns(t *testing.T) {
	start := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	out := Runs([]store.Run{
		{ID: "run-2", StartedAt: start.Add(time.Hour)},
		{ID: "run-1", StartedAt: start, FinishedAt: start.Add(90 * time.Second), Contacts: 3, Failed: 1, Messages: 57},
	})
	for _, want := range []string{"run-1", "run-2", "interrupted", "1m30s", "57", "Contacts"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "run-2"), strings.Index(out, "run-1"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "Lerato 🌻", truncate("Lerato 🌻", 8))
}
