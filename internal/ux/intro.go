package ux

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Intro explains what a run does before anything is driven.
const Intro = `# WhatsApp Web scraper

A Chrome window will open on **WhatsApp Web**.

1. Scan the QR code with your phone if you are not logged in yet.
2. Leave the window alone while contacts are collected and each chat is
   scrolled back to its first message.
3. Group chats are skipped.

Results are written when the last contact is done. A failing contact is
recorded and skipped.
`

// RenderMarkdown renders md for the terminal. An empty style picks one from
// the terminal background.
func RenderMarkdown(md string, width int, style string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
