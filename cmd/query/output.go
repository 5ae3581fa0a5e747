package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/reflow/wordwrap"
)

const renderWidth = 100

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

// renderMarkdown renders the reply as markdown for terminals and returns it
// verbatim when stdout is a pipe, so `query ... | tee` stays clean.
func renderMarkdown(text string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return text
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return wordwrap.String(text, renderWidth) + "\n"
	}

	out, err := r.Render(text)
	if err != nil {
		return wordwrap.String(text, renderWidth) + "\n"
	}
	return out
}

func renderError(err error) string {
	msg := "error: " + err.Error()
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return msg
	}
	return errorStyle.Render(msg)
}
