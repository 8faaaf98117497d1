// Package ui renders the chat transcript in a terminal.
package ui

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// Spinner wraps a terminal spinner shown while a reply has no text yet.
type Spinner struct {
	s       *spinner.Spinner
	running bool
}

// NewSpinner creates a stopped spinner with the given message.
func NewSpinner(w io.Writer, msg string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = "  " + msg
	_ = s.Color("cyan")
	return &Spinner{s: s}
}

// Start begins the animation. Starting a running spinner is a no-op.
func (sp *Spinner) Start() {
	if sp.running {
		return
	}
	sp.running = true
	sp.s.Start()
}

// Stop halts the animation and clears the line.
func (sp *Spinner) Stop() {
	if !sp.running {
		return
	}
	sp.running = false
	sp.s.Stop()
}
