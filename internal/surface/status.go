// Package surface provides headless implementations of the controller's
// progress surface and error sink. A UI front end polls and mutates them
// through the control API instead of rendering a native dialog.
package surface

import (
	"sync"
	"sync/atomic"
)

// Report is a point-in-time snapshot of the progress surface.
type Report struct {
	Visible     bool   `json:"visible"`
	Message     string `json:"message,omitempty"`
	Percent     int    `json:"percent"`
	Description string `json:"description,omitempty"`
}

// Status is a thread-safe progress surface. The controller's transfer and
// poll goroutines write and read it concurrently with API handlers.
type Status struct {
	mu          sync.Mutex
	visible     bool
	message     string
	percent     int
	description string

	cancelRequested atomic.Bool
}

func NewStatus() *Status {
	return &Status{}
}

// Show presents the surface with the given message.
func (s *Status) Show(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visible = true
	s.message = text
	s.percent = 0
	s.description = ""
}

// ReportProgress records the latest progress report.
func (s *Status) ReportProgress(percent int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.percent = percent
	s.description = text
}

// RequestCancel marks the pending user cancel request. The controller's poll
// observes it on its next tick.
func (s *Status) RequestCancel() {
	s.cancelRequested.Store(true)
}

// CancelRequested reports whether the user asked to cancel.
func (s *Status) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// Close dismisses the surface and clears the cancel request for the next
// session.
func (s *Status) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visible = false
	s.cancelRequested.Store(false)
}

// Snapshot returns the current surface state.
func (s *Status) Snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Report{
		Visible:     s.visible,
		Message:     s.message,
		Percent:     s.percent,
		Description: s.description,
	}
}
