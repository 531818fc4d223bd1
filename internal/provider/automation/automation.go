// Package automation defines the GUI-automation contract used by the
// computer-use tools. When no real backend is configured the stub takes its
// place and computer use is disabled.
package automation

import "errors"

// ErrUnavailable is returned by the stub for every interaction.
var ErrUnavailable = errors.New("automation backend unavailable")

// Size is the display geometry in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Backend is the GUI-automation contract.
type Backend interface {
	// Available reports whether the backend can actually drive a display.
	Available() bool

	// DisplaySize returns the display geometry.
	DisplaySize() (Size, error)

	// Click presses the primary button at screen coordinates.
	Click(x, y int) error

	// Type sends keystrokes.
	Type(text string) error

	// Scroll scrolls n notches; negative scrolls up.
	Scroll(n int) error

	// Screenshot captures the display as PNG bytes.
	Screenshot() ([]byte, error)
}

// Stub satisfies Backend without a display. It reports the configured
// geometry so prompts can still describe the screen, and fails every
// interaction with ErrUnavailable.
type Stub struct {
	Width  int
	Height int
}

// NewStub builds a stub with the given display geometry.
func NewStub(width, height int) *Stub {
	return &Stub{Width: width, Height: height}
}

func (s *Stub) Available() bool { return false }

func (s *Stub) DisplaySize() (Size, error) {
	return Size{Width: s.Width, Height: s.Height}, nil
}

func (s *Stub) Click(int, int) error        { return ErrUnavailable }
func (s *Stub) Type(string) error           { return ErrUnavailable }
func (s *Stub) Scroll(int) error            { return ErrUnavailable }
func (s *Stub) Screenshot() ([]byte, error) { return nil, ErrUnavailable }
