package tui

// StatusLine shows session state and credits in the shell.
//
// The footer is redrawn on the last terminal row whenever the session
// changes or credits are refreshed. Without a terminal it is silent.

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// LowBalanceThreshold triggers a warning color below this many credits.
	LowBalanceThreshold = 3

	// CriticalBalanceThreshold triggers the critical color.
	CriticalBalanceThreshold = 1
)

// =============================================================================
// STATUS SOURCE
// =============================================================================

// Status is what the line displays.
type Status struct {
	Authenticated bool
	Email         string
	DisplayName   string
	// Credits is nil when no balance is known yet.
	Credits   *int
	UpdatedAt time.Time
}

// StatusSource produces the current Status. Implemented in cmd on top of the
// session manager to keep tui free of domain imports.
type StatusSource interface {
	Status() Status
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() Status

func (f StatusFunc) Status() Status { return f() }

// =============================================================================
// STATUS LINE
// =============================================================================

// StatusLine renders Status to a terminal.
type StatusLine struct {
	mu     sync.Mutex
	source StatusSource
	out    io.Writer
	footer bool
	color  bool
}

// NewStatusLine creates a status line writing to out. The footer and colors
// are enabled only when out is a terminal.
func NewStatusLine(source StatusSource, out io.Writer) *StatusLine {
	f, isFile := out.(*os.File)
	tty := isFile && IsTerminal(f)
	return &StatusLine{source: source, out: out, footer: tty, color: tty}
}

// SetColor overrides color detection.
func (sl *StatusLine) SetColor(enabled bool) {
	sl.mu.Lock()
	sl.color = enabled
	sl.mu.Unlock()
}

// Line returns the formatted status without writing it.
func (sl *StatusLine) Line() string {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.formatLocked(sl.source.Status())
}

// Print writes the status as a regular line.
func (sl *StatusLine) Print() {
	line := sl.Line()
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fmt.Fprintln(sl.out, line)
}

// RenderFooter redraws the footer on the last terminal row.
func (sl *StatusLine) RenderFooter() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.footer {
		return
	}

	line := sl.formatLocked(sl.source.Status())
	f := sl.out.(*os.File)
	_, h, err := term.GetSize(int(f.Fd()))
	if err != nil || h <= 0 {
		return
	}

	// Save cursor, jump to last row, clear it, draw, restore.
	fmt.Fprint(sl.out, "\0337")
	fmt.Fprintf(sl.out, "\033[%d;1H", h)
	fmt.Fprint(sl.out, "\033[2K")
	fmt.Fprint(sl.out, line)
	fmt.Fprint(sl.out, "\0338")
}

func (sl *StatusLine) formatLocked(s Status) string {
	paint := func(color, text string) string {
		if !sl.color {
			return text
		}
		return color + text + ColorReset
	}

	if !s.Authenticated {
		return paint(ColorDim, "[signed out]") + " " + paint(ColorCyan, "login") + " or " + paint(ColorCyan, "register") + " to convert with credits"
	}

	who := s.DisplayName
	if who == "" {
		who = s.Email
	}
	if who == "" {
		who = "signed in"
	}

	parts := []string{paint(ColorBold, who)}
	if s.Credits != nil {
		parts = append(parts, paint(getBalanceColor(*s.Credits), fmt.Sprintf("%d credits", *s.Credits)))
	} else {
		parts = append(parts, paint(ColorDim, "credits unknown"))
	}
	if !s.UpdatedAt.IsZero() {
		parts = append(parts, paint(ColorDim, "updated "+formatAge(time.Since(s.UpdatedAt))))
	}
	return "[" + strings.Join(parts, " │ ") + "]"
}

// =============================================================================
// HELPERS
// =============================================================================

// getBalanceColor returns the color for a credit balance.
func getBalanceColor(credits int) string {
	if credits < CriticalBalanceThreshold {
		return ColorRed
	}
	if credits < LowBalanceThreshold {
		return ColorYellow
	}
	return ColorGreen
}

func formatAge(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
