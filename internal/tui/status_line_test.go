package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestStatusLine_Format(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		contains []string
	}{
		{"signed out", Status{}, []string{"[signed out]", "login"}},
		{"display name wins", Status{Authenticated: true, Email: "ops@bank.test", DisplayName: "Ops", Credits: intPtr(5)}, []string{"Ops", "5 credits"}},
		{"email fallback", Status{Authenticated: true, Email: "ops@bank.test"}, []string{"ops@bank.test", "credits unknown"}},
		{"no profile", Status{Authenticated: true}, []string{"signed in"}},
		{"age", Status{Authenticated: true, Credits: intPtr(0), UpdatedAt: time.Now().Add(-5 * time.Minute)}, []string{"0 credits", "updated 5m ago"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sl := NewStatusLine(StatusFunc(func() Status { return tt.status }), &buf)
			line := sl.Line()
			for _, want := range tt.contains {
				assert.Contains(t, line, want)
			}
			assert.NotContains(t, line, "\033[", "no colors when not a terminal")
		})
	}
}

func TestStatusLine_PrintAndFooter(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStatusLine(StatusFunc(func() Status { return Status{Authenticated: true, Credits: intPtr(2)} }), &buf)

	sl.RenderFooter()
	assert.Empty(t, buf.String(), "footer is terminal only")

	sl.Print()
	assert.Contains(t, buf.String(), "2 credits")

	sl.SetColor(true)
	assert.Contains(t, sl.Line(), ColorYellow)
}

func TestGetBalanceColor(t *testing.T) {
	assert.Equal(t, ColorRed, getBalanceColor(0))
	assert.Equal(t, ColorYellow, getBalanceColor(2))
	assert.Equal(t, ColorGreen, getBalanceColor(3))
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "just now", formatAge(10*time.Second))
	assert.Equal(t, "3m ago", formatAge(3*time.Minute))
	assert.Equal(t, "2h ago", formatAge(2*time.Hour+time.Minute))
}
