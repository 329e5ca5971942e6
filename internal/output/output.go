// Package output provides styled terminal output helpers (success, error,
// warning, history formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/simon-b/atuin/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Header prints a bold section header.
func Header(text string) {
	fmt.Println(titleStyle.Render(text))
}

// HistoryLine renders one history record for `history list`: timestamp,
// runtime and the command itself, flattened to a single line.
func HistoryLine(rec *models.HistoryRecord) string {
	ts := subtleStyle.Render(rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
	dur := subtleStyle.Render(fmt.Sprintf("%7s", Duration(rec.Duration)))
	cmd := Truncate(rec.Command, 120)
	if rec.ExitCode != 0 {
		cmd = failedStyle.Render(cmd)
	}
	return fmt.Sprintf("%s  %s  %s", ts, dur, cmd)
}

// KV prints an aligned key/value line for status-style output.
func KV(key, format string, args ...interface{}) {
	fmt.Printf("%s %s\n", subtleStyle.Render(fmt.Sprintf("%-14s", key+":")), fmt.Sprintf(format, args...))
}

// Duration formats a nanosecond duration for display, compacting to the
// largest sensible unit.
func Duration(ns int64) string {
	d := time.Duration(ns)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	case d >= time.Minute:
		return fmt.Sprintf("%.1fm", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return "0ms"
	}
}

// Truncate shortens a command for single-line display.
func Truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
