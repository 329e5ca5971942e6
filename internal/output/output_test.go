package output

import (
	"strings"
	"testing"
	"time"

	"github.com/simon-b/atuin/internal/models"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		ns   int64
		want string
	}{
		{0, "0ms"},
		{int64(5 * time.Millisecond), "5ms"},
		{int64(1500 * time.Millisecond), "1.5s"},
		{int64(90 * time.Second), "1.5m"},
		{int64(90 * time.Minute), "1.5h"},
	}
	for _, tt := range tests {
		if got := Duration(tt.ns); got != tt.want {
			t.Errorf("Duration(%d) = %q, want %q", tt.ns, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 20); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	got := Truncate("a very long command line that keeps going", 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("Truncate long = %q (len %d)", got, len(got))
	}
	if got := Truncate("multi\nline", 20); strings.Contains(got, "\n") {
		t.Errorf("Truncate kept newline: %q", got)
	}
}

func TestHistoryLineContainsCommand(t *testing.T) {
	rec := &models.HistoryRecord{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Command:   "git log --oneline",
	}
	line := HistoryLine(rec)
	if !strings.Contains(line, "git log --oneline") {
		t.Errorf("line missing command: %q", line)
	}
}

func TestHistoryLineShowsDurationAndTruncates(t *testing.T) {
	rec := &models.HistoryRecord{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Command:   strings.Repeat("x", 300),
		Duration:  int64(1500 * time.Millisecond),
	}
	line := HistoryLine(rec)
	if !strings.Contains(line, "1.5s") {
		t.Errorf("line missing duration: %q", line)
	}
	if strings.Contains(line, strings.Repeat("x", 121)) {
		t.Errorf("long command not truncated: %q", line)
	}
	if !strings.Contains(line, "...") {
		t.Errorf("truncated command missing ellipsis: %q", line)
	}
}
