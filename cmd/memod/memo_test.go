package main

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/memod-dev/memod/internal/model"
)

// TestMemoMatchesDate verifies the day filter matches the target date
// and falls back to the creation day, like the embedded store's query.
func TestMemoMatchesDate(t *testing.T) {
	targetDate := "2031-06-01"
	createdAt := time.Date(2026, 5, 10, 9, 30, 0, 0, time.Local)

	memo := model.Memo{
		CreatedTS:  createdAt.Unix(),
		TargetDate: &targetDate,
	}

	if !memoMatchesDate(memo, targetDate) {
		t.Error("memo should match its target date")
	}
	if !memoMatchesDate(memo, "2026-05-10") {
		t.Error("memo should match its creation day")
	}
	if memoMatchesDate(memo, "2026-05-11") {
		t.Error("memo should not match an unrelated day")
	}

	untargeted := model.Memo{CreatedTS: createdAt.Unix()}
	if !memoMatchesDate(untargeted, "2026-05-10") {
		t.Error("untargeted memo should still match its creation day")
	}
}

// TestFormatMemoLineTruncation verifies long content is shortened
// without splitting a multi-byte rune.
func TestFormatMemoLineTruncation(t *testing.T) {
	content := strings.Repeat("日", 100) // 100 three-byte runes

	line := formatMemoLine(1, false, "pending", "daily", content)

	if !utf8.ValidString(line) {
		t.Fatalf("truncated line is not valid UTF-8: %q", line)
	}
	if !strings.HasSuffix(line, "...") {
		t.Errorf("long content should end with an ellipsis: %q", line)
	}
	if got := strings.Count(line, "日"); got != 69 {
		t.Errorf("truncated content has %d runes, want 69", got)
	}
}

// TestFormatMemoLineShortContent verifies short content is untouched.
func TestFormatMemoLineShortContent(t *testing.T) {
	line := formatMemoLine(2, true, "completed", "work", "short note")
	if !strings.Contains(line, "short note") {
		t.Errorf("content missing from line: %q", line)
	}
	if !strings.Contains(line, "[x]") {
		t.Errorf("completed marker missing: %q", line)
	}
}
