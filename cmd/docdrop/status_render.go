package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"docdrop/internal/queue"
)

// statusKind classifies a rendered status line for its tag and colour.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBold   = "\x1b[1m"
)

// statusLabelWidth fits the longest label the status and health commands
// print ("Connectivity").
const (
	statusLabelWidth = 12
	statusIndent     = "  "
)

var statusKindTags = map[statusKind]string{
	statusInfo:  "....",
	statusOK:    " ok ",
	statusWarn:  "warn",
	statusError: "fail",
}

var statusKindColors = map[statusKind]string{
	statusOK:    ansiGreen,
	statusWarn:  ansiYellow,
	statusError: ansiRed,
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindTags[kind] + "]"
	if colorize {
		if color, ok := statusKindColors[kind]; ok {
			tag = color + tag + ansiReset
		}
	}
	return fmt.Sprintf("%s%-*s %s %s", statusIndent, statusLabelWidth, label, tag, message)
}

// queueStatusKind maps a queue state onto the colour used when queue
// counters are rendered as status lines. A zero count is always neutral.
func queueStatusKind(status queue.Status, count int) statusKind {
	if count == 0 {
		return statusInfo
	}
	switch status {
	case queue.StatusCompleted:
		return statusOK
	case queue.StatusFailed:
		return statusError
	case queue.StatusPending, queue.StatusUploading:
		return statusInfo
	default:
		return statusWarn
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := strings.TrimSpace(title)
	rule := strings.Repeat("─", len([]rune(line)))
	if colorize {
		line = ansiBold + line + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
