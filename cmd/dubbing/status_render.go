package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"dubbing/internal/api"
	"dubbing/internal/preflight"
)

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
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// healthLines renders the daemon health report.
func healthLines(h api.Health, colorize bool) []string {
	lines := renderSectionHeader("Pipeline", colorize)
	overall := statusOK
	message := "Healthy"
	if !h.Healthy {
		overall = statusError
		message = "Unhealthy"
	}
	lines = append(lines, renderStatusLine("Overall", overall, message, colorize))
	running := statusOK
	if !h.Running {
		running = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Workers running", running, yesNo(h.Running), colorize),
		renderStatusLine("Jobs processed", statusInfo, fmt.Sprintf("%d (%d ok, %d failed)", h.TotalJobsProcessed, h.SuccessfulJobs, h.FailedJobs), colorize),
		renderStatusLine("Failure rate", statusInfo, fmt.Sprintf("%.1f%%", h.FailureRate*100), colorize),
	)
	for _, reason := range h.Reasons {
		lines = append(lines, renderStatusLine("Reason", statusError, reason, colorize))
	}
	if h.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, h.LastError, colorize))
	}

	if len(h.Breakers) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Circuit breakers", colorize)...)
		for _, b := range h.Breakers {
			kind := statusOK
			switch b.State {
			case "open":
				kind = statusError
			case "half_open":
				kind = statusWarn
			}
			detail := fmt.Sprintf("%s (%d consecutive failures)", b.State, b.ConsecutiveFailures)
			lines = append(lines, renderStatusLine(b.Name, kind, detail, colorize))
		}
	}

	if len(h.Dependencies) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
		for _, d := range h.Dependencies {
			kind := statusOK
			detail := "Ready"
			if !d.Ready {
				kind = statusError
				detail = "Unavailable"
			}
			if d.Detail != "" {
				detail += " (" + d.Detail + ")"
			}
			lines = append(lines, renderStatusLine(d.Name, kind, detail, colorize))
		}
	}
	return lines
}

// preflightLines renders check results followed by a summary line.
func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := renderSectionHeader("Preflight", colorize)
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	failed := len(preflight.Failed(results))
	if failed == 0 {
		lines = append(lines, renderStatusLine("Summary", statusOK, fmt.Sprintf("%d checks passed", len(results)), colorize))
	} else {
		lines = append(lines, renderStatusLine("Summary", statusError, fmt.Sprintf("%d of %d checks failed", failed, len(results)), colorize))
	}
	return lines
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
