package workflow

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dubbing/internal/logging"
)

func (m *Manager) stageLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, m.logger)
}

// deriveStageLabel turns a status or stage key into a display label,
// e.g. "synthesizing_speech" -> "Synthesizing Speech".
func deriveStageLabel(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(name))
}
