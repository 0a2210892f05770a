package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"dubbing/internal/queue"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry        Entry
		status       string
		output       sql.NullString
		language     sql.NullString
		errorMessage sql.NullString
		errorKind    sql.NullString
		intervention int64
		providers    sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		recordedRaw  string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.JobID,
		&entry.Attempt,
		&status,
		&entry.InputVideo,
		&output,
		&language,
		&errorMessage,
		&errorKind,
		&intervention,
		&entry.Progress,
		&entry.Characters,
		&entry.APICalls,
		&entry.CostUSD,
		&providers,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&recordedRaw,
	); err != nil {
		return Entry{}, err
	}

	entry.Status = queue.Status(status)
	entry.OutputVideo = output.String
	entry.TargetLanguage = language.String
	entry.ErrorMessage = errorMessage.String
	entry.ErrorKind = errorKind.String
	entry.NeedsIntervention = intervention != 0
	if providers.Valid && providers.String != "" {
		entry.Providers = strings.Split(providers.String, ",")
	}
	entry.CreatedAt = parseTime(createdRaw)
	entry.StartedAt = parseTime(startedRaw.String)
	entry.CompletedAt = parseTime(completedRaw.String)
	entry.RecordedAt = parseTime(recordedRaw)
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
