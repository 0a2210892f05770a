package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dubbing/internal/logging"
	"dubbing/internal/queue"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultListLimit = 50
)

// Entry is one archived terminal transition.
type Entry struct {
	ID                int64        `json:"id"`
	JobID             string       `json:"job_id"`
	Attempt           int          `json:"attempt"`
	Status            queue.Status `json:"status"`
	InputVideo        string       `json:"input_video"`
	OutputVideo       string       `json:"output_video,omitempty"`
	TargetLanguage    string       `json:"target_language,omitempty"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	ErrorKind         string       `json:"error_kind,omitempty"`
	NeedsIntervention bool         `json:"needs_intervention,omitempty"`
	Progress          int          `json:"progress"`
	Characters        int          `json:"characters"`
	APICalls          int          `json:"api_calls"`
	CostUSD           float64      `json:"cost_usd"`
	Providers         []string     `json:"providers,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	StartedAt         time.Time    `json:"started_at,omitzero"`
	CompletedAt       time.Time    `json:"completed_at,omitzero"`
	RecordedAt        time.Time    `json:"recorded_at"`
}

// ListOptions filters List results. Zero values match everything.
type ListOptions struct {
	JobID    string
	Statuses []queue.Status
	Limit    int
}

// Archive persists terminal jobs in SQLite.
type Archive struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Archive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("archive path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	a := &Archive{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "archive"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := a.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Path returns the database location.
func (a *Archive) Path() string { return a.path }

// Close releases the database handle.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Record appends a terminal job snapshot. Non-terminal jobs are ignored.
func (a *Archive) Record(ctx context.Context, job queue.Job) error {
	if a == nil {
		return nil
	}
	if !job.Status.IsTerminal() {
		return nil
	}
	ctx = ensureContext(ctx)

	return retryOnBusy(ctx, func() error {
		_, err := a.db.ExecContext(ctx,
			`INSERT INTO job_history (
                job_id, attempt, status, input_video, output_video, target_language,
                error_message, error_kind, needs_intervention, progress,
                characters, api_calls, cost_usd, providers,
                created_at, started_at, completed_at, recorded_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID,
			job.Attempts,
			string(job.Status),
			job.InputVideo,
			nullableString(job.OutputVideo),
			nullableString(job.TargetLanguage),
			nullableString(job.ErrorMessage),
			nullableString(job.ErrorKind),
			boolToInt(job.NeedsIntervention),
			job.Progress,
			job.Cost.Characters,
			job.Cost.APICalls,
			job.Cost.TotalUSD,
			nullableString(strings.Join(job.Artifacts.ProvidersUsed, ",")),
			formatTime(job.CreatedAt),
			nullableTime(job.StartedAt),
			nullableTime(job.CompletedAt),
			formatTime(a.now()),
		)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
}

// Observe records job and logs failures. It matches the workflow observer
// signature so the archive can be registered directly.
func (a *Archive) Observe(ctx context.Context, job queue.Job) {
	if err := a.Record(ctx, job); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "failed to archive job", "archive_write_failed",
			logging.JobID(job.ID),
			logging.String("status", string(job.Status)),
			logging.Error(err),
			logging.Hint("check disk space and permissions for "+a.path),
			logging.Impact("job missing from history"),
		)
	}
}

const entryColumns = "id, job_id, attempt, status, input_video, output_video, target_language, error_message, error_kind, needs_intervention, progress, characters, api_calls, cost_usd, providers, created_at, started_at, completed_at, recorded_at"

// List returns archived entries, newest first.
func (a *Archive) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if id := strings.TrimSpace(opts.JobID); id != "" {
		clauses = append(clauses, "job_id = ?")
		args = append(args, id)
	}
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT " + entryColumns + " FROM job_history"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var entries []Entry
	err := retryOnBusy(ctx, func() error {
		rows, err := a.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			entry, scanErr := scanEntry(rows)
			if scanErr != nil {
				return fmt.Errorf("scan history: %w", scanErr)
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of archived rows per status.
func (a *Archive) Count(ctx context.Context) (map[queue.Status]int, error) {
	ctx = ensureContext(ctx)
	counts := make(map[queue.Status]int)
	err := retryOnBusy(ctx, func() error {
		rows, err := a.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM job_history GROUP BY status")
		if err != nil {
			return fmt.Errorf("count history: %w", err)
		}
		defer rows.Close()
		clear(counts)
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				return fmt.Errorf("scan history count: %w", err)
			}
			counts[queue.Status(status)] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
