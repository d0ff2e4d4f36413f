package scan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// History records run metadata. Hits are never stored. Begin returns the
// record ID used by Progress and Finish; it is unrelated to the run ID.
type History interface {
	Begin(ctx context.Context, req *Request, trigger string, startedAt time.Time) (int64, error)
	Progress(ctx context.Context, id int64, processed uint, hits, warnings int) error
	Finish(ctx context.Context, id int64, s Summary) error
}

// HistoryEntry is one scan_history row.
type HistoryEntry struct {
	ID              int64      `json:"id"`
	Term            string     `json:"term"`
	Projects        []string   `json:"projects"`
	TriggeredBy     string     `json:"triggered_by"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	DurationSeconds *int64     `json:"duration_seconds"`
	TotalFiles      int64      `json:"total_files"`
	FilesProcessed  int64      `json:"files_processed"`
	Hits            int64      `json:"hits"`
	Warnings        int64      `json:"warnings"`
}

// SQLHistory stores run metadata in the scan_history table.
type SQLHistory struct {
	db *sql.DB
}

// NewSQLHistory wraps an open database with migrations applied.
func NewSQLHistory(db *sql.DB) *SQLHistory {
	return &SQLHistory{db: db}
}

// Begin inserts a 'running' row and returns its ID.
func (h *SQLHistory) Begin(ctx context.Context, req *Request, trigger string, startedAt time.Time) (int64, error) {
	projects, err := json.Marshal(req.ProjectNames())
	if err != nil {
		return 0, fmt.Errorf("encode projects: %w", err)
	}
	now := startedAt.Unix()
	res, err := h.db.ExecContext(ctx, `
		INSERT INTO scan_history
			(term, projects, triggered_by, status, total_files, started_at, created_at)
		VALUES (?, ?, ?, 'running', ?, ?, ?)`,
		req.Term, string(projects), trigger, req.TotalFiles(), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert scan record: %w", err)
	}
	return res.LastInsertId()
}

// Progress updates the live counters of a running row.
func (h *SQLHistory) Progress(ctx context.Context, id int64, processed uint, hits, warnings int) error {
	_, err := h.db.ExecContext(ctx, `
		UPDATE scan_history
		SET files_processed = ?, hits = ?, warnings = ?
		WHERE id = ? AND status = 'running'`,
		processed, hits, warnings, id)
	return err
}

// Finish writes the terminal status and final counters.
func (h *SQLHistory) Finish(ctx context.Context, id int64, s Summary) error {
	_, err := h.db.ExecContext(ctx, `
		UPDATE scan_history
		SET status           = ?,
		    finished_at      = ?,
		    duration_seconds = ?,
		    files_processed  = ?,
		    hits             = ?,
		    warnings         = ?
		WHERE id = ?`,
		s.Status(), s.FinishedAt.Unix(), int64(s.FinishedAt.Sub(s.StartedAt).Seconds()),
		s.FilesProcessed, s.Hits, s.Warnings, id)
	if err != nil {
		return fmt.Errorf("finalise scan record %d: %w", id, err)
	}
	return nil
}

// List returns history rows newest first.
func (h *SQLHistory) List(ctx context.Context, limit, offset int) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, term, projects, triggered_by, status, started_at, finished_at,
		       duration_seconds, total_files, files_processed, hits, warnings
		FROM scan_history
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var items []HistoryEntry
	for rows.Next() {
		var (
			it         HistoryEntry
			projects   string
			startedAt  int64
			finishedAt sql.NullInt64
			durSecs    sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.Term, &projects, &it.TriggeredBy, &it.Status,
			&startedAt, &finishedAt, &durSecs,
			&it.TotalFiles, &it.FilesProcessed, &it.Hits, &it.Warnings); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if projects != "" {
			if err := json.Unmarshal([]byte(projects), &it.Projects); err != nil {
				return nil, fmt.Errorf("decode projects of scan %d: %w", it.ID, err)
			}
		}
		it.StartedAt = time.Unix(startedAt, 0).UTC()
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0).UTC()
			it.FinishedAt = &t
		}
		if durSecs.Valid {
			d := durSecs.Int64
			it.DurationSeconds = &d
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Prune deletes finished rows that started before cutoff.
func (h *SQLHistory) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
		DELETE FROM scan_history
		WHERE status != 'running' AND started_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune scan history: %w", err)
	}
	return res.RowsAffected()
}

// MarkStaleScansFailed marks any scan_history rows still in 'running' state
// as 'failed'. This should be called once at startup in case a previous
// process exited mid-scan.
func MarkStaleScansFailed(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE scan_history
		SET status = 'failed', finished_at = ?
		WHERE status = 'running'`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark stale scans failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale scans as failed", "count", n)
	}
	return nil
}
