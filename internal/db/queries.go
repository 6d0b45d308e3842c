package db

import (
	"database/sql"
	"fmt"
)

// JobEvent represents a row in the job_events table.
type JobEvent struct {
	ID        int
	JobID     string
	Event     string
	Stage     string
	Attempt   int
	Detail    string
	Timestamp string
}

// ProcessRun represents a row in the process_runs table.
type ProcessRun struct {
	ID         int
	JobID      string
	ExitCode   int
	DurationMs int
	PeakRSS    int64
	CPUPercent float64
	Reason     string
	Timestamp  string
}

// LogJobEvent inserts a job lifecycle event.
func (d *DB) LogJobEvent(jobID string, event string, stage string, attempt int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO job_events (job_id, event, stage, attempt, detail) VALUES (?, ?, ?, ?, ?)`,
		jobID, event, stage, attempt, detail,
	)
	if err != nil {
		return fmt.Errorf("log job event: %w", err)
	}
	return nil
}

// RecordProcessRun inserts a process execution summary.
func (d *DB) RecordProcessRun(jobID string, exitCode int, durationMs int, peakRSS int64, cpuPercent float64, reason string) error {
	_, err := d.conn.Exec(
		`INSERT INTO process_runs (job_id, exit_code, duration_ms, peak_rss, cpu_percent, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, exitCode, durationMs, peakRSS, cpuPercent, reason,
	)
	if err != nil {
		return fmt.Errorf("record process run: %w", err)
	}
	return nil
}

// RecordValidation inserts a validation report summary.
func (d *DB) RecordValidation(jobID string, valid bool, errors string, warnings string) error {
	_, err := d.conn.Exec(
		`INSERT INTO validation_reports (job_id, valid, errors, warnings) VALUES (?, ?, ?, ?)`,
		jobID, valid, errors, warnings,
	)
	if err != nil {
		return fmt.Errorf("record validation: %w", err)
	}
	return nil
}

// JobEvents returns all events for a job, oldest first.
func (d *DB) JobEvents(jobID string) ([]JobEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, job_id, event, stage, attempt, detail, timestamp
		 FROM job_events WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query job events: %w", err)
	}
	defer rows.Close()
	return scanJobEvents(rows)
}

// RecentEvents returns the most recent events across all jobs.
func (d *DB) RecentEvents(limit int) ([]JobEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		`SELECT id, job_id, event, stage, attempt, detail, timestamp
		 FROM job_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()
	return scanJobEvents(rows)
}

// LastProcessRun returns the most recent process run for a job, or nil.
func (d *DB) LastProcessRun(jobID string) (*ProcessRun, error) {
	row := d.conn.QueryRow(
		`SELECT id, job_id, exit_code, duration_ms, peak_rss, cpu_percent, reason, timestamp
		 FROM process_runs WHERE job_id = ? ORDER BY id DESC LIMIT 1`,
		jobID,
	)
	var r ProcessRun
	var reason sql.NullString
	err := row.Scan(&r.ID, &r.JobID, &r.ExitCode, &r.DurationMs, &r.PeakRSS, &r.CPUPercent, &reason, &r.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last process run: %w", err)
	}
	if reason.Valid {
		r.Reason = reason.String
	}
	return &r, nil
}

func scanJobEvents(rows *sql.Rows) ([]JobEvent, error) {
	var events []JobEvent
	for rows.Next() {
		var e JobEvent
		var stage, detail sql.NullString
		var attempt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.JobID, &e.Event, &stage, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		e.Stage = stage.String
		e.Detail = detail.String
		e.Attempt = int(attempt.Int64)
		events = append(events, e)
	}
	return events, rows.Err()
}
