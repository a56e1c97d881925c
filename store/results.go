package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"kuanb/gosm-linematch/matching"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/track"

	"github.com/google/uuid"
)

const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// SaveLabels writes the detected line of every labelled sample. Samples
// labelled with no line are set to NULL. Trajectories absent from labels are
// left untouched. It returns the number of rows updated.
func (s *Store) SaveLabels(ctx context.Context, trajectories []track.Trajectory, labels map[string][]matching.Label) (int64, error) {
	byID := make(map[string]*track.Trajectory, len(trajectories))
	for i := range trajectories {
		byID[trajectories[i].ID] = &trajectories[i]
	}
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE bus_data SET line_key_detected = ?
		WHERE bus_id = ? AND time_detection_ns = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var updated int64
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("labels for unknown trajectory %q", id)
		}
		for _, l := range labels[id] {
			if l.Index < 0 || l.Index >= len(t.Samples) {
				return 0, fmt.Errorf("label index %d out of range for %q (%d samples)", l.Index, id, len(t.Samples))
			}
			res, err := stmt.ExecContext(ctx, nullableKey(l.Line), id, t.Samples[l.Index].Time.UnixNano())
			if err != nil {
				return 0, fmt.Errorf("failed to label %q: %w", id, err)
			}
			n, _ := res.RowsAffected()
			updated += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// SaveCandidates stores the candidate table of a run.
func (s *Store) SaveCandidates(ctx context.Context, run uuid.UUID, table *matching.CandidateTable) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO line_candidates (run_id, line_id, direction, bus_id, percentage)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	table.Each(func(line track.LineKey, id string, pct float64) {
		if err != nil {
			return
		}
		_, err = stmt.ExecContext(ctx, run.String(), line.LineID, line.Direction, id, pct)
	})
	if err != nil {
		return fmt.Errorf("failed to save candidates: %w", err)
	}
	return tx.Commit()
}

// Candidates reads back the candidate table of a run.
func (s *Store) Candidates(ctx context.Context, run uuid.UUID) (*matching.CandidateTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_id, direction, bus_id, percentage FROM line_candidates WHERE run_id = ?`, run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := matching.NewCandidateTable()
	for rows.Next() {
		var (
			line track.LineKey
			id   string
			pct  float64
		)
		if err := rows.Scan(&line.LineID, &line.Direction, &id, &pct); err != nil {
			return nil, err
		}
		table.Add(line, id, pct)
	}
	return table, rows.Err()
}

// Run is one recorded matching run.
type Run struct {
	ID          uuid.UUID
	Status      string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Stats       *monitoring.PerformanceData
}

// BeginRun records the start of a run over [from, to).
func (s *Store) BeginRun(ctx context.Context, from, to time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_runs (run_id, started_at_ns, window_start_ns, window_end_ns, status)
		VALUES (?, ?, ?, ?, ?)`,
		id.String(), time.Now().UnixNano(), from.UnixNano(), to.UnixNano(), RunRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run with its statistics. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, stats monitoring.PerformanceData, runErr error) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	status, msg := RunDone, sql.NullString{}
	if runErr != nil {
		status = RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE match_runs SET finished_at_ns = ?, status = ?, error = ?, stats_json = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), status, msg, string(data), id.String())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// LastRun returns the most recently started run, or nil when none exists.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	var (
		id                    string
		started, wStart, wEnd int64
		finished              sql.NullInt64
		status                string
		msg, stats            sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at_ns, finished_at_ns, window_start_ns, window_end_ns, status, error, stats_json
		FROM match_runs ORDER BY started_at_ns DESC, rowid DESC LIMIT 1`).
		Scan(&id, &started, &finished, &wStart, &wEnd, &status, &msg, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run := &Run{
		Status:      status,
		Error:       msg.String,
		StartedAt:   time.Unix(0, started).UTC(),
		WindowStart: time.Unix(0, wStart).UTC(),
		WindowEnd:   time.Unix(0, wEnd).UTC(),
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64).UTC()
	}
	if stats.Valid {
		run.Stats = &monitoring.PerformanceData{}
		if err := json.Unmarshal([]byte(stats.String), run.Stats); err != nil {
			return nil, fmt.Errorf("bad stats for run %s: %w", id, err)
		}
	}
	return run, nil
}

// Summary describes the database contents.
type Summary struct {
	Version         uint
	Dirty           bool
	Samples         int64
	Vehicles        int64
	LabelledSamples int64
	// AgreeingSamples counts samples whose detected line equals the reported one.
	AgreeingSamples int64
	LineDirections  int64
	LastRun         *Run
}

// Status checks connectivity and summarises the stored data.
func (s *Store) Status(ctx context.Context) (*Summary, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	sum := &Summary{}
	var err error
	if sum.Version, sum.Dirty, err = s.Version(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT bus_id),
		       COUNT(line_key_detected),
		       COALESCE(SUM(line_key_detected = line_key_reported), 0)
		FROM bus_data`).Scan(&sum.Samples, &sum.Vehicles, &sum.LabelledSamples, &sum.AgreeingSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (SELECT DISTINCT line_id, direction FROM line_data_simple)`).Scan(&sum.LineDirections)
	if err != nil {
		return nil, fmt.Errorf("failed to count lines: %w", err)
	}
	if sum.LastRun, err = s.LastRun(ctx); err != nil {
		return nil, err
	}
	return sum, nil
}
