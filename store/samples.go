package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"kuanb/gosm-linematch/track"
)

// LoadTrajectories returns the trajectories sampled in [from, to) whose
// vehicle passes filter, longest first. Samples are in time order.
func (s *Store) LoadTrajectories(ctx context.Context, from, to time.Time, filter track.IDFilter) ([]track.Trajectory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bus_id, time_detection_ns, latitude, longitude
		FROM bus_data
		WHERE time_detection_ns >= ? AND time_detection_ns < ?
		ORDER BY bus_id, time_detection_ns`,
		from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []track.Trajectory
	for rows.Next() {
		var (
			id     string
			ns     int64
			sample track.Sample
		)
		if err := rows.Scan(&id, &ns, &sample.Lat, &sample.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if !filter.Keep(id) {
			continue
		}
		sample.Time = time.Unix(0, ns).UTC()
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, track.Trajectory{ID: id})
		}
		last := &out[len(out)-1]
		last.Samples = append(last.Samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Samples) > len(out[j].Samples)
	})
	return out, nil
}

// InsertSamples upserts trajectory samples along with the line each vehicle
// reported. A sample already stored for the same vehicle and time gets the
// new position; its detected label is kept.
func (s *Store) InsertSamples(ctx context.Context, trajectories []track.Trajectory) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bus_data (bus_id, time_detection_ns, latitude, longitude, line_key_reported)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(time_detection_ns, bus_id) DO UPDATE SET
			latitude=excluded.latitude,
			longitude=excluded.longitude,
			line_key_reported=excluded.line_key_reported`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, t := range trajectories {
		reported := nullableKey(t.ReportedLine)
		for _, sample := range t.Samples {
			if _, err := stmt.ExecContext(ctx, t.ID, sample.Time.UnixNano(), sample.Lat, sample.Lon, reported); err != nil {
				return 0, fmt.Errorf("failed to insert sample of %q: %w", t.ID, err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func nullableKey(k track.LineKey) sql.NullString {
	if k.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: k.String(), Valid: true}
}
