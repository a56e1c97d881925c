package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"kuanb/gosm-linematch/track"

	"github.com/paulmach/orb"
)

// LoadReferencePaths returns every stored line direction whose line passes
// filter, ordered by point count, largest first.
func (s *Store) LoadReferencePaths(ctx context.Context, filter track.IDFilter) ([]track.ReferencePath, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_id, direction, latitude, longitude
		FROM line_data_simple
		ORDER BY line_id, direction, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query line paths: %w", err)
	}
	defer rows.Close()

	var out []track.ReferencePath
	for rows.Next() {
		var (
			key      track.LineKey
			lat, lon float64
		)
		if err := rows.Scan(&key.LineID, &key.Direction, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan line point: %w", err)
		}
		if !filter.Keep(key.LineID) {
			continue
		}
		if n := len(out); n == 0 || out[n-1].Key != key {
			out = append(out, track.ReferencePath{Key: key})
		}
		last := &out[len(out)-1]
		last.Points = append(last.Points, orb.Point{lon, lat})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Points) > len(out[j].Points)
	})
	return out, nil
}

// ReplaceLinePaths stores paths, replacing any earlier geometry of the same
// line direction. It returns the number of points written.
func (s *Store) ReplaceLinePaths(ctx context.Context, paths []track.ReferencePath) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO line_data_simple (line_id, direction, position, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	n := 0
	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM line_data_simple WHERE line_id = ? AND direction = ?`,
			p.Key.LineID, p.Key.Direction); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", p.Key, err)
		}
		for pos, pt := range p.Points {
			if _, err := insert.ExecContext(ctx, p.Key.LineID, p.Key.Direction, pos, pt[1], pt[0]); err != nil {
				return 0, fmt.Errorf("failed to insert %s position %d: %w", p.Key, pos, err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
