package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"

	"kuanb/gosm-linematch/matching"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/track"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"
)

// Server holds the reference paths and engines for handling requests
type Server struct {
	paths     *track.Batch
	detector  *matching.Detector
	corrector *matching.Corrector
}

func NewServer(paths *track.Batch, detector *matching.Detector, corrector *matching.Corrector) *Server {
	return &Server{paths: paths, detector: detector, corrector: corrector}
}

// Routes registers the server endpoints on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/match", s.handleMatch)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Metrics endpoint
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(monitoring.ReadRuntimeMetrics())
	})
	return mux
}

// lineColor picks a stable hex color per line so segments of the same line
// render alike.
func lineColor(k track.LineKey) string {
	h := fnv.New32a()
	h.Write([]byte(k.String()))
	return fmt.Sprintf("#%06X", h.Sum32()&0xFFFFFF)
}

// handleMatch processes a GeoJSON request of vehicle trajectories and
// returns one feature per run of samples labelled with the same line.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Read request body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	trajectories, err := track.DecodeTrajectories(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(trajectories) == 0 {
		http.Error(w, "No trajectories found in GeoJSON", http.StatusBadRequest)
		return
	}
	batch, err := track.NewTrajectoryBatch(trajectories)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	monitoring.Infof("Processing match request with %d trajectories, %d samples", batch.Len(), batch.TotalPoints())

	detection, err := s.detector.Detect(batch, s.paths)
	if errors.Is(err, matching.ErrBudgetTooSmall) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		monitoring.Errorf("detection failed: %v", err)
		http.Error(w, "detection failed", http.StatusInternalServerError)
		return
	}

	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"candidates": detection.Candidates.Len(),
	}

	correction, err := s.corrector.Correct(detection.Candidates, batch, s.paths)
	switch {
	case errors.Is(err, matching.ErrNoMatches):
		fc.ExtraMembers["matched_samples"] = 0
	case err != nil:
		monitoring.Errorf("correction failed: %v", err)
		http.Error(w, "correction failed", http.StatusInternalServerError)
		return
	default:
		fc.ExtraMembers["matched_samples"] = correction.MatchedSamples()
		fc.ExtraMembers["conflicts"] = correction.Conflicts
		fc.ExtraMembers["ties"] = correction.Ties
		for _, t := range trajectories {
			for _, seg := range segments(t, correction.Labels[t.ID]) {
				fc.Append(seg.feature(t.ID, detection.Candidates))
			}
		}
	}

	// Send response
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		monitoring.Errorf("Failed to encode response: %v", err)
	}
}

// segment is a maximal run of consecutive samples with the same line.
type segment struct {
	line       track.LineKey
	start, end int // sample indices, inclusive
	points     orb.LineString
}

// segments groups labelled samples. Invalid fixes extend a segment's index
// range but are left out of its geometry; a segment with no valid fix is dropped.
func segments(t track.Trajectory, labels []matching.Label) []segment {
	var out []segment
	for _, l := range labels {
		if l.Line.IsZero() {
			continue
		}
		s := t.Samples[l.Index]
		pt := orb.Point{s.Lon, s.Lat}
		n := len(out)
		if n == 0 || out[n-1].line != l.Line || out[n-1].end != l.Index-1 {
			out = append(out, segment{line: l.Line, start: l.Index})
			n++
		}
		out[n-1].end = l.Index
		if track.ValidCoordinate(pt) {
			out[n-1].points = append(out[n-1].points, pt)
		}
	}

	kept := out[:0]
	for _, seg := range out {
		if len(seg.points) > 0 {
			kept = append(kept, seg)
		}
	}
	return kept
}

func (s segment) feature(vehicle string, candidates *matching.CandidateTable) *geojson.Feature {
	var g orb.Geometry = s.points
	if len(s.points) == 1 {
		g = s.points[0]
	}
	coords := make([][]float64, len(s.points))
	for i, pt := range s.points {
		coords[i] = []float64{pt[1], pt[0]}
	}

	f := geojson.NewFeature(g)
	f.Properties["vehicle_id"] = vehicle
	f.Properties["line_id"] = s.line.LineID
	f.Properties["direction"] = s.line.Direction
	f.Properties["start_index"] = s.start
	f.Properties["end_index"] = s.end
	f.Properties["polyline"] = string(polyline.EncodeCoords(coords))
	f.Properties["stroke"] = lineColor(s.line)
	if pct, ok := candidates.Percentage(s.line, vehicle); ok {
		f.Properties["belonging"] = pct
	}
	return f
}
