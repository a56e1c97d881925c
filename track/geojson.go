package track

import (
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DecodeTrajectories reads a FeatureCollection of LineString or MultiPoint
// features, one per vehicle. The vehicle is named by the "vehicle_id" (or
// "id") property; an optional "times" array holds RFC 3339 strings or unix
// seconds aligned with the coordinates, and an optional "line" property the
// line the vehicle reported, as "id" or "id:direction".
func DecodeTrajectories(data []byte) ([]Trajectory, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	out := make([]Trajectory, 0, len(fc.Features))
	for i, f := range fc.Features {
		pts, err := featurePoints(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		id := propString(f.Properties, "vehicle_id", "id")
		if id == "" {
			id = strconv.Itoa(i)
		}
		times, err := propTimes(f.Properties["times"], len(pts))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		t := Trajectory{
			ID:           id,
			Samples:      make([]Sample, len(pts)),
			ReportedLine: ParseLineKey(propString(f.Properties, "line")),
		}
		for j, pt := range pts {
			t.Samples[j] = Sample{Time: times[j], Lat: pt[1], Lon: pt[0]}
		}
		out = append(out, t)
	}
	return out, nil
}

// DecodeReferencePaths reads LineString features carrying "line_id" and an
// optional "direction" property.
func DecodeReferencePaths(data []byte) ([]ReferencePath, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	out := make([]ReferencePath, 0, len(fc.Features))
	for i, f := range fc.Features {
		pts, err := featurePoints(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		id := propString(f.Properties, "line_id", "ref", "id")
		if id == "" {
			return nil, fmt.Errorf("feature %d: missing line_id", i)
		}
		out = append(out, ReferencePath{
			Key:    LineKey{LineID: id, Direction: propString(f.Properties, "direction")},
			Points: orb.LineString(pts),
		})
	}
	return out, nil
}

// EncodeReferencePaths is the inverse of DecodeReferencePaths.
func EncodeReferencePaths(paths []ReferencePath) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, p := range paths {
		f := geojson.NewFeature(p.Points)
		f.Properties["line_id"] = p.Key.LineID
		f.Properties["direction"] = p.Key.Direction
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

func featurePoints(f *geojson.Feature) ([]orb.Point, error) {
	switch g := f.Geometry.(type) {
	case orb.LineString:
		return []orb.Point(g), nil
	case orb.MultiPoint:
		return []orb.Point(g), nil
	case orb.Point:
		return []orb.Point{g}, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", f.Geometry)
	}
}

func propString(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func propTimes(raw interface{}, n int) ([]time.Time, error) {
	times := make([]time.Time, n)
	if raw == nil {
		return times, nil
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) != n {
		return nil, fmt.Errorf("times must be an array of %d entries", n)
	}
	for i, v := range list {
		switch t := v.(type) {
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, fmt.Errorf("times[%d]: %w", i, err)
			}
			times[i] = parsed
		case float64:
			sec := int64(t)
			times[i] = time.Unix(sec, int64((t-float64(sec))*1e9)).UTC()
		default:
			return nil, fmt.Errorf("times[%d]: unsupported value %T", i, v)
		}
	}
	return times, nil
}
