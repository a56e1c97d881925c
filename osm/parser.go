package osm

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"sort"
	"strconv"

	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/track"

	"github.com/qedus/osmpbf"
)

var routeTypesList = []string{
	"bus",
	"trolleybus",
	"minibus",
	"share_taxi",
	"tram",
}

// wayRoles are the member roles that carry route geometry. Stops and
// platforms use other roles.
var wayRoles = map[string]struct{}{
	"":         {},
	"route":    {},
	"forward":  {},
	"backward": {},
}

// LoadRoutes reads an .osm.pbf extract and returns one reference path per
// transit route relation. Relations sharing a line are told apart by
// direction "0", "1", ... in relation id order.
func LoadRoutes(filePath string) ([]track.ReferencePath, error) {
	g, err := LoadOsmFile(filePath)
	if err != nil {
		return nil, err
	}
	return BuildPaths(g), nil
}

// LoadOsmFile decodes nodes, ways and transit route relations from a PBF file.
func LoadOsmFile(filePath string) (*OsmGraph, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := osmpbf.NewDecoder(f)

	// use more memory from the start, it is faster
	d.SetBufferSize(osmpbf.MaxBlobSize)

	// start decoding with several goroutines, it is faster
	if err := d.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	modes := make(map[string]struct{}, len(routeTypesList))
	for _, m := range routeTypesList {
		modes[m] = struct{}{}
	}

	g := &OsmGraph{
		Nodes: make(map[int64]*OsmNode),
		Ways:  make(map[int64]*OsmWay),
	}
	var rc uint64
	for {
		v, err := d.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
		}
		switch v := v.(type) {
		case *osmpbf.Node:
			g.Nodes[v.ID] = &OsmNode{ID: OsmNodeId(v.ID), Lat: v.Lat, Lon: v.Lon}
		case *osmpbf.Way:
			nodeIDs := make([]OsmNodeId, len(v.NodeIDs))
			for i, id := range v.NodeIDs {
				nodeIDs[i] = OsmNodeId(id)
			}
			g.Ways[v.ID] = &OsmWay{ID: OsmWayId(v.ID), Nodes: nodeIDs}
		case *osmpbf.Relation:
			rc++
			if v.Tags["type"] != "route" {
				continue
			}
			if _, ok := modes[v.Tags["route"]]; !ok {
				continue
			}
			rel := &RouteRelation{
				ID:   v.ID,
				Ref:  v.Tags["ref"],
				Name: v.Tags["name"],
				Mode: v.Tags["route"],
			}
			for _, m := range v.Members {
				if m.Type != osmpbf.WayType {
					continue
				}
				if _, ok := wayRoles[m.Role]; !ok {
					continue
				}
				rel.Members = append(rel.Members, RouteMember{Way: OsmWayId(m.ID), Role: m.Role})
			}
			g.Relations = append(g.Relations, rel)
		default:
			return nil, fmt.Errorf("unknown type %T", v)
		}
	}

	monitoring.Infof("osm: %d nodes, %d ways, %d relations (%d transit routes)",
		len(g.Nodes), len(g.Ways), rc, len(g.Relations))
	return g, nil
}

// BuildPaths stitches the member ways of every route relation into one path.
// Relations whose ways are all missing from the extract are skipped.
func BuildPaths(g *OsmGraph) []track.ReferencePath {
	rels := slices.Clone(g.Relations)
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })

	nextDirection := make(map[string]int)
	var out []track.ReferencePath
	for _, rel := range rels {
		segments := make([][]OsmNodeId, 0, len(rel.Members))
		for _, m := range rel.Members {
			way, ok := g.Ways[int64(m.Way)]
			if !ok || len(way.Nodes) == 0 {
				continue
			}
			nodes := way.Nodes
			if m.Role == "backward" {
				nodes = reversed(nodes)
			}
			segments = append(segments, nodes)
		}
		line := buildLineString(stitch(segments), g.Nodes)
		if len(line) == 0 {
			monitoring.Warnf("osm: route relation %d (%s) has no geometry in the extract", rel.ID, rel.Name)
			continue
		}

		id := rel.LineID()
		dir := nextDirection[id]
		nextDirection[id]++
		out = append(out, track.ReferencePath{
			Key:    track.LineKey{LineID: id, Direction: strconv.Itoa(dir)},
			Points: line,
		})
	}
	return out
}

// stitch joins way node sequences in member order into one node sequence.
// Each segment is flipped when that makes it continue from the previous end;
// the first one is flipped when only its start touches the second segment.
// Shared junction nodes appear once. Disconnected segments are appended as is.
func stitch(segments [][]OsmNodeId) []OsmNodeId {
	if len(segments) == 0 {
		return nil
	}
	out := slices.Clone(segments[0])
	if len(segments) > 1 {
		next := segments[1]
		first, last := out[0], out[len(out)-1]
		if first != last && (first == next[0] || first == next[len(next)-1]) && last != next[0] && last != next[len(next)-1] {
			out = reversed(out)
		}
	}
	for _, seg := range segments[1:] {
		end := out[len(out)-1]
		switch {
		case seg[0] == end:
			out = append(out, seg[1:]...)
		case seg[len(seg)-1] == end:
			out = append(out, reversed(seg)[1:]...)
		default:
			out = append(out, seg...)
		}
	}
	return out
}

func reversed(ids []OsmNodeId) []OsmNodeId {
	out := slices.Clone(ids)
	slices.Reverse(out)
	return out
}
