// Package osm builds reference line paths from OpenStreetMap public
// transport route relations.
package osm

import (
	"strconv"

	"github.com/paulmach/orb"
)

type OsmWayId int64

type OsmNodeId int64

type OsmNode struct {
	ID  OsmNodeId
	Lat float64
	Lon float64
}

type OsmWay struct {
	ID    OsmWayId
	Nodes []OsmNodeId
}

// RouteMember is one way of a route relation with its role.
type RouteMember struct {
	Way  OsmWayId
	Role string
}

// RouteRelation is a type=route relation for a transit mode.
type RouteRelation struct {
	ID      int64
	Ref     string
	Name    string
	Mode    string
	Members []RouteMember
}

// LineID names the line: the ref tag, or the relation id when it has none.
func (r *RouteRelation) LineID() string {
	if r.Ref != "" {
		return r.Ref
	}
	return strconv.FormatInt(r.ID, 10)
}

// OsmGraph holds what LoadRoutes keeps from a PBF file.
type OsmGraph struct {
	Nodes     map[int64]*OsmNode
	Ways      map[int64]*OsmWay
	Relations []*RouteRelation
}

// buildLineString creates a LineString geometry from a slice of node IDs.
// Nodes missing from the extract are skipped.
func buildLineString(nodeIDs []OsmNodeId, nodes map[int64]*OsmNode) orb.LineString {
	geom := make(orb.LineString, 0, len(nodeIDs))
	for _, nid := range nodeIDs {
		if node, ok := nodes[int64(nid)]; ok {
			geom = append(geom, orb.Point{node.Lon, node.Lat})
		}
	}
	return geom
}
