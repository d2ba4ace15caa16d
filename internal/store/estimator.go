package store

import (
	"fmt"

	"meshmap/internal/geo"
	"meshmap/internal/logs"
)

// EstimateResult reports a successful position estimate.
type EstimateResult struct {
	NodeID         string  `json:"node_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Quality        string  `json:"quality"`
	ReferenceCount int     `json:"reference_count"`
}

// NeighborDistance is one usable reference: a directly-connected node and
// the distance estimate to it.
type NeighborDistance struct {
	Node           *Node
	Connection     *Connection
	DistanceMeters float64
	// Method is "gps" when both endpoints have confirmed coordinates,
	// otherwise "rssi" (free-space path-loss from the link's average RSSI).
	Method string
}

// NodeNeighbors resolves the node's current radio adjacency together with
// per-neighbor distance estimates. Every connected neighbor is returned;
// the estimator separately filters to confirmed-position ones.
func (s *Store) NodeNeighbors(nodeID string) ([]*NeighborDistance, error) {
	self, err := s.GetNode(nodeID)
	if err != nil {
		return nil, err
	}

	conns, err := s.Connections(ConnectionQuery{NodeIDs: []string{nodeID}})
	if err != nil {
		return nil, err
	}

	neighbors := []*NeighborDistance{}
	for _, conn := range conns {
		neighborID := conn.ToNode
		if neighborID == nodeID {
			neighborID = conn.FromNode
		}
		if neighborID == nodeID {
			continue
		}
		neighbor, err := s.GetNode(neighborID)
		if err == ErrNodeNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}

		nd := &NeighborDistance{
			Node:           neighbor,
			Connection:     conn,
			DistanceMeters: geo.DistanceFromRSSI(conn.AvgRSSI, s.txPowerDBm),
			Method:         "rssi",
		}
		if self.HasConfirmedPosition() && neighbor.HasConfirmedPosition() {
			nd.DistanceMeters = geo.Haversine(
				geo.Point{Lat: *self.Latitude, Lon: *self.Longitude},
				geo.Point{Lat: *neighbor.Latitude, Lon: *neighbor.Longitude},
			)
			nd.Method = "gps"
		}
		neighbors = append(neighbors, nd)
	}
	return neighbors, nil
}

// TriangulateNode attempts to place a node from its confirmed-position
// neighbors. It returns (nil, nil) when no estimate can be produced: node
// already confirmed, or fewer than two usable references. Only neighbors
// whose own position is confirmed count as references; estimated and
// triangulated neighbors would compound error. The result is persisted
// before it is returned; a persistence failure yields no estimate and
// leaves prior state intact.
func (s *Store) TriangulateNode(nodeID string) (*EstimateResult, error) {
	node, err := s.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if node.HasConfirmedPosition() {
		return nil, nil
	}

	neighbors, err := s.NodeNeighbors(nodeID)
	if err != nil {
		return nil, fmt.Errorf("resolve neighbors of %s: %w", nodeID, err)
	}

	refs := []geo.Point{}
	for _, nd := range neighbors {
		if !nd.Node.HasConfirmedPosition() {
			continue
		}
		refs = append(refs, geo.Point{Lat: *nd.Node.Latitude, Lon: *nd.Node.Longitude})
	}

	pos, quality, ok := geo.Trilaterate(refs)
	if !ok {
		return nil, nil
	}

	if err := s.setEstimatedPosition(nodeID, pos.Lat, pos.Lon, quality); err != nil {
		return nil, err
	}
	s.notifier.OnNodeChanged(nodeID)

	return &EstimateResult{
		NodeID:         nodeID,
		Latitude:       pos.Lat,
		Longitude:      pos.Lon,
		Quality:        quality,
		ReferenceCount: len(refs),
	}, nil
}

// maybeEstimate runs triangulation as an upsert side effect. Errors are
// logged and absorbed so ingestion never stalls on estimation problems.
func (s *Store) maybeEstimate(nodeID string) {
	result, err := s.TriangulateNode(nodeID)
	if err != nil {
		s.logWarn(err, "position estimation failed", map[string]any{"node_id": nodeID})
		return
	}
	if result != nil {
		logs.L().WithFields(map[string]any{
			"node_id": result.NodeID,
			"lat":     result.Latitude,
			"lon":     result.Longitude,
			"quality": result.Quality,
			"refs":    result.ReferenceCount,
		}).Info("estimated node position")
	}
}
