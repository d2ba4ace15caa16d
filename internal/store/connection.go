package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"meshmap/internal/meshproto"
)

// BroadcastID is the hex form of the all-nodes destination address.
const BroadcastID = "ffffffff"

// Connection is one directed radio adjacency: packets transmitted by
// FromNode and decoded off the air by ToNode (the gateway that heard
// them). Connections are derived from the packet log on demand, never
// stored.
type Connection struct {
	FromNode    string  `json:"from_node"`
	ToNode      string  `json:"to_node"`
	PacketCount int     `json:"packet_count"`
	AvgSNR      float64 `json:"avg_snr"`
	AvgRSSI     float64 `json:"avg_rssi"`
	MinSNR      float64 `json:"min_snr"`
	MaxSNR      float64 `json:"max_snr"`
	MinRSSI     float64 `json:"min_rssi"`
	MaxRSSI     float64 `json:"max_rssi"`
	LastSeen    int64   `json:"last_seen"`
}

// ConnectionQuery filters connection inference. The zero value means all
// connections within the default window.
type ConnectionQuery struct {
	// NodeIDs restricts to connections where any listed node appears as
	// sender or gateway. Takes precedence over FromNode/ToNode.
	NodeIDs []string

	// FromNode/ToNode restrict one side of the pair.
	FromNode string
	ToNode   string

	// WindowHours is the trailing lookback; zero means the store default.
	WindowHours int
}

type connGroup struct {
	snrs     []float64
	rssis    []float64
	lastSeen int64
}

// Connections scans the packet log and aggregates direct RF receptions
// into the adjacency graph. A row qualifies when it has non-zero SNR and
// RSSI (zero means the gateway reported no reception metrics), a gateway
// different from the sender, a non-broadcast destination, is inside the
// window, and is not diagnostic traffic. The gateway is the true RF
// receiver, so grouping is by (sender, gateway) regardless of the
// addressed destination. Groups with a single packet are suppressed as
// reception noise.
func (s *Store) Connections(q ConnectionQuery) ([]*Connection, error) {
	windowHours := q.WindowHours
	if windowHours <= 0 {
		windowHours = s.windowHours
	}
	cutoff := s.now().Add(-time.Duration(windowHours) * time.Hour).Unix()

	// The cheap row filters run in SQL; the grouping rules live here.
	query := `
		SELECT from_node, gateway_id, rx_snr, rx_rssi, timestamp
		FROM packets
		WHERE rx_snr != 0
		  AND rx_rssi != 0
		  AND gateway_id != ''
		  AND from_node != gateway_id
		  AND to_node != ?
		  AND timestamp >= ?
		  AND payload_type != ?`
	args := []any{BroadcastID, cutoff, meshproto.TypeTraceroute}

	switch {
	case len(q.NodeIDs) > 0:
		ph := strings.TrimSuffix(strings.Repeat("?,", len(q.NodeIDs)), ",")
		query += ` AND (from_node IN (` + ph + `) OR gateway_id IN (` + ph + `))`
		for _, id := range q.NodeIDs {
			args = append(args, id)
		}
		for _, id := range q.NodeIDs {
			args = append(args, id)
		}
	default:
		if q.FromNode != "" {
			query += ` AND from_node = ?`
			args = append(args, q.FromNode)
		}
		if q.ToNode != "" {
			query += ` AND gateway_id = ?`
			args = append(args, q.ToNode)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	groups := map[[2]string]*connGroup{}
	for rows.Next() {
		var from, gateway string
		var snr float64
		var rssi int64
		var ts int64
		if err := rows.Scan(&from, &gateway, &snr, &rssi, &ts); err != nil {
			return nil, fmt.Errorf("scan connection row: %w", err)
		}
		key := [2]string{stripBang(from), stripBang(gateway)}
		// A bang-prefixed gateway id can alias the sender past the SQL
		// from_node != gateway_id filter.
		if key[0] == key[1] {
			continue
		}
		g := groups[key]
		if g == nil {
			g = &connGroup{}
			groups[key] = g
		}
		g.snrs = append(g.snrs, snr)
		g.rssis = append(g.rssis, float64(rssi))
		if ts > g.lastSeen {
			g.lastSeen = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read connection rows: %w", err)
	}

	conns := []*Connection{}
	for key, g := range groups {
		// One reception could be an atmospheric fluke.
		if len(g.snrs) < 2 {
			continue
		}
		conns = append(conns, &Connection{
			FromNode:    key[0],
			ToNode:      key[1],
			PacketCount: len(g.snrs),
			AvgSNR:      stat.Mean(g.snrs, nil),
			AvgRSSI:     stat.Mean(g.rssis, nil),
			MinSNR:      floats.Min(g.snrs),
			MaxSNR:      floats.Max(g.snrs),
			MinRSSI:     floats.Min(g.rssis),
			MaxRSSI:     floats.Max(g.rssis),
			LastSeen:    g.lastSeen,
		})
	}

	sort.Slice(conns, func(i, j int) bool {
		if conns[i].PacketCount != conns[j].PacketCount {
			return conns[i].PacketCount > conns[j].PacketCount
		}
		if conns[i].LastSeen != conns[j].LastSeen {
			return conns[i].LastSeen > conns[j].LastSeen
		}
		return conns[i].FromNode+conns[i].ToNode < conns[j].FromNode+conns[j].ToNode
	})
	return conns, nil
}

// stripBang removes the "!" prefix some gateways put in front of node ids.
func stripBang(id string) string {
	return strings.TrimPrefix(id, "!")
}
