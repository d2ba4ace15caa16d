package store

import (
	"fmt"
	"time"
)

// Packet is one row of the append-only packet log. Rows are written once
// at ingestion and never mutated. RxSNR and RxRSSI of zero mean the
// gateway reported no reception metrics (the message was not a direct RF
// reception); that zero-as-absent convention is inherited from the radio
// side and kept deliberately.
type Packet struct {
	RowID       int64   `json:"id"`
	PacketID    string  `json:"packet_id"`
	FromNode    string  `json:"from_node"`
	ToNode      string  `json:"to_node"`
	GatewayID   string  `json:"gateway_id"`
	PortNum     *int64  `json:"portnum"`
	Channel     int64   `json:"channel"`
	HopLimit    int64   `json:"hop_limit"`
	WantAck     bool    `json:"want_ack"`
	RxTime      int64   `json:"rx_time"`
	RxSNR       float64 `json:"rx_snr"`
	RxRSSI      int64   `json:"rx_rssi"`
	PayloadType string  `json:"payload_type"`
	PayloadData string  `json:"payload_data"`
	Timestamp   int64   `json:"timestamp"`
}

// AppendPacket inserts a packet into the log and fills in its assigned row
// id and ingestion timestamp.
func (s *Store) AppendPacket(p *Packet) error {
	s.mu.Lock()
	if p.Timestamp == 0 {
		p.Timestamp = s.now().Unix()
	}
	if p.PayloadType == "" {
		p.PayloadType = "unknown"
	}
	if p.PayloadData == "" {
		p.PayloadData = "{}"
	}

	res, err := s.db.Exec(`
		INSERT INTO packets (
			packet_id, from_node, to_node, gateway_id, portnum, channel,
			hop_limit, want_ack, rx_time, rx_snr, rx_rssi,
			payload_type, payload_data, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PacketID, p.FromNode, p.ToNode, p.GatewayID, p.PortNum, p.Channel,
		p.HopLimit, p.WantAck, p.RxTime, p.RxSNR, p.RxRSSI,
		p.PayloadType, p.PayloadData, p.Timestamp,
	)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("append packet %s: %w", p.PacketID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		p.RowID = id
	}
	s.mu.Unlock()

	s.notifier.OnPacketReceived(p)
	return nil
}

const packetColumns = `id, packet_id, from_node, to_node, gateway_id, portnum,
	channel, hop_limit, want_ack, rx_time, rx_snr, rx_rssi,
	payload_type, payload_data, timestamp`

func (s *Store) queryPackets(query string, args ...any) ([]*Packet, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	defer rows.Close()

	packets := []*Packet{}
	for rows.Next() {
		var p Packet
		err := rows.Scan(
			&p.RowID, &p.PacketID, &p.FromNode, &p.ToNode, &p.GatewayID,
			&p.PortNum, &p.Channel, &p.HopLimit, &p.WantAck, &p.RxTime,
			&p.RxSNR, &p.RxRSSI, &p.PayloadType, &p.PayloadData, &p.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan packet: %w", err)
		}
		packets = append(packets, &p)
	}
	return packets, rows.Err()
}

// RecentPackets returns the newest packets, bounded by limit.
func (s *Store) RecentPackets(limit int) ([]*Packet, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryPackets(`SELECT `+packetColumns+` FROM packets
		ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

// PacketsByNode returns packets referencing the node as sender, addressed
// destination, or receiving gateway, within the trailing window.
func (s *Store) PacketsByNode(nodeID string, window time.Duration) ([]*Packet, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := s.now().Add(-window).Unix()
	return s.queryPackets(`SELECT `+packetColumns+` FROM packets
		WHERE (from_node = ? OR to_node = ? OR gateway_id = ?) AND timestamp >= ?
		ORDER BY timestamp DESC, id DESC`,
		nodeID, nodeID, nodeID, cutoff)
}

// TotalPacketCount returns the size of the packet log.
func (s *Store) TotalPacketCount() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM packets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count packets: %w", err)
	}
	return n, nil
}

// NetworkStats is the summary the dashboard's stats endpoint serves.
type NetworkStats struct {
	TotalNodes        int   `json:"total_nodes"`
	NodesWithPosition int   `json:"nodes_with_position"`
	ActiveConnections int   `json:"active_connections"`
	TotalPackets      int64 `json:"recent_packets"`
}

// Stats aggregates the network summary counters.
func (s *Store) Stats() (*NetworkStats, error) {
	nodes, err := s.ListNodes()
	if err != nil {
		return nil, err
	}
	positioned, err := s.ListNodesWithPosition()
	if err != nil {
		return nil, err
	}
	conns, err := s.Connections(ConnectionQuery{})
	if err != nil {
		return nil, err
	}
	total, err := s.TotalPacketCount()
	if err != nil {
		return nil, err
	}
	return &NetworkStats{
		TotalNodes:        len(nodes),
		NodesWithPosition: len(positioned),
		ActiveConnections: len(conns),
		TotalPackets:      total,
	}, nil
}
