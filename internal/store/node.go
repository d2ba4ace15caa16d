package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"meshmap/internal/geo"
)

// Node is one radio device in the mesh. Optional fields are pointers: nil
// means the value has never been reported.
type Node struct {
	NodeID          string   `json:"node_id"`
	LongName        *string  `json:"long_name"`
	ShortName       *string  `json:"short_name"`
	HardwareModel   *int64   `json:"hardware_model"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Altitude        *float64 `json:"altitude"`
	PositionQuality string   `json:"position_quality"`
	BatteryLevel    *int64   `json:"battery_level"`
	Voltage         *float64 `json:"voltage"`
	SNR             *float64 `json:"snr"`
	RSSI            *int64   `json:"rssi"`
	Channel         *int64   `json:"channel"`
	FirmwareVersion *string  `json:"firmware_version"`
	Role            *int64   `json:"role"`
	IsLicensed      *bool    `json:"is_licensed"`
	LastSeen        int64    `json:"last_seen"`
}

// HasConfirmedPosition reports whether the node carries device-reported
// coordinates that must never be overwritten by estimates.
func (n *Node) HasConfirmedPosition() bool {
	return n.Latitude != nil && n.Longitude != nil &&
		n.PositionQuality == geo.QualityConfirmed
}

// NodeUpdate is a partial set of node fields. Nil members are left
// untouched on an existing node; a later message omitting a field never
// nulls out an earlier value.
type NodeUpdate struct {
	NodeID          string
	LongName        *string
	ShortName       *string
	HardwareModel   *int64
	Latitude        *float64
	Longitude       *float64
	Altitude        *float64
	BatteryLevel    *int64
	Voltage         *float64
	SNR             *float64
	RSSI            *int64
	Channel         *int64
	FirmwareVersion *string
	Role            *int64
	IsLicensed      *bool
}

// fieldPairs lists the updatable columns with their supplied values, in
// schema order. Nil values are skipped by the upsert.
func (u *NodeUpdate) fieldPairs() []struct {
	column string
	value  any
	set    bool
} {
	return []struct {
		column string
		value  any
		set    bool
	}{
		{"long_name", deref(u.LongName), u.LongName != nil},
		{"short_name", deref(u.ShortName), u.ShortName != nil},
		{"hardware_model", deref(u.HardwareModel), u.HardwareModel != nil},
		{"latitude", deref(u.Latitude), u.Latitude != nil},
		{"longitude", deref(u.Longitude), u.Longitude != nil},
		{"altitude", deref(u.Altitude), u.Altitude != nil},
		{"battery_level", deref(u.BatteryLevel), u.BatteryLevel != nil},
		{"voltage", deref(u.Voltage), u.Voltage != nil},
		{"snr", deref(u.SNR), u.SNR != nil},
		{"rssi", deref(u.RSSI), u.RSSI != nil},
		{"channel", deref(u.Channel), u.Channel != nil},
		{"firmware_version", deref(u.FirmwareVersion), u.FirmwareVersion != nil},
		{"role", deref(u.Role), u.Role != nil},
		{"is_licensed", deref(u.IsLicensed), u.IsLicensed != nil},
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// UpsertNode creates the node on first reference or merges the supplied
// fields into the existing row. Both coordinates arriving together mark
// the position confirmed; a node already confirmed is never downgraded.
// last_seen always refreshes. After a successful write the store attempts
// position estimation for any node still lacking a confirmed position;
// estimation problems are logged and absorbed, never returned.
func (s *Store) UpsertNode(u NodeUpdate) error {
	if u.NodeID == "" {
		return fmt.Errorf("store: upsert with empty node id")
	}

	if err := s.applyUpsert(u); err != nil {
		return err
	}

	s.notifier.OnNodeChanged(u.NodeID)

	// Estimation is best effort and must not fail the upsert.
	node, err := s.GetNode(u.NodeID)
	if err != nil {
		s.logWarn(err, "re-read after upsert failed", map[string]any{"node_id": u.NodeID})
		return nil
	}
	if !node.HasConfirmedPosition() {
		s.maybeEstimate(u.NodeID)
	}
	return nil
}

func (s *Store) applyUpsert(u NodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()

	var exists bool
	err := s.db.QueryRow(`SELECT 1 FROM nodes WHERE node_id = ?`, u.NodeID).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		return s.insertNode(u, now)
	case err != nil:
		return fmt.Errorf("check node %s: %w", u.NodeID, err)
	}

	sets := []string{"last_seen = ?"}
	args := []any{now}
	for _, f := range u.fieldPairs() {
		if f.set {
			sets = append(sets, f.column+" = ?")
			args = append(args, f.value)
		}
	}
	if u.Latitude != nil && u.Longitude != nil {
		// Device-reported coordinates are the one path to confirmed.
		sets = append(sets, "position_quality = ?")
		args = append(args, geo.QualityConfirmed)
	}
	args = append(args, u.NodeID)

	query := "UPDATE nodes SET " + strings.Join(sets, ", ") + " WHERE node_id = ?"
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update node %s: %w", u.NodeID, err)
	}
	return nil
}

func (s *Store) insertNode(u NodeUpdate, now int64) error {
	quality := geo.QualityUnknown
	if u.Latitude != nil && u.Longitude != nil {
		quality = geo.QualityConfirmed
	}

	_, err := s.db.Exec(`
		INSERT INTO nodes (
			node_id, long_name, short_name, hardware_model,
			latitude, longitude, altitude, position_quality,
			battery_level, voltage, snr, rssi, channel,
			firmware_version, role, is_licensed, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.NodeID, deref(u.LongName), deref(u.ShortName), deref(u.HardwareModel),
		deref(u.Latitude), deref(u.Longitude), deref(u.Altitude), quality,
		deref(u.BatteryLevel), deref(u.Voltage), deref(u.SNR), deref(u.RSSI),
		deref(u.Channel), deref(u.FirmwareVersion), deref(u.Role),
		deref(u.IsLicensed), now,
	)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", u.NodeID, err)
	}
	return nil
}

// setEstimatedPosition persists an estimator result. It is a direct field
// update with a quality guard in the WHERE clause, so it can never touch a
// node whose position is confirmed.
func (s *Store) setEstimatedPosition(nodeID string, lat, lon float64, quality string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE nodes SET latitude = ?, longitude = ?, position_quality = ?
		WHERE node_id = ? AND position_quality != ?`,
		lat, lon, quality, nodeID, geo.QualityConfirmed,
	)
	if err != nil {
		return fmt.Errorf("persist estimate for %s: %w", nodeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("persist estimate for %s: node missing or confirmed", nodeID)
	}
	return nil
}

const nodeColumns = `node_id, long_name, short_name, hardware_model,
	latitude, longitude, altitude, position_quality,
	battery_level, voltage, snr, rssi, channel,
	firmware_version, role, is_licensed, last_seen`

func scanNode(row interface{ Scan(...any) error }) (*Node, error) {
	var n Node
	err := row.Scan(
		&n.NodeID, &n.LongName, &n.ShortName, &n.HardwareModel,
		&n.Latitude, &n.Longitude, &n.Altitude, &n.PositionQuality,
		&n.BatteryLevel, &n.Voltage, &n.SNR, &n.RSSI, &n.Channel,
		&n.FirmwareVersion, &n.Role, &n.IsLicensed, &n.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNode returns the node with the given id, or ErrNodeNotFound.
func (s *Store) GetNode(nodeID string) (*Node, error) {
	row := s.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE node_id = ?`, nodeID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", nodeID, err)
	}
	return n, nil
}

// ListNodes returns all nodes, most recently seen first.
func (s *Store) ListNodes() ([]*Node, error) {
	return s.queryNodes(`SELECT ` + nodeColumns + ` FROM nodes ORDER BY last_seen DESC`)
}

// ListNodesWithPosition returns only nodes that have coordinates of any
// quality, most recently seen first.
func (s *Store) ListNodesWithPosition() ([]*Node, error) {
	return s.queryNodes(`SELECT ` + nodeColumns + ` FROM nodes
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY last_seen DESC`)
}

func (s *Store) queryNodes(query string, args ...any) ([]*Node, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []*Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// SearchNodes matches term case-insensitively against node id and both
// display names. Exact id matches rank first, then prefix matches, then
// the rest; ties break by most recently seen. Terms shorter than two
// characters return nothing. At most 10 results.
func (s *Store) SearchNodes(term string) ([]*Node, error) {
	if len(strings.TrimSpace(term)) < 2 {
		return []*Node{}, nil
	}
	term = strings.TrimSpace(term)
	sub := "%" + term + "%"
	prefix := term + "%"

	return s.queryNodes(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE node_id LIKE ? OR long_name LIKE ? OR short_name LIKE ?
		ORDER BY
			CASE
				WHEN node_id = ? THEN 1
				WHEN node_id LIKE ? THEN 2
				WHEN long_name LIKE ? THEN 3
				WHEN short_name LIKE ? THEN 4
				ELSE 5
			END,
			last_seen DESC
		LIMIT 10`,
		sub, sub, sub, term, prefix, prefix, prefix)
}

// LastSeenTime is a convenience for presentation layers.
func (n *Node) LastSeenTime() time.Time {
	return time.Unix(n.LastSeen, 0)
}
