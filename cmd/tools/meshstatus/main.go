// Command meshstatus prints the current network state from a database:
// nodes, derived connections, and recent traffic.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"meshmap/internal/hardware"
	"meshmap/internal/logs"
	"meshmap/internal/store"
)

func main() {
	dbPath := flag.String("db", "meshmap.db", "SQLite database path")
	flag.Parse()
	logs.Mute()

	db, err := store.Open(*dbPath, store.Options{})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	nodes, err := db.ListNodes()
	if err != nil {
		log.Fatalf("list nodes: %v", err)
	}
	positioned, err := db.ListNodesWithPosition()
	if err != nil {
		log.Fatalf("list positioned nodes: %v", err)
	}
	conns, err := db.Connections(store.ConnectionQuery{})
	if err != nil {
		log.Fatalf("list connections: %v", err)
	}
	packets, err := db.RecentPackets(10)
	if err != nil {
		log.Fatalf("list packets: %v", err)
	}

	fmt.Printf("Nodes (%d total, %d with position)\n", len(nodes), len(positioned))
	fmt.Println("--------------------------------------------------")
	for i, n := range nodes {
		if i == 15 {
			fmt.Printf("  ... and %d more nodes\n", len(nodes)-15)
			break
		}
		fmt.Printf("  %s  %s\n", n.NodeID, displayName(n))
		if n.Latitude != nil && n.Longitude != nil {
			fmt.Printf("    location: %.4f, %.4f (%s)\n", *n.Latitude, *n.Longitude, n.PositionQuality)
		} else {
			fmt.Println("    location: unknown")
		}
		if n.HardwareModel != nil {
			fmt.Printf("    hardware: %s\n", hardware.ModelName(*n.HardwareModel))
		}
		if n.BatteryLevel != nil {
			fmt.Printf("    battery:  %d%%\n", *n.BatteryLevel)
		}
		fmt.Printf("    last seen: %s\n", n.LastSeenTime().Format(time.RFC3339))
	}

	fmt.Printf("\nConnections (%d total)\n", len(conns))
	fmt.Println("------------------------------")
	for i, c := range conns {
		if i == 10 {
			fmt.Printf("  ... and %d more connections\n", len(conns)-10)
			break
		}
		fmt.Printf("  %s -> %s: %d packets (SNR %.1f, RSSI %.0f)\n",
			shortID(c.FromNode), shortID(c.ToNode), c.PacketCount, c.AvgSNR, c.AvgRSSI)
	}

	fmt.Printf("\nRecent packets (%d shown)\n", len(packets))
	fmt.Println("------------------------------")
	for _, p := range packets {
		ts := time.Unix(p.Timestamp, 0).Format("2006-01-02 15:04:05")
		fmt.Printf("  [%s] %s -> %s: %s%s\n",
			ts, shortID(p.FromNode), shortID(p.ToNode), p.PayloadType, packetSummary(p))
	}
}

func displayName(n *store.Node) string {
	switch {
	case n.LongName != nil && *n.LongName != "":
		return *n.LongName
	case n.ShortName != nil && *n.ShortName != "":
		return *n.ShortName
	default:
		return "(unnamed)"
	}
}

// shortID abbreviates a node id to its last four hex digits.
func shortID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[len(id)-4:]
}

// packetSummary extracts a one-line hint from the decoded payload.
func packetSummary(p *store.Packet) string {
	var payload struct {
		Message   string   `json:"message"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Device    *struct {
			BatteryLevel *int `json:"battery_level"`
		} `json:"device_metrics"`
	}
	if err := json.Unmarshal([]byte(p.PayloadData), &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		msg := payload.Message
		if len(msg) > 30 {
			msg = msg[:30] + "..."
		}
		return fmt.Sprintf(": %q", msg)
	case payload.Latitude != nil && payload.Longitude != nil:
		return fmt.Sprintf(": (%.4f, %.4f)", *payload.Latitude, *payload.Longitude)
	case payload.Device != nil && payload.Device.BatteryLevel != nil:
		return fmt.Sprintf(": battery %d%%", *payload.Device.BatteryLevel)
	default:
		return ""
	}
}
