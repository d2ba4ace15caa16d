// Command seed-demo populates a database with a small demo mesh around
// Portugal, for exercising the dashboard without a live broker.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"meshmap/internal/logs"
	"meshmap/internal/store"
)

type demoNode struct {
	id, longName, shortName string
	hwModel, role           int64
	lat, lon, alt           float64
	battery                 int64
	voltage                 float64
}

var demoNodes = []demoNode{
	{"4a1b2c3d", "Lisbon Gateway", "LIS1", 1, 1, 38.7223, -9.1393, 50, 95, 4.1},
	{"5e2f3a4b", "Porto Node", "PRT1", 2, 2, 41.1579, -8.6291, 100, 78, 3.8},
	{"6f3a4b5c", "Coimbra Station", "CBR1", 1, 2, 40.2033, -8.4103, 75, 82, 3.9},
	{"7a4b5c6d", "Faro Beach Node", "FAR1", 3, 2, 37.0194, -7.9322, 10, 89, 4.0},
	{"8b5c6d7e", "Braga Mountain", "BRG1", 2, 2, 41.5518, -8.4229, 250, 72, 3.7},
}

// demoLinks are the radio adjacencies to fabricate, with baseline SNR/RSSI.
var demoLinks = []struct {
	from, to string
	snr      float64
	rssi     int64
}{
	{"4a1b2c3d", "6f3a4b5c", 8.5, -65},
	{"6f3a4b5c", "5e2f3a4b", 12.2, -58},
	{"5e2f3a4b", "8b5c6d7e", 15.1, -52},
	{"4a1b2c3d", "7a4b5c6d", 6.8, -75},
	{"6f3a4b5c", "7a4b5c6d", 9.3, -68},
	// The unpositioned node hears Lisbon and Coimbra; triangulation will
	// place it between them.
	{"cafe0000", "4a1b2c3d", 7.0, -72},
	{"cafe0000", "6f3a4b5c", 6.2, -78},
}

var textPayloads = []string{
	`{"type":"text_message","message":"Hello from the network!"}`,
	`{"type":"text_message","message":"Anyone near Coimbra?"}`,
	`{"type":"text_message","message":"Solar node back online"}`,
}

func main() {
	dbPath := flag.String("db", "meshmap.db", "SQLite database path")
	flag.Parse()
	logs.Mute()

	db, err := store.Open(*dbPath, store.Options{})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("creating %d demo nodes...", len(demoNodes)+1)
	for _, n := range demoNodes {
		n := n
		if err := db.UpsertNode(store.NodeUpdate{
			NodeID:        n.id,
			LongName:      &n.longName,
			ShortName:     &n.shortName,
			HardwareModel: &n.hwModel,
			Role:          &n.role,
			Latitude:      &n.lat,
			Longitude:     &n.lon,
			Altitude:      &n.alt,
			BatteryLevel:  &n.battery,
			Voltage:       &n.voltage,
		}); err != nil {
			log.Fatalf("seed node %s: %v", n.id, err)
		}
		log.Printf("  ✓ %s (%s)", n.longName, n.id)
	}

	// One node without coordinates, to show off position estimation.
	hidden := "Sintra Hills"
	short := "SNT1"
	hw := int64(9)
	if err := db.UpsertNode(store.NodeUpdate{
		NodeID: "cafe0000", LongName: &hidden, ShortName: &short, HardwareModel: &hw,
	}); err != nil {
		log.Fatalf("seed node cafe0000: %v", err)
	}
	log.Printf("  ✓ %s (cafe0000, no position)", hidden)

	log.Printf("creating %d demo links...", len(demoLinks))
	now := time.Now()
	for _, l := range demoLinks {
		count := 5 + rand.Intn(16)
		for i := 0; i < count; i++ {
			pkt := &store.Packet{
				PacketID:    fmt.Sprintf("%08x", rand.Uint32()),
				FromNode:    l.from,
				ToNode:      l.to,
				GatewayID:   l.to,
				Channel:     0,
				HopLimit:    int64(1 + rand.Intn(3)),
				RxSNR:       l.snr + rand.Float64()*4 - 2,
				RxRSSI:      l.rssi + int64(rand.Intn(21)) - 10,
				PayloadType: "text_message",
				PayloadData: textPayloads[rand.Intn(len(textPayloads))],
				Timestamp:   now.Add(-time.Duration(rand.Intn(3600)) * time.Second).Unix(),
			}
			if err := db.AppendPacket(pkt); err != nil {
				log.Fatalf("seed packet: %v", err)
			}
		}
		log.Printf("  ✓ %s → %s (%d packets)", l.from[4:], l.to[4:], count)
	}

	// Place the hidden node from its fabricated links.
	result, err := db.TriangulateNode("cafe0000")
	if err != nil {
		log.Fatalf("triangulate demo node: %v", err)
	}
	if result != nil {
		log.Printf("  ✓ placed cafe0000 at (%.4f, %.4f) [%s]",
			result.Latitude, result.Longitude, result.Quality)
	}

	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	log.Printf("demo data ready: %d nodes, %d connections, %d packets",
		stats.TotalNodes, stats.ActiveConnections, stats.TotalPackets)
}
