// Command meshgraph renders the derived radio-connection graph as a
// standalone HTML page using go-echarts.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"meshmap/internal/logs"
	"meshmap/internal/store"
)

func main() {
	dbPath := flag.String("db", "meshmap.db", "SQLite database path")
	output := flag.String("o", "meshgraph.html", "output HTML path")
	windowHours := flag.Int("window", 0, "connection lookback in hours (0 = store default)")
	flag.Parse()
	logs.Mute()

	db, err := store.Open(*dbPath, store.Options{})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	conns, err := db.Connections(store.ConnectionQuery{WindowHours: *windowHours})
	if err != nil {
		log.Fatalf("list connections: %v", err)
	}
	if len(conns) == 0 {
		log.Fatal("no connections in window; nothing to draw")
	}

	nodes, links := buildGraph(db, conns)

	graph := charts.NewGraph()
	graph.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Mesh Connection Graph", Width: "1200px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Mesh Connection Graph",
			Subtitle: fmt.Sprintf("nodes=%d links=%d", len(nodes), len(links)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	graph.AddSeries("mesh", nodes, links,
		charts.WithGraphChartOpts(opts.GraphChart{
			Layout: "force",
			Force:  &opts.GraphForce{Repulsion: 400},
			Roam:   opts.Bool(true),
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
	)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create %s: %v", *output, err)
	}
	defer f.Close()
	if err := graph.Render(f); err != nil {
		log.Fatalf("render graph: %v", err)
	}
	log.Printf("✓ wrote %s", *output)
}

// buildGraph turns connections into echarts nodes and links. Node symbol
// size scales with degree so hubs stand out.
func buildGraph(db *store.Store, conns []*store.Connection) ([]opts.GraphNode, []opts.GraphLink) {
	degree := map[string]int{}
	for _, c := range conns {
		degree[c.FromNode]++
		degree[c.ToNode]++
	}

	nodes := make([]opts.GraphNode, 0, len(degree))
	for id, deg := range degree {
		name := id
		if n, err := db.GetNode(id); err == nil && n.LongName != nil && *n.LongName != "" {
			name = *n.LongName
		}
		nodes = append(nodes, opts.GraphNode{
			Name:       name,
			SymbolSize: 10 + deg*4,
			Value:      float32(deg),
		})
	}

	nameOf := func(id string) string {
		if n, err := db.GetNode(id); err == nil && n.LongName != nil && *n.LongName != "" {
			return *n.LongName
		}
		return id
	}

	links := make([]opts.GraphLink, 0, len(conns))
	for _, c := range conns {
		links = append(links, opts.GraphLink{
			Source: nameOf(c.FromNode),
			Target: nameOf(c.ToNode),
			Value:  float32(c.PacketCount),
		})
	}
	return nodes, links
}
