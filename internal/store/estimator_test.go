package store

import (
	"testing"

	"meshmap/internal/geo"
)

// linkTo makes the target's transmissions audible at the gateway, enough
// times to clear the noise threshold.
func linkTo(t *testing.T, s *Store, target, gateway string, rssi int64) {
	t.Helper()
	addRF(t, s, target, gateway, 8, rssi)
	addRF(t, s, target, gateway, 8, rssi)
}

func TestTriangulateTwoReferences(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001", Latitude: f64p(0), Longitude: f64p(0)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002", Latitude: f64p(2), Longitude: f64p(2)})
	s.UpsertNode(NodeUpdate{NodeID: "cafe0000"})
	linkTo(t, s, "cafe0000", "aaaa0001", -70)
	linkTo(t, s, "cafe0000", "aaaa0002", -70)

	res, err := s.TriangulateNode("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("no estimate with two confirmed references")
	}
	if res.Quality != geo.QualityEstimated || res.ReferenceCount != 2 {
		t.Errorf("quality %q refs %d", res.Quality, res.ReferenceCount)
	}
	if res.Latitude != 1 || res.Longitude != 1 {
		t.Errorf("midpoint = (%v, %v), want (1, 1)", res.Latitude, res.Longitude)
	}

	n, err := s.GetNode("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if n.PositionQuality != geo.QualityEstimated || n.Latitude == nil || *n.Latitude != 1 {
		t.Errorf("estimate not persisted: %+v", n)
	}
}

func TestTriangulateThreeReferences(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001", Latitude: f64p(0), Longitude: f64p(0)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002", Latitude: f64p(0), Longitude: f64p(3)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0003", Latitude: f64p(3), Longitude: f64p(0)})
	s.UpsertNode(NodeUpdate{NodeID: "cafe0000"})
	linkTo(t, s, "cafe0000", "aaaa0001", -70)
	linkTo(t, s, "cafe0000", "aaaa0002", -70)
	linkTo(t, s, "cafe0000", "aaaa0003", -70)

	res, err := s.TriangulateNode("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("no estimate with three confirmed references")
	}
	if res.Quality != geo.QualityTriangulated || res.ReferenceCount != 3 {
		t.Errorf("quality %q refs %d", res.Quality, res.ReferenceCount)
	}
	if res.Latitude != 1 || res.Longitude != 1 {
		t.Errorf("centroid = (%v, %v), want (1, 1)", res.Latitude, res.Longitude)
	}
}

func TestTriangulateNeedsConfirmedReferences(t *testing.T) {
	s, _ := newTestStore(t)

	// One confirmed neighbor, one merely estimated. Not enough.
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001", Latitude: f64p(0), Longitude: f64p(0)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002"})
	if err := s.setEstimatedPosition("aaaa0002", 2, 2, geo.QualityEstimated); err != nil {
		t.Fatal(err)
	}
	s.UpsertNode(NodeUpdate{NodeID: "cafe0000"})
	linkTo(t, s, "cafe0000", "aaaa0001", -70)
	linkTo(t, s, "cafe0000", "aaaa0002", -70)

	res, err := s.TriangulateNode("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("estimated neighbor counted as reference: %+v", res)
	}

	n, _ := s.GetNode("cafe0000")
	if n.PositionQuality != geo.QualityUnknown {
		t.Errorf("quality = %q, want unknown", n.PositionQuality)
	}
}

func TestTriangulateConfirmedNodeIsNoop(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001", Latitude: f64p(0), Longitude: f64p(0)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002", Latitude: f64p(2), Longitude: f64p(2)})
	s.UpsertNode(NodeUpdate{NodeID: "cafe0000", Latitude: f64p(5), Longitude: f64p(5)})
	linkTo(t, s, "cafe0000", "aaaa0001", -70)
	linkTo(t, s, "cafe0000", "aaaa0002", -70)

	res, err := s.TriangulateNode("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("confirmed node re-estimated: %+v", res)
	}

	n, _ := s.GetNode("cafe0000")
	if *n.Latitude != 5 {
		t.Errorf("confirmed coordinates disturbed: %v", *n.Latitude)
	}
}

func TestUpsertTriggersEstimation(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001", Latitude: f64p(0), Longitude: f64p(0)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002", Latitude: f64p(2), Longitude: f64p(2)})
	s.UpsertNode(NodeUpdate{NodeID: "cafe0000"})
	linkTo(t, s, "cafe0000", "aaaa0001", -70)
	linkTo(t, s, "cafe0000", "aaaa0002", -70)

	// Any telemetry touch on the unpositioned node places it.
	if err := s.UpsertNode(NodeUpdate{NodeID: "cafe0000", BatteryLevel: i64p(80)}); err != nil {
		t.Fatal(err)
	}

	n, err := s.GetNode("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if n.PositionQuality != geo.QualityEstimated {
		t.Fatalf("quality = %q, want estimated", n.PositionQuality)
	}
	if n.Latitude == nil || *n.Latitude != 1 || *n.Longitude != 1 {
		t.Errorf("position = (%v, %v)", n.Latitude, n.Longitude)
	}
}

func TestNodeNeighborsDistanceMethods(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001", Latitude: f64p(38.7223), Longitude: f64p(-9.1393)})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002"})
	s.UpsertNode(NodeUpdate{NodeID: "cafe0000", Latitude: f64p(38.7071), Longitude: f64p(-9.1355)})
	linkTo(t, s, "cafe0000", "aaaa0001", -70)
	linkTo(t, s, "cafe0000", "aaaa0002", -70)

	neighbors, err := s.NodeNeighbors("cafe0000")
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors", len(neighbors))
	}

	byID := map[string]*NeighborDistance{}
	for _, nd := range neighbors {
		byID[nd.Node.NodeID] = nd
	}

	gps := byID["aaaa0001"]
	if gps == nil || gps.Method != "gps" {
		t.Fatalf("confirmed pair should measure by gps: %+v", gps)
	}
	// Roughly 1.7 km across Lisbon.
	if gps.DistanceMeters < 1500 || gps.DistanceMeters > 2000 {
		t.Errorf("gps distance = %v m", gps.DistanceMeters)
	}

	rf := byID["aaaa0002"]
	if rf == nil || rf.Method != "rssi" {
		t.Fatalf("unpositioned pair should measure by rssi: %+v", rf)
	}
	want := geo.DistanceFromRSSI(-70, -10)
	if rf.DistanceMeters != want {
		t.Errorf("rssi distance = %v, want %v", rf.DistanceMeters, want)
	}
}
