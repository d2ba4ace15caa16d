package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"meshmap/internal/geo"
	"meshmap/internal/logs"
)

func TestMain(m *testing.M) {
	logs.Mute()
	os.Exit(m.Run())
}

// testClock lets tests pin or advance the store's notion of now.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()

	dir := t.TempDir()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	s, err := Open(filepath.Join(dir, "test.db"), Options{Now: clock.now})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func strp(s string) *string   { return &s }
func i64p(v int64) *int64     { return &v }
func f64p(v float64) *float64 { return &v }

func TestOpenRunsMigrationsTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twice.db")

	s1, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	// Reopening must tolerate an already-migrated schema.
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

func TestUpsertCreatesBareNode(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.UpsertNode(NodeUpdate{NodeID: "4a1b2c3d"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.GetNode("4a1b2c3d")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.PositionQuality != geo.QualityUnknown {
		t.Errorf("quality = %q, want unknown", n.PositionQuality)
	}
	if n.LongName != nil || n.Latitude != nil || n.BatteryLevel != nil || n.IsLicensed != nil {
		t.Errorf("bare node has populated optionals: %+v", n)
	}
	if n.LastSeen == 0 {
		t.Error("last_seen not set")
	}
}

func TestUpsertWithCoordinatesConfirms(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpsertNode(NodeUpdate{
		NodeID:   "4a1b2c3d",
		Latitude: f64p(38.7223), Longitude: f64p(-9.1393),
	})
	if err != nil {
		t.Fatal(err)
	}

	n, _ := s.GetNode("4a1b2c3d")
	if n.PositionQuality != geo.QualityConfirmed {
		t.Errorf("quality = %q, want confirmed", n.PositionQuality)
	}
}

func TestUpsertMergesWithoutClearing(t *testing.T) {
	s, clock := newTestStore(t)

	if err := s.UpsertNode(NodeUpdate{
		NodeID:   "4a1b2c3d",
		Latitude: f64p(38.7), Longitude: f64p(-9.1),
		BatteryLevel: i64p(95),
	}); err != nil {
		t.Fatal(err)
	}

	clock.advance(time.Minute)

	// Identity-only update: coordinates and battery must survive.
	if err := s.UpsertNode(NodeUpdate{
		NodeID:   "4a1b2c3d",
		LongName: strp("Lisbon Gateway"), ShortName: strp("LIS1"),
		HardwareModel: i64p(9),
	}); err != nil {
		t.Fatal(err)
	}

	n, _ := s.GetNode("4a1b2c3d")
	if n.Latitude == nil || *n.Latitude != 38.7 {
		t.Errorf("latitude lost on identity update: %v", n.Latitude)
	}
	if n.BatteryLevel == nil || *n.BatteryLevel != 95 {
		t.Errorf("battery lost: %v", n.BatteryLevel)
	}
	if n.LongName == nil || *n.LongName != "Lisbon Gateway" {
		t.Errorf("long name = %v", n.LongName)
	}
	if n.PositionQuality != geo.QualityConfirmed {
		t.Errorf("quality = %q", n.PositionQuality)
	}

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix()
	if n.LastSeen != first+60 {
		t.Errorf("last_seen = %d, want refreshed to %d", n.LastSeen, first+60)
	}
}

func TestConfirmedIsMonotone(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.UpsertNode(NodeUpdate{
		NodeID:   "4a1b2c3d",
		Latitude: f64p(38.7), Longitude: f64p(-9.1),
	}); err != nil {
		t.Fatal(err)
	}

	// A direct estimate write must refuse to touch a confirmed node.
	if err := s.setEstimatedPosition("4a1b2c3d", 1, 1, geo.QualityTriangulated); err == nil {
		t.Error("estimate write on confirmed node should fail")
	}

	n, _ := s.GetNode("4a1b2c3d")
	if n.PositionQuality != geo.QualityConfirmed || *n.Latitude != 38.7 {
		t.Errorf("confirmed position was disturbed: %+v", n)
	}

	// Telemetry updates must not downgrade quality either.
	if err := s.UpsertNode(NodeUpdate{NodeID: "4a1b2c3d", BatteryLevel: i64p(50)}); err != nil {
		t.Fatal(err)
	}
	n, _ = s.GetNode("4a1b2c3d")
	if n.PositionQuality != geo.QualityConfirmed {
		t.Errorf("quality after telemetry = %q", n.PositionQuality)
	}
}

func TestEstimatedPositionCanBeReplaced(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.UpsertNode(NodeUpdate{NodeID: "aaaa0001"}); err != nil {
		t.Fatal(err)
	}
	if err := s.setEstimatedPosition("aaaa0001", 1, 1, geo.QualityEstimated); err != nil {
		t.Fatal(err)
	}
	if err := s.setEstimatedPosition("aaaa0001", 2, 2, geo.QualityTriangulated); err != nil {
		t.Fatal(err)
	}

	n, _ := s.GetNode("aaaa0001")
	if n.PositionQuality != geo.QualityTriangulated || *n.Latitude != 2 {
		t.Errorf("estimate replacement failed: %+v", n)
	}

	// A device report still upgrades it to confirmed.
	if err := s.UpsertNode(NodeUpdate{
		NodeID:   "aaaa0001",
		Latitude: f64p(40), Longitude: f64p(-8),
	}); err != nil {
		t.Fatal(err)
	}
	n, _ = s.GetNode("aaaa0001")
	if n.PositionQuality != geo.QualityConfirmed || *n.Latitude != 40 {
		t.Errorf("confirmed upgrade failed: %+v", n)
	}
}

func TestGetNodeNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.GetNode("deadbeef"); err != ErrNodeNotFound {
		t.Fatalf("got err %v, want ErrNodeNotFound", err)
	}
}

func TestListNodesWithPosition(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertNode(NodeUpdate{NodeID: "aaaa0001"})
	s.UpsertNode(NodeUpdate{NodeID: "aaaa0002", Latitude: f64p(40), Longitude: f64p(-8)})

	all, err := s.ListNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("ListNodes = %d nodes", len(all))
	}

	positioned, err := s.ListNodesWithPosition()
	if err != nil {
		t.Fatal(err)
	}
	if len(positioned) != 1 || positioned[0].NodeID != "aaaa0002" {
		t.Fatalf("ListNodesWithPosition = %+v", positioned)
	}
}

func TestSearchNodes(t *testing.T) {
	s, clock := newTestStore(t)

	s.UpsertNode(NodeUpdate{
		NodeID:   "4a1b2c3d",
		LongName: strp("Lisbon Gateway"), ShortName: strp("LIS1"),
	})
	clock.advance(time.Hour)
	s.UpsertNode(NodeUpdate{NodeID: "5e2f3a4b", LongName: strp("Porto Node")})
	clock.advance(time.Hour)
	s.UpsertNode(NodeUpdate{NodeID: "lis00001", LongName: strp("Another")})

	// Substring match over names and ids, case-insensitive.
	got, err := s.SearchNodes("lis")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("search %q returned %d nodes", "lis", len(got))
	}
	// Prefix id match ranks above name matches.
	if got[0].NodeID != "lis00001" {
		t.Errorf("first result = %s, want id-prefix match", got[0].NodeID)
	}

	// Exact id match ranks first.
	got, err = s.SearchNodes("4a1b2c3d")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].NodeID != "4a1b2c3d" {
		t.Fatalf("exact search = %+v", got)
	}

	// Short terms match nothing, ever.
	got, err = s.SearchNodes("x")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("one-char search returned %d nodes", len(got))
	}
}

func TestAppendAndRecentPackets(t *testing.T) {
	s, clock := newTestStore(t)

	for i := 0; i < 5; i++ {
		p := &Packet{
			PacketID: "cafe000" + string(rune('0'+i)),
			FromNode: "aaaa0001", ToNode: "bbbb0002", GatewayID: "bbbb0002",
			PayloadType: "text_message",
		}
		if err := s.AppendPacket(p); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if p.RowID == 0 {
			t.Error("row id not assigned")
		}
		clock.advance(time.Second)
	}

	recent, err := s.RecentPackets(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("RecentPackets(3) = %d rows", len(recent))
	}
	if recent[0].Timestamp < recent[2].Timestamp {
		t.Error("packets not newest-first")
	}

	total, err := s.TotalPacketCount()
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
}

func TestPacketsByNodeWindow(t *testing.T) {
	s, clock := newTestStore(t)

	old := &Packet{PacketID: "01", FromNode: "aaaa0001", ToNode: "bbbb0002"}
	if err := s.AppendPacket(old); err != nil {
		t.Fatal(err)
	}

	clock.advance(48 * time.Hour)
	fresh := &Packet{PacketID: "02", FromNode: "cccc0003", ToNode: "dddd0004", GatewayID: "aaaa0001"}
	if err := s.AppendPacket(fresh); err != nil {
		t.Fatal(err)
	}

	got, err := s.PacketsByNode("aaaa0001", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PacketID != "02" {
		t.Fatalf("window query = %+v", got)
	}

	// The node qualifies as sender, destination, or gateway.
	got, err = s.PacketsByNode("dddd0004", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("destination match = %d rows", len(got))
	}
}

type recordingNotifier struct {
	nodes   []string
	packets []*Packet
}

func (r *recordingNotifier) OnNodeChanged(id string)    { r.nodes = append(r.nodes, id) }
func (r *recordingNotifier) OnPacketReceived(p *Packet) { r.packets = append(r.packets, p) }

func TestNotifierCallbacks(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingNotifier{}

	s, err := Open(filepath.Join(dir, "notify.db"), Options{Notifier: rec})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.UpsertNode(NodeUpdate{NodeID: "aaaa0001"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendPacket(&Packet{PacketID: "01", FromNode: "aaaa0001", ToNode: "ffffffff"}); err != nil {
		t.Fatal(err)
	}

	if len(rec.nodes) == 0 || rec.nodes[0] != "aaaa0001" {
		t.Errorf("node notifications = %v", rec.nodes)
	}
	if len(rec.packets) != 1 || rec.packets[0].PacketID != "01" {
		t.Errorf("packet notifications = %v", rec.packets)
	}
}
