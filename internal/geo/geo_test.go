package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	lisbon := Point{Lat: 38.7223, Lon: -9.1393}
	porto := Point{Lat: 41.1579, Lon: -8.6291}

	d := Haversine(lisbon, porto)
	// Roughly 274 km between the two cities.
	if d < 270000 || d > 280000 {
		t.Errorf("Lisbon-Porto distance = %.0f m, want ~274 km", d)
	}

	if z := Haversine(lisbon, lisbon); z != 0 {
		t.Errorf("distance to self = %v, want 0", z)
	}

	// Symmetry.
	if back := Haversine(porto, lisbon); math.Abs(back-d) > 1e-6 {
		t.Errorf("asymmetric distance: %v vs %v", d, back)
	}
}

func TestDistanceFromRSSI(t *testing.T) {
	const txPower = -10

	// Zero RSSI means the reading was absent.
	if d := DistanceFromRSSI(0, txPower); d != UnknownRangeM {
		t.Errorf("zero RSSI distance = %v, want sentinel %v", d, UnknownRangeM)
	}

	// Stronger signal, shorter estimate.
	near := DistanceFromRSSI(-60, txPower)
	far := DistanceFromRSSI(-120, txPower)
	if near >= far {
		t.Errorf("stronger RSSI should mean shorter range: near=%v far=%v", near, far)
	}

	// Clamp bounds.
	if d := DistanceFromRSSI(-5, txPower); d != 1 {
		t.Errorf("non-positive path loss should clamp to 1 m, got %v", d)
	}
	if d := DistanceFromRSSI(-200, txPower); d != 50000 {
		t.Errorf("extreme path loss should clamp to 50 km, got %v", d)
	}

	// Spot check the formula: path loss 100 dB -> 10^((100-32.44)/20).
	want := math.Pow(10, (100-32.44)/20)
	if d := DistanceFromRSSI(-110, txPower); math.Abs(d-want) > 1e-6 {
		t.Errorf("distance at 100 dB path loss = %v, want %v", d, want)
	}
}

func TestTrilaterateTwoPoints(t *testing.T) {
	p, quality, ok := Trilaterate([]Point{{Lat: 0, Lon: 0}, {Lat: 2, Lon: 2}})
	if !ok {
		t.Fatal("two references should produce a result")
	}
	if p.Lat != 1 || p.Lon != 1 {
		t.Errorf("midpoint = %+v, want (1,1)", p)
	}
	if quality != QualityEstimated {
		t.Errorf("quality = %q, want estimated", quality)
	}
}

func TestTrilaterateThreePoints(t *testing.T) {
	p, quality, ok := Trilaterate([]Point{{0, 0}, {0, 3}, {3, 0}})
	if !ok {
		t.Fatal("three references should produce a result")
	}
	if p.Lat != 1 || p.Lon != 1 {
		t.Errorf("centroid = %+v, want (1,1)", p)
	}
	if quality != QualityTriangulated {
		t.Errorf("quality = %q, want triangulated", quality)
	}
}

func TestTrilaterateTooFewPoints(t *testing.T) {
	if _, _, ok := Trilaterate(nil); ok {
		t.Error("no references should produce no result")
	}
	if _, _, ok := Trilaterate([]Point{{1, 1}}); ok {
		t.Error("one reference should produce no result")
	}
}
