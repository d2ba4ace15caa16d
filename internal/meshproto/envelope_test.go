package meshproto

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func buildData(portnum uint32, payload []byte) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(portnum))
	b = appendMessage(b, 2, payload)
	return b
}

func buildMeshPacket(t *testing.T, mutate func(pkt *[]byte)) []byte {
	t.Helper()
	var b []byte
	b = appendFixed32(b, 1, 0x4a1b2c3d)                   // from
	b = appendFixed32(b, 2, 0x5e2f3a4b)                   // to
	b = appendVarint(b, 3, 1)                             // channel
	b = appendMessage(b, 4, buildData(1, []byte("hey")))  // decoded
	b = appendFixed32(b, 6, 0xcafe0001)                   // id
	b = appendFixed32(b, 7, 1700000000)                   // rx_time
	b = appendFloat(b, 8, 6.75)                           // rx_snr
	b = appendVarint(b, 9, 3)                             // hop_limit
	b = appendVarint(b, 10, 1)                            // want_ack
	b = appendSVarint(b, 12, -110)                        // rx_rssi, sign-extended varint
	if mutate != nil {
		mutate(&b)
	}
	return b
}

func TestParseServiceEnvelope(t *testing.T) {
	pkt := buildMeshPacket(t, nil)

	var env []byte
	env = appendMessage(env, 1, pkt)
	env = appendString(env, 2, "LongFast")
	env = appendString(env, 3, "!aabbccdd")

	got, err := ParseServiceEnvelope(env)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if got.ChannelID != "LongFast" || got.GatewayID != "!aabbccdd" {
		t.Errorf("envelope fields = %q / %q", got.ChannelID, got.GatewayID)
	}

	p := got.Packet
	if p.From != 0x4a1b2c3d || p.To != 0x5e2f3a4b || p.ID != 0xcafe0001 {
		t.Errorf("addresses = from %08x to %08x id %08x", p.From, p.To, p.ID)
	}
	if p.Channel != 1 || p.HopLimit != 3 || !p.WantAck {
		t.Errorf("radio fields = %+v", p)
	}
	if math.Abs(p.RxSNR-6.75) > 1e-9 {
		t.Errorf("rx_snr = %v", p.RxSNR)
	}
	if p.RxRSSI != -110 {
		t.Errorf("rx_rssi = %d, want -110", p.RxRSSI)
	}
	if p.Decoded == nil || p.Decoded.PortNum != 1 || !bytes.Equal(p.Decoded.Payload, []byte("hey")) {
		t.Errorf("decoded data = %+v", p.Decoded)
	}
}

func TestParseServiceEnvelopeWithoutPacket(t *testing.T) {
	var env []byte
	env = appendString(env, 2, "LongFast")

	_, err := ParseServiceEnvelope(env)
	if !errors.Is(err, ErrNoPacket) {
		t.Fatalf("got err %v, want ErrNoPacket", err)
	}
}

func TestParseServiceEnvelopeMalformed(t *testing.T) {
	// Truncated length-delimited field.
	bad := protowire.AppendTag(nil, 1, protowire.BytesType)
	bad = protowire.AppendVarint(bad, 100)

	if _, err := ParseServiceEnvelope(bad); err == nil {
		t.Fatal("expected error for truncated envelope")
	}
}

func TestParseMeshPacketEncrypted(t *testing.T) {
	blob := []byte{0x10, 0x20, 0x30, 0x40}
	var b []byte
	b = appendFixed32(b, 1, 7)
	b = appendFixed32(b, 2, BroadcastAddr)
	b = appendMessage(b, 5, blob)
	b = appendFixed32(b, 6, 99)

	pkt, err := ParseMeshPacket(b)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Decoded != nil {
		t.Error("encrypted packet should have no decoded data")
	}
	if !bytes.Equal(pkt.Encrypted, blob) {
		t.Errorf("encrypted = %x", pkt.Encrypted)
	}
	if pkt.To != BroadcastAddr {
		t.Errorf("to = %08x", pkt.To)
	}
}

func TestParseDataRejectsGarbage(t *testing.T) {
	// Wire type 7 does not exist; ConsumeTag fails.
	if _, err := ParseData([]byte{0x0f, 0xff, 0xff}); err == nil {
		t.Fatal("expected parse error for garbage data")
	}
}
