// Package meshproto decodes the mesh network's protobuf wire messages: the
// MQTT service envelope, the radio packet inside it, and the per-port
// application payloads. The message set is small and fixed, so the fields
// are read straight off the wire with protowire rather than generated code.
package meshproto

import (
	"errors"
	"fmt"
)

// BroadcastAddr is the reserved destination address meaning "all nodes".
const BroadcastAddr uint32 = 0xffffffff

// ErrNoPacket is returned for an envelope that carries no radio packet.
var ErrNoPacket = errors.New("meshproto: envelope has no packet")

// ServiceEnvelope is the outermost message published by gateways: the
// received radio packet plus the channel it arrived on and the gateway's
// own node id.
type ServiceEnvelope struct {
	Packet    *MeshPacket
	ChannelID string
	GatewayID string
}

// MeshPacket is one radio transmission as the gateway saw it. Exactly one
// of Decoded and Encrypted is set: cleartext payloads arrive pre-decoded,
// encrypted ones carry the raw cipher blob.
type MeshPacket struct {
	From     uint32
	To       uint32
	Channel  uint32
	ID       uint32
	RxTime   uint32
	RxSNR    float64
	HopLimit uint32
	WantAck  bool
	RxRSSI   int32

	Decoded   *Data
	Encrypted []byte
}

// Data is the application-data container: a port number selecting the
// payload's meaning, and the payload bytes themselves.
type Data struct {
	PortNum uint32
	Payload []byte
}

// ParseServiceEnvelope decodes the envelope wrapper. An envelope without a
// packet is malformed for our purposes and yields ErrNoPacket.
func ParseServiceEnvelope(b []byte) (*ServiceEnvelope, error) {
	env := &ServiceEnvelope{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1: // packet
			pkt, err := ParseMeshPacket(f.bytes)
			if err != nil {
				return fmt.Errorf("packet: %w", err)
			}
			env.Packet = pkt
		case 2: // channel_id
			env.ChannelID = string(f.bytes)
		case 3: // gateway_id
			env.GatewayID = string(f.bytes)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Packet == nil {
		return nil, ErrNoPacket
	}
	return env, nil
}

// ParseMeshPacket decodes a radio packet.
func ParseMeshPacket(b []byte) (*MeshPacket, error) {
	pkt := &MeshPacket{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1: // from
			pkt.From = f.fixed32
		case 2: // to
			pkt.To = f.fixed32
		case 3: // channel
			pkt.Channel = uint32(f.varint)
		case 4: // decoded
			data, err := ParseData(f.bytes)
			if err != nil {
				return fmt.Errorf("decoded data: %w", err)
			}
			pkt.Decoded = data
		case 5: // encrypted
			pkt.Encrypted = append([]byte(nil), f.bytes...)
		case 6: // id
			pkt.ID = f.fixed32
		case 7: // rx_time
			pkt.RxTime = f.fixed32
		case 8: // rx_snr
			pkt.RxSNR = float64(f.float32())
		case 9: // hop_limit
			pkt.HopLimit = uint32(f.varint)
		case 10: // want_ack
			pkt.WantAck = f.bool()
		case 12: // rx_rssi
			pkt.RxRSSI = f.int32()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse mesh packet: %w", err)
	}
	return pkt, nil
}

// ParseData decodes the application-data container. This is also the
// post-decrypt validation step: cleartext that does not parse as Data is
// treated as a failed decryption by the caller.
func ParseData(b []byte) (*Data, error) {
	d := &Data{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1: // portnum
			d.PortNum = uint32(f.varint)
		case 2: // payload
			d.Payload = append([]byte(nil), f.bytes...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse data: %w", err)
	}
	return d, nil
}
