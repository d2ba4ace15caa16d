// Package ingest turns raw MQTT envelope payloads into packet log rows
// and node updates.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"meshmap/internal/logs"
	"meshmap/internal/meshproto"
	"meshmap/internal/radio"
	"meshmap/internal/store"
)

// Pipeline processes one envelope at a time: parse, decrypt if needed,
// decode the payload, append to the packet log, and fold what the payload
// says into the node table. Malformed or undecryptable traffic is dropped
// with a log line; the pipeline itself never fails.
type Pipeline struct {
	store *store.Store
	key   []byte
}

func New(st *store.Store, channelKeyB64 string) (*Pipeline, error) {
	key, err := radio.ParseKey(channelKeyB64)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return &Pipeline{store: st, key: key}, nil
}

// HandleMessage ingests one MQTT message. It is the subscriber callback.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	log := logs.L().WithField("topic", topic)

	env, err := meshproto.ParseServiceEnvelope(payload)
	if err != nil {
		log.WithError(err).Debug("dropping unparseable envelope")
		return
	}

	pkt := env.Packet
	fromNode := fmt.Sprintf("%08x", pkt.From)
	toNode := fmt.Sprintf("%08x", pkt.To)

	data, err := p.packetData(pkt)
	if err != nil {
		log.WithFields(logrus.Fields{
			"from": fromNode, "packet_id": fmt.Sprintf("%08x", pkt.ID),
		}).WithError(err).Debug("dropping undecodable packet")
		return
	}

	rec := meshproto.DecodePayload(data.PortNum, data.Payload)

	row := p.buildRow(env, rec, data.PortNum)
	if err := p.store.AppendPacket(row); err != nil {
		log.WithError(err).Warn("packet log append failed")
		return
	}

	// The sender always gets a node row; so do a unicast destination and
	// the gateway that heard the packet. Broadcast is an address, not a
	// node.
	p.ensureNode(fromNode)
	if toNode != store.BroadcastID {
		p.ensureNode(toNode)
	}
	if gw := stripBang(env.GatewayID); gw != "" && gw != fromNode {
		p.ensureNode(gw)
	}

	if err := p.applyRecord(rec, fromNode); err != nil {
		log.WithFields(logrus.Fields{
			"from": fromNode, "payload_type": rec.Type(),
		}).WithError(err).Warn("node update failed")
	}
}

// packetData returns the packet's cleartext Data, decrypting with the
// channel key when necessary. A decrypt with the wrong key produces
// keystream garbage, which fails the Data parse; that parse failure is the
// only wrong-key signal there is.
func (p *Pipeline) packetData(pkt *meshproto.MeshPacket) (*meshproto.Data, error) {
	if pkt.Decoded != nil {
		return pkt.Decoded, nil
	}
	if len(pkt.Encrypted) == 0 {
		return nil, fmt.Errorf("packet has neither decoded nor encrypted data")
	}

	plain, err := radio.Decrypt(pkt.Encrypted, uint64(pkt.ID), pkt.From, p.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	data, err := meshproto.ParseData(plain)
	if err != nil {
		return nil, fmt.Errorf("decrypt produced garbage: %w", err)
	}
	return data, nil
}

func (p *Pipeline) buildRow(env *meshproto.ServiceEnvelope, rec meshproto.Record, portnum uint32) *store.Packet {
	pkt := env.Packet

	payloadJSON, err := json.Marshal(rec)
	if err != nil {
		payloadJSON = []byte("{}")
	}

	pn := int64(portnum)
	return &store.Packet{
		PacketID:    fmt.Sprintf("%08x", pkt.ID),
		FromNode:    fmt.Sprintf("%08x", pkt.From),
		ToNode:      fmt.Sprintf("%08x", pkt.To),
		GatewayID:   stripBang(env.GatewayID),
		PortNum:     &pn,
		Channel:     int64(pkt.Channel),
		HopLimit:    int64(pkt.HopLimit),
		WantAck:     pkt.WantAck,
		RxTime:      int64(pkt.RxTime),
		RxSNR:       pkt.RxSNR,
		RxRSSI:      int64(pkt.RxRSSI),
		PayloadType: rec.Type(),
		PayloadData: string(payloadJSON),
	}
}

// stripBang removes the "!" prefix some gateways put in front of node ids,
// so the packet log and node table use one id form.
func stripBang(id string) string {
	return strings.TrimPrefix(id, "!")
}

func (p *Pipeline) ensureNode(nodeID string) {
	if err := p.store.UpsertNode(store.NodeUpdate{NodeID: nodeID}); err != nil {
		logs.L().WithField("node_id", nodeID).WithError(err).Warn("node upsert failed")
	}
}

// applyRecord folds a decoded payload into the sender's node row. Only
// payload types that carry node state touch the table; everything else
// lives in the packet log alone.
func (p *Pipeline) applyRecord(rec meshproto.Record, fromNode string) error {
	switch r := rec.(type) {
	case meshproto.PositionRecord:
		if r.Latitude == nil && r.Longitude == nil && r.Altitude == nil {
			return nil
		}
		u := store.NodeUpdate{NodeID: fromNode, Latitude: r.Latitude, Longitude: r.Longitude}
		if r.Altitude != nil {
			alt := float64(*r.Altitude)
			u.Altitude = &alt
		}
		return p.store.UpsertNode(u)

	case meshproto.NodeInfoRecord:
		hw := int64(r.HWModel)
		role := int64(r.Role)
		licensed := r.IsLicensed
		return p.store.UpsertNode(store.NodeUpdate{
			NodeID:        fromNode,
			LongName:      &r.LongName,
			ShortName:     &r.ShortName,
			HardwareModel: &hw,
			Role:          &role,
			IsLicensed:    &licensed,
		})

	case meshproto.TelemetryRecord:
		if r.Device == nil {
			return nil
		}
		u := store.NodeUpdate{NodeID: fromNode}
		touched := false
		if r.Device.BatteryLevel != nil {
			battery := int64(*r.Device.BatteryLevel)
			u.BatteryLevel = &battery
			touched = true
		}
		if r.Device.Voltage != nil {
			u.Voltage = r.Device.Voltage
			touched = true
		}
		if !touched {
			return nil
		}
		return p.store.UpsertNode(u)

	case meshproto.NeighborInfoRecord:
		// The broadcast proves the neighbors exist; the link graph itself
		// is derived from reception metrics, not from these claims.
		for _, n := range r.Neighbors {
			p.ensureNode(fmt.Sprintf("%08x", n.NodeID))
		}
		return nil

	case meshproto.MapReportRecord:
		hw := int64(r.HWModel)
		role := int64(r.Role)
		u := store.NodeUpdate{
			NodeID:        fromNode,
			LongName:      &r.LongName,
			ShortName:     &r.ShortName,
			HardwareModel: &hw,
			Role:          &role,
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
		}
		if r.FirmwareVersion != "" {
			u.FirmwareVersion = &r.FirmwareVersion
		}
		if r.Altitude != nil {
			alt := float64(*r.Altitude)
			u.Altitude = &alt
		}
		return p.store.UpsertNode(u)
	}
	return nil
}
