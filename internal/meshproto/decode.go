package meshproto

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// Application port numbers handled by the dispatcher.
const (
	PortUnknownApp   = 0
	PortTextMessage  = 1
	PortPosition     = 3
	PortNodeInfo     = 4
	PortWaypoint     = 8
	PortTelemetry    = 67
	PortTraceroute   = 70
	PortNeighborInfo = 71
	PortMapReport    = 73

	// MaxPortNum is the top of the valid port range; anything beyond it is
	// ignored without decoding.
	MaxPortNum = 511
)

// ignoredPorts are applications we receive but deliberately do not decode
// (routing, admin, detection-sensor and similar diagnostic channels).
var ignoredPorts = map[uint32]bool{
	5:   true,
	34:  true,
	65:  true,
	66:  true,
	72:  true,
	257: true,
}

// DecodePayload turns a cleartext application payload into its typed
// record. It never fails: malformed payloads on recognized ports come back
// as a DecodeErrorRecord with the raw bytes preserved, unrecognized ports
// as UnknownRecord, and ignored ports as IgnoredRecord.
func DecodePayload(portnum uint32, payload []byte) Record {
	if ignoredPorts[portnum] || portnum > MaxPortNum {
		return IgnoredRecord{PortNum: portnum, Reason: "filtered_out"}
	}

	switch portnum {
	case PortUnknownApp:
		// Port 0 traffic is typically channel/routing info; keep it as text.
		return ChannelInfoRecord{ChannelName: replaceInvalidUTF8(payload)}

	case PortTextMessage:
		return TextMessageRecord{Message: replaceInvalidUTF8(payload)}

	case PortPosition:
		rec, err := parsePosition(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	case PortNodeInfo:
		rec, err := parseUser(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	case PortWaypoint:
		rec, err := parseWaypoint(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	case PortTelemetry:
		rec, err := parseTelemetry(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	case PortTraceroute:
		rec, err := parseRouteDiscovery(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	case PortNeighborInfo:
		rec, err := parseNeighborInfo(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	case PortMapReport:
		rec, err := parseMapReport(payload)
		if err != nil {
			return decodeError(portnum, payload, err)
		}
		return *rec

	default:
		return UnknownRecord{PortNum: portnum, RawHex: hex.EncodeToString(payload)}
	}
}

func decodeError(portnum uint32, payload []byte, err error) DecodeErrorRecord {
	return DecodeErrorRecord{
		PortNum: portnum,
		Err:     err.Error(),
		RawHex:  hex.EncodeToString(payload),
	}
}

// replaceInvalidUTF8 interprets bytes as UTF-8 text, substituting the
// replacement rune for invalid sequences.
func replaceInvalidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
