package meshproto

import "fmt"

// coordScale converts the wire's integer-degrees representation (degrees
// times 1e7) to decimal degrees.
const coordScale = 1e7

// scaledCoord maps a raw integer coordinate to decimal degrees, treating
// the on-wire zero as "not present".
func scaledCoord(raw int32) *float64 {
	if raw == 0 {
		return nil
	}
	v := float64(raw) / coordScale
	return &v
}

func optUint32(v uint32) *uint32 {
	if v == 0 {
		return nil
	}
	return &v
}

func optInt32(v int32) *int32 {
	if v == 0 {
		return nil
	}
	return &v
}

func optFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func parsePosition(b []byte) (*PositionRecord, error) {
	rec := &PositionRecord{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1: // latitude_i, sfixed32
			rec.Latitude = scaledCoord(f.sfixed32())
		case 2: // longitude_i, sfixed32
			rec.Longitude = scaledCoord(f.sfixed32())
		case 3: // altitude
			rec.Altitude = optInt32(f.int32())
		case 4: // time
			rec.Time = optUint32(f.fixed32)
		case 22: // precision_bits
			rec.PrecisionBits = optUint32(uint32(f.varint))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseUser(b []byte) (*NodeInfoRecord, error) {
	rec := &NodeInfoRecord{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 2: // long_name
			rec.LongName = string(f.bytes)
		case 3: // short_name
			rec.ShortName = string(f.bytes)
		case 4: // macaddr
			if len(f.bytes) > 0 {
				rec.MacAddr = fmt.Sprintf("%x", f.bytes)
			}
		case 5: // hw_model
			rec.HWModel = f.int32()
		case 6: // is_licensed
			rec.IsLicensed = f.bool()
		case 7: // role
			rec.Role = f.int32()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseWaypoint(b []byte) (*WaypointRecord, error) {
	rec := &WaypointRecord{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1: // id
			rec.ID = uint32(f.varint)
		case 2: // latitude_i
			rec.Latitude = scaledCoord(f.sfixed32())
		case 3: // longitude_i
			rec.Longitude = scaledCoord(f.sfixed32())
		case 4: // expire
			rec.Expire = uint32(f.varint)
		case 5: // locked_to
			rec.LockedTo = uint32(f.varint)
		case 6: // name
			rec.Name = string(f.bytes)
		case 7: // description
			rec.Description = string(f.bytes)
		case 8: // icon
			rec.Icon = f.fixed32
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseDeviceMetrics(b []byte) (*DeviceMetrics, error) {
	m := &DeviceMetrics{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			m.BatteryLevel = optUint32(uint32(f.varint))
		case 2:
			m.Voltage = optFloat(float64(f.float32()))
		case 3:
			m.ChannelUtilization = optFloat(float64(f.float32()))
		case 4:
			m.AirUtilTx = optFloat(float64(f.float32()))
		case 5:
			m.UptimeSeconds = optUint32(uint32(f.varint))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseEnvironmentMetrics(b []byte) (*EnvironmentMetrics, error) {
	m := &EnvironmentMetrics{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			m.Temperature = optFloat(float64(f.float32()))
		case 2:
			m.RelativeHumidity = optFloat(float64(f.float32()))
		case 3:
			m.BarometricPressure = optFloat(float64(f.float32()))
		case 4:
			m.GasResistance = optFloat(float64(f.float32()))
		case 5:
			m.Voltage = optFloat(float64(f.float32()))
		case 6:
			m.Current = optFloat(float64(f.float32()))
		case 7:
			m.IAQ = optUint32(uint32(f.varint))
		case 10:
			m.WindDirection = uint32(f.varint)
		case 11:
			m.WindSpeed = float64(f.float32())
		case 16:
			m.WindGust = float64(f.float32())
		case 17:
			m.WindLull = float64(f.float32())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parsePowerMetrics(b []byte) (*PowerMetrics, error) {
	m := &PowerMetrics{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			m.Ch1Voltage = optFloat(float64(f.float32()))
		case 2:
			m.Ch1Current = optFloat(float64(f.float32()))
		case 3:
			m.Ch2Voltage = optFloat(float64(f.float32()))
		case 4:
			m.Ch2Current = optFloat(float64(f.float32()))
		case 5:
			m.Ch3Voltage = optFloat(float64(f.float32()))
		case 6:
			m.Ch3Current = optFloat(float64(f.float32()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseTelemetry(b []byte) (*TelemetryRecord, error) {
	rec := &TelemetryRecord{}
	err := scanFields(b, func(f wireField) error {
		var err error
		switch f.num {
		case 2: // device_metrics
			rec.Device, err = parseDeviceMetrics(f.bytes)
		case 3: // environment_metrics
			rec.Environment, err = parseEnvironmentMetrics(f.bytes)
		case 5: // power_metrics
			rec.Power, err = parsePowerMetrics(f.bytes)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseRouteDiscovery(b []byte) (*TracerouteRecord, error) {
	rec := &TracerouteRecord{
		Route:      []uint32{},
		SNRTowards: []int32{},
		RouteBack:  []uint32{},
		SNRBack:    []int32{},
	}
	err := scanFields(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1: // route, packed fixed32
			var hops []uint32
			hops, err = packedFixed32(f.bytes)
			rec.Route = append(rec.Route, hops...)
		case 2: // snr_towards, packed varint
			var snrs []int32
			snrs, err = packedVarints(f.bytes)
			rec.SNRTowards = append(rec.SNRTowards, snrs...)
		case 3: // route_back, packed fixed32
			var hops []uint32
			hops, err = packedFixed32(f.bytes)
			rec.RouteBack = append(rec.RouteBack, hops...)
		case 4: // snr_back, packed varint
			var snrs []int32
			snrs, err = packedVarints(f.bytes)
			rec.SNRBack = append(rec.SNRBack, snrs...)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseNeighborInfo(b []byte) (*NeighborInfoRecord, error) {
	rec := &NeighborInfoRecord{Neighbors: []Neighbor{}}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 3: // node_broadcast_interval_secs
			rec.NodeBroadcastIntervalSecs = uint32(f.varint)
		case 4: // neighbors
			var nb Neighbor
			err := scanFields(f.bytes, func(nf wireField) error {
				switch nf.num {
				case 1:
					nb.NodeID = uint32(nf.varint)
				case 2:
					nb.SNR = float64(nf.float32())
				}
				return nil
			})
			if err != nil {
				return err
			}
			rec.Neighbors = append(rec.Neighbors, nb)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func parseMapReport(b []byte) (*MapReportRecord, error) {
	rec := &MapReportRecord{}
	err := scanFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			rec.LongName = string(f.bytes)
		case 2:
			rec.ShortName = string(f.bytes)
		case 3:
			rec.Role = f.int32()
		case 4:
			rec.HWModel = f.int32()
		case 5:
			rec.FirmwareVersion = string(f.bytes)
		case 6:
			rec.Region = f.int32()
		case 7:
			rec.ModemPreset = f.int32()
		case 8:
			rec.HasDefaultChannel = f.bool()
		case 9: // latitude_i
			rec.Latitude = scaledCoord(f.sfixed32())
		case 10: // longitude_i
			rec.Longitude = scaledCoord(f.sfixed32())
		case 11: // altitude
			rec.Altitude = optInt32(f.int32())
		case 12:
			rec.PositionPrecision = uint32(f.varint)
		case 13:
			rec.NumOnlineLocalNodes = uint32(f.varint)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
