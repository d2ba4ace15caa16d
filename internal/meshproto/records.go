package meshproto

// Record is the closed union of decoded packet payloads. Every packet the
// dispatcher sees becomes exactly one of the concrete record types below;
// the Type tag is what gets persisted as the packet's payload_type.
type Record interface {
	Type() string
}

// Payload type tags.
const (
	TypeChannelInfo  = "channel_info"
	TypeTextMessage  = "text_message"
	TypePosition     = "position"
	TypeNodeInfo     = "nodeinfo"
	TypeWaypoint     = "waypoint"
	TypeTelemetry    = "telemetry"
	TypeTraceroute   = "traceroute"
	TypeNeighborInfo = "neighbor_info"
	TypeMapReport    = "map_report"
	TypeIgnored      = "ignored"
	TypeUnknown      = "unknown"
	TypeDecodeError  = "decode_error"
)

// ChannelInfoRecord carries the port-0 payload, interpreted as text.
type ChannelInfoRecord struct {
	ChannelName string `json:"channel_name"`
}

func (ChannelInfoRecord) Type() string { return TypeChannelInfo }

// TextMessageRecord is a plain user text message.
type TextMessageRecord struct {
	Message string `json:"message"`
}

func (TextMessageRecord) Type() string { return TypeTextMessage }

// PositionRecord is a device-reported GPS fix. A raw integer coordinate of
// zero means "not set" on the wire and is mapped to a nil pointer here, by
// deliberate convention (a legitimately measured 0.0 is indistinguishable).
type PositionRecord struct {
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Altitude      *int32   `json:"altitude,omitempty"`
	Time          *uint32  `json:"time,omitempty"`
	PrecisionBits *uint32  `json:"precision_bits,omitempty"`
}

func (PositionRecord) Type() string { return TypePosition }

// NodeInfoRecord is a node's self-reported identity.
type NodeInfoRecord struct {
	LongName   string `json:"long_name"`
	ShortName  string `json:"short_name"`
	MacAddr    string `json:"macaddr,omitempty"`
	HWModel    int32  `json:"hw_model"`
	IsLicensed bool   `json:"is_licensed"`
	Role       int32  `json:"role"`
}

func (NodeInfoRecord) Type() string { return TypeNodeInfo }

// WaypointRecord is a shared map waypoint.
type WaypointRecord struct {
	ID          uint32   `json:"id"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Expire      uint32   `json:"expire,omitempty"`
	LockedTo    uint32   `json:"locked_to,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Icon        uint32   `json:"icon,omitempty"`
}

func (WaypointRecord) Type() string { return TypeWaypoint }

// DeviceMetrics are a device's own health readings. Zero readings arrive as
// unset fields and map to nil.
type DeviceMetrics struct {
	BatteryLevel       *uint32  `json:"battery_level,omitempty"`
	Voltage            *float64 `json:"voltage,omitempty"`
	ChannelUtilization *float64 `json:"channel_utilization,omitempty"`
	AirUtilTx          *float64 `json:"air_util_tx,omitempty"`
	UptimeSeconds      *uint32  `json:"uptime_seconds,omitempty"`
}

// EnvironmentMetrics are attached-sensor environmental readings.
type EnvironmentMetrics struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	RelativeHumidity   *float64 `json:"relative_humidity,omitempty"`
	BarometricPressure *float64 `json:"barometric_pressure,omitempty"`
	GasResistance      *float64 `json:"gas_resistance,omitempty"`
	Voltage            *float64 `json:"voltage,omitempty"`
	Current            *float64 `json:"current,omitempty"`
	IAQ                *uint32  `json:"iaq,omitempty"`
	WindDirection      uint32   `json:"wind_direction"`
	WindSpeed          float64  `json:"wind_speed"`
	WindGust           float64  `json:"wind_gust"`
	WindLull           float64  `json:"wind_lull"`
}

// PowerMetrics are per-channel voltage/current pairs from power monitors.
type PowerMetrics struct {
	Ch1Voltage *float64 `json:"ch1_voltage,omitempty"`
	Ch1Current *float64 `json:"ch1_current,omitempty"`
	Ch2Voltage *float64 `json:"ch2_voltage,omitempty"`
	Ch2Current *float64 `json:"ch2_current,omitempty"`
	Ch3Voltage *float64 `json:"ch3_voltage,omitempty"`
	Ch3Current *float64 `json:"ch3_current,omitempty"`
}

// TelemetryRecord groups the optional telemetry sub-messages.
type TelemetryRecord struct {
	Device      *DeviceMetrics      `json:"device_metrics,omitempty"`
	Environment *EnvironmentMetrics `json:"environment_metrics,omitempty"`
	Power       *PowerMetrics       `json:"power_metrics,omitempty"`
}

func (TelemetryRecord) Type() string { return TypeTelemetry }

// TracerouteRecord is a route discovery result: forward and return hop
// lists with the SNR seen at each hop.
type TracerouteRecord struct {
	Route      []uint32 `json:"route"`
	SNRTowards []int32  `json:"snr_towards"`
	RouteBack  []uint32 `json:"route_back"`
	SNRBack    []int32  `json:"snr_back"`
}

func (TracerouteRecord) Type() string { return TypeTraceroute }

// Neighbor is one entry in a neighbor-info broadcast.
type Neighbor struct {
	NodeID uint32  `json:"node_id"`
	SNR    float64 `json:"snr"`
}

// NeighborInfoRecord is a node's own view of who it hears directly.
type NeighborInfoRecord struct {
	NodeBroadcastIntervalSecs uint32     `json:"node_broadcast_interval_secs"`
	Neighbors                 []Neighbor `json:"neighbors"`
}

func (NeighborInfoRecord) Type() string { return TypeNeighborInfo }

// MapReportRecord is the periodic identity+position digest nodes publish
// for public map sites.
type MapReportRecord struct {
	LongName            string   `json:"long_name"`
	ShortName           string   `json:"short_name"`
	Role                int32    `json:"role"`
	HWModel             int32    `json:"hw_model"`
	FirmwareVersion     string   `json:"firmware_version"`
	Region              int32    `json:"region"`
	ModemPreset         int32    `json:"modem_preset"`
	HasDefaultChannel   bool     `json:"has_default_channel"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	Altitude            *int32   `json:"altitude,omitempty"`
	PositionPrecision   uint32   `json:"position_precision"`
	NumOnlineLocalNodes uint32   `json:"num_online_local_nodes"`
}

func (MapReportRecord) Type() string { return TypeMapReport }

// IgnoredRecord marks a port on the explicit ignore list or outside the
// valid port range. No decoding is attempted.
type IgnoredRecord struct {
	PortNum uint32 `json:"portnum"`
	Reason  string `json:"reason"`
}

func (IgnoredRecord) Type() string { return TypeIgnored }

// UnknownRecord preserves an unrecognized port's payload for diagnostics.
type UnknownRecord struct {
	PortNum uint32 `json:"portnum"`
	RawHex  string `json:"raw"`
}

func (UnknownRecord) Type() string { return TypeUnknown }

// DecodeErrorRecord captures a malformed sub-message on a recognized port.
// The raw bytes are kept so nothing is lost.
type DecodeErrorRecord struct {
	PortNum uint32 `json:"portnum"`
	Err     string `json:"error"`
	RawHex  string `json:"raw"`
}

func (DecodeErrorRecord) Type() string { return TypeDecodeError }
