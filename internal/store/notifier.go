package store

// Notifier is the change sink the store calls into after state changes.
// Implementations must not block for long: callbacks run on the ingestion
// path. The API layer installs a fan-out implementation that pushes events
// to connected clients.
type Notifier interface {
	// OnNodeChanged fires when a node is created or any of its fields or
	// its position quality change.
	OnNodeChanged(nodeID string)

	// OnPacketReceived fires after a packet is appended to the log.
	OnPacketReceived(pkt *Packet)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OnNodeChanged(string)     {}
func (NopNotifier) OnPacketReceived(*Packet) {}
