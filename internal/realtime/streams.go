package realtime

// Named realtime streams.
const (
	StreamConnections = "connections"
)

// Events published on StreamConnections.
const (
	EventConnectionsChanged = "connections.changed"
)
