package model

// TransportType is how a tool server is reached.
type TransportType string

const (
	TransportSSE   TransportType = "sse"
	TransportHTTP  TransportType = "streamable-http"
	TransportStdio TransportType = "stdio"
)

// ToolServerStatus is the client-side view of a tool server connection.
// The remote list endpoint carries no status; the sync controller maps
// every fetched record to StatusConnected.
type ToolServerStatus string

const (
	StatusConnected    ToolServerStatus = "connected"
	StatusDisconnected ToolServerStatus = "disconnected"
)

// ToolServer is an MCP-style external tool connection. The collection is
// ordered; position is the priority and display order.
type ToolServer struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Transport TransportType    `json:"transport_type"`
	Endpoint  string           `json:"endpoint"`
	Enabled   bool             `json:"enabled"`
	Status    ToolServerStatus `json:"status"`
}
