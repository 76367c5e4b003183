package transport

import "tarun-kavipurapu/lanfetch/pkg/protocol"

// Transport is a datagram channel shared by every member of a discovery group.
type Transport interface {
	// Send delivers one payload to the group. It is safe for concurrent use.
	Send(payload []byte) error
	// Consume yields received datagrams; it is closed once the transport stops.
	Consume() <-chan protocol.RPC
	Close() error
	Addr() string
}
