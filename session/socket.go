package session

import "net"

// Socket is the transport-layer connection handle a Session owns, opaque to
// the registry. The transport layer (TCP, websocket, ...) implements it and
// hands it to Service.Create when a connection is accepted. Implementations
// must be safe for concurrent use.
type Socket interface {
	// Send writes one message to the connection.
	//
	// Parameters:
	//   - msg: The encoded message bytes to send
	//
	// Returns:
	//   - An error if the write failed
	Send(msg []byte) error

	// SendBatch writes several messages to the connection, preserving order.
	//
	// Parameters:
	//   - msgs: The encoded messages to send
	//
	// Returns:
	//   - An error if any write failed
	SendBatch(msgs [][]byte) error

	// Disconnect tears the connection down. It is invoked by the session's
	// close protocol one scheduler tick after the closed notification fired.
	//
	// Returns:
	//   - An error if closing the connection failed
	Disconnect() error

	// RemoteAddr returns the remote address of the connection, or nil if the
	// connection never had one.
	RemoteAddr() net.Addr

	// Closing notifies the transport that an orderly close has begun, before
	// Disconnect is scheduled. Transports may use it to flush pending writes
	// or to tell the client why it is being dropped.
	//
	// Parameters:
	//   - reason: Human-readable close reason (e.g. "kicked by admin")
	Closing(reason string)
}
