package core

// Frame is a raw text payload of the signaling protocol.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// Handles are compared by identity, so implementations must be pointers.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
