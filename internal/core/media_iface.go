package core

import "context"

// MediaEngine is the relay library hosted by one worker.
type MediaEngine interface {
	NewTransport(ctx context.Context, label string) (MediaTransport, error)
	// Failed is closed with a reason when the engine can no longer serve.
	Failed() <-chan error
	Close() error
}

// MediaTransport is one client's ICE/DTLS path into a relay room.
type MediaTransport interface {
	ID() string
	Params() TransportParams
	// Connect applies remote parameters once; the handshake completes in background.
	Connect(ctx context.Context, params ConnectParams) error
	Produce(ctx context.Context, kind MediaKind, params RTPParameters) (MediaProducer, error)
	// Consume binds a new outgoing stream of src using codec.
	Consume(ctx context.Context, src MediaProducer, codec RTPCodecParameters) (MediaConsumer, error)
	Close() error
}

// MediaProducer is an incoming stream forwarded to its consumers.
type MediaProducer interface {
	ID() string
	Kind() MediaKind
	RTPParameters() RTPParameters
	Close() error
	// Done is closed when the stream stops on its own or after Close.
	Done() <-chan struct{}
}

type MediaConsumer interface {
	ID() string
	Kind() MediaKind
	RTPParameters() RTPParameters
	SetPaused(paused bool)
	Close() error
}
