// Package sfutest provides an in-memory media engine for relay tests.
package sfutest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("sfutest: closed")

var ssrc atomic.Uint32

// Engine records every transport it creates.
type Engine struct {
	mu         sync.Mutex
	transports []*Transport
	failed     chan error
	closed     bool

	// FailNewTransport, when set, is returned by NewTransport.
	FailNewTransport error
	// OnNewTransport runs inside NewTransport, on the worker loop.
	OnNewTransport func()
}

func NewEngine() *Engine {
	return &Engine{failed: make(chan error, 1)}
}

func (e *Engine) NewTransport(_ context.Context, label string) (core.MediaTransport, error) {
	if e.OnNewTransport != nil {
		e.OnNewTransport()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailNewTransport != nil {
		return nil, e.FailNewTransport
	}
	if e.closed {
		return nil, ErrClosed
	}
	t := &Transport{id: uuid.NewString(), Label: label}
	e.transports = append(e.transports, t)
	return t, nil
}

// Fail reports an engine failure to the owning worker.
func (e *Engine) Fail(err error) {
	select {
	case e.failed <- err:
	default:
	}
}

func (e *Engine) Failed() <-chan error { return e.failed }

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) Transports() []*Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Transport(nil), e.transports...)
}

type Transport struct {
	id    string
	Label string
	// OnConnect, when set, runs first in Connect; its error fails the call.
	OnConnect func() error

	mu        sync.Mutex
	connects  int
	remote    core.ConnectParams
	closed    bool
	producers []*Producer
	consumers []*Consumer
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Params() core.TransportParams {
	return core.TransportParams{
		ID:            t.id,
		ICEParameters: core.ICEParameters{UsernameFragment: "u" + t.id[:8], Password: "p" + t.id},
		ICECandidates: []core.ICECandidate{{Foundation: "1", Priority: 1, Address: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host"}},
		DTLSParameters: core.DTLSParameters{
			Role:         "auto",
			Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
		},
	}
}

func (t *Transport) Connect(_ context.Context, params core.ConnectParams) error {
	if t.OnConnect != nil {
		if err := t.OnConnect(); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.connects++
	t.remote = params
	return nil
}

func (t *Transport) Produce(_ context.Context, kind core.MediaKind, params core.RTPParameters) (core.MediaProducer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	p := &Producer{id: uuid.NewString(), kind: kind, params: params, done: make(chan struct{})}
	t.producers = append(t.producers, p)
	return p, nil
}

func (t *Transport) Consume(_ context.Context, src core.MediaProducer, codec core.RTPCodecParameters) (core.MediaConsumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	c := &Consumer{
		id:         uuid.NewString(),
		ProducerID: src.ID(),
		kind:       src.Kind(),
		params: core.RTPParameters{
			Codecs:    []core.RTPCodecParameters{codec},
			Encodings: []core.RTPEncoding{{SSRC: ssrc.Add(1)}},
		},
	}
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) ConnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

func (t *Transport) Remote() core.ConnectParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Producer(nil), t.producers...)
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
}

type Producer struct {
	id     string
	kind   core.MediaKind
	params core.RTPParameters
	done   chan struct{}
	once   sync.Once
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() core.MediaKind              { return p.kind }
func (p *Producer) RTPParameters() core.RTPParameters { return p.params }
func (p *Producer) Done() <-chan struct{}             { return p.done }

func (p *Producer) Close() error {
	p.End()
	return nil
}

// End simulates the remote stream stopping.
func (p *Producer) End() { p.once.Do(func() { close(p.done) }) }

func (p *Producer) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

type Consumer struct {
	id         string
	ProducerID string
	kind       core.MediaKind
	params     core.RTPParameters
	paused     atomic.Bool
	closed     atomic.Bool
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) Kind() core.MediaKind              { return c.kind }
func (c *Consumer) RTPParameters() core.RTPParameters { return c.params }
func (c *Consumer) SetPaused(paused bool)             { c.paused.Store(paused) }
func (c *Consumer) Paused() bool                      { return c.paused.Load() }
func (c *Consumer) Closed() bool                      { return c.closed.Load() }

func (c *Consumer) Close() error {
	c.closed.Store(true)
	return nil
}

// Opus and VP8 are produce parameters matching the default room codecs.
func Opus() core.RTPParameters {
	return core.RTPParameters{
		Codecs:    []core.RTPCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
		Encodings: []core.RTPEncoding{{SSRC: 1111}},
	}
}

func VP8() core.RTPParameters {
	return core.RTPParameters{
		Codecs:    []core.RTPCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
		Encodings: []core.RTPEncoding{{SSRC: 2222}},
	}
}

// ClientCaps is what a typical browser advertises.
func ClientCaps() core.RTPCapabilities {
	return core.RTPCapabilities{Codecs: []core.Codec{
		{Kind: core.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 109},
		{Kind: core.KindVideo, MimeType: "video/VP8", ClockRate: 90000, PayloadType: 120},
	}}
}
