package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Transport wraps the ORTC objects of one client path. The server side is
// ICE-lite and always controlled.
type Transport struct {
	id       string
	engine   *Engine
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	params   core.TransportParams
	log      zerolog.Logger

	connectOnce sync.Once
	ready       chan struct{}
	readyErr    error

	mu        sync.Mutex
	closed    bool
	producers map[string]*Producer
	consumers map[string]*Consumer
}

func (t *Transport) ID() string                   { return t.id }
func (t *Transport) Params() core.TransportParams { return t.params }

// Connect validates the remote parameters and starts the handshake in the
// background. Calls after the first are no-ops.
func (t *Transport) Connect(_ context.Context, params core.ConnectParams) error {
	if params.ICEParameters == nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidRTPParameters, ErrMissingICE)
	}
	dtlsParams, err := toDTLSParameters(params.DTLSParameters)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidRTPParameters, err)
	}
	candidates, err := toICECandidates(params.ICECandidates)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidRTPParameters, err)
	}
	iceParams := toICEParameters(*params.ICEParameters)

	t.connectOnce.Do(func() {
		go t.handshake(iceParams, candidates, dtlsParams)
	})
	return nil
}

func (t *Transport) handshake(iceParams webrtc.ICEParameters, candidates []webrtc.ICECandidate, dtlsParams webrtc.DTLSParameters) {
	err := func() error {
		if len(candidates) > 0 {
			if err := t.ice.SetRemoteCandidates(candidates); err != nil {
				return fmt.Errorf("remote candidates: %w", err)
			}
		}
		role := webrtc.ICERoleControlled
		if err := t.ice.Start(nil, iceParams, &role); err != nil {
			return fmt.Errorf("ice start: %w", err)
		}
		if err := t.dtls.Start(dtlsParams); err != nil {
			return fmt.Errorf("dtls start: %w", err)
		}
		return nil
	}()
	t.readyErr = err
	close(t.ready)
	if err != nil {
		t.log.Warn().Err(err).Msg("transport handshake failed")
		return
	}
	t.log.Info().Msg("transport connected")
}

// waitReady blocks until the handshake finished or gave up.
func (t *Transport) waitReady(stop <-chan struct{}) error {
	timer := time.NewTimer(t.engine.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-t.ready:
		return t.readyErr
	case <-stop:
		return errStopped
	case <-timer.C:
		return ErrHandshakeTimedOut
	}
}

func (t *Transport) Produce(_ context.Context, kind core.MediaKind, params core.RTPParameters) (core.MediaProducer, error) {
	if params.Empty() {
		return nil, core.ErrInvalidRTPParameters
	}
	receiver, err := t.engine.api.NewRTPReceiver(codecType(kind), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	p := newProducer(uuid.NewString(), kind, params, t, receiver)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = receiver.Stop()
		return nil, core.ErrTransportNotFound
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	go p.receive()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, src core.MediaProducer, codec core.RTPCodecParameters) (core.MediaConsumer, error) {
	prod, ok := src.(*Producer)
	if !ok {
		return nil, ErrForeignProducer
	}
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(toCapability(codec), id, "stream-"+prod.id)
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	sender, err := t.engine.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	sp := sender.GetParameters()
	if err := sender.Send(sp); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("rtp send: %w", err)
	}
	var ssrc uint32
	if len(sp.Encodings) > 0 {
		ssrc = uint32(sp.Encodings[0].SSRC)
	}
	c := &Consumer{
		id:       id,
		kind:     prod.kind,
		producer: prod,
		sender:   sender,
		params: core.RTPParameters{
			Codecs:    []core.RTPCodecParameters{codec},
			Encodings: []core.RTPEncoding{{SSRC: ssrc}},
		},
		transport: t,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = sender.Stop()
		return nil, core.ErrTransportNotFound
	}
	t.consumers[id] = c
	t.mu.Unlock()

	c.out = prod.attach(id, track)
	go c.readRTCP()
	return c, nil
}

func (t *Transport) dropProducer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

func (t *Transport) dropConsumer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

// Close stops every stream of the transport, then DTLS and ICE.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range consumers {
		errs = append(errs, c.Close())
	}
	for _, p := range producers {
		errs = append(errs, p.Close())
	}
	errs = append(errs, t.dtls.Stop(), t.ice.Stop(), t.gatherer.Close())
	t.engine.forget(t.id)
	t.log.Debug().Msg("transport closed")
	return errors.Join(errs...)
}
