package sfu

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProducerClosed tells the owner of a consumer that its source went away.
type ProducerClosed struct {
	RoomID     domain.RoomID
	UserID     domain.UserID
	ConsumerID string
	ProducerID string
}

// peer is one user's relay state inside a room.
type peer struct {
	transport core.MediaTransport
	connected bool
	// connecting is the in-flight Connect of transport, shared by concurrent callers.
	connecting *connectAttempt
	// producer is the registry entry: the latest producer of the user.
	producer  *Producer
	producers map[string]*Producer
	consumers map[string]*Consumer
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

func newPeer() *peer {
	return &peer{
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
}

// Room is a relay room bound to one worker for its whole life.
// Relay calls run on the worker without holding the room lock, and the
// room state is checked again once they return.
type Room struct {
	id      domain.RoomID
	worker  *Worker
	caps    core.RTPCapabilities
	notify  func(ProducerClosed)
	created time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	peers     map[domain.UserID]*peer
	producers map[string]*Producer
	closed    bool
}

func newRoom(id domain.RoomID, worker *Worker, codecs []core.Codec, notify func(ProducerClosed)) *Room {
	return &Room{
		id:        id,
		worker:    worker,
		caps:      capabilitiesOf(codecs),
		notify:    notify,
		created:   time.Now(),
		log:       log.With().Str("module", "sfu.room").Str("room", string(id)).Int("worker", worker.ID()).Logger(),
		peers:     make(map[domain.UserID]*peer),
		producers: make(map[string]*Producer),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }
func (r *Room) Worker() *Worker   { return r.worker }

func (r *Room) Capabilities() core.RTPCapabilities { return capabilitiesOf(r.caps.Codecs) }

func (r *Room) ensurePeerLocked(uid domain.UserID) *peer {
	p, ok := r.peers[uid]
	if !ok {
		p = newPeer()
		r.peers[uid] = p
	}
	return p
}

func (r *Room) join(uid domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensurePeerLocked(uid)
}

// CreateTransport allocates the user's transport. A previous transport of
// the same user is replaced and closed with everything sent over it.
func (r *Room) CreateTransport(ctx context.Context, uid domain.UserID) (core.TransportParams, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.TransportParams{}, core.ErrRoomNotFound
	}
	r.mu.Unlock()

	var t core.MediaTransport
	label := fmt.Sprintf("%s/%s", r.id, uid)
	err := r.worker.Do(ctx, func(e core.MediaEngine) error {
		var err error
		t, err = e.NewTransport(ctx, label)
		return err
	})
	if err != nil {
		return core.TransportParams{}, fmt.Errorf("create transport: %w", err)
	}
	metrics.RelayObjects.WithLabelValues("transport").Inc()

	var td teardown
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		td.transports = append(td.transports, t)
		r.finish(td)
		return core.TransportParams{}, core.ErrRoomNotFound
	}
	p := r.ensurePeerLocked(uid)
	if p.transport != nil {
		r.detachPeerLocked(p, &td)
	}
	p.transport = t
	p.connected = false
	p.connecting = nil
	r.mu.Unlock()

	r.finish(td)
	r.log.Info().Str("user", string(uid)).Str("transport", t.ID()).Bool("replaced", len(td.transports) > 0).Msg("transport created")
	return t.Params(), nil
}

// ConnectTransport applies the remote DTLS parameters once. Later calls on
// a connected transport succeed without touching it; calls made while the
// first one runs wait for it and share its result.
func (r *Room) ConnectTransport(ctx context.Context, uid domain.UserID, params core.ConnectParams) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.ErrRoomNotFound
	}
	p := r.peers[uid]
	if p == nil || p.transport == nil {
		r.mu.Unlock()
		return core.ErrTransportNotFound
	}
	if p.connected {
		r.mu.Unlock()
		r.log.Debug().Str("user", string(uid)).Msg("transport already connected")
		return nil
	}
	if a := p.connecting; a != nil {
		r.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &connectAttempt{done: make(chan struct{})}
	p.connecting = a
	t := p.transport
	r.mu.Unlock()

	err := r.worker.Do(ctx, func(core.MediaEngine) error { return t.Connect(ctx, params) })
	if err != nil {
		err = fmt.Errorf("connect transport: %w", err)
	}
	r.mu.Lock()
	if cur := r.peers[uid]; cur != nil && cur.transport == t && cur.connecting == a {
		cur.connected = err == nil
		cur.connecting = nil
	}
	r.mu.Unlock()
	a.err = err
	close(a.done)
	if err != nil {
		return err
	}
	r.log.Info().Str("user", string(uid)).Str("transport", t.ID()).Msg("transport connected")
	return nil
}

// Produce starts receiving media from uid. The new producer becomes the
// user's registry entry; one it replaces keeps serving its consumers.
// The returned users are the other peers to tell about it.
func (r *Room) Produce(ctx context.Context, uid domain.UserID, kind core.MediaKind, params core.RTPParameters) (ProducerInfo, []domain.UserID, error) {
	if params.Empty() {
		return ProducerInfo{}, nil, core.ErrInvalidRTPParameters
	}
	if _, err := routerCodec(r.caps, kind, params.Codecs[0]); err != nil {
		return ProducerInfo{}, nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ProducerInfo{}, nil, core.ErrRoomNotFound
	}
	p := r.peers[uid]
	if p == nil || p.transport == nil {
		r.mu.Unlock()
		return ProducerInfo{}, nil, core.ErrTransportNotFound
	}
	t := p.transport
	r.mu.Unlock()

	var mp core.MediaProducer
	err := r.worker.Do(ctx, func(core.MediaEngine) error {
		var err error
		mp, err = t.Produce(ctx, kind, params)
		return err
	})
	if err != nil {
		return ProducerInfo{}, nil, fmt.Errorf("produce: %w", err)
	}
	metrics.RelayObjects.WithLabelValues("producer").Inc()
	prod := newProducer(mp, uid)

	r.mu.Lock()
	if cur := r.peers[uid]; r.closed || cur != p || cur.transport != t {
		r.mu.Unlock()
		prod.markClosed()
		r.finish(teardown{producers: []*Producer{prod}})
		return ProducerInfo{}, nil, core.ErrTransportNotFound
	}
	if prev := p.producer; prev != nil {
		r.log.Debug().Str("user", string(uid)).Str("previous", prev.ID()).Msg("producer entry replaced")
	}
	p.producer = prod
	p.producers[prod.ID()] = prod
	r.producers[prod.ID()] = prod
	others := r.othersLocked(uid)
	r.mu.Unlock()

	go r.watch(prod)
	r.log.Info().Str("user", string(uid)).Str("producer", prod.ID()).Str("kind", string(kind)).Msg("producer created")
	return prod.Info(), others, nil
}

// Consume subscribes uid to a live producer of this room.
func (r *Room) Consume(ctx context.Context, uid domain.UserID, producerID string, caps core.RTPCapabilities) (core.ConsumerParams, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.ConsumerParams{}, core.ErrRoomNotFound
	}
	prod, ok := r.producers[producerID]
	if !ok {
		r.mu.Unlock()
		return core.ConsumerParams{}, core.ErrProducerNotFound
	}
	codec, ok := CanConsume(r.caps, prod.Kind(), prod.media.RTPParameters(), caps)
	if !ok {
		r.mu.Unlock()
		return core.ConsumerParams{}, core.ErrIncompatibleCapabilities
	}
	p := r.peers[uid]
	if p == nil || p.transport == nil {
		r.mu.Unlock()
		return core.ConsumerParams{}, core.ErrTransportNotFound
	}
	t := p.transport
	r.mu.Unlock()

	var mc core.MediaConsumer
	err := r.worker.Do(ctx, func(core.MediaEngine) error {
		var err error
		mc, err = t.Consume(ctx, prod.media, codec)
		return err
	})
	if err != nil {
		return core.ConsumerParams{}, fmt.Errorf("consume: %w", err)
	}
	metrics.RelayObjects.WithLabelValues("consumer").Inc()
	cons := &Consumer{media: mc, owner: uid, producer: prod}

	r.mu.Lock()
	if cur := r.peers[uid]; r.closed || cur != p || cur.transport != t {
		r.mu.Unlock()
		r.finish(teardown{consumers: []*Consumer{cons}})
		return core.ConsumerParams{}, core.ErrTransportNotFound
	}
	if !prod.subscribe(cons) {
		r.mu.Unlock()
		r.finish(teardown{consumers: []*Consumer{cons}})
		return core.ConsumerParams{}, core.ErrProducerNotFound
	}
	p.consumers[cons.ID()] = cons
	params := cons.Params()
	r.mu.Unlock()

	r.log.Info().Str("user", string(uid)).Str("consumer", cons.ID()).Str("producer", producerID).Msg("consumer created")
	return params, nil
}

// CloseProducer closes one of uid's own producers.
func (r *Room) CloseProducer(uid domain.UserID, producerID string) error {
	var td teardown
	r.mu.Lock()
	prod, ok := r.producers[producerID]
	switch {
	case !ok:
		r.mu.Unlock()
		return core.ErrProducerNotFound
	case prod.owner != uid:
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", core.ErrProducerNotFound, ErrProducerOwner)
	}
	r.detachProducerLocked(prod, &td)
	r.mu.Unlock()
	r.finish(td)
	return nil
}

// SetConsumerPaused stops or restarts forwarding to one of uid's consumers.
func (r *Room) SetConsumerPaused(uid domain.UserID, consumerID string, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.peers[uid]
	if p == nil {
		return core.ErrConsumerNotFound
	}
	c, ok := p.consumers[consumerID]
	if !ok {
		return core.ErrConsumerNotFound
	}
	c.paused = paused
	c.media.SetPaused(paused)
	return nil
}

// watch releases a producer whose stream ended without being closed here.
func (r *Room) watch(prod *Producer) {
	<-prod.media.Done()
	var td teardown
	r.mu.Lock()
	if r.producers[prod.ID()] == prod {
		r.log.Info().Str("producer", prod.ID()).Msg("producer stream ended")
		r.detachProducerLocked(prod, &td)
	}
	r.mu.Unlock()
	r.finish(td)
}

// Producers lists live producers sorted by owner.
func (r *Room) Producers() []ProducerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProducerInfo, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Peers returns the users of the room, sorted.
func (r *Room) Peers() []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.othersLocked("")
}

func (r *Room) othersLocked(uid domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(r.peers))
	for u := range r.peers {
		if u != uid {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Room) hasPeer(uid domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[uid]
	return ok
}

// leave drops uid with all its relay objects. The room closes when it was
// the last peer.
func (r *Room) leave(uid domain.UserID) (td teardown, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[uid]; ok {
		r.detachPeerLocked(p, &td)
		delete(r.peers, uid)
		r.log.Info().Str("user", string(uid)).Msg("peer left")
	}
	if len(r.peers) == 0 {
		r.closed = true
	}
	return td, r.closed
}

func (r *Room) closeAll() teardown {
	r.mu.Lock()
	defer r.mu.Unlock()
	var td teardown
	for uid, p := range r.peers {
		r.detachPeerLocked(p, &td)
		delete(r.peers, uid)
	}
	r.closed = true
	return td
}

// detachPeerLocked takes every relay object of p out of the room.
func (r *Room) detachPeerLocked(p *peer, td *teardown) {
	for id, c := range p.consumers {
		c.producer.unsubscribe(id)
		td.consumers = append(td.consumers, c)
	}
	clear(p.consumers)
	for _, prod := range p.producers {
		r.detachProducerLocked(prod, td)
	}
	if p.transport != nil {
		td.transports = append(td.transports, p.transport)
		p.transport = nil
		p.connected = false
		p.connecting = nil
	}
}

func (r *Room) detachProducerLocked(prod *Producer, td *teardown) {
	delete(r.producers, prod.ID())
	if owner := r.peers[prod.owner]; owner != nil {
		delete(owner.producers, prod.ID())
		if owner.producer == prod {
			owner.producer = nil
		}
	}
	deps, ok := prod.markClosed()
	if !ok {
		return
	}
	td.producers = append(td.producers, prod)
	for _, c := range deps {
		if cp := r.peers[c.owner]; cp != nil {
			delete(cp.consumers, c.ID())
		}
		td.consumers = append(td.consumers, c)
		td.events = append(td.events, ProducerClosed{
			RoomID:     r.id,
			UserID:     c.owner,
			ConsumerID: c.ID(),
			ProducerID: prod.ID(),
		})
	}
}

func (r *Room) finish(td teardown) {
	td.run(r.notify, &r.log)
}

// teardown collects relay objects taken out of a room so they can be closed
// and reported after the room lock is released.
type teardown struct {
	consumers  []*Consumer
	producers  []*Producer
	transports []core.MediaTransport
	events     []ProducerClosed
}

func (td teardown) run(notify func(ProducerClosed), logger *zerolog.Logger) {
	for _, c := range td.consumers {
		if err := c.media.Close(); err != nil {
			logger.Warn().Err(err).Str("consumer", c.ID()).Msg("consumer close")
		}
		metrics.RelayObjects.WithLabelValues("consumer").Dec()
	}
	for _, p := range td.producers {
		if err := p.media.Close(); err != nil {
			logger.Warn().Err(err).Str("producer", p.ID()).Msg("producer close")
		}
		metrics.RelayObjects.WithLabelValues("producer").Dec()
	}
	for _, t := range td.transports {
		if err := t.Close(); err != nil {
			logger.Warn().Err(err).Str("transport", t.ID()).Msg("transport close")
		}
		metrics.RelayObjects.WithLabelValues("transport").Dec()
	}
	if notify == nil {
		return
	}
	for _, ev := range td.events {
		notify(ev)
	}
}
