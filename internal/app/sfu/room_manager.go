package sfu

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

type RoomInfo struct {
	ID        domain.RoomID   `json:"id"`
	Worker    int             `json:"worker"`
	Peers     []domain.UserID `json:"peers"`
	Producers []ProducerInfo  `json:"producers"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RoomManager is the relay room registry. Rooms are created on first join,
// placed on a worker once, and dropped when their last peer leaves.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*Room
	pool   *WorkerPool
	codecs []core.Codec

	notifyMu sync.RWMutex
	notify   func(ProducerClosed)
}

func NewRoomManager(pool *WorkerPool, codecs []core.Codec) *RoomManager {
	if len(codecs) == 0 {
		codecs = DefaultMediaCodecs()
	}
	return &RoomManager{
		rooms:  make(map[domain.RoomID]*Room),
		pool:   pool,
		codecs: codecs,
	}
}

// OnProducerClosed sets the callback told about consumers losing their source.
func (m *RoomManager) OnProducerClosed(fn func(ProducerClosed)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.notify = fn
}

func (m *RoomManager) emit(ev ProducerClosed) {
	m.notifyMu.RLock()
	fn := m.notify
	m.notifyMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// CreateOrJoin returns the room capabilities, creating the room on first use,
// and makes uid a peer of it. Repeated calls return the same codec set.
func (m *RoomManager) CreateOrJoin(id domain.RoomID, uid domain.UserID) (core.RTPCapabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		w, err := m.pool.Pick()
		if err != nil {
			return core.RTPCapabilities{}, err
		}
		room = newRoom(id, w, m.codecs, m.emit)
		w.addRoom(1)
		m.rooms[id] = room
		metrics.RelayRooms.Set(float64(len(m.rooms)))
		log.Info().Str("module", "sfu.rooms").Str("room", string(id)).Int("worker", w.ID()).Msg("relay room created")
	}
	room.join(uid)
	return room.Capabilities(), nil
}

func (m *RoomManager) Get(id domain.RoomID) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room, nil
}

func (m *RoomManager) Capabilities(id domain.RoomID) (core.RTPCapabilities, error) {
	room, err := m.Get(id)
	if err != nil {
		return core.RTPCapabilities{}, err
	}
	return room.Capabilities(), nil
}

func (m *RoomManager) CreateTransport(ctx context.Context, id domain.RoomID, uid domain.UserID) (core.TransportParams, error) {
	room, err := m.Get(id)
	if err != nil {
		return core.TransportParams{}, err
	}
	return room.CreateTransport(ctx, uid)
}

func (m *RoomManager) ConnectTransport(ctx context.Context, id domain.RoomID, uid domain.UserID, params core.ConnectParams) error {
	room, err := m.Get(id)
	if err != nil {
		return err
	}
	return room.ConnectTransport(ctx, uid, params)
}

func (m *RoomManager) Produce(ctx context.Context, id domain.RoomID, uid domain.UserID, kind core.MediaKind, params core.RTPParameters) (ProducerInfo, []domain.UserID, error) {
	room, err := m.Get(id)
	if err != nil {
		return ProducerInfo{}, nil, err
	}
	return room.Produce(ctx, uid, kind, params)
}

func (m *RoomManager) Consume(ctx context.Context, id domain.RoomID, uid domain.UserID, producerID string, caps core.RTPCapabilities) (core.ConsumerParams, error) {
	room, err := m.Get(id)
	if err != nil {
		return core.ConsumerParams{}, err
	}
	return room.Consume(ctx, uid, producerID, caps)
}

func (m *RoomManager) CloseProducer(id domain.RoomID, uid domain.UserID, producerID string) error {
	room, err := m.Get(id)
	if err != nil {
		return err
	}
	return room.CloseProducer(uid, producerID)
}

func (m *RoomManager) SetConsumerPaused(id domain.RoomID, uid domain.UserID, consumerID string, paused bool) error {
	room, err := m.Get(id)
	if err != nil {
		return err
	}
	return room.SetConsumerPaused(uid, consumerID, paused)
}

func (m *RoomManager) Producers(id domain.RoomID) ([]ProducerInfo, error) {
	room, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return room.Producers(), nil
}

// Leave releases uid's relay objects in one room.
func (m *RoomManager) Leave(id domain.RoomID, uid domain.UserID) error {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if !ok {
		m.mu.Unlock()
		return core.ErrRoomNotFound
	}
	td, empty := room.leave(uid)
	if empty {
		m.dropLocked(room)
	}
	m.mu.Unlock()
	room.finish(td)
	return nil
}

// CloseUser releases uid's relay objects in every room and returns the
// rooms it was in.
func (m *RoomManager) CloseUser(uid domain.UserID) []domain.RoomID {
	type pending struct {
		room *Room
		td   teardown
	}
	var (
		left []domain.RoomID
		done []pending
	)
	m.mu.Lock()
	for id, room := range m.rooms {
		if !room.hasPeer(uid) {
			continue
		}
		td, empty := room.leave(uid)
		if empty {
			m.dropLocked(room)
		}
		left = append(left, id)
		done = append(done, pending{room: room, td: td})
	}
	m.mu.Unlock()
	for _, p := range done {
		p.room.finish(p.td)
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	return left
}

func (m *RoomManager) dropLocked(room *Room) {
	delete(m.rooms, room.id)
	room.worker.addRoom(-1)
	metrics.RelayRooms.Set(float64(len(m.rooms)))
	log.Info().Str("module", "sfu.rooms").Str("room", string(room.id)).Msg("relay room closed")
}

// Close tears down every room; used on shutdown.
func (m *RoomManager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
		m.dropLocked(room)
	}
	m.mu.Unlock()
	for _, room := range rooms {
		room.finish(room.closeAll())
	}
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomInfo{
			ID:        room.id,
			Worker:    room.worker.ID(),
			Peers:     room.Peers(),
			Producers: room.Producers(),
			CreatedAt: room.created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
