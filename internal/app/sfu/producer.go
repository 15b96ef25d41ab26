package sfu

import (
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// ProducerInfo is a read-only view of a live producer.
type ProducerInfo struct {
	ID     string         `json:"producerId"`
	UserID domain.UserID  `json:"userId"`
	Kind   core.MediaKind `json:"kind"`
}

// Producer wraps a media producer with the set of consumers fed by it.
// Consumers keep a pointer to their Producer, so a producer replaced in
// the room registry still reaches them when it closes.
type Producer struct {
	media core.MediaProducer
	owner domain.UserID

	mu        sync.Mutex
	consumers map[string]*Consumer
	closed    bool
}

func newProducer(media core.MediaProducer, owner domain.UserID) *Producer {
	return &Producer{
		media:     media,
		owner:     owner,
		consumers: make(map[string]*Consumer),
	}
}

func (p *Producer) ID() string           { return p.media.ID() }
func (p *Producer) Kind() core.MediaKind { return p.media.Kind() }
func (p *Producer) Owner() domain.UserID { return p.owner }

func (p *Producer) Info() ProducerInfo {
	return ProducerInfo{ID: p.ID(), UserID: p.owner, Kind: p.Kind()}
}

// subscribe fails once the producer is closed.
func (p *Producer) subscribe(c *Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.consumers[c.ID()] = c
	return true
}

func (p *Producer) unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

// markClosed flips the producer to closed and hands back its consumers.
// Only the first call gets them.
func (p *Producer) markClosed() ([]*Consumer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	p.closed = true
	out := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		out = append(out, c)
	}
	clear(p.consumers)
	return out, true
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
