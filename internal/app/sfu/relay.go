package sfu

import (
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTPSource is the read side of an incoming stream.
type RTPSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Relay copies every packet of one producer to the OutTracks of its consumers.
type Relay struct {
	mu        sync.RWMutex
	outTracks map[string]*OutTrack

	done     chan struct{}
	doneOnce sync.Once
}

func NewRelay() *Relay {
	return &Relay{
		outTracks: make(map[string]*OutTrack),
		done:      make(chan struct{}),
	}
}

// Run reads src until it fails and forwards packets. It returns when the
// source ends, usually because its receiver was stopped.
func (r *Relay) Run(src RTPSource, logger *zerolog.Logger) {
	defer r.finish()
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay source ended")
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*OutTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for dst, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dst)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Sink.WriteRTP(pkt); err != nil {
				logger.Warn().
					Err(err).
					Str("consumer", dst).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dst)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		if ot, ok := r.outTracks[id]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, id)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) finish() {
	r.doneOnce.Do(func() {
		r.markAllDelete()
		close(r.done)
	})
}

// Stop detaches every consumer. Run still exits only when its source fails.
func (r *Relay) Stop() { r.finish() }

// Done is closed once the relay stopped forwarding.
func (r *Relay) Done() <-chan struct{} { return r.done }

func (r *Relay) AddOutTrack(id string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[id] = ot
}

func (r *Relay) OutTrack(id string) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[id]
	return ot, ok
}

func (r *Relay) RemoveOutTrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ot, ok := r.outTracks[id]; ok {
		ot.MarkDelete()
		delete(r.outTracks, id)
	}
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
