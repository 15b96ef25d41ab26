package rtc

import (
	"sync"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// Producer receives one client stream and fans it out through a relay.
type Producer struct {
	id        string
	kind      core.MediaKind
	params    core.RTPParameters
	transport *Transport
	receiver  *webrtc.RTPReceiver
	relay     *sfu.Relay

	closeOnce sync.Once
	stop      chan struct{}
}

func newProducer(id string, kind core.MediaKind, params core.RTPParameters, t *Transport, receiver *webrtc.RTPReceiver) *Producer {
	return &Producer{
		id:        id,
		kind:      kind,
		params:    params,
		transport: t,
		receiver:  receiver,
		relay:     sfu.NewRelay(),
		stop:      make(chan struct{}),
	}
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() core.MediaKind              { return p.kind }
func (p *Producer) RTPParameters() core.RTPParameters { return p.params }
func (p *Producer) Done() <-chan struct{}             { return p.relay.Done() }

// receive waits for the transport, binds the receiver to the announced
// encoding and forwards until the stream ends.
func (p *Producer) receive() {
	logger := p.transport.log.With().Str("producer", p.id).Str("kind", string(p.kind)).Logger()
	if err := p.transport.waitReady(p.stop); err != nil {
		logger.Warn().Err(err).Msg("producer never started")
		p.relay.Stop()
		return
	}
	enc := p.params.Encodings[0]
	err := p.receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(enc.SSRC),
				PayloadType: webrtc.PayloadType(p.params.Codecs[0].PayloadType),
			},
		}},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("rtp receive failed")
		p.relay.Stop()
		return
	}
	track := p.receiver.Track()
	if track == nil {
		p.relay.Stop()
		return
	}
	logger.Info().Uint32("ssrc", enc.SSRC).Msg("producer receiving")
	p.relay.Run(track, &logger)
}

// attach adds an outgoing track of a consumer to the relay.
func (p *Producer) attach(id string, sink sfu.RTPSink) *sfu.OutTrack {
	ot := sfu.NewOutTrack(sink)
	p.relay.AddOutTrack(id, ot)
	return ot
}

func (p *Producer) detach(id string) {
	p.relay.RemoveOutTrack(id)
}

// RequestKeyFrame asks the sending client for a new video key frame.
func (p *Producer) RequestKeyFrame() error {
	if p.kind != core.KindVideo || len(p.params.Encodings) == 0 {
		return nil
	}
	_, err := p.transport.dtls.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: p.params.Encodings[0].SSRC},
	})
	return err
}

func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stop)
		err = p.receiver.Stop()
		p.relay.Stop()
		p.transport.dropProducer(p.id)
	})
	return err
}
