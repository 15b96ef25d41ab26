package rtc

import (
	"errors"
	"io"
	"sync"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// Consumer sends one producer's packets to a client. The packets are
// rewritten to the consumer's SSRC and payload type by the sender.
type Consumer struct {
	id        string
	kind      core.MediaKind
	params    core.RTPParameters
	producer  *Producer
	sender    *webrtc.RTPSender
	transport *Transport
	out       *sfu.OutTrack

	closeOnce sync.Once
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) Kind() core.MediaKind              { return c.kind }
func (c *Consumer) RTPParameters() core.RTPParameters { return c.params }

// SetPaused mutes the out track; the relay keeps reading the producer.
func (c *Consumer) SetPaused(paused bool) {
	if c.out == nil {
		return
	}
	if paused {
		c.out.MarkMuted()
		return
	}
	c.out.MarkOk()
	// A resumed video consumer cannot decode until the next key frame.
	if err := c.producer.RequestKeyFrame(); err != nil {
		c.transport.log.Debug().Err(err).Str("consumer", c.id).Msg("key frame request failed")
	}
}

// readRTCP drains receiver reports and passes key frame requests upstream.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.transport.log.Debug().Err(err).Str("consumer", c.id).Msg("rtcp read ended")
			}
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if err := c.producer.RequestKeyFrame(); err != nil {
					c.transport.log.Debug().Err(err).Str("consumer", c.id).Msg("key frame request failed")
				}
			}
		}
	}
}

func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.producer.detach(c.id)
		err = c.sender.Stop()
		c.transport.dropConsumer(c.id)
	})
	return err
}
