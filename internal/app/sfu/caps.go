package sfu

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/huddle/internal/core"
)

const (
	MimeTypeOpus = "audio/opus"
	MimeTypeVP8  = "video/VP8"
)

// DefaultMediaCodecs is the fixed codec set of every relay room.
func DefaultMediaCodecs() []core.Codec {
	return []core.Codec{
		{Kind: core.KindAudio, MimeType: MimeTypeOpus, ClockRate: 48000, Channels: 2, PayloadType: 111, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		{Kind: core.KindVideo, MimeType: MimeTypeVP8, ClockRate: 90000, PayloadType: 96},
	}
}

func capabilitiesOf(codecs []core.Codec) core.RTPCapabilities {
	return core.RTPCapabilities{Codecs: slices.Clone(codecs)}
}

func sameCodec(kind core.MediaKind, c core.Codec, mime string, clockRate uint32, channels uint16) bool {
	if c.Kind != "" && c.Kind != kind {
		return false
	}
	if !strings.EqualFold(c.MimeType, mime) || c.ClockRate != clockRate {
		return false
	}
	return kind != core.KindAudio || channelsOrOne(c.Channels) == channelsOrOne(channels)
}

func channelsOrOne(ch uint16) uint16 {
	if ch == 0 {
		return 1
	}
	return ch
}

// routerCodec finds the room codec a producer sends with.
func routerCodec(caps core.RTPCapabilities, kind core.MediaKind, p core.RTPCodecParameters) (core.Codec, error) {
	for _, c := range caps.Codecs {
		if sameCodec(kind, c, p.MimeType, p.ClockRate, p.Channels) {
			return c, nil
		}
	}
	return core.Codec{}, fmt.Errorf("%w: %s/%d not supported by router", core.ErrIncompatibleCapabilities, p.MimeType, p.ClockRate)
}

// CanConsume checks that a consumer with caps can decode what the producer
// sends through this router, and returns the codec the consumer will get.
// Forwarded packets carry the router's payload type.
func CanConsume(router core.RTPCapabilities, kind core.MediaKind, producer core.RTPParameters, caps core.RTPCapabilities) (core.RTPCodecParameters, bool) {
	if producer.Empty() {
		return core.RTPCodecParameters{}, false
	}
	src := producer.Codecs[0]
	rc, err := routerCodec(router, kind, src)
	if err != nil {
		return core.RTPCodecParameters{}, false
	}
	for _, c := range caps.Codecs {
		if !sameCodec(kind, c, rc.MimeType, rc.ClockRate, rc.Channels) {
			continue
		}
		return core.RTPCodecParameters{
			MimeType:    rc.MimeType,
			PayloadType: rc.PayloadType,
			ClockRate:   rc.ClockRate,
			Channels:    rc.Channels,
			SDPFmtpLine: rc.SDPFmtpLine,
		}, true
	}
	return core.RTPCodecParameters{}, false
}
