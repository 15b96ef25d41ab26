package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEngineClosed      = errors.New("media engine closed")
	ErrMissingICE        = errors.New("ice parameters required")
	ErrForeignProducer   = errors.New("producer belongs to another engine")
	ErrHandshakeTimedOut = errors.New("transport handshake timed out")

	errStopped = errors.New("stopped before transport was ready")
)

type EngineConfig struct {
	// AnnouncedIPs replace host candidate addresses, for servers behind NAT.
	AnnouncedIPs []string
	// UDPPort, when set, muxes every transport of the engine on one port.
	UDPPort          int
	PortMin, PortMax uint16
	ICEServers       []string
	ConnectTimeout   time.Duration
}

// Engine is a pion API configured with the room codecs. One engine
// serves one relay worker.
type Engine struct {
	id      int
	api     *webrtc.API
	cfg     EngineConfig
	mux     *ice.MultiUDPMuxDefault
	servers []webrtc.ICEServer
	failed  chan error
	log     zerolog.Logger

	mu         sync.Mutex
	closed     bool
	transports map[string]*Transport
}

func NewEngine(id int, cfg EngineConfig, codecs []core.Codec) (*Engine, error) {
	me := &webrtc.MediaEngine{}
	for _, c := range codecs {
		err := me.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     c.MimeType,
				ClockRate:    c.ClockRate,
				Channels:     c.Channels,
				SDPFmtpLine:  c.SDPFmtpLine,
				RTCPFeedback: feedbackFor(c.Kind),
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}, codecType(c.Kind))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetLite(true)
	if len(cfg.AnnouncedIPs) > 0 {
		se.SetNAT1To1IPs(cfg.AnnouncedIPs, webrtc.ICECandidateTypeHost)
	}
	e := &Engine{
		id:         id,
		cfg:        cfg,
		failed:     make(chan error, 1),
		transports: make(map[string]*Transport),
		log:        log.With().Str("module", "rtc.engine").Int("worker", id).Logger(),
	}
	switch {
	case cfg.UDPPort > 0:
		mux, err := ice.NewMultiUDPMuxFromPort(cfg.UDPPort)
		if err != nil {
			return nil, fmt.Errorf("udp mux on %d: %w", cfg.UDPPort, err)
		}
		e.mux = mux
		se.SetICEUDPMux(mux)
	case cfg.PortMin > 0 && cfg.PortMax >= cfg.PortMin:
		if err := se.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}
	if len(cfg.ICEServers) > 0 {
		e.servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	if e.cfg.ConnectTimeout <= 0 {
		e.cfg.ConnectTimeout = 30 * time.Second
	}

	e.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(se),
		webrtc.WithInterceptorRegistry(ir),
	)
	e.log.Info().Int("udp_port", cfg.UDPPort).Strs("announced_ips", cfg.AnnouncedIPs).Msg("media engine ready")
	return e, nil
}

func feedbackFor(kind core.MediaKind) []webrtc.RTCPFeedback {
	if kind != core.KindVideo {
		return nil
	}
	return []webrtc.RTCPFeedback{
		{Type: webrtc.TypeRTCPFBNACK},
		{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
		{Type: webrtc.TypeRTCPFBGoogREMB},
	}
}

// NewTransport gathers local candidates and prepares ICE and DTLS.
// Nothing is started until Connect.
func (e *Engine) NewTransport(ctx context.Context, label string) (core.MediaTransport, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.mu.Unlock()

	gatherer, err := e.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: e.servers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	gathered := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice parameters: %w", err)
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice candidates: %w", err)
	}
	iceTransport := e.api.NewICETransport(gatherer)
	dtls, err := e.api.NewDTLSTransport(iceTransport, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = dtls.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls parameters: %w", err)
	}

	id := uuid.NewString()
	local := fromICEParameters(iceParams)
	local.ICELite = true
	t := &Transport{
		id:       id,
		engine:   e,
		gatherer: gatherer,
		ice:      iceTransport,
		dtls:     dtls,
		params: core.TransportParams{
			ID:             id,
			ICEParameters:  local,
			ICECandidates:  fromICECandidates(candidates),
			DTLSParameters: fromDTLSParameters(dtlsParams),
		},
		ready:     make(chan struct{}),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
		log:       e.log.With().Str("transport", id).Str("label", label).Logger(),
	}
	e.mu.Lock()
	e.transports[id] = t
	e.mu.Unlock()
	return t, nil
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.transports, id)
}

// Failed never fires on its own: transport failures stay local to their
// peer. It is kept so a worker can be torn down by a broken engine.
func (e *Engine) Failed() <-chan error { return e.failed }

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	transports := make([]*Transport, 0, len(e.transports))
	for _, t := range e.transports {
		transports = append(transports, t)
	}
	e.mu.Unlock()

	var errs []error
	for _, t := range transports {
		errs = append(errs, t.Close())
	}
	if e.mux != nil {
		errs = append(errs, e.mux.Close())
	}
	return errors.Join(errs...)
}
