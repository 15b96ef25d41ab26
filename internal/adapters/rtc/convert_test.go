package rtc

import (
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICECandidatesRoundTrip(t *testing.T) {
	in := []core.ICECandidate{{
		Foundation: "1",
		Priority:   2130706431,
		Address:    "10.0.0.5",
		Protocol:   "udp",
		Port:       40000,
		Type:       "host",
	}}
	out, err := toICECandidates(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, webrtc.ICEProtocolUDP, out[0].Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, out[0].Typ)
	assert.Equal(t, in, fromICECandidates(out))
}

func TestICECandidatesRejectUnknownType(t *testing.T) {
	_, err := toICECandidates([]core.ICECandidate{{Protocol: "udp", Type: "wormhole"}})
	require.Error(t, err)
	_, err = toICECandidates([]core.ICECandidate{{Protocol: "sctp", Type: "host"}})
	require.Error(t, err)
}

func TestDTLSParameters(t *testing.T) {
	fp := []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}}
	cases := []struct {
		role string
		want webrtc.DTLSRole
	}{
		{"", webrtc.DTLSRoleAuto},
		{"auto", webrtc.DTLSRoleAuto},
		{"client", webrtc.DTLSRoleClient},
		{"Server", webrtc.DTLSRoleServer},
	}
	for _, tc := range cases {
		got, err := toDTLSParameters(core.DTLSParameters{Role: tc.role, Fingerprints: fp})
		require.NoError(t, err, tc.role)
		assert.Equal(t, tc.want, got.Role, tc.role)
		assert.Equal(t, "AB:CD", got.Fingerprints[0].Value)
	}

	_, err := toDTLSParameters(core.DTLSParameters{Role: "peer", Fingerprints: fp})
	require.Error(t, err)
	_, err = toDTLSParameters(core.DTLSParameters{Role: "client"})
	require.Error(t, err)
}

func TestConnectRequiresICEParameters(t *testing.T) {
	tr := &Transport{ready: make(chan struct{})}
	err := tr.Connect(t.Context(), core.ConnectParams{
		DTLSParameters: core.DTLSParameters{Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB"}}},
	})
	require.ErrorIs(t, err, core.ErrInvalidRTPParameters)
	require.ErrorIs(t, err, ErrMissingICE)
}

func TestFeedbackOnlyForVideo(t *testing.T) {
	assert.Empty(t, feedbackFor(core.KindAudio))
	assert.NotEmpty(t, feedbackFor(core.KindVideo))
	assert.Equal(t, webrtc.RTPCodecTypeVideo, codecType(core.KindVideo))
	assert.Equal(t, webrtc.RTPCodecTypeAudio, codecType(core.KindAudio))
}
