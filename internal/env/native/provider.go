// Package native implements env.Provider for a process running outside a browser.
//
// The hosting document is an HTML file or URL, object URLs live in an in-process registry
// that can be served over HTTP, media objects are backed by pion/webrtc, and local storage
// is a YAML file.
package native

import (
	"fmt"

	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/transport/vnet"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/logging"
)

// ConfigOptions configures a native Provider.
type ConfigOptions struct {
	// Origin prefixes object URLs, e.g. http://localhost:3000.
	Origin string
	// StoragePath is the local storage file. Empty keeps storage in memory.
	StoragePath string
}

// Provider implements env.Provider.
type Provider struct {
	document env.Document
	urls     *ObjectURLRegistry
	storage  *LocalStorage
	api      *webrtc.API
	logger   zerolog.Logger
}

var _ env.Provider = (*Provider)(nil)

// New returns a Provider reading elements from document, which may be nil.
func New(document env.Document, logger *zerolog.Logger, config ConfigOptions) (*Provider, error) {
	l := logger.With().Str("component", "NativeProvider").Logger()

	storage, err := OpenLocalStorage(config.StoragePath)
	if err != nil {
		return nil, err
	}

	api, err := newAPI(&l, nil)
	if err != nil {
		return nil, err
	}

	return &Provider{
		document: document,
		urls:     NewObjectURLRegistry(config.Origin, &l),
		storage:  storage,
		api:      api,
		logger:   l,
	}, nil
}

// newAPI builds a pion API with the default codecs and interceptors.
// A non-nil network replaces the host network, which also disables mDNS.
func newAPI(logger *zerolog.Logger, network *vnet.Net) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("could not register default codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("could not register default interceptors: %w", err)
	}

	s := webrtc.SettingEngine{
		LoggerFactory: logging.PionLoggerFactory(logger),
	}
	if network != nil {
		s.SetVNet(network)
		s.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(s),
	), nil
}

func (p *Provider) ElementValue(id string) (string, bool) {
	return env.ValueOf(p.document, id)
}

func (p *Provider) CreateObjectURL(blob env.Blob) (string, error) {
	return p.urls.Create(blob), nil
}

func (p *Provider) RevokeObjectURL(url string) {
	p.urls.Revoke(url)
}

// ObjectURLs exposes the registry, e.g. to serve it over HTTP.
func (p *Provider) ObjectURLs() *ObjectURLRegistry {
	return p.urls
}

// API returns the pion API dependent code should create PeerConnections with.
func (p *Provider) API() *webrtc.API {
	return p.api
}

func (p *Provider) NewMediaStream(tracks ...env.MediaStreamTrack) (env.MediaStream, error) {
	return NewMediaStream(tracks...), nil
}

func (p *Provider) NewMediaStreamTrack(kind env.TrackKind, label string) (env.MediaStreamTrack, error) {
	t, err := NewLocalTrack(kind, label)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReceiverCapabilities asks a throwaway receive-only transceiver for its codecs.
func (p *Provider) ReceiverCapabilities(kind env.TrackKind) ([]env.Codec, error) {
	var codecType webrtc.RTPCodecType
	switch kind {
	case env.TrackKindAudio:
		codecType = webrtc.RTPCodecTypeAudio
	case env.TrackKindVideo:
		codecType = webrtc.RTPCodecTypeVideo
	default:
		return nil, fmt.Errorf("unsupported track kind %q", kind)
	}

	pc, err := p.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("could not create PeerConnection: %w", err)
	}
	defer func() {
		if err := pc.Close(); err != nil {
			p.logger.Err(err).Msg("could not close PeerConnection")
		}
	}()

	transceiver, err := pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return nil, fmt.Errorf("could not add transceiver from kind: %w", err)
	}

	params := transceiver.Receiver().GetParameters()
	codecs := make([]env.Codec, 0, len(params.Codecs))
	for _, c := range params.Codecs {
		codecs = append(codecs, env.Codec{
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: c.SDPFmtpLine,
		})
	}
	return codecs, nil
}

// EncodedStreamsSupported is false: pion exposes no encoded transform hook on receivers.
func (p *Provider) EncodedStreamsSupported() bool {
	return false
}

func (p *Provider) NewAudioContext(sampleRate int) (env.AudioContext, error) {
	ac, err := NewAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	return ac, nil
}

// NewAudioWorkletNode requires ctx to be a context created by this package.
func (p *Provider) NewAudioWorkletNode(ctx env.AudioContext, name string) (env.AudioWorkletNode, error) {
	ac, ok := ctx.(*AudioContext)
	if !ok {
		return nil, fmt.Errorf("unsupported audio context %T", ctx)
	}
	n, err := ac.NewWorkletNode(name)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Provider) LocalStorage() env.KeyValueStore {
	return p.storage
}
