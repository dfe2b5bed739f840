package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/SB-IM/peerenv/internal/env"
)

// ErrTrackEnded is returned when writing to a stopped track.
var ErrTrackEnded = errors.New("track ended")

// MediaStream is a set of tracks identified by a stream id.
type MediaStream struct {
	id string

	mu     sync.RWMutex
	tracks []env.MediaStreamTrack
}

// NewMediaStream returns a stream with a fresh id holding tracks.
func NewMediaStream(tracks ...env.MediaStreamTrack) *MediaStream {
	s := &MediaStream{id: uuid.NewString()}
	for _, t := range tracks {
		s.AddTrack(t)
	}
	return s
}

func (s *MediaStream) ID() string {
	return s.id
}

// Tracks returns a snapshot of the stream's tracks in insertion order.
func (s *MediaStream) Tracks() []env.MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]env.MediaStreamTrack(nil), s.tracks...)
}

func (s *MediaStream) AudioTracks() []env.MediaStreamTrack {
	return s.tracksOfKind(env.TrackKindAudio)
}

func (s *MediaStream) VideoTracks() []env.MediaStreamTrack {
	return s.tracksOfKind(env.TrackKindVideo)
}

// TrackByID returns the track with the given id, if any.
func (s *MediaStream) TrackByID(id string) (env.MediaStreamTrack, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.ID() == id {
			return t, true
		}
	}
	return nil, false
}

// AddTrack adds track unless a track with the same id is already present.
func (s *MediaStream) AddTrack(track env.MediaStreamTrack) {
	if track == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.ID() == track.ID() {
			return
		}
	}
	s.tracks = append(s.tracks, track)
}

func (s *MediaStream) RemoveTrack(track env.MediaStreamTrack) {
	if track == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tracks {
		if t.ID() == track.ID() {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// Clone returns a new stream with a new id sharing the same tracks.
func (s *MediaStream) Clone() *MediaStream {
	return NewMediaStream(s.Tracks()...)
}

func (s *MediaStream) tracksOfKind(kind env.TrackKind) []env.MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tracks []env.MediaStreamTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// MediaStreamTrack is backed either by a local pion track we write to
// or by a remote pion track we read from.
type MediaStreamTrack struct {
	id    string
	kind  env.TrackKind
	label string

	local  *webrtc.TrackLocalStaticRTP
	remote *webrtc.TrackRemote

	mu      sync.RWMutex
	enabled bool
	ended   bool
}

// NewLocalTrack creates a track backed by a TrackLocalStaticRTP.
// Audio tracks use Opus, video tracks use VP8.
func NewLocalTrack(kind env.TrackKind, label string) (*MediaStreamTrack, error) {
	var capability webrtc.RTPCodecCapability
	switch kind {
	case env.TrackKindAudio:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case env.TrackKindVideo:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	default:
		return nil, fmt.Errorf("unsupported track kind %q", kind)
	}

	generator := randutil.NewMathRandomGenerator()
	local, err := webrtc.NewTrackLocalStaticRTP(
		capability,
		fmt.Sprintf("%s-%d", kind, generator.Uint32()),
		fmt.Sprintf("peerenv-%d", generator.Uint32()),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create TrackLocalStaticRTP: %w", err)
	}
	if label == "" {
		label = local.ID()
	}

	return &MediaStreamTrack{
		id:      local.ID(),
		kind:    kind,
		label:   label,
		local:   local,
		enabled: true,
	}, nil
}

// WrapRemoteTrack exposes a received pion track as a MediaStreamTrack.
func WrapRemoteTrack(remote *webrtc.TrackRemote) *MediaStreamTrack {
	return &MediaStreamTrack{
		id:      remote.ID(),
		kind:    env.TrackKind(remote.Kind().String()),
		label:   remote.StreamID(),
		remote:  remote,
		enabled: true,
	}
}

func (t *MediaStreamTrack) ID() string {
	return t.id
}

func (t *MediaStreamTrack) Kind() env.TrackKind {
	return t.kind
}

func (t *MediaStreamTrack) Label() string {
	return t.label
}

func (t *MediaStreamTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled mutes or unmutes the track. Ended tracks stay disabled.
func (t *MediaStreamTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.enabled = enabled
}

func (t *MediaStreamTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
	t.enabled = false
}

func (t *MediaStreamTrack) Ended() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ended
}

// Local returns the pion track to add to a PeerConnection, or nil for remote tracks.
func (t *MediaStreamTrack) Local() webrtc.TrackLocal {
	if t.local == nil {
		return nil
	}
	return t.local
}

// Remote returns the received pion track, or nil for local tracks.
func (t *MediaStreamTrack) Remote() *webrtc.TrackRemote {
	return t.remote
}

// WriteRTP forwards p to every PeerConnection the track is bound to.
// Packets written to a disabled track are dropped.
func (t *MediaStreamTrack) WriteRTP(p *rtp.Packet) error {
	if t.local == nil {
		return errors.New("cannot write to a remote track")
	}
	t.mu.RLock()
	ended, enabled := t.ended, t.enabled
	t.mu.RUnlock()

	if ended {
		return ErrTrackEnded
	}
	if !enabled {
		return nil
	}
	return t.local.WriteRTP(p)
}
