package env

import "time"

// Provider is the capability surface of the host runtime.
// Dependent code talks to the host only through a Provider, so the host can be a browser
// (see package wasm) or a native process (see package native).
type Provider interface {
	Document
	ObjectURLs
	Media
	Audio
	Storage
}

// Document looks up elements of the hosting document.
type Document interface {
	// ElementValue returns the value of the element with the given id.
	// The second result is false when no such element exists.
	ElementValue(id string) (string, bool)
}

// Blob is a binary-like object that can be addressed by an object URL.
type Blob struct {
	Type string
	Data []byte
}

// ObjectURLs manages temporary references to blobs.
// Every created URL should be revoked exactly once by its creator.
type ObjectURLs interface {
	CreateObjectURL(blob Blob) (string, error)
	RevokeObjectURL(url string)
}

// TrackKind is the media kind of a track.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MediaStreamTrack is a single media track.
type MediaStreamTrack interface {
	ID() string
	Kind() TrackKind
	Label() string
	Enabled() bool
	SetEnabled(enabled bool)
	// Stop ends the track permanently.
	Stop()
	Ended() bool
}

// MediaStream groups tracks.
type MediaStream interface {
	ID() string
	Tracks() []MediaStreamTrack
	AddTrack(track MediaStreamTrack)
	RemoveTrack(track MediaStreamTrack)
}

// Codec is a receive codec capability.
type Codec struct {
	MimeType    string
	ClockRate   uint32
	Channels    uint16
	SDPFmtpLine string
}

// Media constructs media stream representations and answers RTP receiver queries.
type Media interface {
	NewMediaStream(tracks ...MediaStreamTrack) (MediaStream, error)
	NewMediaStreamTrack(kind TrackKind, label string) (MediaStreamTrack, error)
	// ReceiverCapabilities lists codecs an RTP receiver of the given kind accepts.
	ReceiverCapabilities(kind TrackKind) ([]Codec, error)
	// EncodedStreamsSupported reports whether RTP receivers expose encoded insertable streams.
	EncodedStreamsSupported() bool
}

// AudioContextState is the lifecycle state of an AudioContext.
type AudioContextState string

const (
	AudioContextSuspended AudioContextState = "suspended"
	AudioContextRunning   AudioContextState = "running"
	AudioContextClosed    AudioContextState = "closed"
)

// AudioContext is an audio processing graph clock.
type AudioContext interface {
	SampleRate() int
	State() AudioContextState
	CurrentTime() time.Duration
	Resume() error
	Suspend() error
	Close() error
}

// AudioWorkletNode is a processing node running a named processor inside an AudioContext.
type AudioWorkletNode interface {
	Name() string
	PostMessage(msg interface{}) error
	OnMessage(handler func(msg interface{}))
	Disconnect() error
}

// Audio constructs audio processing objects.
type Audio interface {
	NewAudioContext(sampleRate int) (AudioContext, error)
	NewAudioWorkletNode(ctx AudioContext, name string) (AudioWorkletNode, error)
}

// KeyValueStore is a persistent string store with localStorage semantics.
type KeyValueStore interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Clear() error
	// Key returns the n-th key in storage order.
	Key(n int) (string, bool)
	Length() int
}

// Storage gives access to the persistent local store.
type Storage interface {
	LocalStorage() KeyValueStore
}
