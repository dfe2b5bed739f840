package env_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SB-IM/peerenv/internal/env"
)

// fakeProvider is a minimal in-memory host.
type fakeProvider struct {
	elements map[string]string
	urls     map[string]env.Blob
	next     int
}

func newFakeProvider(elements map[string]string) *fakeProvider {
	return &fakeProvider{elements: elements, urls: make(map[string]env.Blob)}
}

func (p *fakeProvider) ElementValue(id string) (string, bool) {
	v, ok := p.elements[id]
	return v, ok
}

func (p *fakeProvider) CreateObjectURL(blob env.Blob) (string, error) {
	p.next++
	url := "blob:test/" + strconv.Itoa(p.next)
	p.urls[url] = blob
	return url, nil
}

func (p *fakeProvider) RevokeObjectURL(url string) {
	delete(p.urls, url)
}

func (p *fakeProvider) NewMediaStream(...env.MediaStreamTrack) (env.MediaStream, error) {
	return nil, errors.New("not supported")
}

func (p *fakeProvider) NewMediaStreamTrack(env.TrackKind, string) (env.MediaStreamTrack, error) {
	return nil, errors.New("not supported")
}

func (p *fakeProvider) ReceiverCapabilities(env.TrackKind) ([]env.Codec, error) {
	return nil, nil
}

func (p *fakeProvider) EncodedStreamsSupported() bool { return false }

func (p *fakeProvider) NewAudioContext(int) (env.AudioContext, error) {
	return nil, errors.New("not supported")
}

func (p *fakeProvider) NewAudioWorkletNode(env.AudioContext, string) (env.AudioWorkletNode, error) {
	return nil, errors.New("not supported")
}

func (p *fakeProvider) LocalStorage() env.KeyValueStore { return nil }

const config = `{"baseUrl":"https://x","nickname":"alice","callId":"room1","peerId":"p1","peerConfig":{"iceServers":[{"urls":["stun:a"]}],"encodedInsertableStreams":false},"network":"mesh"}`

func TestValueOf(t *testing.T) {
	p := newFakeProvider(map[string]string{"nickname": "alice", "empty": ""})

	v, ok := env.ValueOf(p, "nickname")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	v, ok = env.ValueOf(p, "empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	v, ok = env.ValueOf(p, "missing")
	assert.False(t, ok)
	assert.Equal(t, "", v)

	_, ok = env.ValueOf(nil, "nickname")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	e, err := env.Load(context.Background(), newFakeProvider(map[string]string{"config": config}))
	require.NoError(t, err)

	c := e.Config()
	assert.Equal(t, "alice", c.Nickname)
	assert.Equal(t, env.NetworkMesh, c.Network)

	v, ok := e.ValueOf("config")
	assert.True(t, ok)
	assert.Equal(t, config, v)
}

func TestLoadFailures(t *testing.T) {
	t.Run("missing element", func(t *testing.T) {
		e, err := env.Load(context.Background(), newFakeProvider(nil))
		assert.Nil(t, e)
		assert.True(t, errors.Is(err, env.ErrMissingConfig))
	})

	t.Run("malformed", func(t *testing.T) {
		e, err := env.Load(context.Background(), newFakeProvider(map[string]string{"config": "{not valid"}))
		assert.Nil(t, e)
		assert.True(t, errors.Is(err, env.ErrInvalidConfig))
	})

	t.Run("unknown network", func(t *testing.T) {
		e, err := env.Load(context.Background(), newFakeProvider(map[string]string{
			"config": `{"callId":"c","peerId":"p","network":"p2p"}`,
		}))
		assert.Nil(t, e)
		assert.True(t, errors.Is(err, env.ErrInvalidConfig))
	})

	t.Run("must load panics", func(t *testing.T) {
		assert.Panics(t, func() {
			env.MustLoad(context.Background(), newFakeProvider(nil))
		})
	})
}

func TestConfigImmutable(t *testing.T) {
	p := newFakeProvider(map[string]string{"config": config})
	e := env.MustLoad(context.Background(), p)

	c := e.Config()
	c.Nickname = "mallory"
	c.PeerConfig.ICEServers[0].URLs[0] = "stun:evil"

	// Changing the document after load has no effect either.
	p.elements["config"] = `{"callId":"other","peerId":"p","network":"sfu"}`

	again := e.Config()
	assert.Equal(t, "alice", again.Nickname)
	assert.Equal(t, "stun:a", again.PeerConfig.ICEServers[0].URLs[0])
	assert.Equal(t, "room1", again.CallID)
}

func TestObjectURL(t *testing.T) {
	p := newFakeProvider(map[string]string{"config": config})
	e := env.MustLoad(context.Background(), p)

	a, err := e.CreateObjectURL(env.Blob{Type: "text/plain", Data: []byte("a")})
	require.NoError(t, err)
	b, err := e.CreateObjectURL(env.Blob{Type: "text/plain", Data: []byte("a")})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	e.RevokeObjectURL(a)
	assert.NotContains(t, p.urls, a)
	assert.Contains(t, p.urls, b)
}

func TestContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Nil(t, env.FromContext(ctx))

	e := env.MustLoad(ctx, newFakeProvider(map[string]string{"config": config}))
	ctx = env.WithContext(ctx, e)
	assert.Same(t, e, env.FromContext(ctx))
}
