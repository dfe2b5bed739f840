//go:build js && wasm

// Package wasm implements env.Provider on top of the browser globals of a WebAssembly build.
package wasm

import (
	"errors"
	"fmt"
	"syscall/js"
	"time"

	"github.com/SB-IM/peerenv/internal/env"
)

// Provider implements env.Provider with window globals.
type Provider struct {
	window js.Value
}

var _ env.Provider = (*Provider)(nil)

// New returns a Provider bound to the global window object.
func New() *Provider {
	return NewWithWindow(js.Global())
}

// NewWithWindow returns a Provider reading globals from window instead of the global object.
func NewWithWindow(window js.Value) *Provider {
	return &Provider{window: window}
}

// ElementValue reports absence when there is no document, e.g. inside a worker.
func (p *Provider) ElementValue(id string) (string, bool) {
	doc := p.window.Get("document")
	if doc.IsUndefined() || doc.IsNull() {
		return "", false
	}
	el := doc.Call("getElementById", id)
	if el.IsNull() || el.IsUndefined() {
		return "", false
	}
	v := el.Get("value")
	if v.IsUndefined() || v.IsNull() {
		return el.Get("textContent").String(), true
	}
	return v.String(), true
}

func (p *Provider) CreateObjectURL(blob env.Blob) (url string, err error) {
	defer recoverJSError(&err)

	data := js.Global().Get("Uint8Array").New(len(blob.Data))
	js.CopyBytesToJS(data, blob.Data)
	options := map[string]interface{}{"type": blob.Type}
	b := p.window.Get("Blob").New([]interface{}{data}, options)
	return p.window.Get("URL").Call("createObjectURL", b).String(), nil
}

func (p *Provider) RevokeObjectURL(url string) {
	p.window.Get("URL").Call("revokeObjectURL", url)
}

func (p *Provider) NewMediaStream(tracks ...env.MediaStreamTrack) (s env.MediaStream, err error) {
	defer recoverJSError(&err)

	stream := &MediaStream{value: p.window.Get("MediaStream").New()}
	for _, t := range tracks {
		stream.AddTrack(t)
	}
	return stream, nil
}

// NewMediaStreamTrack captures a track of kind from the user's devices.
// It blocks until the browser resolves getUserMedia.
func (p *Provider) NewMediaStreamTrack(kind env.TrackKind, label string) (t env.MediaStreamTrack, err error) {
	defer recoverJSError(&err)

	devices := p.window.Get("navigator").Get("mediaDevices")
	if devices.IsUndefined() {
		return nil, errors.New("media devices are not available")
	}
	constraints := map[string]interface{}{string(kind): true}
	stream, err := await(devices.Call("getUserMedia", constraints))
	if err != nil {
		return nil, fmt.Errorf("could not get user media: %w", err)
	}
	tracks := stream.Call("getTracks")
	if tracks.Length() == 0 {
		return nil, fmt.Errorf("no %s track available", kind)
	}
	return &MediaStreamTrack{value: tracks.Index(0)}, nil
}

func (p *Provider) ReceiverCapabilities(kind env.TrackKind) (codecs []env.Codec, err error) {
	defer recoverJSError(&err)

	receiver := p.window.Get("RTCRtpReceiver")
	if receiver.IsUndefined() {
		return nil, errors.New("RTCRtpReceiver is not available")
	}
	caps := receiver.Call("getCapabilities", string(kind))
	if caps.IsNull() {
		return nil, fmt.Errorf("unsupported track kind %q", kind)
	}
	list := caps.Get("codecs")
	for i := 0; i < list.Length(); i++ {
		c := list.Index(i)
		codec := env.Codec{
			MimeType:  c.Get("mimeType").String(),
			ClockRate: uint32(c.Get("clockRate").Int()),
		}
		if ch := c.Get("channels"); !ch.IsUndefined() {
			codec.Channels = uint16(ch.Int())
		}
		if fmtp := c.Get("sdpFmtpLine"); !fmtp.IsUndefined() {
			codec.SDPFmtpLine = fmtp.String()
		}
		codecs = append(codecs, codec)
	}
	return codecs, nil
}

// EncodedStreamsSupported detects the Chrome insertable streams API on RTCRtpReceiver.
func (p *Provider) EncodedStreamsSupported() bool {
	receiver := p.window.Get("RTCRtpReceiver")
	if receiver.IsUndefined() {
		return false
	}
	return !receiver.Get("prototype").Get("createEncodedStreams").IsUndefined()
}

func (p *Provider) NewAudioContext(sampleRate int) (ac env.AudioContext, err error) {
	defer recoverJSError(&err)

	options := map[string]interface{}{}
	if sampleRate != 0 {
		options["sampleRate"] = sampleRate
	}
	return &AudioContext{value: p.window.Get("AudioContext").New(options)}, nil
}

func (p *Provider) NewAudioWorkletNode(ctx env.AudioContext, name string) (n env.AudioWorkletNode, err error) {
	defer recoverJSError(&err)

	ac, ok := ctx.(*AudioContext)
	if !ok {
		return nil, fmt.Errorf("unsupported audio context %T", ctx)
	}
	node := p.window.Get("AudioWorkletNode").New(ac.value, name)
	return &AudioWorkletNode{name: name, value: node}, nil
}

func (p *Provider) LocalStorage() env.KeyValueStore {
	return &Storage{value: p.window.Get("localStorage")}
}

// MediaStream wraps a JS MediaStream.
type MediaStream struct {
	value js.Value
}

func (s *MediaStream) ID() string {
	return s.value.Get("id").String()
}

func (s *MediaStream) Tracks() []env.MediaStreamTrack {
	list := s.value.Call("getTracks")
	tracks := make([]env.MediaStreamTrack, 0, list.Length())
	for i := 0; i < list.Length(); i++ {
		tracks = append(tracks, &MediaStreamTrack{value: list.Index(i)})
	}
	return tracks
}

// AddTrack accepts tracks created by this package only.
func (s *MediaStream) AddTrack(track env.MediaStreamTrack) {
	if t, ok := track.(*MediaStreamTrack); ok {
		s.value.Call("addTrack", t.value)
	}
}

func (s *MediaStream) RemoveTrack(track env.MediaStreamTrack) {
	if t, ok := track.(*MediaStreamTrack); ok {
		s.value.Call("removeTrack", t.value)
	}
}

// Value returns the underlying JS object, e.g. to assign it to a video element.
func (s *MediaStream) Value() js.Value {
	return s.value
}

// MediaStreamTrack wraps a JS MediaStreamTrack.
type MediaStreamTrack struct {
	value js.Value
}

func (t *MediaStreamTrack) ID() string {
	return t.value.Get("id").String()
}

func (t *MediaStreamTrack) Kind() env.TrackKind {
	return env.TrackKind(t.value.Get("kind").String())
}

func (t *MediaStreamTrack) Label() string {
	return t.value.Get("label").String()
}

func (t *MediaStreamTrack) Enabled() bool {
	return t.value.Get("enabled").Bool()
}

func (t *MediaStreamTrack) SetEnabled(enabled bool) {
	t.value.Set("enabled", enabled)
}

func (t *MediaStreamTrack) Stop() {
	t.value.Call("stop")
}

func (t *MediaStreamTrack) Ended() bool {
	return t.value.Get("readyState").String() == "ended"
}

// AudioContext wraps a JS AudioContext.
type AudioContext struct {
	value js.Value
}

func (c *AudioContext) SampleRate() int {
	return c.value.Get("sampleRate").Int()
}

func (c *AudioContext) State() env.AudioContextState {
	return env.AudioContextState(c.value.Get("state").String())
}

func (c *AudioContext) CurrentTime() time.Duration {
	return time.Duration(c.value.Get("currentTime").Float() * float64(time.Second))
}

func (c *AudioContext) Resume() error {
	_, err := await(c.value.Call("resume"))
	return err
}

func (c *AudioContext) Suspend() error {
	_, err := await(c.value.Call("suspend"))
	return err
}

func (c *AudioContext) Close() error {
	_, err := await(c.value.Call("close"))
	return err
}

// AddModule loads a worklet processor script, typically from an object URL.
func (c *AudioContext) AddModule(moduleURL string) error {
	_, err := await(c.value.Get("audioWorklet").Call("addModule", moduleURL))
	return err
}

// AudioWorkletNode wraps a JS AudioWorkletNode.
type AudioWorkletNode struct {
	name     string
	value    js.Value
	listener *js.Func
}

func (n *AudioWorkletNode) Name() string {
	return n.name
}

func (n *AudioWorkletNode) PostMessage(msg interface{}) (err error) {
	defer recoverJSError(&err)
	n.value.Get("port").Call("postMessage", msg)
	return nil
}

// OnMessage replaces the handler of messages posted by the processor.
// Messages arrive as js.Value.
func (n *AudioWorkletNode) OnMessage(handler func(msg interface{})) {
	n.releaseListener()
	listener := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			handler(args[0].Get("data"))
		}
		return nil
	})
	n.listener = &listener
	n.value.Get("port").Set("onmessage", listener)
}

func (n *AudioWorkletNode) releaseListener() {
	if n.listener != nil {
		n.listener.Release()
		n.listener = nil
	}
}

func (n *AudioWorkletNode) Disconnect() (err error) {
	defer recoverJSError(&err)
	n.value.Call("disconnect")
	n.value.Get("port").Set("onmessage", js.Null())
	n.releaseListener()
	return nil
}

// Storage wraps window.localStorage.
type Storage struct {
	value js.Value
}

func (s *Storage) GetItem(key string) (string, bool) {
	v := s.value.Call("getItem", key)
	if v.IsNull() {
		return "", false
	}
	return v.String(), true
}

// SetItem fails with the browser's QuotaExceededError when storage is full.
func (s *Storage) SetItem(key, value string) (err error) {
	defer recoverJSError(&err)
	s.value.Call("setItem", key, value)
	return nil
}

func (s *Storage) RemoveItem(key string) (err error) {
	defer recoverJSError(&err)
	s.value.Call("removeItem", key)
	return nil
}

func (s *Storage) Clear() (err error) {
	defer recoverJSError(&err)
	s.value.Call("clear")
	return nil
}

func (s *Storage) Key(n int) (string, bool) {
	v := s.value.Call("key", n)
	if v.IsNull() {
		return "", false
	}
	return v.String(), true
}

func (s *Storage) Length() int {
	return s.value.Get("length").Int()
}

// await blocks on a JS promise. It must not be called from the JS event loop goroutine.
func await(promise js.Value) (js.Value, error) {
	type result struct {
		value js.Value
		err   error
	}
	ch := make(chan result, 1)

	onResolve := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		ch <- result{value: v}
		return nil
	})
	defer onResolve.Release()
	onReject := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		msg := "promise rejected"
		if len(args) > 0 {
			msg = args[0].Call("toString").String()
		}
		ch <- result{err: errors.New(msg)}
		return nil
	})
	defer onReject.Release()

	promise.Call("then", onResolve, onReject)
	r := <-ch
	return r.value, r.err
}

// recoverJSError turns a thrown JS exception or an access to a missing global into err.
func recoverJSError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	switch e := r.(type) {
	case js.Error:
		*err = e
	case *js.ValueError:
		*err = e
	default:
		panic(r)
	}
}
