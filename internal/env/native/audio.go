package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/SB-IM/peerenv/internal/env"
)

const (
	DefaultSampleRate = 48000

	minSampleRate = 3000
	maxSampleRate = 768000

	rtpBufferSize = 1500
)

var (
	ErrContextClosed    = errors.New("audio context closed")
	ErrNodeDisconnected = errors.New("audio worklet node disconnected")
	ErrUnknownProcessor = errors.New("audio processor not registered")
)

// AudioProcessor processes RTP audio packets inside a worklet node.
// Messages posted to port reach the handler set with AudioWorkletNode.OnMessage.
type AudioProcessor interface {
	Process(pkt *rtp.Packet, port *MessagePort) error
}

// AudioProcessorFunc adapts a function to AudioProcessor.
type AudioProcessorFunc func(pkt *rtp.Packet, port *MessagePort) error

func (f AudioProcessorFunc) Process(pkt *rtp.Packet, port *MessagePort) error {
	return f(pkt, port)
}

// MessageReceiver is implemented by processors that accept messages posted to their node.
type MessageReceiver interface {
	ReceiveMessage(msg interface{})
}

// AudioContext keeps processing time and the processor registry of its worklet nodes.
// A new context is suspended; CurrentTime only advances while it runs.
type AudioContext struct {
	sampleRate int
	now        func() time.Time

	mu         sync.Mutex
	state      env.AudioContextState
	elapsed    time.Duration
	resumedAt  time.Time
	processors map[string]AudioProcessor
	nodes      map[*AudioWorkletNode]struct{}
}

// NewAudioContext returns a suspended context. A zero sampleRate selects DefaultSampleRate.
func NewAudioContext(sampleRate int) (*AudioContext, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	if sampleRate < minSampleRate || sampleRate > maxSampleRate {
		return nil, fmt.Errorf("sample rate %d out of range [%d, %d]", sampleRate, minSampleRate, maxSampleRate)
	}
	return &AudioContext{
		sampleRate: sampleRate,
		now:        time.Now,
		state:      env.AudioContextSuspended,
		processors: make(map[string]AudioProcessor),
		nodes:      make(map[*AudioWorkletNode]struct{}),
	}, nil
}

func (c *AudioContext) SampleRate() int {
	return c.sampleRate
}

func (c *AudioContext) State() env.AudioContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *AudioContext) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == env.AudioContextRunning {
		return c.elapsed + c.now().Sub(c.resumedAt)
	}
	return c.elapsed
}

func (c *AudioContext) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case env.AudioContextClosed:
		return ErrContextClosed
	case env.AudioContextSuspended:
		c.state = env.AudioContextRunning
		c.resumedAt = c.now()
	}
	return nil
}

func (c *AudioContext) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case env.AudioContextClosed:
		return ErrContextClosed
	case env.AudioContextRunning:
		c.elapsed += c.now().Sub(c.resumedAt)
		c.state = env.AudioContextSuspended
	}
	return nil
}

// Close stops the clock and disconnects every node. A context cannot be reopened.
func (c *AudioContext) Close() error {
	c.mu.Lock()
	if c.state == env.AudioContextClosed {
		c.mu.Unlock()
		return ErrContextClosed
	}
	if c.state == env.AudioContextRunning {
		c.elapsed += c.now().Sub(c.resumedAt)
	}
	c.state = env.AudioContextClosed
	nodes := make([]*AudioWorkletNode, 0, len(c.nodes))
	for n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.nodes = make(map[*AudioWorkletNode]struct{})
	c.mu.Unlock()

	for _, n := range nodes {
		n.disconnect()
	}
	return nil
}

// RegisterProcessor makes processor available to worklet nodes under name.
func (c *AudioContext) RegisterProcessor(name string, processor AudioProcessor) error {
	if name == "" || processor == nil {
		return errors.New("processor name and implementation are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == env.AudioContextClosed {
		return ErrContextClosed
	}
	if _, ok := c.processors[name]; ok {
		return fmt.Errorf("processor %q already registered", name)
	}
	c.processors[name] = processor
	return nil
}

// NewWorkletNode creates a node running the processor registered under name.
func (c *AudioContext) NewWorkletNode(name string) (*AudioWorkletNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == env.AudioContextClosed {
		return nil, ErrContextClosed
	}
	processor, ok := c.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	n := &AudioWorkletNode{
		name:      name,
		context:   c,
		processor: processor,
	}
	n.port = &MessagePort{node: n}
	c.nodes[n] = struct{}{}
	return n, nil
}

func (c *AudioContext) forget(n *AudioWorkletNode) {
	c.mu.Lock()
	delete(c.nodes, n)
	c.mu.Unlock()
}

// MessagePort is the processor side of a node's message channel.
type MessagePort struct {
	node *AudioWorkletNode
}

// PostMessage delivers msg to the node's message handler, if one is set.
func (p *MessagePort) PostMessage(msg interface{}) {
	p.node.mu.Lock()
	handler := p.node.handler
	p.node.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// AudioWorkletNode feeds RTP audio packets to its processor.
type AudioWorkletNode struct {
	name      string
	context   *AudioContext
	processor AudioProcessor
	port      *MessagePort

	mu           sync.Mutex
	handler      func(msg interface{})
	disconnected bool
}

func (n *AudioWorkletNode) Name() string {
	return n.name
}

// PostMessage sends msg to the processor if it implements MessageReceiver.
func (n *AudioWorkletNode) PostMessage(msg interface{}) error {
	if n.isDisconnected() {
		return ErrNodeDisconnected
	}
	if r, ok := n.processor.(MessageReceiver); ok {
		r.ReceiveMessage(msg)
	}
	return nil
}

// OnMessage sets the handler for messages the processor posts.
func (n *AudioWorkletNode) OnMessage(handler func(msg interface{})) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
}

func (n *AudioWorkletNode) Disconnect() error {
	if n.isDisconnected() {
		return ErrNodeDisconnected
	}
	n.disconnect()
	n.context.forget(n)
	return nil
}

// Consume reads one RTP packet per Read from r and hands it to the processor.
// Packets arriving while the context is suspended are dropped.
// It returns nil when r is exhausted or the node is disconnected, and
// ErrContextClosed once the context closes. Cancelling ctx is observed between reads,
// so callers should also close r to unblock a pending Read.
func (n *AudioWorkletNode) Consume(ctx context.Context, r io.Reader) error {
	buf := make([]byte, rtpBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		i, err := r.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("could not read RTP packet: %w", err)
		}
		if n.isDisconnected() {
			return nil
		}

		switch n.context.State() {
		case env.AudioContextClosed:
			return ErrContextClosed
		case env.AudioContextSuspended:
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:i]); err != nil {
			return fmt.Errorf("could not unmarshal RTP packet: %w", err)
		}
		if err := n.processor.Process(pkt, n.port); err != nil {
			return fmt.Errorf("processor %q failed: %w", n.name, err)
		}
	}
}

func (n *AudioWorkletNode) isDisconnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disconnected
}

func (n *AudioWorkletNode) disconnect() {
	n.mu.Lock()
	n.disconnected = true
	n.mu.Unlock()
}

// TrackReader adapts a remote track to the io.Reader Consume expects.
func TrackReader(track *webrtc.TrackRemote) io.Reader {
	return trackReader{track}
}

type trackReader struct {
	track *webrtc.TrackRemote
}

func (r trackReader) Read(b []byte) (int, error) {
	n, _, err := r.track.Read(b)
	return n, err
}
