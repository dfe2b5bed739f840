package native

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/SB-IM/peerenv/internal/env"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// packetReader returns one marshaled packet per Read, then io.EOF.
type packetReader struct {
	packets [][]byte
	before  func(i int)
	read    int
}

func (r *packetReader) Read(b []byte) (int, error) {
	if r.read >= len(r.packets) {
		return 0, io.EOF
	}
	if r.before != nil {
		r.before(r.read)
	}
	n := copy(b, r.packets[r.read])
	r.read++
	return n, nil
}

func marshalPackets(t *testing.T, n int) [][]byte {
	t.Helper()
	var packets [][]byte
	for i := 0; i < n; i++ {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(i), SSRC: 42},
			Payload: []byte{byte(i)},
		}
		b, err := pkt.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		packets = append(packets, b)
	}
	return packets
}

type echoProcessor struct {
	seen     []uint16
	received []interface{}
}

func (p *echoProcessor) Process(pkt *rtp.Packet, port *MessagePort) error {
	p.seen = append(p.seen, pkt.SequenceNumber)
	port.PostMessage(len(pkt.Payload))
	return nil
}

func (p *echoProcessor) ReceiveMessage(msg interface{}) {
	p.received = append(p.received, msg)
}

func TestAudioContextClock(t *testing.T) {
	ac, err := NewAudioContext(0)
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{t: time.Unix(0, 0)}
	ac.now = clock.now

	if ac.SampleRate() != DefaultSampleRate {
		t.Fatalf("sample rate is incorrect, got %d", ac.SampleRate())
	}
	if ac.State() != env.AudioContextSuspended {
		t.Fatalf("state is incorrect, got %s", ac.State())
	}

	clock.advance(time.Second)
	if ac.CurrentTime() != 0 {
		t.Fatal("suspended context clock should not advance")
	}

	if err := ac.Resume(); err != nil {
		t.Fatal(err)
	}
	clock.advance(2 * time.Second)
	if got := ac.CurrentTime(); got != 2*time.Second {
		t.Fatalf("current time is incorrect, got %s", got)
	}

	if err := ac.Suspend(); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Second)
	if err := ac.Resume(); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Second)
	if got := ac.CurrentTime(); got != 3*time.Second {
		t.Fatalf("current time is incorrect, got %s", got)
	}

	if err := ac.Close(); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Second)
	if got := ac.CurrentTime(); got != 3*time.Second {
		t.Fatalf("closed context clock should stop, got %s", got)
	}
	for _, f := range []func() error{ac.Resume, ac.Suspend, ac.Close} {
		if err := f(); !errors.Is(err, ErrContextClosed) {
			t.Fatalf("got %v want %v", err, ErrContextClosed)
		}
	}
}

func TestAudioContextSampleRate(t *testing.T) {
	for _, rate := range []int{-1, 100, 1000000} {
		if _, err := NewAudioContext(rate); err == nil {
			t.Fatalf("expected error for sample rate %d", rate)
		}
	}
	ac, err := NewAudioContext(44100)
	if err != nil {
		t.Fatal(err)
	}
	if ac.SampleRate() != 44100 {
		t.Fatalf("got %d want 44100", ac.SampleRate())
	}
}

func TestAudioWorkletNode(t *testing.T) {
	ac, err := NewAudioContext(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ac.NewWorkletNode("echo"); !errors.Is(err, ErrUnknownProcessor) {
		t.Fatalf("got %v want %v", err, ErrUnknownProcessor)
	}

	p := &echoProcessor{}
	if err := ac.RegisterProcessor("echo", p); err != nil {
		t.Fatal(err)
	}
	if err := ac.RegisterProcessor("echo", p); err == nil {
		t.Fatal("duplicate registration should fail")
	}

	node, err := ac.NewWorkletNode("echo")
	if err != nil {
		t.Fatal(err)
	}
	if node.Name() != "echo" {
		t.Fatalf("name is incorrect, got %s", node.Name())
	}
	var messages []interface{}
	node.OnMessage(func(msg interface{}) {
		messages = append(messages, msg)
	})
	if err := node.PostMessage("gain:0.5"); err != nil {
		t.Fatal(err)
	}
	if len(p.received) != 1 || p.received[0] != "gain:0.5" {
		t.Fatalf("processor did not receive message, got %v", p.received)
	}

	t.Run("suspended drops packets", func(t *testing.T) {
		if err := node.Consume(context.Background(), &packetReader{packets: marshalPackets(t, 3)}); err != nil {
			t.Fatal(err)
		}
		if len(p.seen) != 0 {
			t.Fatalf("suspended context processed %d packets", len(p.seen))
		}
	})

	t.Run("running processes packets", func(t *testing.T) {
		if err := ac.Resume(); err != nil {
			t.Fatal(err)
		}
		if err := node.Consume(context.Background(), &packetReader{packets: marshalPackets(t, 3)}); err != nil {
			t.Fatal(err)
		}
		if len(p.seen) != 3 || p.seen[2] != 2 {
			t.Fatalf("processed packets are incorrect, got %v", p.seen)
		}
		if len(messages) != 3 || messages[0] != 1 {
			t.Fatalf("messages are incorrect, got %v", messages)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := node.Consume(ctx, &packetReader{packets: marshalPackets(t, 1)})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v want %v", err, context.Canceled)
		}
	})

	t.Run("close stops consuming", func(t *testing.T) {
		other, err := ac.NewWorkletNode("echo")
		if err != nil {
			t.Fatal(err)
		}
		r := &packetReader{
			packets: marshalPackets(t, 2),
			before: func(i int) {
				if i == 1 {
					_ = ac.Close()
				}
			},
		}
		// Close disconnects every node, so the second packet ends consumption quietly.
		if err := other.Consume(context.Background(), r); err != nil {
			t.Fatal(err)
		}
		if err := other.PostMessage("x"); !errors.Is(err, ErrNodeDisconnected) {
			t.Fatalf("got %v want %v", err, ErrNodeDisconnected)
		}
		if _, err := ac.NewWorkletNode("echo"); !errors.Is(err, ErrContextClosed) {
			t.Fatalf("got %v want %v", err, ErrContextClosed)
		}
	})
}

func TestAudioWorkletNodeDisconnect(t *testing.T) {
	ac, err := NewAudioContext(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := ac.RegisterProcessor("noop", AudioProcessorFunc(func(*rtp.Packet, *MessagePort) error {
		return errors.New("should not run")
	})); err != nil {
		t.Fatal(err)
	}
	node, err := ac.NewWorkletNode("noop")
	if err != nil {
		t.Fatal(err)
	}
	if err := node.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if err := node.Disconnect(); !errors.Is(err, ErrNodeDisconnected) {
		t.Fatalf("got %v want %v", err, ErrNodeDisconnected)
	}
	if err := ac.Resume(); err != nil {
		t.Fatal(err)
	}
	if err := node.Consume(context.Background(), &packetReader{packets: marshalPackets(t, 1)}); err != nil {
		t.Fatal(err)
	}
}
