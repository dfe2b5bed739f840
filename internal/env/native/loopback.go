package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/transport/vnet"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/logging"
)

const (
	loopbackCIDR      = "10.0.0.0/24"
	loopbackOfferIP   = "10.0.0.1"
	loopbackAnswerIP  = "10.0.0.2"
	loopbackMeter     = "loopback-meter"
	loopbackInterval  = 20 * time.Millisecond
	opusFrameDuration = 960 // 20ms at 48kHz
)

// opusSilence is a single Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// LoopbackReport summarizes a Loopback run.
type LoopbackReport struct {
	Codec    string
	Sent     int
	Received int
	RTCP     ReceiverStats
	Elapsed  time.Duration
}

// Loopback streams a silent Opus track between two PeerConnections joined by an in-memory
// network. The answering side wraps its RTP receiver, drains RTCP, and meters the track with
// an audio worklet node. It returns once the node processed packets packets.
func (p *Provider) Loopback(ctx context.Context, packets int) (*LoopbackReport, error) {
	if packets <= 0 {
		return nil, fmt.Errorf("packet count must be positive, got %d", packets)
	}
	start := time.Now()
	logger := p.logger.With().Str("component", "Loopback").Logger()

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          loopbackCIDR,
		LoggerFactory: logging.PionLoggerFactory(&logger),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create virtual router: %w", err)
	}
	offerNet := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{loopbackOfferIP}})
	answerNet := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{loopbackAnswerIP}})
	for _, n := range []*vnet.Net{offerNet, answerNet} {
		if err := wan.AddNet(n); err != nil {
			return nil, fmt.Errorf("could not add virtual network: %w", err)
		}
	}
	if err := wan.Start(); err != nil {
		return nil, fmt.Errorf("could not start virtual router: %w", err)
	}
	defer func() {
		if err := wan.Stop(); err != nil {
			logger.Err(err).Msg("could not stop virtual router")
		}
	}()

	offer, err := newLoopbackPeer(&logger, offerNet)
	if err != nil {
		return nil, err
	}
	defer closePeer(&logger, offer)
	answer, err := newLoopbackPeer(&logger, answerNet)
	if err != nil {
		return nil, err
	}
	defer closePeer(&logger, answer)

	track, err := NewLocalTrack(env.TrackKindAudio, "loopback")
	if err != nil {
		return nil, err
	}
	defer track.Stop()
	sender, err := offer.AddTrack(track.Local())
	if err != nil {
		return nil, fmt.Errorf("could not add track: %w", err)
	}
	go func() {
		for {
			if _, _, err := sender.ReadRTCP(); err != nil {
				return
			}
		}
	}()

	received := make(chan *RTPReceiver, 1)
	answer.OnTrack(func(_ *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		r := WrapRTPReceiver(receiver, &logger)
		go r.DrainRTCP()
		select {
		case received <- r:
		default:
		}
	})

	if err := negotiate(ctx, offer, answer); err != nil {
		return nil, err
	}

	ac, err := NewAudioContext(DefaultSampleRate)
	if err != nil {
		return nil, err
	}
	defer ac.Close()
	if err := ac.RegisterProcessor(loopbackMeter, AudioProcessorFunc(func(pkt *rtp.Packet, port *MessagePort) error {
		port.PostMessage(len(pkt.Payload))
		return nil
	})); err != nil {
		return nil, err
	}
	node, err := ac.NewWorkletNode(loopbackMeter)
	if err != nil {
		return nil, err
	}
	var metered int32
	done := make(chan struct{})
	node.OnMessage(func(interface{}) {
		if atomic.AddInt32(&metered, 1) == int32(packets) {
			close(done)
		}
	})
	if err := ac.Resume(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		receiver   *RTPReceiver
		remote     *MediaStreamTrack
		consumeErr = make(chan error, 1)
		sent       int
	)
	ticker := time.NewTicker(loopbackInterval)
	defer ticker.Stop()

	header := rtp.Header{Version: 2, SequenceNumber: 1}
loop:
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("loopback metered %d of %d packets: %w", atomic.LoadInt32(&metered), packets, ctx.Err())
		case <-done:
			break loop
		case r := <-received:
			receiver, remote = r, r.Track()
			logger.Debug().Str("track_id", remote.ID()).Msg("received loopback track")
			go func() {
				consumeErr <- node.Consume(ctx, TrackReader(remote.Remote()))
			}()
		case err := <-consumeErr:
			if err == nil {
				err = errors.New("track ended")
			}
			return nil, fmt.Errorf("loopback stopped early: %w", err)
		case <-ticker.C:
			if err := track.WriteRTP(&rtp.Packet{Header: header, Payload: opusSilence}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				return nil, fmt.Errorf("could not write RTP packet: %w", err)
			}
			header.SequenceNumber++
			header.Timestamp += opusFrameDuration
			sent++
		}
	}

	report := &LoopbackReport{
		Codec:    remote.Remote().Codec().MimeType,
		Sent:     sent,
		Received: int(atomic.LoadInt32(&metered)),
		RTCP:     receiver.Stats(),
		Elapsed:  time.Since(start),
	}
	if err := node.Disconnect(); err != nil {
		return nil, err
	}
	logger.Info().
		Int("sent", report.Sent).
		Int("received", report.Received).
		Dur("elapsed", report.Elapsed).
		Msg("loopback finished")
	return report, nil
}

func newLoopbackPeer(logger *zerolog.Logger, network *vnet.Net) (*webrtc.PeerConnection, error) {
	api, err := newAPI(logger, network)
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("could not create PeerConnection: %w", err)
	}
	return pc, nil
}

func closePeer(logger *zerolog.Logger, pc *webrtc.PeerConnection) {
	if err := pc.Close(); err != nil {
		logger.Err(err).Msg("could not close PeerConnection")
	}
}

// negotiate runs a non-trickle offer/answer exchange between two local PeerConnections.
func negotiate(ctx context.Context, offer, answer *webrtc.PeerConnection) error {
	o, err := offer.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("could not create offer: %w", err)
	}
	if err := setLocalDescription(ctx, offer, o); err != nil {
		return err
	}
	if err := answer.SetRemoteDescription(*offer.LocalDescription()); err != nil {
		return fmt.Errorf("could not set remote description: %w", err)
	}

	a, err := answer.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("could not create answer: %w", err)
	}
	if err := setLocalDescription(ctx, answer, a); err != nil {
		return err
	}
	if err := offer.SetRemoteDescription(*answer.LocalDescription()); err != nil {
		return fmt.Errorf("could not set remote description: %w", err)
	}
	return nil
}

// setLocalDescription sets desc and waits until ICE gathering is complete.
func setLocalDescription(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("could not set local description: %w", err)
	}
	select {
	case <-gatherComplete:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ICE gathering did not complete: %w", ctx.Err())
	}
}
