package native

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
)

// ReceiverStats counts RTCP packets read from a receiver.
type ReceiverStats struct {
	SenderReports          int
	PictureLossIndications int
	Goodbyes               int
	Other                  int
}

type rtcpReader interface {
	ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error)
}

// RTPReceiver wraps a pion RTPReceiver.
// RTCP must be read for interceptors such as NACK to work, DrainRTCP does that.
type RTPReceiver struct {
	receiver *webrtc.RTPReceiver
	reader   rtcpReader
	logger   zerolog.Logger

	mu    sync.Mutex
	stats ReceiverStats
}

// WrapRTPReceiver returns an RTPReceiver for r.
func WrapRTPReceiver(r *webrtc.RTPReceiver, logger *zerolog.Logger) *RTPReceiver {
	return &RTPReceiver{
		receiver: r,
		reader:   r,
		logger:   logger.With().Str("component", "RTPReceiver").Logger(),
	}
}

// Track returns the received track, or nil before negotiation.
func (r *RTPReceiver) Track() *MediaStreamTrack {
	if r.receiver == nil {
		return nil
	}
	t := r.receiver.Track()
	if t == nil {
		return nil
	}
	return WrapRemoteTrack(t)
}

// DrainRTCP reads RTCP until the receiver is stopped. It blocks.
func (r *RTPReceiver) DrainRTCP() {
	for {
		packets, _, err := r.reader.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.logger.Err(err).Msg("could not read RTCP")
			}
			return
		}
		r.count(packets)
	}
}

func (r *RTPReceiver) count(packets []rtcp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range packets {
		switch p.(type) {
		case *rtcp.SenderReport:
			r.stats.SenderReports++
		case *rtcp.PictureLossIndication:
			r.stats.PictureLossIndications++
		case *rtcp.Goodbye:
			r.stats.Goodbyes++
		default:
			r.stats.Other++
		}
	}
}

func (r *RTPReceiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *RTPReceiver) Stop() error {
	if r.receiver == nil {
		return nil
	}
	return r.receiver.Stop()
}
