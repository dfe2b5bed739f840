package native

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
)

func TestLoopback(t *testing.T) {
	logger := zerolog.Nop()
	p, err := New(nil, &logger, ConfigOptions{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := p.Loopback(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.EqualFold(report.Codec, webrtc.MimeTypeOpus) {
		t.Fatalf("codec is incorrect, got %s want %s", report.Codec, webrtc.MimeTypeOpus)
	}
	if report.Received < 10 {
		t.Fatalf("got %d metered packets want at least 10", report.Received)
	}
	if report.Sent < 10 {
		t.Fatalf("got %d sent packets want at least 10", report.Sent)
	}
}

func TestLoopbackInvalidCount(t *testing.T) {
	logger := zerolog.Nop()
	p, err := New(nil, &logger, ConfigOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Loopback(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero packets")
	}
}
