package inspect

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/env/native"
)

const page = `<html><body><input id="config" value='{"baseUrl":"https://calls.example.com","nickname":"alice","callId":"room1","peerId":"p1","peerConfig":{"iceServers":[{"urls":"stun:stun.example.com"}],"encodedInsertableStreams":false},"network":"mesh"}'></body></html>`

func TestPrintSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.html")
	if err := os.WriteFile(path, []byte(page), 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := loadDocument(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.Nop()
	p, err := native.New(doc, &logger, native.ConfigOptions{})
	if err != nil {
		t.Fatal(err)
	}
	e, err := env.Load(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printSummary(&out, e); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"room1", "alice", "mesh", "stun:stun.example.com", "audio/opus"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("summary is missing %q:\n%s", want, out.String())
		}
	}
}

func TestLoadDocumentMissingFile(t *testing.T) {
	if _, err := loadDocument(context.Background(), filepath.Join(t.TempDir(), "none.html")); err == nil {
		t.Fatal("expected error")
	}
}

func TestPrintLoopback(t *testing.T) {
	var out bytes.Buffer
	err := printLoopback(&out, &native.LoopbackReport{
		Codec:    "audio/opus",
		Sent:     12,
		Received: 10,
		RTCP:     native.ReceiverStats{SenderReports: 1},
		Elapsed:  1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "Loopback:\taudio/opus, received 10 of 12 sent packets in 1.5s, 1 sender reports\n"
	if out.String() != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}
}
