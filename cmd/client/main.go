//go:build js && wasm

// Command client boots the call client environment inside the browser.
//
//	GOOS=js GOARCH=wasm go build -o client.wasm ./cmd/client
//
// It reads the config element of the hosting document, fails the page load when it is
// missing or invalid, and publishes the parsed config to page scripts as window.peerenv.
package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"github.com/rs/zerolog/log"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/env/wasm"
	"github.com/SB-IM/peerenv/internal/logging"
)

func main() {
	logging.SetDebugMod(false)
	logger := log.With().Str("service", "peerenv").Str("command", "client").Logger()
	ctx := logger.WithContext(context.Background())

	p := wasm.New()
	e := env.MustLoad(ctx, p)
	c := e.Config()

	b, err := json.Marshal(c)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not marshal client config")
	}
	valueOf := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return js.Null()
		}
		v, ok := e.ValueOf(args[0].String())
		if !ok {
			return js.Null()
		}
		return v
	})
	js.Global().Set("peerenv", map[string]interface{}{
		"config":                  js.Global().Get("JSON").Call("parse", string(b)),
		"valueOf":                 valueOf,
		"encodedStreamsSupported": e.Media().EncodedStreamsSupported(),
	})
	logger.Info().
		Str("call_id", c.CallID).
		Str("peer_id", c.PeerID).
		Str("network", string(c.Network)).
		Msg("client environment loaded")

	// Keep the runtime alive for callbacks from page scripts.
	select {}
}
