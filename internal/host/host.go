// Package host serves the documents call clients boot from.
// Every document embeds the session config in a hidden input with id "config",
// which is what env.Load reads in the client. Object URLs minted by the server side
// registry are served next to the documents.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pion/randutil"
	"github.com/rs/zerolog"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/env/native"
)

const (
	peerIDLength  = 16
	peerIDRunes   = "abcdefghijklmnopqrstuvwxyz0123456789"
	shutdownGrace = 5 * time.Second
)

var document = template.Must(template.New("call").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.CallID}}</title>
</head>
<body>
<input type="hidden" id="config" value="{{.Config}}">
<input type="hidden" id="nickname" value="{{.Nickname}}">
<div id="container"></div>
</body>
</html>
`))

// Server renders hosting documents.
type Server struct {
	document   *template.Template
	config     ConfigOptions
	network    env.Network
	iceServers []env.ICEServer
	urls       *native.ObjectURLRegistry
	logger     zerolog.Logger
}

// New returns a Server. extraICEServers are appended to the configured ICE server,
// e.g. the relay started by the turn command.
func New(
	logger *zerolog.Logger,
	config ConfigOptions,
	urls *native.ObjectURLRegistry,
	extraICEServers ...env.ICEServer,
) (*Server, error) {
	network := env.Network(config.Network)
	if !network.Valid() {
		return nil, fmt.Errorf("unknown network %q", config.Network)
	}
	return &Server{
		document:   document,
		config:     config,
		network:    network,
		iceServers: config.iceServers(extraICEServers...),
		urls:       urls,
		logger:     logger.With().Str("component", "Host").Logger(),
	}, nil
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/call/{callId:[A-Za-z0-9_-]+}", s.handleDocument()).Methods(http.MethodGet)
	r.HandleFunc("/call/{callId:[A-Za-z0-9_-]+}/config", s.handleConfig()).Methods(http.MethodGet)
	if s.urls != nil {
		r.PathPrefix(native.BlobPathPrefix).Handler(s.urls.Handler())
	}
	s.logger.Debug().Msg("registered host HTTP handlers")
	return r
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("host", s.config.Host).Int("port", s.config.Port).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shut down HTTP server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// ClientConfig builds the config a client joining callID receives.
// An empty peerID is replaced with a random one.
func (s *Server) ClientConfig(callID, peerID, nickname string) (*env.ClientConfig, error) {
	if peerID == "" {
		id, err := randutil.GenerateCryptoRandomString(peerIDLength, peerIDRunes)
		if err != nil {
			return nil, fmt.Errorf("could not generate peer id: %w", err)
		}
		peerID = id
	}
	config := env.ClientConfig{
		BaseURL:  s.config.BaseURL,
		Nickname: nickname,
		CallID:   callID,
		PeerID:   peerID,
		PeerConfig: env.PeerConfig{
			ICEServers:               s.iceServers,
			EncodedInsertableStreams: s.config.EncodedInsertableStreams,
		},
		Network: s.network,
	}.Clone()
	return &config, nil
}

func (s *Server) handleDocument() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, config, ok := s.encodeConfig(w, r)
		if !ok {
			return
		}
		logger := s.logger.With().Str("call_id", config.CallID).Str("peer_id", config.PeerID).Logger()

		var buf bytes.Buffer
		if err := s.document.Execute(&buf, struct {
			CallID   string
			Config   string
			Nickname string
		}{
			CallID:   config.CallID,
			Config:   raw,
			Nickname: config.Nickname,
		}); err != nil {
			logger.Err(err).Msg("could not render document")
			writeError(w, http.StatusInternalServerError, ErrRenderDocument)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := buf.WriteTo(w); err != nil {
			logger.Err(err).Msg("could not write document")
			return
		}
		logger.Debug().Msg("served hosting document")
	}
}

func (s *Server) handleConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _, ok := s.encodeConfig(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(raw)); err != nil {
			s.logger.Err(err).Msg("could not write config")
		}
	}
}

// encodeConfig builds, encodes and re-parses the request's config, so a client is
// never handed a document it would refuse to boot from.
func (s *Server) encodeConfig(w http.ResponseWriter, r *http.Request) (string, *env.ClientConfig, bool) {
	q := r.URL.Query()
	config, err := s.ClientConfig(mux.Vars(r)["callId"], q.Get("peerId"), q.Get("nickname"))
	if err != nil {
		s.logger.Err(err).Msg("could not build client config")
		writeError(w, http.StatusInternalServerError, ErrGeneratePeerID)
		return "", nil, false
	}

	b, err := json.Marshal(config)
	if err != nil {
		s.logger.Err(err).Msg("could not marshal client config")
		writeError(w, http.StatusInternalServerError, ErrMarshalJSON)
		return "", nil, false
	}
	if _, err := env.ParseConfig(string(b)); err != nil {
		s.logger.Err(err).Msg("built an invalid client config")
		writeError(w, http.StatusInternalServerError, ErrInvalidConfig)
		return "", nil, false
	}
	return string(b), config, true
}
