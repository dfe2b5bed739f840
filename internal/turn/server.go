// Package turn runs a TURN relay for call clients and describes it as an ICE server entry
// the host service can hand out in client configs.
package turn

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pion/turn/v2"
	"github.com/rs/zerolog"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/logging"
)

// Relay is a running TURN server.
type Relay struct {
	server *turn.Server
	config ConfigOptions
	logger zerolog.Logger
}

// Serve starts a TURN server listening on UDP port cfg.Port of every interface.
func Serve(logger *zerolog.Logger, cfg *ConfigOptions) (*Relay, error) {
	if cfg.RelayMinPort > cfg.RelayMaxPort {
		return nil, fmt.Errorf("relay port range [%d, %d] is empty", cfg.RelayMinPort, cfg.RelayMaxPort)
	}
	publicIP := net.ParseIP(cfg.PublicIP)
	if publicIP == nil {
		return nil, fmt.Errorf("invalid public IP %q", cfg.PublicIP)
	}

	l := logger.With().Str("component", "TURN").Logger()

	udpListener, err := net.ListenPacket("udp4", "0.0.0.0:"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("could not create udp4 listener: %w", err)
	}
	l.Info().Str("host", "0.0.0.0").Int("port", cfg.Port).Msg("created udp4 listener")

	// Only one long-term credential is supported.
	key := turn.GenerateAuthKey(cfg.Username, cfg.Realm, cfg.Password)

	s, err := turn.NewServer(turn.ServerConfig{
		LoggerFactory: logging.PionLoggerFactory(&l),
		Realm:         cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			if username != cfg.Username {
				l.Debug().Str("username", username).Str("addr", srcAddr.String()).Msg("rejected unknown user")
				return nil, false
			}
			return key, true
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: udpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorPortRange{
					RelayAddress: publicIP,  // Address advertised to clients.
					Address:      "0.0.0.0", // Address actually listened on.
					MinPort:      uint16(cfg.RelayMinPort),
					MaxPort:      uint16(cfg.RelayMaxPort),
				},
			},
		},
	})
	if err != nil {
		udpListener.Close()
		return nil, fmt.Errorf("could not create TURN server: %w", err)
	}
	l.Info().
		Uint("min_port", cfg.RelayMinPort).
		Uint("max_port", cfg.RelayMaxPort).
		Str("public_ip", cfg.PublicIP).
		Msg("started turn server")

	return &Relay{
		server: s,
		config: *cfg,
		logger: l,
	}, nil
}

// ICEServer describes the relay as clients should reach it.
func (r *Relay) ICEServer() env.ICEServer {
	return ICEServer(r.config)
}

func (r *Relay) Close() error {
	r.logger.Info().Msg("closing turn server")
	return r.server.Close()
}

// ICEServer builds the ICE server entry for a relay configured with cfg.
func ICEServer(cfg ConfigOptions) env.ICEServer {
	addr := net.JoinHostPort(cfg.PublicIP, strconv.Itoa(cfg.Port))
	return env.ICEServer{
		URLs: []string{
			"turn:" + addr + "?transport=udp",
		},
		Username:   cfg.Username,
		Credential: cfg.Password,
	}
}
