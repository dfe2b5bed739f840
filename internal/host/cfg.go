package host

import "github.com/SB-IM/peerenv/internal/env"

type ConfigOptions struct {
	ServerConfigOptions
	SessionConfigOptions
	WebRTCConfigOptions
}

type ServerConfigOptions struct {
	Host string
	Port int
	// Origin is the externally visible scheme://host[:port], used for object URLs.
	Origin string
}

type SessionConfigOptions struct {
	// BaseURL is handed to clients as the signaling endpoint. Empty means same origin.
	BaseURL string
	Network string
}

type WebRTCConfigOptions struct {
	ICEServer                string
	Username                 string
	Credential               string
	EncodedInsertableStreams bool
}

// iceServers returns the configured ICE server followed by extra.
func (o WebRTCConfigOptions) iceServers(extra ...env.ICEServer) []env.ICEServer {
	servers := make([]env.ICEServer, 0, len(extra)+1)
	if o.ICEServer != "" {
		servers = append(servers, env.ICEServer{
			URLs:       []string{o.ICEServer},
			Username:   o.Username,
			Credential: o.Credential,
		})
	}
	return append(servers, extra...)
}
