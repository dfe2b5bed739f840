package env

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v3"
)

// ConfigElementID is the id of the hosting document element carrying the client config.
const ConfigElementID = "config"

// configJSON matches object keys exactly, as JSON.parse does.
// A key differing only in case is an unknown field.
var configJSON = jsoniter.Config{
	EscapeHTML:    true,
	CaseSensitive: true,
}.Froze()

var (
	// ErrMissingConfig is returned when the config element is absent or empty.
	ErrMissingConfig = errors.New("config element not found")
	// ErrInvalidConfig is returned when the config element holds malformed or unsupported content.
	ErrInvalidConfig = errors.New("invalid config")
)

// Network selects the session topology.
type Network string

const (
	NetworkMesh Network = "mesh"
	NetworkSFU  Network = "sfu"
)

// Valid reports whether n is a known topology.
func (n Network) Valid() bool {
	return n == NetworkMesh || n == NetworkSFU
}

// ClientConfig is the session configuration embedded in the hosting document.
type ClientConfig struct {
	BaseURL    string     `json:"baseUrl"`
	Nickname   string     `json:"nickname"`
	CallID     string     `json:"callId"`
	PeerID     string     `json:"peerId"`
	PeerConfig PeerConfig `json:"peerConfig"`
	Network    Network    `json:"network"`
}

// PeerConfig holds peer connection parameters.
type PeerConfig struct {
	ICEServers               []ICEServer `json:"iceServers"`
	EncodedInsertableStreams bool        `json:"encodedInsertableStreams"`
}

// ICEServer describes a STUN or TURN server.
// URLs accepts both a single string and a list in JSON, as RTCIceServer does.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func (s *ICEServer) UnmarshalJSON(b []byte) error {
	var raw struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := configJSON.Unmarshal(b, &raw); err != nil {
		return err
	}

	var urls []string
	switch trimmed := bytes.TrimSpace(raw.URLs); {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '"':
		var u string
		if err := configJSON.Unmarshal(trimmed, &u); err != nil {
			return err
		}
		urls = []string{u}
	default:
		if err := configJSON.Unmarshal(trimmed, &urls); err != nil {
			return fmt.Errorf("urls must be a string or a list of strings: %w", err)
		}
	}

	*s = ICEServer{
		URLs:       urls,
		Username:   raw.Username,
		Credential: raw.Credential,
	}
	return nil
}

// ParseConfig decodes and validates the JSON text of the config element.
// Keys are matched case sensitively and unknown fields are ignored.
// For duplicate keys the last one wins.
func ParseConfig(raw string) (*ClientConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingConfig
	}

	var config *ClientConfig
	if err := configJSON.UnmarshalFromString(raw, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if config == nil {
		return nil, fmt.Errorf("%w: config is null", ErrInvalidConfig)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config, nil
}

func (c *ClientConfig) validate() error {
	if !c.Network.Valid() {
		return fmt.Errorf("unknown network %q, want %q or %q", c.Network, NetworkMesh, NetworkSFU)
	}
	if c.CallID == "" {
		return errors.New("callId is empty")
	}
	if c.PeerID == "" {
		return errors.New("peerId is empty")
	}
	// An empty base URL means same origin.
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("baseUrl: %w", err)
	}
	for i, s := range c.PeerConfig.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("iceServers[%d] has no urls", i)
		}
		for _, u := range s.URLs {
			if !validICEURL(u) {
				return fmt.Errorf("iceServers[%d] has unsupported url %q", i, u)
			}
		}
	}
	return nil
}

func validICEURL(u string) bool {
	scheme, rest, ok := strings.Cut(u, ":")
	if !ok || rest == "" {
		return false
	}
	switch scheme {
	case "stun", "stuns", "turn", "turns":
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of c.
func (c ClientConfig) Clone() ClientConfig {
	servers := make([]ICEServer, len(c.PeerConfig.ICEServers))
	for i, s := range c.PeerConfig.ICEServers {
		servers[i] = ICEServer{
			URLs:       append([]string(nil), s.URLs...),
			Username:   s.Username,
			Credential: s.Credential,
		}
	}
	if c.PeerConfig.ICEServers == nil {
		servers = nil
	}
	c.PeerConfig.ICEServers = servers
	return c
}

// WebRTCConfiguration converts the peer config into a pion PeerConnection configuration.
func (c ClientConfig) WebRTCConfiguration() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.PeerConfig.ICEServers))
	for _, s := range c.PeerConfig.ICEServers {
		server := webrtc.ICEServer{
			URLs:     append([]string(nil), s.URLs...),
			Username: s.Username,
		}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}
	return webrtc.Configuration{
		ICEServers: servers,
	}
}
