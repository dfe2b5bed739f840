// Package env is the single entry point dependent call code uses to reach its host runtime.
//
// An Environment is created once at boot by Load. Load reads the "config" element of the
// hosting document, parses it into a ClientConfig and fails if that is not possible, so no
// dependent component ever starts without valid session parameters. After Load the config is
// read only. Host capabilities such as object URLs, media streams, audio contexts and the
// local store are reached through the Environment instead of ambient globals.
package env

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const environmentKey = contextKey("environment")

// Environment binds a host Provider to the parsed client config.
type Environment struct {
	provider Provider
	config   ClientConfig
	logger   zerolog.Logger
}

// Load reads and parses the config element through provider.
// It returns ErrMissingConfig if the element does not exist and an error wrapping
// ErrInvalidConfig if its content is malformed.
func Load(ctx context.Context, provider Provider) (*Environment, error) {
	logger := log.Ctx(ctx).With().Str("component", "env").Logger()

	raw, ok := ValueOf(provider, ConfigElementID)
	if !ok {
		return nil, fmt.Errorf("%w: no element with id %q", ErrMissingConfig, ConfigElementID)
	}
	config, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("call_id", config.CallID).
		Str("peer_id", config.PeerID).
		Str("network", string(config.Network)).
		Int("ice_servers", len(config.PeerConfig.ICEServers)).
		Msg("loaded client config")

	return &Environment{
		provider: provider,
		config:   config.Clone(),
		logger:   logger,
	}, nil
}

// MustLoad is like Load but panics on failure.
func MustLoad(ctx context.Context, provider Provider) *Environment {
	e, err := Load(ctx, provider)
	if err != nil {
		panic(fmt.Sprintf("env: %v", err))
	}
	return e
}

// ValueOf returns the value of element id in doc, or false if it does not exist.
func ValueOf(doc Document, id string) (string, bool) {
	if doc == nil {
		return "", false
	}
	return doc.ElementValue(id)
}

// ValueOf returns the value of element id in the hosting document.
func (e *Environment) ValueOf(id string) (string, bool) {
	return ValueOf(e.provider, id)
}

// Config returns a copy of the client config.
func (e *Environment) Config() ClientConfig {
	return e.config.Clone()
}

// CreateObjectURL creates a temporary reference to blob.
// The caller owns the returned URL and must revoke it.
func (e *Environment) CreateObjectURL(blob Blob) (string, error) {
	url, err := e.provider.CreateObjectURL(blob)
	if err != nil {
		return "", fmt.Errorf("could not create object URL: %w", err)
	}
	e.logger.Debug().Str("url", url).Int("size", len(blob.Data)).Msg("created object URL")
	return url, nil
}

// RevokeObjectURL invalidates url.
func (e *Environment) RevokeObjectURL(url string) {
	e.provider.RevokeObjectURL(url)
	e.logger.Debug().Str("url", url).Msg("revoked object URL")
}

func (e *Environment) Media() Media {
	return e.provider
}

func (e *Environment) Audio() Audio {
	return e.provider
}

func (e *Environment) LocalStorage() KeyValueStore {
	return e.provider.LocalStorage()
}

// WithContext returns a copy of ctx carrying e.
func WithContext(ctx context.Context, e *Environment) context.Context {
	return context.WithValue(ctx, environmentKey, e)
}

// FromContext returns the Environment stored in ctx. If no such Environment exists, it returns nil.
func FromContext(ctx context.Context) *Environment {
	if e, ok := ctx.Value(environmentKey).(*Environment); ok {
		return e
	}
	return nil
}
