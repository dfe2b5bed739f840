package host

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"

	turncmd "github.com/SB-IM/peerenv/cmd/turn"
	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/env/native"
	"github.com/SB-IM/peerenv/internal/host"
	"github.com/SB-IM/peerenv/internal/logging"
	"github.com/SB-IM/peerenv/internal/turn"
)

const (
	configFlagName     = "config"
	turnEnableFlagName = "turn.enable"
)

// Command returns a host command.
func Command() *cli.Command {
	var (
		logger zerolog.Logger

		serverConfigOptions  host.ServerConfigOptions
		sessionConfigOptions host.SessionConfigOptions
		webRTCConfigOptions  host.WebRTCConfigOptions
		turnConfigOptions    turn.ConfigOptions
	)

	flags := func() (flags []cli.Flag) {
		for _, v := range [][]cli.Flag{
			loadConfigFlag(),
			serverFlags(&serverConfigOptions),
			sessionFlags(&sessionConfigOptions),
			webRTCFlags(&webRTCConfigOptions),
			turnFlags(&turnConfigOptions),
		} {
			flags = append(flags, v...)
		}
		return
	}()

	return &cli.Command{
		Name:  "host",
		Usage: "Serve documents call clients boot from",
		Flags: flags,
		Before: func(c *cli.Context) error {
			if err := altsrc.InitInputSourceWithContext(
				flags,
				altsrc.NewTomlSourceFromFlagFunc(configFlagName),
			)(c); err != nil {
				return err
			}

			// Set up logger.
			logging.SetDebugMod(c.Bool("debug"))
			logger = log.With().Str("service", "peerenv").Str("command", "host").Logger()
			return nil
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logger.WithContext(ctx)

			var extra []env.ICEServer
			if c.Bool(turnEnableFlagName) {
				r, err := turn.Serve(&logger, &turnConfigOptions)
				if err != nil {
					return err
				}
				defer r.Close()
				extra = append(extra, r.ICEServer())
			}

			urls := native.NewObjectURLRegistry(serverConfigOptions.Origin, &logger)
			svc, err := host.New(&logger, host.ConfigOptions{
				ServerConfigOptions:  serverConfigOptions,
				SessionConfigOptions: sessionConfigOptions,
				WebRTCConfigOptions:  webRTCConfigOptions,
			}, urls, extra...)
			if err != nil {
				return err
			}
			return svc.Serve(ctx)
		},
		After: func(c *cli.Context) error {
			logger.Info().Msg("exits")
			return nil
		},
	}
}

// loadConfigFlag sets a config file path for app command.
// Note: you can't set any other flags' `Required` value to `true`,
// As it conflicts with this flag. You can set only either this flag or specifically the other flags but not both.
func loadConfigFlag() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        configFlagName,
			Aliases:     []string{"c"},
			Usage:       "Config file path",
			Value:       "config/config.toml",
			DefaultText: "config/config.toml",
		},
	}
}

func serverFlags(options *host.ServerConfigOptions) []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "signal_server.host",
			Usage:       "Host of HTTP server",
			Value:       "0.0.0.0",
			DefaultText: "0.0.0.0",
			Destination: &options.Host,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "signal_server.port",
			Usage:       "Port of HTTP server",
			Value:       8080,
			DefaultText: "8080",
			Destination: &options.Port,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "signal_server.origin",
			Usage:       "Externally visible origin, used in object URLs",
			Value:       "http://localhost:8080",
			DefaultText: "http://localhost:8080",
			Destination: &options.Origin,
		}),
	}
}

func sessionFlags(options *host.SessionConfigOptions) []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "session.base_url",
			Usage:       "Base URL handed to clients, empty for same origin",
			Destination: &options.BaseURL,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "session.network",
			Usage:       "Network topology of calls, mesh or sfu",
			Value:       string(env.NetworkMesh),
			DefaultText: string(env.NetworkMesh),
			Destination: &options.Network,
		}),
	}
}

func webRTCFlags(options *host.WebRTCConfigOptions) []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "webrtc.ice_server",
			Usage:       "ICE server address",
			Value:       "stun:stun.l.google.com:19302",
			DefaultText: "stun:stun.l.google.com:19302",
			Destination: &options.ICEServer,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "webrtc.ice_server_username",
			Usage:       "ICE server username",
			Destination: &options.Username,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "webrtc.ice_server_credential",
			Usage:       "ICE server credential",
			Destination: &options.Credential,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "webrtc.encoded_insertable_streams",
			Usage:       "Ask clients to use encoded insertable streams",
			Value:       false,
			DefaultText: "false",
			Destination: &options.EncodedInsertableStreams,
		}),
	}
}

func turnFlags(options *turn.ConfigOptions) []cli.Flag {
	return append([]cli.Flag{
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        turnEnableFlagName,
			Usage:       "Run an embedded TURN server and hand it out to clients",
			Value:       false,
			DefaultText: "false",
		}),
	}, turncmd.Flags(options)...)
}
