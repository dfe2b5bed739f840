package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/SB-IM/peerenv/cmd/host"
	"github.com/SB-IM/peerenv/cmd/inspect"
	"github.com/SB-IM/peerenv/cmd/internal/build"
	"github.com/SB-IM/peerenv/cmd/turn"
)

func main() {
	if err := run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("exits with error")
	}
}

func run(args []string) error {
	app := &cli.App{
		Name:  "peerenv",
		Usage: "peerenv hosts call clients and inspects their boot environment",
		Flags: []cli.Flag{ // Global flags.
			&cli.BoolFlag{
				Name:        "debug",
				Value:       false,
				Usage:       "enable debug mod",
				DefaultText: "false",
				EnvVars:     []string{"DEBUG"},
			},
		},
		Commands: []*cli.Command{
			host.Command(),
			turn.Command(),
			inspect.Command(),
			build.Command(),
		},
	}

	return app.Run(args)
}
