package inspect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/SB-IM/peerenv/internal/env"
	"github.com/SB-IM/peerenv/internal/env/native"
	"github.com/SB-IM/peerenv/internal/logging"
)

const (
	fetchTimeout    = 10 * time.Second
	loopbackTimeout = 30 * time.Second
)

// Command returns an inspect command.
func Command() *cli.Command {
	var (
		logger   zerolog.Logger
		options  native.ConfigOptions
		loopback int
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Boot a client environment from a hosting document and print what it sees",
		ArgsUsage: "<file or URL>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "origin",
				Usage:       "Origin of created object URLs",
				Destination: &options.Origin,
			},
			&cli.StringFlag{
				Name:        "storage",
				Usage:       "localStorage file, in memory if empty",
				Destination: &options.StoragePath,
			},
			&cli.IntFlag{
				Name:        "loopback",
				Usage:       "Stream this many audio packets through a local PeerConnection pair, 0 to skip",
				Value:       0,
				DefaultText: "0",
				Destination: &loopback,
			},
		},
		Before: func(c *cli.Context) error {
			logging.SetDebugMod(c.Bool("debug"))
			logger = log.With().Str("service", "peerenv").Str("command", "inspect").Logger()
			return nil
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one document, got %d", c.NArg())
			}
			ctx := logger.WithContext(c.Context)

			doc, err := loadDocument(ctx, c.Args().First())
			if err != nil {
				return err
			}
			p, err := native.New(doc, &logger, options)
			if err != nil {
				return err
			}
			e, err := env.Load(ctx, p)
			if err != nil {
				return err
			}
			if err := printSummary(c.App.Writer, e); err != nil {
				return err
			}
			if loopback == 0 {
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, loopbackTimeout)
			defer cancel()
			report, err := p.Loopback(ctx, loopback)
			if err != nil {
				return err
			}
			return printLoopback(c.App.Writer, report)
		},
	}
}

func loadDocument(ctx context.Context, target string) (*native.Document, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		return native.FetchDocument(ctx, http.DefaultClient, target)
	}
	return native.LoadDocumentFile(target)
}

func printSummary(w io.Writer, e *env.Environment) error {
	c := e.Config()

	var b strings.Builder
	fmt.Fprintf(&b, "Call:\t\t%s\n", c.CallID)
	fmt.Fprintf(&b, "Peer:\t\t%s\n", c.PeerID)
	fmt.Fprintf(&b, "Nickname:\t%s\n", c.Nickname)
	fmt.Fprintf(&b, "BaseURL:\t%s\n", c.BaseURL)
	fmt.Fprintf(&b, "Network:\t%s\n", c.Network)
	fmt.Fprintf(&b, "Insertable:\t%t (supported: %t)\n",
		c.PeerConfig.EncodedInsertableStreams, e.Media().EncodedStreamsSupported())
	for _, s := range c.PeerConfig.ICEServers {
		fmt.Fprintf(&b, "ICEServer:\t%s\n", strings.Join(s.URLs, ", "))
	}
	for _, kind := range []env.TrackKind{env.TrackKindAudio, env.TrackKindVideo} {
		codecs, err := e.Media().ReceiverCapabilities(kind)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(codecs))
		for _, codec := range codecs {
			names = append(names, codec.MimeType)
		}
		fmt.Fprintf(&b, "Receive %s:\t%s\n", kind, strings.Join(names, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func printLoopback(w io.Writer, r *native.LoopbackReport) error {
	_, err := fmt.Fprintf(w, "Loopback:\t%s, received %d of %d sent packets in %s, %d sender reports\n",
		r.Codec, r.Received, r.Sent, r.Elapsed.Round(time.Millisecond), r.RTCP.SenderReports)
	return err
}
