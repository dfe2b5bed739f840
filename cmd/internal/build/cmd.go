package build

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Set with -ldflags "-X github.com/SB-IM/peerenv/cmd/internal/build.Version=...".
var (
	Branch    string
	Version   string
	Revision  string
	BuildUser string
	BuildDate string
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "info displays build information of this binary",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintf(c.App.Writer, "Branch:\t\t%s\nVersion:\t%s\nRevision:\t%s\nBuildUser:\t%s\nBuildDate:\t%s\n",
				orUnknown(Branch), orUnknown(Version), orUnknown(Revision), orUnknown(BuildUser), orUnknown(BuildDate))
			return err
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
