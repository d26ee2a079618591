// Command strateq is the runtime's entrypoint: `strateq run` wires every
// component into a long-lived daemon exposing the control-plane
// HTTP surface, while the other subcommands (deploy/list/pause/resume/
// stop/status) are thin HTTP clients against a running daemon, the way
// original_source/src/StrateQueue/cli/cli.py's subcommands each drive one
// operation against the running engine. Grounded on
// cmd/market/main.go's urfave/cli/v3 command tree.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

func main() {
	cmd := &cli.Command{
		Name: "strateq",
		Usage: "run and control live/paper trading strategy deployments",
		Commands: []*cli.Command{
			runCommand(),
			deployCommand(),
			listCommand(),
			statusCommand(),
			pauseCommand(),
			resumeCommand(),
			stopCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to spec's process exit codes: 1 for a
// config/validation failure (an unrecognized flag, a bad deploy spec, a
// rejected connection to a running daemon), 2 for an unrecoverable
// runtime error (TransientUpstreamError, PermanentUpstreamError,
// StrategyError, InvariantViolation — codes >= 900).
func exitCode(err error) int {
	if errors.GetCode(err) >= 900 {
		return 2
	}

	return 1
}

func addrFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name: "addr",
		Aliases: []string{"a"},
		Usage: "control-plane HTTP address of a running `strateq run`",
		Value: "http://127.0.0.1:8080",
	}
}

func fatalHTTPStatus(resp *http.Response) error {
	return fmt.Errorf("%s: unexpected status %s", resp.Request.URL.Path, resp.Status)
}
