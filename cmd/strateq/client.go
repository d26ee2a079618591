package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-trading/internal/config"
	"github.com/rxtech-lab/argo-trading/internal/statusview"
	"github.com/rxtech-lab/argo-trading/internal/types"
)

func httpClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func postJSON(ctx context.Context, addr, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	return httpClient().Do(req)
}

func getJSON(ctx context.Context, addr, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+path, nil)
	if err != nil {
		return err
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fatalHTTPStatus(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name: "deploy",
		Usage: "validate and start a strategy deployment from a YAML spec",
		ArgsUsage: "<spec.yaml>",
		Flags: []cli.Flag{
			addrFlag(),
			&cli.BoolFlag{Name: "dry-run", Usage: "validate the spec against the running daemon without starting it"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("deploy requires a spec file path")
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading spec: %w", err)
			}

			var file config.DeploySpecFile
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("parsing spec: %w", err)
			}

			addr := cmd.String("addr")
			endpoint := "/deploy/start"

			if cmd.Bool("dry-run") {
				endpoint = "/deploy/validate"
			}

			resp, err := postJSON(ctx, addr, endpoint, file)
			if err != nil {
				return fmt.Errorf("calling %s: %w", endpoint, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				return responseError(resp)
			}

			io.Copy(os.Stdout, resp.Body)
			fmt.Println()

			return nil
		},
	}
}

// strategyListResponse mirrors httpapi's GET /strategies envelope.
type strategyListResponse struct {
	Strategies []types.StrategyRecord `json:"strategies"`
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name: "list",
		Usage: "list deployed strategies as JSON",
		Flags: []cli.Flag{addrFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var resp strategyListResponse
			if err := getJSON(ctx, cmd.String("addr"), "/strategies", &resp); err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", " ")

			return enc.Encode(resp.Strategies)
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name: "status",
		Usage: "print a table of deployed strategies and their state",
		Flags: []cli.Flag{addrFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var resp strategyListResponse
			if err := getJSON(ctx, cmd.String("addr"), "/strategies", &resp); err != nil {
				return err
			}

			return statusview.Write(os.Stdout, resp.Strategies)
		},
	}
}

func strategyActionCommand(name, path, verb string) *cli.Command {
	return &cli.Command{
		Name: name,
		Usage: fmt.Sprintf("%s a deployed strategy", verb),
		ArgsUsage: "<strategy-id>",
		Flags: []cli.Flag{addrFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("%s requires a strategy id", name)
			}

			resp, err := postJSON(ctx, cmd.String("addr"), fmt.Sprintf("/strategies/%s/%s", id, path), map[string]any{})
			if err != nil {
				return fmt.Errorf("calling %s: %w", path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				return responseError(resp)
			}

			fmt.Printf("%s %sd\n", id, verb)

			return nil
		},
	}
}

func pauseCommand() *cli.Command { return strategyActionCommand("pause", "pause", "pause") }
func resumeCommand() *cli.Command { return strategyActionCommand("resume", "resume", "resume") }

func stopCommand() *cli.Command {
	return &cli.Command{
		Name: "stop",
		Usage: "stop a deployed strategy",
		ArgsUsage: "<strategy-id>",
		Flags: []cli.Flag{
			addrFlag(),
			&cli.BoolFlag{Name: "liquidate", Usage: "close all open positions before stopping"},
			&cli.BoolFlag{Name: "force", Usage: "stop immediately without waiting for open orders to settle"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("stop requires a strategy id")
			}

			body := map[string]bool{"liquidate": cmd.Bool("liquidate"), "force": cmd.Bool("force")}

			resp, err := postJSON(ctx, cmd.String("addr"), fmt.Sprintf("/strategies/%s/stop", id), body)
			if err != nil {
				return fmt.Errorf("calling stop: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				return responseError(resp)
			}

			io.Copy(os.Stdout, resp.Body)
			fmt.Println()

			return nil
		},
	}
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s", body.Error)
	}

	return fatalHTTPStatus(resp)
}
