package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/meta"
)

// CallOptions holds the call flags.
type CallOptions struct {
	*RootOptions
	Data      string
	Subdomain string
	Headers   []string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <method> <url>",
		Short: "Call an endpoint in process",
		Long: `Call an endpoint through the emulated pipeline, without a server.

The URL resolves like a call between modules: "/a/base/kv/get" is
/api/a/base/kv/get and "//healthz" is /healthz. The call runs as inner
(trusted) access.

Exit codes:
  0 - the endpoint answered code 0
  1 - domain or transport failure
  2 - command error (bad flags, config, database)

Examples:
  intercall call post /a/base/kv/set --data '{"key":"color","value":"blue"}'
  intercall call post /a/base/kv/get --data '{"key":"color"}' --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "JSON request body")
	cmd.Flags().StringVar(&opts.Subdomain, "subdomain", "", "subdomain the call runs for")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, `extra header, "Name: value" (repeatable)`)

	return cmd
}

func runCall(cmd *cobra.Command, opts *CallOptions, method, url string) error {
	f := newFormatter(cmd, opts.RootOptions)

	body, err := parseData(opts.Data)
	if err != nil {
		_ = f.Error(CodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --data", err)
	}
	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		_ = f.Error(CodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --header", err)
	}

	rt, err := newRuntime(opts.RootOptions, newLogger(opts.RootOptions, cmd.ErrOrStderr()), meta.UUIDv7Generator{})
	if err != nil {
		_ = f.Error(CodeConfig, err.Error(), nil)
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	caller := rt.app.AnonymousContext(ctx, http.MethodGet, "/")
	caller.SetSubdomain(opts.Subdomain)
	f.VerboseLog("calling %s %s", strings.ToUpper(method), url)

	data, err := caller.PerformAction(ctx, app.Action{
		Method:  method,
		URL:     url,
		Body:    body,
		Headers: headers,
	})
	if drainErr := drain(ctx, rt); drainErr != nil {
		f.VerboseLog("queue drain: %v", drainErr)
	}
	if err != nil {
		ae := app.AsActionError(err)
		_ = f.Error(CodeAction, ae.Error(), ae.Envelope())
		return WrapExitError(ExitFailure, "call failed", err)
	}
	return f.Success(data)
}

func parseData(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("data is not valid JSON: %w", err)
	}
	return v, nil
}

func parseHeaders(raw []string) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	h := make(http.Header)
	for _, line := range raw {
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("header %q: want \"Name: value\"", line)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}
