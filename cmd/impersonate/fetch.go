package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	impersonate "github.com/wippyai/impersonate-engine"
	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/headers"
	"github.com/wippyai/impersonate-engine/request"
)

var fetchOpts struct {
	client  clientFlags
	method  string
	data    string
	headers []string
	include bool
	workers int
	jobs    int
}

// fetchCmd fetches one or more URLs
var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Fetch URLs and print their bodies",
	Long: `Fetch one or more URLs with an impersonation profile and print each
body to stdout in argument order.

Examples:
  # Fetch with the Chrome 129 fingerprint
  impersonate fetch --profile chrome_129 https://example.com

  # Show response headers and send a custom header
  impersonate fetch -i -H "Accept-Language: en" https://example.com

  # Post a body
  impersonate fetch -X POST -d '{"a":1}' https://httpbin.org/post`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.StringVar(&fetchOpts.client.profile, "profile", "", "impersonation profile name, see the profiles command")
	f.DurationVar(&fetchOpts.client.timeout, "timeout", 0, "request timeout")
	f.BoolVarP(&fetchOpts.client.insecure, "insecure", "k", false, "accept invalid certificates")
	f.BoolVar(&fetchOpts.client.httpsOnly, "https-only", false, "refuse plain http URLs")
	f.StringVarP(&fetchOpts.method, "request", "X", "GET", "HTTP method")
	f.StringVarP(&fetchOpts.data, "data", "d", "", "request body")
	f.StringArrayVarP(&fetchOpts.headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	f.BoolVarP(&fetchOpts.include, "include", "i", false, "print status line and response headers")
	f.IntVar(&fetchOpts.workers, "workers", 0, "delivery workers (0 uses config)")
	f.IntVar(&fetchOpts.jobs, "concurrency", 0, "URLs fetched in parallel (0 uses config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	fetchOpts.client.apply(&cfg.Client, cmd.Flags().Changed)
	if fetchOpts.workers > 0 {
		cfg.Workers = fetchOpts.workers
	}
	if fetchOpts.jobs > 0 {
		cfg.Concurrency = fetchOpts.jobs
	}
	cfg.Verbose = cfg.Verbose || verbose
	cfg.Client.VerboseLogging = cfg.Client.VerboseLogging || verbose

	hdrs, err := parseHeaders(fetchOpts.headers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	eng, shutdown, err := startEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	h, err := eng.CreateClient(cfg.Client)
	if err != nil {
		return err
	}
	defer eng.DestroyClient(h)

	out := make([]bytes.Buffer, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Concurrency, 1))
	for i, url := range args {
		g.Go(func() error {
			spec := request.Spec{URL: url, Method: fetchOpts.method, Headers: hdrs}
			if fetchOpts.data != "" {
				spec.Body = strings.NewReader(fetchOpts.data)
			}
			return fetch(gctx, eng, h, spec, &out[i], fetchOpts.include)
		})
	}
	err = g.Wait()

	for i := range out {
		if _, werr := out[i].WriteTo(cmd.OutOrStdout()); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// fetch runs one request and writes the response to w.
func fetch(ctx context.Context, eng *impersonate.Engine, h client.Handle, spec request.Spec, w io.Writer, include bool) error {
	res, err := eng.Do(ctx, h, spec)
	if err != nil {
		return fmt.Errorf("%s: %w", spec.URL, err)
	}
	defer res.Body.Close()

	if include {
		writeHead(w, res.Response)
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		return fmt.Errorf("%s: %w", spec.URL, err)
	}
	return nil
}

func writeHead(w io.Writer, resp *request.Response) {
	fmt.Fprintf(w, "%s %d\n", resp.Version, resp.Status)
	for _, f := range resp.Headers.Fields() {
		for _, v := range f.Values {
			fmt.Fprintf(w, "%s: %s\n", f.Name, v)
		}
	}
	fmt.Fprintln(w)
}

// parseHeaders parses 'Name: value' pairs in order.
func parseHeaders(raw []string) (*headers.Headers, error) {
	h := headers.New()
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: value'", kv)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
