package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/subsync/internal/webhook/signature"
)

type replayOptions struct {
	URL     string
	Secret  string
	File    string
	Offset  time.Duration
	Timeout time.Duration
}

// runReplay signs a stored event body with the configured webhook secret
// and posts it to a running instance.
func runReplay(args []string, out io.Writer) error {
	_ = godotenv.Load()

	opts, err := parseReplayArgs(args)
	if err != nil {
		return err
	}

	body, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}
	if !json.Valid(body) {
		return errors.New("event file is not valid JSON")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	status, respBody, err := postSigned(ctx, opts, body, time.Now().Add(opts.Offset))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d %s\n", status, strings.TrimSpace(string(respBody)))
	if status >= http.StatusBadRequest {
		return fmt.Errorf("delivery rejected with status %d", status)
	}
	return nil
}

func parseReplayArgs(args []string) (replayOptions, error) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	opts := replayOptions{}
	fs.StringVar(&opts.URL, "url", "http://localhost:8080/webhooks/stripe", "webhook endpoint")
	fs.StringVar(&opts.Secret, "secret", firstSecret(), "signing secret (defaults to STRIPE_WEBHOOK_SECRETS)")
	fs.DurationVar(&opts.Offset, "offset", 0, "shift the signature timestamp, e.g. -10m for a stale signature")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		return opts, errors.New("usage: subsync replay [flags] <event.json>")
	}
	opts.File = fs.Arg(0)
	if strings.TrimSpace(opts.Secret) == "" {
		return opts, signature.ErrNoSecret
	}
	return opts, nil
}

func postSigned(ctx context.Context, opts replayOptions, body []byte, at time.Time) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature.Sign(body, opts.Secret, at))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func firstSecret() string {
	raw := os.Getenv("STRIPE_WEBHOOK_SECRETS")
	if raw == "" {
		raw = os.Getenv("STRIPE_WEBHOOK_SECRET")
	}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			return part
		}
	}
	return ""
}
