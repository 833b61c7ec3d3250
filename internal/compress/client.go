// Package compress talks to the external document-compression backend over
// its REST API. Availability is gated on a configured API token; running
// without one is not an error, exports simply skip compression.
package compress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Available reports whether the backend is usable at all.
func (c *Client) Available() bool {
	return c.baseURL != "" && c.token != ""
}

// Compress uploads the file at inPath and writes the compressed response body
// to outPath.
func (c *Client) Compress(ctx context.Context, inPath, outPath string) error {
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compress", f)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/pdf")
	req.ContentLength = st.Size()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("compression request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("compression backend returned %d: %s", resp.StatusCode, body)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
