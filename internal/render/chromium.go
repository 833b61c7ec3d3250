// Package render produces single-page PDF artifacts by driving a headless
// Chromium binary over a generated HTML file.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/pagepress/export-api/internal/spec"
)

type Chromium struct {
	binary string
}

type Option func(*Chromium)

func WithBinary(path string) Option {
	return func(c *Chromium) { c.binary = path }
}

func NewChromium(opts ...Option) *Chromium {
	c := &Chromium{binary: "chromium"}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RenderPage writes the page document as a standalone HTML file next to
// outPath and prints it to PDF. The caller supplies the timeout via ctx;
// exceeding it kills the browser process.
func (c *Chromium) RenderPage(ctx context.Context, doc spec.Document, outPath string) error {
	html, err := BuildHTML(doc)
	if err != nil {
		return fmt.Errorf("build page html: %w", err)
	}

	htmlPath := outPath + ".html"
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write page html: %w", err)
	}
	defer func() { _ = os.Remove(htmlPath) }()

	cmd := exec.CommandContext(ctx, c.binary,
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--no-pdf-header-footer",
		"--print-to-pdf="+outPath,
		htmlPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("render timed out: %w", ctx.Err())
		}
		return fmt.Errorf("chromium failed: %w, stderr: %s", err, stderr.String())
	}

	st, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("chromium produced no output: %w", err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("chromium produced an empty artifact")
	}
	return nil
}
