// Package merge assembles ordered page artifacts into one PDF via the
// pdfunite binary. Individual unreadable inputs are skipped rather than
// failing the whole merge; the caller decides what zero merged pages means.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/ledongthuc/pdf"
)

type PDFUnite struct {
	binary string
}

type Option func(*PDFUnite)

func WithBinary(path string) Option {
	return func(m *PDFUnite) { m.binary = path }
}

func NewPDFUnite(opts ...Option) *PDFUnite {
	m := &PDFUnite{binary: "pdfunite"}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Merge concatenates the readable inputs, in order, into outPath. It returns
// how many pages made it into the merged document.
func (m *PDFUnite) Merge(ctx context.Context, pagePaths []string, outPath string) (int, error) {
	var usable []string
	for _, p := range pagePaths {
		if err := validatePDF(p); err != nil {
			slog.Warn("merge: skipping unreadable page artifact", "path", p, "error", err)
			continue
		}
		usable = append(usable, p)
	}

	if len(usable) == 0 {
		return 0, errors.New("no readable page artifacts to merge")
	}

	// pdfunite wants at least two inputs.
	if len(usable) == 1 {
		if err := copyFile(usable[0], outPath); err != nil {
			return 0, fmt.Errorf("copy single page: %w", err)
		}
		return 1, nil
	}

	args := append(append([]string{}, usable...), outPath)
	cmd := exec.CommandContext(ctx, m.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("pdfunite failed: %w, stderr: %s", err, stderr.String())
	}

	if _, err := os.Stat(outPath); err != nil {
		return 0, fmt.Errorf("pdfunite produced no output: %w", err)
	}
	return len(usable), nil
}

func validatePDF(path string) error {
	f, r, err := pdf.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if r.NumPage() < 1 {
		return errors.New("document has no pages")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
