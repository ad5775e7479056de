package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// CheckPDFTool reports whether pdftotext is on PATH.
func CheckPDFTool() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return fmt.Errorf("%w: %s", ErrPDFToolNotFound, InstallInstructions())
	}
	return nil
}

// InstallInstructions explains how to get pdftotext.
func InstallInstructions() string {
	return "install poppler to get pdftotext (macOS: brew install poppler, Debian/Ubuntu: apt install poppler-utils)"
}

// PageRange selects pages [Start, End) by zero-based index. End <= 0
// means through the last page.
type PageRange struct {
	Start int
	End   int
}

// PDFExtractor pulls plain text out of a PDF with poppler's pdftotext.
type PDFExtractor struct {
	runner    CommandRunner
	pages     PageRange
	checkTool bool
}

// NewPDFExtractor returns an extractor that shells out to pdftotext.
func NewPDFExtractor(pages PageRange) *PDFExtractor {
	return &PDFExtractor{runner: execRunner{}, pages: pages, checkTool: true}
}

// NewPDFExtractorWithRunner uses runner in place of the real pdftotext.
func NewPDFExtractorWithRunner(runner CommandRunner, pages PageRange) *PDFExtractor {
	return &PDFExtractor{runner: runner, pages: pages}
}

// Extract returns the text of the selected pages. Pages are separated by
// a newline.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if e.checkTool {
		if err := CheckPDFTool(); err != nil {
			return "", err
		}
	}

	out, err := e.runner.Run(ctx, "pdftotext", e.args(path)...)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}

	// pdftotext ends every page with a form feed.
	text := strings.ReplaceAll(string(out), "\f", "\n")
	return text, nil
}

func (e *PDFExtractor) args(path string) []string {
	args := []string{"-enc", "UTF-8"}
	if e.pages.Start > 0 {
		args = append(args, "-f", strconv.Itoa(e.pages.Start+1))
	}
	if e.pages.End > 0 {
		args = append(args, "-l", strconv.Itoa(e.pages.End))
	}
	return append(args, path, "-")
}
