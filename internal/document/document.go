// Package document turns an uploaded statement buffer into text for the
// extraction stage.
package document

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMalformed is returned for input that is not a readable PDF.
var ErrMalformed = errors.New("document: malformed or unreadable PDF")

// ErrExtractorUnavailable is returned when the text extractor cannot be
// started at all. The document itself was never inspected.
var ErrExtractorUnavailable = errors.New("document: text extractor unavailable")

var pdfMagic = []byte("%PDF-")

// TextExtractor pulls the text layer out of a PDF file on disk.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Parsed is the preprocessor's output. Text is empty when IsScanned is set.
type Parsed struct {
	Text      string
	IsScanned bool
	Raw       []byte
}

// Preprocessor validates a PDF buffer and extracts its text layer.
type Preprocessor struct {
	text            TextExtractor
	scannedMinChars int
	tempDir         string
}

// NewPreprocessor creates a Preprocessor. Documents whose text layer holds
// fewer than scannedMinChars non-space characters are treated as scanned.
func NewPreprocessor(text TextExtractor, scannedMinChars int) *Preprocessor {
	if scannedMinChars <= 0 {
		scannedMinChars = 200
	}
	return &Preprocessor{text: text, scannedMinChars: scannedMinChars}
}

// LooksLikePDF reports whether data carries the PDF header.
func LooksLikePDF(data []byte) bool {
	return len(data) > len(pdfMagic) && bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic)
}

// Parse validates data and extracts its text. Failures to read the document
// wrap ErrMalformed; a missing extractor binary wraps ErrExtractorUnavailable.
func (p *Preprocessor) Parse(ctx context.Context, data []byte) (Parsed, error) {
	if len(data) == 0 {
		return Parsed{}, eris.Wrap(ErrMalformed, "empty input")
	}
	if !LooksLikePDF(data) {
		return Parsed{}, eris.Wrap(ErrMalformed, "missing %PDF- header")
	}

	f, err := os.CreateTemp(p.tempDir, "statement-*.pdf")
	if err != nil {
		return Parsed{}, eris.Wrap(err, "document: create temp file")
	}
	path := f.Name()
	defer os.Remove(path) //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return Parsed{}, eris.Wrap(err, "document: write temp file")
	}
	if err := f.Close(); err != nil {
		return Parsed{}, eris.Wrap(err, "document: close temp file")
	}

	text, err := p.text.ExtractText(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return Parsed{}, eris.Wrap(ctx.Err(), "document: extraction interrupted")
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return Parsed{}, eris.Wrap(ErrExtractorUnavailable, err.Error())
		}
		zap.L().Debug("document: text extraction failed",
			zap.String("file", filepath.Base(path)),
			zap.Error(err),
		)
		return Parsed{}, eris.Wrap(ErrMalformed, err.Error())
	}

	text = strings.TrimSpace(text)
	if countVisible(text) < p.scannedMinChars {
		zap.L().Info("document: no usable text layer, treating as scanned",
			zap.Int("chars", countVisible(text)),
			zap.Int("bytes", len(data)),
		)
		return Parsed{IsScanned: true, Raw: data}, nil
	}

	return Parsed{Text: text, Raw: data}, nil
}

func countVisible(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
