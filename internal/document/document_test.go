package document

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeText struct {
	text     string
	err      error
	sawBytes []byte
}

func (f *fakeText) ExtractText(_ context.Context, pdfPath string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", err
	}
	f.sawBytes = data
	return f.text, f.err
}

var samplePDF = []byte("%PDF-1.7\n1 0 obj <<>> endobj\ntrailer\n%%EOF")

func TestLooksLikePDF(t *testing.T) {
	assert.True(t, LooksLikePDF(samplePDF))
	assert.True(t, LooksLikePDF(append([]byte("\n\n"), samplePDF...)))
	assert.False(t, LooksLikePDF([]byte("%PDF-")))
	assert.False(t, LooksLikePDF([]byte("PK\x03\x04 zip archive")))
	assert.False(t, LooksLikePDF(nil))
}

func TestParse_TextLayer(t *testing.T) {
	body := strings.Repeat("Revenue 1,000 Cost of sales 400 ", 20)
	ft := &fakeText{text: "  " + body + "\n"}
	p := NewPreprocessor(ft, 50)

	parsed, err := p.Parse(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.False(t, parsed.IsScanned)
	assert.Equal(t, strings.TrimSpace(body), parsed.Text)
	assert.Equal(t, samplePDF, parsed.Raw)
	assert.Equal(t, samplePDF, ft.sawBytes)
}

func TestParse_Scanned(t *testing.T) {
	p := NewPreprocessor(&fakeText{text: " \f\n 3 "}, 50)

	parsed, err := p.Parse(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.True(t, parsed.IsScanned)
	assert.Empty(t, parsed.Text)
	assert.Equal(t, samplePDF, parsed.Raw)
}

func TestParse_Malformed(t *testing.T) {
	p := NewPreprocessor(&fakeText{}, 50)

	_, err := p.Parse(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = p.Parse(context.Background(), []byte("hello world, not a pdf"))
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), "%PDF- header")
}

func TestParse_ExtractorFailureIsMalformed(t *testing.T) {
	p := NewPreprocessor(&fakeText{err: errors.New("Syntax Error: Couldn't read xref table")}, 50)

	_, err := p.Parse(context.Background(), samplePDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), "xref")
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_MissingBinary(t *testing.T) {
	p := NewPdfToText("/nonexistent/pdftotext")
	_, err := p.ExtractText(context.Background(), "/tmp/none.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestParse_MissingExtractorIsNotMalformed(t *testing.T) {
	p := NewPreprocessor(&fakeText{err: &exec.Error{Name: "pdftotext", Err: exec.ErrNotFound}}, 50)

	_, err := p.Parse(context.Background(), samplePDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractorUnavailable))
	assert.False(t, errors.Is(err, ErrMalformed))
}

func TestParse_MissingBinaryPathIsNotMalformed(t *testing.T) {
	p := NewPreprocessor(NewPdfToText("/nonexistent/pdftotext"), 50)

	_, err := p.Parse(context.Background(), samplePDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractorUnavailable))
	assert.False(t, errors.Is(err, ErrMalformed))
}
