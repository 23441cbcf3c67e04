// Package pdfdoc performs the local checks run on an upload before it is sent
// to the indexer: is it non-empty, is it declared as a PDF, does it look like a
// PDF, and how many pages does it have.
package pdfdoc

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	pdf "github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// MediaType is the only media type accepted for upload.
const MediaType = "application/pdf"

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("file is empty")
	// ErrNotPDF is returned when the extension, declared type or content is
	// not PDF.
	ErrNotPDF = errors.New("only PDF documents are accepted")
)

// Info is what inspection learned about an accepted upload.
type Info struct {
	MediaType string
	// Pages is 0 when the document could not be parsed. Parsing problems do
	// not reject the upload; the indexer is the authority on content.
	Pages int
}

// Inspect validates an upload. Both the filename extension and the declared
// media type must say PDF, and the bytes must start with the PDF signature.
func Inspect(filename, declaredType string, data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmpty
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return Info{}, ErrNotPDF
	}
	if !isPDFType(declaredType) {
		return Info{}, ErrNotPDF
	}
	if sniffed := http.DetectContentType(data); sniffed != MediaType {
		return Info{}, ErrNotPDF
	}
	return Info{MediaType: MediaType, Pages: CountPages(data)}, nil
}

// isPDFType accepts application/pdf and the legacy application/x-pdf, with
// or without parameters.
func isPDFType(declared string) bool {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return false
	}
	return mt == MediaType || mt == "application/x-pdf"
}

// CountPages returns the page count, or 0 for documents the parser rejects.
// The parser panics on some malformed inputs, so panics are contained here.
func CountPages(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

// CleanFilename strips any client-supplied directory, normalizes to NFC and
// drops control characters. An unusable name becomes "document.pdf".
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(norm.NFC.String(strings.TrimSpace(name)))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "document.pdf"
	}
	return name
}
