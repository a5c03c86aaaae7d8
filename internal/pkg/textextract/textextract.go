package textextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedType = errors.New("unsupported file type for text extraction")

// Extract returns the plain text of a document of the given file type
// ("pdf", "text", "markdown", "sheet"). Sheets are only readable as CSV.
func Extract(r io.Reader, fileType, fileName string) (string, error) {
	switch fileType {
	case "pdf":
		return extractPDF(r)
	case "text", "markdown":
		return readUTF8(r)
	case "sheet":
		if !strings.HasSuffix(strings.ToLower(fileName), ".csv") {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileName)
		}
		return readUTF8(r)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

func readUTF8(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(b) {
		b = bytes.ToValidUTF8(b, []byte("�"))
	}
	return strings.ReplaceAll(string(b), "\x00", ""), nil
}

// extractPDF returns "" with a nil error when the PDF has no text layer.
func extractPDF(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}
