package index

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Load extracts plain text from an uploaded blob. PDFs are detected by
// their magic header; anything else is treated as UTF-8 text.
func Load(reader io.Reader) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("document is empty")
	}

	if bytes.HasPrefix(content, []byte("%PDF")) {
		return loadPDF(content)
	}
	return string(content), nil
}

func loadPDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return sb.String(), nil
}
