package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// CVTextSource loads raw CV text from a file: PDFs through the PDF reader,
// anything else as plain text.
type CVTextSource interface {
	ReadText(path string) (string, error)
}

type cvTextSource struct {
	maxBytes int64
}

func NewCVTextSource() CVTextSource {
	return &cvTextSource{maxBytes: 10 << 20}
}

func (s *cvTextSource) ReadText(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: file does not exist: %s", ErrInvalidInput, path)
		}
		return "", fmt.Errorf("failed to stat cv file: %w", err)
	}
	if info.Size() > s.maxBytes {
		return "", fmt.Errorf("%w: cv file exceeds %d bytes", ErrInvalidInput, s.maxBytes)
	}

	var text string
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = readPDF(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return "", err
	}

	text = CleanText(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text content found in %s", ErrInvalidInput, path)
	}
	return text, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// unreadable pages are skipped
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	return b.String(), nil
}

// CleanText trims every line and drops blank ones.
func CleanText(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
