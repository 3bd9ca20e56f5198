// Package document turns resume and job description files into plain text.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for extensions without a parser.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrEmpty is returned when a document contains no text.
var ErrEmpty = errors.New("document is empty")

type parser func([]byte) (string, error)

var parsers = map[string]parser{
	".txt":      parseText,
	".md":       parseText,
	".markdown": parseText,
}

// Extensions lists the supported file extensions.
func Extensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// ReadFile parses the document at path, choosing the parser by extension.
func ReadFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := parsers[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(ext, data)
}

// Parse extracts text from data declared with the given extension.
func Parse(ext string, data []byte) (string, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	p, ok := parsers[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	text, err := p(data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func parseText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedFormat)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
