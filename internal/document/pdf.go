// Package document extracts text from uploaded PDF payloads so the chat
// layer can hand the model a context string.
package document

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the plain text of a PDF payload, truncated to at most
// maxRunes runes (0 means no limit). Extraction is best-effort: encrypted
// or malformed documents return an error and the caller degrades to an
// empty context.
func ExtractText(data []byte, maxRunes int) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	text := buf.String()
	if maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > maxRunes {
			text = string(runes[:maxRunes])
		}
	}
	return text, nil
}
