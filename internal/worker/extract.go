// Package worker drains the processing queue: extract text, chunk,
// embed and index uploaded documents.
package worker

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/dslipak/pdf"

	"ragspace/internal/apperr"
)

// Extractor turns raw file bytes into plain text.
type Extractor func(data []byte) (string, error)

// ExtractorRegistry maps MIME types to extractors.
type ExtractorRegistry struct {
	byMime map[string]Extractor
}

// NewExtractorRegistry registers the default set: plain text, markdown,
// PDF and DOCX.
func NewExtractorRegistry() *ExtractorRegistry {
	r := &ExtractorRegistry{byMime: make(map[string]Extractor)}
	r.Register("text/plain", extractPlain)
	r.Register("text/markdown", extractPlain)
	r.Register("application/pdf", extractPDF)
	r.Register("application/vnd.openxmlformats-officedocument.wordprocessingml.document", extractDOCX)
	return r
}

func (r *ExtractorRegistry) Register(mimeType string, fn Extractor) {
	r.byMime[strings.ToLower(mimeType)] = fn
}

// Supported reports whether mimeType has an extractor.
func (r *ExtractorRegistry) Supported(mimeType string) bool {
	_, ok := r.byMime[normalizeMime(mimeType)]
	return ok
}

// Extract runs the extractor for mimeType.
func (r *ExtractorRegistry) Extract(mimeType string, data []byte) (string, error) {
	fn, ok := r.byMime[normalizeMime(mimeType)]
	if !ok {
		return "", apperr.Newf(apperr.KindValidation, "unsupported content type %q", mimeType)
	}
	return fn(data)
}

// normalizeMime drops parameters like "; charset=utf-8".
func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func extractPlain(data []byte) (string, error) {
	return string(data), nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A broken page should not sink the document.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractDOCX reads word/document.xml out of the zip container and
// collects the text runs, with paragraph boundaries as newlines.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx container: %w", err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("failed to open document body: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("docx container has no document body")
	}
	defer docXML.Close()

	decoder := xml.NewDecoder(docXML)
	var sb strings.Builder
	var inText bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
