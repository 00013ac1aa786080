// Package extract turns uploaded files into plain text for chunking.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"docuvault/internal/types"
)

// Kind is a supported document type.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindText     Kind = "txt"
	KindMarkdown Kind = "md"
	KindCSV      Kind = "csv"
	KindJSON     Kind = "json"
	KindHTML     Kind = "html"
	KindWord     Kind = "docx"
	KindExcel    Kind = "xlsx"
)

var pdfMagic = []byte("%PDF-")

var extKinds = map[string]Kind{
	".pdf":      KindPDF,
	".txt":      KindText,
	".text":     KindText,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
	".csv":      KindCSV,
	".json":     KindJSON,
	".html":     KindHTML,
	".htm":      KindHTML,
	".xml":      KindHTML, // same tag-stripping path
	".docx":     KindWord,
	".xlsx":     KindExcel,
}

// Detect decides the document kind from the filename extension, with
// the PDF magic bytes as a tie-breaker: content that starts with %PDF-
// is treated as PDF whatever the extension says.
func Detect(filename string, head []byte) (Kind, error) {
	if bytes.HasPrefix(head, pdfMagic) {
		return KindPDF, nil
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if kind, ok := extKinds[ext]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("%w: unsupported file type %q", types.ErrValidation, ext)
}

// Text extracts plain text from the raw file content.
func Text(kind Kind, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = pdfText(data)
	case KindHTML:
		text, err = htmlText(data)
	case KindWord:
		text, err = docxText(data)
	case KindExcel:
		text, err = xlsxText(data)
	case KindText, KindMarkdown, KindCSV, KindJSON:
		text, err = plainText(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", types.ErrValidation, kind)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", types.ErrValidation)
	}
	return text, nil
}

func pdfText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf failed: %v", types.ErrValidation, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text failed: %v", types.ErrValidation, err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}

// docxText pulls paragraph and table text out of a Word document,
// one paragraph per line.
func docxText(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse docx failed: %v", types.ErrValidation, err)
	}
	var b strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			if s := strings.TrimSpace(it.String()); s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		case *docx.Table:
			if s := strings.TrimSpace(it.String()); s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}

// xlsxText flattens every sheet into text, cells separated by spaces
// and rows by newlines.
func xlsxText(data []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: parse xlsx failed: %v", types.ErrValidation, err)
	}
	defer wb.Close()

	var b strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: read sheet %q failed: %v", types.ErrValidation, sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid utf-8 text", types.ErrValidation)
	}
	return string(data), nil
}

// htmlText strips tags and collapses whitespace. Script and style
// bodies are dropped entirely.
func htmlText(data []byte) (string, error) {
	raw, err := plainText(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	inTag := false
	skipUntil := ""
	lower := strings.ToLower(raw)
	for i := 0; i < len(raw); i++ {
		if skipUntil != "" {
			if strings.HasPrefix(lower[i:], skipUntil) {
				i += len(skipUntil) - 1
				skipUntil = ""
			}
			continue
		}
		switch {
		case raw[i] == '<':
			if strings.HasPrefix(lower[i:], "<script") {
				skipUntil = "</script>"
				continue
			}
			if strings.HasPrefix(lower[i:], "<style") {
				skipUntil = "</style>"
				continue
			}
			inTag = true
			b.WriteByte(' ')
		case raw[i] == '>':
			inTag = false
		case !inTag:
			b.WriteByte(raw[i])
		}
	}
	return strings.Join(strings.Fields(b.String()), " "), nil
}
