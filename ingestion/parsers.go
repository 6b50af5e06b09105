package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// DocumentPayload is the raw input to a parser.
type DocumentPayload struct {
	Path string
	Data []byte
}

// ParsedDocument is the parser output: a display title and the chunked body
// text ready for embedding.
type ParsedDocument struct {
	Title  string
	Chunks []string
}

type DocumentParser interface {
	Parse(payload DocumentPayload) (*ParsedDocument, error)
}

// ParserFor returns the parser matching a detected format, or nil when the
// format is unsupported.
func ParserFor(format DocumentFormat) DocumentParser {
	switch format {
	case FormatMarkdown:
		return markdownParser{}
	case FormatPDF:
		return pdfParser{}
	case FormatCSV:
		return csvParser{}
	default:
		return nil
	}
}

type markdownParser struct{}

func (markdownParser) Parse(payload DocumentPayload) (*ParsedDocument, error) {
	content := string(payload.Data)
	title := ExtractTitle(content, filepath.Base(payload.Path))

	return &ParsedDocument{
		Title:  title,
		Chunks: ChunkText(content, defaultChunkSize, defaultChunkOverlap),
	}, nil
}

type pdfParser struct{}

func (pdfParser) Parse(payload DocumentPayload) (*ParsedDocument, error) {
	reader := bytes.NewReader(payload.Data)
	doc, err := pdf.NewReader(reader, int64(len(payload.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := doc.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	content := normalizePlainText(buf.String())
	title := firstNonEmptyLine(content)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(payload.Path), filepath.Ext(payload.Path))
	}

	return &ParsedDocument{
		Title:  title,
		Chunks: ChunkText(content, defaultChunkSize, defaultChunkOverlap),
	}, nil
}

type csvParser struct{}

func (csvParser) Parse(payload DocumentPayload) (*ParsedDocument, error) {
	reader := csv.NewReader(bytes.NewReader(payload.Data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(payload.Path), filepath.Ext(payload.Path))
	if len(records) == 0 {
		return &ParsedDocument{Title: title}, nil
	}

	headers := records[0]
	rows := records[1:]

	paragraphs := make([]string, 0, len(rows))
	for idx, row := range rows {
		paragraphs = append(paragraphs, formatCSVRow(headers, row, idx))
	}

	return &ParsedDocument{
		Title:  title,
		Chunks: ChunkText(strings.Join(paragraphs, "\n\n"), defaultChunkSize, defaultChunkOverlap),
	}, nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func firstNonEmptyLine(content string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func formatCSVRow(headers, row []string, idx int) string {
	builder := &strings.Builder{}
	builder.WriteString(fmt.Sprintf("Row %d", idx+1))

	limit := len(headers)
	if len(row) < limit {
		limit = len(row)
	}

	for i := 0; i < limit; i++ {
		header := strings.TrimSpace(headers[i])
		value := strings.TrimSpace(row[i])
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		builder.WriteString("\n")
		builder.WriteString(header)
		builder.WriteString(": ")
		builder.WriteString(value)
	}

	// Values beyond the header count still get recorded.
	if len(row) > len(headers) {
		for i := len(headers); i < len(row); i++ {
			builder.WriteString("\n")
			builder.WriteString(fmt.Sprintf("Extra %d: %s", i+1, strings.TrimSpace(row[i])))
		}
	}

	return builder.String()
}
