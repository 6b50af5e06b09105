// Package docgen renders a question/answer/sources exchange into a styled PDF
// artifact ready for upload to the document store.
package docgen

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

// ContentTypePDF labels rendered artifacts for the blob store.
const ContentTypePDF = "application/pdf"

const (
	documentTitle  = "DDQ Response"
	footerLabel    = "Hudson Advisors DDQ Assistant"
	timestampLabel = "Generated on: "
)

// Document is a rendered artifact: raw bytes, their content type, and the
// suggested object name for storage.
type Document struct {
	Content     []byte
	ContentType string
	Name        string
}

// textStyle declares typography for one kind of paragraph. Rendering walks
// the document structure and looks styles up here instead of making inline
// formatting calls.
type textStyle struct {
	family string
	style  string
	size   float64
	color  [3]int
	align  string
}

var styles = map[string]textStyle{
	"body":      {family: "Helvetica", style: "", size: 11, color: [3]int{0, 0, 0}, align: "L"},
	"title":     {family: "Helvetica", style: "B", size: 16, color: [3]int{0, 0, 139}, align: "C"},
	"timestamp": {family: "Helvetica", style: "", size: 11, color: [3]int{0, 0, 0}, align: "R"},
	"heading":   {family: "Helvetica", style: "B", size: 14, color: [3]int{0, 0, 0}, align: "L"},
	"source":    {family: "Helvetica", style: "I", size: 10, color: [3]int{0, 0, 0}, align: "L"},
	"footer":    {family: "Helvetica", style: "I", size: 8, color: [3]int{128, 128, 128}, align: "C"},
}

type Renderer struct {
	now func() time.Time
}

func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// NewRendererWithClock pins the embedded timestamp, making output
// reproducible.
func NewRendererWithClock(now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{now: now}
}

// Render produces the PDF document: centered title, right-aligned timestamp,
// separator rule, question and answer sections, a bulleted sources section
// when sources exist, and a centered footer. Output is deterministic for
// identical inputs and a fixed clock; only the suggested name carries a
// random collision-avoidance suffix.
func (r *Renderer) Render(question, answer string, sources []string) (Document, error) {
	now := r.now()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(now)
	// fpdf stamps /ModDate with wall-clock time unless pinned too.
	pdf.SetModificationDate(now)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		applyStyle(pdf, styles["footer"])
		pdf.CellFormat(0, 10, tr(footerLabel), "", 0, styles["footer"].align, false, 0, "")
	})

	pdf.AddPage()

	writeLine(pdf, styles["title"], tr(documentTitle))
	writeLine(pdf, styles["timestamp"], timestampLabel+now.Format("2006-01-02 15:04:05"))

	pdf.Ln(2)
	left, _, right, _ := pdf.GetMargins()
	pageWidth, _ := pdf.GetPageSize()
	pdf.SetDrawColor(0, 0, 0)
	pdf.Line(left, pdf.GetY(), pageWidth-right, pdf.GetY())
	pdf.Ln(4)

	writeLine(pdf, styles["heading"], "Question:")
	writeParagraph(pdf, styles["body"], tr(question))
	pdf.Ln(6)

	writeLine(pdf, styles["heading"], "Answer:")
	writeParagraph(pdf, styles["body"], tr(answer))

	if len(sources) > 0 {
		pdf.Ln(6)
		writeLine(pdf, styles["heading"], "Sources:")
		for _, source := range sources {
			writeParagraph(pdf, styles["source"], tr("- "+source))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("render pdf: %w", err)
	}

	return Document{
		Content:     buf.Bytes(),
		ContentType: ContentTypePDF,
		Name:        ObjectName(question, now),
	}, nil
}

func applyStyle(pdf *fpdf.Fpdf, s textStyle) {
	pdf.SetFont(s.family, s.style, s.size)
	pdf.SetTextColor(s.color[0], s.color[1], s.color[2])
}

func writeLine(pdf *fpdf.Fpdf, s textStyle, text string) {
	applyStyle(pdf, s)
	pdf.CellFormat(0, s.size*0.6, text, "", 1, s.align, false, 0, "")
}

func writeParagraph(pdf *fpdf.Fpdf, s textStyle, text string) {
	applyStyle(pdf, s)
	pdf.MultiCell(0, s.size*0.5, text, "", s.align, false)
}

// ObjectName derives the storage name for a rendered response: a fixed
// folder, the generation timestamp, a filesystem-safe fragment of the
// question, and a short random suffix against collisions.
func ObjectName(question string, now time.Time) string {
	return fmt.Sprintf("ddq_responses/%s_%s_%s.pdf",
		now.Format("20060102150405"),
		safeFragment(question, 30),
		uuid.NewString()[:8],
	)
}

func safeFragment(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > limit {
		runes = runes[:limit]
	}

	var b strings.Builder
	for _, r := range runes {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	if b.Len() == 0 {
		return "response"
	}
	return b.String()
}
